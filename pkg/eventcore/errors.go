package eventcore

import (
	"errors"
	"fmt"
)

// EventCoreError is the base error type every eventcore error embeds.
type EventCoreError struct {
	Op  string // Operation that failed
	Err error  // Underlying cause, if any
}

func (e EventCoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e EventCoreError) Unwrap() error { return e.Err }

// FieldError describes a single field-level validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (f FieldError) String() string { return fmt.Sprintf("%s: %s", f.Field, f.Message) }

type (
	// EventMissingError is returned when push sees an unregistered event type.
	EventMissingError struct {
		EventCoreError
		Type string
	}

	// EventParserError carries structured field errors from a validator rejection.
	EventParserError struct {
		EventCoreError
		Type   string
		Fields []FieldError
	}

	// EventInsertionError wraps a backend failure during events.insert.
	EventInsertionError struct {
		EventCoreError
		Stream string
	}

	// DuplicateEventError specializes EventInsertionError for a duplicate id.
	DuplicateEventError struct {
		EventInsertionError
		ID string
	}

	// ForwardJumpError is raised by HLC.Recv when the merged time outruns tolerance.
	ForwardJumpError struct {
		EventCoreError
		JumpMs      int64
		ToleranceMs int64
	}

	// ClockOffsetError is raised by HLC.Recv when a remote timestamp exceeds the offset budget.
	ClockOffsetError struct {
		EventCoreError
		OffsetMs    int64
		MaxOffsetMs int64
	}

	// WallTimeOverflowError is raised by HLC.Now when the wall clock exceeds the configured ceiling.
	WallTimeOverflowError struct {
		EventCoreError
		WallMs    int64
		MaxWallMs int64
	}

	// EventContextFailure is an observed (not raised) failure of a Contextor handler or write.
	EventContextFailure struct {
		EventCoreError
		Record Record
	}

	// EventProjectionFailure is an observed (not raised) failure of a Projector handler.
	EventProjectionFailure struct {
		EventCoreError
		Record Record
	}
)

func (e *EventParserError) Error() string {
	return fmt.Sprintf("%s: %d field error(s) for type %q", e.Op, len(e.Fields), e.Type)
}

// Is* / Get* helpers, each built on errors.As for detection.

func IsEventMissingError(err error) bool {
	var e *EventMissingError
	return errors.As(err, &e)
}

func IsEventParserError(err error) bool {
	var e *EventParserError
	return errors.As(err, &e)
}

func IsEventInsertionError(err error) bool {
	var e *EventInsertionError
	return errors.As(err, &e)
}

func IsDuplicateEventError(err error) bool {
	var e *DuplicateEventError
	return errors.As(err, &e)
}

func IsForwardJumpError(err error) bool {
	var e *ForwardJumpError
	return errors.As(err, &e)
}

func IsClockOffsetError(err error) bool {
	var e *ClockOffsetError
	return errors.As(err, &e)
}

func IsWallTimeOverflowError(err error) bool {
	var e *WallTimeOverflowError
	return errors.As(err, &e)
}

func GetEventParserError(err error) (*EventParserError, bool) {
	var e *EventParserError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func GetDuplicateEventError(err error) (*DuplicateEventError, bool) {
	var e *DuplicateEventError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
