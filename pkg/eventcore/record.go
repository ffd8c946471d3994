package eventcore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"go.jetify.com/typeid"
)

// Record is an immutable, persisted event. Once handed to a provider it
// is never mutated; callers get back copies, never shared pointers into
// store-owned state.
type Record struct {
	ID       string
	Stream   string
	Type     string
	Data     json.RawMessage
	Meta     json.RawMessage
	Created  string
	Recorded string
}

// NewRecordRequest is the input to MakeRecord; Stream is optional.
type NewRecordRequest struct {
	Stream string
	Type   string
	Data   json.RawMessage
	Meta   json.RawMessage
}

// generateStreamID mints a default stream identifier using a fixed
// "stream" TypeID prefix.
func generateStreamID() string {
	tid, err := typeid.WithPrefix("stream")
	if err != nil {
		// typeid.WithPrefix only fails on a malformed prefix literal,
		// which "stream" never is; kept as a defensive fallback.
		tid, _ = typeid.WithPrefix("s")
	}
	return tid.String()
}

// deriveID computes the deterministic event id from (stream, type, created),
// making identical submissions idempotent by key.
func deriveID(stream, eventType, created string) string {
	sum := sha256.Sum256([]byte(stream + "|" + eventType + "|" + created))
	return hex.EncodeToString(sum[:16]) // 128 bits
}

// nullJSON is the default for an omitted Data/Meta field: every provider
// must accept it the same way a caller-supplied payload is accepted, and
// a nil json.RawMessage is not valid JSON to bind as a jsonb column.
var nullJSON = json.RawMessage("null")

// makeRecord builds an unsent record from a request plus the HLC reading
// that stamps it; created == recorded for locally minted events.
func makeRecord(req NewRecordRequest, created Timestamp) Record {
	stream := req.Stream
	if stream == "" {
		stream = generateStreamID()
	}
	data := req.Data
	if len(data) == 0 {
		data = nullJSON
	}
	meta := req.Meta
	if len(meta) == 0 {
		meta = nullJSON
	}
	createdStr := created.String()
	return Record{
		ID:       deriveID(stream, req.Type, createdStr),
		Stream:   stream,
		Type:     req.Type,
		Data:     data,
		Meta:     meta,
		Created:  createdStr,
		Recorded: createdStr,
	}
}
