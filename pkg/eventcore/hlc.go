package eventcore

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Timestamp is an HLC reading: wall-clock milliseconds plus a logical
// tiebreaker and the node that minted it. String() is the canonical,
// lexicographically-ordered wire form.
type Timestamp struct {
	WallMs  int64
	Logical int64
	Node    string
}

// String renders the fixed-width form wallMs:logical:node such that
// byte-wise comparison equals causal order.
func (t Timestamp) String() string {
	return fmt.Sprintf("%015d:%06d:%s", t.WallMs, t.Logical, t.Node)
}

// ParseTimestamp parses the canonical HLC string form back into its parts.
func ParseTimestamp(s string) (Timestamp, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Timestamp{}, fmt.Errorf("malformed hlc timestamp %q", s)
	}
	var wall, logical int64
	if _, err := fmt.Sscanf(parts[0], "%d", &wall); err != nil {
		return Timestamp{}, fmt.Errorf("malformed hlc wall time %q: %w", parts[0], err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &logical); err != nil {
		return Timestamp{}, fmt.Errorf("malformed hlc logical counter %q: %w", parts[1], err)
	}
	return Timestamp{WallMs: wall, Logical: logical, Node: parts[2]}, nil
}

// HLCConfig configures an HLC instance's tolerances and node identity.
type HLCConfig struct {
	Node        string // defaults to a fresh UUID if empty
	MaxOffsetMs int64  // Recv rejects merges that land this far ahead of local wall time
	ToleranceMs int64  // Recv rejects merges that jump the clock forward by more than this
	MaxWallMs   int64  // Now fails once the wall clock passes this ceiling (0 = no ceiling)
}

func (c HLCConfig) withDefaults() HLCConfig {
	if c.Node == "" {
		c.Node = uuid.NewString()
	}
	if c.MaxOffsetMs <= 0 {
		c.MaxOffsetMs = 500
	}
	if c.ToleranceMs <= 0 {
		c.ToleranceMs = 60_000
	}
	return c
}

// HLC is a hybrid logical clock producing monotone, causally-consistent
// timestamps. A single instance is shared (by handle, not a
// package-level global) across every writer on one node; its mutex
// guards the clock's lastWall/lastLogical state.
type HLC struct {
	mu          sync.Mutex
	lastWall    int64
	lastLogical int64
	cfg         HLCConfig
	wallNow     func() int64 // seam for deterministic tests
}

// NewHLC builds an HLC with the given configuration.
func NewHLC(cfg HLCConfig) *HLC {
	cfg = cfg.withDefaults()
	return &HLC{
		cfg:     cfg,
		wallNow: func() int64 { return time.Now().UnixMilli() },
	}
}

// Now returns a fresh timestamp, advancing the logical counter when the
// wall clock hasn't moved since the last reading.
func (h *HLC) Now() (Timestamp, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	w := h.wallNow()
	if h.cfg.MaxWallMs > 0 && w > h.cfg.MaxWallMs {
		return Timestamp{}, &WallTimeOverflowError{
			EventCoreError: EventCoreError{Op: "HLC.Now", Err: fmt.Errorf("wall time %d exceeds ceiling %d", w, h.cfg.MaxWallMs)},
			WallMs:         w,
			MaxWallMs:      h.cfg.MaxWallMs,
		}
	}

	if w > h.lastWall {
		h.lastWall = w
		h.lastLogical = 0
	} else {
		h.lastLogical++
	}
	return Timestamp{WallMs: h.lastWall, Logical: h.lastLogical, Node: h.cfg.Node}, nil
}

// Recv merges a remote timestamp into this clock's state, advancing it
// to stay causally after the remote event.
func (h *HLC) Recv(remote Timestamp) (Timestamp, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	w := h.wallNow()
	l := maxInt64(h.lastWall, remote.WallMs, w)

	if l-w > h.cfg.MaxOffsetMs {
		return Timestamp{}, &ClockOffsetError{
			EventCoreError: EventCoreError{Op: "HLC.Recv", Err: fmt.Errorf("merged time %d is %dms ahead of local wall time %d", l, l-w, w)},
			OffsetMs:       l - w,
			MaxOffsetMs:    h.cfg.MaxOffsetMs,
		}
	}
	if l-h.lastWall > h.cfg.ToleranceMs {
		return Timestamp{}, &ForwardJumpError{
			EventCoreError: EventCoreError{Op: "HLC.Recv", Err: fmt.Errorf("merged time %d jumps %dms past last local time %d", l, l-h.lastWall, h.lastWall)},
			JumpMs:         l - h.lastWall,
			ToleranceMs:    h.cfg.ToleranceMs,
		}
	}

	var logical int64
	switch {
	case l == h.lastWall && l == remote.WallMs:
		logical = maxInt64(h.lastLogical, remote.Logical) + 1
	case l == h.lastWall:
		logical = h.lastLogical + 1
	case l == remote.WallMs:
		logical = remote.Logical + 1
	default:
		logical = 0
	}

	h.lastWall = l
	h.lastLogical = logical
	return Timestamp{WallMs: l, Logical: logical, Node: h.cfg.Node}, nil
}

func maxInt64(vs ...int64) int64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
