package contextwindow

import (
	"fmt"

	"github.com/spoolhq/spool/pkg/chat"
)

// Strategy names accepted in configuration.
const (
	StrategyAppend        = "append"
	StrategyRolling       = "rolling"
	StrategyRollingLegacy = "rolling-legacy"
	StrategyStatic        = "static"
	StrategyAdaptive      = "adaptive"
)

// StrategyConfig selects and parameterizes a windowing strategy. The struct
// is comparable; the engine caches strategy instances keyed by it so
// structurally identical configurations share one instance.
type StrategyConfig struct {
	// Name is one of the Strategy* constants.
	Name string `json:"name"`

	// MaxMessages bounds the window for rolling strategies.
	MaxMessages int `json:"max_messages,omitempty"`

	// RotationInterval is the fixed batch size rotated out of a rolling
	// window when MaxMessages is exceeded.
	RotationInterval int `json:"rotation_interval,omitempty"`

	// PreambleSize is the fixed, immutable prefix length for the static
	// strategy.
	PreambleSize int `json:"preamble_size,omitempty"`
}

// Strategy produces the exact message sequence to submit to the model along
// with its cache boundary.
type Strategy interface {
	// Name returns the strategy's configuration name.
	Name() string

	// PrepareContext computes a window from the conversation history (active
	// branches resolved, creation order), an optional not-yet-persisted new
	// message, and the prior cache marker.
	PrepareContext(messages []chat.ActiveMessage, newMessage *chat.ActiveMessage, priorMarker *Marker) *Window

	// ShouldRotate reports whether the next message will move the window's
	// rotation boundary.
	ShouldRotate(w *Window) bool
}

// UnknownStrategyError is a fatal configuration error: strategy names come
// from configuration, not runtime input, so an unknown name is a programming
// error surfaced at construction time.
type UnknownStrategyError struct {
	Name string
}

func (e UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown context strategy %q", e.Name)
}

// NewStrategy constructs the strategy named by cfg, failing fast on an
// unrecognized name.
func NewStrategy(cfg StrategyConfig) (Strategy, error) {
	switch cfg.Name {
	case StrategyAppend:
		return &appendStrategy{}, nil
	case StrategyRolling:
		return newRolling(cfg, false), nil
	case StrategyRollingLegacy:
		return newRolling(cfg, true), nil
	case StrategyStatic:
		return newStatic(cfg), nil
	case StrategyAdaptive:
		return newAdaptive(cfg), nil
	default:
		return nil, UnknownStrategyError{Name: cfg.Name}
	}
}

// candidate appends the optional new message to the history.
func candidate(messages []chat.ActiveMessage, newMessage *chat.ActiveMessage) []chat.ActiveMessage {
	if newMessage == nil {
		return messages
	}
	out := make([]chat.ActiveMessage, 0, len(messages)+1)
	out = append(out, messages...)
	out = append(out, *newMessage)
	return out
}

// finish fills the derived window fields shared by all strategies.
func finish(w *Window) *Window {
	w.Marker = newMarker(w.CacheablePrefix)
	w.Metadata.CacheKey = CacheKey(w.CacheablePrefix)
	w.Metadata.TokenEstimate = estimateTokens(w.Messages)
	return w
}
