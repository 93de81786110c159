package contextwindow

import "github.com/spoolhq/spool/pkg/chat"

const (
	defaultMaxMessages      = 100
	defaultRotationInterval = 20
)

// rollingStrategy retains up to maxMessages, rotating out the oldest batch
// when exceeded. The current variant rotates by a fixed rotationInterval so
// the boundary only moves once per batch and cache invalidation stays
// predictable; the legacy variant slides one message at a time, invalidating
// the provider cache on every overflow.
type rollingStrategy struct {
	name             string
	maxMessages      int
	rotationInterval int
	legacy           bool
}

func newRolling(cfg StrategyConfig, legacy bool) *rollingStrategy {
	s := &rollingStrategy{
		name:             StrategyRolling,
		maxMessages:      cfg.MaxMessages,
		rotationInterval: cfg.RotationInterval,
		legacy:           legacy,
	}
	if legacy {
		s.name = StrategyRollingLegacy
	}
	if s.maxMessages <= 0 {
		s.maxMessages = defaultMaxMessages
	}
	if s.rotationInterval <= 0 {
		s.rotationInterval = defaultRotationInterval
	}
	return s
}

func (s *rollingStrategy) Name() string { return s.name }

func (s *rollingStrategy) PrepareContext(messages []chat.ActiveMessage, newMessage *chat.ActiveMessage, _ *Marker) *Window {
	all := candidate(messages, newMessage)

	offset := s.boundary(len(all))
	window := all[offset:]

	w := &Window{
		Messages: window,
		Offset:   offset,
	}
	if len(window) > 0 {
		w.CacheablePrefix = window[:len(window)-1]
	}

	return finish(w)
}

func (s *rollingStrategy) ShouldRotate(w *Window) bool {
	return len(w.Messages) >= s.maxMessages
}

// boundary computes the deterministic rotation offset for a history of n
// messages. Given the same n and configuration the offset is always the
// same index, so invalidation never drifts by one.
func (s *rollingStrategy) boundary(n int) int {
	if n <= s.maxMessages {
		return 0
	}

	if s.legacy {
		return n - s.maxMessages
	}

	over := n - s.maxMessages
	batches := (over + s.rotationInterval - 1) / s.rotationInterval
	return batches * s.rotationInterval
}
