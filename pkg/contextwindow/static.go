package contextwindow

import "github.com/spoolhq/spool/pkg/chat"

const defaultPreambleSize = 8

// staticStrategy pins a fixed preamble — the first preambleSize messages,
// immutable and maximally cacheable — and appends the remainder as the
// volatile tail.
type staticStrategy struct {
	preambleSize int
}

func newStatic(cfg StrategyConfig) *staticStrategy {
	s := &staticStrategy{preambleSize: cfg.PreambleSize}
	if s.preambleSize <= 0 {
		s.preambleSize = defaultPreambleSize
	}
	return s
}

func (s *staticStrategy) Name() string { return StrategyStatic }

func (s *staticStrategy) PrepareContext(messages []chat.ActiveMessage, newMessage *chat.ActiveMessage, _ *Marker) *Window {
	all := candidate(messages, newMessage)

	prefix := all
	if len(all) > s.preambleSize {
		prefix = all[:s.preambleSize]
	}

	w := &Window{
		Messages:        all,
		CacheablePrefix: prefix,
	}

	return finish(w)
}

func (s *staticStrategy) ShouldRotate(*Window) bool { return false }
