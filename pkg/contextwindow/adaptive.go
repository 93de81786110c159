package contextwindow

import "github.com/spoolhq/spool/pkg/chat"

// adaptiveStrategy is the seam for future retrieval- and compression-based
// windowing. It must satisfy the same contract as every other strategy;
// until the adaptive logic lands it behaves as the current rolling strategy.
type adaptiveStrategy struct {
	fallback *rollingStrategy
}

func newAdaptive(cfg StrategyConfig) *adaptiveStrategy {
	return &adaptiveStrategy{fallback: newRolling(cfg, false)}
}

func (s *adaptiveStrategy) Name() string { return StrategyAdaptive }

func (s *adaptiveStrategy) PrepareContext(messages []chat.ActiveMessage, newMessage *chat.ActiveMessage, priorMarker *Marker) *Window {
	return s.fallback.PrepareContext(messages, newMessage, priorMarker)
}

func (s *adaptiveStrategy) ShouldRotate(w *Window) bool {
	return s.fallback.ShouldRotate(w)
}
