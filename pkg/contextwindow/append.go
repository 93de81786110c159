package contextwindow

import "github.com/spoolhq/spool/pkg/chat"

// appendStrategy retains every message forever: the cache boundary only ever
// grows, giving the best possible cache-hit rate at unbounded cost growth.
type appendStrategy struct{}

func (s *appendStrategy) Name() string { return StrategyAppend }

func (s *appendStrategy) PrepareContext(messages []chat.ActiveMessage, newMessage *chat.ActiveMessage, _ *Marker) *Window {
	all := candidate(messages, newMessage)

	w := &Window{Messages: all}
	if len(all) > 0 {
		w.CacheablePrefix = all[:len(all)-1]
	}

	return finish(w)
}

func (s *appendStrategy) ShouldRotate(*Window) bool { return false }
