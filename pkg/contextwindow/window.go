// Package contextwindow assembles provider-ready message lists from
// reconstructed conversation history under a pluggable, cache-aware
// windowing strategy, and tracks prefix-cache hit statistics.
package contextwindow

import "github.com/spoolhq/spool/pkg/chat"

// Marker designates the cache boundary: the last message of the cacheable
// prefix and its position within the window's message list.
type Marker struct {
	MessageID string `json:"message_id"`
	Position  int    `json:"position"`
}

// Metadata carries derived, non-persisted facts about a window.
type Metadata struct {
	// CacheKey is the stable hash over the cacheable prefix.
	CacheKey string `json:"cache_key,omitempty"`

	// TokenEstimate is a provider-agnostic estimate for the full window.
	TokenEstimate int `json:"token_estimate,omitempty"`
}

// Window is the exact ordered message list to submit to the model. It is
// derived on every inference request and never persisted.
type Window struct {
	// Messages is the full ordered sequence to send.
	Messages []chat.ActiveMessage

	// CacheablePrefix is the leading stable portion of Messages.
	CacheablePrefix []chat.ActiveMessage

	// Marker is nil when the prefix is empty.
	Marker *Marker

	// Offset is the index into the full conversation history at which this
	// window begins. Zero until a rolling strategy rotates.
	Offset int

	Metadata Metadata
}

// newMarker computes the marker for a prefix, or nil for an empty prefix.
func newMarker(prefix []chat.ActiveMessage) *Marker {
	if len(prefix) == 0 {
		return nil
	}
	last := prefix[len(prefix)-1]
	return &Marker{MessageID: last.MessageID, Position: len(prefix) - 1}
}

// estimateTokens is a rough chars/4 heuristic, good enough for sizing
// decisions without a provider-specific tokenizer.
func estimateTokens(messages []chat.ActiveMessage) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) + len(m.Role)
	}
	return total / 4
}
