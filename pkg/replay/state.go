// Package replay folds ordered event sequences into live entities. The fold
// is deterministic and idempotent: replaying the same log twice yields
// identical state. Bad records never abort a replay — they are logged,
// counted, and skipped.
package replay

import "github.com/spoolhq/spool/pkg/chat"

// State holds the reconstructed entities plus running indices maintained
// during the forward pass. The indices are a derived cache: deletions remove
// entries here while the events themselves stay in the log permanently.
type State struct {
	Users         map[string]*chat.User
	Conversations map[string]*chat.Conversation
	Shares        map[string]*chat.Share

	// messages indexes every live message by id across conversations, so a
	// message-scoped event can resolve its owning conversation without a
	// second pass.
	messages map[string]*chat.Message
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		Users:         make(map[string]*chat.User),
		Conversations: make(map[string]*chat.Conversation),
		Shares:        make(map[string]*chat.Share),
		messages:      make(map[string]*chat.Message),
	}
}

// MessageByID resolves a live message through the running index.
func (s *State) MessageByID(id string) (*chat.Message, bool) {
	m, ok := s.messages[id]
	return m, ok
}

// ConversationOf resolves the conversation owning a message id.
func (s *State) ConversationOf(messageID string) (*chat.Conversation, bool) {
	m, ok := s.messages[messageID]
	if !ok {
		return nil, false
	}
	c, ok := s.Conversations[m.ConversationID]
	return c, ok
}
