// Package chat defines the core entities of the conversation store: users,
// conversations, branching messages, and shares. Entities are never persisted
// directly; they are reconstructed from event logs by pkg/replay.
package chat

import (
	"fmt"
	"time"
)

// Role identifies the author of a branch's content.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// User is a registered account. The API key itself is held encrypted by an
// external secrets service; APIKeyRef is an opaque handle to it.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	APIKeyRef string    `json:"api_key_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a thread of messages owned by a single user. Participants
// other than the owner may join and leave over the conversation's lifetime.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title,omitempty"`
	Model        string    `json:"model,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Messages are ordered by creation (append order in the event log).
	Messages []*Message `json:"messages"`

	// Participants holds user IDs currently joined, including the owner.
	Participants []string `json:"participants,omitempty"`
}

// Message occupies one position in a conversation and owns the set of
// alternative branches (edits, regenerations) competing for that position.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`

	// Branches are ordered by creation. Immutable once created.
	Branches []*Branch `json:"branches"`

	// ActiveBranchID selects which branch is displayed and continued from.
	// It must always reference a branch present in Branches.
	ActiveBranchID string `json:"active_branch_id"`
}

// Branch is one immutable content variant of a message.
type Branch struct {
	ID             string    `json:"id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Model          string    `json:"model,omitempty"`
	ParentBranchID string    `json:"parent_branch_id,omitempty"`
}

// Share is a read-only snapshot handle onto a conversation.
type Share struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at,omitzero"`
}

// ConsistencyError reports a violated entity invariant, such as an active
// branch id that is missing from its message's branch set.
type ConsistencyError struct {
	MessageID string
	BranchID  string
}

func (e ConsistencyError) Error() string {
	return fmt.Sprintf("message %s: active branch %s not in branch set", e.MessageID, e.BranchID)
}

// Branch returns the branch with the given id, or nil.
func (m *Message) Branch(id string) *Branch {
	for _, b := range m.Branches {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// ActiveBranch resolves the active branch. A missing active branch is a
// consistency error, never silently papered over.
func (m *Message) ActiveBranch() (*Branch, error) {
	if b := m.Branch(m.ActiveBranchID); b != nil {
		return b, nil
	}
	return nil, ConsistencyError{MessageID: m.ID, BranchID: m.ActiveBranchID}
}

// ActiveMessage is a message flattened to its active branch, the form the
// context window engine consumes.
type ActiveMessage struct {
	MessageID string    `json:"message_id"`
	BranchID  string    `json:"branch_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ActiveMessages flattens the conversation to its active branches in
// creation order. Returns a ConsistencyError if any message's active branch
// is missing from its branch set.
func (c *Conversation) ActiveMessages() ([]ActiveMessage, error) {
	out := make([]ActiveMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		b, err := m.ActiveBranch()
		if err != nil {
			return nil, err
		}
		out = append(out, ActiveMessage{
			MessageID: m.ID,
			BranchID:  b.ID,
			Role:      b.Role,
			Content:   b.Content,
			Model:     b.Model,
			CreatedAt: b.CreatedAt,
		})
	}
	return out, nil
}

// Message returns the message with the given id, or nil.
func (c *Conversation) Message(id string) *Message {
	for _, m := range c.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}
