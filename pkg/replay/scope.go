package replay

import "github.com/spoolhq/spool/pkg/event"

// ScopeKind partitions events by the entity whose log owns them.
type ScopeKind string

const (
	// ScopeGlobal covers users, API keys, and shares — and is the
	// conservative fallback for events that cannot be resolved.
	ScopeGlobal ScopeKind = "global"

	// ScopePerUser covers conversation and participant lifecycle, owned by
	// the conversation's user.
	ScopePerUser ScopeKind = "user"

	// ScopePerConversation covers message mutations, owned by the
	// conversation the referenced message belongs to.
	ScopePerConversation ScopeKind = "conversation"
)

// Scope is an event's resolved partition. OwnerID is empty for global scope.
type Scope struct {
	Kind    ScopeKind
	OwnerID string
}

// Partition is the result of splitting an ordered event sequence by scope,
// preserving relative order within each bucket.
type Partition struct {
	Global          []event.Event
	PerUser         map[string][]event.Event
	PerConversation map[string][]event.Event
}

// scopeOf classifies one decoded event against already-reconstructed state.
// Events referencing entities that do not (yet) exist resolve to global
// scope; the caller decides whether that is a diagnostic.
func scopeOf(st *State, p event.Payload) Scope {
	switch v := p.(type) {
	case event.UserCreated, event.APIKeySet, event.ShareCreated, event.ShareRevoked:
		return Scope{Kind: ScopeGlobal}

	case event.ConversationCreated:
		return Scope{Kind: ScopePerUser, OwnerID: v.UserID}

	case event.ConversationTitleChanged:
		return conversationOwner(st, v.ConversationID)
	case event.ConversationDeleted:
		return conversationOwner(st, v.ConversationID)
	case event.ParticipantJoined:
		return conversationOwner(st, v.ConversationID)
	case event.ParticipantLeft:
		return conversationOwner(st, v.ConversationID)

	case event.MessageAdded:
		if _, ok := st.Conversations[v.ConversationID]; ok {
			return Scope{Kind: ScopePerConversation, OwnerID: v.ConversationID}
		}
		return Scope{Kind: ScopeGlobal}

	case event.BranchAdded:
		return messageConversation(st, v.MessageID)
	case event.ActiveBranchChanged:
		return messageConversation(st, v.MessageID)
	case event.MessageDeleted:
		return messageConversation(st, v.MessageID)

	case event.InferenceRecorded:
		if _, ok := st.Conversations[v.ConversationID]; ok {
			return Scope{Kind: ScopePerConversation, OwnerID: v.ConversationID}
		}
		return Scope{Kind: ScopeGlobal}

	default:
		return Scope{Kind: ScopeGlobal}
	}
}

// conversationOwner maps a conversation-lifecycle event to its owning user's
// scope, falling back to global when the conversation is unknown.
func conversationOwner(st *State, conversationID string) Scope {
	if c, ok := st.Conversations[conversationID]; ok {
		return Scope{Kind: ScopePerUser, OwnerID: c.UserID}
	}
	return Scope{Kind: ScopeGlobal}
}

// messageConversation maps a message-scoped event to its conversation's
// scope via the running message index.
func messageConversation(st *State, messageID string) Scope {
	if c, ok := st.ConversationOf(messageID); ok {
		return Scope{Kind: ScopePerConversation, OwnerID: c.ID}
	}
	return Scope{Kind: ScopeGlobal}
}
