// Package event defines the append-only event record and the typed payload
// union carried in its data field. Events are the sole source of truth for
// conversations, messages, and shares; they are immutable once appended.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type enumerates the known event types.
type Type string

const (
	// Global scope.
	TypeUserCreated  Type = "user_created"
	TypeAPIKeySet    Type = "api_key_set"
	TypeShareCreated Type = "share_created"
	TypeShareRevoked Type = "share_revoked"

	// Per-user scope (conversation and participant lifecycle).
	TypeConversationCreated      Type = "conversation_created"
	TypeConversationTitleChanged Type = "conversation_title_changed"
	TypeConversationDeleted      Type = "conversation_deleted"
	TypeParticipantJoined        Type = "participant_joined"
	TypeParticipantLeft          Type = "participant_left"

	// Per-conversation scope (message mutations).
	TypeMessageAdded        Type = "message_added"
	TypeBranchAdded         Type = "message_branch_added"
	TypeActiveBranchChanged Type = "message_active_branch_changed"
	TypeMessageDeleted      Type = "message_deleted"
	TypeInferenceRecorded   Type = "inference_recorded"
)

// Event is one immutable record in an entity's log. Ordering is defined by
// file position, which must equal causal order for a given entity.
type Event struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
}

// New builds an Event at the given instant with the payload marshaled into
// the data field.
func New(ts time.Time, t Type, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshaling %s payload: %w", t, err)
	}
	return Event{Timestamp: ts.UTC(), Type: t, Data: data}, nil
}

// Now builds an Event timestamped at the current instant.
func Now(t Type, payload any) (Event, error) {
	return New(time.Now(), t, payload)
}
