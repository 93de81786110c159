package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spoolhq/spool/pkg/chat"
)

// Payload is the tagged union over event data. Decode dispatches on the
// event's Type; unknown types decode to UnknownPayload rather than failing.
type Payload interface {
	EventType() Type
}

type UserCreated struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

type APIKeySet struct {
	UserID    string `json:"user_id"`
	APIKeyRef string `json:"api_key_ref"`
}

type ShareCreated struct {
	ShareID        string    `json:"share_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	ExpiresAt      time.Time `json:"expires_at,omitzero"`
}

type ShareRevoked struct {
	ShareID string `json:"share_id"`
}

type ConversationCreated struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Title          string `json:"title,omitempty"`
	Model          string `json:"model,omitempty"`
	SystemPrompt   string `json:"system_prompt,omitempty"`
}

type ConversationTitleChanged struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
}

type ConversationDeleted struct {
	ConversationID string `json:"conversation_id"`
}

type ParticipantJoined struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type ParticipantLeft struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// MessageAdded creates a message together with its initial branch, which
// becomes the active branch.
type MessageAdded struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	BranchID       string    `json:"branch_id"`
	Role           chat.Role `json:"role"`
	Content        string    `json:"content"`
	Model          string    `json:"model,omitempty"`
}

// BranchAdded attaches an alternative branch to an existing message. The
// owning conversation is resolved through the message index during replay.
type BranchAdded struct {
	MessageID      string    `json:"message_id"`
	BranchID       string    `json:"branch_id"`
	Role           chat.Role `json:"role"`
	Content        string    `json:"content"`
	Model          string    `json:"model,omitempty"`
	ParentBranchID string    `json:"parent_branch_id,omitempty"`
}

// ActiveBranchChanged records a branch selection. Current state lives in the
// overlay store; these events are reconstructable noise and are dropped by
// compaction.
type ActiveBranchChanged struct {
	MessageID string `json:"message_id"`
	BranchID  string `json:"branch_id"`
}

type MessageDeleted struct {
	MessageID string `json:"message_id"`
}

// InferenceRecorded captures the outcome of one provider call. DebugRequest
// and DebugResponse hold raw provider payloads and can grow very large;
// compaction strips them.
type InferenceRecorded struct {
	ConversationID  string          `json:"conversation_id"`
	MessageID       string          `json:"message_id,omitempty"`
	Model           string          `json:"model,omitempty"`
	PromptTokens    int             `json:"prompt_tokens,omitempty"`
	OutputTokens    int             `json:"output_tokens,omitempty"`
	CacheReadTokens int             `json:"cache_read_tokens,omitempty"`
	DebugRequest    json.RawMessage `json:"debug_request,omitempty"`
	DebugResponse   json.RawMessage `json:"debug_response,omitempty"`
}

// UnknownPayload carries the raw data of an event whose type is not
// recognized. Replay logs it and defaults the event to global scope.
type UnknownPayload struct {
	Type Type
	Data json.RawMessage
}

func (UserCreated) EventType() Type              { return TypeUserCreated }
func (APIKeySet) EventType() Type                { return TypeAPIKeySet }
func (ShareCreated) EventType() Type             { return TypeShareCreated }
func (ShareRevoked) EventType() Type             { return TypeShareRevoked }
func (ConversationCreated) EventType() Type      { return TypeConversationCreated }
func (ConversationTitleChanged) EventType() Type { return TypeConversationTitleChanged }
func (ConversationDeleted) EventType() Type      { return TypeConversationDeleted }
func (ParticipantJoined) EventType() Type        { return TypeParticipantJoined }
func (ParticipantLeft) EventType() Type          { return TypeParticipantLeft }
func (MessageAdded) EventType() Type             { return TypeMessageAdded }
func (BranchAdded) EventType() Type              { return TypeBranchAdded }
func (ActiveBranchChanged) EventType() Type      { return TypeActiveBranchChanged }
func (MessageDeleted) EventType() Type           { return TypeMessageDeleted }
func (InferenceRecorded) EventType() Type        { return TypeInferenceRecorded }
func (p UnknownPayload) EventType() Type         { return p.Type }

// Decode unmarshals an event's data into its typed payload. An unrecognized
// event type is not an error: the caller receives an UnknownPayload and
// decides how to handle it.
func Decode(ev Event) (Payload, error) {
	var p Payload
	switch ev.Type {
	case TypeUserCreated:
		p = &UserCreated{}
	case TypeAPIKeySet:
		p = &APIKeySet{}
	case TypeShareCreated:
		p = &ShareCreated{}
	case TypeShareRevoked:
		p = &ShareRevoked{}
	case TypeConversationCreated:
		p = &ConversationCreated{}
	case TypeConversationTitleChanged:
		p = &ConversationTitleChanged{}
	case TypeConversationDeleted:
		p = &ConversationDeleted{}
	case TypeParticipantJoined:
		p = &ParticipantJoined{}
	case TypeParticipantLeft:
		p = &ParticipantLeft{}
	case TypeMessageAdded:
		p = &MessageAdded{}
	case TypeBranchAdded:
		p = &BranchAdded{}
	case TypeActiveBranchChanged:
		p = &ActiveBranchChanged{}
	case TypeMessageDeleted:
		p = &MessageDeleted{}
	case TypeInferenceRecorded:
		p = &InferenceRecorded{}
	default:
		return UnknownPayload{Type: ev.Type, Data: ev.Data}, nil
	}

	if err := json.Unmarshal(ev.Data, p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", ev.Type, err)
	}
	return deref(p), nil
}

// deref returns the payload by value so callers can type-switch on concrete
// structs rather than pointers.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *UserCreated:
		return *v
	case *APIKeySet:
		return *v
	case *ShareCreated:
		return *v
	case *ShareRevoked:
		return *v
	case *ConversationCreated:
		return *v
	case *ConversationTitleChanged:
		return *v
	case *ConversationDeleted:
		return *v
	case *ParticipantJoined:
		return *v
	case *ParticipantLeft:
		return *v
	case *MessageAdded:
		return *v
	case *BranchAdded:
		return *v
	case *ActiveBranchChanged:
		return *v
	case *MessageDeleted:
		return *v
	case *InferenceRecorded:
		return *v
	default:
		return p
	}
}
