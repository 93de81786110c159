package replay

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/spoolhq/spool/pkg/chat"
	"github.com/spoolhq/spool/pkg/event"
)

// defaultMaxDiagnostics bounds the diagnostics surfaced to an operator. The
// skip counters keep counting past the bound.
const defaultMaxDiagnostics = 100

// Diagnostic records one skipped event: a malformed payload, an unknown
// type, or a reference to a missing entity.
type Diagnostic struct {
	Type   event.Type
	Reason string
}

// Replayer folds event sequences into a State. Replay is lenient by policy:
// logs are expected to outlive schema changes and partial corruption, so a
// bad record is logged and dropped, never fatal.
type Replayer struct {
	logger         *zap.Logger
	maxDiagnostics int

	diagnostics []Diagnostic
	skipped     int
}

// NewReplayer creates a Replayer.
func NewReplayer(logger *zap.Logger) *Replayer {
	return &Replayer{
		logger:         logger,
		maxDiagnostics: defaultMaxDiagnostics,
	}
}

// Diagnostics returns the bounded list of skip diagnostics collected so far.
func (r *Replayer) Diagnostics() []Diagnostic { return r.diagnostics }

// Skipped returns the total number of skipped events, including those past
// the diagnostics bound.
func (r *Replayer) Skipped() int { return r.skipped }

// Fold applies an ordered event sequence to st in a single forward pass.
// It always completes; skipped events are reported through Diagnostics.
func (r *Replayer) Fold(st *State, events []event.Event) {
	for _, ev := range events {
		r.Apply(st, ev)
	}
}

// Replay folds events into a fresh State.
func (r *Replayer) Replay(events []event.Event) *State {
	st := NewState()
	r.Fold(st, events)
	return st
}

// Partition splits an ordered event sequence into scope buckets, folding a
// scratch state as it goes so scope lookups are available for any event that
// depends on prior events. Events that cannot be resolved land in the global
// bucket as a conservative default.
func (r *Replayer) Partition(events []event.Event) *Partition {
	part := &Partition{
		PerUser:         make(map[string][]event.Event),
		PerConversation: make(map[string][]event.Event),
	}

	st := NewState()
	for _, ev := range events {
		scope := r.Apply(st, ev)
		switch scope.Kind {
		case ScopePerUser:
			part.PerUser[scope.OwnerID] = append(part.PerUser[scope.OwnerID], ev)
		case ScopePerConversation:
			part.PerConversation[scope.OwnerID] = append(part.PerConversation[scope.OwnerID], ev)
		default:
			part.Global = append(part.Global, ev)
		}
	}

	return part
}

// Apply folds one event into st and returns its resolved scope. The scope of
// an event is computed before mutation for creates (a conversation_created
// belongs to its user's log even though the conversation doesn't exist yet)
// and exploits the running indices for everything else.
func (r *Replayer) Apply(st *State, ev event.Event) Scope {
	payload, err := event.Decode(ev)
	if err != nil {
		r.skip(ev.Type, fmt.Sprintf("undecodable payload: %v", err))
		return Scope{Kind: ScopeGlobal}
	}

	scope := scopeOf(st, payload)

	switch p := payload.(type) {
	case event.UserCreated:
		st.Users[p.UserID] = &chat.User{
			ID:        p.UserID,
			Email:     p.Email,
			Name:      p.Name,
			CreatedAt: ev.Timestamp,
		}

	case event.APIKeySet:
		u, ok := st.Users[p.UserID]
		if !ok {
			r.skip(ev.Type, "unknown user "+p.UserID)
			return Scope{Kind: ScopeGlobal}
		}
		u.APIKeyRef = p.APIKeyRef

	case event.ShareCreated:
		st.Shares[p.ShareID] = &chat.Share{
			ID:             p.ShareID,
			ConversationID: p.ConversationID,
			UserID:         p.UserID,
			CreatedAt:      ev.Timestamp,
			ExpiresAt:      p.ExpiresAt,
		}

	case event.ShareRevoked:
		if _, ok := st.Shares[p.ShareID]; !ok {
			r.skip(ev.Type, "unknown share "+p.ShareID)
			return Scope{Kind: ScopeGlobal}
		}
		delete(st.Shares, p.ShareID)

	case event.ConversationCreated:
		if _, ok := st.Users[p.UserID]; !ok {
			r.skip(ev.Type, "unknown user "+p.UserID)
			return Scope{Kind: ScopeGlobal}
		}
		st.Conversations[p.ConversationID] = &chat.Conversation{
			ID:           p.ConversationID,
			UserID:       p.UserID,
			Title:        p.Title,
			Model:        p.Model,
			SystemPrompt: p.SystemPrompt,
			CreatedAt:    ev.Timestamp,
			UpdatedAt:    ev.Timestamp,
			Participants: []string{p.UserID},
		}

	case event.ConversationTitleChanged:
		c, ok := st.Conversations[p.ConversationID]
		if !ok {
			r.skip(ev.Type, "unknown conversation "+p.ConversationID)
			return Scope{Kind: ScopeGlobal}
		}
		c.Title = p.Title
		c.UpdatedAt = ev.Timestamp

	case event.ConversationDeleted:
		c, ok := st.Conversations[p.ConversationID]
		if !ok {
			r.skip(ev.Type, "unknown conversation "+p.ConversationID)
			return Scope{Kind: ScopeGlobal}
		}
		for _, m := range c.Messages {
			delete(st.messages, m.ID)
		}
		delete(st.Conversations, p.ConversationID)

	case event.ParticipantJoined:
		c, ok := st.Conversations[p.ConversationID]
		if !ok {
			r.skip(ev.Type, "unknown conversation "+p.ConversationID)
			return Scope{Kind: ScopeGlobal}
		}
		if !contains(c.Participants, p.UserID) {
			c.Participants = append(c.Participants, p.UserID)
		}

	case event.ParticipantLeft:
		c, ok := st.Conversations[p.ConversationID]
		if !ok {
			r.skip(ev.Type, "unknown conversation "+p.ConversationID)
			return Scope{Kind: ScopeGlobal}
		}
		c.Participants = remove(c.Participants, p.UserID)

	case event.MessageAdded:
		c, ok := st.Conversations[p.ConversationID]
		if !ok {
			r.skip(ev.Type, "unknown conversation "+p.ConversationID)
			return Scope{Kind: ScopeGlobal}
		}
		m := &chat.Message{
			ID:             p.MessageID,
			ConversationID: p.ConversationID,
			CreatedAt:      ev.Timestamp,
			Branches: []*chat.Branch{{
				ID:        p.BranchID,
				Role:      p.Role,
				Content:   p.Content,
				CreatedAt: ev.Timestamp,
				Model:     p.Model,
			}},
			ActiveBranchID: p.BranchID,
		}
		c.Messages = append(c.Messages, m)
		c.UpdatedAt = ev.Timestamp
		st.messages[p.MessageID] = m

	case event.BranchAdded:
		m, ok := st.MessageByID(p.MessageID)
		if !ok {
			r.skip(ev.Type, "unknown message "+p.MessageID)
			return Scope{Kind: ScopeGlobal}
		}
		m.Branches = append(m.Branches, &chat.Branch{
			ID:             p.BranchID,
			Role:           p.Role,
			Content:        p.Content,
			CreatedAt:      ev.Timestamp,
			Model:          p.Model,
			ParentBranchID: p.ParentBranchID,
		})

	case event.ActiveBranchChanged:
		m, ok := st.MessageByID(p.MessageID)
		if !ok {
			r.skip(ev.Type, "unknown message "+p.MessageID)
			return Scope{Kind: ScopeGlobal}
		}
		// Selecting a branch that isn't in the set would break the
		// active-branch invariant; refuse rather than corrupt state.
		if m.Branch(p.BranchID) == nil {
			r.skip(ev.Type, "unknown branch "+p.BranchID+" on message "+p.MessageID)
			return scope
		}
		m.ActiveBranchID = p.BranchID

	case event.MessageDeleted:
		m, ok := st.MessageByID(p.MessageID)
		if !ok {
			r.skip(ev.Type, "unknown message "+p.MessageID)
			return Scope{Kind: ScopeGlobal}
		}
		if c, ok := st.Conversations[m.ConversationID]; ok {
			c.Messages = removeMessage(c.Messages, p.MessageID)
		}
		delete(st.messages, p.MessageID)

	case event.InferenceRecorded:
		// Observability record; no entity mutation beyond freshness.
		if c, ok := st.Conversations[p.ConversationID]; ok {
			c.UpdatedAt = ev.Timestamp
		}

	case event.UnknownPayload:
		r.skip(ev.Type, "unrecognized event type")
		return Scope{Kind: ScopeGlobal}
	}

	return scope
}

// skip records a diagnostic for a dropped event.
func (r *Replayer) skip(t event.Type, reason string) {
	r.skipped++
	if len(r.diagnostics) < r.maxDiagnostics {
		r.diagnostics = append(r.diagnostics, Diagnostic{Type: t, Reason: reason})
	}

	r.logger.Error("skipping event during replay",
		zap.String("type", string(t)),
		zap.String("reason", reason),
	)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func removeMessage(msgs []*chat.Message, id string) []*chat.Message {
	out := msgs[:0]
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
