// Package storage wires the event logs, the handle pools, the overlay store,
// and replay into one explicit service object. The Store is constructed once
// and passed to every consumer — no hidden process-wide singletons — so its
// lifecycle (init, close) stays explicit and testable.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/spoolhq/spool/pkg/event"
	"github.com/spoolhq/spool/pkg/eventlog"
	"github.com/spoolhq/spool/pkg/eventstream"
	"github.com/spoolhq/spool/pkg/overlay"
	"github.com/spoolhq/spool/pkg/replay"
)

// Entity classes, each with its own sharded directory tree under the root.
const (
	classGlobal        = "global"
	classUsers         = "users"
	classConversations = "conversations"
	classSelections    = "selections"

	// globalID is the single entity id of the global log (users, API keys,
	// shares).
	globalID = "global"
)

// Config is the configuration options for a Store.
type Config struct {
	// Root is the storage root directory.
	Root string

	// MaxOpenLogs bounds open file handles per entity-class pool.
	MaxOpenLogs int

	// Publisher, when set, receives append notifications.
	Publisher eventstream.Publisher

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Store is the persistence service for the conversation system.
type Store struct {
	root   string
	logger *zap.Logger

	global        *eventlog.Pool
	users         *eventlog.Pool
	conversations *eventlog.Pool
	selections    *overlay.Store
}

// NewStore creates a Store rooted at c.Root.
func NewStore(c *Config) (*Store, error) {
	if c.Root == "" {
		return nil, fmt.Errorf("storage root is required")
	}

	pool := func(class string) *eventlog.Pool {
		return eventlog.NewPool(&eventlog.Config{
			Root:        filepath.Join(c.Root, class),
			MaxOpenLogs: c.MaxOpenLogs,
			Publisher:   c.Publisher,
			Logger:      c.Logger,
		})
	}

	return &Store{
		root:          c.Root,
		logger:        c.Logger,
		global:        pool(classGlobal),
		users:         pool(classUsers),
		conversations: pool(classConversations),
		selections:    overlay.NewStore(filepath.Join(c.Root, classSelections), c.Logger),
	}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

// Selections exposes the branch-selection overlay store.
func (s *Store) Selections() *overlay.Store { return s.selections }

// Conversations exposes the per-conversation log pool, mainly for tooling
// (compaction, stats) that needs raw file paths.
func (s *Store) Conversations() *eventlog.Pool { return s.conversations }

// AppendGlobal appends to the single global log.
func (s *Store) AppendGlobal(ctx context.Context, ev event.Event) error {
	return s.global.Append(ctx, globalID, ev)
}

// AppendUser appends to a user's lifecycle log.
func (s *Store) AppendUser(ctx context.Context, userID string, ev event.Event) error {
	return s.users.Append(ctx, userID, ev)
}

// AppendConversation appends to a conversation's message log.
func (s *Store) AppendConversation(ctx context.Context, conversationID string, ev event.Event) error {
	return s.conversations.Append(ctx, conversationID, ev)
}

// ConversationEvents loads one conversation's events through a transient
// log. A conversation with no log yet yields an empty sequence.
func (s *Store) ConversationEvents(ctx context.Context, conversationID string) ([]event.Event, error) {
	return s.conversations.LoadEvents(ctx, conversationID)
}

// SelectBranch records a branch selection for (conversation, message) in the
// overlay store. High-frequency and fully overwritable, so it never touches
// the event log.
func (s *Store) SelectBranch(conversationID, messageID, branchID string) error {
	return s.selections.Set(conversationID, messageID, branchID)
}

// DeleteConversation appends the deletion event to the owning user's log and
// removes the conversation's overlay document.
func (s *Store) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	ev, err := event.Now(event.TypeConversationDeleted, event.ConversationDeleted{
		ConversationID: conversationID,
	})
	if err != nil {
		return err
	}
	if err := s.users.Append(ctx, userID, ev); err != nil {
		return err
	}

	return s.selections.Delete(conversationID)
}

// ReplayAll reconstructs the full entity state: the global log first, then
// every user log, then every conversation log, folded in a single replayer
// so diagnostics accumulate across the whole pass. Branch selections are
// merged in from the overlay store last.
func (s *Store) ReplayAll(ctx context.Context) (*replay.State, *replay.Replayer, error) {
	r := replay.NewReplayer(s.logger)
	st := replay.NewState()

	globalEvents, err := s.global.LoadEvents(ctx, globalID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading global log: %w", err)
	}
	r.Fold(st, globalEvents)

	if err := s.users.Walk(ctx, func(_ string, events []event.Event) error {
		r.Fold(st, events)
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("walking user logs: %w", err)
	}

	if err := s.conversations.Walk(ctx, func(_ string, events []event.Event) error {
		r.Fold(st, events)
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("walking conversation logs: %w", err)
	}

	if err := r.ApplySelections(st, s.selections); err != nil {
		return nil, nil, err
	}

	return st, r, nil
}

// Close flushes and releases every pooled handle. Required at shutdown.
func (s *Store) Close() error {
	var firstErr error
	for _, p := range []*eventlog.Pool{s.global, s.users, s.conversations} {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
