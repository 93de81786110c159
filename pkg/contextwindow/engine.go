package contextwindow

import (
	"sync"

	"go.uber.org/zap"

	"github.com/spoolhq/spool/pkg/chat"
	"github.com/spoolhq/spool/pkg/inference"
)

// Stats are the running cache counters for one (conversation, participant)
// key. They live for the process lifetime only; losing them degrades the
// hit-rate metric, never correctness.
type Stats struct {
	Hits        int   `json:"hits"`
	Misses      int   `json:"misses"`
	Rotations   int   `json:"rotations"`
	TokensSaved int64 `json:"tokens_saved"`
}

// stateKey identifies one context state. ParticipantID may be empty for
// conversation-wide state.
type stateKey struct {
	ConversationID string
	ParticipantID  string
}

// contextState tracks the previous window and counters for one key. A state
// is UNINITIALIZED until its first PrepareContext call makes it READY.
type contextState struct {
	ready bool

	// participantCfg overrides conversation- and engine-level configuration
	// when set via SetContextManagement.
	participantCfg *StrategyConfig

	lastWindow *Window
	lastMarker *Marker

	// lastPrefixKey is the previous window's recorded cache key.
	lastPrefixKey string

	// lastSentKey is the cache key over the previous window's full message
	// list: the content the provider cached after serving it, which a
	// follow-up request's prefix can match.
	lastSentKey string

	lastOffset int
	stats      Stats
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Default is the hardcoded-default strategy used when neither the
	// participant nor the conversation overrides it.
	Default StrategyConfig

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Engine owns per-(conversation, participant) context state and a cache of
// strategy instances keyed by structural configuration equality.
type Engine struct {
	defaultCfg StrategyConfig
	logger     *zap.Logger

	mu         sync.Mutex
	states     map[stateKey]*contextState
	strategies map[StrategyConfig]Strategy
}

// NewEngine creates an Engine, validating the default strategy eagerly so a
// bad configuration fails at startup rather than on the first request.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if _, err := NewStrategy(cfg.Default); err != nil {
		return nil, err
	}

	return &Engine{
		defaultCfg: cfg.Default,
		logger:     cfg.Logger,
		states:     make(map[stateKey]*contextState),
		strategies: make(map[StrategyConfig]Strategy),
	}, nil
}

// PrepareContext computes the window to submit for the given conversation
// and participant. conversationCfg, when non-nil, is the conversation-level
// strategy override; a participant-level override set through
// SetContextManagement takes precedence over it, which takes precedence over
// the engine default.
//
// A request counts as a cache hit iff the new window's cache key equals the
// key recorded for the immediately previous window.
func (e *Engine) PrepareContext(
	conversationID, participantID string,
	messages []chat.ActiveMessage,
	newMessage *chat.ActiveMessage,
	conversationCfg *StrategyConfig,
) (*Window, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state(conversationID, participantID)

	cfg := e.defaultCfg
	if conversationCfg != nil {
		cfg = *conversationCfg
	}
	if st.participantCfg != nil {
		cfg = *st.participantCfg
	}

	strategy, err := e.strategyFor(cfg)
	if err != nil {
		return nil, err
	}

	w := strategy.PrepareContext(messages, newMessage, st.lastMarker)

	if st.ready {
		key := w.Metadata.CacheKey
		// A hit means the new prefix matches content the previous window
		// left in the provider cache: either the previous prefix (static
		// preambles) or the previous full send (append, rolling).
		if key != "" && (key == st.lastPrefixKey || key == st.lastSentKey) {
			st.stats.Hits++
		} else {
			st.stats.Misses++
		}
		if w.Offset > st.lastOffset {
			st.stats.Rotations++
		}
	} else {
		// First window for this key: nothing cached upstream yet.
		st.stats.Misses++
		st.ready = true
	}

	st.lastWindow = w
	st.lastMarker = w.Marker
	st.lastPrefixKey = w.Metadata.CacheKey
	st.lastSentKey = CacheKey(w.Messages)
	st.lastOffset = w.Offset

	e.logger.Debug("prepared context window",
		zap.String("conversation", conversationID),
		zap.String("strategy", strategy.Name()),
		zap.Int("messages", len(w.Messages)),
		zap.Int("prefix", len(w.CacheablePrefix)),
		zap.Int("offset", w.Offset),
	)

	return w, nil
}

// SetContextManagement installs a participant-level strategy configuration
// and resets the state toward a fresh computation: the last window and cache
// marker are cleared, accumulated statistics survive. An unknown strategy
// name fails immediately.
func (e *Engine) SetContextManagement(conversationID, participantID string, cfg StrategyConfig) error {
	if _, err := NewStrategy(cfg); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state(conversationID, participantID)
	st.participantCfg = &cfg
	st.lastWindow = nil
	st.lastMarker = nil
	st.lastPrefixKey = ""
	st.lastSentKey = ""
	st.lastOffset = 0
	st.ready = false

	return nil
}

// RecordUsage feeds provider token accounting back into the running
// counters. Cache-read tokens are tokens the provider did not recompute.
func (e *Engine) RecordUsage(conversationID, participantID string, usage inference.Usage) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state(conversationID, participantID)
	st.stats.TokensSaved += int64(usage.CacheReadTokens)
}

// Stats returns a read-only copy of the counters for a key.
func (e *Engine) Stats(conversationID, participantID string) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state(conversationID, participantID).stats
}

// LastWindow returns the previously prepared window for a key, or nil.
func (e *Engine) LastWindow(conversationID, participantID string) *Window {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state(conversationID, participantID).lastWindow
}

// state returns the tracked state for a key, creating it UNINITIALIZED on
// first touch. Callers must hold e.mu.
func (e *Engine) state(conversationID, participantID string) *contextState {
	key := stateKey{ConversationID: conversationID, ParticipantID: participantID}
	st, ok := e.states[key]
	if !ok {
		st = &contextState{}
		e.states[key] = st
	}
	return st
}

// strategyFor returns the cached strategy instance for cfg, constructing it
// on first use. Structurally identical configurations share one instance.
// Callers must hold e.mu.
func (e *Engine) strategyFor(cfg StrategyConfig) (Strategy, error) {
	if s, ok := e.strategies[cfg]; ok {
		return s, nil
	}

	s, err := NewStrategy(cfg)
	if err != nil {
		return nil, err
	}
	e.strategies[cfg] = s

	return s, nil
}
