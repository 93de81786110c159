package eventlog

import (
	"container/list"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spoolhq/spool/pkg/event"
	"github.com/spoolhq/spool/pkg/eventstream"
)

const defaultMaxOpenLogs = 512

// Config is the configuration options for a log handle pool.
type Config struct {
	// Root is the storage directory for this entity class's logs.
	Root string

	// MaxOpenLogs bounds concurrently open file handles (defaults to 512).
	// Operating systems cap open descriptors, historically as low as 1024,
	// while a chat system may hold orders of magnitude more conversations.
	MaxOpenLogs int

	// Publisher, when set, is notified after every durable append. Publish
	// failures are logged, never propagated: the append already happened.
	Publisher eventstream.Publisher

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Pool keeps at most MaxOpenLogs per-entity Log instances open, evicting the
// least-recently-used handle when the bound is reached. All writes for an
// entity flow through the single pooled instance, which serializes them.
type Pool struct {
	config *Config
	logger *zap.Logger

	mu    sync.Mutex
	logs  map[string]*list.Element // id -> element in order
	order *list.List               // front = most recently used
}

// poolEntry is the LRU list payload.
type poolEntry struct {
	id  string
	log *Log
}

// NewPool creates a handle pool rooted at c.Root.
func NewPool(c *Config) *Pool {
	if c.MaxOpenLogs <= 0 {
		c.MaxOpenLogs = defaultMaxOpenLogs
	}

	return &Pool{
		config: c,
		logger: c.Logger,
		logs:   make(map[string]*list.Element),
		order:  list.New(),
	}
}

// Writable returns the pooled Log for id, promoting it to most recently
// used. When the pool is full the least-recently-used log's handle is closed
// (never deleted) and the entry dropped before the new one is admitted.
func (p *Pool) Writable(id string) (*Log, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if el, ok := p.logs[id]; ok {
		p.order.MoveToFront(el)
		return el.Value.(*poolEntry).log, nil
	}

	if p.order.Len() >= p.config.MaxOpenLogs {
		if err := p.evictOldest(); err != nil {
			return nil, err
		}
	}

	log := Open(p.config.Root, id, p.logger)
	p.logs[id] = p.order.PushFront(&poolEntry{id: id, log: log})

	return log, nil
}

// Append routes a write for id through the pooled log instance so that all
// appends targeting one entity are serialized by a single owner.
func (p *Pool) Append(ctx context.Context, id string, ev event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	log, err := p.Writable(id)
	if err != nil {
		return err
	}
	if err := log.Append(ev); err != nil {
		return err
	}

	p.publish(ctx, id, ev)
	return nil
}

// LoadEvents reads all events for id through a transient, uncached Log so
// reads never consume a pooled handle. A missing log file yields an empty
// sequence.
func (p *Pool) LoadEvents(ctx context.Context, id string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Open(p.config.Root, id, p.logger).LoadAll()
}

// Walk enumerates every entity log under the pool root, lazily loading one
// transient log per discovered id and invoking fn with its events. A root
// that does not exist yet is an empty result, not an error.
func (p *Pool) Walk(ctx context.Context, fn func(id string, events []event.Event) error) error {
	err := filepath.WalkDir(p.config.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), logSuffix) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		id := strings.TrimSuffix(d.Name(), logSuffix)
		events, err := Open(p.config.Root, id, p.logger).LoadAll()
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		return fn(id, events)
	})
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// OpenCount reports how many pooled handles are currently held.
func (p *Pool) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

// Close flushes and releases all pooled handles. Required at shutdown to
// guarantee durability and avoid descriptor leaks.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for el := p.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*poolEntry)
		if err := entry.log.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.logs = make(map[string]*list.Element)
	p.order.Init()

	return firstErr
}

// evictOldest closes and drops the least-recently-used log. Callers must
// hold p.mu. Close syncs before releasing the handle, so eviction never
// loses a buffered write.
func (p *Pool) evictOldest() error {
	el := p.order.Back()
	if el == nil {
		return nil
	}
	entry := el.Value.(*poolEntry)

	if err := entry.log.Close(); err != nil {
		return fmt.Errorf("evicting log %s: %w", entry.id, err)
	}

	p.order.Remove(el)
	delete(p.logs, entry.id)

	p.logger.Debug("evicted log handle",
		zap.String("entity", entry.id),
		zap.Int("open", p.order.Len()),
	)

	return nil
}

// publish notifies the configured publisher of a durable append.
func (p *Pool) publish(ctx context.Context, id string, ev event.Event) {
	if p.config.Publisher == nil {
		return
	}

	if err := p.config.Publisher.PublishAppend(ctx, eventstream.NewAppendEvent(id, ev)); err != nil {
		p.logger.Error("publishing append event",
			zap.String("entity", id),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
