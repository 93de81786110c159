// Package overlay implements a small mutable JSON-document store for state
// that would otherwise bloat the event log with high-frequency, fully
// overwritable updates — branch selection being the canonical case. One JSON
// object per entity, rewritten whole on every update.
package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const docSuffix = ".json"

// Store is a per-entity key→value mapping persisted as one JSON document per
// entity, sharded by the first two characters of the entity id. Documents
// are cached in memory after first load; the cache is unbounded for the
// process lifetime.
//
// Writes replace the whole file. Concurrent writers to the same entity must
// be serialized by the caller; the store provides no cross-process locking.
type Store struct {
	root   string
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]map[string]string
}

// NewStore creates a Store rooted at root.
func NewStore(root string, logger *zap.Logger) *Store {
	return &Store{
		root:   root,
		logger: logger,
		cache:  make(map[string]map[string]string),
	}
}

// Path returns the document path for an entity: <root>/<id[0:2]>/<id>.json.
func (s *Store) Path(id string) string {
	if len(id) >= 2 {
		return filepath.Join(s.root, id[0:2], id+docSuffix)
	}
	return filepath.Join(s.root, id+docSuffix)
}

// Load returns the entity's full mapping, reading the document from disk on
// first access. A missing document is an empty mapping, not an error. The
// returned map is a copy; mutating it leaves the cache untouched.
func (s *Store) Load(id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return maps.Clone(doc), nil
}

// Get returns the value for key, or the empty string when absent.
func (s *Store) Get(id, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(id)
	if err != nil {
		return "", err
	}
	return doc[key], nil
}

// Set writes through: the cache is updated first, then the whole document is
// rewritten on disk.
func (s *Store) Set(id, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(id)
	if err != nil {
		return err
	}
	doc[key] = value

	return s.write(id, doc)
}

// Delete removes the cache entry and the document file. A missing file is
// not an error: deletion of never-touched entities must be a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, id)

	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing overlay document %s: %w", id, err)
	}
	return nil
}

// ClearCache drops the in-memory copy for id; the next access reloads from
// disk.
func (s *Store) ClearCache(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, id)
}

// load returns the cached document for id, reading it from disk on a miss.
// Callers must hold s.mu.
func (s *Store) load(id string) (map[string]string, error) {
	if doc, ok := s.cache[id]; ok {
		return doc, nil
	}

	doc := make(map[string]string)

	data, err := os.ReadFile(s.Path(id))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Empty mapping.
	case err != nil:
		return nil, fmt.Errorf("reading overlay document %s: %w", id, err)
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing overlay document %s: %w", id, err)
		}
	}

	s.cache[id] = doc
	return doc, nil
}

// write rewrites the entity's document in full. Callers must hold s.mu.
func (s *Store) write(id string, doc map[string]string) error {
	path := s.Path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating overlay shard for %s: %w", id, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling overlay document %s: %w", id, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing overlay document %s: %w", id, err)
	}

	s.logger.Debug("overlay document rewritten",
		zap.String("entity", id),
		zap.Int("keys", len(doc)),
	)

	return nil
}
