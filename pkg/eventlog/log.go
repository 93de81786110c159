// Package eventlog implements the durability primitive of the store: one
// append-only file of newline-delimited JSON events per entity, plus a
// bounded pool of open log handles.
package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/spoolhq/spool/pkg/event"
)

// maxLineBytes bounds a single log line during streaming reads. Debug
// payloads on inference events can run into the tens of megabytes.
const maxLineBytes = 64 * 1024 * 1024

// ErrClosed is returned by operations on a closed log.
var ErrClosed = errors.New("event log is closed")

// Log is one entity's append-only event file. Appends are serialized by an
// internal mutex; a caller that receives a nil error from Append is
// guaranteed the event survives a crash.
type Log struct {
	id     string
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// Open creates a Log for the entity id rooted at root. The underlying file
// is opened lazily on first append; a log whose file does not exist yet
// behaves as an empty sequence.
func Open(root, id string, logger *zap.Logger) *Log {
	return &Log{
		id:     id,
		path:   ShardedPath(root, id),
		logger: logger,
	}
}

// ID returns the entity identifier this log belongs to.
func (l *Log) ID() string { return l.id }

// Path returns the sharded file path backing this log.
func (l *Log) Path() string { return l.path }

// Append serializes the event as one JSON line, writes it, and syncs before
// returning. A non-nil error means the event must be assumed not durably
// recorded.
func (l *Log) Append(ev event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if l.file == nil {
		if err := l.open(); err != nil {
			return err
		}
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("writing event to %s: %w", l.path, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", l.path, err)
	}

	return nil
}

// LoadAll streams the log file line by line and returns all events oldest
// first. Malformed lines are logged and skipped so one corrupt record never
// makes the log unreadable. A missing file is an empty sequence, not an
// error.
func (l *Log) LoadAll() ([]event.Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", l.path, err)
	}
	defer f.Close()

	var events []event.Event

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev event.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			l.logger.Error("skipping malformed log line",
				zap.String("entity", l.id),
				zap.Int("line", lineNo),
				zap.Error(err),
			)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", l.path, err)
	}

	return events, nil
}

// Close syncs and releases the file handle. The log can be reopened by a
// fresh Open; Close exists so the pool can evict handles without losing
// buffered writes.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.file == nil {
		return nil
	}

	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("syncing %s on close: %w", l.path, err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", l.path, err)
	}
	l.file = nil

	return nil
}

// open creates the shard directories and opens the file for appending.
// Callers must hold l.mu.
func (l *Log) open() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating shard directory for %s: %w", l.id, err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", l.path, err)
	}
	l.file = f

	return nil
}
