// Package compact implements offline, single-pass rewriting of one entity's
// event log: reconstructable event types are dropped, oversized debug
// payloads are stripped, and everything the compactor cannot understand
// passes through byte-for-byte. The pre-compaction original is always
// preserved under a backup suffix.
package compact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spoolhq/spool/pkg/event"
)

// BackupSuffix is appended to the original file's path before compaction.
const BackupSuffix = ".pre-compact.bak"

const maxLineBytes = 64 * 1024 * 1024

// Config parameterizes a Compactor.
type Config struct {
	// Droppable lists event types that are fully reconstructable from other
	// state and can be removed. Defaults to the branch-selection event,
	// whose current value lives in the overlay store.
	Droppable []event.Type

	// StripDebug lists event types whose debug request/response fields are
	// removed. Defaults to the inference record.
	StripDebug []event.Type

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Report summarizes one compaction run.
type Report struct {
	EventsRead          int
	EventsWritten       int
	RemovedByType       map[event.Type]int
	DebugFieldsStripped int
	PassthroughLines    int
	BytesBefore         int64
	BytesAfter          int64
	BackupPath          string
}

// Compactor rewrites event log files in place, atomically.
type Compactor struct {
	droppable  map[event.Type]bool
	stripDebug map[event.Type]bool
	logger     *zap.Logger
}

// NewCompactor creates a Compactor from c, applying defaults for empty
// drop/strip sets.
func NewCompactor(c *Config) *Compactor {
	droppable := c.Droppable
	if droppable == nil {
		droppable = []event.Type{event.TypeActiveBranchChanged}
	}

	stripDebug := c.StripDebug
	if stripDebug == nil {
		stripDebug = []event.Type{event.TypeInferenceRecorded}
	}

	cp := &Compactor{
		droppable:  make(map[event.Type]bool, len(droppable)),
		stripDebug: make(map[event.Type]bool, len(stripDebug)),
		logger:     c.Logger,
	}
	for _, t := range droppable {
		cp.droppable[t] = true
	}
	for _, t := range stripDebug {
		cp.stripDebug[t] = true
	}

	return cp
}

// CompactFile rewrites the log at path. The original is first copied to
// path + BackupSuffix (a timestamped variant when a backup from an earlier
// run already exists), the rewrite goes to a temporary file, and only after
// the rewrite fully succeeds is the temporary atomically renamed over the
// original. The backup is never deleted automatically, so a bad run is
// always reversible.
func (c *Compactor) CompactFile(path string) (*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	report := &Report{
		RemovedByType: make(map[event.Type]int),
		BytesBefore:   info.Size(),
		BackupPath:    backupTarget(path),
	}

	if err := copyFile(path, report.BackupPath); err != nil {
		return nil, fmt.Errorf("backing up %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	if err := c.rewrite(path, tmpPath, report); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("replacing %s: %w", path, err)
	}

	if info, err := os.Stat(path); err == nil {
		report.BytesAfter = info.Size()
	}

	c.logger.Info("compacted log",
		zap.String("path", path),
		zap.Int("read", report.EventsRead),
		zap.Int("written", report.EventsWritten),
		zap.Int("debug_stripped", report.DebugFieldsStripped),
		zap.Int64("bytes_before", report.BytesBefore),
		zap.Int64("bytes_after", report.BytesAfter),
	)

	return report, nil
}

// rewrite streams src into dst applying the drop and strip rules, syncing
// dst before returning.
func (c *Compactor) rewrite(src, dst string, report *Report) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		outLine, keep := c.transform(line, report)
		if !keep {
			continue
		}

		if _, err := w.Write(outLine); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
		report.EventsWritten++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", dst, err)
	}
	return out.Sync()
}

// transform applies the drop and strip rules to one line. Lines that fail to
// parse pass through unchanged — never destroy data the compactor cannot
// understand.
func (c *Compactor) transform(line []byte, report *Report) ([]byte, bool) {
	var ev event.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		report.PassthroughLines++
		c.logger.Warn("passing through unparseable line", zap.Error(err))
		return line, true
	}
	report.EventsRead++

	if c.droppable[ev.Type] {
		report.RemovedByType[ev.Type]++
		return nil, false
	}

	if c.stripDebug[ev.Type] {
		stripped, changed, err := stripDebugFields(ev.Data)
		if err != nil {
			// Unexpected payload shape: pass the original through.
			return line, true
		}
		if changed {
			ev.Data = stripped
			report.DebugFieldsStripped++

			out, err := json.Marshal(ev)
			if err != nil {
				return line, true
			}
			return out, true
		}
	}

	return line, true
}

// stripDebugFields removes the debug_request and debug_response members from
// a payload object, reporting whether anything was removed.
func stripDebugFields(data json.RawMessage) (json.RawMessage, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false, err
	}

	changed := false
	for _, key := range []string{"debug_request", "debug_response"} {
		if _, ok := fields[key]; ok {
			delete(fields, key)
			changed = true
		}
	}
	if !changed {
		return data, false, nil
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// backupTarget picks the backup path for path. The plain suffix is used
// unless a previous run already left a backup there; repeated runs get a
// timestamped name so no pre-compaction original is ever overwritten.
func backupTarget(path string) string {
	candidate := path + BackupSuffix
	if _, err := os.Stat(candidate); err != nil {
		return candidate
	}
	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	return candidate + "." + stamp
}

// copyFile copies src to dst byte-for-byte and syncs dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
