// Package compactcmder provides the compact command for rewriting
// conversation event logs offline.
package compactcmder

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spoolhq/spool/pkg/cliui"
	"github.com/spoolhq/spool/pkg/compact"
	"github.com/spoolhq/spool/pkg/config"
	"github.com/spoolhq/spool/pkg/eventlog"
	"github.com/spoolhq/spool/pkg/logger"
)

const compactLongDesc string = `Rewrite a conversation's event log, dropping events that are fully
reconstructable from other state (branch selections now live in the overlay
store) and stripping oversized debug payloads from inference records.

The original file is preserved next to the compacted one under a
.pre-compact.bak suffix and is never deleted automatically.

Examples:
  spool compact 2f4a1c0e-...        Compact one conversation log
  spool compact --all               Compact every conversation log`

const compactShortDesc string = "Compact conversation event logs"

func NewCompactCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "compact [conversation-id]",
		Short: compactShortDesc,
		Long:  compactLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			dir, _ := cmd.Flags().GetString("dir")

			if !all && len(args) == 0 {
				return fmt.Errorf("a conversation id or --all is required")
			}

			if all {
				return runCompactAll(dir, debug)
			}
			return runCompact(dir, debug, args[0])
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Compact every conversation log under the storage root")

	return cmd
}

func runCompact(dir string, debug bool, conversationID string) error {
	root, cp, err := setup(dir, debug)
	if err != nil {
		return err
	}

	path := eventlog.ShardedPath(filepath.Join(root, "conversations"), conversationID)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no log for conversation %s: %w", conversationID, err)
	}

	var report *compact.Report
	err = cliui.Step(os.Stdout, "Compacting "+conversationID, func() error {
		var err error
		report, err = cp.CompactFile(path)
		return err
	})
	if err != nil {
		return err
	}

	printReport(conversationID, report)
	return nil
}

func runCompactAll(dir string, debug bool) error {
	root, cp, err := setup(dir, debug)
	if err != nil {
		return err
	}

	convRoot := filepath.Join(root, "conversations")
	err = filepath.WalkDir(convRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}

		id := strings.TrimSuffix(d.Name(), ".jsonl")
		report, err := cp.CompactFile(path)
		if err != nil {
			return fmt.Errorf("compacting %s: %w", id, err)
		}
		printReport(id, report)
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		fmt.Println("  No conversation logs found.")
		return nil
	}
	return err
}

// setup resolves the storage root and builds a compactor with defaults.
func setup(dir string, debug bool) (string, *compact.Compactor, error) {
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return "", nil, err
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return "", nil, err
	}
	root, err := cfger.StoreRoot(cfg, dir)
	if err != nil {
		return "", nil, err
	}

	cp := compact.NewCompactor(&compact.Config{
		Logger: logger.NewLogger(debug),
	})

	return root, cp, nil
}

func printReport(id string, r *compact.Report) {
	fmt.Printf("\n  %s %s\n", cliui.KeyStyle.Render("Conversation:"), cliui.NameStyle.Render(id))
	fmt.Printf("  %s %d read, %d written, %d debug fields stripped\n",
		cliui.KeyStyle.Render("Events:      "),
		r.EventsRead, r.EventsWritten, r.DebugFieldsStripped,
	)
	for t, n := range r.RemovedByType {
		fmt.Printf("  %s %d × %s\n", cliui.KeyStyle.Render("Removed:     "), n, t)
	}
	if r.PassthroughLines > 0 {
		fmt.Printf("  %s %d unparseable lines preserved\n", cliui.KeyStyle.Render("Passthrough: "), r.PassthroughLines)
	}
	fmt.Printf("  %s %d → %d bytes\n", cliui.KeyStyle.Render("Size:        "), r.BytesBefore, r.BytesAfter)
	fmt.Printf("  %s %s\n\n", cliui.KeyStyle.Render("Backup:      "), cliui.DimStyle.Render(r.BackupPath))
}
