// Package statscmder provides the stats command for summarizing the storage
// root: per-class entity counts, event counts, and byte sizes.
package statscmder

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spoolhq/spool/pkg/cliui"
	"github.com/spoolhq/spool/pkg/config"
)

const statsLongDesc string = `Walk the storage root and print, per entity class, the number of logs,
their total line count, and their byte size.

Examples:
  spool stats`

const statsShortDesc string = "Summarize the storage root"

type classStats struct {
	logs  int
	lines int
	bytes int64
}

func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: statsShortDesc,
		Long:  statsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return runStats(dir)
		},
	}

	return cmd
}

func runStats(dir string) error {
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return err
	}
	root, err := cfger.StoreRoot(cfg, dir)
	if err != nil {
		return err
	}

	classes := make(map[string]*classStats)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".jsonl") && !strings.HasSuffix(name, ".json") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		class := strings.Split(rel, string(filepath.Separator))[0]

		cs, ok := classes[class]
		if !ok {
			cs = &classStats{}
			classes[class] = cs
		}
		cs.logs++

		info, err := d.Info()
		if err != nil {
			return err
		}
		cs.bytes += info.Size()

		if strings.HasSuffix(name, ".jsonl") {
			lines, err := countLines(path)
			if err != nil {
				return err
			}
			cs.lines += lines
		}

		return nil
	})
	if err != nil && os.IsNotExist(err) {
		err = nil
	}
	if err != nil {
		return err
	}

	if len(classes) == 0 {
		fmt.Printf("  %s Empty store at %s\n", cliui.DimStyle.Render("●"), root)
		return nil
	}

	fmt.Printf("\n  %s %s\n\n", cliui.KeyStyle.Render("Store:"), cliui.NameStyle.Render(root))
	for _, class := range []string{"global", "users", "conversations", "selections"} {
		cs, ok := classes[class]
		if !ok {
			continue
		}
		fmt.Printf("  %s %4d files, %6d events, %8d bytes\n",
			cliui.KeyStyle.Render(fmt.Sprintf("%-14s", class)),
			cs.logs, cs.lines, cs.bytes,
		)
	}
	fmt.Println()

	return nil
}

func countLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	return lines, nil
}
