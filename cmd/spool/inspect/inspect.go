// Package inspectcmder provides the inspect command for replaying a
// conversation's logs and printing the reconstructed message tree.
package inspectcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spoolhq/spool/pkg/chat"
	"github.com/spoolhq/spool/pkg/cliui"
	"github.com/spoolhq/spool/pkg/config"
	"github.com/spoolhq/spool/pkg/logger"
	"github.com/spoolhq/spool/pkg/storage"
	"github.com/spoolhq/spool/pkg/utils"
)

const inspectLongDesc string = `Replay the event logs and print one conversation's reconstructed tree:
messages in creation order, each with its branch count and active branch.

Replay diagnostics (skipped events, unresolvable references) are summarized
at the end.

Examples:
  spool inspect 2f4a1c0e-...`

const inspectShortDesc string = "Replay and print a conversation tree"

func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <conversation-id>",
		Short: inspectShortDesc,
		Long:  inspectLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			dir, _ := cmd.Flags().GetString("dir")
			return runInspect(dir, debug, args[0])
		},
	}

	return cmd
}

func runInspect(dir string, debug bool, conversationID string) error {
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

	store, err := storage.NewStore(&storage.Config{
		Root:        root,
		MaxOpenLogs: cfg.Storage.MaxOpenLogs,
		Logger:      logger.NewLogger(debug),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	state, replayer, err := store.ReplayAll(context.Background())
	if err != nil {
		return fmt.Errorf("replaying logs: %w", err)
	}

	conv, ok := state.Conversations[conversationID]
	if !ok {
		fmt.Printf("  %s Conversation %s not found.\n", cliui.DimStyle.Render("●"), conversationID)
		return nil
	}

	printConversation(conv)

	if n := replayer.Skipped(); n > 0 {
		fmt.Printf("  %s %d events skipped during replay (run with --debug for details)\n\n",
			cliui.DimStyle.Render("!"), n)
	}

	return nil
}

func printConversation(conv *chat.Conversation) {
	title := conv.Title
	if title == "" {
		title = "(untitled)"
	}

	fmt.Printf("\n  %s %s\n", cliui.KeyStyle.Render("Conversation:"), cliui.NameStyle.Render(title))
	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Owner:       "), conv.UserID)
	fmt.Printf("  %s %d\n\n", cliui.KeyStyle.Render("Messages:    "), len(conv.Messages))

	for i, m := range conv.Messages {
		active, err := m.ActiveBranch()
		if err != nil {
			fmt.Printf("  %s %s %s\n",
				cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)),
				cliui.FailMark,
				err.Error(),
			)
			continue
		}

		preview := utils.Truncate(active.Content, 72)
		branches := ""
		if len(m.Branches) > 1 {
			branches = cliui.DimStyle.Render(fmt.Sprintf(" (+%d branches)", len(m.Branches)-1))
		}

		fmt.Printf("  %s %s %s%s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)),
			cliui.RoleStyle.Render("["+string(active.Role)+"]"),
			cliui.PreviewStyle.Render(preview),
			branches,
		)
	}

	fmt.Println()
}
