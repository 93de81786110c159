// Package spoolcmder
package spoolcmder

import (
	"github.com/spf13/cobra"

	compactcmder "github.com/spoolhq/spool/cmd/spool/compact"
	configcmder "github.com/spoolhq/spool/cmd/spool/config"
	inspectcmder "github.com/spoolhq/spool/cmd/spool/inspect"
	statscmder "github.com/spoolhq/spool/cmd/spool/stats"
	versioncmder "github.com/spoolhq/spool/cmd/spool/version"
)

const spoolLongDesc string = `Spool is the event-sourced conversation store.

Conversations live as branching message trees reconstructed from append-only
event logs on local disk.

Maintenance commands:
  spool compact     Rewrite a conversation log, dropping reconstructable events
  spool inspect     Replay a conversation and print its tree
  spool stats       Summarize the storage root
  spool config      Manage persistent configuration`

const spoolShortDesc string = "Spool - Conversation Store"

func NewSpoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spool",
		Short: spoolShortDesc,
		Long:  spoolLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("dir", "", "Override the .spool/ directory")

	// Add subcommands
	cmd.AddCommand(compactcmder.NewCompactCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(inspectcmder.NewInspectCmd())
	cmd.AddCommand(statscmder.NewStatsCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
