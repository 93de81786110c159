package replay

import (
	"fmt"

	"github.com/spoolhq/spool/pkg/event"
	"github.com/spoolhq/spool/pkg/overlay"
)

// ApplySelections merges branch-selection overlay documents into the
// reconstructed conversations. The overlay holds the current selection per
// (conversation, message); log-replayed selections are only the historical
// baseline. A selection referencing a missing message or branch is skipped
// with a diagnostic — the active-branch invariant always holds afterward.
func (r *Replayer) ApplySelections(st *State, selections *overlay.Store) error {
	for id, c := range st.Conversations {
		doc, err := selections.Load(id)
		if err != nil {
			return fmt.Errorf("loading selections for conversation %s: %w", id, err)
		}

		for messageID, branchID := range doc {
			m := c.Message(messageID)
			if m == nil {
				r.skip(event.TypeActiveBranchChanged, "selection for unknown message "+messageID)
				continue
			}
			if m.Branch(branchID) == nil {
				r.skip(event.TypeActiveBranchChanged, "selection of unknown branch "+branchID+" on message "+messageID)
				continue
			}
			m.ActiveBranchID = branchID
		}
	}

	return nil
}
