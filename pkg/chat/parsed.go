package chat

import "time"

// ParsedMessage is the flat record produced by third-party export parsers
// (ChatGPT, Claude, etc. — external collaborators). pkg/ingest folds these
// into the Message/Branch model via ordinary creation events.
type ParsedMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`

	// Group identifies the conversational position this record belongs to.
	// Records sharing a Group are alternative branches of one message; the
	// first record of a group creates the message.
	Group int `json:"group"`

	// ParentIndex is the index (into the parsed slice) of the branch this
	// record was edited or regenerated from, or -1 when it has no parent.
	ParentIndex int `json:"parent_index"`

	// Active marks the branch selected at export time.
	Active bool `json:"active"`
}
