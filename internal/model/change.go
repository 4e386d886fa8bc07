package model

import "time"

// ChangeOp is the kind of row mutation carried by a change notification.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"

	// ChangeResync tells a stream consumer that it missed changes and must
	// reload everything it shows.
	ChangeResync ChangeOp = "RESYNC"
)

// Change is a realtime notification that a row in a workspace table changed.
type Change struct {
	Op          ChangeOp  `json:"op"`
	Table       Table     `json:"table"`
	WorkspaceID string    `json:"workspace_id"`
	RowID       string    `json:"row_id"`
	At          time.Time `json:"at"`
}
