package views

import (
	"github.com/peerflex/peerflex/internal/services"
	"github.com/rivo/tview"
)

// ConnectionList shows pending connection requests addressed to the user.
type ConnectionList struct {
	*tview.Table
	pending []services.ConnectionStatus
}

// NewConnectionList creates the pending-request table.
func NewConnectionList() *ConnectionList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Connection Requests ")
	return &ConnectionList{Table: table}
}

// Update refreshes the table from a pending-request snapshot.
func (cl *ConnectionList) Update(pending []services.ConnectionStatus) {
	cl.pending = pending
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" Request").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" State").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, p := range pending {
		row := i + 1
		cl.SetCell(row, 0, tview.NewTableCell(" "+p.RequestID).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+string(p.State)))
	}
}

// SelectedRequest returns the id of the highlighted request, or "".
func (cl *ConnectionList) SelectedRequest() string {
	row, _ := cl.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(cl.pending) {
		return cl.pending[idx].RequestID
	}
	return ""
}
