package views

import (
	"fmt"
	"time"

	"github.com/peerflex/peerflex/internal/services"
	"github.com/rivo/tview"
)

// ConversationList is the roster table.
type ConversationList struct {
	*tview.Table
	conversations []services.Conversation
}

// NewConversationList creates the roster table.
func NewConversationList() *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")
	return &ConversationList{Table: table}
}

// Update refreshes the table from a roster snapshot.
func (cl *ConversationList) Update(convs []services.Conversation) {
	cl.conversations = convs
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, c := range convs {
		row := i + 1
		name := c.Name
		if name == "" {
			name = c.RoomID
		}
		if c.Unread > 0 {
			name = fmt.Sprintf("* %s (%d)", name, c.Unread)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+c.Preview).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(c.LastActivity)).SetMaxWidth(12))
	}
}

// SelectedConversation returns the id of the highlighted conversation, or "".
func (cl *ConversationList) SelectedConversation() string {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.conversations) {
		return cl.conversations[idx].ID
	}
	return ""
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
