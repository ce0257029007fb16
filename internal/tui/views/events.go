package views

import (
	"fmt"

	"github.com/peerflex/peerflex/internal/services"
	"github.com/rivo/tview"
)

// EventList shows upcoming campus events.
type EventList struct {
	*tview.Table
	events []services.Event
}

// NewEventList creates the event table.
func NewEventList() *EventList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Events ")
	return &EventList{Table: table}
}

// Update refreshes the table from an event snapshot.
func (el *EventList) Update(events []services.Event) {
	el.events = events
	el.Clear()

	el.SetCell(0, 0, tview.NewTableCell(" Title").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	el.SetCell(0, 1, tview.NewTableCell(" Where").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	el.SetCell(0, 2, tview.NewTableCell(" When").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	el.SetCell(0, 3, tview.NewTableCell(" Spots").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, e := range events {
		row := i + 1
		spots := "open"
		if e.Capacity > 0 {
			spots = fmt.Sprintf("%d/%d", e.AttendeeCount, e.Capacity)
		}
		el.SetCell(row, 0, tview.NewTableCell(" "+e.Title).SetMaxWidth(30).SetExpansion(2))
		el.SetCell(row, 1, tview.NewTableCell(" "+e.Location).SetMaxWidth(24).SetExpansion(1))
		el.SetCell(row, 2, tview.NewTableCell(" "+e.StartsAt.Format("Jan 02 15:04")).SetMaxWidth(14))
		el.SetCell(row, 3, tview.NewTableCell(" "+spots).SetMaxWidth(10))
	}
}

// SelectedEvent returns the id of the highlighted event, or "".
func (el *EventList) SelectedEvent() string {
	row, _ := el.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(el.events) {
		return el.events[idx].ID
	}
	return ""
}
