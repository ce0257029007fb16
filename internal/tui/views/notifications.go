package views

import (
	"github.com/peerflex/peerflex/internal/services"
	"github.com/rivo/tview"
)

// NotificationList shows the user's notifications, newest first.
type NotificationList struct {
	*tview.Table
	notifications []services.Notification
}

// NewNotificationList creates the notification table.
func NewNotificationList() *NotificationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Notifications ")
	return &NotificationList{Table: table}
}

// Update refreshes the table from a notification snapshot.
func (nl *NotificationList) Update(notifications []services.Notification) {
	nl.notifications = notifications
	nl.Clear()

	nl.SetCell(0, 0, tview.NewTableCell(" ").SetSelectable(false))
	nl.SetCell(0, 1, tview.NewTableCell(" Title").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	nl.SetCell(0, 2, tview.NewTableCell(" When").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, n := range notifications {
		row := i + 1
		marker := " "
		if !n.Read {
			marker = "*"
		}
		nl.SetCell(row, 0, tview.NewTableCell(" "+marker))
		nl.SetCell(row, 1, tview.NewTableCell(" "+n.Title).SetExpansion(1))
		nl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(n.CreatedAt)).SetMaxWidth(12))
	}
}

// SelectedNotification returns the id of the highlighted notification, or "".
func (nl *NotificationList) SelectedNotification() string {
	row, _ := nl.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(nl.notifications) {
		return nl.notifications[idx].ID
	}
	return ""
}
