package views

import (
	"fmt"

	"github.com/peerflex/peerflex/internal/services"
	"github.com/rivo/tview"
)

// MessageThread displays the open room's messages.
type MessageThread struct {
	*tview.TextView
	selfID string
}

// NewMessageThread creates the thread view.
func NewMessageThread() *MessageThread {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")
	return &MessageThread{TextView: tv}
}

// SetSelf tells the thread which author id is the signed-in user.
func (mt *MessageThread) SetSelf(userID string) {
	mt.selfID = userID
}

// SetConversationName updates the title.
func (mt *MessageThread) SetConversationName(name string) {
	mt.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update refreshes the thread, oldest message first.
func (mt *MessageThread) Update(msgs []services.Message) {
	mt.Clear()

	for _, m := range msgs {
		author := m.AuthorID
		if m.AuthorID == mt.selfID {
			author = "You"
		}
		body := m.Content
		if m.Kind != "" && m.Kind != "text" {
			body = fmt.Sprintf("[%s] %s", m.Kind, m.Content)
		}

		ts := formatTimestamp(m.CreatedAt)
		_, _ = fmt.Fprintf(mt, "[::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n", author, ts, body)
	}

	mt.ScrollToEnd()
}
