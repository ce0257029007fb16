package chatview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/peerflex/peerflex/internal/bus"
	"github.com/peerflex/peerflex/internal/services"
	"go.uber.org/zap"
)

// ChatAPI is the slice of the chat service the view depends on.
type ChatAPI interface {
	GetConversations(ctx context.Context) ([]services.Conversation, error)
	GetMessages(ctx context.Context, roomID string) ([]services.Message, error)
	SendMessage(ctx context.Context, roomID, content string) (services.Message, error)
	MarkAsRead(ctx context.Context, roomID string) error
	SubscribeToMessages(roomID string, fn func(services.Message)) (services.Subscription, error)
	SubscribeToConversations(fn func()) (services.Subscription, error)
}

// View holds the client-side conversation state: the roster, the open room's
// messages, and the loading/error flags the TUI renders from. All mutation
// funnels through the view under one mutex; the TUI reads via snapshot
// accessors and redraws on bus events.
//
// The view trusts the server for unread counts. It never zeroes a count
// locally; counts change only when a roster reload brings fresh rows.
type View struct {
	chat   ChatAPI
	bus    *bus.Bus
	logger *zap.Logger

	mu            sync.Mutex
	conversations []services.Conversation
	messages      []services.Message
	currentID     string
	loading       bool
	errText       string

	roomSub   services.Subscription
	rosterSub services.Subscription
}

// New creates a view over the chat service.
func New(chat ChatAPI, b *bus.Bus, logger *zap.Logger) *View {
	return &View{chat: chat, bus: b, logger: logger}
}

// Start registers the always-on roster listener. Any pushed change that can
// affect the conversation list triggers a silent reload. A failed
// registration is logged and the view keeps working pull-only.
func (v *View) Start(ctx context.Context) {
	sub, err := v.chat.SubscribeToConversations(func() {
		go func() {
			if err := v.LoadConversations(ctx, true); err != nil {
				v.logger.Warn("silent roster reload failed", zap.Error(err))
			}
		}()
	})
	if err != nil {
		v.logger.Warn("roster subscription failed", zap.Error(err))
		return
	}
	v.mu.Lock()
	v.rosterSub = sub
	v.mu.Unlock()
}

// Stop tears down all live push registrations.
func (v *View) Stop() {
	v.mu.Lock()
	roomSub, rosterSub := v.roomSub, v.rosterSub
	v.roomSub, v.rosterSub = nil, nil
	v.mu.Unlock()
	if roomSub != nil {
		roomSub.Unsubscribe()
	}
	if rosterSub != nil {
		rosterSub.Unsubscribe()
	}
}

// LoadConversations fetches the roster. When silent, the loading flag and
// error text are left alone so a background refresh never flashes the UI.
// Whichever call resolves last owns the roster; concurrent loads are not
// serialized.
func (v *View) LoadConversations(ctx context.Context, silent bool) error {
	if !silent {
		v.mu.Lock()
		v.loading = true
		v.errText = ""
		v.mu.Unlock()
		v.signal("chat.roster")
	}

	convs, err := v.chat.GetConversations(ctx)

	v.mu.Lock()
	if !silent {
		v.loading = false
	}
	if err != nil {
		if !silent {
			v.errText = err.Error()
		}
		v.mu.Unlock()
		v.signal("chat.roster")
		return err
	}
	v.conversations = convs
	v.mu.Unlock()

	v.signal("chat.roster")
	return nil
}

// SelectConversation opens a conversation: it swaps the per-room push
// listener, fetches the room's messages, and only after they are in marks
// the room read on the server. An id not present in the roster is a no-op.
func (v *View) SelectConversation(ctx context.Context, id string) error {
	v.mu.Lock()
	var found bool
	for _, c := range v.conversations {
		if c.ID == id {
			found = true
			break
		}
	}
	if !found {
		v.mu.Unlock()
		return nil
	}
	oldSub := v.roomSub
	v.roomSub = nil
	v.currentID = id
	v.loading = true
	v.errText = ""
	roomID := v.roomIDForLocked(id)
	v.mu.Unlock()

	// The old room's listener dies before the new one is born, so at most
	// one per-room registration is ever live.
	if oldSub != nil {
		oldSub.Unsubscribe()
	}
	v.signal("chat.message")

	msgs, err := v.chat.GetMessages(ctx, roomID)

	v.mu.Lock()
	v.loading = false
	if err != nil {
		v.errText = err.Error()
		v.mu.Unlock()
		v.signal("chat.message")
		return err
	}
	v.messages = msgs
	v.mu.Unlock()

	if err := v.chat.MarkAsRead(ctx, roomID); err != nil {
		v.logger.Warn("mark as read failed", zap.String("room", roomID), zap.Error(err))
	}

	sub, err := v.chat.SubscribeToMessages(roomID, v.mergePush)
	if err != nil {
		v.logger.Warn("room subscription failed", zap.String("room", roomID), zap.Error(err))
	} else {
		v.mu.Lock()
		stillCurrent := v.currentID == id
		if stillCurrent {
			v.roomSub = sub
		}
		v.mu.Unlock()
		if !stillCurrent {
			sub.Unsubscribe()
		}
	}

	v.signal("chat.message")
	return nil
}

// SendMessage submits a message and leaves local state untouched. The sent
// message becomes visible when the change feed echoes it back, so the thread
// shows exactly what the server stored.
func (v *View) SendMessage(ctx context.Context, content string) error {
	v.mu.Lock()
	roomID := v.roomIDForLocked(v.currentID)
	v.mu.Unlock()
	if roomID == "" {
		return errors.New("no conversation selected")
	}
	_, err := v.chat.SendMessage(ctx, roomID, content)
	return err
}

// Refresh reloads the roster in the foreground. The open room is left alone:
// its live listener keeps the thread current, and re-selecting here would
// re-run MarkAsRead and churn the subscription for no new data.
func (v *View) Refresh(ctx context.Context) error {
	return v.LoadConversations(ctx, false)
}

// mergePush folds a pushed message into the open thread. Appends are deduped
// by message id, but the conversation row's preview and activity stamp are
// refreshed even for a duplicate, because a redelivery still proves the room
// is the most recent one.
func (v *View) mergePush(msg services.Message) {
	v.mu.Lock()
	duplicate := false
	for _, m := range v.messages {
		if m.ID == msg.ID {
			duplicate = true
			break
		}
	}
	if !duplicate {
		v.messages = append(v.messages, msg)
	}
	for i := range v.conversations {
		if v.conversations[i].RoomID == msg.RoomID {
			v.conversations[i].Preview = msg.Content
			if msg.CreatedAt.After(v.conversations[i].LastActivity) {
				v.conversations[i].LastActivity = msg.CreatedAt
			}
			break
		}
	}
	v.mu.Unlock()

	v.signal("chat.message")
}

// Conversations returns a snapshot of the roster.
func (v *View) Conversations() []services.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]services.Conversation, len(v.conversations))
	copy(out, v.conversations)
	return out
}

// Messages returns a snapshot of the open room's thread.
func (v *View) Messages() []services.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]services.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Current returns the id of the open conversation, or "".
func (v *View) Current() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentID
}

// Loading reports whether a foreground fetch is in flight.
func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// Err returns the last foreground fetch error, or "".
func (v *View) Err() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errText
}

// roomIDForLocked resolves a conversation id to its room id. Callers hold mu.
func (v *View) roomIDForLocked(id string) string {
	for _, c := range v.conversations {
		if c.ID == id {
			return c.RoomID
		}
	}
	return id
}

func (v *View) signal(kind string) {
	if v.bus == nil {
		return
	}
	v.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now()})
}
