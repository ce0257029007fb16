package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peerflex/peerflex/internal/backend"
	"go.uber.org/zap"
)

// ConversationKind distinguishes one-on-one rooms from group rooms.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// Conversation is the sidebar view-model derived from a room.
type Conversation struct {
	ID           string
	RoomID       string
	Kind         ConversationKind
	Name         string
	Preview      string
	LastActivity time.Time
	Unread       int
	Initials     string
	OtherUserID  string // set for direct conversations only
}

// Message is a chat message in a room. ReadBy grows monotonically; all other
// fields are immutable once stored.
type Message struct {
	ID        string
	RoomID    string
	AuthorID  string
	Content   string
	Kind      string // text, image or file
	CreatedAt time.Time
	ReadBy    []string
}

// Subscription is a live push registration; Unsubscribe is its only operation.
type Subscription interface {
	Unsubscribe()
}

// ChatService wraps the backend's rooms/messages tables with domain-shaped
// calls. It holds no cross-call state.
type ChatService struct {
	client *backend.Client
	feed   *backend.Feed
	logger *zap.Logger
}

// NewChatService creates a chat service.
func NewChatService(client *backend.Client, feed *backend.Feed, logger *zap.Logger) *ChatService {
	return &ChatService{client: client, feed: feed, logger: logger}
}

// conversationRow is the shape of the conversation_summaries view, one row
// per room the signed-in user is a member of.
type conversationRow struct {
	RoomID        backend.FlexID `json:"room_id"`
	Kind          string         `json:"kind"`
	Name          string         `json:"name"`
	OtherUserID   backend.FlexID `json:"other_user_id"`
	OtherUserName string         `json:"other_user_name"`
	LastMessage   string         `json:"last_message"`
	LastActivity  string         `json:"last_activity"`
	UnreadCount   int            `json:"unread_count"`
}

// messageRow is the shape of a messages table row.
type messageRow struct {
	ID        backend.FlexID `json:"id"`
	RoomID    backend.FlexID `json:"room_id"`
	AuthorID  backend.FlexID `json:"author_id"`
	Content   string         `json:"content"`
	Kind      string         `json:"kind"`
	CreatedAt string         `json:"created_at"`
	ReadBy    []any          `json:"read_by"`
}

// GetConversations returns the signed-in user's conversation list sorted by
// last activity, newest first.
func (s *ChatService) GetConversations(ctx context.Context) ([]Conversation, error) {
	if _, err := s.client.RequireSession(); err != nil {
		return nil, err
	}

	rows, err := s.client.Query(ctx, "conversation_summaries", backend.QueryOptions{
		Order: "last_activity.desc",
		Limit: 200,
	})
	if err != nil {
		return nil, fmt.Errorf("get conversations: %w", err)
	}

	convs := make([]Conversation, 0, len(rows))
	for _, raw := range rows {
		var row conversationRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("get conversations: decode row: %w", err)
		}
		convs = append(convs, row.toConversation())
	}
	return convs, nil
}

// GetMessages returns all messages of a room in creation order.
func (s *ChatService) GetMessages(ctx context.Context, roomID string) ([]Message, error) {
	if _, err := s.client.RequireSession(); err != nil {
		return nil, err
	}

	rows, err := s.client.Query(ctx, "messages", backend.QueryOptions{
		Filters: []backend.Filter{backend.Eq("room_id", roomID)},
		Order:   "created_at.asc",
		Limit:   500,
	})
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	msgs := make([]Message, 0, len(rows))
	for _, raw := range rows {
		var row messageRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("get messages: decode row: %w", err)
		}
		msgs = append(msgs, row.toMessage())
	}
	return msgs, nil
}

// SendMessage persists a message remotely and returns the stored row. It
// performs no local bookkeeping; the message reaches view state only through
// the change feed echo.
func (s *ChatService) SendMessage(ctx context.Context, roomID, content string) (Message, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return Message{}, err
	}

	// client_msg_id lets the backend drop a retried insert instead of
	// storing the message twice.
	raw, err := s.client.Insert(ctx, "messages", map[string]string{
		"room_id":       roomID,
		"author_id":     session.UserID,
		"content":       content,
		"kind":          "text",
		"client_msg_id": uuid.New().String(),
	})
	if err != nil {
		return Message{}, fmt.Errorf("send message: %w", err)
	}

	var row messageRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return Message{}, fmt.Errorf("send message: decode row: %w", err)
	}
	return row.toMessage(), nil
}

// MarkAsRead records the signed-in user's read position for a room. Unread
// counters are owned by the backend; the next conversation reload reflects
// the new read state.
func (s *ChatService) MarkAsRead(ctx context.Context, roomID string) error {
	session, err := s.client.RequireSession()
	if err != nil {
		return err
	}

	_, err = s.client.Update(ctx, "room_members",
		[]backend.Filter{
			backend.Eq("room_id", roomID),
			backend.Eq("user_id", session.UserID),
		},
		map[string]string{"last_read_at": time.Now().UTC().Format(time.RFC3339)},
	)
	if err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}

// SubscribeToMessages registers a push handler for new messages in one room.
func (s *ChatService) SubscribeToMessages(roomID string, fn func(Message)) (Subscription, error) {
	sub, err := s.feed.Subscribe(backend.Topic("messages", "room_id=eq."+roomID), "INSERT", func(c backend.Change) {
		var row messageRow
		if err := json.Unmarshal(c.Record, &row); err != nil {
			s.logger.Warn("undecodable pushed message", zap.Error(err))
			return
		}
		fn(row.toMessage())
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe messages: %w", err)
	}
	return sub, nil
}

// SubscribeToConversations registers a push handler invoked on any change
// that can affect the conversation list: a message in any room, or a
// membership change.
func (s *ChatService) SubscribeToConversations(fn func()) (Subscription, error) {
	msgSub, err := s.feed.Subscribe(backend.Topic("messages", ""), "INSERT", func(backend.Change) { fn() })
	if err != nil {
		return nil, fmt.Errorf("subscribe conversations: %w", err)
	}
	memberSub, err := s.feed.Subscribe(backend.Topic("room_members", ""), "*", func(backend.Change) { fn() })
	if err != nil {
		msgSub.Unsubscribe()
		return nil, fmt.Errorf("subscribe conversations: %w", err)
	}
	return multiSub{msgSub, memberSub}, nil
}

// multiSub bundles several registrations behind one Unsubscribe.
type multiSub []Subscription

func (m multiSub) Unsubscribe() {
	for _, s := range m {
		s.Unsubscribe()
	}
}

func (r conversationRow) toConversation() Conversation {
	kind := ConversationKind(r.Kind)
	if kind != KindDirect && kind != KindGroup {
		kind = KindGroup
	}
	name := r.Name
	if kind == KindDirect && r.OtherUserName != "" {
		name = r.OtherUserName
	}
	if name == "" {
		name = r.RoomID.String()
	}
	return Conversation{
		ID:           r.RoomID.String(),
		RoomID:       r.RoomID.String(),
		Kind:         kind,
		Name:         name,
		Preview:      r.LastMessage,
		LastActivity: parseTime(r.LastActivity),
		Unread:       r.UnreadCount,
		Initials:     initials(name),
		OtherUserID:  r.OtherUserID.String(),
	}
}

func (r messageRow) toMessage() Message {
	kind := r.Kind
	if kind == "" {
		kind = "text"
	}
	readBy := make([]string, 0, len(r.ReadBy))
	for _, v := range r.ReadBy {
		if id := backend.CoerceID(v); id != "" {
			readBy = append(readBy, id)
		}
	}
	return Message{
		ID:        r.ID.String(),
		RoomID:    r.RoomID.String(),
		AuthorID:  r.AuthorID.String(),
		Content:   r.Content,
		Kind:      kind,
		CreatedAt: parseTime(r.CreatedAt),
		ReadBy:    readBy,
	}
}

// parseTime tolerates the timestamp shapes the backend emits. A zero time is
// returned for anything unparseable rather than failing the whole row.
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// initials derives up to two uppercase letters from a display name.
func initials(name string) string {
	fields := strings.Fields(name)
	var b strings.Builder
	for i, f := range fields {
		if i == 2 {
			break
		}
		r := []rune(f)
		b.WriteString(strings.ToUpper(string(r[0])))
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}
