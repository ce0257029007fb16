package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/peerflex/peerflex/internal/backend"
	"go.uber.org/zap"
)

// Notification is an in-app notification row.
type Notification struct {
	ID        string
	Kind      string // e.g. connection_request, event_reminder, message
	Title     string
	Body      string
	Read      bool
	CreatedAt time.Time
}

// NotificationService wraps the notifications table.
type NotificationService struct {
	client *backend.Client
	feed   *backend.Feed
	logger *zap.Logger
}

// NewNotificationService creates a notification service.
func NewNotificationService(client *backend.Client, feed *backend.Feed, logger *zap.Logger) *NotificationService {
	return &NotificationService{client: client, feed: feed, logger: logger}
}

type notificationRow struct {
	ID        backend.FlexID `json:"id"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Read      bool           `json:"read"`
	CreatedAt string         `json:"created_at"`
}

// List returns the signed-in user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context) ([]Notification, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return nil, err
	}

	rows, err := s.client.Query(ctx, "notifications", backend.QueryOptions{
		Filters: []backend.Filter{backend.Eq("user_id", session.UserID)},
		Order:   "created_at.desc",
		Limit:   100,
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	out := make([]Notification, 0, len(rows))
	for _, raw := range rows {
		var row notificationRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("list notifications: decode row: %w", err)
		}
		out = append(out, row.toNotification())
	}
	return out, nil
}

// MarkRead flags one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID string) error {
	if _, err := s.client.RequireSession(); err != nil {
		return err
	}
	_, err := s.client.Update(ctx, "notifications",
		[]backend.Filter{backend.Eq("id", notificationID)},
		map[string]bool{"read": true},
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkAllRead flags every unread notification of the signed-in user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context) error {
	session, err := s.client.RequireSession()
	if err != nil {
		return err
	}
	_, err = s.client.Update(ctx, "notifications",
		[]backend.Filter{
			backend.Eq("user_id", session.UserID),
			backend.Eq("read", "false"),
		},
		map[string]bool{"read": true},
	)
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

// Subscribe registers a push handler for new notifications addressed to the
// signed-in user.
func (s *NotificationService) Subscribe(fn func(Notification)) (Subscription, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return nil, err
	}

	sub, err := s.feed.Subscribe(backend.Topic("notifications", "user_id=eq."+session.UserID), "INSERT", func(c backend.Change) {
		var row notificationRow
		if err := json.Unmarshal(c.Record, &row); err != nil {
			s.logger.Warn("undecodable pushed notification", zap.Error(err))
			return
		}
		fn(row.toNotification())
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe notifications: %w", err)
	}
	return sub, nil
}

func (r notificationRow) toNotification() Notification {
	return Notification{
		ID:        r.ID.String(),
		Kind:      r.Kind,
		Title:     r.Title,
		Body:      r.Body,
		Read:      r.Read,
		CreatedAt: parseTime(r.CreatedAt),
	}
}
