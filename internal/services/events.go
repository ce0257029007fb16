package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/peerflex/peerflex/internal/backend"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// Domain validation errors raised after a read-check, before any mutation.
var (
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrEventFull         = errors.New("event is full")
)

// Event is a campus event from the services catalog.
type Event struct {
	ID            string
	Title         string
	Description   string
	Location      string
	StartsAt      time.Time
	Capacity      int // 0 means unlimited
	AttendeeCount int
}

// Registration is a user's attendance record for an event.
type Registration struct {
	ID        string
	EventID   string
	UserID    string
	CreatedAt time.Time
}

// Attendee is a registered participant as shown on the attendee list.
type Attendee struct {
	UserID string
	Name   string
}

// EventService wraps the events/registrations tables.
type EventService struct {
	client *backend.Client
	logger *zap.Logger
}

// NewEventService creates an event service.
func NewEventService(client *backend.Client, logger *zap.Logger) *EventService {
	return &EventService{client: client, logger: logger}
}

type eventRow struct {
	ID            backend.FlexID `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Location      string         `json:"location"`
	StartsAt      string         `json:"starts_at"`
	Capacity      int            `json:"capacity"`
	AttendeeCount int            `json:"attendee_count"`
}

type registrationRow struct {
	ID        backend.FlexID `json:"id"`
	EventID   backend.FlexID `json:"event_id"`
	UserID    backend.FlexID `json:"user_id"`
	CreatedAt string         `json:"created_at"`
}

// ListEvents returns upcoming events, soonest first.
func (s *EventService) ListEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.client.Query(ctx, "events", backend.QueryOptions{
		Order: "starts_at.asc",
		Limit: 100,
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, raw := range rows {
		var row eventRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("list events: decode row: %w", err)
		}
		events = append(events, row.toEvent())
	}
	return events, nil
}

// GetEvent returns a single event.
func (s *EventService) GetEvent(ctx context.Context, eventID string) (Event, error) {
	rows, err := s.client.Query(ctx, "events", backend.QueryOptions{
		Filters: []backend.Filter{backend.Eq("id", eventID)},
		Limit:   1,
	})
	if err != nil {
		return Event{}, fmt.Errorf("get event: %w", err)
	}
	if len(rows) == 0 {
		return Event{}, fmt.Errorf("get event: %q not found", eventID)
	}
	var row eventRow
	if err := json.Unmarshal(rows[0], &row); err != nil {
		return Event{}, fmt.Errorf("get event: decode row: %w", err)
	}
	return row.toEvent(), nil
}

// Register signs the current user up for an event. Raises
// ErrAlreadyRegistered or ErrEventFull from a read-check before inserting.
func (s *EventService) Register(ctx context.Context, eventID string) (Registration, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return Registration{}, err
	}

	existing, err := s.client.Query(ctx, "registrations", backend.QueryOptions{
		Filters: []backend.Filter{
			backend.Eq("event_id", eventID),
			backend.Eq("user_id", session.UserID),
		},
		Limit: 1,
	})
	if err != nil {
		return Registration{}, fmt.Errorf("register: %w", err)
	}
	if len(existing) > 0 {
		return Registration{}, ErrAlreadyRegistered
	}

	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return Registration{}, err
	}
	if event.Capacity > 0 && event.AttendeeCount >= event.Capacity {
		return Registration{}, ErrEventFull
	}

	raw, err := s.client.Insert(ctx, "registrations", map[string]string{
		"event_id": eventID,
		"user_id":  session.UserID,
	})
	if err != nil {
		return Registration{}, fmt.Errorf("register: %w", err)
	}

	var row registrationRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return Registration{}, fmt.Errorf("register: decode row: %w", err)
	}
	return row.toRegistration(), nil
}

// MyRegistration returns the current user's registration for an event.
func (s *EventService) MyRegistration(ctx context.Context, eventID string) (Registration, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return Registration{}, err
	}

	rows, err := s.client.Query(ctx, "registrations", backend.QueryOptions{
		Filters: []backend.Filter{
			backend.Eq("event_id", eventID),
			backend.Eq("user_id", session.UserID),
		},
		Limit: 1,
	})
	if err != nil {
		return Registration{}, fmt.Errorf("my registration: %w", err)
	}
	if len(rows) == 0 {
		return Registration{}, fmt.Errorf("my registration: not registered for event %q", eventID)
	}
	var row registrationRow
	if err := json.Unmarshal(rows[0], &row); err != nil {
		return Registration{}, fmt.Errorf("my registration: decode row: %w", err)
	}
	return row.toRegistration(), nil
}

// Unregister removes the current user's registration.
func (s *EventService) Unregister(ctx context.Context, eventID string) error {
	session, err := s.client.RequireSession()
	if err != nil {
		return err
	}

	err = s.client.Delete(ctx, "registrations", []backend.Filter{
		backend.Eq("event_id", eventID),
		backend.Eq("user_id", session.UserID),
	})
	if err != nil {
		return fmt.Errorf("unregister: %w", err)
	}
	return nil
}

// ListAttendees returns the attendee list of an event.
func (s *EventService) ListAttendees(ctx context.Context, eventID string) ([]Attendee, error) {
	rows, err := s.client.Query(ctx, "event_attendees", backend.QueryOptions{
		Filters: []backend.Filter{backend.Eq("event_id", eventID)},
	})
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}

	attendees := make([]Attendee, 0, len(rows))
	for _, raw := range rows {
		var row struct {
			UserID backend.FlexID `json:"user_id"`
			Name   string         `json:"name"`
		}
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("list attendees: decode row: %w", err)
		}
		attendees = append(attendees, Attendee{UserID: row.UserID.String(), Name: row.Name})
	}
	return attendees, nil
}

// TicketQR renders a terminal QR code for event check-in. The payload is the
// registration id, which the check-in desk resolves against the backend.
func (s *EventService) TicketQR(reg Registration) (string, error) {
	qr, err := qrcode.New("peerflex:reg:"+reg.ID, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("ticket qr: %w", err)
	}
	return qr.ToSmallString(false), nil
}

func (r eventRow) toEvent() Event {
	return Event{
		ID:            r.ID.String(),
		Title:         r.Title,
		Description:   r.Description,
		Location:      r.Location,
		StartsAt:      parseTime(r.StartsAt),
		Capacity:      r.Capacity,
		AttendeeCount: r.AttendeeCount,
	}
}

func (r registrationRow) toRegistration() Registration {
	return Registration{
		ID:        r.ID.String(),
		EventID:   r.EventID.String(),
		UserID:    r.UserID.String(),
		CreatedAt: parseTime(r.CreatedAt),
	}
}
