package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func eventsHandler(t *testing.T, event map[string]any, registrations []map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rest/v1/events":
			_ = json.NewEncoder(w).Encode([]map[string]any{event})
		case r.URL.Path == "/rest/v1/registrations" && r.Method == http.MethodGet:
			out := []map[string]any{}
			for _, reg := range registrations {
				if "eq."+reg["user_id"].(string) == r.URL.Query().Get("user_id") {
					out = append(out, reg)
				}
			}
			_ = json.NewEncoder(w).Encode(out)
		case r.URL.Path == "/rest/v1/registrations" && r.Method == http.MethodPost:
			var row map[string]any
			_ = json.NewDecoder(r.Body).Decode(&row)
			row["id"] = 501
			row["created_at"] = "2026-03-01T10:00:00Z"
			_ = json.NewEncoder(w).Encode([]map[string]any{row})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
}

func TestRegisterSuccess(t *testing.T) {
	event := map[string]any{"id": 7, "title": "Study Jam", "capacity": 10, "attendee_count": 3}
	c := newTestClient(t, eventsHandler(t, event, nil))
	s := NewEventService(c, zap.NewNop())

	reg, err := s.Register(context.Background(), "7")
	if err != nil {
		t.Fatal(err)
	}
	if reg.ID != "501" {
		t.Errorf("reg id = %q, want 501", reg.ID)
	}
	if reg.EventID != "7" || reg.UserID != "me" {
		t.Errorf("reg = %+v", reg)
	}
}

func TestRegisterAlreadyRegistered(t *testing.T) {
	event := map[string]any{"id": 7, "title": "Study Jam"}
	existing := []map[string]any{{"id": 400, "event_id": 7, "user_id": "me"}}
	c := newTestClient(t, eventsHandler(t, event, existing))
	s := NewEventService(c, zap.NewNop())

	_, err := s.Register(context.Background(), "7")
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("err = %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegisterEventFull(t *testing.T) {
	event := map[string]any{"id": 7, "title": "Study Jam", "capacity": 3, "attendee_count": 3}
	c := newTestClient(t, eventsHandler(t, event, nil))
	s := NewEventService(c, zap.NewNop())

	_, err := s.Register(context.Background(), "7")
	if !errors.Is(err, ErrEventFull) {
		t.Fatalf("err = %v, want ErrEventFull", err)
	}
}

func TestRegisterUnlimitedCapacity(t *testing.T) {
	// capacity 0 means unlimited and never blocks registration.
	event := map[string]any{"id": 7, "title": "Open Mic", "capacity": 0, "attendee_count": 9000}
	c := newTestClient(t, eventsHandler(t, event, nil))
	s := NewEventService(c, zap.NewNop())

	if _, err := s.Register(context.Background(), "7"); err != nil {
		t.Fatal(err)
	}
}

func TestTicketQR(t *testing.T) {
	s := NewEventService(nil, zap.NewNop())
	out, err := s.TicketQR(Registration{ID: "501"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) == "" {
		t.Fatal("empty QR output")
	}
	if !strings.Contains(out, "█") && !strings.Contains(out, "▀") && !strings.Contains(out, "▄") {
		t.Errorf("QR output does not look like a block-drawing code:\n%s", out)
	}
}
