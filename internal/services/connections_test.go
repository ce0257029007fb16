package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// connectionsBackend is a tiny in-memory connections table behind the REST
// shape the service expects.
type connectionsBackend struct {
	mu   sync.Mutex
	rows []map[string]string
}

func (b *connectionsBackend) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/connections" {
			t.Errorf("path = %q", r.URL.Path)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()

		match := func(row map[string]string) bool {
			for key, vals := range r.URL.Query() {
				if key == "limit" || key == "select" || key == "order" {
					continue
				}
				want := vals[0]
				if len(want) > 3 && want[:3] == "eq." {
					if row[key] != want[3:] {
						return false
					}
				}
			}
			return true
		}

		switch r.Method {
		case http.MethodGet:
			out := []map[string]string{}
			for _, row := range b.rows {
				if match(row) {
					out = append(out, row)
				}
			}
			_ = json.NewEncoder(w).Encode(out)
		case http.MethodPost:
			var row map[string]string
			_ = json.NewDecoder(r.Body).Decode(&row)
			row["id"] = "c1"
			b.rows = append(b.rows, row)
			_ = json.NewEncoder(w).Encode([]map[string]string{row})
		case http.MethodPatch:
			var patch map[string]string
			_ = json.NewDecoder(r.Body).Decode(&patch)
			out := []map[string]string{}
			for _, row := range b.rows {
				if match(row) {
					for k, v := range patch {
						row[k] = v
					}
					out = append(out, row)
				}
			}
			_ = json.NewEncoder(w).Encode(out)
		case http.MethodDelete:
			kept := b.rows[:0]
			for _, row := range b.rows {
				if !match(row) {
					kept = append(kept, row)
				}
			}
			b.rows = kept
			_ = json.NewEncoder(w).Encode([]map[string]string{})
		}
	})
}

func TestConnectionLifecycleSentByMe(t *testing.T) {
	b := &connectionsBackend{}
	c := newTestClient(t, b.handler(t))
	s := NewConnectionService(c, zap.NewNop())
	ctx := context.Background()

	st, err := s.Status(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != NotConnected {
		t.Fatalf("initial state = %s, want not_connected", st.State)
	}

	st, err = s.SendRequest(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != Pending || !st.SentByMe {
		t.Fatalf("after send: %+v, want pending sent by me", st)
	}

	st, err = s.WithdrawRequest(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != NotConnected {
		t.Fatalf("after withdraw: %+v, want not_connected", st)
	}
}

func TestUnknownStatusTreatedAsNotConnected(t *testing.T) {
	b := &connectionsBackend{rows: []map[string]string{
		{"id": "c9", "requester_id": "u2", "addressee_id": "me", "status": "blocked"},
	}}
	c := newTestClient(t, b.handler(t))
	s := NewConnectionService(c, zap.NewNop())

	st, err := s.Status(context.Background(), "u2")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != NotConnected {
		t.Fatalf("state = %+v, want not_connected for unrecognized status", st)
	}
}

func TestConnectionAcceptFlow(t *testing.T) {
	b := &connectionsBackend{rows: []map[string]string{
		{"id": "c9", "requester_id": "u2", "addressee_id": "me", "status": "pending"},
	}}
	c := newTestClient(t, b.handler(t))
	s := NewConnectionService(c, zap.NewNop())
	ctx := context.Background()

	st, err := s.Status(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != Pending || st.SentByMe {
		t.Fatalf("state = %+v, want pending sent by them", st)
	}

	st, err = s.AcceptRequest(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != Connected {
		t.Fatalf("after accept: %+v, want connected", st)
	}
}

func TestConnectionRejectFlow(t *testing.T) {
	b := &connectionsBackend{rows: []map[string]string{
		{"id": "c9", "requester_id": "u2", "addressee_id": "me", "status": "pending"},
	}}
	c := newTestClient(t, b.handler(t))
	s := NewConnectionService(c, zap.NewNop())

	st, err := s.RejectRequest(context.Background(), "u2")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != NotConnected {
		t.Fatalf("after reject: %+v, want not_connected", st)
	}
}

func TestListPending(t *testing.T) {
	b := &connectionsBackend{rows: []map[string]string{
		{"id": "c1", "requester_id": "u2", "addressee_id": "me", "status": "pending"},
		{"id": "c2", "requester_id": "me", "addressee_id": "u3", "status": "pending"},
		{"id": "c3", "requester_id": "u4", "addressee_id": "me", "status": "accepted"},
	}}
	c := newTestClient(t, b.handler(t))
	s := NewConnectionService(c, zap.NewNop())

	pending, err := s.ListPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].RequestID != "c1" {
		t.Errorf("pending = %+v, want just c1", pending)
	}
}
