package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/peerflex/peerflex/internal/backend"
	"go.uber.org/zap"
)

// newTestClient builds a signed-in backend client against the given handler.
func newTestClient(t *testing.T, handler http.Handler) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := backend.NewClient(srv.URL, "anon", zap.NewNop())
	c.SetSession(&backend.Session{AccessToken: "tok", UserID: "me"})
	return c
}

func TestGetConversationsMapsRows(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/conversation_summaries" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[
			{"room_id":7,"kind":"direct","name":"","other_user_id":"u2","other_user_name":"Maya Lopez","last_message":"see you there","last_activity":"2026-03-01T10:00:00Z","unread_count":2},
			{"room_id":"g1","kind":"group","name":"Study Group","last_message":"","last_activity":"2026-02-28T09:00:00Z","unread_count":0}
		]`))
	}))
	s := NewChatService(c, nil, zap.NewNop())

	convs, err := s.GetConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}

	direct := convs[0]
	if direct.RoomID != "7" {
		t.Errorf("numeric room id coerced to %q, want \"7\"", direct.RoomID)
	}
	if direct.Kind != KindDirect || direct.Name != "Maya Lopez" {
		t.Errorf("direct conversation = %+v", direct)
	}
	if direct.Initials != "ML" {
		t.Errorf("initials = %q, want ML", direct.Initials)
	}
	if direct.Unread != 2 {
		t.Errorf("unread = %d, want 2", direct.Unread)
	}

	group := convs[1]
	if group.Kind != KindGroup || group.Name != "Study Group" || group.OtherUserID != "" {
		t.Errorf("group conversation = %+v", group)
	}
}

func TestGetMessagesNormalizesIDsAndReaders(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("room_id"); got != "eq.7" {
			t.Errorf("room_id filter = %q, want eq.7", got)
		}
		_, _ = w.Write([]byte(`[
			{"id":42,"room_id":7,"author_id":"u2","content":"hi","created_at":"2026-03-01T10:00:00Z","read_by":["me",3]},
			{"id":"43","room_id":"7","author_id":"me","content":"hey","kind":"image"}
		]`))
	}))
	s := NewChatService(c, nil, zap.NewNop())

	msgs, err := s.GetMessages(context.Background(), "7")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "42" {
		t.Errorf("numeric id coerced to %q, want \"42\"", msgs[0].ID)
	}
	if msgs[0].Kind != "text" {
		t.Errorf("missing kind defaulted to %q, want text", msgs[0].Kind)
	}
	if len(msgs[0].ReadBy) != 2 || msgs[0].ReadBy[1] != "3" {
		t.Errorf("read_by = %v, want [me 3]", msgs[0].ReadBy)
	}
	if msgs[1].Kind != "image" {
		t.Errorf("kind = %q, want image", msgs[1].Kind)
	}
}

func TestSendMessageGuardsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("network call made without session")
	}))
	defer srv.Close()
	c := backend.NewClient(srv.URL, "anon", zap.NewNop())
	s := NewChatService(c, nil, zap.NewNop())

	_, err := s.SendMessage(context.Background(), "7", "hi")
	if !errors.Is(err, backend.ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestSendMessageInsertsRow(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["author_id"] != "me" || body["room_id"] != "7" {
			t.Errorf("insert body = %v", body)
		}
		if body["client_msg_id"] == "" {
			t.Error("insert body missing client_msg_id")
		}
		_, _ = w.Write([]byte(`[{"id":99,"room_id":7,"author_id":"me","content":"hi","kind":"text","created_at":"2026-03-01T10:00:00Z"}]`))
	}))
	s := NewChatService(c, nil, zap.NewNop())

	msg, err := s.SendMessage(context.Background(), "7", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "99" || msg.RoomID != "7" {
		t.Errorf("message = %+v", msg)
	}
}

func TestMarkAsReadPatchesMembership(t *testing.T) {
	var gotMethod, gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		if got := r.URL.Query().Get("user_id"); got != "eq.me" {
			t.Errorf("user_id filter = %q", got)
		}
		_, _ = w.Write([]byte(`[{"room_id":7,"user_id":"me"}]`))
	}))
	s := NewChatService(c, nil, zap.NewNop())

	if err := s.MarkAsRead(context.Background(), "7"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/rest/v1/room_members" {
		t.Errorf("%s %s", gotMethod, gotPath)
	}
}

func TestInitials(t *testing.T) {
	cases := map[string]string{
		"Maya Lopez":       "ML",
		"ana":              "A",
		"Study Group Crew": "SG",
		"":                 "?",
	}
	for in, want := range cases {
		if got := initials(in); got != want {
			t.Errorf("initials(%q) = %q, want %q", in, got, want)
		}
	}
}
