package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peerflex/peerflex/internal/status"
	"go.uber.org/zap"
)

// Change is a pushed row change from the backend's change feed.
type Change struct {
	Type   string          // INSERT, UPDATE or DELETE
	Record json.RawMessage // the changed row
}

// Handler receives pushed changes for a subscription.
type Handler func(Change)

// Subscription is a live change-feed registration. Its only operation is
// Unsubscribe; it is safe to call more than once.
type Subscription struct {
	feed *Feed
	id   int
	once sync.Once
}

// Unsubscribe removes the registration and, when no other registration
// shares the topic, tells the server to stop pushing it.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.feed.remove(s.id) })
}

type feedSub struct {
	topic string
	event string // INSERT/UPDATE/DELETE or "*" for all
	fn    Handler
}

// frame is the wire envelope for the change-feed websocket.
type frame struct {
	Op     string          `json:"op"` // subscribe, unsubscribe, heartbeat, change, error
	Topic  string          `json:"topic,omitempty"`
	Event  string          `json:"event,omitempty"`
	Ref    string          `json:"ref,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`
	Error  string          `json:"error,omitempty"`
}

const (
	heartbeatInterval = 25 * time.Second
	maxBackoff        = 30 * time.Second
)

// Feed maintains the websocket connection to the backend's change feed and a
// callback table keyed by topic. Registrations survive reconnects: every new
// connection replays a subscribe frame per registered topic.
type Feed struct {
	wsURL   string
	token   func() string
	machine *status.Machine
	logger  *zap.Logger
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[int]*feedSub
	nextID int
	cancel context.CancelFunc

	nextRef atomic.Int64
}

// Topic names the change-feed channel for a table, optionally narrowed by a
// filter predicate such as "room_id=eq.42".
func Topic(table, filter string) string {
	if filter == "" {
		return "table:" + table
	}
	return "table:" + table + ":" + filter
}

// NewFeed creates a change-feed client. token is consulted at dial time so a
// refreshed session is picked up on reconnect.
func NewFeed(baseURL, anonKey string, token func() string, machine *status.Machine, logger *zap.Logger) *Feed {
	ws := strings.Replace(strings.TrimRight(baseURL, "/"), "http", "ws", 1)
	return &Feed{
		wsURL:   ws + "/realtime/v1/ws?apikey=" + anonKey,
		token:   token,
		machine: machine,
		logger:  logger,
		dialer:  websocket.DefaultDialer,
		subs:    make(map[int]*feedSub),
	}
}

// Subscribe registers a handler for changes on a topic. event narrows to one
// change type, "*" receives all. The registration is pushed to the server
// immediately when connected, and replayed after every reconnect.
func (f *Feed) Subscribe(topic, event string, fn Handler) (*Subscription, error) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = &feedSub{topic: topic, event: event, fn: fn}
	connected := f.conn != nil
	f.mu.Unlock()

	if connected {
		if err := f.writeFrame(frame{Op: "subscribe", Topic: topic, Event: event, Ref: f.ref()}); err != nil {
			// Drop the registration: a caller that sees an error discards
			// the handle, and a leftover entry would be replayed on every
			// reconnect with nobody able to unsubscribe it.
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return &Subscription{feed: f, id: id}, nil
}

func (f *Feed) remove(id int) {
	f.mu.Lock()
	sub, ok := f.subs[id]
	if !ok {
		f.mu.Unlock()
		return
	}
	delete(f.subs, id)
	remaining := false
	for _, s := range f.subs {
		if s.topic == sub.topic {
			remaining = true
			break
		}
	}
	connected := f.conn != nil
	f.mu.Unlock()

	if connected && !remaining {
		_ = f.writeFrame(frame{Op: "unsubscribe", Topic: sub.topic, Ref: f.ref()})
	}
}

// SubscriberCount returns the number of live registrations for a topic.
func (f *Feed) SubscriberCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if s.topic == topic {
			n++
		}
	}
	return n
}

// Start connects the feed and keeps it connected until ctx ends or Close is
// called. Reconnects use doubling backoff; after repeated failures the status
// machine is moved to Degraded while dialing continues.
func (f *Feed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()

	go f.run(ctx)
}

// Close tears the connection down and stops reconnecting.
func (f *Feed) Close() {
	f.mu.Lock()
	cancel := f.cancel
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (f *Feed) run(ctx context.Context) {
	backoff := time.Second
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		_ = f.machine.Transition(status.Connecting)
		conn, err := f.dial(ctx)
		if err != nil {
			failures++
			f.logger.Warn("change feed dial failed", zap.Error(err), zap.Int("failures", failures))
			if failures >= 3 {
				_ = f.machine.Transition(status.Degraded)
			} else {
				_ = f.machine.Transition(status.Reconnecting)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		failures = 0
		backoff = time.Second
		_ = f.machine.Transition(status.Live)
		f.logger.Info("change feed connected")

		f.readLoop(ctx, conn)

		f.mu.Lock()
		if f.conn == conn {
			f.conn = nil
		}
		f.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("change feed disconnected, reconnecting")
		_ = f.machine.Transition(status.Reconnecting)
	}
}

// dial connects, authenticates, and replays all registered topics.
func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialURL := f.wsURL
	if tok := f.token(); tok != "" {
		dialURL += "&token=" + tok
	}
	conn, _, err := f.dialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.conn = conn
	topics := make(map[string]string)
	for _, s := range f.subs {
		topics[s.topic] = s.event
	}
	f.mu.Unlock()

	for topic, event := range topics {
		if err := f.writeFrame(frame{Op: "subscribe", Topic: topic, Event: event, Ref: f.ref()}); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("resubscribe %s: %w", topic, err)
		}
	}
	return conn, nil
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := f.writeFrame(frame{Op: "heartbeat", Ref: f.ref()}); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var fr frame
		if err := conn.ReadJSON(&fr); err != nil {
			return
		}
		switch fr.Op {
		case "change":
			f.dispatch(fr)
		case "error":
			f.logger.Warn("change feed server error", zap.String("topic", fr.Topic), zap.String("error", fr.Error))
		}
	}
}

func (f *Feed) dispatch(fr frame) {
	f.mu.Lock()
	var handlers []Handler
	for _, s := range f.subs {
		if s.topic == fr.Topic && (s.event == "*" || s.event == fr.Event) {
			handlers = append(handlers, s.fn)
		}
	}
	f.mu.Unlock()

	change := Change{Type: fr.Event, Record: fr.Record}
	for _, h := range handlers {
		h(change)
	}
}

// writeFrame serializes all writers on the connection; gorilla/websocket
// permits at most one concurrent writer.
func (f *Feed) writeFrame(fr frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	return f.conn.WriteJSON(fr)
}

func (f *Feed) ref() string {
	return strconv.FormatInt(f.nextRef.Add(1), 10)
}
