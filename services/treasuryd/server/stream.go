package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"treasury/core/events"
)

const (
	wsWriteTimeout     = 10 * time.Second
	defaultBacklogSize = 256
	subscriberBuffer   = 64
)

// StreamEvent is one committed controller event as sent to stream clients.
type StreamEvent struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	At         time.Time         `json:"at"`
}

// Hub fans committed events out to websocket subscribers and keeps a short
// backlog so reconnecting clients can resume from a sequence number. It is
// the runtime host's event sink.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	backlog []StreamEvent
	limit   int
	nextID  int
	subs    map[int]chan StreamEvent
	now     func() time.Time
}

// NewHub constructs a hub retaining up to backlog events.
func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = defaultBacklogSize
	}
	return &Hub{limit: backlog, subs: make(map[int]chan StreamEvent), now: time.Now}
}

// Emit implements events.Emitter. Slow subscribers miss events rather than
// stalling the host.
func (h *Hub) Emit(evt events.Event) {
	env := events.Envelope(evt)
	if env == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	item := StreamEvent{Seq: h.seq, Type: env.Type, Attributes: env.Attributes, At: h.now().UTC()}
	h.backlog = append(h.backlog, item)
	if len(h.backlog) > h.limit {
		h.backlog = h.backlog[len(h.backlog)-h.limit:]
	}
	for _, ch := range h.subs {
		select {
		case ch <- item:
		default:
		}
	}
}

// Subscribe registers a subscriber and returns the retained events with a
// sequence number above since.
func (h *Hub) Subscribe(since uint64) (<-chan StreamEvent, func(), []StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan StreamEvent, subscriberBuffer)
	h.subs[id] = ch
	var backlog []StreamEvent
	for _, item := range h.backlog {
		if item.Seq > since {
			backlog = append(backlog, item)
		}
	}
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing)
		}
	}
	return ch, cancel, backlog
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, since); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, since uint64) error {
	updates, cancel, backlog := s.hub.Subscribe(since)
	defer cancel()

	for _, item := range backlog {
		if err := writeStreamEvent(ctx, conn, item); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeStreamEvent(ctx, conn, item); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, item StreamEvent) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
