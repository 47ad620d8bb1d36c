package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fitfriends/backend/internal/feed"
	"github.com/fitfriends/backend/internal/logging"
	"github.com/fitfriends/backend/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxCommandSize = 512

	// Updates queued for a slow client before the session is dropped.
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// FeedHandler serves the paginated feed and its live websocket stream.
type FeedHandler struct {
	Pager    *feed.Pager
	Changes  feed.Subscriber
	Recorder feed.Recorder
}

type feedPageResponse struct {
	Posts      []models.Post `json:"posts"`
	NextCursor string        `json:"nextCursor,omitempty"`
	HasMore    bool          `json:"hasMore"`
}

// Page handles GET /api/v1/feed?cursor=.
func (h FeedHandler) Page(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, span := logging.StartSpan(r.Context(), "handlers.FeedPage")
	defer span.End()

	viewerID, ok := currentUser(w, r)
	if !ok {
		return
	}

	cursor, err := feed.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	kind := "initial"
	if cursor != nil {
		kind = "more"
	}
	page, err := h.Pager.Page(ctx, viewerID, cursor)
	if h.Recorder != nil {
		h.Recorder.FeedFetched(kind, err)
	}
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	resp := feedPageResponse{Posts: page.Posts, HasMore: page.HasMore}
	if resp.Posts == nil {
		resp.Posts = []models.Post{}
	}
	if page.Next != nil {
		resp.NextCursor = feed.EncodeCursor(*page.Next)
	}
	respondJSON(ctx, w, http.StatusOK, resp)
}

var errUnknownAction = errors.New("unknown action")

type streamCommand struct {
	Action string `json:"action"`
}

type streamError struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// Stream handles GET /api/v1/feed/stream. The socket receives the first
// page as a reset update followed by live changes. Clients send
// {"action":"load_more"} or {"action":"refresh"}.
func (h FeedHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	viewerID, ok := currentUser(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.FromContext(r.Context()).Warn("upgrade feed stream", "error", err)
		return
	}

	session := newStreamSession(conn)
	ctx := logging.WithLogger(context.WithoutCancel(r.Context()),
		logging.FromContext(r.Context()).With("viewerId", viewerID))

	live := feed.New(feed.Options{
		ViewerID: viewerID,
		Pager:    h.Pager,
		Changes:  h.Changes,
		Listener: session.push,
		Recorder: h.Recorder,
		Logger:   logging.FromContext(ctx),
	})
	defer live.Close()

	if err := live.Start(ctx); err != nil {
		logging.FromContext(ctx).Error("start live feed", "error", err)
		session.pushError("start", err)
	} else if err := live.Load(ctx); err != nil {
		session.pushError("load", err)
	}

	go session.writePump()
	session.readPump(func(action string) {
		var err error
		switch action {
		case "load_more":
			err = live.LoadMore(ctx)
		case "refresh":
			err = live.Refresh(ctx)
		default:
			session.pushError(action, errUnknownAction)
			return
		}
		if err != nil {
			session.pushError(action, err)
		}
	})
	session.stop()
}

// streamSession owns one websocket connection. Writes happen only on the
// write pump; push never blocks the feed.
type streamSession struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newStreamSession(conn *websocket.Conn) *streamSession {
	return &streamSession{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (s *streamSession) push(update feed.Update) {
	payload, err := json.Marshal(update)
	if err != nil {
		return
	}
	s.enqueue(payload)
}

func (s *streamSession) pushError(kind string, err error) {
	payload, _ := json.Marshal(streamError{Kind: kind, Error: err.Error()})
	s.enqueue(payload)
}

func (s *streamSession) enqueue(payload []byte) {
	select {
	case <-s.done:
	case s.send <- payload:
	default:
		// A client that cannot keep up would miss window changes; drop it.
		s.stop()
	}
}

func (s *streamSession) stop() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *streamSession) readPump(handle func(action string)) {
	s.conn.SetReadLimit(maxCommandSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd streamCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			s.pushError("decode", err)
			continue
		}
		handle(cmd.Action)
	}
}

func (s *streamSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.stop()
	}()

	for {
		select {
		case <-s.done:
			return
		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
