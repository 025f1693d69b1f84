package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/randomizedcoder/go-flexgraph/internal/series"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// Stream actions sent by the client.
const (
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionToggle = "toggle"
	ActionWindow = "window"
	ActionFields = "fields"
)

// Stream message types sent by the server.
const (
	MessageTypeView  = "view"
	MessageTypeError = "error"
)

// StreamRequest is a client message on the stream.
type StreamRequest struct {
	Action  string   `json:"action"`
	Minutes float64  `json:"minutes,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

// StreamMessage is a server message on the stream.
type StreamMessage struct {
	Type    string        `json:"type"`
	Session string        `json:"session"`
	State   string        `json:"state,omitempty"`
	View    *viewResponse `json:"view,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// session is one stream connection with its own pause state and window.
type session struct {
	id   string
	conn *websocket.Conn
	h    *Handler

	mu     sync.Mutex
	view   *series.View
	fields []string

	// refresh asks the writer to push now; errs carries replies to bad actions.
	refresh chan struct{}
	errs    chan string
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	q, err := parseQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.logger.Debug("stream_upgrade_failed", "series", id, "error", err)
		return
	}

	s := &session{
		id:      uuid.New().String(),
		conn:    conn,
		h:       h,
		view:    series.NewView(id),
		fields:  q.Fields,
		refresh: make(chan struct{}, 1),
		errs:    make(chan string, 8),
	}
	s.view.SetWindow(q.WindowMinutes)
	if q.Paused {
		s.view.Pause(h.engine)
	}

	h.sessions.Add(1)
	defer h.sessions.Done()

	h.recorder.StreamOpened()
	defer h.recorder.StreamClosed()

	h.logger.Info("stream_opened", "session", s.id, "series", id, "remote", r.RemoteAddr)
	s.run(h.ctx)
	h.logger.Info("stream_closed", "session", s.id, "series", id)
}

// checkOrigin accepts same-host requests and the configured origins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.origins, "*") || slices.Contains(h.origins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// run pumps until the client leaves or the handler closes.
func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	go func() {
		s.readPump()
		cancel()
	}()

	s.writePump(ctx)
	s.conn.Close()
}

func (s *session) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var req StreamRequest
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.h.logger.Debug("stream_read_error", "session", s.id, "error", err)
			}
			return
		}

		if err := s.apply(req); err != nil {
			select {
			case s.errs <- err.Error():
			default:
			}
			continue
		}
		select {
		case s.refresh <- struct{}{}:
		default:
		}
	}
}

// apply changes the session view.
func (s *session) apply(req StreamRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Action {
	case ActionPause:
		s.view.Pause(s.h.engine)
	case ActionResume:
		s.view.Resume()
	case ActionToggle:
		s.view.Toggle(s.h.engine)
	case ActionWindow:
		s.view.SetWindow(req.Minutes)
	case ActionFields:
		s.fields = slices.Clone(req.Fields)
	default:
		return fmt.Errorf("unknown action %q", req.Action)
	}

	s.h.logger.Debug("stream_action",
		"session", s.id,
		"action", req.Action,
		"state", s.view.State().String(),
		"window_minutes", s.view.WindowMinutes,
	)
	return nil
}

func (s *session) writePump(ctx context.Context) {
	push := time.NewTicker(s.h.pushInterval)
	defer push.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	// First view goes out immediately.
	if err := s.writeView(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
			return

		case <-push.C:
			if err := s.writeView(); err != nil {
				return
			}

		case <-s.refresh:
			if err := s.writeView(); err != nil {
				return
			}

		case msg := <-s.errs:
			if err := s.write(StreamMessage{Type: MessageTypeError, Session: s.id, Error: msg}); err != nil {
				return
			}

		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) writeView() error {
	s.mu.Lock()
	q := s.view.Query(slices.Clone(s.fields))
	state := s.view.State().String()
	id := s.view.SeriesID
	s.mu.Unlock()

	view := s.h.buildView(id, q)
	return s.write(StreamMessage{Type: MessageTypeView, Session: s.id, State: state, View: &view})
}

func (s *session) write(msg StreamMessage) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}
