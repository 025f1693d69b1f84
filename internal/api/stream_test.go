package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// =============================================================================
// Stream Helpers
// =============================================================================

func dialStream(t *testing.T, env *testEnv, path string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("upgrade status = %d", resp.StatusCode)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type streamJSON struct {
	Type    string    `json:"type"`
	Session string    `json:"session"`
	State   string    `json:"state"`
	View    *viewJSON `json:"view"`
	Error   string    `json:"error"`
}

// nextMessage reads until a message of the wanted type arrives.
func nextMessage(t *testing.T, conn *websocket.Conn, wantType string) streamJSON {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	conn.SetReadDeadline(deadline)
	for {
		var msg streamJSON
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %s message: %v", wantType, err)
		}
		if msg.Type == wantType {
			return msg
		}
	}
}

// waitView reads views until cond holds.
func waitView(t *testing.T, conn *websocket.Conn, cond func(streamJSON) bool) streamJSON {
	t.Helper()
	for i := 0; i < 200; i++ {
		msg := nextMessage(t, conn, MessageTypeView)
		if cond(msg) {
			return msg
		}
	}
	t.Fatal("view condition never held")
	return streamJSON{}
}

// =============================================================================
// Stream
// =============================================================================

func TestStream_InitialView(t *testing.T) {
	env := newTestEnv(t)
	env.putPoints(t, "USD_JPY", 5)
	env.poll(t)

	conn := dialStream(t, env, "/api/series/USD_JPY/stream?minutes=0.05")

	msg := nextMessage(t, conn, MessageTypeView)
	if msg.Session == "" {
		t.Error("session id missing")
	}
	if msg.State != "running" {
		t.Errorf("state = %q, want running", msg.State)
	}
	if msg.View == nil || msg.View.Series != "USD_JPY" {
		t.Fatalf("view = %+v", msg.View)
	}
	if len(msg.View.Points) != 4 {
		t.Errorf("points = %d, want 4", len(msg.View.Points))
	}
}

func TestStream_PauseFreezesView(t *testing.T) {
	env := newTestEnv(t)
	env.putPoints(t, "USD_JPY", 3)
	env.poll(t)

	conn := dialStream(t, env, "/api/series/USD_JPY/stream")
	nextMessage(t, conn, MessageTypeView)

	if err := conn.WriteJSON(StreamRequest{Action: ActionPause}); err != nil {
		t.Fatal(err)
	}
	paused := waitView(t, conn, func(m streamJSON) bool { return m.State == "paused" })
	if ref := paused.View.Reference; ref == nil || *ref != base.Format(time.RFC3339Nano) {
		t.Errorf("reference = %v, want %s", ref, base.Format(time.RFC3339Nano))
	}

	// A newer point arrives while paused.
	if err := env.mem.Set(t.Context(), "price_data:USD_JPY:99",
		[]byte(`{"timestamp": "`+base.Add(time.Second).Format("2006-01-02 15:04:05.000")+`", "price": 1}`), 0); err != nil {
		t.Fatal(err)
	}
	env.poll(t)

	msg := nextMessage(t, conn, MessageTypeView)
	if len(msg.View.Points) != 3 {
		t.Errorf("paused view has %d points, want 3", len(msg.View.Points))
	}

	if err := conn.WriteJSON(StreamRequest{Action: ActionToggle}); err != nil {
		t.Fatal(err)
	}
	resumed := waitView(t, conn, func(m streamJSON) bool { return m.State == "running" })
	if len(resumed.View.Points) != 4 {
		t.Errorf("resumed view has %d points, want 4", len(resumed.View.Points))
	}
	if resumed.View.Reference != nil {
		t.Errorf("resumed view kept reference %v", resumed.View.Reference)
	}
}

func TestStream_WindowAndFields(t *testing.T) {
	env := newTestEnv(t)
	env.putPoints(t, "USD_JPY", 5)
	env.poll(t)

	conn := dialStream(t, env, "/api/series/USD_JPY/stream")
	nextMessage(t, conn, MessageTypeView)

	if err := conn.WriteJSON(StreamRequest{Action: ActionWindow, Minutes: 0.02}); err != nil {
		t.Fatal(err)
	}
	msg := waitView(t, conn, func(m streamJSON) bool { return m.View.WindowMinutes == 0.02 })
	if len(msg.View.Points) != 2 {
		t.Errorf("windowed points = %d, want 2", len(msg.View.Points))
	}

	if err := conn.WriteJSON(StreamRequest{Action: ActionFields, Fields: []string{"missing"}}); err != nil {
		t.Fatal(err)
	}
	msg = nextMessage(t, conn, MessageTypeView)
	if len(msg.View.Selected) != 1 || msg.View.Selected[0] != "price" {
		t.Errorf("selected = %v, want fallback to [price]", msg.View.Selected)
	}
}

func TestStream_UnknownAction(t *testing.T) {
	env := newTestEnv(t)
	conn := dialStream(t, env, "/api/series/USD_JPY/stream")
	nextMessage(t, conn, MessageTypeView)

	if err := conn.WriteJSON(StreamRequest{Action: "explode"}); err != nil {
		t.Fatal(err)
	}
	msg := nextMessage(t, conn, MessageTypeError)
	if !strings.Contains(msg.Error, "explode") {
		t.Errorf("error = %q", msg.Error)
	}
}

func TestStream_BadQuery(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/series/USD_JPY/stream?minutes=x"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial with bad query succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("response = %v, want 400", resp)
	}
}

func TestStream_CloseEndsSessions(t *testing.T) {
	env := newTestEnv(t)
	conn := dialStream(t, env, "/api/series/USD_JPY/stream")
	nextMessage(t, conn, MessageTypeView)

	if opened, _ := env.recorder.streams(); opened != 1 {
		t.Errorf("streams opened = %d, want 1", opened)
	}

	done := make(chan struct{})
	go func() {
		env.handler.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	if _, closed := env.recorder.streams(); closed != 1 {
		t.Errorf("streams closed = %d, want 1", closed)
	}

	// The route is recorded once the handler returns.
	deadline := time.Now().Add(5 * time.Second)
	for len(env.recorder.codes(routeSeriesStream)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := env.recorder.codes(routeSeriesStream); len(got) != 1 || got[0] != http.StatusSwitchingProtocols {
		t.Errorf("stream route codes = %v, want [101]", got)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("read after close = %v, want going away", err)
			}
			break
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.AllowedOrigins = []string{"http://dash.example"}
	})

	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "api.local", true},
		{"http://dash.example", "api.local", true},
		{"http://api.local", "api.local", true},
		{"http://evil.example", "api.local", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := env.handler.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}
