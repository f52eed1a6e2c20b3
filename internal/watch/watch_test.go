package watch

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/feedsync/internal/logging"
)

func TestMemoryWatch_SubscribeReplaces(t *testing.T) {
	w := NewMemoryWatch()

	var first, second []int64
	require.NoError(t, w.Subscribe("addr", false, func(e int64, c bool) { first = append(first, e) }))
	require.NoError(t, w.Subscribe("addr", true, func(e int64, c bool) { second = append(second, e) }))

	w.Notify("addr", 5, true)
	require.Empty(t, first, "a replaced callback must never fire")
	require.Equal(t, []int64{5}, second)
}

func TestMemoryWatch_Unsubscribe(t *testing.T) {
	w := NewMemoryWatch()
	var got []int64
	require.NoError(t, w.Subscribe("addr", false, func(e int64, c bool) { got = append(got, e) }))
	w.Unsubscribe("addr")
	w.Notify("addr", 1, false)
	require.Empty(t, got)
	require.False(t, w.Watched("addr"))
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.DiscardHandler))
}

// wsTestServer upgrades connections, records subscribe/unsubscribe
// frames and lets the test push notifications.
type wsTestServer struct {
	srv    *httptest.Server
	mu     sync.Mutex
	frames []subscribeFrame
	conn   *websocket.Conn
	ready  chan struct{}
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	s := &wsTestServer{ready: make(chan struct{}, 4)}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/watch" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		for {
			var frame subscribeFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			s.mu.Lock()
			s.frames = append(s.frames, frame)
			s.mu.Unlock()
			s.ready <- struct{}{}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsTestServer) notify(t *testing.T, note notificationFrame) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NotNil(t, conn)
	require.NoError(t, conn.WriteJSON(note))
}

func (s *wsTestServer) lastFrame() (subscribeFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return subscribeFrame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

func TestGatewayWatch_SubscribeAndNotify(t *testing.T) {
	srv := newWSTestServer(t)

	w := NewGatewayWatch(srv.srv.URL, testLogger())
	defer w.Close()

	notes := make(chan notificationFrame, 1)
	require.NoError(t, w.Subscribe("addr", true, func(e int64, c bool) {
		notes <- notificationFrame{Address: "addr", Edition: e, Confirmed: c}
	}))

	select {
	case <-srv.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("gateway never saw the subscribe frame")
	}
	frame, ok := srv.lastFrame()
	require.True(t, ok)
	require.Equal(t, "subscribe", frame.Action)
	require.Equal(t, "addr", frame.Address)
	require.Equal(t, "active", frame.Priority)

	srv.notify(t, notificationFrame{Address: "addr", Edition: 7, Confirmed: true})
	select {
	case got := <-notes:
		require.Equal(t, int64(7), got.Edition)
		require.True(t, got.Confirmed)
	case <-time.After(5 * time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestGatewayWatch_UnsubscribeSendsFrame(t *testing.T) {
	srv := newWSTestServer(t)
	w := NewGatewayWatch(srv.srv.URL, testLogger())
	defer w.Close()

	require.NoError(t, w.Subscribe("addr", false, func(int64, bool) {}))
	<-srv.ready

	w.Unsubscribe("addr")
	select {
	case <-srv.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("gateway never saw the unsubscribe frame")
	}
	frame, _ := srv.lastFrame()
	require.Equal(t, "unsubscribe", frame.Action)

	srv.notify(t, notificationFrame{Address: "addr", Edition: 9})
	time.Sleep(100 * time.Millisecond) // nothing should be delivered, and nothing should panic
}

func TestGatewayWatch_IgnoresUnknownAddress(t *testing.T) {
	srv := newWSTestServer(t)
	w := NewGatewayWatch(srv.srv.URL, testLogger())
	defer w.Close()

	got := make(chan int64, 1)
	require.NoError(t, w.Subscribe("known", false, func(e int64, _ bool) { got <- e }))
	<-srv.ready

	srv.notify(t, notificationFrame{Address: "unknown", Edition: 1})
	srv.notify(t, notificationFrame{Address: "known", Edition: 2})

	select {
	case e := <-got:
		require.Equal(t, int64(2), e)
	case <-time.After(5 * time.Second):
		t.Fatal("notification never delivered")
	}
}
