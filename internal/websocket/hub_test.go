package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crosslink-server/internal/engine"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connPair returns a connected server-side and client-side websocket.
func connPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-serverConns
	t.Cleanup(func() { serverConn.Close() })
	return serverConn, clientConn
}

func ev(typ engine.EventType, prio engine.Priority, id string) engine.Event {
	return engine.Event{
		ID:        id,
		Type:      typ,
		Priority:  prio,
		Timestamp: time.Now().UTC(),
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) engine.Event {
	t.Helper()
	var out engine.Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestSendToOfflineUserReturnsFalse(t *testing.T) {
	hub := NewHub(4)
	assert.False(t, hub.Send(42, ev(engine.EventLikeReceived, engine.PriorityNormal, "a")))
	assert.False(t, hub.Online(42))
}

func TestPerRecipientOrderIsPreserved(t *testing.T) {
	hub := NewHub(8)
	serverConn, clientConn := connPair(t)
	c := NewClient(hub, serverConn, 7)
	hub.Register(c)

	// enqueue before the pump runs so ordering depends only on the
	// channel discipline, not on scheduling
	require.True(t, hub.Send(7, ev(engine.EventLikeReceived, engine.PriorityNormal, "first")))
	require.True(t, hub.Send(7, ev(engine.EventLikeReceived, engine.PriorityNormal, "second")))
	require.True(t, hub.Send(7, ev(engine.EventLikeReceived, engine.PriorityNormal, "third")))

	go c.writePump()

	assert.Equal(t, "first", readEvent(t, clientConn).ID)
	assert.Equal(t, "second", readEvent(t, clientConn).ID)
	assert.Equal(t, "third", readEvent(t, clientConn).ID)
}

func TestConfirmationFlushesBeforeLikeAndInvalidation(t *testing.T) {
	hub := NewHub(8)
	serverConn, clientConn := connPair(t)
	c := NewClient(hub, serverConn, 7)
	hub.Register(c)

	// pending at the same instant, enqueued in "wrong" order
	require.True(t, hub.Send(7, ev(engine.EventCacheInvalidate, engine.PriorityLow, "stale")))
	require.True(t, hub.Send(7, ev(engine.EventLikeReceived, engine.PriorityNormal, "like")))
	require.True(t, hub.Send(7, ev(engine.EventMatchCreated, engine.PriorityHigh, "match")))

	go c.writePump()

	assert.Equal(t, "match", readEvent(t, clientConn).ID)
	assert.Equal(t, "like", readEvent(t, clientConn).ID)
	assert.Equal(t, "stale", readEvent(t, clientConn).ID)
}

func TestEnqueueDropsNewWhenBufferFull(t *testing.T) {
	hub := NewHub(1)
	serverConn, _ := connPair(t)
	c := NewClient(hub, serverConn, 7)
	hub.Register(c)
	// pump intentionally not running

	assert.True(t, hub.Send(7, ev(engine.EventLikeReceived, engine.PriorityNormal, "kept")))
	assert.False(t, hub.Send(7, ev(engine.EventLikeReceived, engine.PriorityNormal, "dropped")),
		"full buffer drops the new event instead of blocking")

	// other priority classes are unaffected
	assert.True(t, hub.Send(7, ev(engine.EventMatchCreated, engine.PriorityHigh, "fine")))
}

func TestLastConnectionWins(t *testing.T) {
	hub := NewHub(4)
	serverConn1, _ := connPair(t)
	serverConn2, clientConn2 := connPair(t)

	c1 := NewClient(hub, serverConn1, 7)
	hub.Register(c1)
	c2 := NewClient(hub, serverConn2, 7)
	hub.Register(c2)

	// the replaced client is closed and accepts nothing
	assert.False(t, c1.enqueue(ev(engine.EventLikeReceived, engine.PriorityNormal, "late")))

	require.True(t, hub.Send(7, ev(engine.EventLikeReceived, engine.PriorityNormal, "current")))
	go c2.writePump()
	assert.Equal(t, "current", readEvent(t, clientConn2).ID)

	// a stale unregister from the replaced connection must not evict
	// the live one
	hub.Unregister(c1)
	assert.True(t, hub.Online(7))

	hub.Unregister(c2)
	assert.False(t, hub.Online(7))
}
