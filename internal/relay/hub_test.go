package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func startHub(t *testing.T, origins []string) (*Hub, string, func()) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub, origins))
	stop := func() {
		cancel()
		<-hub.Done()
		srv.Close()
	}
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), stop
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubDeliversLatestAndUpdates(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, url, stop := startHub(t, nil)
	defer stop()

	require.NoError(t, hub.Publish(MessageTypeSnapshot, map[string]string{"status": "NOT_STARTED"}))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readMessage(t, conn)
	assert.Equal(t, MessageTypeSnapshot, first.Type)
	assert.JSONEq(t, `{"status":"NOT_STARTED"}`, string(first.Payload))

	require.NoError(t, hub.Publish(MessageTypeSnapshot, map[string]string{"status": "OPEN"}))
	// A coalesced notification for the first publish may still be in flight.
	for i := 0; i < 3; i++ {
		msg := readMessage(t, conn)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		if payload["status"] == "OPEN" {
			assert.GreaterOrEqual(t, msg.Timestamp, first.Timestamp)
			return
		}
	}
	t.Fatal("never received the updated snapshot")
}

func TestHubClosesClientsOnStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, url, stop := startHub(t, nil)
	require.NoError(t, hub.Publish(MessageTypeHidden, struct{}{}))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, MessageTypeHidden, readMessage(t, conn).Type)

	stop()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestHandlerRejectsUnknownOrigin(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, url, stop := startHub(t, []string{"https://widget.example.com"})
	defer stop()

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://widget.example.com"}})
	require.NoError(t, err)
	conn.Close()
}

func TestPublishRejectsUnencodablePayload(t *testing.T) {
	hub := NewHub(nil)
	assert.Error(t, hub.Publish(MessageTypeSnapshot, make(chan int)))
	assert.Nil(t, hub.Latest())
}
