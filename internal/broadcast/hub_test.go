package broadcast

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNotifyDeliversToConnectedClient(t *testing.T) {
	hub := NewHub(zerolog.Nop(), 10)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server goroutine a moment to register the client.
	time.Sleep(50 * time.Millisecond)
	hub.Notify("trade")

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var got nudge
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "trade", got.Type)
	require.NotEmpty(t, got.At)
}

func TestMaxClientsRejectsExtraConnections(t *testing.T) {
	hub := NewHub(zerolog.Nop(), 1)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	c1, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer c1.Close()
	time.Sleep(50 * time.Millisecond)

	c2, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		defer c2.Close()
	}
	_ = resp
	// The second connection is either refused at handshake or closed
	// immediately by the server once it observes the client cap.
	if c2 != nil {
		_ = c2.SetReadDeadline(time.Now().Add(time.Second))
		_, _, readErr := c2.ReadMessage()
		require.Error(t, readErr)
	}
}
