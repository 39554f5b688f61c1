package service

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traingrid/internal/scheduler"
	"traingrid/pkg/constants"
)

// dialHub starts a websocket endpoint that subscribes every connection to
// the hub and returns a connected client.
func dialHub(t *testing.T, hub *EventHub) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Subscribe(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	return client
}

func TestEventHubDelivery(t *testing.T) {
	hub := NewEventHub()
	defer hub.Close()

	client := dialHub(t, hub)

	hub.Notify(scheduler.Event{
		Type:   scheduler.EventJobStatusChanged,
		JobID:  "job-1",
		Status: constants.JobStatusRunning,
	})

	client.SetReadDeadline(time.Now().Add(time.Second))
	var got scheduler.Event
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, scheduler.EventJobStatusChanged, got.Type)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, constants.JobStatusRunning, got.Status)
}

func TestEventHubHistory(t *testing.T) {
	hub := NewEventHub()
	defer hub.Close()

	for i := 0; i < historyLimit+50; i++ {
		hub.Notify(scheduler.Event{
			Type:  scheduler.EventWorkerRegistered,
			JobID: fmt.Sprintf("job-%d", i),
		})
	}

	recent := hub.Recent()
	require.Len(t, recent, historyLimit)
	// Oldest entries fell off, newest is last
	assert.Equal(t, fmt.Sprintf("job-%d", historyLimit+49), recent[len(recent)-1].JobID)
	assert.Equal(t, "job-50", recent[0].JobID)
}

func TestEventHubClose(t *testing.T) {
	hub := NewEventHub()
	client := dialHub(t, hub)

	hub.Close()
	assert.Equal(t, 0, hub.SubscriberCount())

	// Events after close are discarded
	hub.Notify(scheduler.Event{Type: scheduler.EventWorkerRegistered})
	assert.Empty(t, hub.Recent())

	// The client sees the connection go away
	client.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}
