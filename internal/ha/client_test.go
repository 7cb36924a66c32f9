package ha

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// mockHAServer creates a mock Home Assistant WebSocket server
func mockHAServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("Failed to upgrade connection: %v", err)
		}
		defer conn.Close()

		handler(conn)
	}))
}

// standardAuthFlow handles the standard authentication flow
func standardAuthFlow(t *testing.T, conn *websocket.Conn, token string) {
	// Send auth_required
	err := conn.WriteJSON(Message{Type: "auth_required"})
	require.NoError(t, err)

	// Receive auth message
	var authMsg AuthMessage
	err = conn.ReadJSON(&authMsg)
	require.NoError(t, err)
	assert.Equal(t, "auth", authMsg.Type)
	assert.Equal(t, token, authMsg.AccessToken)

	// Send auth_ok
	err = conn.WriteJSON(Message{Type: "auth_ok"})
	require.NoError(t, err)
}

// ackSubscribeEvents consumes the event subscription the client sends right
// after connecting and acknowledges it.
func ackSubscribeEvents(conn *websocket.Conn) {
	var subMsg SubscribeEventsRequest
	conn.ReadJSON(&subMsg)

	success := true
	conn.WriteJSON(Message{
		ID:      subMsg.ID,
		Type:    "result",
		Success: &success,
	})
}

func TestClient_Connect(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	t.Run("successful connection", func(t *testing.T) {
		server := mockHAServer(t, func(conn *websocket.Conn) {
			standardAuthFlow(t, conn, token)
			ackSubscribeEvents(conn)

			// Keep connection open
			time.Sleep(100 * time.Millisecond)
		})
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http")
		client := NewClient(url, token, logger)

		err := client.Connect()
		assert.NoError(t, err)
		assert.True(t, client.IsConnected())

		client.Disconnect()
	})

	t.Run("invalid token", func(t *testing.T) {
		server := mockHAServer(t, func(conn *websocket.Conn) {
			// Send auth_required
			conn.WriteJSON(Message{Type: "auth_required"})

			// Receive auth message
			var authMsg AuthMessage
			conn.ReadJSON(&authMsg)

			// Send auth_invalid
			conn.WriteJSON(Message{Type: "auth_invalid"})
		})
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http")
		client := NewClient(url, "wrong_token", logger)

		err := client.Connect()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "authentication failed")
		assert.False(t, client.IsConnected())
	})

	t.Run("already connected", func(t *testing.T) {
		server := mockHAServer(t, func(conn *websocket.Conn) {
			standardAuthFlow(t, conn, token)
			ackSubscribeEvents(conn)

			time.Sleep(100 * time.Millisecond)
		})
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http")
		client := NewClient(url, token, logger)

		err := client.Connect()
		require.NoError(t, err)

		err = client.Connect()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already connected")

		client.Disconnect()
	})
}

func TestClient_GetAllStates(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	server := mockHAServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, token)
		ackSubscribeEvents(conn)

		// Handle get_states request
		var statesReq GetStatesRequest
		conn.ReadJSON(&statesReq)

		states := []*State{
			{
				EntityID: "input_boolean.tv_clock",
				State:    "on",
				Attributes: map[string]interface{}{
					"friendly_name": "TV Clock",
				},
			},
			{
				EntityID: "input_number.tv_overlay_visibility",
				State:    "42.0",
				Attributes: map[string]interface{}{
					"friendly_name": "TV Overlay Visibility",
				},
			},
		}

		success := true
		statesJSON, _ := json.Marshal(states)
		conn.WriteJSON(Message{
			ID:      statesReq.ID,
			Type:    "result",
			Success: &success,
			Result:  statesJSON,
		})

		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewClient(url, token, logger)

	err := client.Connect()
	require.NoError(t, err)
	defer client.Disconnect()

	states, err := client.GetAllStates()
	assert.NoError(t, err)
	assert.Len(t, states, 2)
	assert.Equal(t, "input_boolean.tv_clock", states[0].EntityID)
	assert.Equal(t, "on", states[0].State)
}

func TestClient_StateChangeDelivery(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	server := mockHAServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, token)
		ackSubscribeEvents(conn)

		// Give the test a moment to register its handler
		time.Sleep(100 * time.Millisecond)

		eventData, _ := json.Marshal(StateChangedEvent{
			EntityID: "input_boolean.tv_clock",
			OldState: &State{EntityID: "input_boolean.tv_clock", State: "on"},
			NewState: &State{EntityID: "input_boolean.tv_clock", State: "off"},
		})
		conn.WriteJSON(Message{
			Type: "event",
			Event: &Event{
				EventType: "state_changed",
				Data:      eventData,
			},
		})

		time.Sleep(200 * time.Millisecond)
	})
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewClient(url, token, logger)

	err := client.Connect()
	require.NoError(t, err)
	defer client.Disconnect()

	changes := make(chan string, 1)
	_, err = client.SubscribeStateChanges("input_boolean.tv_clock", func(entityID string, oldState, newState *State) {
		changes <- newState.State
	})
	require.NoError(t, err)

	select {
	case state := <-changes:
		assert.Equal(t, "off", state)
	case <-time.After(2 * time.Second):
		t.Fatal("state change was not delivered")
	}
}

func TestMockClient(t *testing.T) {
	mock := NewMockClient()

	t.Run("connection", func(t *testing.T) {
		assert.False(t, mock.IsConnected())

		err := mock.Connect()
		assert.NoError(t, err)
		assert.True(t, mock.IsConnected())

		err = mock.Connect()
		assert.Error(t, err)

		err = mock.Disconnect()
		assert.NoError(t, err)
		assert.False(t, mock.IsConnected())
	})

	t.Run("state management", func(t *testing.T) {
		mock.SetState("input_boolean.tv_clock", "on", map[string]interface{}{
			"friendly_name": "TV Clock",
		})

		states, err := mock.GetAllStates()
		assert.NoError(t, err)
		require.Len(t, states, 1)
		assert.Equal(t, "on", states[0].State)
	})

	t.Run("subscriptions", func(t *testing.T) {
		callCount := 0
		handler := func(entityID string, oldState, newState *State) {
			callCount++
			assert.Equal(t, "input_boolean.tv_clock", entityID)
			assert.Equal(t, "off", newState.State)
		}

		sub, err := mock.SubscribeStateChanges("input_boolean.tv_clock", handler)
		assert.NoError(t, err)
		assert.Equal(t, 1, mock.SubscriberCount("input_boolean.tv_clock"))

		mock.SimulateStateChange("input_boolean.tv_clock", "off")
		assert.Equal(t, 1, callCount)

		require.NoError(t, sub.Unsubscribe())
		assert.Equal(t, 0, mock.SubscriberCount("input_boolean.tv_clock"))

		mock.SimulateStateChange("input_boolean.tv_clock", "off")
		assert.Equal(t, 1, callCount, "unsubscribed handler must not fire")
	})
}
