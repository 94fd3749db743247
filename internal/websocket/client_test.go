package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readError(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case data := <-c.send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, MessageTypeError, msg.Type)
		return msg.Error
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected error message to be sent")
	}
	return ""
}

func encode(t *testing.T, msg WSMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestClient_HandleMessage_Subscribe(t *testing.T) {
	hub := startHub(t, nil)
	client := NewClient(hub, nil, 10, nil)
	hub.Register(client)

	client.handleMessage(encode(t, WSMessage{Type: MessageTypeSubscribe, AccountID: 123}))

	require.Eventually(t, func() bool { return hub.Subscribers(123) == 1 }, time.Second, 5*time.Millisecond)
}

func TestClient_HandleMessage_Unsubscribe(t *testing.T) {
	hub := startHub(t, nil)
	client := NewClient(hub, nil, 10, nil)
	hub.Register(client)
	hub.Subscribe(client, 123)
	require.Eventually(t, func() bool { return hub.Subscribers(123) == 1 }, time.Second, 5*time.Millisecond)

	client.handleMessage(encode(t, WSMessage{Type: MessageTypeUnsubscribe, AccountID: 123}))

	require.Eventually(t, func() bool { return hub.Subscribers(123) == 0 }, time.Second, 5*time.Millisecond)
}

func TestClient_HandleMessage_ForeignAccountRefused(t *testing.T) {
	hub := startHub(t, func(_ context.Context, userID, accountID uint) bool {
		return userID == 10 && accountID == 1
	})
	client := NewClient(hub, nil, 10, nil)
	hub.Register(client)

	client.handleMessage(encode(t, WSMessage{Type: MessageTypeSubscribe, AccountID: 2}))

	assert.Equal(t, "account not found", readError(t, client))
	assert.Equal(t, 0, hub.Subscribers(2))
}

func TestClient_HandleMessage_Errors(t *testing.T) {
	hub := NewHub(nil, nil)

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"invalid json", []byte("invalid json"), "invalid message format"},
		{"unknown type", encode(t, WSMessage{Type: "unknown_type"}), "unknown message type"},
		{"subscribe without account", encode(t, WSMessage{Type: MessageTypeSubscribe}), "account_id is required"},
		{"unsubscribe without account", encode(t, WSMessage{Type: MessageTypeUnsubscribe}), "account_id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(hub, nil, 10, nil)
			client.handleMessage(tt.data)
			assert.Contains(t, readError(t, client), tt.want)
		})
	}
}

func TestClient_SendChannel_HasBuffer(t *testing.T) {
	client := NewClient(NewHub(nil, nil), nil, 10, nil)

	for i := 0; i < 10; i++ {
		client.sendError("test error")
	}

	assert.Len(t, client.send, 10)
}
