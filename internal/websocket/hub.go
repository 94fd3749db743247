package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/welldanyogia/webrana-crm-mail/internal/mailparse"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeNewEmail    MessageType = "new_email"
	MessageTypeError       MessageType = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      MessageType `json:"type"`
	AccountID uint        `json:"account_id,omitempty"`
	Email     interface{} `json:"email,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewEmailPayload describes a newly ingested inbound email
type NewEmailPayload struct {
	ID          uint   `json:"id"`
	ThreadID    uint   `json:"thread_id"`
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
	ReceivedAt  string `json:"received_at"`
}

// SubscribeFunc decides whether a user may watch an account
type SubscribeFunc func(ctx context.Context, userID, accountID uint) bool

// Hub maintains the set of active clients and broadcasts new emails to
// the subscribers of an account
type Hub struct {
	clients map[*Client]bool

	// accountID -> set of clients
	subscriptions map[uint]map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest
	broadcast   chan *broadcastMessage

	mu sync.RWMutex

	canSubscribe SubscribeFunc
	logger       *slog.Logger
}

type subscriptionRequest struct {
	client    *Client
	accountID uint
}

type broadcastMessage struct {
	accountID uint
	message   []byte
}

// NewHub creates a new Hub. canSubscribe may be nil to allow every subscription.
func NewHub(canSubscribe SubscribeFunc, logger *slog.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[uint]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan *subscriptionRequest),
		unsubscribe:   make(chan *subscriptionRequest),
		broadcast:     make(chan *broadcastMessage, 256),
		canSubscribe:  canSubscribe,
		logger:        logger,
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*Client]bool)
			h.subscriptions = make(map[uint]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.debug("client registered", slog.Uint64("user_id", uint64(client.userID)))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				for accountID, subscribers := range h.subscriptions {
					delete(subscribers, client)
					if len(subscribers) == 0 {
						delete(h.subscriptions, accountID)
					}
				}
			}
			h.mu.Unlock()
			h.debug("client unregistered", slog.Uint64("user_id", uint64(client.userID)))

		case req := <-h.subscribe:
			h.mu.Lock()
			if h.subscriptions[req.accountID] == nil {
				h.subscriptions[req.accountID] = make(map[*Client]bool)
			}
			h.subscriptions[req.accountID][req.client] = true
			h.mu.Unlock()
			h.debug("client subscribed to account", slog.Uint64("account_id", uint64(req.accountID)))

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if subscribers, ok := h.subscriptions[req.accountID]; ok {
				delete(subscribers, req.client)
				if len(subscribers) == 0 {
					delete(h.subscriptions, req.accountID)
				}
			}
			h.mu.Unlock()
			h.debug("client unsubscribed from account", slog.Uint64("account_id", uint64(req.accountID)))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.subscriptions[msg.accountID] {
				select {
				case client.send <- msg.message:
				default:
					// slow client, drop
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) debug(msg string, attrs ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, attrs...)
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe subscribes a client to an account
func (h *Hub) Subscribe(client *Client, accountID uint) {
	h.subscribe <- &subscriptionRequest{client: client, accountID: accountID}
}

// Unsubscribe unsubscribes a client from an account
func (h *Hub) Unsubscribe(client *Client, accountID uint) {
	h.unsubscribe <- &subscriptionRequest{client: client, accountID: accountID}
}

// Subscribers returns the number of clients watching an account
func (h *Hub) Subscribers(accountID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[accountID])
}

func (h *Hub) allowed(ctx context.Context, userID, accountID uint) bool {
	if h.canSubscribe == nil {
		return true
	}
	return h.canSubscribe(ctx, userID, accountID)
}

// NotifyNewEmail broadcasts an ingested email to the account subscribers.
// It never blocks; the notification is dropped when the broadcast buffer is full.
func (h *Hub) NotifyNewEmail(accountID uint, email *models.Email) {
	received := email.CreatedAt
	if email.DeliveredAt != nil {
		received = *email.DeliveredAt
	}
	h.BroadcastNewEmail(accountID, &NewEmailPayload{
		ID:          email.ID,
		ThreadID:    email.ThreadID,
		FromAddress: email.FromAddress,
		FromName:    email.FromName,
		Subject:     email.Subject,
		Snippet:     mailparse.Snippet(email.BodyText),
		ReceivedAt:  received.UTC().Format(time.RFC3339),
	})
}

// BroadcastNewEmail sends a new email notification to account subscribers
func (h *Hub) BroadcastNewEmail(accountID uint, payload *NewEmailPayload) {
	data, err := json.Marshal(WSMessage{
		Type:      MessageTypeNewEmail,
		AccountID: accountID,
		Email:     payload,
	})
	if err != nil {
		if h.logger != nil {
			h.logger.Error("failed to marshal broadcast message", slog.Any("error", err))
		}
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{accountID: accountID, message: data}:
	default:
		if h.logger != nil {
			h.logger.Warn("broadcast buffer full, notification dropped", slog.Uint64("account_id", uint64(accountID)))
		}
	}
}
