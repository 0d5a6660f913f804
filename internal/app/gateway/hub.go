package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"messenger/internal/app/broadcast"
	"messenger/internal/app/registry"
	"messenger/internal/pkg/logx"
)

// Hub tracks the clients connected to this instance and delivers frames to them. Frames for
// connections held by other instances go through the relay.
type Hub struct {
	// identifies this service instance in registry entries and relay channels.
	instanceID string

	// cross-instance transport.
	relay Relay

	// connected clients keyed by connection id.
	clients map[string]*Client

	// a channel for clients joining the hub.
	register chan *Client

	// a channel for clients leaving the hub.
	unregister chan *Client

	// used to signal the Run loop to stop immediately.
	stopChan chan struct{}
	stopOnce sync.Once

	// mu protects access to the clients map.
	mu sync.RWMutex

	logger zerolog.Logger
}

var _ broadcast.Deliverer = (*Hub)(nil)

// NewHub creates a hub for instanceID. Run must be started before clients register.
func NewHub(instanceID string, relay Relay) *Hub {
	if relay == nil {
		relay = NopRelay{}
	}

	return &Hub{
		instanceID: instanceID,
		relay:      relay,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopChan:   make(chan struct{}),
		logger:     logx.Component("Hub").With().Str("instance_id", instanceID).Logger(),
	}
}

// InstanceID returns the id of this instance.
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// Run processes registrations and relayed envelopes until ctx is cancelled or Stop is called.
// On exit every remaining client is closed.
func (h *Hub) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	relayErr := make(chan error, 1)
	go func() {
		relayErr <- h.relay.Subscribe(ctx, h.instanceID, h.handleEnvelope)
	}()

	defer h.closeAll()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.session.ConnID] = client
			total := len(h.clients)
			h.mu.Unlock()

			h.logger.Debug().
				Str("conn_id", client.session.ConnID).
				Int("total_clients", total).
				Msg("Client joined hub.")

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.session.ConnID]; ok && current == client {
				delete(h.clients, client.session.ConnID)
			}
			total := len(h.clients)
			h.mu.Unlock()

			h.logger.Debug().
				Str("conn_id", client.session.ConnID).
				Int("total_clients", total).
				Msg("Client left hub.")

		case err := <-relayErr:
			if err != nil {
				h.logger.Error().Err(err).Msg("Relay subscription ended.")
				return fmt.Errorf("relay: %w", err)
			}
			relayErr = nil

		case <-ctx.Done():
			h.logger.Info().Msg("Hub context done. Stopping.")
			return nil

		case <-h.stopChan:
			h.logger.Info().Msg("Hub forced stop initiated.")
			return nil
		}
	}
}

// Stop terminates the Run loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

// Register adds a client. It returns false when the hub is no longer running.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopChan:
		return false
	}
}

// Unregister removes a client. Removing a client that was replaced or never added is a no-op.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopChan:
	}
}

// Len returns the number of clients connected to this instance.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver hands frame to the connection named by target: directly when this instance holds it,
// through the relay otherwise.
func (h *Hub) Deliver(ctx context.Context, target broadcast.Target, frame []byte) error {
	if target.Entry.InstanceID == h.instanceID {
		return h.deliverLocal(target.Pool, target.UserID, target.Entry.ConnID, frame)
	}

	return h.relay.Publish(ctx, target.Entry.InstanceID, Envelope{
		Pool:   target.Pool,
		UserID: target.UserID,
		ConnID: target.Entry.ConnID,
		Frame:  frame,
	})
}

func (h *Hub) handleEnvelope(env Envelope) {
	if err := h.deliverLocal(env.Pool, env.UserID, env.ConnID, env.Frame); err != nil {
		h.logger.Debug().Err(err).
			Str("conn_id", env.ConnID).
			Int64("user_id", env.UserID).
			Msg("Relayed frame not delivered")
	}
}

// deliverLocal sends frame to a client of this instance. The client must still be connected
// as the expected user in the expected pool.
func (h *Hub) deliverLocal(pool registry.Pool, userID int64, connID string, frame []byte) error {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("connection %s is gone", connID)
	}

	s := client.session
	if s.Pool != pool || s.UserID() != userID || s.State() != StateConnected {
		return fmt.Errorf("connection %s no longer serves user %d in %s", connID, userID, pool)
	}

	return client.Send(frame)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.CloseWithCode(websocket.CloseGoingAway, "Server shutting down.")
	}

	h.Stop()
}
