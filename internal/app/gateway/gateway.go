package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"messenger/internal/app/event"
	"messenger/internal/app/registry"
	"messenger/internal/pkg/errs"
	"messenger/internal/pkg/logx"
	"messenger/internal/pkg/randx"
)

// disconnectTimeout bounds registry cleanup and the offline broadcast after a socket closes.
const disconnectTimeout = 10 * time.Second

// Config wires a Gateway.
type Config struct {
	Hub       *Hub
	Auth      Authenticator
	Registry  registry.Registry
	Status    StatusEmitter
	Chats     ChatService
	Broadcast Broadcaster
}

// Gateway serves upgraded sockets of both pools.
type Gateway struct {
	hub       *Hub
	lifecycle *Lifecycle
	routers   map[registry.Pool]*Router

	// parent of every connection context; cancelled on shutdown.
	baseCtx context.Context

	logger zerolog.Logger
}

// New builds a Gateway. ctx bounds the lifetime of every connection it serves.
func New(ctx context.Context, cfg Config) *Gateway {
	chatRouter := NewRouter()
	RegisterChatHandlers(chatRouter, cfg.Chats, cfg.Broadcast)

	presenceRouter := NewRouter()
	RegisterPresenceHandlers(presenceRouter, cfg.Registry, cfg.Status)

	return &Gateway{
		hub:       cfg.Hub,
		lifecycle: NewLifecycle(cfg.Auth, cfg.Registry, cfg.Status, cfg.Hub.InstanceID()),
		routers: map[registry.Pool]*Router{
			registry.PoolChat:     chatRouter,
			registry.PoolPresence: presenceRouter,
		},
		baseCtx: ctx,
		logger:  logx.Component("Gateway"),
	}
}

// Serve runs one upgraded connection in pool until it closes. token is the bearer token taken
// from the handshake. Serve blocks for the lifetime of the connection.
func (g *Gateway) Serve(conn *websocket.Conn, pool registry.Pool, token string) {
	router, ok := g.routers[pool]
	if !ok {
		g.logger.Error().Str("pool", string(pool)).Msg("Connection for unknown pool rejected.")
		_ = conn.Close()
		return
	}

	session := NewSession(randx.ConnectionID(), pool)
	client := newClient(conn, session)

	go client.WritePump()

	if !g.hub.Register(client) {
		client.CloseWithCode(websocket.CloseGoingAway, "Server shutting down.")
		return
	}
	defer g.hub.Unregister(client)

	ctx, cancel := context.WithCancel(g.baseCtx)
	defer cancel()

	if err := g.lifecycle.Connect(ctx, session, token); err != nil {
		g.rejectConnection(client, err)
		return
	}

	client.ReadPump(func(frame []byte) {
		g.handleFrame(ctx, router, client, frame)
	})

	cleanupCtx, cleanupCancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cleanupCancel()
	g.lifecycle.Disconnect(cleanupCtx, session)
}

// rejectConnection reports a failed authentication to the client and closes the socket.
func (g *Gateway) rejectConnection(client *Client, err error) {
	customErr := errs.From(err)

	logger := client.log()
	logger.Warn().Err(err).Int("code", customErr.Code).Msg("Connection rejected during authentication.")

	if frame, encErr := event.Encode(event.Error, event.NewErrorPayload(err), ""); encErr == nil {
		_ = client.Send(frame)
	}

	code := WsCloseCodeUnauthorized
	if customErr.Code != errs.ErrUnauthorized {
		code = WsCloseCodeUpstream
	}
	client.CloseWithCode(code, customErr.Message)
}

// handleFrame decodes one inbound frame, dispatches it and queues the reply.
func (g *Gateway) handleFrame(ctx context.Context, router *Router, client *Client, raw []byte) {
	var in event.Inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
		g.reply(client, event.Error, event.NewErrorPayload(errs.NewError(errs.ErrInvalidJSONFormat)), "")
		return
	}

	session := client.Session()
	if session.State() != StateConnected {
		return
	}

	name, payload, err := g.dispatch(ctx, router, session, in)
	if err != nil {
		customErr := errs.From(err)
		if customErr.Code == errs.ErrUnknown || customErr.Code == errs.ErrUpstreamUnavailable {
			logger := session.Logger()
			logger.Error().Err(err).Str("event", string(in.Event)).Msg("Event handler failed")
		}
		g.reply(client, event.Error, event.NewErrorPayload(err), in.AckID)
		return
	}

	g.reply(client, name, payload, in.AckID)
}

// dispatch runs the handler and turns a panic into an internal error.
func (g *Gateway) dispatch(ctx context.Context, router *Router, s *Session, in event.Inbound) (name event.Name, payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.NewError(errs.ErrUnknown, fmt.Errorf("panic in %s handler: %v", in.Event, r))
		}
	}()
	return router.Dispatch(ctx, s, in)
}

func (g *Gateway) reply(client *Client, name event.Name, payload any, ackID string) {
	frame, err := event.Encode(name, payload, ackID)
	if err != nil {
		logger := client.log()
		logger.Error().Err(err).Str("event", string(name)).Msg("Failed to encode reply")
		return
	}

	if err := client.Send(frame); err != nil {
		logger := client.log()
		logger.Debug().Err(err).Str("event", string(name)).Msg("Reply not queued")
	}
}
