/*
Package broadcast fans events out to users through the connection registry.

Delivery is best effort: a recipient without a live entry is skipped, and a failed lookup or send
is logged without affecting other recipients. Nothing is queued for offline users.
*/
package broadcast

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"messenger/internal/app/chat"
	"messenger/internal/app/event"
	"messenger/internal/app/registry"
	"messenger/internal/pkg/logx"
)

// defaultLookupLimit bounds concurrent registry lookups per broadcast.
const defaultLookupLimit = 16

// Target is a resolved recipient: the registry entry of the user in a pool.
type Target struct {
	Pool   registry.Pool
	UserID int64
	Entry  registry.Entry
}

// Deliverer hands an encoded frame to the connection described by a target, wherever it lives.
type Deliverer interface {
	Deliver(ctx context.Context, target Target, frame []byte) error
}

// ChatLoader loads chats for fan-out without access checks.
type ChatLoader interface {
	Chat(ctx context.Context, chatID int64) (*chat.Chat, error)
}

// PayloadFunc builds the payload for one recipient. Returning false skips the recipient.
type PayloadFunc func(recipientID int64) (any, bool)

// Static sends the same payload to every recipient.
func Static(payload any) PayloadFunc {
	return func(int64) (any, bool) { return payload, true }
}

// Dispatcher delivers events to chat participants and presence counterparts.
type Dispatcher struct {
	registry     registry.Registry
	deliverer    Deliverer
	chats        ChatLoader
	counterparts CounterpartSource
	lookupLimit  int

	logger zerolog.Logger
}

// Config wires a Dispatcher.
type Config struct {
	Registry     registry.Registry
	Deliverer    Deliverer
	Chats        ChatLoader
	Counterparts CounterpartSource

	// LookupLimit defaults to 16.
	LookupLimit int
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	limit := cfg.LookupLimit
	if limit <= 0 {
		limit = defaultLookupLimit
	}

	return &Dispatcher{
		registry:     cfg.Registry,
		deliverer:    cfg.Deliverer,
		chats:        cfg.Chats,
		counterparts: cfg.Counterparts,
		lookupLimit:  limit,
		logger:       logx.Component("Dispatcher"),
	}
}

// BroadcastToChat loads the chat and delivers the event to every participant connected to the
// chat pool. It returns the number of recipients the frame was handed to; an absent chat yields 0.
func (d *Dispatcher) BroadcastToChat(ctx context.Context, chatID int64, name event.Name, payload PayloadFunc) (int, error) {
	c, err := d.chats.Chat(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("load chat %d for broadcast: %w", chatID, err)
	}
	if c == nil {
		return 0, nil
	}
	return d.BroadcastToParticipants(ctx, c, name, payload), nil
}

// BroadcastToParticipants delivers the event to the participants of an already loaded chat.
func (d *Dispatcher) BroadcastToParticipants(ctx context.Context, c *chat.Chat, name event.Name, payload PayloadFunc) int {
	return d.SendToUsers(ctx, registry.PoolChat, c.ParticipantIDs(), name, payload)
}

// SendToUsers delivers the event to each listed user that has an entry in pool.
func (d *Dispatcher) SendToUsers(ctx context.Context, pool registry.Pool, userIDs []int64, name event.Name, payload PayloadFunc) int {
	var (
		g         errgroup.Group
		delivered atomic.Int64
	)
	g.SetLimit(d.lookupLimit)

	for _, userID := range userIDs {
		g.Go(func() error {
			body, ok := payload(userID)
			if !ok {
				return nil
			}

			entry, err := d.registry.Get(ctx, pool, userID)
			if err != nil {
				d.logger.Warn().Err(err).Int64("user_id", userID).Str("pool", string(pool)).Msg("Registry lookup failed")
				return nil
			}
			if entry == nil {
				return nil
			}

			if d.deliver(ctx, Target{Pool: pool, UserID: userID, Entry: *entry}, name, body) {
				delivered.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(delivered.Load())
}

func (d *Dispatcher) deliver(ctx context.Context, target Target, name event.Name, payload any) bool {
	frame, err := event.Encode(name, payload, "")
	if err != nil {
		d.logger.Error().Err(err).Str("event", string(name)).Msg("Failed to encode event")
		return false
	}

	if err := d.deliverer.Deliver(ctx, target, frame); err != nil {
		d.logger.Debug().Err(err).
			Int64("user_id", target.UserID).
			Str("conn_id", target.Entry.ConnID).
			Str("event", string(name)).
			Msg("Delivery failed")
		return false
	}
	return true
}
