package broadcast

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"messenger/internal/app/event"
	"messenger/internal/app/registry"
)

// CounterpartSource lists the users whose presence a user shares.
type CounterpartSource interface {
	Counterparts(ctx context.Context, userID int64) ([]int64, error)
}

// CounterpartFunc adapts a function to CounterpartSource.
type CounterpartFunc func(ctx context.Context, userID int64) ([]int64, error)

func (f CounterpartFunc) Counterparts(ctx context.Context, userID int64) ([]int64, error) {
	return f(ctx, userID)
}

// EmitStatusToCounterparts tells every reachable counterpart of userID about status. When the
// user itself is connected to the presence pool, whatever its own status, it receives one
// chat-status-changed per reachable counterpart with that counterpart's current status.
func (d *Dispatcher) EmitStatusToCounterparts(ctx context.Context, userID int64, status registry.Status) error {
	counterparts, err := d.counterparts.Counterparts(ctx, userID)
	if err != nil {
		return fmt.Errorf("list counterparts of %d: %w", userID, err)
	}

	self, err := d.registry.Get(ctx, registry.PoolPresence, userID)
	if err != nil {
		d.logger.Warn().Err(err).Int64("user_id", userID).Msg("Own presence lookup failed")
		self = nil
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		pulled []event.StatusPayload
	)
	g.SetLimit(d.lookupLimit)

	outgoing := event.StatusPayload{UserID: userID, Status: status}
	for _, counterpartID := range dedupe(counterparts, userID) {
		g.Go(func() error {
			entry, err := d.registry.Get(ctx, registry.PoolPresence, counterpartID)
			if err != nil {
				d.logger.Warn().Err(err).Int64("user_id", counterpartID).Msg("Registry lookup failed")
				return nil
			}
			if entry == nil {
				return nil
			}

			d.deliver(ctx, Target{Pool: registry.PoolPresence, UserID: counterpartID, Entry: *entry}, event.ChatStatusChanged, outgoing)

			if self != nil {
				mu.Lock()
				pulled = append(pulled, event.StatusPayload{UserID: counterpartID, Status: entry.Status})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if self != nil {
		target := Target{Pool: registry.PoolPresence, UserID: userID, Entry: *self}
		for _, p := range pulled {
			d.deliver(ctx, target, event.ChatStatusChanged, p)
		}
	}

	d.logger.Debug().
		Int64("user_id", userID).
		Str("status", string(status)).
		Int("counterparts", len(counterparts)).
		Msg("Status broadcast.")

	return nil
}

func dedupe(ids []int64, exclude int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
