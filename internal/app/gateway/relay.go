package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"messenger/internal/app/registry"
	"messenger/internal/pkg/logx"
)

// ErrNoRelay is returned when a frame targets another instance but no relay is configured.
var ErrNoRelay = errors.New("gateway: no relay to reach other instances")

// Envelope carries a frame to the instance holding the target connection.
type Envelope struct {
	Pool   registry.Pool   `json:"pool"`
	UserID int64           `json:"userId"`
	ConnID string          `json:"connId"`
	Frame  json.RawMessage `json:"frame"`
}

// Relay moves envelopes between service instances.
type Relay interface {
	// Publish sends env to the instance instanceID.
	Publish(ctx context.Context, instanceID string, env Envelope) error

	// Subscribe delivers envelopes addressed to instanceID to handle until ctx is cancelled.
	Subscribe(ctx context.Context, instanceID string, handle func(Envelope)) error
}

// NopRelay is used by a single instance. Nothing is ever addressed to another instance.
type NopRelay struct{}

func (NopRelay) Publish(context.Context, string, Envelope) error { return ErrNoRelay }

func (NopRelay) Subscribe(ctx context.Context, _ string, _ func(Envelope)) error {
	<-ctx.Done()
	return nil
}

// RedisRelay uses one Redis Pub/Sub channel per instance.
type RedisRelay struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

var _ Relay = (*RedisRelay)(nil)

// NewRedisRelay constructs a relay whose channels are named <prefix>:deliver:<instanceId>.
func NewRedisRelay(client *redis.Client, prefix string) *RedisRelay {
	return &RedisRelay{
		client: client,
		prefix: prefix,
		logger: logx.Component("RedisRelay"),
	}
}

func (r *RedisRelay) channel(instanceID string) string {
	return fmt.Sprintf("%s:deliver:%s", r.prefix, instanceID)
}

func (r *RedisRelay) Publish(ctx context.Context, instanceID string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	receivers, err := r.client.Publish(ctx, r.channel(instanceID), data).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", instanceID, err)
	}
	if receivers == 0 {
		return fmt.Errorf("instance %s is not listening", instanceID)
	}
	return nil
}

func (r *RedisRelay) Subscribe(ctx context.Context, instanceID string, handle func(Envelope)) error {
	channel := r.channel(instanceID)

	sub := r.client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	r.logger.Info().Str("channel", channel).Msg("Relay subscription active.")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn().Err(err).Msg("Dropping malformed envelope")
				continue
			}
			handle(env)
		}
	}
}
