package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"messenger/internal/pkg/logx"
	"messenger/internal/pkg/randx"
)

// DefaultTimeout applies when ClientConfig.Timeout is zero.
const DefaultTimeout = 5 * time.Second

type reply struct {
	body    []byte
	errText string
}

// ClientConfig wires a Client.
type ClientConfig struct {
	Writer     Writer
	Replies    Reader
	ReplyTopic string
	Timeout    time.Duration
}

// Client sends requests and matches replies by correlation id. Run must be running for
// calls to complete.
type Client struct {
	writer     Writer
	replies    Reader
	replyTopic string
	timeout    time.Duration

	mu      sync.Mutex
	pending map[string]chan reply

	logger zerolog.Logger
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		writer:     cfg.Writer,
		replies:    cfg.Replies,
		replyTopic: cfg.ReplyTopic,
		timeout:    timeout,
		pending:    make(map[string]chan reply),
		logger:     logx.Component("BrokerClient").With().Str("reply_topic", cfg.ReplyTopic).Logger(),
	}
}

// Call sends cmd with req as body to topic and decodes the reply body into resp, which may be nil.
func (c *Client) Call(ctx context.Context, topic, cmd string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("broker: encode %s request: %w", cmd, err)
	}

	correlationID := randx.CorrelationID()
	ch := make(chan reply, 1)

	c.mu.Lock()
	c.pending[correlationID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err = c.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Value: body,
		Headers: []kafka.Header{
			{Key: HeaderCommand, Value: []byte(cmd)},
			{Key: HeaderCorrelationID, Value: []byte(correlationID)},
			{Key: HeaderReplyTo, Value: []byte(c.replyTopic)},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("broker: send %s: %w", cmd, ErrTimeout)
		}
		return fmt.Errorf("broker: send %s: %w", cmd, err)
	}

	select {
	case r := <-ch:
		if r.errText != "" {
			return &RemoteError{Command: cmd, Message: r.errText}
		}
		if resp == nil || len(r.body) == 0 {
			return nil
		}
		if err := json.Unmarshal(r.body, resp); err != nil {
			return fmt.Errorf("broker: decode %s reply: %w", cmd, err)
		}
		return nil

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("broker: %s: %w", cmd, ErrTimeout)
		}
		return ctx.Err()
	}
}

// Run consumes the reply topic until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info().Msg("Reply consumer started.")
	defer c.logger.Info().Msg("Reply consumer stopped.")

	for {
		msg, err := c.replies.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("broker: fetch reply: %w", err)
		}

		c.route(msg)

		if err := c.replies.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Msg("Failed to commit reply offset")
		}
	}
}

func (c *Client) route(msg kafka.Message) {
	correlationID := header(msg, HeaderCorrelationID)

	c.mu.Lock()
	ch, ok := c.pending[correlationID]
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Str("correlation_id", correlationID).Msg("Dropping reply without a waiting caller")
		return
	}

	select {
	case ch <- reply{body: msg.Value, errText: header(msg, HeaderError)}:
	default:
		c.logger.Warn().Str("correlation_id", correlationID).Msg("Duplicate reply ignored")
	}
}

// Close releases the reader and writer.
func (c *Client) Close() error {
	return errors.Join(c.replies.Close(), c.writer.Close())
}
