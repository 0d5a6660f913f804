package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"messenger/internal/pkg/logx"
)

const (
	replyAttempts = 3
	replyBackoff  = 200 * time.Millisecond
)

// HandlerFunc serves one command. The returned value becomes the JSON reply body; a returned
// error is sent back in the error header.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// Responder serves commands arriving on one topic. A request is committed only after its reply
// has been written, so a crash in between leads to redelivery.
type Responder struct {
	requests Reader
	writer   Writer
	handlers map[string]HandlerFunc

	logger zerolog.Logger
}

// NewResponder constructs a Responder reading requests from requests and replying through writer.
func NewResponder(requests Reader, writer Writer) *Responder {
	return &Responder{
		requests: requests,
		writer:   writer,
		handlers: make(map[string]HandlerFunc),
		logger:   logx.Component("BrokerResponder"),
	}
}

// Handle registers the handler for cmd. It must be called before Run.
func (r *Responder) Handle(cmd string, h HandlerFunc) {
	r.handlers[cmd] = h
}

// Run serves requests until ctx is cancelled. It returns an error when a reply cannot be
// written, leaving the request uncommitted.
func (r *Responder) Run(ctx context.Context) error {
	r.logger.Info().Msg("Responder started.")
	defer r.logger.Info().Msg("Responder stopped.")

	for {
		msg, err := r.requests.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("broker: fetch request: %w", err)
		}

		if err := r.serve(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := r.requests.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			r.logger.Warn().Err(err).Msg("Failed to commit request offset")
		}
	}
}

func (r *Responder) serve(ctx context.Context, msg kafka.Message) error {
	cmd := header(msg, HeaderCommand)
	replyTo := header(msg, HeaderReplyTo)
	correlationID := header(msg, HeaderCorrelationID)

	logger := r.logger.With().Str("cmd", cmd).Str("correlation_id", correlationID).Logger()

	if replyTo == "" || correlationID == "" {
		logger.Warn().Msg("Request without reply address dropped")
		return nil
	}

	reply := kafka.Message{
		Topic:   replyTo,
		Headers: []kafka.Header{{Key: HeaderCorrelationID, Value: []byte(correlationID)}},
	}

	if body, err := r.handle(ctx, cmd, msg.Value); err != nil {
		logger.Warn().Err(err).Msg("Command failed")
		reply.Headers = append(reply.Headers, kafka.Header{Key: HeaderError, Value: []byte(err.Error())})
	} else {
		reply.Value = body
	}

	var err error
	for attempt := 1; attempt <= replyAttempts; attempt++ {
		if err = r.writer.WriteMessages(ctx, reply); err == nil {
			return nil
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("Failed to write reply")
		if attempt == replyAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(replyBackoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("broker: reply to %s for %s: %w", replyTo, cmd, err)
}

func (r *Responder) handle(ctx context.Context, cmd string, payload []byte) ([]byte, error) {
	h, ok := r.handlers[cmd]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", cmd)
	}

	result, err := h(ctx, payload)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return body, nil
}
