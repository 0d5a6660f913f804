/*
Package broker implements request/reply RPC between services on top of Kafka.

A request is a message on the callee's topic carrying the command name, a correlation id and
the topic the caller reads replies from, all as headers, with a JSON body. The callee answers on
the reply topic with the same correlation id and either a JSON body or an error header. Every
call waits for exactly one reply or fails after a timeout.
*/
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message headers.
const (
	HeaderCommand       = "cmd"
	HeaderCorrelationID = "correlation-id"
	HeaderReplyTo       = "reply-to"
	HeaderError         = "error"
)

// ErrTimeout is returned when no reply arrives in time.
var ErrTimeout = errors.New("broker: request timed out")

// RemoteError is an error reported by the remote handler.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("broker: %s failed remotely: %s", e.Command, e.Message)
}

// Writer is the producing side of *kafka.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Reader is the consumer-group side of *kafka.Reader. Messages are committed explicitly.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer that routes each message by its Topic field.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           5 * time.Millisecond,
	}
}

// NewKafkaReader returns a consumer-group reader for topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     250 * time.Millisecond,
	})
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
