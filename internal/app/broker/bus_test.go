package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"
)

// memBus is an in-process stand-in for Kafka topics.
type memBus struct {
	mu     sync.Mutex
	topics map[string]chan kafka.Message
	fail   error
}

func newMemBus() *memBus {
	return &memBus{topics: make(map[string]chan kafka.Message)}
}

func (b *memBus) topic(name string) chan kafka.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan kafka.Message, 64)
		b.topics[name] = ch
	}
	return ch
}

func (b *memBus) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	b.mu.Lock()
	fail := b.fail
	b.mu.Unlock()
	if fail != nil {
		return fail
	}

	for _, m := range msgs {
		if m.Topic == "" {
			return errors.New("message without topic")
		}
		select {
		case b.topic(m.Topic) <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *memBus) Close() error { return nil }

func (b *memBus) reader(topic string) *memReader {
	return &memReader{ch: b.topic(topic)}
}

type memReader struct {
	ch chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *memReader) commitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func (r *memReader) Close() error { return nil }
