package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRequest struct {
	UserID int64 `json:"userId"`
}

type echoReply struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
}

func startPair(t *testing.T, bus *memBus, timeout time.Duration) (*Client, *Responder, *memReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client := NewClient(ClientConfig{Writer: bus, Replies: bus.reader("replies.a"), ReplyTopic: "replies.a", Timeout: timeout})
	requests := bus.reader("svc.rpc")
	responder := NewResponder(requests, bus)

	go func() { _ = client.Run(ctx) }()
	go func() { _ = responder.Run(ctx) }()

	return client, responder, requests
}

func TestCallAndReply(t *testing.T) {
	bus := newMemBus()
	client, responder, requests := startPair(t, bus, time.Second)

	responder.Handle("get-user-by-id", func(_ context.Context, payload json.RawMessage) (any, error) {
		var req echoRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		return echoReply{UserID: req.UserID, Name: "neo"}, nil
	})

	var resp echoReply
	require.NoError(t, client.Call(context.Background(), "svc.rpc", "get-user-by-id", echoRequest{UserID: 7}, &resp))
	assert.Equal(t, echoReply{UserID: 7, Name: "neo"}, resp)

	assert.Eventually(t, func() bool { return requests.commitCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestCallNullReplyLeavesPointerNil(t *testing.T) {
	bus := newMemBus()
	client, responder, _ := startPair(t, bus, time.Second)

	responder.Handle("get-user-by-id", func(context.Context, json.RawMessage) (any, error) {
		return nil, nil
	})

	resp := &echoReply{}
	require.NoError(t, client.Call(context.Background(), "svc.rpc", "get-user-by-id", echoRequest{UserID: 1}, &resp))
	assert.Nil(t, resp)
}

func TestCallRemoteError(t *testing.T) {
	bus := newMemBus()
	client, responder, _ := startPair(t, bus, time.Second)

	responder.Handle("verify-access-token", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("token expired")
	})

	err := client.Call(context.Background(), "svc.rpc", "verify-access-token", map[string]string{"token": "x"}, nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "verify-access-token", remote.Command)
	assert.Equal(t, "token expired", remote.Message)

	err = client.Call(context.Background(), "svc.rpc", "no-such-command", nil, nil)
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "unknown command")
}

func TestCallTimesOutWithoutResponder(t *testing.T) {
	bus := newMemBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(ClientConfig{Writer: bus, Replies: bus.reader("replies.a"), ReplyTopic: "replies.a", Timeout: 50 * time.Millisecond})
	go func() { _ = client.Run(ctx) }()

	start := time.Now()
	err := client.Call(ctx, "nobody.rpc", "get-user-by-id", echoRequest{UserID: 1}, nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCallWriteFailure(t *testing.T) {
	bus := newMemBus()
	bus.fail = errors.New("broker unreachable")
	client := NewClient(ClientConfig{Writer: bus, Replies: bus.reader("replies.a"), ReplyTopic: "replies.a"})

	err := client.Call(context.Background(), "svc.rpc", "get-user-by-id", nil, nil)
	assert.ErrorContains(t, err, "broker unreachable")
}

func TestConcurrentCallsAreMatchedByCorrelationID(t *testing.T) {
	bus := newMemBus()
	client, responder, _ := startPair(t, bus, 2*time.Second)

	responder.Handle("echo", func(_ context.Context, payload json.RawMessage) (any, error) {
		var req echoRequest
		_ = json.Unmarshal(payload, &req)
		return echoReply{UserID: req.UserID}, nil
	})

	errCh := make(chan error, 20)
	for i := range 20 {
		go func() {
			var resp echoReply
			if err := client.Call(context.Background(), "svc.rpc", "echo", echoRequest{UserID: int64(i)}, &resp); err != nil {
				errCh <- err
				return
			}
			if resp.UserID != int64(i) {
				errCh <- errors.New("mismatched reply")
				return
			}
			errCh <- nil
		}()
	}
	for range 20 {
		assert.NoError(t, <-errCh)
	}
}

func TestResponderDropsRequestWithoutReplyAddress(t *testing.T) {
	bus := newMemBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requests := bus.reader("svc.rpc")
	responder := NewResponder(requests, bus)
	go func() { _ = responder.Run(ctx) }()

	require.NoError(t, bus.WriteMessages(ctx, kafka.Message{Topic: "svc.rpc", Headers: []kafka.Header{{Key: HeaderCommand, Value: []byte("echo")}}}))
	assert.Eventually(t, func() bool { return requests.commitCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestResponderStopsWhenReplyCannotBeWritten(t *testing.T) {
	bus := newMemBus()
	requests := bus.reader("svc.rpc")
	require.NoError(t, bus.WriteMessages(context.Background(), kafka.Message{
		Topic: "svc.rpc",
		Headers: []kafka.Header{
			{Key: HeaderCommand, Value: []byte("echo")},
			{Key: HeaderCorrelationID, Value: []byte("c1")},
			{Key: HeaderReplyTo, Value: []byte("replies.a")},
		},
	}))
	bus.fail = errors.New("broker unreachable")

	responder := NewResponder(requests, bus)
	responder.Handle("echo", func(context.Context, json.RawMessage) (any, error) { return "ok", nil })

	err := responder.Run(context.Background())
	assert.ErrorContains(t, err, "broker unreachable")
	assert.Zero(t, requests.commitCount())
}
