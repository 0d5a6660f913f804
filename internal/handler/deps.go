package handler

import (
	"context"

	"messenger/internal/app/gateway"
	"messenger/internal/configs"
)

// Pinger reports whether a backing service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppDeps carries what the HTTP surface needs.
type AppDeps struct {
	Gateway *gateway.Gateway
	Config  *configs.AppConfig

	// InstanceID tags every request log line.
	InstanceID string

	// Checks run by /ready, keyed by the name reported on failure.
	Checks map[string]Pinger
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }
