package gateway

import (
	"context"
	"encoding/json"

	"messenger/internal/app/event"
	"messenger/internal/pkg/errs"
)

// HandlerFunc handles one inbound event for an authenticated session. It returns the name and
// payload of the direct reply; an error is sent back as an error frame instead.
type HandlerFunc func(ctx context.Context, s *Session, payload json.RawMessage) (event.Name, any, error)

// Router maps event names to handlers. Each pool has its own router.
type Router struct {
	handlers map[event.Name]HandlerFunc
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[event.Name]HandlerFunc)}
}

// Handle registers h for name, replacing any previous handler.
func (r *Router) Handle(name event.Name, h HandlerFunc) {
	r.handlers[name] = h
}

// Dispatch runs the handler registered for in.Event.
func (r *Router) Dispatch(ctx context.Context, s *Session, in event.Inbound) (event.Name, any, error) {
	h, ok := r.handlers[in.Event]
	if !ok {
		return "", nil, errs.NewError(errs.ErrUnknownEvent, string(in.Event))
	}
	return h(ctx, s, in.Payload)
}
