package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"messenger/internal/app/broker"
	"messenger/internal/app/chat"
	"messenger/internal/pkg/errs"
	"messenger/internal/pkg/req"
)

// CmdGetLocalChats is the broker command other services use to list a user's direct chats.
const CmdGetLocalChats = "get-local-chats"

// LocalChatLister lists a user's LOCAL chats.
type LocalChatLister interface {
	LocalChats(ctx context.Context, userID int64) ([]*chat.Chat, error)
}

type localChatsRequest struct {
	UserID int64 `json:"userId"`
}

// RegisterRPCHandlers registers the commands this service answers on the broker.
func RegisterRPCHandlers(r *broker.Responder, chats LocalChatLister) {
	r.Handle(CmdGetLocalChats, HandleGetLocalChats(chats))
}

// HandleGetLocalChats answers get-local-chats {userId} with the user's LOCAL chats.
func HandleGetLocalChats(chats LocalChatLister) broker.HandlerFunc {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var in localChatsRequest
		if err := req.DecodePayload(payload, &in); err != nil {
			return nil, err
		}
		if in.UserID <= 0 {
			return nil, errs.NewError(errs.ErrInvalidParams)
		}

		list, err := chats.LocalChats(ctx, in.UserID)
		if err != nil {
			return nil, fmt.Errorf("get-local-chats for %d: %w", in.UserID, err)
		}
		return list, nil
	}
}
