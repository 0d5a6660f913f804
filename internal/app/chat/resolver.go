package chat

import (
	"context"
	"fmt"

	"messenger/internal/pkg/errs"
)

// Resolver maps a polymorphic identifier onto a chat the current user may see.
//
// The identifier is first treated as a chat id. Only when no chat has that id is it treated
// as the id of a counterpart user, in which case the LOCAL chat between the two users is
// looked up. A chat found either way but lacking the current user yields ErrNoAccess.
type Resolver struct {
	chats ChatReader
}

// NewResolver constructs a Resolver over the given chat reader.
func NewResolver(chats ChatReader) *Resolver {
	return &Resolver{chats: chats}
}

// Resolve returns the chat, or (nil, nil) when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, currentUserID, polymorphicID int64) (*Chat, error) {
	chat, err := r.chats.ChatByID(ctx, polymorphicID)
	if err != nil {
		return nil, fmt.Errorf("load chat %d: %w", polymorphicID, err)
	}

	if chat == nil {
		chat, err = r.chats.LocalChatBetween(ctx, currentUserID, polymorphicID)
		if err != nil {
			return nil, fmt.Errorf("load local chat with %d: %w", polymorphicID, err)
		}
	}

	if chat == nil {
		return nil, nil
	}

	if !chat.HasParticipant(currentUserID) {
		return nil, errs.NewError(errs.ErrNoAccess)
	}

	return chat, nil
}
