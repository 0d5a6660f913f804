package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"messenger/internal/pkg/errs"
)

// CreateGroupChatInput is the payload of a create-group-chat event.
type CreateGroupChatInput struct {
	Title          string  `json:"title"`
	ParticipantIDs []int64 `json:"participantIds"`
}

// CreateGroupChat creates a GROUP chat owned by creatorID. The creator and duplicate ids are
// removed from the participant list, which must still name at least one other user.
func (s *Service) CreateGroupChat(ctx context.Context, creatorID int64, in CreateGroupChatInput) (*Chat, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, errs.NewError(errs.ErrInvalidGroupChat)
	}

	participantIDs := make([]int64, 0, len(in.ParticipantIDs))
	for _, id := range in.ParticipantIDs {
		if id != creatorID && !slices.Contains(participantIDs, id) {
			participantIDs = append(participantIDs, id)
		}
	}
	if len(participantIDs) == 0 {
		return nil, errs.NewError(errs.ErrInvalidGroupChat)
	}

	chat, err := s.store.CreateChat(ctx, NewChat{
		Type:           TypeGroup,
		Title:          &title,
		CreatorID:      creatorID,
		ParticipantIDs: participantIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("create group chat: %w", err)
	}

	s.logger.Info().
		Int64("chat_id", chat.ID).
		Int64("owner_id", creatorID).
		Int("participant_count", chat.ParticipantCount).
		Msg("Group chat created.")

	return chat, nil
}
