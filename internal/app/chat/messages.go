package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"messenger/internal/pkg/errs"
	"messenger/internal/pkg/randx"
)

// CreateMessageInput is the payload of a send-message event. Exactly one of ChatID and
// CounterpartUserID is expected; when both are present the counterpart wins.
type CreateMessageInput struct {
	ChatID            *int64   `json:"chatId,omitempty"`
	CounterpartUserID *int64   `json:"counterpartUserId,omitempty"`
	Text              string   `json:"text"`
	ReplyForID        *string  `json:"replyForId,omitempty"`
	AttachmentIDs     []string `json:"attachmentIds,omitempty"`
}

// CreateMessageResult reports the stored message and the chat it went to.
type CreateMessageResult struct {
	ChatID         int64    `json:"chatId"`
	Message        *Message `json:"message"`
	HasBeenCreated bool     `json:"hasBeenCreated"`

	// Chat is the chat the message was stored in, with LastMessage set to Message.
	Chat *Chat `json:"-"`
}

// CreateMessage stores a message from creatorID. When no chat resolves and a counterpart
// was given, the LOCAL chat with that counterpart is created first.
func (s *Service) CreateMessage(ctx context.Context, creatorID int64, in CreateMessageInput) (*CreateMessageResult, error) {
	text, err := validateMessageInput(in)
	if err != nil {
		return nil, err
	}

	var polymorphicID int64
	switch {
	case in.CounterpartUserID != nil:
		polymorphicID = *in.CounterpartUserID
	case in.ChatID != nil:
		polymorphicID = *in.ChatID
	default:
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	chat, err := s.resolver.Resolve(ctx, creatorID, polymorphicID)
	if err != nil {
		return nil, err
	}

	hasBeenCreated := false
	if chat == nil {
		if in.CounterpartUserID == nil {
			return nil, errs.NewError(errs.ErrChatNotFound)
		}

		chat, hasBeenCreated, err = s.findOrCreateLocalChat(ctx, creatorID, *in.CounterpartUserID)
		if err != nil {
			return nil, err
		}
	}

	msg, err := s.store.CreateMessage(ctx, NewMessage{
		ID:         randx.MessageID(),
		ChatID:     chat.ID,
		CreatorID:  creatorID,
		Text:       text,
		ReplyForID: validReplyID(in.ReplyForID),
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if len(in.AttachmentIDs) > 0 {
		if err := s.confirmAttachments(ctx, chat.ID, creatorID, msg, in.AttachmentIDs); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateLastMessage(ctx, chat.ID, msg.ID); err != nil {
		return nil, fmt.Errorf("update last message: %w", err)
	}
	chat.LastMessage = msg
	chat.UpdatedAt = msg.CreatedAt

	s.logger.Debug().
		Int64("chat_id", chat.ID).
		Int64("creator_id", creatorID).
		Str("message_id", msg.ID).
		Bool("chat_created", hasBeenCreated).
		Msg("Message stored.")

	return &CreateMessageResult{
		ChatID:         chat.ID,
		Message:        msg,
		HasBeenCreated: hasBeenCreated,
		Chat:           chat,
	}, nil
}

// validateMessageInput returns the text to store, nil when the message carries only attachments.
func validateMessageInput(in CreateMessageInput) (*string, error) {
	if len(in.Text) > MaxContentBytes {
		return nil, errs.NewError(errs.ErrMessageContentTooLong)
	}

	if len(in.AttachmentIDs) > MaxAttachmentsCount {
		return nil, errs.NewError(errs.ErrAttachmentCountInvalid, MaxAttachmentsCount)
	}

	if strings.TrimSpace(in.Text) == "" {
		if len(in.AttachmentIDs) == 0 {
			return nil, errs.NewError(errs.ErrMessageEmpty)
		}
		return nil, nil
	}

	text := in.Text
	return &text, nil
}

func validReplyID(id *string) *string {
	if id == nil || !randx.IsValidUUID(*id) {
		return nil
	}
	return id
}

// findOrCreateLocalChat returns the LOCAL chat of the pair, creating it when absent. The
// existence check runs again right before the insert, and a concurrent insert that wins the
// unique constraint is resolved by loading the chat it created.
func (s *Service) findOrCreateLocalChat(ctx context.Context, creatorID, counterpartID int64) (*Chat, bool, error) {
	if creatorID == counterpartID {
		return nil, false, errs.NewError(errs.ErrInvalidParams)
	}

	existing, err := s.store.LocalChatBetween(ctx, creatorID, counterpartID)
	if err != nil {
		return nil, false, fmt.Errorf("load local chat: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	counterpart, err := s.users.UserByID(ctx, counterpartID)
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrUpstreamUnavailable, err)
	}
	if counterpart == nil {
		return nil, false, errs.NewError(errs.ErrCounterpartNotFound)
	}

	chat, err := s.store.CreateChat(ctx, NewChat{
		Type:           TypeLocal,
		CreatorID:      creatorID,
		ParticipantIDs: []int64{counterpartID},
	})
	if errors.Is(err, ErrLocalChatExists) {
		existing, err = s.store.LocalChatBetween(ctx, creatorID, counterpartID)
		if err != nil {
			return nil, false, fmt.Errorf("reload local chat: %w", err)
		}
		if existing == nil {
			return nil, false, fmt.Errorf("local chat of %d and %d vanished after conflict", creatorID, counterpartID)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create local chat: %w", err)
	}

	s.logger.Info().
		Int64("chat_id", chat.ID).
		Int64("creator_id", creatorID).
		Int64("counterpart_id", counterpartID).
		Msg("Local chat created.")

	return chat, true, nil
}

// confirmAttachments re-parents the uploads onto msg. On failure the message is removed again.
func (s *Service) confirmAttachments(ctx context.Context, chatID, creatorID int64, msg *Message, attachmentIDs []string) error {
	attachments, err := s.attachments.ConfirmMessageAttachments(ctx, ConfirmAttachmentsParams{
		AttachmentIDs: attachmentIDs,
		CurrentUserID: creatorID,
		MessageID:     msg.ID,
		ChatID:        chatID,
	})
	if err == nil {
		err = s.store.SaveAttachments(ctx, msg.ID, attachments)
	}

	if err != nil {
		if delErr := s.store.DeleteMessage(ctx, msg.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("message_id", msg.ID).Msg("Failed to remove message after attachment failure")
		}
		return errs.Wrap(errs.ErrUpstreamUnavailable, err)
	}

	msg.Attachments = attachments
	return nil
}

// DeleteMessages hard-deletes messages of a chat on behalf of removerID and returns the ids
// actually removed. In a GROUP chat a plain participant only removes their own messages;
// owners, admins and both sides of a LOCAL chat remove any. Ids that are malformed, unknown
// or not allowed are dropped without error. A chat that does not exist yields no ids.
func (s *Service) DeleteMessages(ctx context.Context, removerID, chatID int64, messageIDs []string) ([]string, error) {
	chat, err := s.store.ChatByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat %d: %w", chatID, err)
	}
	if chat == nil {
		return []string{}, nil
	}

	role, ok := chat.RoleOf(removerID)
	if !ok {
		return nil, errs.NewError(errs.ErrNoAccess)
	}

	ids := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if randx.IsValidUUID(id) && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	params := DeleteMessagesParams{ChatID: chat.ID, MessageIDs: ids}
	if chat.Type == TypeGroup && role == RoleParticipant {
		params.CreatorID = &removerID
	}

	deleted, err := s.store.DeleteMessages(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}

	deletedIDs := make([]string, 0, len(deleted))
	filesByOwner := make(map[int64][]string)
	for _, m := range deleted {
		deletedIDs = append(deletedIDs, m.ID)
		if len(m.AttachmentIDs) > 0 {
			filesByOwner[m.CreatorID] = append(filesByOwner[m.CreatorID], m.AttachmentIDs...)
		}
	}

	if chat.LastMessage != nil && slices.Contains(deletedIDs, chat.LastMessage.ID) {
		if err := s.store.RefreshLastMessage(ctx, chat.ID); err != nil {
			s.logger.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to repoint last message")
		}
	}

	for ownerID, fileIDs := range filesByOwner {
		if err := s.attachments.DeleteUnusedFiles(ctx, ownerID, fileIDs); err != nil {
			s.logger.Warn().Err(err).
				Int64("owner_id", ownerID).
				Strs("attachment_ids", fileIDs).
				Msg("Failed to report unused files")
		}
	}

	if ignored := len(messageIDs) - len(deletedIDs); ignored > 0 {
		s.logger.Debug().
			Int64("chat_id", chat.ID).
			Int64("remover_id", removerID).
			Int("ignored", ignored).
			Msg("Some message ids were not deleted.")
	}

	return deletedIDs, nil
}
