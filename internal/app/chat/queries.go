package chat

import (
	"context"
	"fmt"

	"messenger/internal/app/user"
	"messenger/internal/pkg/errs"
	"messenger/internal/pkg/pagination"
)

// PageInput is the paging part of list requests.
type PageInput struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// ChatPage is one page of a user's chats.
type ChatPage struct {
	Chats []*Chat `json:"chats"`
	pagination.Meta
}

// MessagePage is one page of a chat's history.
type MessagePage struct {
	ChatID   int64      `json:"chatId"`
	Messages []*Message `json:"messages"`
	pagination.Meta
}

// HistoryInput is the payload of a get-chat-history event.
type HistoryInput struct {
	ChatID int64 `json:"chatId"`
	PageInput
}

// GetChats lists the user's chats, most recently active first.
func (s *Service) GetChats(ctx context.Context, userID int64, in PageInput) (*ChatPage, error) {
	page := pagination.Page(in.Page)
	limit := pagination.Limit(in.Limit, MaxChatsPerPage)

	chats, total, err := s.store.UserChats(ctx, userID, limit, pagination.Offset(page, limit))
	if err != nil {
		return nil, fmt.Errorf("list chats of %d: %w", userID, err)
	}

	views := make([]*Chat, 0, len(chats))
	for _, c := range chats {
		views = append(views, c.ViewFor(userID))
	}

	return &ChatPage{Chats: views, Meta: pagination.NewMeta(page, limit, total)}, nil
}

// GetChat resolves polymorphicID for the user. When nothing resolves but the id names an
// existing user, a TEMP chat with that user is returned. (nil, nil) means nothing was found.
func (s *Service) GetChat(ctx context.Context, userID, polymorphicID int64) (*Chat, error) {
	chat, err := s.resolver.Resolve(ctx, userID, polymorphicID)
	if err != nil {
		return nil, err
	}
	if chat != nil {
		return chat.ViewFor(userID), nil
	}

	if polymorphicID == userID {
		return nil, nil
	}

	counterpart, err := s.users.UserByID(ctx, polymorphicID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUpstreamUnavailable, err)
	}
	if counterpart == nil {
		return nil, nil
	}

	return TempChat(counterpart), nil
}

// TempChat is the unsaved projection of a direct chat with counterpart.
func TempChat(counterpart *user.User) *Chat {
	return &Chat{
		ID:               TemporaryChatID,
		Type:             TypeTemp,
		ParticipantCount: 2,
		Participants: []Participant{{
			UserID: counterpart.ID,
			Role:   RoleParticipant,
			User:   counterpart,
		}},
	}
}

// GetChatHistory returns one page of the chat's messages, newest first. A chat that does not
// resolve yields an empty page.
func (s *Service) GetChatHistory(ctx context.Context, userID int64, in HistoryInput) (*MessagePage, error) {
	page := pagination.Page(in.Page)
	limit := pagination.Limit(in.Limit, MaxMessagesPerPage)

	chat, err := s.resolver.Resolve(ctx, userID, in.ChatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return &MessagePage{ChatID: in.ChatID, Messages: []*Message{}, Meta: pagination.NewMeta(page, limit, 0)}, nil
	}

	messages, total, err := s.store.ChatHistory(ctx, chat.ID, limit, pagination.Offset(page, limit))
	if err != nil {
		return nil, fmt.Errorf("load history of chat %d: %w", chat.ID, err)
	}

	s.signAttachmentURLs(ctx, messages)

	return &MessagePage{ChatID: chat.ID, Messages: messages, Meta: pagination.NewMeta(page, limit, total)}, nil
}

func (s *Service) signAttachmentURLs(ctx context.Context, messages []*Message) {
	if s.signer == nil {
		return
	}

	for _, m := range messages {
		for i := range m.Attachments {
			a := &m.Attachments[i]
			url, err := s.signer.DownloadURL(ctx, a.FileKey)
			if err != nil {
				s.logger.Warn().Err(err).Str("file_key", a.FileKey).Msg("Failed to presign attachment URL")
				continue
			}
			a.URL = url
		}
	}
}

// Chat loads a chat by id without access checks, for server-side fan-out.
func (s *Service) Chat(ctx context.Context, chatID int64) (*Chat, error) {
	return s.store.ChatByID(ctx, chatID)
}

// LocalChats returns every LOCAL chat of the user.
func (s *Service) LocalChats(ctx context.Context, userID int64) ([]*Chat, error) {
	chats, err := s.store.LocalChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list local chats of %d: %w", userID, err)
	}
	return chats, nil
}

// LocalPartners returns the users the given user shares a LOCAL chat with.
func (s *Service) LocalPartners(ctx context.Context, userID int64) ([]int64, error) {
	chats, err := s.LocalChats(ctx, userID)
	if err != nil {
		return nil, err
	}

	partners := make([]int64, 0, len(chats))
	for _, c := range chats {
		for _, id := range c.ParticipantIDs() {
			if id != userID {
				partners = append(partners, id)
			}
		}
	}
	return partners, nil
}
