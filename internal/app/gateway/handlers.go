package gateway

import (
	"context"
	"encoding/json"

	"messenger/internal/app/broadcast"
	"messenger/internal/app/chat"
	"messenger/internal/app/event"
	"messenger/internal/app/registry"
	"messenger/internal/pkg/errs"
	"messenger/internal/pkg/logx"
	"messenger/internal/pkg/req"
)

// ChatService is the part of the chat manager the chat pool exposes to clients.
type ChatService interface {
	GetChats(ctx context.Context, userID int64, in chat.PageInput) (*chat.ChatPage, error)
	GetChat(ctx context.Context, userID, polymorphicID int64) (*chat.Chat, error)
	GetChatHistory(ctx context.Context, userID int64, in chat.HistoryInput) (*chat.MessagePage, error)
	CreateGroupChat(ctx context.Context, creatorID int64, in chat.CreateGroupChatInput) (*chat.Chat, error)
	CreateMessage(ctx context.Context, creatorID int64, in chat.CreateMessageInput) (*chat.CreateMessageResult, error)
	DeleteMessages(ctx context.Context, removerID, chatID int64, messageIDs []string) ([]string, error)
}

// Broadcaster fans events out to chat participants.
type Broadcaster interface {
	BroadcastToChat(ctx context.Context, chatID int64, name event.Name, payload broadcast.PayloadFunc) (int, error)
	BroadcastToParticipants(ctx context.Context, c *chat.Chat, name event.Name, payload broadcast.PayloadFunc) int
}

type getChatInput struct {
	PolymorphicID int64 `json:"polymorphicId"`
}

type deleteMessagesInput struct {
	ChatID     int64    `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
}

type changeStatusInput struct {
	Status string `json:"status"`
}

// RegisterChatHandlers registers the chat pool events on r.
func RegisterChatHandlers(r *Router, chats ChatService, out Broadcaster) {
	h := &chatHandlers{chats: chats, out: out}

	r.Handle(event.GetChats, h.getChats)
	r.Handle(event.GetChat, h.getChat)
	r.Handle(event.GetChatHistory, h.getChatHistory)
	r.Handle(event.CreateGroupChat, h.createGroupChat)
	r.Handle(event.SendMessage, h.sendMessage)
	r.Handle(event.DeleteMessages, h.deleteMessages)
}

type chatHandlers struct {
	chats ChatService
	out   Broadcaster
}

func (h *chatHandlers) getChats(ctx context.Context, s *Session, payload json.RawMessage) (event.Name, any, error) {
	var in chat.PageInput
	if err := req.DecodePayload(payload, &in); err != nil {
		return "", nil, err
	}

	page, err := h.chats.GetChats(ctx, s.UserID(), in)
	if err != nil {
		return "", nil, err
	}
	return event.Chats, page, nil
}

func (h *chatHandlers) getChat(ctx context.Context, s *Session, payload json.RawMessage) (event.Name, any, error) {
	var in getChatInput
	if err := req.DecodePayload(payload, &in); err != nil {
		return "", nil, err
	}

	c, err := h.chats.GetChat(ctx, s.UserID(), in.PolymorphicID)
	if err != nil {
		return "", nil, err
	}
	if c == nil {
		return event.ChatFound, nil, nil
	}
	return event.ChatFound, c, nil
}

func (h *chatHandlers) getChatHistory(ctx context.Context, s *Session, payload json.RawMessage) (event.Name, any, error) {
	var in chat.HistoryInput
	if err := req.DecodePayload(payload, &in); err != nil {
		return "", nil, err
	}

	page, err := h.chats.GetChatHistory(ctx, s.UserID(), in)
	if err != nil {
		return "", nil, err
	}
	return event.ChatHistory, page, nil
}

func (h *chatHandlers) createGroupChat(ctx context.Context, s *Session, payload json.RawMessage) (event.Name, any, error) {
	var in chat.CreateGroupChatInput
	if err := req.DecodePayload(payload, &in); err != nil {
		return "", nil, err
	}

	creatorID := s.UserID()
	c, err := h.chats.CreateGroupChat(ctx, creatorID, in)
	if err != nil {
		return "", nil, err
	}

	h.out.BroadcastToParticipants(ctx, c, event.NewChat, func(recipientID int64) (any, bool) {
		if recipientID == creatorID {
			return nil, false
		}
		return c.ViewFor(recipientID), true
	})

	return event.GroupChatCreated, c.ViewFor(creatorID), nil
}

// sendMessage stores the message, announces a freshly created chat, then pushes the message
// to every participant, the sender's own connection included.
func (h *chatHandlers) sendMessage(ctx context.Context, s *Session, payload json.RawMessage) (event.Name, any, error) {
	var in chat.CreateMessageInput
	if err := req.DecodePayload(payload, &in); err != nil {
		return "", nil, err
	}

	res, err := h.chats.CreateMessage(ctx, s.UserID(), in)
	if err != nil {
		return "", nil, err
	}

	if res.HasBeenCreated && res.Chat != nil {
		h.out.BroadcastToParticipants(ctx, res.Chat, event.NewChat, func(recipientID int64) (any, bool) {
			return res.Chat.ViewFor(recipientID), true
		})
	}

	push := broadcast.Static(event.NewMessagePayload{ChatID: res.ChatID, Message: res.Message})
	if res.Chat != nil {
		h.out.BroadcastToParticipants(ctx, res.Chat, event.NewMessage, push)
	} else if _, err := h.out.BroadcastToChat(ctx, res.ChatID, event.NewMessage, push); err != nil {
		logger := s.Logger()
		logger.Warn().Err(err).Int64("chat_id", res.ChatID).Msg("Failed to broadcast new message")
	}

	return event.MessageSent, res, nil
}

func (h *chatHandlers) deleteMessages(ctx context.Context, s *Session, payload json.RawMessage) (event.Name, any, error) {
	var in deleteMessagesInput
	if err := req.DecodePayload(payload, &in); err != nil {
		return "", nil, err
	}

	deleted, err := h.chats.DeleteMessages(ctx, s.UserID(), in.ChatID, in.MessageIDs)
	if err != nil {
		return "", nil, err
	}

	body := event.GoneMessagesPayload{ChatID: in.ChatID, MessageIDs: deleted}
	if len(deleted) > 0 {
		if _, err := h.out.BroadcastToChat(ctx, in.ChatID, event.GoneMessages, broadcast.Static(body)); err != nil {
			logx.Warn("Failed to broadcast deleted messages", "chat_id", in.ChatID, "error", err.Error())
		}
	}

	return event.MessagesDeleted, body, nil
}

// RegisterPresenceHandlers registers the presence pool events on r.
func RegisterPresenceHandlers(r *Router, reg registry.Registry, status StatusEmitter) {
	r.Handle(event.ChangeStatus, func(ctx context.Context, s *Session, payload json.RawMessage) (event.Name, any, error) {
		var in changeStatusInput
		if err := req.DecodePayload(payload, &in); err != nil {
			return "", nil, err
		}

		st, err := registry.ParseStatus(in.Status)
		if err != nil {
			return "", nil, errs.Wrap(errs.ErrInvalidStatus, err)
		}

		userID := s.UserID()
		owned, err := reg.SetStatus(ctx, registry.PoolPresence, userID, s.ConnID, st)
		if err != nil {
			return "", nil, err
		}

		reply := event.StatusPayload{UserID: userID, Status: st}
		if !owned {
			// A newer connection of the same user owns the presence entry; it speaks for the user.
			return event.StatusChanged, reply, nil
		}

		if err := status.EmitStatusToCounterparts(ctx, userID, st); err != nil {
			logger := s.Logger()
			logger.Warn().Err(err).Str("status", string(st)).Msg("Failed to broadcast status change")
		}

		return event.StatusChanged, reply, nil
	})
}
