package chat

import (
	"context"
	"errors"

	"messenger/internal/app/user"
)

// ErrLocalChatExists is returned by Store.CreateChat when a LOCAL chat for the same
// unordered pair of users already exists.
var ErrLocalChatExists = errors.New("local chat already exists for this pair of users")

// NewChat describes a chat to insert. The creator becomes OWNER of a group chat; in a
// local chat both users are plain participants.
type NewChat struct {
	Type           Type
	Title          *string
	CreatorID      int64
	ParticipantIDs []int64
}

// NewMessage describes a message to insert.
type NewMessage struct {
	ID         string
	ChatID     int64
	CreatorID  int64
	Text       *string
	ReplyForID *string
}

// DeleteMessagesParams selects the messages to delete. When CreatorID is set only messages
// authored by that user match.
type DeleteMessagesParams struct {
	ChatID     int64
	MessageIDs []string
	CreatorID  *int64
}

// DeletedMessage is a message removed by Store.DeleteMessages.
type DeletedMessage struct {
	ID            string
	CreatorID     int64
	AttachmentIDs []string
}

// ChatReader is the read side needed to resolve chats.
type ChatReader interface {
	// ChatByID returns the chat with its participants, or nil if it does not exist.
	ChatByID(ctx context.Context, chatID int64) (*Chat, error)

	// LocalChatBetween returns the LOCAL chat of the two users, or nil if none exists.
	LocalChatBetween(ctx context.Context, userA, userB int64) (*Chat, error)
}

// Store is the persistent store of chats and messages.
type Store interface {
	ChatReader

	// CreateChat inserts the chat and its participants and returns it with participants loaded.
	CreateChat(ctx context.Context, chat NewChat) (*Chat, error)

	// UpdateLastMessage points the chat's last message at messageID and bumps updated_at.
	UpdateLastMessage(ctx context.Context, chatID int64, messageID string) error

	// RefreshLastMessage points the chat's last message at its newest remaining message.
	RefreshLastMessage(ctx context.Context, chatID int64) error

	// UserChats returns one page of the user's chats, most recently updated first, and the total count.
	UserChats(ctx context.Context, userID int64, limit, offset int) ([]*Chat, int, error)

	// LocalChats returns all LOCAL chats the user takes part in.
	LocalChats(ctx context.Context, userID int64) ([]*Chat, error)

	// CreateMessage inserts a message. A ReplyForID outside the chat is stored as no reply.
	CreateMessage(ctx context.Context, msg NewMessage) (*Message, error)

	// SaveAttachments records the attachments confirmed for a message.
	SaveAttachments(ctx context.Context, messageID string, attachments []Attachment) error

	// DeleteMessage removes a single message regardless of author.
	DeleteMessage(ctx context.Context, messageID string) error

	// DeleteMessages removes the matching messages of one chat and reports what was removed.
	DeleteMessages(ctx context.Context, params DeleteMessagesParams) ([]DeletedMessage, error)

	// ChatHistory returns one page of a chat's messages, newest first, and the total count.
	ChatHistory(ctx context.Context, chatID int64, limit, offset int) ([]*Message, int, error)
}

// UserDirectory looks up users in the Identity service.
type UserDirectory interface {
	// UserByID returns the user, or nil if the Identity service does not know it.
	UserByID(ctx context.Context, userID int64) (*user.User, error)
}

// ConfirmAttachmentsParams asks the Attachment service to move uploads onto a message.
type ConfirmAttachmentsParams struct {
	AttachmentIDs []string `json:"attachmentIds"`
	CurrentUserID int64    `json:"currentUserId"`
	MessageID     string   `json:"messageId"`
	ChatID        int64    `json:"chatId"`
}

// AttachmentService is the Attachment collaborator.
type AttachmentService interface {
	// ConfirmMessageAttachments re-parents previously unattached uploads of the user onto the
	// message and returns the attachments it accepted.
	ConfirmMessageAttachments(ctx context.Context, params ConfirmAttachmentsParams) ([]Attachment, error)

	// DeleteUnusedFiles asks the Attachment service to forget and remove the user's files.
	DeleteUnusedFiles(ctx context.Context, userID int64, attachmentIDs []string) error
}

// URLSigner produces short-lived download links for stored files.
type URLSigner interface {
	DownloadURL(ctx context.Context, fileKey string) (string, error)
}
