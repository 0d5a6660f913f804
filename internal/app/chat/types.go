/*
Package chat contains the messenger's conversation domain: chats, participants, messages,
the resolver that maps a polymorphic identifier onto a chat, and the service that creates and
deletes messages and chats.

The package talks to persistence and to collaborator services only through the interfaces
declared in store.go, so it can run against Postgres in production and an in-memory store in
tests.
*/
package chat

import (
	"slices"
	"time"

	"messenger/internal/app/user"
)

// Type is the kind of a chat.
type Type string

const (
	// TypeLocal is a direct conversation between exactly two users.
	TypeLocal Type = "local"

	// TypeGroup is a titled conversation with an owner and at least two participants.
	TypeGroup Type = "group"

	// TypeTemp is never stored. It is the projection returned for a user one has no chat with yet.
	TypeTemp Type = "temp"
)

// TemporaryChatID is the id carried by TEMP chat projections.
const TemporaryChatID int64 = -1

// Role is a participant's role within a chat.
type Role string

const (
	RoleOwner       Role = "owner"
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// Participant links a user to a chat with a role.
type Participant struct {
	UserID int64      `json:"userId"`
	Role   Role       `json:"role"`
	User   *user.User `json:"user,omitempty"`
}

// Chat is a conversation together with its participants.
type Chat struct {
	ID               int64         `json:"id"`
	Type             Type          `json:"type"`
	Title            *string       `json:"title"`
	ParticipantCount int           `json:"participantCount"`
	Participants     []Participant `json:"participants"`
	LastMessage      *Message      `json:"lastMessage"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// HasParticipant reports whether userID takes part in the chat.
func (c *Chat) HasParticipant(userID int64) bool {
	_, ok := c.RoleOf(userID)
	return ok
}

// RoleOf returns the role of userID in the chat.
func (c *Chat) RoleOf(userID int64) (Role, bool) {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p.Role, true
		}
	}
	return "", false
}

// ParticipantIDs returns the user ids of all participants.
func (c *Chat) ParticipantIDs() []int64 {
	ids := make([]int64, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// ViewFor returns a shallow copy of the chat as shown to viewerID: the viewer is left out
// of the participant list, the participant count is unchanged.
func (c *Chat) ViewFor(viewerID int64) *Chat {
	view := *c
	view.Participants = slices.DeleteFunc(slices.Clone(c.Participants), func(p Participant) bool {
		return p.UserID == viewerID
	})
	return &view
}

// Attachment is a file confirmed by the Attachment service as belonging to a message.
type Attachment struct {
	ID       string `json:"id"`
	FileKey  string `json:"fileKey"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`

	// URL is a short-lived download link, filled in when history is served with storage configured.
	URL string `json:"url,omitempty"`
}

// Message is a stored chat message.
type Message struct {
	ID          string       `json:"id"`
	ChatID      int64        `json:"chatId"`
	CreatorID   int64        `json:"creatorId"`
	Text        *string      `json:"text"`
	ReplyForID  *string      `json:"replyForId,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}
