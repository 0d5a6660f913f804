/*
Package event defines the realtime wire protocol: event names and the JSON frames exchanged with
clients over WebSocket.

Every frame is an object {"event", "payload", "ackId"}. Clients may set ackId on a request; the
server echoes it on the direct reply (or on the error frame) so the client can correlate them.
Push events carry no ackId.
*/
package event

import (
	"encoding/json"

	"messenger/internal/app/chat"
	"messenger/internal/app/registry"
	"messenger/internal/pkg/errs"
)

// Name is an event name.
type Name string

// Client -> server events.
const (
	GetChats        Name = "get-chats"
	GetChat         Name = "get-chat"
	GetChatHistory  Name = "get-chat-history"
	CreateGroupChat Name = "create-group-chat"
	SendMessage     Name = "send-message"
	DeleteMessages  Name = "delete-messages"
	ChangeStatus    Name = "change-status"
)

// Direct replies to client requests.
const (
	Chats            Name = "chats"
	ChatFound        Name = "chat"
	ChatHistory      Name = "chat-history"
	GroupChatCreated Name = "group-chat-created"
	MessageSent      Name = "message-sent"
	MessagesDeleted  Name = "messages-deleted"
	StatusChanged    Name = "status-changed"
	Error            Name = "error"
)

// Server -> client push events.
const (
	NewChat           Name = "new-chat"
	NewMessage        Name = "new-message"
	GoneMessages      Name = "gone-messages"
	ChatStatusChanged Name = "chat-status-changed"
)

// Inbound is a frame received from a client.
type Inbound struct {
	Event   Name            `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	AckID   string          `json:"ackId,omitempty"`
}

// Outbound is a frame sent to a client.
type Outbound struct {
	Event   Name   `json:"event"`
	Payload any    `json:"payload"`
	AckID   string `json:"ackId,omitempty"`
}

// Encode marshals an outbound frame.
func Encode(name Name, payload any, ackID string) ([]byte, error) {
	return json.Marshal(Outbound{Event: name, Payload: payload, AckID: ackID})
}

// NewMessagePayload is pushed to every participant when a message is stored.
type NewMessagePayload struct {
	ChatID  int64         `json:"chatId"`
	Message *chat.Message `json:"message"`
}

// GoneMessagesPayload is pushed to every participant when messages are deleted.
type GoneMessagesPayload struct {
	ChatID     int64    `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
}

// StatusPayload carries one user's presence status.
type StatusPayload struct {
	UserID int64           `json:"userId"`
	Status registry.Status `json:"status"`
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewErrorPayload converts any error into the client-facing error body.
func NewErrorPayload(err error) ErrorPayload {
	customErr := errs.From(err)
	return ErrorPayload{Code: customErr.Code, Message: customErr.Message}
}
