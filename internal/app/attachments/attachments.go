// Package attachments is the client side of the Attachment collaborator.
package attachments

import (
	"context"
	"fmt"

	"messenger/internal/app/chat"
)

// Broker commands served by the Attachment service.
const (
	CmdConfirmMessageAttachments = "confirm-message-attachments"
	CmdDeleteUnusedFiles         = "delete-unused-files"
)

// Caller performs one broker request/reply exchange.
type Caller interface {
	Call(ctx context.Context, topic, cmd string, req, resp any) error
}

// BrokerClient reaches the Attachment service over the broker.
type BrokerClient struct {
	caller Caller
	topic  string
}

var _ chat.AttachmentService = (*BrokerClient)(nil)

// NewBrokerClient returns a client sending requests to topic.
func NewBrokerClient(caller Caller, topic string) *BrokerClient {
	return &BrokerClient{caller: caller, topic: topic}
}

func (c *BrokerClient) ConfirmMessageAttachments(ctx context.Context, params chat.ConfirmAttachmentsParams) ([]chat.Attachment, error) {
	var confirmed []chat.Attachment
	if err := c.caller.Call(ctx, c.topic, CmdConfirmMessageAttachments, params, &confirmed); err != nil {
		return nil, fmt.Errorf("attachments: %s for message %s: %w", CmdConfirmMessageAttachments, params.MessageID, err)
	}
	if confirmed == nil {
		confirmed = []chat.Attachment{}
	}
	return confirmed, nil
}

type deleteUnusedRequest struct {
	UserID  int64    `json:"userId"`
	FileIDs []string `json:"fileIds"`
}

func (c *BrokerClient) DeleteUnusedFiles(ctx context.Context, userID int64, attachmentIDs []string) error {
	req := deleteUnusedRequest{UserID: userID, FileIDs: attachmentIDs}
	if err := c.caller.Call(ctx, c.topic, CmdDeleteUnusedFiles, req, nil); err != nil {
		return fmt.Errorf("attachments: %s for user %d: %w", CmdDeleteUnusedFiles, userID, err)
	}
	return nil
}
