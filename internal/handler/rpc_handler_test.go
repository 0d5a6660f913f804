package handler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger/internal/app/chat"
	"messenger/internal/app/chat/chattest"
	"messenger/internal/pkg/errs"
)

func TestHandleGetLocalChats(t *testing.T) {
	ctx := context.Background()
	svc := chat.NewService(chat.ServiceDeps{
		Store:       chattest.NewMemoryStore(),
		Users:       chattest.NewUsers(1, 2, 3),
		Attachments: &chattest.Attachments{},
	})

	two := int64(2)
	_, err := svc.CreateMessage(ctx, 1, chat.CreateMessageInput{CounterpartUserID: &two, Text: "hi"})
	require.NoError(t, err)
	_, err = svc.CreateGroupChat(ctx, 1, chat.CreateGroupChatInput{Title: "Team", ParticipantIDs: []int64{2, 3}})
	require.NoError(t, err)

	h := HandleGetLocalChats(svc)

	out, err := h(ctx, json.RawMessage(`{"userId":1}`))
	require.NoError(t, err)
	chats, ok := out.([]*chat.Chat)
	require.True(t, ok)
	require.Len(t, chats, 1)
	assert.Equal(t, chat.TypeLocal, chats[0].Type)

	_, err = h(ctx, json.RawMessage(`{}`))
	assert.True(t, errs.HasCode(err, errs.ErrInvalidParams))

	_, err = h(ctx, json.RawMessage(`{"userId":"one"}`))
	assert.True(t, errs.HasCode(err, errs.ErrInvalidJSONFormat))
}
