package db

import (
	"context"
	"math/rand/v2"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger/internal/app/chat"
)

// testDatabaseEnv names a disposable PostgreSQL database. Store tests are skipped without it.
const testDatabaseEnv = "MESSENGER_TEST_DATABASE_URL"

func newTestStore(t *testing.T) (*ChatStore, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv(testDatabaseEnv)
	if dsn == "" {
		t.Skipf("%s is not set", testDatabaseEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	pool, err := NewPool(ctx, dsn, PoolOptions{MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewChatStore(pool), pool
}

// userIDs returns n user ids no other test run uses, so runs can share a database.
func userIDs(n int) []int64 {
	base := rand.Int64N(1<<40) * 16
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = base + int64(i) + 1
	}
	return ids
}

func createChat(t *testing.T, store *ChatStore, pool *pgxpool.Pool, nc chat.NewChat) *chat.Chat {
	t.Helper()
	created, err := store.CreateChat(context.Background(), nc)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM chats WHERE id = $1`, created.ID)
	})
	return created
}

func createMessage(t *testing.T, store *ChatStore, chatID, creatorID int64, text string) *chat.Message {
	t.Helper()
	msg, err := store.CreateMessage(context.Background(), chat.NewMessage{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		CreatorID: creatorID,
		Text:      &text,
	})
	require.NoError(t, err)
	return msg
}

func TestChatStore_LocalChatPerPairIsUnique(t *testing.T) {
	store, pool := newTestStore(t)
	ctx := context.Background()
	users := userIDs(2)

	created := createChat(t, store, pool, chat.NewChat{Type: chat.TypeLocal, CreatorID: users[0], ParticipantIDs: []int64{users[1]}})
	assert.Equal(t, 2, created.ParticipantCount)

	_, err := store.CreateChat(ctx, chat.NewChat{Type: chat.TypeLocal, CreatorID: users[1], ParticipantIDs: []int64{users[0]}})
	assert.ErrorIs(t, err, chat.ErrLocalChatExists)

	found, err := store.LocalChatBetween(ctx, users[1], users[0])
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	assert.Len(t, found.Participants, 2)
}

func TestChatStore_DeleteMessagesHonoursCreator(t *testing.T) {
	store, pool := newTestStore(t)
	ctx := context.Background()
	users := userIDs(3)
	title := "team"

	group := createChat(t, store, pool, chat.NewChat{
		Type: chat.TypeGroup, Title: &title, CreatorID: users[0], ParticipantIDs: users[1:],
	})

	own := createMessage(t, store, group.ID, users[1], "mine")
	foreign := createMessage(t, store, group.ID, users[2], "theirs")
	require.NoError(t, store.SaveAttachments(ctx, own.ID, []chat.Attachment{
		{ID: "a1", FileKey: "k1", FileName: "one.png", MimeType: "image/png", FileSize: 10},
		{ID: "a2", FileKey: "k2", FileName: "two.png", MimeType: "image/png", FileSize: 20},
	}))

	creator := users[1]
	deleted, err := store.DeleteMessages(ctx, chat.DeleteMessagesParams{
		ChatID:     group.ID,
		MessageIDs: []string{own.ID, foreign.ID},
		CreatorID:  &creator,
	})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, own.ID, deleted[0].ID)
	assert.Equal(t, users[1], deleted[0].CreatorID)
	assert.Equal(t, []string{"a1", "a2"}, deleted[0].AttachmentIDs)

	history, total, err := store.ChatHistory(ctx, group.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, history, 1)
	assert.Equal(t, foreign.ID, history[0].ID)

	// Without a creator filter any listed message of the chat goes.
	deleted, err = store.DeleteMessages(ctx, chat.DeleteMessagesParams{ChatID: group.ID, MessageIDs: []string{foreign.ID}})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Empty(t, deleted[0].AttachmentIDs)
}

func TestChatStore_DeleteMessagesIgnoresOtherChats(t *testing.T) {
	store, pool := newTestStore(t)
	users := userIDs(3)

	first := createChat(t, store, pool, chat.NewChat{Type: chat.TypeLocal, CreatorID: users[0], ParticipantIDs: []int64{users[1]}})
	second := createChat(t, store, pool, chat.NewChat{Type: chat.TypeLocal, CreatorID: users[0], ParticipantIDs: []int64{users[2]}})
	msg := createMessage(t, store, second.ID, users[0], "elsewhere")

	deleted, err := store.DeleteMessages(context.Background(), chat.DeleteMessagesParams{ChatID: first.ID, MessageIDs: []string{msg.ID}})
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestChatStore_RefreshLastMessage(t *testing.T) {
	store, pool := newTestStore(t)
	ctx := context.Background()
	users := userIDs(2)

	local := createChat(t, store, pool, chat.NewChat{Type: chat.TypeLocal, CreatorID: users[0], ParticipantIDs: []int64{users[1]}})

	older := createMessage(t, store, local.ID, users[0], "older")
	newer := createMessage(t, store, local.ID, users[1], "newer")
	require.NoError(t, store.UpdateLastMessage(ctx, local.ID, newer.ID))

	got, err := store.ChatByID(ctx, local.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, newer.ID, got.LastMessage.ID)

	require.NoError(t, store.DeleteMessage(ctx, newer.ID))
	require.NoError(t, store.RefreshLastMessage(ctx, local.ID))

	got, err = store.ChatByID(ctx, local.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, older.ID, got.LastMessage.ID)
	assert.Equal(t, "older", *got.LastMessage.Text)

	require.NoError(t, store.DeleteMessage(ctx, older.ID))
	require.NoError(t, store.RefreshLastMessage(ctx, local.ID))

	got, err = store.ChatByID(ctx, local.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastMessage)
}

func TestChatStore_ReplyOutsideChatIsDropped(t *testing.T) {
	store, pool := newTestStore(t)
	users := userIDs(3)

	first := createChat(t, store, pool, chat.NewChat{Type: chat.TypeLocal, CreatorID: users[0], ParticipantIDs: []int64{users[1]}})
	second := createChat(t, store, pool, chat.NewChat{Type: chat.TypeLocal, CreatorID: users[0], ParticipantIDs: []int64{users[2]}})
	foreign := createMessage(t, store, second.ID, users[0], "elsewhere")

	text := "reply"
	msg, err := store.CreateMessage(context.Background(), chat.NewMessage{
		ID: uuid.NewString(), ChatID: first.ID, CreatorID: users[0], Text: &text, ReplyForID: &foreign.ID,
	})
	require.NoError(t, err)
	assert.Nil(t, msg.ReplyForID)
}
