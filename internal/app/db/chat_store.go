package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"messenger/internal/app/chat"
)

// localPairConstraint is the partial unique index that keeps one LOCAL chat per pair of users.
const localPairConstraint = "chats_local_pair_key_uniq"

const chatSelect = `
SELECT c.id, c.type, c.title, c.participant_count, c.updated_at,
       m.id::text, m.chat_id, m.creator_id, m.text, m.reply_for_id::text, m.created_at
FROM chats c
LEFT JOIN messages m ON m.id = c.last_message_id`

const messageSelect = `
SELECT m.id::text, m.chat_id, m.creator_id, m.text, m.reply_for_id::text, m.created_at
FROM messages m`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ChatStore is the Postgres implementation of chat.Store.
type ChatStore struct {
	pool *pgxpool.Pool
}

var _ chat.Store = (*ChatStore)(nil)

// NewChatStore constructs a ChatStore on an open pool.
func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

// LocalPairKey is the value stored in chats.local_pair_key for the unordered pair (a, b).
func LocalPairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + ":" + strconv.FormatInt(b, 10)
}

func scanChat(row pgx.Row) (*chat.Chat, error) {
	var (
		c          chat.Chat
		chatType   string
		msgID      *string
		msgChatID  *int64
		msgCreator *int64
		msgText    *string
		msgReply   *string
		msgCreated *time.Time
	)

	err := row.Scan(
		&c.ID, &chatType, &c.Title, &c.ParticipantCount, &c.UpdatedAt,
		&msgID, &msgChatID, &msgCreator, &msgText, &msgReply, &msgCreated,
	)
	if err != nil {
		return nil, err
	}

	c.Type = chat.Type(chatType)
	if msgID != nil {
		c.LastMessage = &chat.Message{
			ID:         *msgID,
			ChatID:     *msgChatID,
			CreatorID:  *msgCreator,
			Text:       msgText,
			ReplyForID: msgReply,
			CreatedAt:  *msgCreated,
		}
	}
	return &c, nil
}

func scanMessage(row pgx.Row) (*chat.Message, error) {
	var m chat.Message
	if err := row.Scan(&m.ID, &m.ChatID, &m.CreatorID, &m.Text, &m.ReplyForID, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// queryChats runs a chatSelect-based query and loads participants and last-message attachments.
func (s *ChatStore) queryChats(ctx context.Context, q querier, sql string, args ...any) ([]*chat.Chat, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []*chat.Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.loadParticipants(ctx, q, chats); err != nil {
		return nil, err
	}

	lastMessages := make([]*chat.Message, 0, len(chats))
	for _, c := range chats {
		if c.LastMessage != nil {
			lastMessages = append(lastMessages, c.LastMessage)
		}
	}
	if err := s.loadAttachments(ctx, q, lastMessages); err != nil {
		return nil, err
	}

	return chats, nil
}

func (s *ChatStore) queryChat(ctx context.Context, sql string, args ...any) (*chat.Chat, error) {
	chats, err := s.queryChats(ctx, s.pool, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, nil
	}
	return chats[0], nil
}

func (s *ChatStore) loadParticipants(ctx context.Context, q querier, chats []*chat.Chat) error {
	if len(chats) == 0 {
		return nil
	}

	byID := make(map[int64]*chat.Chat, len(chats))
	ids := make([]int64, 0, len(chats))
	for _, c := range chats {
		byID[c.ID] = c
		ids = append(ids, c.ID)
		c.Participants = []chat.Participant{}
	}

	rows, err := q.Query(ctx, `
		SELECT chat_id, user_id, role
		FROM chat_participants
		WHERE chat_id = ANY($1)
		ORDER BY chat_id, joined_at, user_id`, ids)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			chatID int64
			p      chat.Participant
			role   string
		)
		if err := rows.Scan(&chatID, &p.UserID, &role); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		p.Role = chat.Role(role)
		if c, ok := byID[chatID]; ok {
			c.Participants = append(c.Participants, p)
		}
	}
	return rows.Err()
}

func (s *ChatStore) loadAttachments(ctx context.Context, q querier, messages []*chat.Message) error {
	if len(messages) == 0 {
		return nil
	}

	byID := make(map[string]*chat.Message, len(messages))
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT message_id::text, id, file_key, file_name, mime_type, file_size
		FROM message_attachments
		WHERE message_id = ANY($1::text[]::uuid[])
		ORDER BY message_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageID string
			a         chat.Attachment
		)
		if err := rows.Scan(&messageID, &a.ID, &a.FileKey, &a.FileName, &a.MimeType, &a.FileSize); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		if m, ok := byID[messageID]; ok {
			m.Attachments = append(m.Attachments, a)
		}
	}
	return rows.Err()
}

func (s *ChatStore) ChatByID(ctx context.Context, chatID int64) (*chat.Chat, error) {
	return s.queryChat(ctx, chatSelect+` WHERE c.id = $1`, chatID)
}

func (s *ChatStore) LocalChatBetween(ctx context.Context, userA, userB int64) (*chat.Chat, error) {
	return s.queryChat(ctx, chatSelect+` WHERE c.type = 'local' AND c.local_pair_key = $1`, LocalPairKey(userA, userB))
}

func (s *ChatStore) CreateChat(ctx context.Context, nc chat.NewChat) (*chat.Chat, error) {
	creatorRole := chat.RoleParticipant
	var pairKey *string
	switch nc.Type {
	case chat.TypeGroup:
		creatorRole = chat.RoleOwner
	case chat.TypeLocal:
		if len(nc.ParticipantIDs) != 1 {
			return nil, fmt.Errorf("local chat needs exactly one counterpart, got %d", len(nc.ParticipantIDs))
		}
		key := LocalPairKey(nc.CreatorID, nc.ParticipantIDs[0])
		pairKey = &key
	default:
		return nil, fmt.Errorf("chat type %q cannot be stored", nc.Type)
	}

	created := &chat.Chat{
		Type:         nc.Type,
		Title:        nc.Title,
		Participants: []chat.Participant{{UserID: nc.CreatorID, Role: creatorRole}},
	}
	for _, id := range nc.ParticipantIDs {
		created.Participants = append(created.Participants, chat.Participant{UserID: id, Role: chat.RoleParticipant})
	}
	created.ParticipantCount = len(created.Participants)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO chats (type, title, local_pair_key, participant_count)
			VALUES ($1, $2, $3, $4)
			RETURNING id, updated_at`,
			string(nc.Type), nc.Title, pairKey, created.ParticipantCount,
		).Scan(&created.ID, &created.UpdatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, p := range created.Participants {
			batch.Queue(`INSERT INTO chat_participants (chat_id, user_id, role) VALUES ($1, $2, $3)`,
				created.ID, p.UserID, string(p.Role))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if isConstraintViolation(err, localPairConstraint) {
		return nil, chat.ErrLocalChatExists
	}
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (s *ChatStore) UpdateLastMessage(ctx context.Context, chatID int64, messageID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE chats SET last_message_id = $2::uuid, updated_at = now()
		WHERE id = $1`, chatID, messageID)
	return err
}

func (s *ChatStore) RefreshLastMessage(ctx context.Context, chatID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE chats SET last_message_id = (
			SELECT id FROM messages WHERE chat_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
		WHERE id = $1`, chatID)
	return err
}

func (s *ChatStore) UserChats(ctx context.Context, userID int64, limit, offset int) ([]*chat.Chat, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chat_participants WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 || offset >= total {
		return []*chat.Chat{}, total, nil
	}

	chats, err := s.queryChats(ctx, s.pool, chatSelect+`
		JOIN chat_participants p ON p.chat_id = c.id AND p.user_id = $1
		ORDER BY c.updated_at DESC, c.id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return chats, total, nil
}

func (s *ChatStore) LocalChats(ctx context.Context, userID int64) ([]*chat.Chat, error) {
	return s.queryChats(ctx, s.pool, chatSelect+`
		JOIN chat_participants p ON p.chat_id = c.id AND p.user_id = $1
		WHERE c.type = 'local'
		ORDER BY c.id`, userID)
}

func (s *ChatStore) CreateMessage(ctx context.Context, nm chat.NewMessage) (*chat.Message, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, chat_id, creator_id, text, reply_for_id)
		VALUES ($1::uuid, $2, $3, $4,
			(SELECT r.id FROM messages r WHERE r.id = $5::uuid AND r.chat_id = $2))
		RETURNING id::text, chat_id, creator_id, text, reply_for_id::text, created_at`,
		nm.ID, nm.ChatID, nm.CreatorID, nm.Text, nm.ReplyForID)

	return scanMessage(row)
}

func (s *ChatStore) SaveAttachments(ctx context.Context, messageID string, attachments []chat.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, a := range attachments {
		batch.Queue(`
			INSERT INTO message_attachments (message_id, id, position, file_key, file_name, mime_type, file_size)
			VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (message_id, id) DO NOTHING`,
			messageID, a.ID, i, a.FileKey, a.FileName, a.MimeType, a.FileSize)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *ChatStore) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1::uuid`, messageID)
	return err
}

func (s *ChatStore) DeleteMessages(ctx context.Context, params chat.DeleteMessagesParams) ([]chat.DeletedMessage, error) {
	rows, err := s.pool.Query(ctx, `
		WITH gone AS (
			DELETE FROM messages m
			WHERE m.chat_id = $1
			  AND m.id = ANY($2::text[]::uuid[])
			  AND ($3::bigint IS NULL OR m.creator_id = $3)
			RETURNING m.id, m.creator_id
		)
		SELECT g.id::text, g.creator_id,
		       COALESCE(array_agg(a.id ORDER BY a.position) FILTER (WHERE a.id IS NOT NULL), '{}'::text[])
		FROM gone g
		LEFT JOIN message_attachments a ON a.message_id = g.id
		GROUP BY g.id, g.creator_id`,
		params.ChatID, params.MessageIDs, params.CreatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deleted := []chat.DeletedMessage{}
	for rows.Next() {
		var d chat.DeletedMessage
		if err := rows.Scan(&d.ID, &d.CreatorID, &d.AttachmentIDs); err != nil {
			return nil, err
		}
		deleted = append(deleted, d)
	}
	return deleted, rows.Err()
}

func (s *ChatStore) ChatHistory(ctx context.Context, chatID int64, limit, offset int) ([]*chat.Message, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM messages WHERE chat_id = $1`, chatID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 || offset >= total {
		return []*chat.Message{}, total, nil
	}

	rows, err := s.pool.Query(ctx, messageSelect+`
		WHERE m.chat_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2 OFFSET $3`, chatID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := []*chat.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	if err := s.loadAttachments(ctx, s.pool, messages); err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}
