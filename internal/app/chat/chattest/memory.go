// Package chattest provides an in-memory chat.Store for tests.
package chattest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"messenger/internal/app/chat"
)

type storedChat struct {
	chat       chat.Chat
	lastID     string
	updatedSeq int64
}

type storedMessage struct {
	msg chat.Message
	seq int64
}

// MemoryStore is a goroutine-safe chat.Store kept in maps. Values handed out are copies.
type MemoryStore struct {
	mu         sync.Mutex
	nextChatID int64
	seq        int64
	chats      map[int64]*storedChat
	localPairs map[[2]int64]int64
	messages   map[string]*storedMessage

	// BeforeCreateChat, when set, runs at the start of CreateChat without the lock held.
	BeforeCreateChat func(chat.NewChat)
}

var _ chat.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store whose first chat gets id 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextChatID: 1,
		chats:      make(map[int64]*storedChat),
		localPairs: make(map[[2]int64]int64),
		messages:   make(map[string]*storedMessage),
	}
}

// SkipChatIDs advances the id sequence so the next chat gets id next.
func (s *MemoryStore) SkipChatIDs(next int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next > s.nextChatID {
		s.nextChatID = next
	}
}

func pairKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

func (s *MemoryStore) tick() int64 {
	s.seq++
	return s.seq
}

// snapshot must be called with the lock held.
func (s *MemoryStore) snapshot(sc *storedChat) *chat.Chat {
	c := sc.chat
	c.Participants = slices.Clone(sc.chat.Participants)
	c.LastMessage = nil
	if m, ok := s.messages[sc.lastID]; ok {
		c.LastMessage = copyMessage(&m.msg)
	}
	return &c
}

func copyMessage(m *chat.Message) *chat.Message {
	cp := *m
	cp.Attachments = slices.Clone(m.Attachments)
	return &cp
}

func (s *MemoryStore) ChatByID(_ context.Context, chatID int64) (*chat.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.chats[chatID]
	if !ok {
		return nil, nil
	}
	return s.snapshot(sc), nil
}

func (s *MemoryStore) LocalChatBetween(_ context.Context, userA, userB int64) (*chat.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.localPairs[pairKey(userA, userB)]
	if !ok {
		return nil, nil
	}
	return s.snapshot(s.chats[id]), nil
}

func (s *MemoryStore) CreateChat(_ context.Context, nc chat.NewChat) (*chat.Chat, error) {
	if s.BeforeCreateChat != nil {
		s.BeforeCreateChat(nc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var key [2]int64
	if nc.Type == chat.TypeLocal {
		key = pairKey(nc.CreatorID, nc.ParticipantIDs[0])
		if _, exists := s.localPairs[key]; exists {
			return nil, chat.ErrLocalChatExists
		}
	}

	creatorRole := chat.RoleParticipant
	if nc.Type == chat.TypeGroup {
		creatorRole = chat.RoleOwner
	}

	participants := []chat.Participant{{UserID: nc.CreatorID, Role: creatorRole}}
	for _, id := range nc.ParticipantIDs {
		participants = append(participants, chat.Participant{UserID: id, Role: chat.RoleParticipant})
	}

	sc := &storedChat{
		chat: chat.Chat{
			ID:               s.nextChatID,
			Type:             nc.Type,
			Title:            nc.Title,
			ParticipantCount: len(participants),
			Participants:     participants,
			UpdatedAt:        time.Now().UTC(),
		},
		updatedSeq: s.tick(),
	}
	s.nextChatID++
	s.chats[sc.chat.ID] = sc

	if nc.Type == chat.TypeLocal {
		s.localPairs[key] = sc.chat.ID
	}

	return s.snapshot(sc), nil
}

// SetRole changes a participant's role, for tests that need admins.
func (s *MemoryStore) SetRole(chatID, userID int64, role chat.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.chats[chatID]
	if !ok {
		return
	}
	for i := range sc.chat.Participants {
		if sc.chat.Participants[i].UserID == userID {
			sc.chat.Participants[i].Role = role
		}
	}
}

func (s *MemoryStore) UpdateLastMessage(_ context.Context, chatID int64, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	sc.lastID = messageID
	sc.updatedSeq = s.tick()
	sc.chat.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RefreshLastMessage(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.chats[chatID]
	if !ok {
		return nil
	}

	sc.lastID = ""
	var newest int64
	for id, m := range s.messages {
		if m.msg.ChatID == chatID && m.seq > newest {
			newest = m.seq
			sc.lastID = id
		}
	}
	return nil
}

func (s *MemoryStore) UserChats(_ context.Context, userID int64, limit, offset int) ([]*chat.Chat, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*storedChat
	for _, sc := range s.chats {
		if sc.chat.HasParticipant(userID) {
			matched = append(matched, sc)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].updatedSeq > matched[j].updatedSeq })

	total := len(matched)
	if offset >= total {
		return []*chat.Chat{}, total, nil
	}
	end := min(offset+limit, total)

	out := make([]*chat.Chat, 0, end-offset)
	for _, sc := range matched[offset:end] {
		out = append(out, s.snapshot(sc))
	}
	return out, total, nil
}

func (s *MemoryStore) LocalChats(_ context.Context, userID int64) ([]*chat.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*chat.Chat{}
	for _, sc := range s.chats {
		if sc.chat.Type == chat.TypeLocal && sc.chat.HasParticipant(userID) {
			out = append(out, s.snapshot(sc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, nm chat.NewMessage) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replyFor := nm.ReplyForID
	if replyFor != nil {
		if target, ok := s.messages[*replyFor]; !ok || target.msg.ChatID != nm.ChatID {
			replyFor = nil
		}
	}

	sm := &storedMessage{
		msg: chat.Message{
			ID:         nm.ID,
			ChatID:     nm.ChatID,
			CreatorID:  nm.CreatorID,
			Text:       nm.Text,
			ReplyForID: replyFor,
			CreatedAt:  time.Now().UTC(),
		},
		seq: s.tick(),
	}
	s.messages[nm.ID] = sm
	return copyMessage(&sm.msg), nil
}

func (s *MemoryStore) SaveAttachments(_ context.Context, messageID string, attachments []chat.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.messages[messageID]; ok {
		m.msg.Attachments = append(m.msg.Attachments, attachments...)
	}
	return nil
}

func (s *MemoryStore) DeleteMessage(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, messageID)
	return nil
}

func (s *MemoryStore) DeleteMessages(_ context.Context, params chat.DeleteMessagesParams) ([]chat.DeletedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := []chat.DeletedMessage{}
	for _, id := range params.MessageIDs {
		m, ok := s.messages[id]
		if !ok || m.msg.ChatID != params.ChatID {
			continue
		}
		if params.CreatorID != nil && m.msg.CreatorID != *params.CreatorID {
			continue
		}

		attachmentIDs := make([]string, 0, len(m.msg.Attachments))
		for _, a := range m.msg.Attachments {
			attachmentIDs = append(attachmentIDs, a.ID)
		}

		deleted = append(deleted, chat.DeletedMessage{ID: id, CreatorID: m.msg.CreatorID, AttachmentIDs: attachmentIDs})
		delete(s.messages, id)
	}
	return deleted, nil
}

func (s *MemoryStore) ChatHistory(_ context.Context, chatID int64, limit, offset int) ([]*chat.Message, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*storedMessage
	for _, m := range s.messages {
		if m.msg.ChatID == chatID {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	total := len(matched)
	if offset >= total {
		return []*chat.Message{}, total, nil
	}
	end := min(offset+limit, total)

	out := make([]*chat.Message, 0, end-offset)
	for _, m := range matched[offset:end] {
		out = append(out, copyMessage(&m.msg))
	}
	return out, total, nil
}

// MessageCount returns the number of stored messages in a chat.
func (s *MemoryStore) MessageCount(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages {
		if m.msg.ChatID == chatID {
			n++
		}
	}
	return n
}
