package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger/internal/app/broadcast"
	"messenger/internal/app/chat"
	"messenger/internal/app/chat/chattest"
	"messenger/internal/app/event"
	"messenger/internal/app/registry"
	"messenger/internal/pkg/errs"
)

type harness struct {
	reg    *registry.Memory
	svc    *chat.Service
	server *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := chat.NewService(chat.ServiceDeps{
		Store:       chattest.NewMemoryStore(),
		Users:       chattest.NewUsers(1, 2, 3),
		Attachments: &chattest.Attachments{},
	})
	reg := registry.NewMemory()

	hub := NewHub("test-instance", nil)
	go func() { _ = hub.Run(ctx) }()

	dispatcher := broadcast.NewDispatcher(broadcast.Config{
		Registry:     reg,
		Deliverer:    hub,
		Chats:        svc,
		Counterparts: broadcast.CounterpartFunc(svc.LocalPartners),
	})

	gw := New(ctx, Config{
		Hub:       hub,
		Auth:      tokenAuth{"user-1": 1, "user-2": 2, "user-3": 3},
		Registry:  reg,
		Status:    dispatcher,
		Chats:     svc,
		Broadcast: dispatcher,
	})

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	for _, pool := range []registry.Pool{registry.PoolChat, registry.PoolPresence} {
		mux.HandleFunc("/ws/"+string(pool), func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			gw.Serve(conn, pool, r.URL.Query().Get("token"))
		})
	}

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &harness{reg: reg, svc: svc, server: server}
}

func (h *harness) dial(t *testing.T, pool registry.Pool, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/" + string(pool) + "?token=" + token

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connect dials as userID and waits until the connection is registered.
func (h *harness) connect(t *testing.T, pool registry.Pool, userID int64) *websocket.Conn {
	t.Helper()
	conn := h.dial(t, pool, fmt.Sprintf("user-%d", userID))

	require.Eventually(t, func() bool {
		entry, err := h.reg.Get(context.Background(), pool, userID)
		return err == nil && entry != nil
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

type frame struct {
	Event   event.Name      `json:"event"`
	Payload json.RawMessage `json:"payload"`
	AckID   string          `json:"ackId"`
}

func emit(t *testing.T, conn *websocket.Conn, name event.Name, payload any, ackID string) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(event.Inbound{Event: name, Payload: body, AckID: ackID}))
}

func next(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestSendMessage_CreatesLocalChatOnceAndPushesToCounterpart(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, registry.PoolChat, 1)
	bob := h.connect(t, registry.PoolChat, 2)

	send := map[string]any{"counterpartUserId": 2, "text": "hi"}

	emit(t, alice, event.SendMessage, send, "a1")

	assert.Equal(t, event.NewChat, next(t, alice).Event)
	assert.Equal(t, event.NewMessage, next(t, alice).Event)
	reply := next(t, alice)
	require.Equal(t, event.MessageSent, reply.Event)
	assert.Equal(t, "a1", reply.AckID)

	var first chat.CreateMessageResult
	require.NoError(t, json.Unmarshal(reply.Payload, &first))
	assert.True(t, first.HasBeenCreated)

	pushedChat := next(t, bob)
	require.Equal(t, event.NewChat, pushedChat.Event)
	var view chat.Chat
	require.NoError(t, json.Unmarshal(pushedChat.Payload, &view))
	assert.Equal(t, first.ChatID, view.ID)
	assert.Equal(t, 2, view.ParticipantCount)
	require.Len(t, view.Participants, 1, "the viewer is left out of the participant list")
	assert.Equal(t, int64(1), view.Participants[0].UserID)

	pushedMsg := next(t, bob)
	require.Equal(t, event.NewMessage, pushedMsg.Event)
	var msg event.NewMessagePayload
	require.NoError(t, json.Unmarshal(pushedMsg.Payload, &msg))
	assert.Equal(t, first.ChatID, msg.ChatID)
	require.NotNil(t, msg.Message.Text)
	assert.Equal(t, "hi", *msg.Message.Text)

	emit(t, alice, event.SendMessage, send, "a2")

	assert.Equal(t, event.NewMessage, next(t, alice).Event)
	reply = next(t, alice)
	require.Equal(t, event.MessageSent, reply.Event)

	var second chat.CreateMessageResult
	require.NoError(t, json.Unmarshal(reply.Payload, &second))
	assert.False(t, second.HasBeenCreated)
	assert.Equal(t, first.ChatID, second.ChatID)

	assert.Equal(t, event.NewMessage, next(t, bob).Event, "no second new-chat")
}

func TestDeleteMessages_PushesGoneMessages(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, registry.PoolChat, 1)
	bob := h.connect(t, registry.PoolChat, 2)

	res, err := h.svc.CreateMessage(context.Background(), 1, chat.CreateMessageInput{
		CounterpartUserID: ptr(int64(2)),
		Text:              "oops",
	})
	require.NoError(t, err)

	emit(t, bob, event.DeleteMessages, map[string]any{"chatId": res.ChatID, "messageIds": []string{res.Message.ID}}, "d1")

	gone := next(t, alice)
	require.Equal(t, event.GoneMessages, gone.Event)
	assert.JSONEq(t, fmt.Sprintf(`{"chatId":%d,"messageIds":[%q]}`, res.ChatID, res.Message.ID), string(gone.Payload))

	assert.Equal(t, event.GoneMessages, next(t, bob).Event)
	reply := next(t, bob)
	assert.Equal(t, event.MessagesDeleted, reply.Event)
	assert.Equal(t, "d1", reply.AckID)
}

func TestCreateGroupChat_NotifiesOtherParticipants(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, registry.PoolChat, 1)
	carol := h.connect(t, registry.PoolChat, 3)

	emit(t, alice, event.CreateGroupChat, map[string]any{"title": "Team", "participantIds": []int64{2, 3}}, "g1")

	reply := next(t, alice)
	require.Equal(t, event.GroupChatCreated, reply.Event, "the creator only gets the reply")

	pushed := next(t, carol)
	require.Equal(t, event.NewChat, pushed.Event)
	var view chat.Chat
	require.NoError(t, json.Unmarshal(pushed.Payload, &view))
	assert.Equal(t, chat.TypeGroup, view.Type)
	assert.Equal(t, 3, view.ParticipantCount)
	assert.Len(t, view.Participants, 2)
}

func TestGetChat_NullWhenNothingResolves(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, registry.PoolChat, 1)

	emit(t, alice, event.GetChat, map[string]any{"polymorphicId": 404}, "q1")

	reply := next(t, alice)
	assert.Equal(t, event.ChatFound, reply.Event)
	assert.Equal(t, "null", string(reply.Payload))
}

func TestErrorsAreReportedWithAckID(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, registry.PoolChat, 1)

	foreign, err := h.svc.CreateGroupChat(context.Background(), 2, chat.CreateGroupChatInput{Title: "private", ParticipantIDs: []int64{3}})
	require.NoError(t, err)

	tests := []struct {
		name    string
		event   event.Name
		payload any
		code    int
	}{
		{"unknown event", "dance", nil, errs.ErrUnknownEvent},
		{"presence event on chat pool", event.ChangeStatus, map[string]any{"status": "online"}, errs.ErrUnknownEvent},
		{"unknown field", event.GetChats, map[string]any{"pages": 1}, errs.ErrInvalidJSONFormat},
		{"empty message", event.SendMessage, map[string]any{"counterpartUserId": 2}, errs.ErrMessageEmpty},
		{"chat without access", event.GetChatHistory, map[string]any{"chatId": foreign.ID}, errs.ErrNoAccess},
		{"send to unknown chat", event.SendMessage, map[string]any{"chatId": 999, "text": "hi"}, errs.ErrChatNotFound},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ackID := fmt.Sprintf("e%d", i)
			emit(t, alice, tt.event, tt.payload, ackID)

			reply := next(t, alice)
			require.Equal(t, event.Error, reply.Event)
			assert.Equal(t, ackID, reply.AckID)

			var body event.ErrorPayload
			require.NoError(t, json.Unmarshal(reply.Payload, &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestMalformedFrame(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, registry.PoolChat, 1)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))

	reply := next(t, alice)
	require.Equal(t, event.Error, reply.Event)
	var body event.ErrorPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &body))
	assert.Equal(t, errs.ErrInvalidJSONFormat, body.Code)
}

func TestUnauthorizedConnectionIsClosed(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, registry.PoolChat, "forged")

	reply := next(t, conn)
	require.Equal(t, event.Error, reply.Event)

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, WsCloseCodeUnauthorized, closeErr.Code)
}

func TestPresence_OnlineStatusAndChangeStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateMessage(ctx, 1, chat.CreateMessageInput{CounterpartUserID: ptr(int64(2)), Text: "hi"})
	require.NoError(t, err)

	bob := h.connect(t, registry.PoolPresence, 2)
	alice := h.connect(t, registry.PoolPresence, 1)

	announced := next(t, bob)
	require.Equal(t, event.ChatStatusChanged, announced.Event)
	assert.JSONEq(t, `{"userId":1,"status":"online"}`, string(announced.Payload))

	pulled := next(t, alice)
	require.Equal(t, event.ChatStatusChanged, pulled.Event)
	assert.JSONEq(t, `{"userId":2,"status":"online"}`, string(pulled.Payload))

	emit(t, alice, event.ChangeStatus, map[string]any{"status": "invisible"}, "s1")

	changed := next(t, bob)
	require.Equal(t, event.ChatStatusChanged, changed.Event)
	assert.JSONEq(t, `{"userId":1,"status":"invisible"}`, string(changed.Payload))

	synced := next(t, alice)
	require.Equal(t, event.ChatStatusChanged, synced.Event, "an invisible user still learns counterpart statuses")
	assert.JSONEq(t, `{"userId":2,"status":"online"}`, string(synced.Payload))

	reply := next(t, alice)
	require.Equal(t, event.StatusChanged, reply.Event)
	assert.Equal(t, "s1", reply.AckID)

	entry, err := h.reg.Get(ctx, registry.PoolPresence, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, registry.StatusInvisible, entry.Status)

	emit(t, alice, event.ChangeStatus, map[string]any{"status": "away"}, "s2")
	reply = next(t, alice)
	require.Equal(t, event.Error, reply.Event)
	var body event.ErrorPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &body))
	assert.Equal(t, errs.ErrInvalidStatus, body.Code)
}

func TestPresence_DisconnectAnnouncesInvisible(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateMessage(ctx, 1, chat.CreateMessageInput{CounterpartUserID: ptr(int64(2)), Text: "hi"})
	require.NoError(t, err)

	bob := h.connect(t, registry.PoolPresence, 2)
	alice := h.connect(t, registry.PoolPresence, 1)
	require.Equal(t, event.ChatStatusChanged, next(t, bob).Event)

	require.NoError(t, alice.Close())

	gone := next(t, bob)
	require.Equal(t, event.ChatStatusChanged, gone.Event)
	assert.JSONEq(t, `{"userId":1,"status":"invisible"}`, string(gone.Payload))

	require.Eventually(t, func() bool {
		entry, err := h.reg.Get(ctx, registry.PoolPresence, 1)
		return err == nil && entry == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func ptr[T any](v T) *T { return &v }
