package ws

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/creatify/internal/model"
	"github.com/creatify/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type markCall struct {
	roomID       string
	exceptUserID int64
}

type fakeChatStore struct {
	mu        sync.Mutex
	created   []model.Chat
	createErr error

	delivered    []markCall
	deliveredErr map[string]error

	read    []markCall
	readErr error
}

func (f *fakeChatStore) Create(ctx context.Context, c *model.Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *c)
	return nil
}

func (f *fakeChatStore) MarkDelivered(ctx context.Context, roomID string, exceptUserID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deliveredErr[roomID]; err != nil {
		return err
	}
	f.delivered = append(f.delivered, markCall{roomID, exceptUserID})
	return nil
}

func (f *fakeChatStore) MarkRead(ctx context.Context, roomID string, exceptUserID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return f.readErr
	}
	f.read = append(f.read, markCall{roomID, exceptUserID})
	return nil
}

func (f *fakeChatStore) deliveredCalls() []markCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]markCall(nil), f.delivered...)
}

type fakeRoomStore struct {
	roomsByUser   map[int64][]string
	membersByRoom map[string][]int64
}

func (f *fakeRoomStore) IDsForUser(ctx context.Context, userID int64) ([]string, error) {
	return f.roomsByUser[userID], nil
}

func (f *fakeRoomStore) MemberIDs(ctx context.Context, roomID string) ([]int64, error) {
	return f.membersByRoom[roomID], nil
}

func (f *fakeRoomStore) IsMember(ctx context.Context, roomID string, userID int64) (bool, error) {
	for _, id := range f.membersByRoom[roomID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type fakeUserStore struct {
	mu       sync.Mutex
	online   []int64
	offline  []int64
	writeErr error
}

func (f *fakeUserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeUserStore) SetOnline(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.online = append(f.online, id)
	return nil
}

func (f *fakeUserStore) SetOffline(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.offline = append(f.offline, id)
	return nil
}

func newTestHub(chats ChatStore, rooms RoomStore, users UserStore) *Hub {
	if chats == nil {
		chats = &fakeChatStore{}
	}
	if rooms == nil {
		rooms = &fakeRoomStore{}
	}
	if users == nil {
		users = &fakeUserStore{}
	}
	return NewHub(chats, rooms, users, 100, nil)
}

func newTestClient(userID int64) *Client {
	return &Client{
		send:   make(chan OutgoingEvent, sendBufSize),
		userID: userID,
		done:   make(chan struct{}),
	}
}

func recvEvent(t *testing.T, c *Client) OutgoingEvent {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return OutgoingEvent{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("unexpected event %q", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJoinRoomRequiresMembership(t *testing.T) {
	rooms := &fakeRoomStore{membersByRoom: map[string][]int64{"r1": {1, 2}}}
	h := newTestHub(nil, rooms, nil)
	member := newTestClient(1)
	outsider := newTestClient(3)
	h.addClient(member)
	h.addClient(outsider)

	h.HandleEvent(context.Background(), member, IncomingEvent{Type: EventJoinRoom, RoomID: "r1"})
	h.HandleEvent(context.Background(), outsider, IncomingEvent{Type: EventJoinRoom, RoomID: "r1"})

	h.mu.RLock()
	_, memberJoined := h.rooms["r1"][member]
	_, outsiderJoined := h.rooms["r1"][outsider]
	h.mu.RUnlock()
	assert.True(t, memberJoined)
	assert.False(t, outsiderJoined, "registry stays a subset of persisted membership")

	ev := recvEvent(t, outsider)
	assert.Equal(t, EventError, ev.Type)

	// Room traffic never reaches the refused connection.
	h.HandleEvent(context.Background(), member, IncomingEvent{
		Type:    EventSendMessage,
		RoomID:  "r1",
		Name:    "r1",
		Message: "hello",
		UserID:  "1",
	})
	ev = recvEvent(t, member)
	assert.Equal(t, EventNewMessage, ev.Type)
	assertNoEvent(t, outsider)
}

func TestSendMessagePersistsAndFansOutOnce(t *testing.T) {
	chats := &fakeChatStore{}
	h := newTestHub(chats, nil, nil)
	sender := newTestClient(1)
	peer := newTestClient(2)
	h.addClient(sender)
	h.addClient(peer)
	h.joinRoom(sender, "r1")
	h.joinRoom(peer, "r1")

	h.HandleEvent(context.Background(), sender, IncomingEvent{
		Type:    EventSendMessage,
		RoomID:  "r1",
		Name:    "r1",
		Message: "hello",
		UserID:  "1",
	})

	require.Len(t, chats.created, 1)
	saved := chats.created[0]
	assert.Equal(t, "r1", saved.RoomID)
	assert.Equal(t, int64(1), saved.UserID)
	assert.Equal(t, "hello", saved.Message)
	assert.False(t, saved.Delivered)
	assert.False(t, saved.Read)

	for _, c := range []*Client{sender, peer} {
		ev := recvEvent(t, c)
		require.Equal(t, EventNewMessage, ev.Type)
		got, ok := ev.Payload.(*model.Chat)
		require.True(t, ok)
		assert.Equal(t, saved.ID, got.ID)

		ev = recvEvent(t, c)
		assert.Equal(t, EventRefresh, ev.Type)
		assertNoEvent(t, c)
	}
}

func TestSendMessagePersistFailureNoBroadcast(t *testing.T) {
	chats := &fakeChatStore{createErr: errors.New("db down")}
	h := newTestHub(chats, nil, nil)
	sender := newTestClient(1)
	peer := newTestClient(2)
	h.addClient(sender)
	h.addClient(peer)
	h.joinRoom(sender, "r1")
	h.joinRoom(peer, "r1")

	h.HandleEvent(context.Background(), sender, IncomingEvent{
		Type:    EventSendMessage,
		RoomID:  "r1",
		Name:    "r1",
		Message: "hello",
		UserID:  "1",
	})

	// Fire-and-forget: the failure is logged, nothing goes out, not even
	// to the sender.
	assert.Empty(t, chats.created)
	assertNoEvent(t, peer)
	assertNoEvent(t, sender)
}

// Fan-out deliberately targets the caller-supplied name field verbatim, not
// roomId. A name that is not the room key leaves the room silent even
// though the chat was persisted against roomId.
func TestSendMessageFanOutTargetsNameNotRoomID(t *testing.T) {
	chats := &fakeChatStore{}
	h := newTestHub(chats, nil, nil)
	sender := newTestClient(1)
	peer := newTestClient(2)
	h.addClient(sender)
	h.addClient(peer)
	h.joinRoom(sender, "r1")
	h.joinRoom(peer, "r1")

	h.HandleEvent(context.Background(), sender, IncomingEvent{
		Type:    EventSendMessage,
		RoomID:  "r1",
		Name:    "somewhere-else",
		Message: "hello",
		UserID:  "1",
	})

	require.Len(t, chats.created, 1)
	assert.Equal(t, "r1", chats.created[0].RoomID)
	assertNoEvent(t, peer)
	assertNoEvent(t, sender)
}

func TestSendMessageWithMediaAcksAfterFanOut(t *testing.T) {
	chats := &fakeChatStore{}
	h := newTestHub(chats, nil, nil)
	sender := newTestClient(1)
	peer := newTestClient(2)
	h.addClient(sender)
	h.addClient(peer)
	h.joinRoom(sender, "r1")
	h.joinRoom(peer, "r1")

	h.HandleEvent(context.Background(), sender, IncomingEvent{
		Type:    EventSendMessageWithMedia,
		RoomID:  "r1",
		Name:    "r1",
		Message: "with media",
		UserID:  "1",
	})

	require.Len(t, chats.created, 1)

	// The sender sees the fan-out first, the ack last.
	ev := recvEvent(t, sender)
	assert.Equal(t, EventNewMessage, ev.Type)
	ev = recvEvent(t, sender)
	assert.Equal(t, EventRefresh, ev.Type)
	ev = recvEvent(t, sender)
	require.Equal(t, EventChatCreated, ev.Type)
	ack, ok := ev.Payload.(ChatCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, chats.created[0].ID, ack.ChatID)

	// The peer never sees the ack.
	ev = recvEvent(t, peer)
	assert.Equal(t, EventNewMessage, ev.Type)
	ev = recvEvent(t, peer)
	assert.Equal(t, EventRefresh, ev.Type)
	assertNoEvent(t, peer)
}

func TestSendMessageWithMediaNoAckOnPersistFailure(t *testing.T) {
	chats := &fakeChatStore{createErr: errors.New("db down")}
	h := newTestHub(chats, nil, nil)
	sender := newTestClient(1)
	h.addClient(sender)
	h.joinRoom(sender, "r1")

	h.HandleEvent(context.Background(), sender, IncomingEvent{
		Type:    EventSendMessageWithMedia,
		RoomID:  "r1",
		Name:    "r1",
		Message: "with media",
		UserID:  "1",
	})

	// No ack and no error reply: a failed write stays silent.
	assertNoEvent(t, sender)
}

func TestRefreshMediaFansOutRefresh(t *testing.T) {
	h := newTestHub(nil, nil, nil)
	a := newTestClient(1)
	b := newTestClient(2)
	h.addClient(a)
	h.addClient(b)
	h.joinRoom(a, "r1")
	h.joinRoom(b, "r1")

	h.HandleEvent(context.Background(), a, IncomingEvent{Type: EventRefreshMedia, RoomName: "r1"})

	for _, c := range []*Client{a, b} {
		ev := recvEvent(t, c)
		assert.Equal(t, EventRefresh, ev.Type)
	}
}

func TestAllRoomsJoinsAndMarksDelivered(t *testing.T) {
	chats := &fakeChatStore{}
	rooms := &fakeRoomStore{roomsByUser: map[int64][]string{2: {"r1"}}}
	h := newTestHub(chats, rooms, nil)
	a := newTestClient(1)
	b := newTestClient(2)
	h.addClient(a)
	h.addClient(b)
	h.joinRoom(a, "r1")

	h.HandleEvent(context.Background(), b, IncomingEvent{Type: EventAllRooms, ID: "2"})

	// b is joined to the room synchronously.
	h.mu.RLock()
	_, joined := h.rooms["r1"][b]
	h.mu.RUnlock()
	assert.True(t, joined)

	// Reconciliation is asynchronous per room.
	require.Eventually(t, func() bool {
		return len(chats.deliveredCalls()) == 1
	}, time.Second, 10*time.Millisecond)
	call := chats.deliveredCalls()[0]
	assert.Equal(t, "r1", call.roomID)
	assert.Equal(t, int64(2), call.exceptUserID)

	// The room hears delivered once; the acting connection is excluded.
	ev := recvEvent(t, a)
	assert.Equal(t, EventDelivered, ev.Type)
	assertNoEvent(t, a)
	assertNoEvent(t, b)
}

func TestDeliveryMarksDeliveredWithoutJoining(t *testing.T) {
	chats := &fakeChatStore{}
	rooms := &fakeRoomStore{roomsByUser: map[int64][]string{2: {"r1"}}}
	h := newTestHub(chats, rooms, nil)
	a := newTestClient(1)
	b := newTestClient(2)
	h.addClient(a)
	h.addClient(b)
	h.joinRoom(a, "r1")

	h.HandleEvent(context.Background(), b, IncomingEvent{Type: EventDelivery, ID: "2"})

	require.Eventually(t, func() bool {
		return len(chats.deliveredCalls()) == 1
	}, time.Second, 10*time.Millisecond)

	h.mu.RLock()
	_, joined := h.rooms["r1"][b]
	h.mu.RUnlock()
	assert.False(t, joined)

	ev := recvEvent(t, a)
	assert.Equal(t, EventDelivered, ev.Type)
}

func TestSyncRoomsIsolatesPerRoomFailures(t *testing.T) {
	chats := &fakeChatStore{deliveredErr: map[string]error{"r1": errors.New("db down")}}
	rooms := &fakeRoomStore{roomsByUser: map[int64][]string{2: {"r1", "r2"}}}
	h := newTestHub(chats, rooms, nil)
	a := newTestClient(1)
	b := newTestClient(2)
	h.addClient(a)
	h.addClient(b)
	h.joinRoom(a, "r1")
	h.joinRoom(a, "r2")

	h.HandleEvent(context.Background(), b, IncomingEvent{Type: EventAllRooms, ID: "2"})

	// r1 fails, r2 still reconciles and broadcasts.
	require.Eventually(t, func() bool {
		calls := chats.deliveredCalls()
		return len(calls) == 1 && calls[0].roomID == "r2"
	}, time.Second, 10*time.Millisecond)

	ev := recvEvent(t, a)
	assert.Equal(t, EventDelivered, ev.Type)
	assertNoEvent(t, a)
}

func TestReadMarksReadAndBroadcastsRefreshRead(t *testing.T) {
	chats := &fakeChatStore{}
	h := newTestHub(chats, nil, nil)
	a := newTestClient(1)
	b := newTestClient(2)
	h.addClient(a)
	h.addClient(b)
	h.joinRoom(a, "r1")
	h.joinRoom(b, "r1")

	h.HandleEvent(context.Background(), b, IncomingEvent{
		Type:     EventRead,
		RoomID:   "r1",
		RoomName: "r1",
		UserID:   "2",
	})

	require.Len(t, chats.read, 1)
	assert.Equal(t, "r1", chats.read[0].roomID)
	assert.Equal(t, int64(2), chats.read[0].exceptUserID)

	for _, c := range []*Client{a, b} {
		ev := recvEvent(t, c)
		assert.Equal(t, EventRefreshRead, ev.Type)
	}
}

func TestReadFailureNoBroadcast(t *testing.T) {
	chats := &fakeChatStore{readErr: errors.New("db down")}
	h := newTestHub(chats, nil, nil)
	a := newTestClient(1)
	b := newTestClient(2)
	h.addClient(a)
	h.addClient(b)
	h.joinRoom(a, "r1")
	h.joinRoom(b, "r1")

	h.HandleEvent(context.Background(), b, IncomingEvent{
		Type:     EventRead,
		RoomID:   "r1",
		RoomName: "r1",
		UserID:   "2",
	})

	assertNoEvent(t, a)
	assertNoEvent(t, b)
}

func TestTypingExcludesSender(t *testing.T) {
	h := newTestHub(nil, nil, nil)
	sender := newTestClient(1)
	peer := newTestClient(2)
	h.addClient(sender)
	h.addClient(peer)
	h.joinRoom(sender, "r1")
	h.joinRoom(peer, "r1")

	h.HandleEvent(context.Background(), sender, IncomingEvent{
		Type:     EventTyping,
		RoomName: "r1",
		UserID:   "1",
	})

	ev := recvEvent(t, peer)
	require.Equal(t, EventUserTyping, ev.Type)
	payload, ok := ev.Payload.(UserTypingPayload)
	require.True(t, ok)
	assert.Equal(t, int64(1), payload.UserID)
	assert.Equal(t, "r1", payload.RoomName)
	assertNoEvent(t, sender)
}

func TestPresenceBroadcastsProcessWideExcludingActor(t *testing.T) {
	users := &fakeUserStore{}
	h := newTestHub(nil, nil, users)
	actor := newTestClient(7)
	peer := newTestClient(2)
	stranger := newTestClient(3)
	h.addClient(actor)
	h.addClient(peer)
	h.addClient(stranger)
	// stranger shares no room with the actor but still hears presence.
	h.joinRoom(actor, "r1")
	h.joinRoom(peer, "r1")

	h.HandleEvent(context.Background(), actor, IncomingEvent{Type: EventOnline, UserID: "7"})
	h.HandleEvent(context.Background(), actor, IncomingEvent{Type: EventOffline, UserID: "7"})

	assert.Equal(t, []int64{7}, users.online)
	assert.Equal(t, []int64{7}, users.offline)

	for _, c := range []*Client{peer, stranger} {
		ev := recvEvent(t, c)
		require.Equal(t, EventUserOnline, ev.Type)
		payload, ok := ev.Payload.(UserStatusPayload)
		require.True(t, ok)
		assert.Equal(t, int64(7), payload.UserID)

		ev = recvEvent(t, c)
		assert.Equal(t, EventUserOffline, ev.Type)
		assertNoEvent(t, c)
	}
	assertNoEvent(t, actor)
}

func TestPresencePersistFailureNoBroadcast(t *testing.T) {
	users := &fakeUserStore{writeErr: errors.New("db down")}
	h := newTestHub(nil, nil, users)
	actor := newTestClient(7)
	peer := newTestClient(2)
	h.addClient(actor)
	h.addClient(peer)

	h.HandleEvent(context.Background(), actor, IncomingEvent{Type: EventOnline, UserID: "7"})

	assertNoEvent(t, peer)
	assertNoEvent(t, actor)
}

func TestUnregisterRemovesClientFromAllRooms(t *testing.T) {
	h := newTestHub(nil, nil, nil)
	a := newTestClient(1)
	b := newTestClient(2)
	h.addClient(a)
	h.addClient(b)
	h.joinRoom(a, "r1")
	h.joinRoom(a, "r2")
	h.joinRoom(b, "r1")

	h.removeClient(a)

	h.mu.RLock()
	_, inR1 := h.rooms["r1"][a]
	_, r2Exists := h.rooms["r2"]
	h.mu.RUnlock()
	assert.False(t, inR1)
	assert.False(t, r2Exists, "empty room entries are dropped")

	h.HandleEvent(context.Background(), b, IncomingEvent{Type: EventRefreshMedia, RoomName: "r1"})
	ev := recvEvent(t, b)
	assert.Equal(t, EventRefresh, ev.Type)
}

type notifyCall struct {
	userID int64
	body   string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) Notify(ctx context.Context, userID int64, title, body string, data map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{userID, body})
}

func (f *fakeNotifier) all() []notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifyCall(nil), f.calls...)
}

func TestPushPreviewTruncatesOnRuneBoundary(t *testing.T) {
	rooms := &fakeRoomStore{membersByRoom: map[string][]int64{"r1": {1, 2}}}
	notifier := &fakeNotifier{}
	h := NewHub(&fakeChatStore{}, rooms, &fakeUserStore{}, 100, notifier)
	sender := newTestClient(1)
	h.addClient(sender)
	h.joinRoom(sender, "r1")

	// 100 two-byte runes: 200 bytes, and byte offset 117 falls inside a rune.
	msg := strings.Repeat("ж", 100)
	h.HandleEvent(context.Background(), sender, IncomingEvent{
		Type:    EventSendMessage,
		RoomID:  "r1",
		Name:    "r1",
		Message: msg,
		UserID:  "1",
	})

	require.Eventually(t, func() bool {
		return len(notifier.all()) == 1
	}, time.Second, 10*time.Millisecond)

	call := notifier.all()[0]
	assert.Equal(t, int64(2), call.userID, "only the offline non-sender is notified")
	assert.True(t, strings.HasSuffix(call.body, "..."))
	assert.LessOrEqual(t, len(call.body), 120)
	assert.True(t, utf8.ValidString(call.body))
}

func TestUnknownEventType(t *testing.T) {
	h := newTestHub(nil, nil, nil)
	c := newTestClient(1)
	h.addClient(c)

	h.HandleEvent(context.Background(), c, IncomingEvent{Type: "bogus"})

	ev := recvEvent(t, c)
	assert.Equal(t, EventError, ev.Type)
}
