package ws

import (
	"context"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/creatify/internal/logger"
	"github.com/creatify/internal/model"
	"github.com/google/uuid"
)

// ChatStore is the chat persistence the hub needs.
type ChatStore interface {
	Create(ctx context.Context, c *model.Chat) error
	MarkDelivered(ctx context.Context, roomID string, exceptUserID int64) error
	MarkRead(ctx context.Context, roomID string, exceptUserID int64) error
}

// RoomStore resolves room membership.
type RoomStore interface {
	IDsForUser(ctx context.Context, userID int64) ([]string, error)
	MemberIDs(ctx context.Context, roomID string) ([]int64, error)
	IsMember(ctx context.Context, roomID string, userID int64) (bool, error)
}

// UserStore is the presence persistence the hub needs.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	SetOnline(ctx context.Context, id int64) error
	SetOffline(ctx context.Context, id int64) error
}

// PushNotifier sends push notifications. nil disables pushes.
type PushNotifier interface {
	Notify(ctx context.Context, userID int64, title, body string, data map[string]string)
}

// Hub owns the connection registry and relays room events. A client may sit
// in any number of rooms; rooms are keyed by the string the client joined
// with (normally the room id).
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	rooms    map[string]map[*Client]struct{}
	total    int
	maxConns int

	chats    ChatStore
	roomList RoomStore
	users    UserStore
	notifier PushNotifier

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(chats ChatStore, roomList RoomStore, users UserStore, maxConns int, notifier PushNotifier) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		chats:      chats,
		roomList:   roomList,
		users:      users,
		notifier:   notifier,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for c := range h.clients {
		allClients = append(allClients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%d", h.maxConns, c.userID)
		c.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.total++
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.total--
	for key, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, key)
		}
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
}

// joinRoom adds the client to a room key in the registry.
func (h *Hub) joinRoom(c *Client, key string) {
	if key == "" {
		return
	}
	h.mu.Lock()
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[*Client]struct{})
	}
	h.rooms[key][c] = struct{}{}
	h.mu.Unlock()
}

// HandleEvent dispatches incoming WebSocket events.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, ev IncomingEvent) {
	switch ev.Type {
	case EventJoinRoom:
		h.handleJoinRoom(ctx, c, ev)
	case EventSendMessage:
		h.handleSendMessage(ctx, c, ev, false)
	case EventSendMessageWithMedia:
		h.handleSendMessage(ctx, c, ev, true)
	case EventRefreshMedia:
		h.broadcast(ev.RoomName, OutgoingEvent{Type: EventRefresh, Payload: RefreshPayload{Timestamp: time.Now().UTC()}}, nil)
	case EventAllRooms:
		h.syncRooms(ctx, c, ev, true)
	case EventDelivery:
		h.syncRooms(ctx, c, ev, false)
	case EventTyping:
		h.handleTyping(ctx, c, ev)
	case EventOnline:
		h.handlePresence(ctx, c, ev, true)
	case EventOffline:
		h.handlePresence(ctx, c, ev, false)
	case EventRead:
		h.handleRead(ctx, c, ev)
	default:
		h.sendToClient(c, OutgoingEvent{Type: EventError, Payload: "unknown event type"})
	}
}

// handleJoinRoom subscribes the connection to a room. The registry must stay
// a subset of the persisted membership, so non-members are refused.
func (h *Hub) handleJoinRoom(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.RoomID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ok, err := h.roomList.IsMember(ctx, ev.RoomID, c.userID)
	if err != nil {
		logger.Errorf("ws membership check room=%s user=%d: %v", ev.RoomID, c.userID, err)
		return
	}
	if !ok {
		h.sendToClient(c, OutgoingEvent{Type: EventError, Payload: "not a member of the room"})
		return
	}
	h.joinRoom(c, ev.RoomID)
}

// actingUserID resolves the user id an event acts as: the payload field
// when present, otherwise the authenticated connection.
func (h *Hub) actingUserID(c *Client, raw string) int64 {
	if raw == "" {
		return c.userID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return c.userID
	}
	return id
}

// handleSendMessage persists the chat and fans out newMessage plus refresh.
// The fan-out goes to the caller-supplied name field verbatim, not to
// roomId; the frontend always passes the room key there, so the two match
// in practice, but a divergent name silently targets a different room.
func (h *Hub) handleSendMessage(ctx context.Context, c *Client, ev IncomingEvent, withAck bool) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	if ev.RoomID == "" || ev.Message == "" {
		h.sendToClient(c, OutgoingEvent{Type: EventError, Payload: "roomId and message required"})
		return
	}
	userID := h.actingUserID(c, ev.UserID)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	chat := &model.Chat{
		ID:          uuid.New().String(),
		RoomID:      ev.RoomID,
		UserID:      userID,
		Message:     ev.Message,
		Delivered:   false,
		Read:        false,
		DateCreated: now,
		DateUpdated: now,
	}
	// A failed write is logged and the message dropped; nothing goes out,
	// not even to the sender.
	if err := h.chats.Create(ctx, chat); err != nil {
		logger.Errorf("ws save chat room=%s user=%d: %v", ev.RoomID, userID, err)
		return
	}

	h.broadcast(ev.Name, OutgoingEvent{Type: EventNewMessage, Payload: chat}, nil)
	h.broadcast(ev.Name, OutgoingEvent{Type: EventRefresh, Payload: RefreshPayload{Timestamp: now}}, nil)

	if withAck {
		h.sendToClient(c, OutgoingEvent{Type: EventChatCreated, Payload: ChatCreatedPayload{ChatID: chat.ID}})
	}

	h.notifyOfflineMembers(ev.RoomID, userID, chat)
}

// notifyOfflineMembers pushes a notification to room members without an
// active connection.
func (h *Hub) notifyOfflineMembers(roomID string, senderID int64, chat *model.Chat) {
	if h.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	memberIDs, err := h.roomList.MemberIDs(ctx, roomID)
	if err != nil {
		logger.Errorf("ws members for push room=%s: %v", roomID, err)
		return
	}

	title := "New message"
	if sender, err := h.users.GetByID(ctx, senderID); err == nil && sender.Name != "" {
		title = sender.Name
	}
	body := chat.Message
	if len(body) > 120 {
		// Cut on a rune boundary so the preview stays valid UTF-8.
		cut := 117
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	data := map[string]string{"roomId": roomID, "chatId": chat.ID}

	connected := h.connectedUserIDs()
	for _, uid := range memberIDs {
		if uid == senderID {
			continue
		}
		if _, ok := connected[uid]; ok {
			continue
		}
		uid := uid
		go h.notifier.Notify(context.Background(), uid, title, body, data)
	}
}

func (h *Hub) connectedUserIDs() map[int64]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make(map[int64]struct{}, len(h.clients))
	for c := range h.clients {
		ids[c.userID] = struct{}{}
	}
	return ids
}

// syncRooms handles allRooms (join=true) and delivery (join=false): joins
// the connection to each of the user's rooms, then reconciles delivery
// state per room. Reconciliation runs as independent fire-and-forget
// goroutines so one room's failure cannot block or fail the others, and
// callers must not assume completion on return.
func (h *Hub) syncRooms(ctx context.Context, c *Client, ev IncomingEvent, join bool) {
	defer logger.DeferLogDuration("ws.syncRooms", time.Now())()
	userID := h.actingUserID(c, ev.ID)

	listCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	roomIDs, err := h.roomList.IDsForUser(listCtx, userID)
	if err != nil {
		logger.Errorf("ws rooms for user=%d: %v", userID, err)
		return
	}

	for _, roomID := range roomIDs {
		if join {
			h.joinRoom(c, roomID)
		}
		roomID := roomID
		go h.reconcileRoom(c, roomID, userID)
	}
}

// reconcileRoom marks the other senders' chats delivered and tells the room
// to re-fetch, excluding the acting connection.
func (h *Hub) reconcileRoom(c *Client, roomID string, userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.chats.MarkDelivered(ctx, roomID, userID); err != nil {
		logger.Errorf("ws mark delivered room=%s user=%d: %v", roomID, userID, err)
		return
	}
	h.broadcast(roomID, OutgoingEvent{Type: EventDelivered, Payload: RefreshPayload{Timestamp: time.Now().UTC()}}, c)
}

func (h *Hub) handleRead(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleRead", time.Now())()
	if ev.RoomID == "" {
		return
	}
	userID := h.actingUserID(c, ev.UserID)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.chats.MarkRead(ctx, ev.RoomID, userID); err != nil {
		logger.Errorf("ws mark read room=%s user=%d: %v", ev.RoomID, userID, err)
		return
	}
	h.broadcast(ev.RoomName, OutgoingEvent{Type: EventRefreshRead, Payload: RefreshPayload{Timestamp: time.Now().UTC()}}, nil)
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.RoomName == "" {
		return
	}
	userID := h.actingUserID(c, ev.UserID)
	h.broadcast(ev.RoomName, OutgoingEvent{
		Type:    EventUserTyping,
		Payload: UserTypingPayload{RoomName: ev.RoomName, UserID: userID},
	}, c)
}

// handlePresence persists the presence change and broadcasts it to every
// connection process-wide except the acting one. A failed write is logged
// and nothing is broadcast.
func (h *Hub) handlePresence(ctx context.Context, c *Client, ev IncomingEvent, online bool) {
	userID := h.actingUserID(c, ev.UserID)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var err error
	evType := EventUserOffline
	if online {
		evType = EventUserOnline
		err = h.users.SetOnline(ctx, userID)
	} else {
		err = h.users.SetOffline(ctx, userID)
	}
	if err != nil {
		logger.Errorf("ws set presence user=%d online=%v: %v", userID, online, err)
		return
	}
	h.broadcastAll(OutgoingEvent{Type: evType, Payload: UserStatusPayload{UserID: userID}}, c)
}

// broadcast sends an event to every connection in a room, minus except.
func (h *Hub) broadcast(roomKey string, ev OutgoingEvent, except *Client) {
	if roomKey == "" {
		return
	}
	h.mu.RLock()
	members, ok := h.rooms[roomKey]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(members))
	for c := range members {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, ev)
	}
}

// broadcastAll sends an event to every connection process-wide, minus
// except.
func (h *Hub) broadcastAll(ev OutgoingEvent, except *Client) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, ev)
	}
}

func (h *Hub) sendToClient(c *Client, ev OutgoingEvent) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%d", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
