package ws

import "time"

type EventType string

// Incoming event names are part of the wire contract with the frontend.
const (
	EventJoinRoom             EventType = "joinRoom"
	EventSendMessage          EventType = "sendMessage"
	EventSendMessageWithMedia EventType = "sendMessageWithMedia"
	EventRefreshMedia         EventType = "refreshMedia"
	EventAllRooms             EventType = "allRooms"
	EventTyping               EventType = "typing"
	EventOnline               EventType = "online"
	EventOffline              EventType = "offline"
	EventRead                 EventType = "read"
	EventDelivery             EventType = "delivery"
)

// Outgoing event names.
const (
	EventNewMessage  EventType = "newMessage"
	EventRefresh     EventType = "refresh"
	EventDelivered   EventType = "delivered"
	EventUserTyping  EventType = "userTyping"
	EventUserOnline  EventType = "userOnline"
	EventUserOffline EventType = "userOffline"
	EventRefreshRead EventType = "refreshRead"
	EventChatCreated EventType = "chatCreated"
	EventError       EventType = "error"
)

// IncomingEvent is what the client sends to the server. The frontend sends
// user ids as strings; handlers parse them to int64.
type IncomingEvent struct {
	Type     EventType `json:"type"`
	RoomID   string    `json:"roomId,omitempty"`
	RoomName string    `json:"roomName,omitempty"`
	Name     string    `json:"name,omitempty"`
	Message  string    `json:"message,omitempty"`
	UserID   string    `json:"userId,omitempty"`
	ID       string    `json:"id,omitempty"`
}

// OutgoingEvent is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingEvent struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// RefreshPayload carries the server timestamp clients use as a re-fetch
// signal; the actual changed rows are re-queried over HTTP.
type RefreshPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// ChatCreatedPayload is the ack sent to the sender after
// sendMessageWithMedia persists and fans out, so media can be attached.
type ChatCreatedPayload struct {
	ChatID string `json:"chatId"`
}

// UserTypingPayload is relayed to a room while a user types.
type UserTypingPayload struct {
	RoomName string `json:"roomName"`
	UserID   int64  `json:"userId"`
}

// UserStatusPayload is broadcast process-wide on online/offline.
type UserStatusPayload struct {
	UserID int64 `json:"userId"`
}
