package model

import "time"

// Room is a named group of users sharing a chat history. Rooms are created
// lazily when two users first message each other; the name is unique.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomSummary is what the room list endpoint returns per room: members, the
// most recent chat and how many chats the requesting user has not read yet.
type RoomSummary struct {
	Room        Room         `json:"room"`
	Members     []UserPublic `json:"users"`
	LastChat    *Chat        `json:"lastChat,omitempty"`
	UnreadCount int          `json:"unreadCount"`
}

// RoomDetail is the full room view: ordered history with media plus members.
type RoomDetail struct {
	Room    Room         `json:"room"`
	Chats   []Chat       `json:"chats"`
	Members []UserPublic `json:"users"`
}
