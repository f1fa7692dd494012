package model

import "time"

// Chat is a single persisted message belonging to a room.
//
// Delivered and read are per-message booleans, not per-recipient state: they
// flip to true when at least one non-sender member triggers the transition,
// and they never go back to false.
type Chat struct {
	ID          string      `json:"id"`
	RoomID      string      `json:"roomId"`
	UserID      int64       `json:"userId"`
	Message     string      `json:"message"`
	Delivered   bool        `json:"delivered"`
	Read        bool        `json:"read"`
	DateCreated time.Time   `json:"dateCreated"`
	DateUpdated time.Time   `json:"dateUpdated"`
	Media       []ChatMedia `json:"media,omitempty"`
}

// ChatMedia is an attachment created after the chat row exists (the client
// first sends the message, receives the chat id, then attaches media).
type ChatMedia struct {
	ID     int64  `json:"id"`
	ChatID string `json:"chatId"`
	URL    string `json:"url"`
}
