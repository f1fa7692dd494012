package model

import "time"

type User struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	VerificationCode *string   `json:"-"` // bcrypt hash of the emailed code; nil once verified
	Verified         bool      `json:"verified"`
	Image            string    `json:"image"`
	Position         string    `json:"position"`
	IsOnline         bool      `json:"isOnline"`
	LastSeen         time.Time `json:"lastSeen"`
	CreatedAt        time.Time `json:"createdAt"`
}

type UserPublic struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Image    string    `json:"image"`
	Position string    `json:"position,omitempty"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Image:    u.Image,
		Position: u.Position,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
	}
}
