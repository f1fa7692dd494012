package model

import "time"

type Project struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ProjectImage struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"projectId"`
	PublicID  string `json:"publicId"`
	URL       string `json:"url"`
}

type Comment struct {
	ID        int64      `json:"id"`
	ProjectID string     `json:"projectId"`
	UserID    int64      `json:"userId"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"createdAt"`
	User      *UserPublic `json:"user,omitempty"`
}

type Like struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"projectId"`
	UserID    int64  `json:"userId"`
}

type ProjectView struct {
	ProjectID string    `json:"projectId"`
	UserID    int64     `json:"userId"`
	ViewedAt  time.Time `json:"viewedAt"`
}

// ProjectFeedItem is a feed entry: the project, its author, one cover image.
type ProjectFeedItem struct {
	Project Project     `json:"project"`
	User    UserPublic  `json:"user"`
	Cover   string      `json:"cover,omitempty"`
}

// ProjectDetail is the full project view with counts and the requesting
// user's own like, mirroring what the detail page needs in one response.
type ProjectDetail struct {
	Project    Project        `json:"project"`
	User       UserPublic     `json:"user"`
	Images     []ProjectImage `json:"images"`
	Comments   []Comment      `json:"comments"`
	LikeCount  int            `json:"likeCount"`
	ViewCount  int            `json:"viewCount"`
	LikedByMe  bool           `json:"likedByMe"`
}
