package pubsync

import "time"

// Blog is a post as stored in SQLite and returned by the JSON API.
type Blog struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Images    []string  `json:"images"`
	IsDraft   bool      `json:"isDraft"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BlogPatch is a create or update request body. Nil fields are left
// untouched on update.
type BlogPatch struct {
	Title   *string   `json:"title"`
	Content *string   `json:"content"`
	Images  *[]string `json:"images"`
	IsDraft *bool     `json:"isDraft"`
	Order   *int      `json:"order"`
}

// OrderUpdate assigns a display position to one post.
type OrderUpdate struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// PageMeta carries per-page OpenGraph and SEO metadata into the page head.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
}
