package offline

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const tempIDPrefix = "temp_"

// BlogSummary is one post as known to the client. Its JSON shape matches the
// server's response body so cached and fresh values are interchangeable.
type BlogSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Images    []string  `json:"images"`
	IsDraft   bool      `json:"isDraft"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BlogInput holds the writable fields of a post, sent on create and update.
type BlogInput struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Images  []string `json:"images"`
	IsDraft bool     `json:"isDraft"`
}

// OrderUpdate assigns a display position to one post.
type OrderUpdate struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// apply copies the input fields onto b, leaving identity, order and
// timestamps alone.
func (in BlogInput) apply(b BlogSummary) BlogSummary {
	b.Title = in.Title
	b.Content = in.Content
	b.Images = append([]string(nil), in.Images...)
	b.IsDraft = in.IsDraft
	return b
}

// NewTempID returns an id for a post created while offline.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was assigned locally and never confirmed by the server.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// Filter selects a subset of posts. The same predicate is used by the server
// query string and by the offline cache so both paths agree.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterDrafts    Filter = "drafts"
	FilterPublished Filter = "published"
)

// ParseFilter maps user input to a Filter. Unknown or empty values mean all.
func ParseFilter(s string) Filter {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterDrafts:
		return FilterDrafts
	case FilterPublished:
		return FilterPublished
	default:
		return FilterAll
	}
}

// Match reports whether b belongs to the filtered subset.
func (f Filter) Match(b BlogSummary) bool {
	switch f {
	case FilterDrafts:
		return b.IsDraft
	case FilterPublished:
		return !b.IsDraft
	default:
		return true
	}
}

// Apply returns the matching subsequence of blogs, preserving order.
func (f Filter) Apply(blogs []BlogSummary) []BlogSummary {
	out := make([]BlogSummary, 0, len(blogs))
	for _, b := range blogs {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	return out
}

// isDraftParam returns the isDraft query value for f, or "" for all.
func (f Filter) isDraftParam() string {
	switch f {
	case FilterDrafts:
		return "true"
	case FilterPublished:
		return "false"
	default:
		return ""
	}
}
