package pubsync

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a requested post does not exist.
var ErrNotFound = errors.New("blog not found")

// PostCache is an in-memory copy of every post with a TTL. Reads filter the
// cached list; writes go through the Store and then Invalidate.
type PostCache struct {
	mu      sync.RWMutex
	blogs   []Blog
	fetched time.Time
	ttl     time.Duration
	store   *Store
}

// NewPostCache creates a PostCache backed by the given Store.
func NewPostCache(s *Store, ttl time.Duration) *PostCache {
	return &PostCache{store: s, ttl: ttl}
}

func (c *PostCache) valid() bool {
	return c.blogs != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.blogs = nil
	c.mu.Unlock()
}

// ensureLoaded returns the cached posts, reloading them under the write
// lock when stale.
func (c *PostCache) ensureLoaded(ctx context.Context) ([]Blog, error) {
	c.mu.RLock()
	if c.valid() {
		blogs := c.blogs
		c.mu.RUnlock()
		return blogs, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid() {
		return c.blogs, nil
	}
	blogs, err := c.store.ListBlogs(ctx, nil)
	if err != nil {
		return nil, err
	}
	c.blogs = blogs
	c.fetched = time.Now()
	return c.blogs, nil
}

// ListBlogs returns posts in display order. A nil isDraft returns all.
func (c *PostCache) ListBlogs(ctx context.Context, isDraft *bool) ([]Blog, error) {
	blogs, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Blog, 0, len(blogs))
	for _, b := range blogs {
		if isDraft == nil || b.IsDraft == *isDraft {
			out = append(out, b)
		}
	}
	return out, nil
}

// Published returns the posts visible on the public site.
func (c *PostCache) Published(ctx context.Context) ([]Blog, error) {
	published := false
	return c.ListBlogs(ctx, &published)
}

// GetBlog returns a single post by id from the cache.
func (c *PostCache) GetBlog(ctx context.Context, id string) (Blog, error) {
	blogs, err := c.ensureLoaded(ctx)
	if err != nil {
		return Blog{}, err
	}
	for _, b := range blogs {
		if b.ID == id {
			return b, nil
		}
	}
	return Blog{}, ErrNotFound
}
