package offline

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// StorageStatus reports how a read or write of persisted state went. Storage
// problems never fail the caller; they surface here instead.
type StorageStatus string

const (
	StorageOK      StorageStatus = "ok"
	StorageMissing StorageStatus = "missing"
	StorageCorrupt StorageStatus = "corrupt"
	StorageFailed  StorageStatus = "failed"
)

// Degraded reports whether the status means stored data was lost or unreadable.
func (s StorageStatus) Degraded() bool {
	return s == StorageCorrupt || s == StorageFailed
}

// afterRead combines the status of the read step of a read-modify-write with
// the status of its write, so a reset of a corrupt blob stays visible.
func afterRead(read, write StorageStatus) StorageStatus {
	if write == StorageOK && read.Degraded() {
		return read
	}
	return write
}

// Cache is the offline snapshot of the full post collection.
type Cache struct {
	kv  KV
	log zerolog.Logger
}

// NewCache returns a Cache persisting to kv.
func NewCache(kv KV, log zerolog.Logger) *Cache {
	return &Cache{kv: kv, log: log.With().Str("component", "cache").Logger()}
}

// Save replaces the snapshot with blogs.
func (c *Cache) Save(ctx context.Context, blogs []BlogSummary) StorageStatus {
	if blogs == nil {
		blogs = []BlogSummary{}
	}
	data, err := json.Marshal(blogs)
	if err != nil {
		c.log.Warn().Err(err).Msg("encode snapshot")
		return StorageFailed
	}
	if err := c.kv.Set(ctx, CacheKey, data); err != nil {
		c.log.Warn().Err(err).Msg("write snapshot")
		return StorageFailed
	}
	return StorageOK
}

// Load returns the cached posts matching filter, in snapshot order.
func (c *Cache) Load(ctx context.Context, filter Filter) ([]BlogSummary, StorageStatus) {
	blogs, status := c.snapshot(ctx)
	return filter.Apply(blogs), status
}

func (c *Cache) snapshot(ctx context.Context) ([]BlogSummary, StorageStatus) {
	data, ok, err := c.kv.Get(ctx, CacheKey)
	if err != nil {
		c.log.Warn().Err(err).Msg("read snapshot")
		return []BlogSummary{}, StorageFailed
	}
	if !ok {
		return []BlogSummary{}, StorageMissing
	}
	var blogs []BlogSummary
	if err := json.Unmarshal(data, &blogs); err != nil {
		c.log.Warn().Err(err).Msg("decode snapshot")
		return []BlogSummary{}, StorageCorrupt
	}
	if blogs == nil {
		blogs = []BlogSummary{}
	}
	return blogs, StorageOK
}

// Replace stores fresh as the authoritative content of the filter's
// partition, keeping cached posts outside it so the snapshot stays a
// superset of every filter.
func (c *Cache) Replace(ctx context.Context, filter Filter, fresh []BlogSummary) StorageStatus {
	if filter == FilterAll {
		return c.Save(ctx, fresh)
	}
	current, read := c.snapshot(ctx)
	if read == StorageFailed {
		return read
	}
	next := make([]BlogSummary, 0, len(current)+len(fresh))
	for _, b := range current {
		if !filter.Match(b) {
			next = append(next, b)
		}
	}
	next = append(next, fresh...)
	return afterRead(read, c.Save(ctx, dedupe(next)))
}

// Upsert replaces the post with b's id, or appends b.
func (c *Cache) Upsert(ctx context.Context, b BlogSummary) StorageStatus {
	return c.Swap(ctx, b.ID, b)
}

// Swap puts b where the post with oldID sits, or appends it. Any other
// entry already carrying b's id is dropped. An unreadable snapshot is left
// untouched.
func (c *Cache) Swap(ctx context.Context, oldID string, b BlogSummary) StorageStatus {
	current, read := c.snapshot(ctx)
	if read == StorageFailed {
		return read
	}
	next := make([]BlogSummary, 0, len(current)+1)
	placed := false
	for _, cur := range current {
		switch {
		case cur.ID == oldID && !placed:
			next = append(next, b)
			placed = true
		case cur.ID == b.ID || cur.ID == oldID:
		default:
			next = append(next, cur)
		}
	}
	if !placed {
		next = append(next, b)
	}
	return afterRead(read, c.Save(ctx, next))
}

// Find returns the cached post with the given id.
func (c *Cache) Find(ctx context.Context, id string) (BlogSummary, bool) {
	current, _ := c.snapshot(ctx)
	for _, b := range current {
		if b.ID == id {
			return b, true
		}
	}
	return BlogSummary{}, false
}

// Remove drops id from the snapshot. Removing an absent id is a no-op.
func (c *Cache) Remove(ctx context.Context, id string) StorageStatus {
	current, status := c.snapshot(ctx)
	next := current[:0]
	for _, b := range current {
		if b.ID != id {
			next = append(next, b)
		}
	}
	if len(next) == len(current) && status != StorageMissing {
		return status
	}
	return c.Save(ctx, next)
}

// ApplyOrder rewrites the order of every cached post named in updates.
func (c *Cache) ApplyOrder(ctx context.Context, updates []OrderUpdate) StorageStatus {
	current, read := c.snapshot(ctx)
	if read == StorageFailed {
		return read
	}
	positions := make(map[string]int, len(updates))
	for _, u := range updates {
		positions[u.ID] = u.Order
	}
	for i := range current {
		if order, ok := positions[current[i].ID]; ok {
			current[i].Order = order
		}
	}
	return afterRead(read, c.Save(ctx, current))
}

// dedupe keeps the last occurrence of every id, in first-seen position.
func dedupe(blogs []BlogSummary) []BlogSummary {
	index := make(map[string]int, len(blogs))
	out := make([]BlogSummary, 0, len(blogs))
	for _, b := range blogs {
		if i, ok := index[b.ID]; ok {
			out[i] = b
			continue
		}
		index[b.ID] = len(out)
		out = append(out, b)
	}
	return out
}
