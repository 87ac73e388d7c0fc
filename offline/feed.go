package offline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrIndexOutOfRange is returned by Reorder for positions outside the feed.
var ErrIndexOutOfRange = errors.New("index out of range")

// ReorderResult describes what a Reorder did.
type ReorderResult struct {
	// Changed is false for a no-op move; nothing else is set then.
	Changed bool
	Updates []OrderUpdate
	Path    Path
	// RolledBack is set when the batch was rejected and the feed refetched.
	RolledBack bool
}

// Feed is the ordered, in-memory list of posts a user arranges by hand.
type Feed struct {
	engine *Engine
	filter Filter

	mu    sync.Mutex
	items []BlogSummary
}

// NewFeed returns an empty feed over filter. Call Refresh to populate it.
func NewFeed(engine *Engine, filter Filter) *Feed {
	return &Feed{engine: engine, filter: filter, items: []BlogSummary{}}
}

func (f *Feed) Filter() Filter {
	return f.filter
}

// Refresh reloads the feed through the engine, sorted by order.
func (f *Feed) Refresh(ctx context.Context) Source {
	blogs, src := f.engine.FetchCollection(ctx, f.filter)
	sorted := SortByOrder(blogs)

	f.mu.Lock()
	f.items = sorted
	f.mu.Unlock()
	return src
}

// Items returns a copy of the current sequence.
func (f *Feed) Items() []BlogSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}

// Reorder moves the post at source to destination, renumbers the whole feed
// and persists every position in one batch. A nil destination or one equal
// to source is a no-op. If the server rejects the batch the feed is
// refetched and the error returned.
func (f *Feed) Reorder(ctx context.Context, source int, destination *int) (ReorderResult, error) {
	f.mu.Lock()
	if destination == nil || *destination == source {
		f.mu.Unlock()
		return ReorderResult{}, nil
	}
	n := len(f.items)
	if source < 0 || source >= n || *destination < 0 || *destination >= n {
		f.mu.Unlock()
		return ReorderResult{}, fmt.Errorf("%w: move %d to %d in %d items", ErrIndexOutOfRange, source, *destination, n)
	}
	f.items = Move(f.items, source, *destination)
	updates := OrderUpdates(f.items)
	f.mu.Unlock()

	res := ReorderResult{Changed: true, Updates: updates}
	w, err := f.engine.UpdateOrder(ctx, updates)
	if err != nil {
		f.Refresh(ctx)
		res.RolledBack = true
		return res, fmt.Errorf("save order: %w", err)
	}
	res.Path = w.Path
	return res, nil
}

// Remove deletes a post through the engine and drops it from the feed.
func (f *Feed) Remove(ctx context.Context, id string) (WriteResult, error) {
	w, err := f.engine.Delete(ctx, id)
	if err != nil {
		return w, err
	}
	f.mu.Lock()
	f.items = slices.DeleteFunc(f.items, func(b BlogSummary) bool { return b.ID == id })
	f.mu.Unlock()
	return w, nil
}

// Move returns a copy of items with the element at source spliced into
// destination and every order renumbered to its index.
func Move(items []BlogSummary, source, destination int) []BlogSummary {
	out := slices.Clone(items)
	moved := out[source]
	out = slices.Delete(out, source, source+1)
	out = slices.Insert(out, destination, moved)
	for i := range out {
		out[i].Order = i
	}
	return out
}

// OrderUpdates returns the batch payload for items: one entry per post, in
// sequence order.
func OrderUpdates(items []BlogSummary) []OrderUpdate {
	updates := make([]OrderUpdate, len(items))
	for i, b := range items {
		updates[i] = OrderUpdate{ID: b.ID, Order: b.Order}
	}
	return updates
}

// SortByOrder returns a copy of blogs stably sorted by Order.
func SortByOrder(blogs []BlogSummary) []BlogSummary {
	out := slices.Clone(blogs)
	if out == nil {
		out = []BlogSummary{}
	}
	slices.SortStableFunc(out, func(a, b BlogSummary) int { return a.Order - b.Order })
	return out
}
