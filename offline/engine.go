package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Path tells the caller how a write was handled.
type Path string

const (
	// PathRemote means the server confirmed the write.
	PathRemote Path = "remote"
	// PathQueued means the write was applied locally and will sync later.
	PathQueued Path = "queued"
)

// Source tells the caller where a read was served from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
)

// WriteResult describes a completed write.
type WriteResult struct {
	Path    Path
	Storage StorageStatus
}

// SaveResult is returned by Save. Blog has the same shape whether it came
// from the server or was built locally.
type SaveResult struct {
	WriteResult
	Blog BlogSummary
}

// Engine is the single entry point for reading and writing posts. It picks
// the remote API or the local cache and queue based on connectivity, and
// replays queued writes when connectivity returns.
type Engine struct {
	remote Remote
	signal Signal
	cache  *Cache
	queue  *Queue
	ids    idStore
	log    zerolog.Logger
	now    func() time.Time

	drainTimeout time.Duration

	// mu serializes every cache/queue read-modify-write and whole drains.
	mu sync.Mutex

	subMu       sync.Mutex
	unsubscribe func()
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithDrainTimeout bounds a drain triggered by a connectivity change.
func WithDrainTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.drainTimeout = d }
}

// NewEngine builds an Engine. Call Start to react to connectivity changes
// and Close at shutdown.
func NewEngine(remote Remote, kv KV, signal Signal, opts ...EngineOption) *Engine {
	e := &Engine{
		remote:       remote,
		signal:       signal,
		log:          zerolog.Nop(),
		now:          time.Now,
		drainTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cache = NewCache(kv, e.log)
	e.queue = NewQueue(kv, e.log)
	e.queue.now = e.now
	e.ids = idStore{kv: kv, log: e.log}
	return e
}

// Online reports the current connectivity.
func (e *Engine) Online() bool {
	return e.signal.Online()
}

// Start subscribes to connectivity changes; every transition to online
// drains the queue. Calling Start again is a no-op.
func (e *Engine) Start() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.unsubscribe != nil {
		return
	}
	e.unsubscribe = e.signal.Subscribe(func(online bool) {
		if !online {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), e.drainTimeout)
		defer cancel()
		res := e.Drain(ctx)
		e.log.Info().Int("replayed", res.Replayed).Int("retained", res.Retained).Msg("drained operation queue")
	})
}

// Close removes the connectivity subscription.
func (e *Engine) Close() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// FetchCollection returns the posts matching filter, from the server when
// reachable and from the cache otherwise. It never fails; a stale answer is
// flagged only through the returned Source.
func (e *Engine) FetchCollection(ctx context.Context, filter Filter) ([]BlogSummary, Source) {
	if e.signal.Online() {
		blogs, err := e.remote.List(ctx, filter)
		if err == nil {
			e.mu.Lock()
			e.cache.Replace(ctx, filter, blogs)
			e.mu.Unlock()
			return blogs, SourceRemote
		}
		e.log.Warn().Err(err).Str("filter", string(filter)).Msg("list failed, serving cache")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	blogs, _ := e.cache.Load(ctx, filter)
	return blogs, SourceCache
}

// Get returns one post, falling back to the cache when the server is unreachable.
func (e *Engine) Get(ctx context.Context, id string) (BlogSummary, Source, error) {
	if e.signal.Online() {
		b, err := e.remote.Get(ctx, id)
		var apiErr *APIError
		switch {
		case err == nil:
			return b, SourceRemote, nil
		case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
			return BlogSummary{}, SourceRemote, fmt.Errorf("%w: %s", ErrNotFound, id)
		case !errors.Is(err, ErrUnavailable):
			return BlogSummary{}, SourceRemote, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.cache.Find(ctx, id); ok {
		return b, SourceCache, nil
	}
	return BlogSummary{}, SourceCache, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Save creates a post when id is empty and updates post id otherwise.
// Offline, or when the server is unreachable, the write is queued and a
// locally built post is returned with PathQueued. Server-side rejections
// are returned as *APIError. A temporary id is always queued behind the
// create that will give it a server id.
func (e *Engine) Save(ctx context.Context, id string, in BlogInput) (SaveResult, error) {
	if e.signal.Online() && !IsTempID(id) {
		b, err := e.saveRemote(ctx, id, in)
		if err == nil {
			e.mu.Lock()
			st := e.cache.Upsert(ctx, b)
			e.mu.Unlock()
			return SaveResult{WriteResult: WriteResult{Path: PathRemote, Storage: st}, Blog: b}, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return SaveResult{}, err
		}
		e.log.Warn().Err(err).Msg("save failed, queueing")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()

	if id == "" {
		b := in.apply(BlogSummary{ID: NewTempID(), CreatedAt: now, UpdatedAt: now})
		qst := e.queue.Enqueue(ctx, Create{ID: b.ID, Data: in})
		cst := e.cache.Upsert(ctx, b)
		return SaveResult{WriteResult: WriteResult{Path: PathQueued, Storage: worst(qst, cst)}, Blog: b}, nil
	}

	b, ok := e.cache.Find(ctx, id)
	if !ok {
		b = BlogSummary{ID: id, CreatedAt: now}
	}
	b = in.apply(b)
	b.UpdatedAt = now
	qst := e.queue.Enqueue(ctx, Update{ID: id, Data: in})
	cst := e.cache.Upsert(ctx, b)
	return SaveResult{WriteResult: WriteResult{Path: PathQueued, Storage: worst(qst, cst)}, Blog: b}, nil
}

func (e *Engine) saveRemote(ctx context.Context, id string, in BlogInput) (BlogSummary, error) {
	if id == "" {
		return e.remote.Create(ctx, in)
	}
	return e.remote.Update(ctx, id, in)
}

// Delete removes a post. The cached copy goes away immediately in both
// paths; only the server-side removal may be deferred. A temporary id is
// queued like an offline delete.
func (e *Engine) Delete(ctx context.Context, id string) (WriteResult, error) {
	if e.signal.Online() && !IsTempID(id) {
		err := e.remote.Delete(ctx, id)
		if err == nil {
			e.mu.Lock()
			st := e.cache.Remove(ctx, id)
			e.mu.Unlock()
			return WriteResult{Path: PathRemote, Storage: st}, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return WriteResult{}, err
		}
		e.log.Warn().Err(err).Str("id", id).Msg("delete failed, queueing")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	qst := e.queue.Enqueue(ctx, Delete{ID: id})
	cst := e.cache.Remove(ctx, id)
	return WriteResult{Path: PathQueued, Storage: worst(qst, cst)}, nil
}

// UpdateOrder persists new positions for several posts in one call. A batch
// naming a temporary id is queued.
func (e *Engine) UpdateOrder(ctx context.Context, updates []OrderUpdate) (WriteResult, error) {
	if e.signal.Online() && !namesTempID(updates) {
		err := e.remote.BatchUpdateOrder(ctx, updates)
		if err == nil {
			e.mu.Lock()
			st := e.cache.ApplyOrder(ctx, updates)
			e.mu.Unlock()
			return WriteResult{Path: PathRemote, Storage: st}, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return WriteResult{}, err
		}
		e.log.Warn().Err(err).Msg("batch order failed, queueing")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	qst := e.queue.Enqueue(ctx, UpdateOrder{Updates: updates})
	cst := e.cache.ApplyOrder(ctx, updates)
	return WriteResult{Path: PathQueued, Storage: worst(qst, cst)}, nil
}

// Publish marks a draft as published. It needs connectivity.
func (e *Engine) Publish(ctx context.Context, id string) (BlogSummary, error) {
	if !e.signal.Online() {
		return BlogSummary{}, ErrOffline
	}
	b, err := e.remote.Publish(ctx, id)
	if err != nil {
		return BlogSummary{}, err
	}
	e.mu.Lock()
	e.cache.Upsert(ctx, b)
	e.mu.Unlock()
	return b, nil
}

// UploadImage sends an image to the server. It needs connectivity.
func (e *Engine) UploadImage(ctx context.Context, filename string, r io.Reader) (UploadedImage, error) {
	if !e.signal.Online() {
		return UploadedImage{}, ErrOffline
	}
	return e.remote.UploadImage(ctx, filename, r)
}

// Pending returns the number of queued operations.
func (e *Engine) Pending(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len(ctx)
}

// Drain replays the queue against the server. Nothing happens while offline.
// Operations queued against a temporary id are sent with the id the server
// assigned when that post's create was replayed, in this drain or an
// earlier one.
func (e *Engine) Drain(ctx context.Context) DrainResult {
	if !e.signal.Online() {
		return DrainResult{Storage: StorageOK}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, read := e.ids.load(ctx)
	if read == StorageFailed {
		return DrainResult{Retained: e.queue.Len(ctx), Storage: read}
	}
	known := len(ids)
	res := e.queue.Drain(ctx, func(ctx context.Context, op Operation) error {
		return e.replay(ctx, op, ids)
	})

	remaining, _ := e.queue.Pending(ctx)
	ids.prune(remaining)
	if known > 0 || len(ids) > 0 || read == StorageCorrupt {
		res.Storage = worst(res.Storage, afterRead(read, e.ids.save(ctx, ids)))
	}
	return res
}

// replay runs with e.mu held.
func (e *Engine) replay(ctx context.Context, op Operation, ids tempIDs) error {
	switch op := op.(type) {
	case Create:
		b, err := e.remote.Create(ctx, op.Data)
		if err != nil {
			return err
		}
		ids[op.ID] = b.ID
		e.cache.Swap(ctx, op.ID, b)
		return nil
	case Update:
		id, err := ids.resolve(op.ID)
		if err != nil {
			return err
		}
		b, err := e.remote.Update(ctx, id, op.Data)
		if err != nil {
			return err
		}
		e.cache.Upsert(ctx, b)
		return nil
	case Delete:
		id, err := ids.resolve(op.ID)
		if err != nil {
			return err
		}
		if err := e.remote.Delete(ctx, id); err != nil {
			return err
		}
		e.cache.Remove(ctx, id)
		return nil
	case UpdateOrder:
		updates, err := ids.resolveOrder(op.Updates)
		if err != nil {
			return err
		}
		if err := e.remote.BatchUpdateOrder(ctx, updates); err != nil {
			return err
		}
		e.cache.ApplyOrder(ctx, updates)
		return nil
	default:
		return fmt.Errorf("unsupported operation %T", op)
	}
}

func namesTempID(updates []OrderUpdate) bool {
	for _, u := range updates {
		if IsTempID(u.ID) {
			return true
		}
	}
	return false
}

func worst(a, b StorageStatus) StorageStatus {
	if a.Degraded() {
		return a
	}
	return b
}
