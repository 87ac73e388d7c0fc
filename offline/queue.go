package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// OperationType tags a queued mutation in its persisted form.
type OperationType string

const (
	OpCreate      OperationType = "create"
	OpUpdate      OperationType = "update"
	OpDelete      OperationType = "delete"
	OpUpdateOrder OperationType = "updateOrder"
)

// Operation is a deferred mutation. The set of implementations is closed:
// Create, Update, Delete and UpdateOrder.
type Operation interface {
	Type() OperationType
	operation()
}

// Create adds a new post. ID is the temporary id the post carries in the
// cache until the server assigns the real one.
type Create struct {
	ID   string    `json:"id"`
	Data BlogInput `json:"data"`
}

// Update overwrites the writable fields of post ID.
type Update struct {
	ID   string    `json:"id"`
	Data BlogInput `json:"data"`
}

// Delete removes post ID.
type Delete struct {
	ID string `json:"id"`
}

// UpdateOrder assigns positions to several posts at once.
type UpdateOrder struct {
	Updates []OrderUpdate `json:"updates"`
}

func (Create) Type() OperationType      { return OpCreate }
func (Update) Type() OperationType      { return OpUpdate }
func (Delete) Type() OperationType      { return OpDelete }
func (UpdateOrder) Type() OperationType { return OpUpdateOrder }

func (Create) operation()      {}
func (Update) operation()      {}
func (Delete) operation()      {}
func (UpdateOrder) operation() {}

// Entry is one persisted queue element.
type Entry struct {
	Op        Operation
	Timestamp time.Time
}

// entryJSON is the stored layout: the operation's own fields flattened next
// to "type" and "timestamp" (unix milliseconds).
type entryJSON struct {
	Type      OperationType `json:"type"`
	Timestamp int64         `json:"timestamp"`
	ID        string        `json:"id,omitempty"`
	Data      *BlogInput    `json:"data,omitempty"`
	Updates   []OrderUpdate `json:"updates,omitempty"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{Type: e.Op.Type(), Timestamp: e.Timestamp.UnixMilli()}
	switch op := e.Op.(type) {
	case Create:
		out.ID = op.ID
		out.Data = &op.Data
	case Update:
		out.ID = op.ID
		out.Data = &op.Data
	case Delete:
		out.ID = op.ID
	case UpdateOrder:
		out.Updates = op.Updates
		if out.Updates == nil {
			out.Updates = []OrderUpdate{}
		}
	default:
		return nil, fmt.Errorf("unsupported operation %T", e.Op)
	}
	return json.Marshal(out)
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var in entryJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	var data BlogInput
	if in.Data != nil {
		data = *in.Data
	}
	switch in.Type {
	case OpCreate:
		e.Op = Create{ID: in.ID, Data: data}
	case OpUpdate:
		e.Op = Update{ID: in.ID, Data: data}
	case OpDelete:
		e.Op = Delete{ID: in.ID}
	case OpUpdateOrder:
		e.Op = UpdateOrder{Updates: in.Updates}
	default:
		return fmt.Errorf("unknown operation type %q", in.Type)
	}
	e.Timestamp = time.UnixMilli(in.Timestamp)
	return nil
}

// ReplayFunc performs the remote call for one operation.
type ReplayFunc func(ctx context.Context, op Operation) error

// DrainResult summarizes one pass over the queue.
type DrainResult struct {
	Replayed int
	Retained int
	Storage  StorageStatus
}

// Queue is the persisted FIFO log of operations awaiting connectivity.
// It assumes a single writer; callers serialize access.
type Queue struct {
	kv  KV
	now func() time.Time
	log zerolog.Logger
}

// NewQueue returns a Queue persisting to kv.
func NewQueue(kv KV, log zerolog.Logger) *Queue {
	return &Queue{kv: kv, now: time.Now, log: log.With().Str("component", "queue").Logger()}
}

// Enqueue appends op with the current time. Operations are never merged.
// When the queue cannot be read nothing is written and StorageFailed is
// returned; a corrupt queue is started over and reported as corrupt.
func (q *Queue) Enqueue(ctx context.Context, op Operation) StorageStatus {
	entries, read := q.Pending(ctx)
	if read == StorageFailed {
		q.log.Warn().Str("type", string(op.Type())).Msg("queue unreadable, operation not enqueued")
		return read
	}
	entries = append(entries, Entry{Op: op, Timestamp: q.now()})
	status := q.write(ctx, entries)
	if status == StorageOK {
		q.log.Debug().Str("type", string(op.Type())).Int("pending", len(entries)).Msg("enqueued")
	}
	return afterRead(read, status)
}

// Pending returns the queued entries in enqueue order.
func (q *Queue) Pending(ctx context.Context) ([]Entry, StorageStatus) {
	data, ok, err := q.kv.Get(ctx, QueueKey)
	if err != nil {
		q.log.Warn().Err(err).Msg("read queue")
		return nil, StorageFailed
	}
	if !ok {
		return nil, StorageMissing
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		q.log.Warn().Err(err).Msg("decode queue")
		return nil, StorageCorrupt
	}
	return entries, StorageOK
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) int {
	entries, _ := q.Pending(ctx)
	return len(entries)
}

// Drain replays every entry in order. Entries whose replay fails stay queued
// in their original relative order; the queue is written once at the end.
func (q *Queue) Drain(ctx context.Context, replay ReplayFunc) DrainResult {
	entries, status := q.Pending(ctx)
	if len(entries) == 0 {
		return DrainResult{Storage: status}
	}
	retained := make([]Entry, 0, len(entries))
	var result DrainResult
	for _, e := range entries {
		if err := replay(ctx, e.Op); err != nil {
			q.log.Warn().Err(err).Str("type", string(e.Op.Type())).Msg("replay failed, keeping operation")
			retained = append(retained, e)
			continue
		}
		result.Replayed++
	}
	result.Retained = len(retained)
	result.Storage = q.write(ctx, retained)
	return result
}

func (q *Queue) write(ctx context.Context, entries []Entry) StorageStatus {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		q.log.Warn().Err(err).Msg("encode queue")
		return StorageFailed
	}
	if err := q.kv.Set(ctx, QueueKey, data); err != nil {
		q.log.Warn().Err(err).Msg("write queue")
		return StorageFailed
	}
	return StorageOK
}
