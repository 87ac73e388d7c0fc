package offline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// fakeRemote is an in-memory server. Setting down makes every call fail
// with ErrUnavailable; reject makes writes fail with an APIError.
type fakeRemote struct {
	mu     sync.Mutex
	posts  map[string]BlogSummary
	nextID int

	down   bool
	reject bool
	// failCreates and failUpdates fail that many calls before succeeding.
	failCreates int
	failUpdates int

	calls   []string
	batches [][]OrderUpdate
}

func newFakeRemote(posts ...BlogSummary) *fakeRemote {
	f := &fakeRemote{posts: make(map[string]BlogSummary)}
	for _, p := range posts {
		f.posts[p.ID] = p
	}
	return f
}

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) enter(name string) error {
	f.calls = append(f.calls, name)
	if f.down {
		return fmt.Errorf("%w: connection refused", ErrUnavailable)
	}
	return nil
}

func (f *fakeRemote) rejection() error {
	if f.reject {
		return &APIError{StatusCode: http.StatusBadRequest, Message: "rejected"}
	}
	return nil
}

func (f *fakeRemote) List(_ context.Context, filter Filter) ([]BlogSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list"); err != nil {
		return nil, err
	}
	out := make([]BlogSummary, 0, len(f.posts))
	for _, p := range f.posts {
		if filter.Match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeRemote) Get(_ context.Context, id string) (BlogSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get " + id); err != nil {
		return BlogSummary{}, err
	}
	p, ok := f.posts[id]
	if !ok {
		return BlogSummary{}, &APIError{StatusCode: http.StatusNotFound, Message: "Blog not found"}
	}
	return p, nil
}

func (f *fakeRemote) Create(_ context.Context, in BlogInput) (BlogSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create " + in.Title); err != nil {
		return BlogSummary{}, err
	}
	if f.failCreates > 0 {
		f.failCreates--
		return BlogSummary{}, &APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
	}
	if err := f.rejection(); err != nil {
		return BlogSummary{}, err
	}
	f.nextID++
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := in.apply(BlogSummary{ID: fmt.Sprintf("srv-%d", f.nextID), CreatedAt: now, UpdatedAt: now})
	f.posts[p.ID] = p
	return p, nil
}

func (f *fakeRemote) Update(_ context.Context, id string, in BlogInput) (BlogSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("update " + id); err != nil {
		return BlogSummary{}, err
	}
	if f.failUpdates > 0 {
		f.failUpdates--
		return BlogSummary{}, &APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
	}
	if err := f.rejection(); err != nil {
		return BlogSummary{}, err
	}
	p, ok := f.posts[id]
	if !ok {
		return BlogSummary{}, &APIError{StatusCode: http.StatusNotFound, Message: "Blog not found"}
	}
	p = in.apply(p)
	f.posts[id] = p
	return p, nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete " + id); err != nil {
		return err
	}
	delete(f.posts, id)
	return nil
}

func (f *fakeRemote) Publish(_ context.Context, id string) (BlogSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("publish " + id); err != nil {
		return BlogSummary{}, err
	}
	p, ok := f.posts[id]
	if !ok {
		return BlogSummary{}, &APIError{StatusCode: http.StatusNotFound, Message: "Blog not found"}
	}
	p.IsDraft = false
	f.posts[id] = p
	return p, nil
}

func (f *fakeRemote) BatchUpdateOrder(_ context.Context, updates []OrderUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("batch"); err != nil {
		return err
	}
	if err := f.rejection(); err != nil {
		return err
	}
	f.batches = append(f.batches, append([]OrderUpdate(nil), updates...))
	for _, u := range updates {
		if p, ok := f.posts[u.ID]; ok {
			p.Order = u.Order
			f.posts[u.ID] = p
		}
	}
	return nil
}

func (f *fakeRemote) UploadImage(_ context.Context, filename string, r io.Reader) (UploadedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("upload " + filename); err != nil {
		return UploadedImage{}, err
	}
	_, _ = io.Copy(io.Discard, r)
	return UploadedImage{ImageURL: "http://x/uploads/" + filename, ImagePath: "/uploads/" + filename}, nil
}

func (f *fakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("ping")
}

// failingKV fails every call.
type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, fmt.Errorf("disk gone")
}

func (failingKV) Set(context.Context, string, []byte) error {
	return fmt.Errorf("disk gone")
}

// flakyKV is a MemoryKV whose next failGets reads fail.
type flakyKV struct {
	*MemoryKV
	mu       sync.Mutex
	failGets int
}

func newFlakyKV() *flakyKV {
	return &flakyKV{MemoryKV: NewMemoryKV()}
}

func (k *flakyKV) failNextGets(n int) {
	k.mu.Lock()
	k.failGets = n
	k.mu.Unlock()
}

func (k *flakyKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	k.mu.Lock()
	fail := k.failGets > 0
	if fail {
		k.failGets--
	}
	k.mu.Unlock()
	if fail {
		return nil, false, fmt.Errorf("read %s: i/o timeout", key)
	}
	return k.MemoryKV.Get(ctx, key)
}
