package offline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	remote *fakeRemote
	sw     *Switch
	kv     *MemoryKV
	engine *Engine
}

func newEngineFixture(t *testing.T, online bool, posts ...BlogSummary) *engineFixture {
	t.Helper()
	f := &engineFixture{
		remote: newFakeRemote(posts...),
		sw:     NewSwitch(online),
		kv:     NewMemoryKV(),
	}
	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f.engine = NewEngine(f.remote, f.kv, f.sw,
		WithLogger(zerolog.Nop()),
		WithClock(func() time.Time { return clock }),
	)
	f.engine.Start()
	t.Cleanup(f.engine.Close)
	return f
}

// goOffline flips the signal and makes the fake unreachable.
func (f *engineFixture) goOffline() {
	f.remote.setDown(true)
	f.sw.Set(false)
}

func (f *engineFixture) goOnline() {
	f.remote.setDown(false)
	f.sw.Set(true)
}

func TestEngine_FetchCollectionOnlineRefreshesCache(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, samplePosts()...)

	got, src := f.engine.FetchCollection(ctx, FilterAll)
	assert.Equal(t, SourceRemote, src)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))

	f.goOffline()
	got, src = f.engine.FetchCollection(ctx, FilterAll)
	assert.Equal(t, SourceCache, src)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestEngine_FetchCollectionFallsBackWhenUnreachable(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, samplePosts()...)
	f.engine.FetchCollection(ctx, FilterAll)

	// signal still says online, transport fails
	f.remote.setDown(true)
	got, src := f.engine.FetchCollection(ctx, FilterPublished)
	assert.Equal(t, SourceCache, src)
	assert.Equal(t, []string{"b", "c"}, ids(got))
}

func TestEngine_FilterConsistentAcrossSources(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, samplePosts()...)
	f.engine.FetchCollection(ctx, FilterAll)

	for _, filter := range []Filter{FilterAll, FilterDrafts, FilterPublished} {
		f.goOnline()
		online, src := f.engine.FetchCollection(ctx, filter)
		require.Equal(t, SourceRemote, src)

		f.goOffline()
		offline, src := f.engine.FetchCollection(ctx, filter)
		require.Equal(t, SourceCache, src)

		assert.ElementsMatch(t, ids(online), ids(offline), "filter %s", filter)
	}
}

func TestEngine_FilteredFetchKeepsCacheSuperset(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, samplePosts()...)
	f.engine.FetchCollection(ctx, FilterAll)
	f.engine.FetchCollection(ctx, FilterDrafts)

	f.goOffline()
	got, _ := f.engine.FetchCollection(ctx, FilterAll)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(got))
}

func TestEngine_SaveOnline(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true)

	res, err := f.engine.Save(ctx, "", BlogInput{Title: "Hello", Content: "<p>hi</p>", IsDraft: true})
	require.NoError(t, err)
	assert.Equal(t, PathRemote, res.Path)
	assert.Equal(t, StorageOK, res.Storage)
	assert.Equal(t, "srv-1", res.Blog.ID)
	assert.Zero(t, f.engine.Pending(ctx))

	res, err = f.engine.Save(ctx, "srv-1", BlogInput{Title: "Hello again", Content: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "Hello again", res.Blog.Title)

	cached, ok := f.engine.cache.Find(ctx, "srv-1")
	require.True(t, ok)
	assert.Equal(t, "Hello again", cached.Title)
}

func TestEngine_SaveOnlineRejectedIsReturned(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true)
	f.remote.reject = true

	_, err := f.engine.Save(ctx, "", BlogInput{Title: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Zero(t, f.engine.Pending(ctx))
}

func TestEngine_OfflineCreateThenDrain(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false)
	f.remote.setDown(true)

	res, err := f.engine.Save(ctx, "", BlogInput{Title: "Offline", Content: "<p>c</p>", IsDraft: true})
	require.NoError(t, err)
	assert.Equal(t, PathQueued, res.Path)
	assert.True(t, strings.HasPrefix(res.Blog.ID, "temp_"))
	assert.Equal(t, "Offline", res.Blog.Title)
	assert.Equal(t, 1, f.engine.Pending(ctx))

	cached, _ := f.engine.FetchCollection(ctx, FilterAll)
	require.Equal(t, []string{res.Blog.ID}, ids(cached))

	// the subscription drains synchronously on the transition
	f.goOnline()

	assert.Zero(t, f.engine.Pending(ctx))
	assert.Contains(t, f.remote.callLog(), "create Offline")

	f.remote.setDown(true)
	cached, src := f.engine.FetchCollection(ctx, FilterAll)
	require.Equal(t, SourceCache, src)
	assert.Equal(t, []string{"srv-1"}, ids(cached))
}

func TestEngine_DrainKeepsFailedOperations(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false)
	f.remote.setDown(true)

	_, err := f.engine.Save(ctx, "", BlogInput{Title: "first"})
	require.NoError(t, err)
	_, err = f.engine.Save(ctx, "", BlogInput{Title: "second"})
	require.NoError(t, err)
	_, err = f.engine.Delete(ctx, "gone")
	require.NoError(t, err)

	f.remote.failCreates = 1
	f.goOnline()

	assert.Equal(t, []string{"create first", "create second", "delete gone"}, f.remote.callLog())
	entries, _ := f.engine.queue.Pending(ctx)
	require.Len(t, entries, 1)
	create, ok := entries[0].Op.(Create)
	require.True(t, ok)
	assert.Equal(t, "first", create.Data.Title)

	res := f.engine.Drain(ctx)
	assert.Equal(t, 1, res.Replayed)
	assert.Zero(t, res.Retained)
}

func TestEngine_DrainSkippedWhileOffline(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false)
	_, err := f.engine.Delete(ctx, "x")
	require.NoError(t, err)

	res := f.engine.Drain(ctx)
	assert.Zero(t, res.Replayed)
	assert.Equal(t, 1, f.engine.Pending(ctx))
	assert.Empty(t, f.remote.callLog())
}

func TestEngine_OfflineUpdateUsesCachedFields(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, samplePosts()...)
	f.engine.FetchCollection(ctx, FilterAll)
	f.goOffline()

	res, err := f.engine.Save(ctx, "b", BlogInput{Title: "B offline", Content: "<p>b2</p>"})
	require.NoError(t, err)
	assert.Equal(t, PathQueued, res.Path)
	assert.Equal(t, 1, res.Blog.Order)
	assert.True(t, samplePosts()[1].CreatedAt.Equal(res.Blog.CreatedAt))
	assert.Equal(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), res.Blog.UpdatedAt)
}

func TestEngine_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, samplePosts()...)
	f.engine.FetchCollection(ctx, FilterAll)

	for i := 0; i < 2; i++ {
		res, err := f.engine.Delete(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, PathRemote, res.Path)
	}
	_, err := f.engine.Delete(ctx, "never-existed")
	require.NoError(t, err)

	f.goOffline()
	res, err := f.engine.Delete(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, PathQueued, res.Path)

	got, _ := f.engine.FetchCollection(ctx, FilterAll)
	assert.Equal(t, []string{"a", "c"}, ids(got))
}

func TestEngine_DeleteOfflineRemovesImmediately(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, samplePosts()...)
	f.engine.FetchCollection(ctx, FilterAll)
	f.goOffline()

	_, err := f.engine.Delete(ctx, "a")
	require.NoError(t, err)
	got, _ := f.engine.FetchCollection(ctx, FilterDrafts)
	assert.Empty(t, got)
}

func TestEngine_TransientFailureWhileOnlineQueues(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true)
	f.remote.setDown(true)

	res, err := f.engine.UpdateOrder(ctx, []OrderUpdate{{ID: "a", Order: 1}})
	require.NoError(t, err)
	assert.Equal(t, PathQueued, res.Path)
	assert.Equal(t, 1, f.engine.Pending(ctx))
}

func TestEngine_PublishAndUploadNeedConnectivity(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, samplePosts()...)

	b, err := f.engine.Publish(ctx, "a")
	require.NoError(t, err)
	assert.False(t, b.IsDraft)

	img, err := f.engine.UploadImage(ctx, "cat.png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/cat.png", img.ImagePath)

	f.goOffline()
	_, err = f.engine.Publish(ctx, "a")
	assert.ErrorIs(t, err, ErrOffline)
	_, err = f.engine.UploadImage(ctx, "cat.png", strings.NewReader("png"))
	assert.ErrorIs(t, err, ErrOffline)
}

func TestEngine_Get(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, samplePosts()...)
	f.engine.FetchCollection(ctx, FilterAll)

	b, src, err := f.engine.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, src)
	assert.Equal(t, "C", b.Title)

	_, _, err = f.engine.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	f.goOffline()
	b, src, err = f.engine.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, src)
	assert.Equal(t, "C", b.Title)

	_, _, err = f.engine.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEngine_StartIsIdempotentAndCloseStopsDrains(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false)
	f.engine.Start()
	f.engine.Start()

	_, err := f.engine.Delete(ctx, "x")
	require.NoError(t, err)

	f.goOnline()
	assert.Equal(t, []string{"delete x"}, f.remote.callLog())

	f.engine.Close()
	f.engine.Close()
	f.goOffline()
	_, err = f.engine.Delete(ctx, "y")
	require.NoError(t, err)
	f.goOnline()
	assert.Equal(t, 1, f.engine.Pending(ctx))
}

func TestEngine_StorageFailureSurfacesButDoesNotFail(t *testing.T) {
	ctx := context.Background()
	sw := NewSwitch(false)
	e := NewEngine(newFakeRemote(), failingKV{}, sw)

	res, err := e.Save(ctx, "", BlogInput{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, PathQueued, res.Path)
	assert.Equal(t, StorageFailed, res.Storage)

	got, src := e.FetchCollection(ctx, FilterAll)
	assert.Equal(t, SourceCache, src)
	assert.Empty(t, got)
}

func TestEngine_OfflineEditOfUnsyncedPostReachesServer(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false)
	f.remote.setDown(true)

	kept, err := f.engine.Save(ctx, "", BlogInput{Title: "draft", Content: "<p>1</p>"})
	require.NoError(t, err)
	_, err = f.engine.Save(ctx, kept.Blog.ID, BlogInput{Title: "edited", Content: "<p>2</p>"})
	require.NoError(t, err)
	dropped, err := f.engine.Save(ctx, "", BlogInput{Title: "scratch", Content: "<p>x</p>"})
	require.NoError(t, err)
	_, err = f.engine.Delete(ctx, dropped.Blog.ID)
	require.NoError(t, err)
	require.Equal(t, 4, f.engine.Pending(ctx))

	f.goOnline()

	assert.Zero(t, f.engine.Pending(ctx))
	assert.Equal(t, []string{"create draft", "update srv-1", "create scratch", "delete srv-2"}, f.remote.callLog())
	server, err := f.remote.List(ctx, FilterAll)
	require.NoError(t, err)
	require.Len(t, server, 1)
	assert.Equal(t, "edited", server[0].Title)

	cached, _ := f.engine.cache.Load(ctx, FilterAll)
	assert.Equal(t, []string{"srv-1"}, ids(cached))
	_, found, _ := f.kv.Get(ctx, IDMapKey)
	assert.False(t, found, "no mapping outlives the operations that needed it")
}

func TestEngine_ResolvedIDSurvivesRetainedOperation(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false)
	f.remote.setDown(true)

	created, err := f.engine.Save(ctx, "", BlogInput{Title: "post", Content: "c"})
	require.NoError(t, err)
	_, err = f.engine.Save(ctx, created.Blog.ID, BlogInput{Title: "post v2", Content: "c"})
	require.NoError(t, err)
	_, err = f.engine.UpdateOrder(ctx, []OrderUpdate{{ID: created.Blog.ID, Order: 4}})
	require.NoError(t, err)

	f.remote.failUpdates = 1
	f.goOnline()

	// the create landed; the edit stays queued under the temporary id
	assert.Equal(t, []string{"create post", "update srv-1", "batch"}, f.remote.callLog())
	entries, _ := f.engine.queue.Pending(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, created.Blog.ID, entries[0].Op.(Update).ID)
	assert.Equal(t, []OrderUpdate{{ID: "srv-1", Order: 4}}, f.remote.batches[0])

	res := f.engine.Drain(ctx)
	assert.Equal(t, 1, res.Replayed)
	assert.Equal(t, StorageOK, res.Storage)
	assert.Zero(t, f.engine.Pending(ctx))

	b, err := f.remote.Get(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "post v2", b.Title)
	assert.Equal(t, 4, b.Order)
}

func TestEngine_OperationsWaitForTheirCreate(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false)
	f.remote.setDown(true)

	created, err := f.engine.Save(ctx, "", BlogInput{Title: "post", Content: "c"})
	require.NoError(t, err)
	_, err = f.engine.Delete(ctx, created.Blog.ID)
	require.NoError(t, err)

	f.remote.failCreates = 1
	f.goOnline()

	// the delete never reaches the server with a temporary id
	assert.Equal(t, []string{"create post"}, f.remote.callLog())
	assert.Equal(t, 2, f.engine.Pending(ctx))

	f.engine.Drain(ctx)
	assert.Equal(t, []string{"create post", "create post", "delete srv-1"}, f.remote.callLog())
	assert.Zero(t, f.engine.Pending(ctx))
	server, err := f.remote.List(ctx, FilterAll)
	require.NoError(t, err)
	assert.Empty(t, server)
}

func TestEngine_SaveWithTemporaryIDQueuesWhileOnline(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true)

	res, err := f.engine.Save(ctx, NewTempID(), BlogInput{Title: "t", Content: "c"})
	require.NoError(t, err)
	assert.Equal(t, PathQueued, res.Path)
	assert.Empty(t, f.remote.callLog())
}

func TestEngine_UnreadableIDMapSkipsDrain(t *testing.T) {
	ctx := context.Background()
	kv := newFlakyKV()
	sw := NewSwitch(false)
	remote := newFakeRemote()
	e := NewEngine(remote, kv, sw)

	_, err := e.Save(ctx, "", BlogInput{Title: "post", Content: "c"})
	require.NoError(t, err)

	sw.Set(true)
	kv.failNextGets(1)
	res := e.Drain(ctx)
	assert.Equal(t, StorageFailed, res.Storage)
	assert.Equal(t, 1, res.Retained)
	assert.Empty(t, remote.callLog())

	res = e.Drain(ctx)
	assert.Equal(t, 1, res.Replayed)
}
