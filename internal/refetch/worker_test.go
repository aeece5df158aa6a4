package refetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedsync/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type fakeSource struct {
	keys chan cache.Key

	mu   sync.Mutex
	seen []cache.Key
	errs map[string]error
}

func (f *fakeSource) Invalidated() <-chan cache.Key { return f.keys }

func (f *fakeSource) Refetch(_ context.Context, key cache.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, key)
	return f.errs[key.Endpoint]
}

func (f *fakeSource) refetched() []cache.Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cache.Key(nil), f.seen...)
}

func runWorker(t *testing.T, source Source) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewWorker(source, zap.NewNop()).Start(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestWorker_RefetchesSubscribedEntries(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := cache.New()
	var calls atomic.Int32
	ep := &cache.Endpoint[string, *string]{
		Name: "getOneArticle",
		Fetch: func(context.Context, string) (*string, error) {
			v := "v"
			calls.Add(1)
			return &v, nil
		},
		ProvidesTags: func(id string) []cache.Tag { return []cache.Tag{{Type: "Articles", ID: id}} },
	}

	_, err := ep.Get(context.Background(), store, "a")
	require.NoError(t, err)
	unsubscribe := store.Subscribe(ep.Key("a"), func(any) {})
	defer unsubscribe()

	stop := runWorker(t, store)
	store.Invalidate(cache.Tag{Type: "Articles", ID: "a"})

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		info, _ := store.Inspect(ep.Key("a"))
		return !info.Stale
	}, time.Second, 5*time.Millisecond)
	stop()
}

func TestWorker_ContinuesAfterErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := &fakeSource{
		keys: make(chan cache.Key, 3),
		errs: map[string]error{
			"broken":   errors.New("boom"),
			"restored": cache.ErrNoFetcher,
		},
	}
	source.keys <- cache.Key{Endpoint: "broken"}
	source.keys <- cache.Key{Endpoint: "restored"}
	source.keys <- cache.Key{Endpoint: "getFeed"}

	stop := runWorker(t, source)
	assert.Eventually(t, func() bool { return len(source.refetched()) == 3 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, "getFeed", source.refetched()[2].Endpoint)
}

func TestWorker_StopsWhenChannelCloses(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := &fakeSource{keys: make(chan cache.Key)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewWorker(source, nil).Start(context.Background())
	}()

	close(source.keys)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
