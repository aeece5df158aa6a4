package store

import (
	"context"
	"encoding/json"
	"testing"

	"feedsync/internal/cache"
	"feedsync/internal/feed"
	"feedsync/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore wires the store to miniredis and an in-memory Badger without
// going through NewHybridStore, which would create files on disk.
func newTestStore(t *testing.T) (*HybridStore, *miniredis.Miniredis, *badger.DB) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)

	s := &HybridStore{
		rdb: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		db:  db,
	}
	t.Cleanup(s.Close)
	return s, mr, db
}

func TestHybridStore_SessionRoundTrip(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()

	got, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "no session before sign-in")

	require.NoError(t, s.SaveSession(ctx, &model.Session{Token: "tok", UserID: "u1"}))
	assert.Equal(t, "tok", mr.HGet(sessionKey, "token"))

	got, err = s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, &model.Session{Token: "tok", UserID: "u1"}, got)

	require.NoError(t, s.ClearSession(ctx))
	assert.False(t, mr.Exists(sessionKey))
	got, err = s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHybridStore_SnapshotRoundTrip(t *testing.T) {
	s, mr, db := newTestStore(t)
	ctx := context.Background()

	global := cache.NewKey(feed.EndpointFeed, nil)
	detail := cache.NewKey(feed.EndpointOneArticle, "a")
	records := []cache.Record{
		{
			Key:   global,
			Value: &model.FeedPage{Data: []model.Article{{ID: "a", Likes: []string{"u1"}}}, TotalPages: 3},
			Arg:   2,
			Tags:  []cache.Tag{{Type: feed.TagArticles}},
		},
		{
			Key:   detail,
			Value: &model.Article{ID: "a", Text: "hello"},
			Arg:   "a",
			Tags:  []cache.Tag{feed.ArticleTag("a")},
		},
	}

	require.NoError(t, s.SaveSnapshot(ctx, records))

	members, err := mr.Members(cacheKeysSet)
	require.NoError(t, err)
	assert.Len(t, members, 2, "Redis lists every cached key")

	err = db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(entryPrefix + members[0]))
		return err
	})
	assert.NoError(t, err, "Badger holds the values")

	loaded, err := s.LoadSnapshot(ctx, feed.DecodeValue)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byKey := map[cache.Key]cache.Record{}
	for _, r := range loaded {
		byKey[r.Key] = r
	}
	assert.Equal(t, records[0].Value, byKey[global].Value)
	assert.Equal(t, records[1].Value, byKey[detail].Value)
	assert.Equal(t, records[0].Tags, byKey[global].Tags)
	assert.Equal(t, json.RawMessage("2"), byKey[global].Arg)
}

func TestHybridStore_SnapshotReplacesPrevious(t *testing.T) {
	s, mr, db := newTestStore(t)
	ctx := context.Background()

	old := cache.NewKey(feed.EndpointOneArticle, "old")
	kept := cache.NewKey(feed.EndpointOneArticle, "kept")
	require.NoError(t, s.SaveSnapshot(ctx, []cache.Record{
		{Key: old, Value: &model.Article{ID: "old"}},
		{Key: kept, Value: &model.Article{ID: "kept"}},
	}))
	require.NoError(t, s.SaveSnapshot(ctx, []cache.Record{
		{Key: kept, Value: &model.Article{ID: "kept", Text: "v2"}},
	}))

	members, err := mr.Members(cacheKeysSet)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	member, _, err := encodeRecord(cache.Record{Key: old, Value: nil})
	require.NoError(t, err)
	err = db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(entryPrefix + member))
		return err
	})
	assert.ErrorIs(t, err, badger.ErrKeyNotFound, "dropped entries leave Badger")

	loaded, err := s.LoadSnapshot(ctx, feed.DecodeValue)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "v2", loaded[0].Value.(*model.Article).Text)
}

func TestHybridStore_LoadSnapshotEmpty(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.LoadSnapshot(context.Background(), feed.DecodeValue)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHybridStore_RestoresIntoCache(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	src := cache.New()
	key := cache.NewKey(feed.EndpointUserFeed, "u1")
	src.Restore([]cache.Record{{Key: key, Value: &model.FeedPage{Data: []model.Article{{ID: "x", RepostedArticle: &model.Article{ID: "y"}}}}}})
	require.NoError(t, s.SaveSnapshot(ctx, src.Snapshot()))

	loaded, err := s.LoadSnapshot(ctx, feed.DecodeValue)
	require.NoError(t, err)

	dst := cache.New()
	dst.Restore(loaded)
	assert.Equal(t, []cache.Key{key}, dst.KeysFor("y"), "dependency index rebuilt on restore")
}

func TestHybridStore_ClientMode_NoBadger(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store, err := NewHybridStore(mr.Addr(), "")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	err = store.SaveSession(ctx, &model.Session{Token: "tok", UserID: "u1"})
	assert.NoError(t, err, "the session only needs Redis")

	err = store.SaveSnapshot(ctx, []cache.Record{{Key: cache.NewKey(feed.EndpointFeed, nil), Value: &model.FeedPage{}}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "badgerdb is not initialized")
}

func TestNewHybridStore_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewHybridStore(addr, "")
	assert.ErrorContains(t, err, "failed to connect to redis")
}
