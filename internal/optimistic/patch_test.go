package optimistic

import (
	"context"
	"testing"

	"feedsync/internal/cache"
	"feedsync/internal/feed"
	"feedsync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedFresh caches value under key as if it had just been fetched.
func seedFresh(t *testing.T, store *cache.Store, key cache.Key, value any, tags ...cache.Tag) {
	t.Helper()
	ep := &cache.Endpoint[struct{}, any]{
		Name:          key.Endpoint,
		Fetch:         func(context.Context, struct{}) (any, error) { return value, nil },
		SerializeArgs: func(struct{}) string { return key.Args },
		ProvidesTags:  func(struct{}) []cache.Tag { return tags },
	}
	_, err := ep.Get(context.Background(), store, struct{}{})
	require.NoError(t, err)
}

func TestPatch_ResolvesExactlyOnce(t *testing.T) {
	store := cache.New()
	p := newPatch(store, OpLike)
	assert.Equal(t, StatePending, p.State())

	require.NoError(t, p.Commit())
	assert.Equal(t, StateCommitted, p.State())

	assert.ErrorIs(t, p.Commit(), ErrPatchResolved)
	assert.ErrorIs(t, p.Revert(), ErrPatchResolved)
	assert.Equal(t, StateCommitted, p.State())
}

func TestPatch_RevertUndoesInReverseOrder(t *testing.T) {
	store := cache.New()
	key := cache.NewKey("getFeed", nil)
	seedFresh(t, store, key, &model.FeedPage{Data: []model.Article{{ID: "a", Text: "v0"}}})

	p := newPatch(store, OpEdit)
	assert.True(t, p.apply(key, editOccurrences("a", setText("v1"))))
	assert.True(t, p.apply(key, editOccurrences("a", setText("v2"))))
	assert.False(t, p.apply(key, editOccurrences("missing", setText("x"))), "no change, no inverse")
	assert.Equal(t, []cache.Key{key, key}, p.Keys())

	require.NoError(t, p.Revert())
	assert.Equal(t, StateReverted, p.State())

	v, _ := store.Read(key)
	assert.Equal(t, "v0", v.(*model.FeedPage).Data[0].Text)
	assert.ErrorIs(t, p.Revert(), ErrPatchResolved)
}

func TestPatch_ApplySkipsMissingEntries(t *testing.T) {
	p := newPatch(cache.New(), OpLike)

	assert.False(t, p.apply(cache.NewKey("getFeed", nil), editOccurrences("a", setText("x"))))
	assert.Empty(t, p.Keys())
}

func TestPatch_ApplyAfterResolutionIsIgnored(t *testing.T) {
	store := cache.New()
	key := cache.NewKey("getFeed", nil)
	seedFresh(t, store, key, &model.FeedPage{Data: []model.Article{{ID: "a"}}})

	p := newPatch(store, OpEdit)
	require.NoError(t, p.Commit())

	assert.False(t, p.apply(key, editOccurrences("a", setText("late"))))
	v, _ := store.Read(key)
	assert.Empty(t, v.(*model.FeedPage).Data[0].Text)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "reverted", StateReverted.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestRouter_Tags(t *testing.T) {
	r := NewRouter(cache.New(), nil)

	assert.Equal(t, []cache.Tag{{Type: feed.TagArticles}}, r.Tags(OpCreate, "x"))
	assert.Equal(t, []cache.Tag{feed.ArticleTag("x"), feed.ArticleTag("y")}, r.Tags(OpDelete, "x", "", "y"))
	assert.Nil(t, r.Tags(OpLike, "x"))
	assert.Nil(t, r.Tags(OpBookmark, "x"))
	assert.Equal(t, []cache.Tag{feed.UserTag("v"), feed.UserTag("u")}, r.Tags(OpFollow, "v", "u"))
	assert.Equal(t, []cache.Tag{feed.UserTag("u")}, r.Tags(OpEditUser, "u"))
}

func TestRouter_CompletedMarksEntriesStale(t *testing.T) {
	store := cache.New()
	detail := cache.NewKey(feed.EndpointOneArticle, "x")
	other := cache.NewKey(feed.EndpointOneArticle, "y")
	seedFresh(t, store, detail, &model.Article{ID: "x"}, feed.ArticleTag("x"))
	seedFresh(t, store, other, &model.Article{ID: "y"}, feed.ArticleTag("y"))

	keys := NewRouter(store, nil).Completed(OpEdit, "x")

	assert.Equal(t, []cache.Key{detail}, keys)
	info, _ := store.Inspect(other)
	assert.False(t, info.Stale)
}
