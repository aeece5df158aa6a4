// Package feed defines the cached read queries: paginated feeds that grow as
// pages are requested, and single-article lookups.
package feed

import (
	"context"

	"feedsync/internal/cache"
	"feedsync/internal/model"
)

// Endpoint names, also used as the endpoint part of cache keys.
const (
	EndpointFeed       = "getFeed"
	EndpointUserFeed   = "getUserFeed"
	EndpointBookmarks  = "getBookmarkedArticles"
	EndpointOneArticle = "getOneArticle"
	EndpointOneUser    = "getOneUser"
)

// Tag types.
const (
	TagArticles = "Articles"
	TagUsers    = "Users"
)

// Source is the subset of the API the queries read from.
type Source interface {
	Feed(ctx context.Context, page int) (*model.FeedPage, error)
	UserFeed(ctx context.Context, userID string, page int) (*model.FeedPage, error)
	BookmarkedArticles(ctx context.Context, userID string, page int) (*model.FeedPage, error)
	Article(ctx context.Context, id string) (*model.Article, error)
	User(ctx context.Context, id string) (*model.User, error)
}

// UserPage addresses one page of a per-user feed.
type UserPage struct {
	UserID string `json:"userId"`
	Page   int    `json:"page"`
}

// Feeds runs the read queries against one store.
type Feeds struct {
	store *cache.Store

	global    *cache.Endpoint[int, *model.FeedPage]
	user      *cache.Endpoint[UserPage, *model.FeedPage]
	bookmarks *cache.Endpoint[UserPage, *model.FeedPage]
	article   *cache.Endpoint[string, *model.Article]
	profile   *cache.Endpoint[string, *model.User]
}

// New wires the feed queries to src and store.
func New(store *cache.Store, src Source) *Feeds {
	return &Feeds{
		store: store,
		global: &cache.Endpoint[int, *model.FeedPage]{
			Name: EndpointFeed,
			Fetch: func(ctx context.Context, page int) (*model.FeedPage, error) {
				return src.Feed(ctx, page)
			},
			SerializeArgs: func(int) string { return "" },
			Merge:         func(current, incoming *model.FeedPage, _ int) *model.FeedPage { return Append(current, incoming) },
			ForceRefetch:  func(current, previous int) bool { return current != previous },
		},
		user: &cache.Endpoint[UserPage, *model.FeedPage]{
			Name: EndpointUserFeed,
			Fetch: func(ctx context.Context, arg UserPage) (*model.FeedPage, error) {
				return src.UserFeed(ctx, arg.UserID, arg.Page)
			},
			SerializeArgs: func(arg UserPage) string { return arg.UserID },
			Merge:         func(current, incoming *model.FeedPage, _ UserPage) *model.FeedPage { return Append(current, incoming) },
			ForceRefetch:  func(current, previous UserPage) bool { return current != previous },
		},
		bookmarks: &cache.Endpoint[UserPage, *model.FeedPage]{
			Name: EndpointBookmarks,
			Fetch: func(ctx context.Context, arg UserPage) (*model.FeedPage, error) {
				return src.BookmarkedArticles(ctx, arg.UserID, arg.Page)
			},
			SerializeArgs: func(arg UserPage) string { return arg.UserID },
			Merge:         func(current, incoming *model.FeedPage, _ UserPage) *model.FeedPage { return Append(current, incoming) },
			ForceRefetch:  func(current, previous UserPage) bool { return current != previous },
		},
		article: &cache.Endpoint[string, *model.Article]{
			Name: EndpointOneArticle,
			Fetch: func(ctx context.Context, id string) (*model.Article, error) {
				return src.Article(ctx, id)
			},
			SerializeArgs: func(id string) string { return id },
			ProvidesTags:  func(id string) []cache.Tag { return []cache.Tag{ArticleTag(id)} },
		},
		profile: &cache.Endpoint[string, *model.User]{
			Name: EndpointOneUser,
			Fetch: func(ctx context.Context, id string) (*model.User, error) {
				return src.User(ctx, id)
			},
			SerializeArgs: func(id string) string { return id },
			ProvidesTags:  func(id string) []cache.Tag { return []cache.Tag{UserTag(id)} },
		},
	}
}

// Append concatenates incoming onto current without de-duplication. The
// page count follows the latest response. Neither input is modified.
func Append(current, incoming *model.FeedPage) *model.FeedPage {
	merged := current.Clone()
	if merged == nil {
		return incoming
	}
	if incoming == nil {
		return merged
	}
	for i := range incoming.Data {
		merged.Data = append(merged.Data, *incoming.Data[i].Clone())
	}
	merged.TotalPages = incoming.TotalPages
	return merged
}

// ArticleTag labels the cached entry of one article.
func ArticleTag(id string) cache.Tag {
	return cache.Tag{Type: TagArticles, ID: id}
}

// UserTag labels the cached profile of one user.
func UserTag(id string) cache.Tag {
	return cache.Tag{Type: TagUsers, ID: id}
}

// Store returns the underlying cache.
func (f *Feeds) Store() *cache.Store {
	return f.store
}

// Global returns the global feed with every page up to page loaded.
func (f *Feeds) Global(ctx context.Context, page int) (*model.FeedPage, error) {
	return f.global.Get(ctx, f.store, page)
}

// User returns the feed of userID.
func (f *Feeds) User(ctx context.Context, userID string, page int) (*model.FeedPage, error) {
	return f.user.Get(ctx, f.store, UserPage{UserID: userID, Page: page})
}

// Bookmarks returns the articles userID bookmarked.
func (f *Feeds) Bookmarks(ctx context.Context, userID string, page int) (*model.FeedPage, error) {
	return f.bookmarks.Get(ctx, f.store, UserPage{UserID: userID, Page: page})
}

// Article returns one article.
func (f *Feeds) Article(ctx context.Context, id string) (*model.Article, error) {
	return f.article.Get(ctx, f.store, id)
}

// Profile returns the profile of userID.
func (f *Feeds) Profile(ctx context.Context, userID string) (*model.User, error) {
	return f.profile.Get(ctx, f.store, userID)
}

// GlobalKey is the cache key of the global feed.
func (f *Feeds) GlobalKey() cache.Key {
	return f.global.Key(0)
}

// UserKey is the cache key of userID's feed.
func (f *Feeds) UserKey(userID string) cache.Key {
	return f.user.Key(UserPage{UserID: userID})
}

// BookmarksKey is the cache key of userID's bookmarks.
func (f *Feeds) BookmarksKey(userID string) cache.Key {
	return f.bookmarks.Key(UserPage{UserID: userID})
}

// ArticleKey is the cache key of one article.
func (f *Feeds) ArticleKey(id string) cache.Key {
	return f.article.Key(id)
}

// ProfileKey is the cache key of one user's profile.
func (f *Feeds) ProfileKey(userID string) cache.Key {
	return f.profile.Key(userID)
}
