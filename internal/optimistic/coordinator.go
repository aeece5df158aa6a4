// Package optimistic applies speculative cache edits while writes are in
// flight and either keeps or undoes them once the server answers.
package optimistic

import (
	"context"
	"sync"

	"feedsync/internal/api"
	"feedsync/internal/cache"
	"feedsync/internal/feed"
	"feedsync/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Writer is the subset of the API the coordinator sends writes through.
type Writer interface {
	LikeArticle(ctx context.Context, id string) error
	UnlikeArticle(ctx context.Context, id string) error
	BookmarkArticle(ctx context.Context, id string) error
	UnbookmarkArticle(ctx context.Context, id string) error
	RepostArticle(ctx context.Context, id string) (*model.Article, error)
	CreateArticle(ctx context.Context, params api.ArticleParams) (*model.Article, error)
	EditArticle(ctx context.Context, id string, params api.ArticleParams) (*model.Article, error)
	DeleteArticle(ctx context.Context, id string) error
	CreateComment(ctx context.Context, articleID string, text string) (*model.Comment, error)
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error
	EditUser(ctx context.Context, id string, params api.UserParams) (*model.User, error)
}

// Users reports who is performing writes.
type Users interface {
	RequireUser() (string, error)
}

// Coordinator runs writes with optimistic cache patches.
type Coordinator struct {
	store  *cache.Store
	feeds  *feed.Feeds
	writer Writer
	users  Users
	router *Router
	logger *zap.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*Patch
}

// New creates a coordinator patching the store behind feeds.
func New(feeds *feed.Feeds, writer Writer, users Users, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:   feeds.Store(),
		feeds:   feeds,
		writer:  writer,
		users:   users,
		router:  NewRouter(feeds.Store(), logger),
		logger:  logger,
		pending: make(map[uuid.UUID]*Patch),
	}
}

// Pending returns the number of patches waiting for a server answer.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ToggleLike likes the article when isLiked is false and unlikes it
// otherwise.
func (c *Coordinator) ToggleLike(ctx context.Context, articleID string, isLiked bool) error {
	userID, err := c.users.RequireUser()
	if err != nil {
		return err
	}

	p := c.begin(OpLike)
	if isLiked {
		c.patchArticle(p, articleID, removeUser(likes, userID))
		err = c.writer.UnlikeArticle(ctx, articleID)
	} else {
		c.patchArticle(p, articleID, addUser(likes, userID))
		err = c.writer.LikeArticle(ctx, articleID)
	}
	if err != nil {
		c.revert(p, err)
		return err
	}
	c.commit(p)
	return nil
}

// ToggleBookmark bookmarks the article when isBookmarked is false and
// removes the bookmark otherwise.
func (c *Coordinator) ToggleBookmark(ctx context.Context, articleID string, isBookmarked bool) error {
	userID, err := c.users.RequireUser()
	if err != nil {
		return err
	}

	p := c.begin(OpBookmark)
	if isBookmarked {
		c.patchArticle(p, articleID, removeUser(bookmarks, userID))
		p.apply(c.feeds.BookmarksKey(userID), removeArticle(articleID))
		err = c.writer.UnbookmarkArticle(ctx, articleID)
	} else {
		c.patchArticle(p, articleID, addUser(bookmarks, userID))
		err = c.writer.BookmarkArticle(ctx, articleID)
	}
	if err != nil {
		c.revert(p, err)
		return err
	}
	c.commit(p)
	return nil
}

// Repost reposts an article. The user joins the article's reposts right
// away; the repost itself appears in the user's feed once confirmed.
func (c *Coordinator) Repost(ctx context.Context, articleID string) (*model.Article, error) {
	userID, err := c.users.RequireUser()
	if err != nil {
		return nil, err
	}

	p := c.begin(OpRepost)
	c.patchArticle(p, articleID, addUser(reposts, userID))

	repost, err := c.writer.RepostArticle(ctx, articleID)
	if err != nil {
		c.revert(p, err)
		return nil, err
	}
	if repost != nil && repost.ID != "" {
		c.store.Write(c.feeds.UserKey(userID), prepend(repost))
	}
	c.commit(p)
	c.router.Completed(OpRepost, articleID)
	return repost, nil
}

// CreateArticle puts a placeholder at the top of the user's feed, publishes
// the article and swaps the placeholder for the server copy.
func (c *Coordinator) CreateArticle(ctx context.Context, params api.ArticleParams) (*model.Article, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	userID, err := c.users.RequireUser()
	if err != nil {
		return nil, err
	}

	p := c.begin(OpCreate)
	placeholder := model.NewPlaceholder(params.Text, userID)
	key := c.feeds.UserKey(userID)
	p.apply(key, unshift(placeholder))

	created, err := c.writer.CreateArticle(ctx, params)
	if err != nil {
		c.revert(p, err)
		return nil, err
	}
	c.store.Write(key, replacePending(placeholder.PendingRef, created))
	c.commit(p)
	c.router.Completed(OpCreate, created.ID)
	return created, nil
}

// EditArticle changes the text of an article everywhere it is cached and
// reconciles every copy with the server answer.
func (c *Coordinator) EditArticle(ctx context.Context, articleID string, params api.ArticleParams) (*model.Article, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	p := c.begin(OpEdit)
	c.patchArticle(p, articleID, setText(params.Text))

	edited, err := c.writer.EditArticle(ctx, articleID, params)
	if err != nil {
		c.revert(p, err)
		return nil, err
	}
	for _, key := range c.store.KeysFor(articleID) {
		c.store.Write(key, reconcile(articleID, edited))
	}
	c.commit(p)
	c.router.Completed(OpEdit, articleID)
	return edited, nil
}

// DeleteArticle removes an article from every feed. Deleting a repost also
// takes the user out of the reposted article's reposts.
func (c *Coordinator) DeleteArticle(ctx context.Context, articleID string) error {
	userID, err := c.users.RequireUser()
	if err != nil {
		return err
	}

	target := c.repostTarget(articleID)

	p := c.begin(OpDelete)
	for _, key := range c.store.KeysFor(articleID) {
		p.apply(key, removeArticle(articleID))
	}
	if target != "" {
		c.patchArticle(p, target, removeUser(reposts, userID))
	}

	if err := c.writer.DeleteArticle(ctx, articleID); err != nil {
		c.revert(p, err)
		return err
	}
	c.commit(p)
	c.router.Completed(OpDelete, articleID, target)
	return nil
}

// CreateComment adds a comment and records it on the cached article once
// the server confirms it.
func (c *Coordinator) CreateComment(ctx context.Context, articleID string, text string) (*model.Comment, error) {
	comment, err := c.writer.CreateComment(ctx, articleID, text)
	if err != nil {
		return nil, err
	}
	if comment.ID != "" {
		for _, key := range c.store.KeysFor(articleID) {
			c.store.Write(key, discardUndo(editOccurrences(articleID, appendComment(comment.ID))))
		}
	}
	c.router.Completed(OpComment, articleID)
	return comment, nil
}

// ToggleFollow follows userID when isFollowing is false and unfollows it
// otherwise. Both profiles involved are refetched afterwards.
func (c *Coordinator) ToggleFollow(ctx context.Context, userID string, isFollowing bool) error {
	me, err := c.users.RequireUser()
	if err != nil {
		return err
	}
	if isFollowing {
		err = c.writer.Unfollow(ctx, userID)
	} else {
		err = c.writer.Follow(ctx, userID)
	}
	if err != nil {
		return err
	}
	c.router.Completed(OpFollow, userID, me)
	return nil
}

// EditUser updates a profile and refetches its cached copy.
func (c *Coordinator) EditUser(ctx context.Context, userID string, params api.UserParams) (*model.User, error) {
	u, err := c.writer.EditUser(ctx, userID, params)
	if err != nil {
		return nil, err
	}
	c.router.Completed(OpEditUser, userID)
	return u, nil
}

func (c *Coordinator) begin(op Op) *Patch {
	p := newPatch(c.store, op)
	c.mu.Lock()
	c.pending[p.ID] = p
	c.mu.Unlock()
	return p
}

func (c *Coordinator) finish(p *Patch) {
	c.mu.Lock()
	delete(c.pending, p.ID)
	c.mu.Unlock()
}

func (c *Coordinator) commit(p *Patch) {
	defer c.finish(p)
	keys := len(p.Keys())
	if err := p.Commit(); err != nil {
		c.logger.Error("commit patch", zap.Error(err))
		return
	}
	c.logger.Debug("patch committed",
		zap.String("patch_id", p.ID.String()),
		zap.String("op", string(p.Op)),
		zap.Int("entries", keys),
	)
}

// revert undoes p after a failed write. The failure itself is reported to
// the caller, the cache layer only restores state.
func (c *Coordinator) revert(p *Patch, cause error) {
	defer c.finish(p)
	if err := p.Revert(); err != nil {
		c.logger.Error("revert patch", zap.Error(err))
		return
	}
	c.logger.Info("patch reverted",
		zap.String("patch_id", p.ID.String()),
		zap.String("op", string(p.Op)),
		zap.Error(cause),
	)
}

// patchArticle applies edit to every cached copy of the article in one pass.
func (c *Coordinator) patchArticle(p *Patch, articleID string, edit occurrenceEdit) {
	for _, key := range c.store.KeysFor(articleID) {
		p.apply(key, editOccurrences(articleID, edit))
	}
}

// repostTarget finds the id of the article that articleID reposts, looking
// at the cached top-level copies.
func (c *Coordinator) repostTarget(articleID string) string {
	for _, key := range c.store.KeysFor(articleID) {
		v, ok := c.store.Peek(key)
		if !ok {
			continue
		}
		for _, a := range findIn(v, articleID) {
			if a.RepostedArticle != nil && a.RepostedArticle.ID != "" {
				return a.RepostedArticle.ID
			}
		}
	}
	return ""
}

func reconcile(articleID string, server *model.Article) cache.Mutator {
	return discardUndo(editOccurrences(articleID, replaceWith(server)))
}

func discardUndo(fn forward) cache.Mutator {
	return func(current any) any {
		next, _ := fn(current)
		return next
	}
}
