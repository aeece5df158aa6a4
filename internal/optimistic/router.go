package optimistic

import (
	"feedsync/internal/cache"
	"feedsync/internal/feed"

	"go.uber.org/zap"
)

// Op names a write operation.
type Op string

const (
	OpLike     Op = "like"
	OpBookmark Op = "bookmark"
	OpRepost   Op = "repost"
	OpCreate   Op = "create"
	OpEdit     Op = "edit"
	OpDelete   Op = "delete"
	OpComment  Op = "comment"
	OpFollow   Op = "follow"
	OpEditUser Op = "edit-user"
)

// Router marks cached entries stale after writes whose effect the
// optimistic patches cannot fully describe, such as single-article views
// affected by a change made elsewhere.
type Router struct {
	store  *cache.Store
	logger *zap.Logger
}

// NewRouter creates a router over store.
func NewRouter(store *cache.Store, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: store, logger: logger}
}

// Tags returns the tags a completed op invalidates.
func (r *Router) Tags(op Op, ids ...string) []cache.Tag {
	switch op {
	case OpCreate:
		return []cache.Tag{{Type: feed.TagArticles}}
	case OpEdit, OpDelete, OpComment, OpRepost:
		tags := make([]cache.Tag, 0, len(ids))
		for _, id := range ids {
			if id != "" {
				tags = append(tags, feed.ArticleTag(id))
			}
		}
		return tags
	case OpFollow, OpEditUser:
		tags := make([]cache.Tag, 0, len(ids))
		for _, id := range ids {
			if id != "" {
				tags = append(tags, feed.UserTag(id))
			}
		}
		return tags
	default:
		return nil
	}
}

// Completed invalidates the entries affected by a successful op.
func (r *Router) Completed(op Op, ids ...string) []cache.Key {
	tags := r.Tags(op, ids...)
	if len(tags) == 0 {
		return nil
	}
	keys := r.store.Invalidate(tags...)
	if len(keys) > 0 {
		r.logger.Debug("entries invalidated", zap.String("op", string(op)), zap.Int("count", len(keys)))
	}
	return keys
}
