package optimistic

import (
	"slices"

	"feedsync/internal/cache"
	"feedsync/internal/model"
)

// occurrenceEdit changes one cached copy of an article and returns the
// function that puts that copy back the way it was.
type occurrenceEdit func(a *model.Article) (restore func(a *model.Article))

// userSet selects one of the user-id sets of an article.
type userSet func(a *model.Article) *[]string

func likes(a *model.Article) *[]string     { return &a.Likes }
func reposts(a *model.Article) *[]string   { return &a.Reposts }
func bookmarks(a *model.Article) *[]string { return &a.Bookmarks }

func addUser(set userSet, userID string) occurrenceEdit {
	return func(a *model.Article) func(*model.Article) {
		prev := *set(a)
		if !slices.Contains(prev, userID) {
			*set(a) = model.AddUser(prev, userID)
		}
		return func(a *model.Article) { *set(a) = prev }
	}
}

func removeUser(set userSet, userID string) occurrenceEdit {
	return func(a *model.Article) func(*model.Article) {
		prev := *set(a)
		if slices.Contains(prev, userID) {
			*set(a) = model.RemoveUser(prev, userID)
		}
		return func(a *model.Article) { *set(a) = prev }
	}
}

func setText(text string) occurrenceEdit {
	return func(a *model.Article) func(*model.Article) {
		prev := a.Text
		a.Text = text
		return func(a *model.Article) { a.Text = prev }
	}
}

func appendComment(commentID string) occurrenceEdit {
	return func(a *model.Article) func(*model.Article) {
		prev := a.Comments
		a.Comments = append(slices.Clone(a.Comments), commentID)
		return func(a *model.Article) { a.Comments = prev }
	}
}

// replaceWith overwrites an occurrence with the server copy.
func replaceWith(server *model.Article) occurrenceEdit {
	return func(a *model.Article) func(*model.Article) {
		prev := *a
		*a = *server.Clone()
		return func(a *model.Article) { *a = prev }
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *model.FeedPage:
		return t.Clone()
	case *model.Article:
		return t.Clone()
	default:
		return v
	}
}

func findIn(v any, id string) []*model.Article {
	switch t := v.(type) {
	case *model.FeedPage:
		return t.Find(id)
	case *model.Article:
		return t.Find(id)
	default:
		return nil
	}
}

// editOccurrences applies edit to every copy of article id inside a cached
// value: feed items and embedded reposted articles alike.
func editOccurrences(id string, edit occurrenceEdit) forward {
	return func(current any) (any, cache.Mutator) {
		next := cloneValue(current)
		found := findIn(next, id)
		if len(found) == 0 {
			return current, nil
		}

		restores := make([]func(*model.Article), len(found))
		for i, a := range found {
			restores[i] = edit(a)
		}

		undo := func(current any) any {
			prev := cloneValue(current)
			for i, a := range findIn(prev, id) {
				if i >= len(restores) {
					break
				}
				restores[i](a)
			}
			return prev
		}
		return next, undo
	}
}

// unshift inserts a at the front of a feed.
func unshift(a model.Article) forward {
	return func(current any) (any, cache.Mutator) {
		page, ok := current.(*model.FeedPage)
		if !ok {
			return current, nil
		}
		wasNil := page.Data == nil
		next := page.Clone()
		next.Unshift(*a.Clone())
		return next, removePending(a.PendingRef, wasNil)
	}
}

func removePending(ref string, restoreNil bool) cache.Mutator {
	return func(current any) any {
		page, ok := current.(*model.FeedPage)
		if !ok {
			return current
		}
		next := page.Clone()
		next.Data = slices.DeleteFunc(next.Data, func(a model.Article) bool { return a.PendingRef == ref })
		if restoreNil && len(next.Data) == 0 {
			next.Data = nil
		}
		return next
	}
}

// replacePending swaps the placeholder marked ref for the server article.
func replacePending(ref string, server *model.Article) cache.Mutator {
	return func(current any) any {
		page, ok := current.(*model.FeedPage)
		if !ok {
			return current
		}
		i := slices.IndexFunc(page.Data, func(a model.Article) bool { return a.PendingRef == ref })
		if i < 0 {
			return current
		}
		next := page.Clone()
		next.Data[i] = *server.Clone()
		return next
	}
}

// prepend inserts a confirmed article at the front of a feed.
func prepend(a *model.Article) cache.Mutator {
	return func(current any) any {
		page, ok := current.(*model.FeedPage)
		if !ok {
			return current
		}
		next := page.Clone()
		next.Unshift(*a.Clone())
		return next
	}
}

// removeArticle drops every top-level feed item with the given id and
// remembers their positions so the undo puts them back in place.
func removeArticle(id string) forward {
	return func(current any) (any, cache.Mutator) {
		page, ok := current.(*model.FeedPage)
		if !ok {
			return current, nil
		}

		type removed struct {
			index   int
			article model.Article
		}
		var gone []removed
		next := &model.FeedPage{TotalPages: page.TotalPages, Data: make([]model.Article, 0, len(page.Data))}
		for i := range page.Data {
			if page.Data[i].ID == id {
				gone = append(gone, removed{index: i, article: *page.Data[i].Clone()})
				continue
			}
			next.Data = append(next.Data, *page.Data[i].Clone())
		}
		if len(gone) == 0 {
			return current, nil
		}

		undo := func(current any) any {
			page, ok := current.(*model.FeedPage)
			if !ok {
				return current
			}
			restored := page.Clone()
			if restored.Data == nil {
				restored.Data = []model.Article{}
			}
			for _, r := range gone {
				at := min(r.index, len(restored.Data))
				restored.Data = slices.Insert(restored.Data, at, *r.article.Clone())
			}
			return restored
		}
		return next, undo
	}
}
