package model

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Article is a post as returned by the API.
type Article struct {
	ID              string    `json:"_id"`
	Text            string    `json:"text"`
	Images          []string  `json:"images,omitempty"`
	Author          string    `json:"author,omitempty"`
	Likes           []string  `json:"likes"`
	Reposts         []string  `json:"reposts"`
	Bookmarks       []string  `json:"bookmarks"`
	RepostedArticle *Article  `json:"repostedArticle,omitempty"`
	Comments        []string  `json:"comment,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt,omitempty"`

	// PendingRef marks a speculative placeholder that has not been confirmed
	// by the server yet. Never sent over the wire.
	PendingRef string `json:"-"`
}

// NewPlaceholder creates a speculative article with no server id.
func NewPlaceholder(text string, author string) Article {
	return Article{
		Text:       text,
		Author:     author,
		PendingRef: uuid.NewString(),
	}
}

// IsPending reports whether the article is an unconfirmed placeholder.
func (a *Article) IsPending() bool {
	return a.PendingRef != ""
}

// Clone returns a deep copy. Nil slices stay nil so that a clone compares
// equal to the original.
func (a *Article) Clone() *Article {
	if a == nil {
		return nil
	}
	c := *a
	c.Images = slices.Clone(a.Images)
	c.Likes = slices.Clone(a.Likes)
	c.Reposts = slices.Clone(a.Reposts)
	c.Bookmarks = slices.Clone(a.Bookmarks)
	c.Comments = slices.Clone(a.Comments)
	c.RepostedArticle = a.RepostedArticle.Clone()
	return &c
}

// Find returns every occurrence of id within a, the article itself first and
// then its embedded reposted article.
func (a *Article) Find(id string) []*Article {
	var found []*Article
	if a == nil || id == "" {
		return found
	}
	if a.ID == id {
		found = append(found, a)
	}
	if a.RepostedArticle != nil && a.RepostedArticle.ID == id {
		found = append(found, a.RepostedArticle)
	}
	return found
}

// EntityIDs lists the article id and the id of the embedded repost target.
func (a *Article) EntityIDs() []string {
	var ids []string
	if a == nil {
		return ids
	}
	if a.ID != "" {
		ids = append(ids, a.ID)
	}
	if a.RepostedArticle != nil && a.RepostedArticle.ID != "" {
		ids = append(ids, a.RepostedArticle.ID)
	}
	return ids
}

// Summary is a one-line rendering used by the CLI.
func (a *Article) Summary() string {
	text := strings.ReplaceAll(a.Text, "\n", " ")
	if len(text) > 60 {
		text = text[:57] + "..."
	}
	id := a.ID
	if a.IsPending() {
		id = "(pending)"
	}
	line := id + "  " + text
	if a.RepostedArticle != nil {
		line += "  [repost of " + a.RepostedArticle.ID + "]"
	}
	return line
}

// AddUser returns ids with userID appended. The input is not modified.
func AddUser(ids []string, userID string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, userID)
}

// RemoveUser returns ids without any occurrence of userID. The input is not
// modified.
func RemoveUser(ids []string, userID string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}
