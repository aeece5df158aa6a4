package model

import (
	"slices"
	"time"
)

// FeedPage is a paginated list response. Inside the cache it holds every
// page fetched so far for one feed.
type FeedPage struct {
	Data       []Article `json:"data"`
	TotalPages int       `json:"totalPages"`
}

// Clone returns a deep copy of the page and its articles.
func (p *FeedPage) Clone() *FeedPage {
	if p == nil {
		return nil
	}
	c := &FeedPage{TotalPages: p.TotalPages}
	if p.Data != nil {
		c.Data = make([]Article, len(p.Data))
		for i := range p.Data {
			c.Data[i] = *p.Data[i].Clone()
		}
	}
	return c
}

// Find returns every occurrence of id in feed order, including embedded
// reposted articles.
func (p *FeedPage) Find(id string) []*Article {
	var found []*Article
	if p == nil {
		return found
	}
	for i := range p.Data {
		found = append(found, p.Data[i].Find(id)...)
	}
	return found
}

// EntityIDs lists every article id the page contains.
func (p *FeedPage) EntityIDs() []string {
	var ids []string
	if p == nil {
		return ids
	}
	for i := range p.Data {
		ids = append(ids, p.Data[i].EntityIDs()...)
	}
	return ids
}

// Unshift inserts a at the front of the list.
func (p *FeedPage) Unshift(a Article) {
	p.Data = slices.Insert(p.Data, 0, a)
}

// Comment is a reply attached to an article.
type Comment struct {
	ID        string    `json:"_id"`
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	Article   string    `json:"article,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Session is the persisted authentication state.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}
