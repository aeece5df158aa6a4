package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"feedsync/internal/model"
)

// ArticleParams is the body of create and edit requests.
type ArticleParams struct {
	Text   string
	Images []File
}

// Validate applies the checks the backend enforces so that obviously bad
// input never reaches the network.
func (p ArticleParams) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return &ValidationError{Field: "text", Message: "text is required"}
	}
	for _, img := range p.Images {
		if img.Content == nil {
			return &ValidationError{Field: "images", Message: "image " + img.Name + " has no content"}
		}
	}
	return nil
}

func (p ArticleParams) form() *Form {
	f := &Form{Fields: [][2]string{{"text", p.Text}}}
	for _, img := range p.Images {
		img.Field = "images"
		f.Files = append(f.Files, img)
	}
	return f
}

func pageQuery(page int) url.Values {
	return url.Values{"page": []string{strconv.Itoa(page)}}
}

// Feed fetches one page of the global feed.
func (c *Client) Feed(ctx context.Context, page int) (*model.FeedPage, error) {
	var out model.FeedPage
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/feed", Query: pageQuery(page)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UserFeed fetches one page of the articles written or reposted by userID.
func (c *Client) UserFeed(ctx context.Context, userID string, page int) (*model.FeedPage, error) {
	var out model.FeedPage
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/feed/" + url.PathEscape(userID), Query: pageQuery(page)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BookmarkedArticles fetches one page of the articles userID bookmarked.
func (c *Client) BookmarkedArticles(ctx context.Context, userID string, page int) (*model.FeedPage, error) {
	var out model.FeedPage
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/bookmarks/" + url.PathEscape(userID), Query: pageQuery(page)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Article fetches a single article.
func (c *Client) Article(ctx context.Context, id string) (*model.Article, error) {
	var out model.Article
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: articlePath(id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateArticle publishes a new article.
func (c *Client) CreateArticle(ctx context.Context, params ArticleParams) (*model.Article, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var out model.Article
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/articles", Form: params.form()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditArticle replaces the text and images of an article.
func (c *Client) EditArticle(ctx context.Context, id string, params ArticleParams) (*model.Article, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var out model.Article
	if err := c.Do(ctx, Request{Method: http.MethodPatch, Path: articlePath(id), Form: params.form()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteArticle removes an article.
func (c *Client) DeleteArticle(ctx context.Context, id string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: articlePath(id)}, nil)
}

// LikeArticle adds the current user to the article likes.
func (c *Client) LikeArticle(ctx context.Context, id string) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: articlePath(id) + "/like"}, nil)
}

// UnlikeArticle removes the current user from the article likes.
func (c *Client) UnlikeArticle(ctx context.Context, id string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: articlePath(id) + "/like"}, nil)
}

// BookmarkArticle adds the article to the current user's bookmarks.
func (c *Client) BookmarkArticle(ctx context.Context, id string) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: articlePath(id) + "/bookmark"}, nil)
}

// UnbookmarkArticle removes the article from the current user's bookmarks.
func (c *Client) UnbookmarkArticle(ctx context.Context, id string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: articlePath(id) + "/bookmark"}, nil)
}

// RepostArticle reposts an article and returns the new repost.
func (c *Client) RepostArticle(ctx context.Context, id string) (*model.Article, error) {
	var out model.Article
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: articlePath(id) + "/repost"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateComment adds a comment to an article.
func (c *Client) CreateComment(ctx context.Context, articleID string, text string) (*model.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Field: "text", Message: "text is required"}
	}
	var out model.Comment
	body := map[string]string{"text": text}
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: articlePath(articleID) + "/comments", Body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func articlePath(id string) string {
	return "/articles/" + url.PathEscape(id)
}
