package devapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"feedsync/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticToken string

func (t staticToken) Token() string { return string(t) }

func newTestBackend(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func TestServer_SignUpSignInMe(t *testing.T) {
	_, srv := newTestBackend(t)
	ctx := context.Background()
	anon := api.NewClient(srv.URL, nil)

	res, err := anon.SignUp(ctx, api.SignUpParams{Email: "a@b.c", Password: "secret1", FirstName: "Ann"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	_, err = anon.SignUp(ctx, api.SignUpParams{Email: "A@b.c", Password: "secret1", FirstName: "Ann"})
	assert.True(t, api.IsStatus(err, http.StatusConflict))

	_, err = anon.SignIn(ctx, api.Credentials{Email: "a@b.c", Password: "wrong"})
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))

	in, err := anon.SignIn(ctx, api.Credentials{Email: "a@b.c", Password: "secret1"})
	require.NoError(t, err)

	me, err := api.NewClient(srv.URL, staticToken(in.Token)).Me(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, me.UserID)
}

func TestServer_RejectsMissingOrForeignTokens(t *testing.T) {
	_, srv := newTestBackend(t)
	other := NewServer(nil)
	_, foreign, err := other.Register("x@y.z", "secret1", "X")
	require.NoError(t, err)

	_, err = api.NewClient(srv.URL, nil).Feed(context.Background(), 1)
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))

	_, err = api.NewClient(srv.URL, staticToken(foreign)).Feed(context.Background(), 1)
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized), "tokens are signed per server")
}

func TestServer_ArticleLifecycle(t *testing.T) {
	s, srv := newTestBackend(t)
	ctx := context.Background()
	uid, token, err := s.Register("u@x.y", "secret1", "U")
	require.NoError(t, err)
	c := api.NewClient(srv.URL, staticToken(token))

	created, err := c.CreateArticle(ctx, api.ArticleParams{
		Text:   "hello",
		Images: []api.File{{Name: "cat.jpg", Content: strings.NewReader("jpeg")}},
	})
	require.NoError(t, err)
	assert.Equal(t, uid, created.Author)
	assert.Equal(t, []string{}, created.Likes)
	require.Len(t, created.Images, 1)
	assert.True(t, strings.HasSuffix(created.Images[0], ".jpg"))

	require.NoError(t, c.LikeArticle(ctx, created.ID))
	require.NoError(t, c.LikeArticle(ctx, created.ID))
	got, err := c.Article(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{uid}, got.Likes, "liking twice keeps one entry")

	edited, err := c.EditArticle(ctx, created.ID, api.ArticleParams{Text: "hello again"})
	require.NoError(t, err)
	assert.Equal(t, "hello again", edited.Text)
	assert.Equal(t, created.Images, edited.Images)

	comment, err := c.CreateComment(ctx, created.ID, "first")
	require.NoError(t, err)
	got, err = c.Article(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{comment.ID}, got.Comments)

	require.NoError(t, c.DeleteArticle(ctx, created.ID))
	_, err = c.Article(ctx, created.ID)
	assert.True(t, api.IsStatus(err, http.StatusNotFound))
}

func TestServer_RepostAndDeleteRepost(t *testing.T) {
	s, srv := newTestBackend(t)
	ctx := context.Background()
	_, authorToken, err := s.Register("a@x.y", "secret1", "A")
	require.NoError(t, err)
	uid, token, err := s.Register("u@x.y", "secret1", "U")
	require.NoError(t, err)

	original, err := api.NewClient(srv.URL, staticToken(authorToken)).CreateArticle(ctx, api.ArticleParams{Text: "post"})
	require.NoError(t, err)

	c := api.NewClient(srv.URL, staticToken(token))
	repost, err := c.RepostArticle(ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, repost.RepostedArticle)
	assert.Equal(t, original.ID, repost.RepostedArticle.ID)
	assert.Equal(t, []string{uid}, repost.RepostedArticle.Reposts)

	feed, err := c.UserFeed(ctx, uid, 1)
	require.NoError(t, err)
	require.Len(t, feed.Data, 1)
	assert.Equal(t, repost.ID, feed.Data[0].ID)

	require.NoError(t, c.DeleteArticle(ctx, repost.ID))
	got, err := c.Article(ctx, original.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Reposts)
}

func TestServer_FeedPagination(t *testing.T) {
	s, srv := newTestBackend(t)
	ctx := context.Background()
	uid, token, err := s.Register("u@x.y", "secret1", "U")
	require.NoError(t, err)
	c := api.NewClient(srv.URL, staticToken(token))

	for i := 0; i < defaultPageSize+3; i++ {
		_, err := c.CreateArticle(ctx, api.ArticleParams{Text: "post"})
		require.NoError(t, err)
	}

	first, err := c.Feed(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, first.Data, defaultPageSize)
	assert.Equal(t, 2, first.TotalPages)

	second, err := c.UserFeed(ctx, uid, 2)
	require.NoError(t, err)
	assert.Len(t, second.Data, 3)

	empty, err := c.Feed(ctx, 5)
	require.NoError(t, err)
	assert.NotNil(t, empty.Data)
	assert.Empty(t, empty.Data)
}

func TestServer_Bookmarks(t *testing.T) {
	s, srv := newTestBackend(t)
	ctx := context.Background()
	uid, token, err := s.Register("u@x.y", "secret1", "U")
	require.NoError(t, err)
	c := api.NewClient(srv.URL, staticToken(token))

	a, err := c.CreateArticle(ctx, api.ArticleParams{Text: "keep"})
	require.NoError(t, err)
	_, err = c.CreateArticle(ctx, api.ArticleParams{Text: "skip"})
	require.NoError(t, err)
	require.NoError(t, c.BookmarkArticle(ctx, a.ID))

	page, err := c.BookmarkedArticles(ctx, uid, 1)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, a.ID, page.Data[0].ID)

	require.NoError(t, c.UnbookmarkArticle(ctx, a.ID))
	page, err = c.BookmarkedArticles(ctx, uid, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}

func TestServer_EditingOthersArticlesIsForbidden(t *testing.T) {
	s, srv := newTestBackend(t)
	ctx := context.Background()
	_, ownerToken, err := s.Register("o@x.y", "secret1", "O")
	require.NoError(t, err)
	_, otherToken, err := s.Register("p@x.y", "secret1", "P")
	require.NoError(t, err)

	a, err := api.NewClient(srv.URL, staticToken(ownerToken)).CreateArticle(ctx, api.ArticleParams{Text: "mine"})
	require.NoError(t, err)

	other := api.NewClient(srv.URL, staticToken(otherToken))
	_, err = other.EditArticle(ctx, a.ID, api.ArticleParams{Text: "yours"})
	assert.True(t, api.IsStatus(err, http.StatusForbidden))
	assert.True(t, api.IsStatus(other.DeleteArticle(ctx, a.ID), http.StatusForbidden))
}

func TestServer_FailWrites(t *testing.T) {
	s, srv := newTestBackend(t)
	ctx := context.Background()
	_, token, err := s.Register("u@x.y", "secret1", "U")
	require.NoError(t, err)
	c := api.NewClient(srv.URL, staticToken(token))

	s.FailWrites(http.StatusServiceUnavailable)
	_, err = c.CreateArticle(ctx, api.ArticleParams{Text: "x"})
	var httpErr *api.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.Status)
	assert.Equal(t, "writes are disabled", httpErr.Message)

	_, err = c.Feed(ctx, 1)
	assert.NoError(t, err, "reads keep working")

	s.FailWrites(0)
	_, err = c.CreateArticle(ctx, api.ArticleParams{Text: "x"})
	assert.NoError(t, err)
}

func TestServer_Follow(t *testing.T) {
	s, srv := newTestBackend(t)
	ctx := context.Background()
	_, token, err := s.Register("u@x.y", "secret1", "U")
	require.NoError(t, err)
	other, _, err := s.Register("v@x.y", "secret1", "V")
	require.NoError(t, err)
	c := api.NewClient(srv.URL, staticToken(token))

	require.NoError(t, c.Follow(ctx, other))
	profile, err := c.User(ctx, other)
	require.NoError(t, err)
	assert.Len(t, profile.Followers, 1)

	require.NoError(t, c.Unfollow(ctx, other))
	profile, err = c.User(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, []string{}, profile.Followers)
	assert.True(t, api.IsStatus(c.Follow(ctx, "nobody"), http.StatusNotFound))
}

func TestServer_EditUser(t *testing.T) {
	s, srv := newTestBackend(t)
	ctx := context.Background()
	uid, token, err := s.Register("u@x.y", "secret1", "U")
	require.NoError(t, err)
	other, _, err := s.Register("v@x.y", "secret1", "V")
	require.NoError(t, err)
	c := api.NewClient(srv.URL, staticToken(token))

	jpeg := "\xff\xd8\xff\xe0" + strings.Repeat("x", 16)
	edited, err := c.EditUser(ctx, uid, api.UserParams{
		Bio:    "hello",
		Avatar: &api.File{Name: "me.jpg", Content: strings.NewReader(jpeg)},
	})
	require.NoError(t, err)
	assert.Equal(t, "U", edited.FirstName, "unset fields are kept")
	assert.Equal(t, "hello", edited.Bio)
	assert.True(t, strings.HasPrefix(edited.Avatar, "/avatars/"))

	got, err := c.User(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, edited.Avatar, got.Avatar)

	_, err = c.EditUser(ctx, uid, api.UserParams{Avatar: &api.File{Name: "fake.jpg", Content: strings.NewReader("plain text")}})
	assert.True(t, api.IsStatus(err, http.StatusUnprocessableEntity))

	_, err = c.EditUser(ctx, other, api.UserParams{Bio: "mine now"})
	assert.True(t, api.IsStatus(err, http.StatusForbidden))

	_, err = c.User(ctx, "nobody")
	assert.True(t, api.IsStatus(err, http.StatusNotFound))
}

func TestServer_ValidationMessagesAreLists(t *testing.T) {
	s, srv := newTestBackend(t)
	_, token, err := s.Register("u@x.y", "secret1", "U")
	require.NoError(t, err)

	err = api.NewClient(srv.URL, staticToken(token)).Do(context.Background(), api.Request{
		Method: http.MethodPost,
		Path:   "/articles",
		Form:   &api.Form{Fields: [][2]string{{"text", ""}}},
	}, nil)

	var httpErr *api.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, "text should not be empty; text must be a string", httpErr.Message)
}
