package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (t staticToken) Token() string { return string(t) }

func newTestServer(t *testing.T, register func(r *mux.Router)) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			writeJSON(w, http.StatusOK, map[string]any{
				"data":       []map[string]any{{"_id": "a", "text": "hi", "likes": []string{}}},
				"totalPages": 3,
			})
		}).Methods(http.MethodGet)
	})

	c := NewClient(srv.URL, staticToken("tok"))
	page, err := c.Feed(context.Background(), 2)

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "a", page.Data[0].ID)
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	var hadHeader bool
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/articles/a", func(w http.ResponseWriter, r *http.Request) {
			_, hadHeader = r.Header["Authorization"]
			writeJSON(w, http.StatusOK, map[string]any{"_id": "a"})
		})
	})

	c := NewClient(srv.URL, staticToken(""))
	_, err := c.Article(context.Background(), "a")

	require.NoError(t, err)
	assert.False(t, hadHeader)
}

func TestClient_HTTPErrorCarriesServerMessage(t *testing.T) {
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/articles/a/like", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, map[string]any{"statusCode": 403, "message": "Forbidden resource", "error": "Forbidden"})
		})
		r.HandleFunc("/articles", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"statusCode": 400, "message": []string{"text too long", "bad image"}})
		})
		r.HandleFunc("/articles/b", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	})
	c := NewClient(srv.URL, staticToken("tok"))
	ctx := context.Background()

	err := c.LikeArticle(ctx, "a")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.Status)
	assert.Equal(t, "Forbidden resource", httpErr.Message)

	_, err = c.CreateArticle(ctx, ArticleParams{Text: "x"})
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "text too long; bad image", httpErr.Message)

	err = c.DeleteArticle(ctx, "b")
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Contains(t, err.Error(), "Not Found")
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, nil)
	err := c.LikeArticle(context.Background(), "a")

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.MethodPost, netErr.Method)
}

func TestClient_CreateArticleSendsMultipart(t *testing.T) {
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/articles", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "hello", r.FormValue("text"))
			files := r.MultipartForm.File["images"]
			require.Len(t, files, 1)
			f, err := files[0].Open()
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			assert.Equal(t, "jpegbytes", string(data))
			writeJSON(w, http.StatusCreated, map[string]any{"_id": "123", "text": "hello", "likes": []string{}, "images": []string{files[0].Filename}})
		}).Methods(http.MethodPost)
	})

	c := NewClient(srv.URL, staticToken("tok"))
	article, err := c.CreateArticle(context.Background(), ArticleParams{
		Text:   "hello",
		Images: []File{{Name: "cat.jpg", Content: strings.NewReader("jpegbytes")}},
	})

	require.NoError(t, err)
	assert.Equal(t, "123", article.ID)
	assert.Equal(t, []string{"cat.jpg"}, article.Images)
}

func TestClient_ValidationHappensBeforeDispatch(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, staticToken("tok"))
	ctx := context.Background()

	_, err := c.CreateArticle(ctx, ArticleParams{Text: "   "})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "text", vErr.Field)

	_, err = c.CreateComment(ctx, "a", "")
	assert.True(t, errors.As(err, &vErr))

	_, err = c.SignIn(ctx, Credentials{Email: "a@b.c"})
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, "password", vErr.Field)

	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestClient_EmptySuccessBody(t *testing.T) {
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/users/u2/follow", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}).Methods(http.MethodPatch)
	})

	c := NewClient(srv.URL, staticToken("tok"))
	assert.NoError(t, c.Follow(context.Background(), "u2"))
}
