// Package devapi is an in-memory implementation of the REST backend, used by
// tests and the devserver command.
package devapi

import (
	"context"
	"crypto/rand"
	"net/http"
	"slices"
	"sync"
	"time"

	"feedsync/internal/model"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const defaultPageSize = 10

type Server struct {
	logger *zap.Logger
	router *mux.Router
	server *http.Server

	secret   []byte
	pageSize int

	mu         sync.Mutex
	users      map[string]*user
	articles   map[string]*model.Article
	order      []string
	comments   map[string]*model.Comment
	failStatus int
}

type user struct {
	ID         string
	Email      string
	Password   string
	FirstName  string
	SecondName string
	Followings []string
	Followers  []string
	Bio        string
	Avatar     string
}

func (u *user) view() model.User {
	v := model.User{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		SecondName: u.SecondName,
		Followers:  slices.Clone(u.Followers),
		Followings: slices.Clone(u.Followings),
		Bio:        u.Bio,
		Avatar:     u.Avatar,
	}
	if v.Followers == nil {
		v.Followers = []string{}
	}
	if v.Followings == nil {
		v.Followings = []string{}
	}
	return v
}

// NewServer creates an empty backend.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)

	s := &Server{
		logger:   logger,
		router:   mux.NewRouter(),
		secret:   secret,
		pageSize: defaultPageSize,
		users:    make(map[string]*user),
		articles: make(map[string]*model.Article),
		comments: make(map[string]*model.Comment),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/auth/sign-in", s.handleSignIn).Methods(http.MethodPost)
	s.router.HandleFunc("/auth/sign-up", s.handleSignUp).Methods(http.MethodPost)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/feed", s.handleFeed).Methods(http.MethodGet)
	api.HandleFunc("/feed/{userId}", s.handleUserFeed).Methods(http.MethodGet)
	api.HandleFunc("/bookmarks/{userId}", s.handleBookmarks).Methods(http.MethodGet)
	api.HandleFunc("/articles/{id}", s.handleGetArticle).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", s.handleGetUser).Methods(http.MethodGet)

	write := func(h http.HandlerFunc) http.Handler { return s.failWrites(h) }
	api.Handle("/articles", write(s.handleCreateArticle)).Methods(http.MethodPost)
	api.Handle("/articles/{id}", write(s.handleEditArticle)).Methods(http.MethodPatch)
	api.Handle("/articles/{id}", write(s.handleDeleteArticle)).Methods(http.MethodDelete)
	api.Handle("/articles/{id}/like", write(s.handleLike(true))).Methods(http.MethodPost)
	api.Handle("/articles/{id}/like", write(s.handleLike(false))).Methods(http.MethodDelete)
	api.Handle("/articles/{id}/bookmark", write(s.handleBookmark(true))).Methods(http.MethodPost)
	api.Handle("/articles/{id}/bookmark", write(s.handleBookmark(false))).Methods(http.MethodDelete)
	api.Handle("/articles/{id}/repost", write(s.handleRepost)).Methods(http.MethodPost)
	api.Handle("/articles/{id}/comments", write(s.handleCreateComment)).Methods(http.MethodPost)
	api.Handle("/users/{id}", write(s.handleEditUser)).Methods(http.MethodPatch)
	api.Handle("/users/{id}/follow", write(s.handleFollow(true))).Methods(http.MethodPatch)
	api.Handle("/users/{id}/unfollow", write(s.handleFollow(false))).Methods(http.MethodPatch)
}

// Handler returns the router, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the HTTP server
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("dev API listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// FailWrites makes every mutating route answer with status. Zero restores
// normal behavior.
func (s *Server) FailWrites(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) failWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := s.failStatus
		s.mu.Unlock()
		if status != 0 {
			writeError(w, status, "writes are disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
