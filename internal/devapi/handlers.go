package devapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"feedsync/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxUploadSize = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError answers in the backend error format. A single message goes out
// as a string, several as a list.
func writeError(w http.ResponseWriter, status int, messages ...string) {
	body := map[string]any{"statusCode": status, "error": http.StatusText(status)}
	if len(messages) == 1 {
		body["message"] = messages[0]
	} else {
		body["message"] = messages
	}
	writeJSON(w, status, body)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	var found *user
	for _, u := range s.users {
		if strings.EqualFold(u.Email, creds.Email) && u.Password == creds.Password {
			found = u
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	s.respondToken(w, http.StatusOK, found.ID)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}

	var problems []string
	email := r.FormValue("email")
	password := r.FormValue("password")
	firstName := r.FormValue("firstName")
	if !strings.Contains(email, "@") {
		problems = append(problems, "email must be an email")
	}
	if len(password) < 6 {
		problems = append(problems, "password must be longer than or equal to 6 characters")
	}
	if strings.TrimSpace(firstName) == "" {
		problems = append(problems, "firstName should not be empty")
	}
	if len(problems) > 0 {
		writeError(w, http.StatusBadRequest, problems...)
		return
	}

	s.mu.Lock()
	u, err := s.addUserLocked(email, password, firstName, r.FormValue("secondName"))
	s.mu.Unlock()
	if errors.Is(err, errEmailTaken) {
		writeError(w, http.StatusConflict, "Email already in use")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondToken(w, http.StatusCreated, u.ID)
}

func (s *Server) respondToken(w http.ResponseWriter, status int, userID string) {
	token, err := s.issueToken(userID)
	if err != nil {
		s.logger.Error("issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, status, map[string]string{"token": token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"userId": userFrom(r.Context())})
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.writePage(w, r, func(*model.Article) bool { return true })
}

func (s *Server) handleUserFeed(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	s.writePage(w, r, func(a *model.Article) bool { return a.Author == userID })
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	s.writePage(w, r, func(a *model.Article) bool { return slices.Contains(a.Bookmarks, userID) })
}

// writePage answers with one page of the matching articles, newest first.
func (s *Server) writePage(w http.ResponseWriter, r *http.Request, match func(*model.Article) bool) {
	page := pageParam(r)

	s.mu.Lock()
	var all []model.Article
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.articles[s.order[i]]
		if match(a) {
			all = append(all, s.viewLocked(a))
		}
	}
	s.mu.Unlock()

	total := (len(all) + s.pageSize - 1) / s.pageSize
	start := min((page-1)*s.pageSize, len(all))
	end := min(start+s.pageSize, len(all))

	data := make([]model.Article, 0, end-start)
	data = append(data, all[start:end]...)
	writeJSON(w, http.StatusOK, model.FeedPage{Data: data, TotalPages: total})
}

// viewLocked renders an article with its reposted article embedded.
func (s *Server) viewLocked(a *model.Article) model.Article {
	v := *a.Clone()
	if a.RepostedArticle != nil {
		if target, ok := s.articles[a.RepostedArticle.ID]; ok {
			embedded := *target.Clone()
			embedded.RepostedArticle = nil
			v.RepostedArticle = &embedded
		}
	}
	return v
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	a, ok := s.articles[id]
	var v model.Article
	if ok {
		v = s.viewLocked(a)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Article not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// readArticleForm parses the multipart text and images fields.
func readArticleForm(r *http.Request) (string, []string, []string) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return "", nil, []string{"invalid form"}
	}
	text := r.FormValue("text")
	if strings.TrimSpace(text) == "" {
		return "", nil, []string{"text should not be empty", "text must be a string"}
	}
	var images []string
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["images"] {
			images = append(images, "/uploads/"+uuid.NewString()+path.Ext(fh.Filename))
		}
	}
	return text, images, nil
}

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	text, images, problems := readArticleForm(r)
	if problems != nil {
		writeError(w, http.StatusBadRequest, problems...)
		return
	}

	now := time.Now().UTC()
	a := &model.Article{
		ID:        uuid.NewString(),
		Text:      text,
		Images:    images,
		Author:    userFrom(r.Context()),
		Likes:     []string{},
		Reposts:   []string{},
		Bookmarks: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.insertLocked(a)
	v := s.viewLocked(a)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) insertLocked(a *model.Article) {
	s.articles[a.ID] = a
	s.order = append(s.order, a.ID)
}

func (s *Server) handleEditArticle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	text, images, problems := readArticleForm(r)
	if problems != nil {
		writeError(w, http.StatusBadRequest, problems...)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Article not found")
		return
	}
	if a.Author != userFrom(r.Context()) {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}
	a.Text = text
	if images != nil {
		a.Images = images
	}
	a.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, s.viewLocked(a))
}

func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	userID := userFrom(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Article not found")
		return
	}
	if a.Author != userID {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	if a.RepostedArticle != nil {
		if target, ok := s.articles[a.RepostedArticle.ID]; ok {
			target.Reposts = model.RemoveUser(target.Reposts, userID)
		}
	}
	s.removeLocked(id)
	// Reposts of a deleted article go with it.
	for _, other := range slices.Clone(s.order) {
		if o := s.articles[other]; o.RepostedArticle != nil && o.RepostedArticle.ID == id {
			s.removeLocked(other)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"_id": id})
}

func (s *Server) removeLocked(id string) {
	delete(s.articles, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
}

// toggleUser adds or removes the caller in one of the article's user sets.
func (s *Server) toggleUser(w http.ResponseWriter, r *http.Request, set func(*model.Article) *[]string, add bool) {
	id := mux.Vars(r)["id"]
	userID := userFrom(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Article not found")
		return
	}
	ids := set(a)
	switch {
	case add && !slices.Contains(*ids, userID):
		*ids = model.AddUser(*ids, userID)
	case !add:
		*ids = model.RemoveUser(*ids, userID)
	}
	writeJSON(w, http.StatusOK, s.viewLocked(a))
}

func (s *Server) handleLike(add bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.toggleUser(w, r, func(a *model.Article) *[]string { return &a.Likes }, add)
	}
}

func (s *Server) handleBookmark(add bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.toggleUser(w, r, func(a *model.Article) *[]string { return &a.Bookmarks }, add)
	}
}

func (s *Server) handleRepost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	userID := userFrom(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.articles[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Article not found")
		return
	}
	if target.RepostedArticle != nil {
		writeError(w, http.StatusBadRequest, "Cannot repost a repost")
		return
	}
	if !slices.Contains(target.Reposts, userID) {
		target.Reposts = model.AddUser(target.Reposts, userID)
	}

	now := time.Now().UTC()
	repost := &model.Article{
		ID:              uuid.NewString(),
		Text:            target.Text,
		Author:          userID,
		Likes:           []string{},
		Reposts:         []string{},
		Bookmarks:       []string{},
		RepostedArticle: &model.Article{ID: target.ID},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.insertLocked(repost)
	writeJSON(w, http.StatusCreated, s.viewLocked(repost))
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "text should not be empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Article not found")
		return
	}
	c := &model.Comment{
		ID:        uuid.NewString(),
		Text:      body.Text,
		Author:    userFrom(r.Context()),
		Article:   id,
		CreatedAt: time.Now().UTC(),
	}
	s.comments[c.ID] = c
	a.Comments = append(a.Comments, c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleFollow(follow bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targetID := mux.Vars(r)["id"]
		userID := userFrom(r.Context())
		if targetID == userID {
			writeError(w, http.StatusBadRequest, "Cannot follow yourself")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		target, ok := s.users[targetID]
		if !ok {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		me := s.users[userID]
		if follow {
			if !slices.Contains(me.Followings, targetID) {
				me.Followings = append(me.Followings, targetID)
				target.Followers = append(target.Followers, userID)
			}
		} else {
			me.Followings = model.RemoveUser(me.Followings, targetID)
			target.Followers = model.RemoveUser(target.Followers, userID)
		}
		writeJSON(w, http.StatusOK, map[string]any{"_id": me.ID, "followings": me.Followings})
	}
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u.view())
}

// handleEditUser updates text fields that are present and stores a jpeg
// avatar.
func (s *Server) handleEditUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id != userFrom(r.Context()) {
		writeError(w, http.StatusForbidden, "Forbidden resource")
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}

	var avatar string
	if files := r.MultipartForm.File["avatar"]; len(files) > 0 {
		ok, err := isJPEG(files[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid form")
			return
		}
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "Validation failed (expected type is jpeg)")
			return
		}
		avatar = "/avatars/" + uuid.NewString() + ".jpg"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if v := r.FormValue("firstName"); v != "" {
		u.FirstName = v
	}
	if v := r.FormValue("secondName"); v != "" {
		u.SecondName = v
	}
	if v := r.FormValue("bio"); v != "" {
		u.Bio = v
	}
	if avatar != "" {
		u.Avatar = avatar
	}
	writeJSON(w, http.StatusOK, u.view())
}

func isJPEG(fh *multipart.FileHeader) (bool, error) {
	f, err := fh.Open()
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return http.DetectContentType(head[:n]) == "image/jpeg", nil
}
