package devapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ctxKey struct{}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// issueToken signs a token carrying the user id the way the real backend
// does.
func (s *Server) issueToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"userId": userID,
		"sub":    userID,
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) verifyToken(raw string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	id, ok := claims["userId"].(string)
	if !ok || id == "" {
		return "", errors.New("token has no userId")
	}
	return id, nil
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		userID, err := s.verifyToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		s.mu.Lock()
		_, known := s.users[userID]
		s.mu.Unlock()
		if !known {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

// Register creates an account directly and returns its id and bearer token.
func (s *Server) Register(email, password, firstName string) (string, string, error) {
	s.mu.Lock()
	u, err := s.addUserLocked(email, password, firstName, "")
	s.mu.Unlock()
	if err != nil {
		return "", "", err
	}
	token, err := s.issueToken(u.ID)
	if err != nil {
		return "", "", fmt.Errorf("issue token: %w", err)
	}
	return u.ID, token, nil
}

var errEmailTaken = errors.New("email already in use")

func (s *Server) addUserLocked(email, password, firstName, secondName string) (*user, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return nil, errEmailTaken
		}
	}
	u := &user{
		ID:         uuid.NewString(),
		Email:      email,
		Password:   password,
		FirstName:  firstName,
		SecondName: secondName,
	}
	s.users[u.ID] = u
	return u, nil
}
