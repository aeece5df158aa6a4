package api

import (
	"context"
	"net/http"
	"strings"
)

// Credentials are the sign-in form fields.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpParams are the sign-up form fields.
type SignUpParams struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"firstName"`
	SecondName string `json:"secondName"`
}

// AuthResult is returned by sign-in and sign-up.
type AuthResult struct {
	Token string `json:"token"`
}

// Me is the authenticated identity reported by the server.
type Me struct {
	UserID string `json:"userId"`
}

// SignIn exchanges credentials for a bearer token.
func (c *Client) SignIn(ctx context.Context, creds Credentials) (*AuthResult, error) {
	if strings.TrimSpace(creds.Email) == "" {
		return nil, &ValidationError{Field: "email", Message: "email is required"}
	}
	if creds.Password == "" {
		return nil, &ValidationError{Field: "password", Message: "password is required"}
	}
	var out AuthResult
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/sign-in", Body: creds}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignUp registers an account and returns its bearer token.
func (c *Client) SignUp(ctx context.Context, params SignUpParams) (*AuthResult, error) {
	if !strings.Contains(params.Email, "@") {
		return nil, &ValidationError{Field: "email", Message: "email is invalid"}
	}
	if len(params.Password) < 6 {
		return nil, &ValidationError{Field: "password", Message: "password must be at least 6 characters"}
	}
	if strings.TrimSpace(params.FirstName) == "" {
		return nil, &ValidationError{Field: "firstName", Message: "first name is required"}
	}
	form := &Form{Fields: [][2]string{
		{"email", params.Email},
		{"password", params.Password},
		{"firstName", params.FirstName},
		{"secondName", params.SecondName},
	}}
	var out AuthResult
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/sign-up", Form: form}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var out Me
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/auth/me"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
