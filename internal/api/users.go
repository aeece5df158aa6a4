package api

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"

	"feedsync/internal/model"
)

// UserParams is the body of a profile edit. Empty fields are left as they
// are.
type UserParams struct {
	FirstName  string
	SecondName string
	Bio        string
	Avatar     *File
}

// Validate rejects edits that change nothing and avatars the backend would
// refuse.
func (p UserParams) Validate() error {
	if p.FirstName == "" && p.SecondName == "" && p.Bio == "" && p.Avatar == nil {
		return &ValidationError{Field: "user", Message: "nothing to change"}
	}
	if p.Avatar != nil {
		if p.Avatar.Content == nil {
			return &ValidationError{Field: "avatar", Message: "avatar " + p.Avatar.Name + " has no content"}
		}
		switch strings.ToLower(path.Ext(p.Avatar.Name)) {
		case ".jpg", ".jpeg":
		default:
			return &ValidationError{Field: "avatar", Message: "avatar must be a jpeg"}
		}
	}
	return nil
}

func (p UserParams) form() *Form {
	f := &Form{}
	for _, field := range [][2]string{{"firstName", p.FirstName}, {"secondName", p.SecondName}, {"bio", p.Bio}} {
		if field[1] != "" {
			f.Fields = append(f.Fields, field)
		}
	}
	if p.Avatar != nil {
		avatar := *p.Avatar
		avatar.Field = "avatar"
		f.Files = append(f.Files, avatar)
	}
	return f
}

// User fetches one profile.
func (c *Client) User(ctx context.Context, id string) (*model.User, error) {
	var out model.User
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: userPath(id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditUser updates the profile of id and returns it.
func (c *Client) EditUser(ctx context.Context, id string, params UserParams) (*model.User, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var out model.User
	if err := c.Do(ctx, Request{Method: http.MethodPatch, Path: userPath(id), Form: params.form()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Follow adds userID to the current user's followings.
func (c *Client) Follow(ctx context.Context, userID string) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: userPath(userID) + "/follow"}, nil)
}

// Unfollow removes userID from the current user's followings.
func (c *Client) Unfollow(ctx context.Context, userID string) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: userPath(userID) + "/unfollow"}, nil)
}

func userPath(id string) string {
	return "/users/" + url.PathEscape(id)
}
