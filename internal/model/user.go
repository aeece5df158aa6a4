package model

import (
	"slices"
	"strings"
)

// User is a profile as returned by the API.
type User struct {
	ID         string   `json:"_id"`
	Email      string   `json:"email"`
	FirstName  string   `json:"firstName"`
	SecondName string   `json:"secondName"`
	Followers  []string `json:"followers"`
	Followings []string `json:"followings"`
	Bio        string   `json:"bio,omitempty"`
	Avatar     string   `json:"avatar,omitempty"`
	Cover      string   `json:"cover,omitempty"`
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Followers = slices.Clone(u.Followers)
	c.Followings = slices.Clone(u.Followings)
	return &c
}

// FullName joins the first and second name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.SecondName)
}
