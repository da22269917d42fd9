// Package profile is the directory of users and the contacts they can message.
package profile

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a user or contact does not exist.
var ErrNotFound = errors.New("profile: not found")

// Contact status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Contact is someone a user can open a conversation with.
type Contact struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	Status   string `json:"status"`
	LastSeen string `json:"last_seen"`
	Unread   int    `json:"unread"`
}

// User is an account that can attach to the gateway.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	Followers   int64     `json:"followers"`
	Following   int64     `json:"following"`
	Likes       int64     `json:"likes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Directory looks up users and contacts.
type Directory interface {
	Contacts(ctx context.Context) ([]Contact, error)
	Contact(ctx context.Context, id int64) (Contact, error)
	UserByUsername(ctx context.Context, username string) (User, error)
}
