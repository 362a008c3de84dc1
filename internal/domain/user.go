// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen      = 64
	MaxDisplayNameLen = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrUserIDTooLong      = errors.New("user id too long")
)

type UserID string

// User is the identity resolved upstream for a connection. An empty ID means
// an anonymous guest.
type User struct {
	ID          UserID `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// NewGuestToken returns an opaque identity for a client without upstream auth.
func NewGuestToken() string {
	return uuid.NewString()
}

func NewUser(id, displayName string) (*User, error) {
	id = strings.TrimSpace(id)
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	u := &User{ID: UserID(id)}
	if err := u.SetDisplayName(displayName); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	u.DisplayName = name
	return nil
}

func (u *User) Anonymous() bool { return u.ID == "" }
