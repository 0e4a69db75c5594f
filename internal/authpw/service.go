// Package authpw verifies name/password credentials against stored bcrypt
// hashes. Registration is out of scope: users are provisioned by seeding.
package authpw

import (
	"context"
	"errors"
	"fmt"

	"newsdesk/api/internal/store"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type UserStore interface {
	GetUserByName(ctx context.Context, name string) (store.User, error)
}

type Service struct {
	store UserStore
}

func NewService(userStore UserStore) *Service {
	return &Service{store: userStore}
}

// Login returns the user when the password matches. Unknown names and wrong
// passwords produce the same error so callers cannot probe for accounts.
func (s *Service) Login(ctx context.Context, name, password string) (store.User, error) {
	user, err := s.store.GetUserByName(ctx, name)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if user.PasswordHash == "" {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
