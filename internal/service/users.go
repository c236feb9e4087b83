package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/Kerhoff/giftlist/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt limit
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Register creates an account and signs the user in.
func (s *Service) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if n := len(password); n < minPasswordLength || n > maxPasswordLength {
		return nil, models.NewValidationError("password",
			fmt.Sprintf("must be between %d and %d characters", minPasswordLength, maxPasswordLength))
	}
	name = strings.TrimSpace(name)
	if tooLong(name, maxTextLength) {
		return nil, models.NewValidationError("name", "is too long")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, &models.User{Email: email, Name: name, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			return nil, fmt.Errorf("email %s: %w", email, models.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("Registered new user")
	return s.issue(user)
}

// Login checks credentials. Unknown emails and wrong passwords fail the
// same way.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.NewValidationError("email", "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials: %w", models.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !s.passwords.Verify(user.PasswordHash, password) {
		s.logger.WithFields(logrus.Fields{"user_id": user.ID}).Debug("password mismatch")
		return nil, fmt.Errorf("invalid credentials: %w", models.ErrUnauthorized)
	}

	return s.issue(user)
}

// Me returns the signed-in user.
func (s *Service) Me(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, models.ErrUnauthorized)
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) issue(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", models.NewValidationError("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || tooLong(email, maxTextLength) {
		return "", models.NewValidationError("email", "is not a valid address")
	}
	return email, nil
}
