package service

import (
	"github.com/Kerhoff/giftlist/internal/auth"
	"github.com/Kerhoff/giftlist/internal/claim"
	"github.com/Kerhoff/giftlist/internal/live"
	"github.com/Kerhoff/giftlist/internal/repository"
	"github.com/sirupsen/logrus"
)

// Service is the central business logic layer behind the HTTP API. Owner
// operations and public reads live here; every reservation and
// contribution goes through Claims.
type Service struct {
	logger    *logrus.Logger
	users     repository.UserRepository
	wishlists repository.WishlistRepository
	publisher live.Publisher
	tokens    *auth.JWTManager
	passwords *auth.PasswordHasher

	Claims *claim.Service
}

// New creates a new Service with all required dependencies.
func New(logger *logrus.Logger,
	users repository.UserRepository,
	wishlists repository.WishlistRepository,
	claims *claim.Service,
	publisher live.Publisher,
	tokens *auth.JWTManager,
	passwords *auth.PasswordHasher,
) *Service {
	return &Service{
		logger:    logger,
		users:     users,
		wishlists: wishlists,
		publisher: publisher,
		tokens:    tokens,
		passwords: passwords,
		Claims:    claims,
	}
}

// ValidateToken resolves a bearer token to a user id.
func (s *Service) ValidateToken(token string) (int64, error) {
	return s.tokens.Validate(token)
}
