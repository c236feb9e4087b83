package repository

import (
	"context"

	"github.com/Kerhoff/giftlist/internal/models"
)

// TxManager runs fn inside a store transaction. Repository calls made with
// the context passed to fn join that transaction.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// WishlistRepository defines the interface for list and item metadata.
// Claim records are only read here; they are written by ClaimRepository.
type WishlistRepository interface {
	CreateList(ctx context.Context, list *models.Wishlist) (*models.Wishlist, error)
	GetListByID(ctx context.Context, id int64) (*models.Wishlist, error)
	GetListBySlug(ctx context.Context, slug string) (*models.Wishlist, error)
	GetListsByOwner(ctx context.Context, ownerID int64) ([]*models.Wishlist, error)
	UpdateList(ctx context.Context, list *models.Wishlist) (*models.Wishlist, error)
	AddItem(ctx context.Context, item *models.WishlistItem) (*models.WishlistItem, error)
	GetItem(ctx context.Context, id int64) (*models.WishlistItem, error)
	GetItems(ctx context.Context, listIDs ...int64) ([]*models.WishlistItem, error)
	UpdateItem(ctx context.Context, item *models.WishlistItem) (*models.WishlistItem, error)
	GetClaims(ctx context.Context, itemIDs []int64) (map[int64]*models.ItemClaims, error)
}

// ClaimRepository defines the write path for reservations and contributions.
type ClaimRepository interface {
	// GetTarget loads an item with its list visibility and slug.
	GetTarget(ctx context.Context, itemID int64) (*models.ClaimTarget, error)
	// LockTarget is GetTarget that also holds an exclusive lock on the item
	// until the surrounding transaction ends.
	LockTarget(ctx context.Context, itemID int64) (*models.ClaimTarget, error)
	CountReservations(ctx context.Context, itemID int64) (int, error)
	CreateReservation(ctx context.Context, r *models.Reservation) (*models.Reservation, error)
	CreateContribution(ctx context.Context, c *models.Contribution) (*models.Contribution, error)
}
