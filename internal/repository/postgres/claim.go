package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/giftlist/internal/models"
	"github.com/Kerhoff/giftlist/internal/repository"
)

type claimRepository struct {
	db *sql.DB
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sql.DB) repository.ClaimRepository {
	return &claimRepository{db: db}
}

const targetQuery = `
	SELECT i.id, i.wishlist_id, i.title, i.url, i.image_url, i.price, i.currency, i.notes,
		i.allow_group_funding, i.target_amount, i.min_contribution, i.created_at, i.updated_at,
		w.share_slug, w.is_public
	FROM wishlist_items i
	JOIN wishlists w ON w.id = i.wishlist_id
	WHERE i.id = $1`

func (r *claimRepository) GetTarget(ctx context.Context, itemID int64) (*models.ClaimTarget, error) {
	return r.target(ctx, targetQuery, itemID)
}

// LockTarget must run inside a transaction; the lock on the item row is what
// serializes concurrent reservations of the same gift across app instances.
func (r *claimRepository) LockTarget(ctx context.Context, itemID int64) (*models.ClaimTarget, error) {
	return r.target(ctx, targetQuery+` FOR UPDATE OF i`, itemID)
}

func (r *claimRepository) target(ctx context.Context, query string, itemID int64) (*models.ClaimTarget, error) {
	item := &models.WishlistItem{}
	t := &models.ClaimTarget{Item: item}

	err := querierFromCtx(ctx, r.db).QueryRowContext(ctx, query, itemID).Scan(
		&item.ID,
		&item.WishlistID,
		&item.Title,
		&item.URL,
		&item.ImageURL,
		&item.Price,
		&item.Currency,
		&item.Notes,
		&item.AllowGroupFunding,
		&item.TargetAmount,
		&item.MinContribution,
		&item.CreatedAt,
		&item.UpdatedAt,
		&t.ListSlug,
		&t.ListPublic,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load item %d: %w", itemID, mapError(err))
	}

	return t, nil
}

func (r *claimRepository) CountReservations(ctx context.Context, itemID int64) (int, error) {
	var n int
	err := querierFromCtx(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE item_id = $1`, itemID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count reservations for item %d: %w", itemID, mapError(err))
	}
	return n, nil
}

func (r *claimRepository) CreateReservation(ctx context.Context, res *models.Reservation) (*models.Reservation, error) {
	query := `
		INSERT INTO reservations (item_id, user_id, guest_name, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	res.CreatedAt = time.Now().UTC()

	err := querierFromCtx(ctx, r.db).QueryRowContext(ctx, query,
		res.ItemID,
		res.UserID,
		res.GuestName,
		res.Message,
		res.CreatedAt,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create reservation: %w", mapError(err))
	}

	return res, nil
}

func (r *claimRepository) CreateContribution(ctx context.Context, c *models.Contribution) (*models.Contribution, error) {
	query := `
		INSERT INTO contributions (item_id, user_id, guest_name, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	c.CreatedAt = time.Now().UTC()

	err := querierFromCtx(ctx, r.db).QueryRowContext(ctx, query,
		c.ItemID,
		c.UserID,
		c.GuestName,
		c.Amount,
		c.Currency,
		c.CreatedAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create contribution: %w", mapError(err))
	}

	return c, nil
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	res := &models.Reservation{}
	err := row.Scan(
		&res.ID,
		&res.ItemID,
		&res.UserID,
		&res.GuestName,
		&res.Message,
		&res.CreatedAt,
	)
	return res, err
}

func scanContribution(row rowScanner) (*models.Contribution, error) {
	c := &models.Contribution{}
	err := row.Scan(
		&c.ID,
		&c.ItemID,
		&c.UserID,
		&c.GuestName,
		&c.Amount,
		&c.Currency,
		&c.CreatedAt,
	)
	return c, err
}
