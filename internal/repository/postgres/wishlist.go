package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Kerhoff/giftlist/internal/models"
	"github.com/Kerhoff/giftlist/internal/repository"
)

const (
	listColumns = `id, owner_id, title, description, occasion, event_date, is_public, share_slug, created_at, updated_at`
	itemColumns = `id, wishlist_id, title, url, image_url, price, currency, notes,
		allow_group_funding, target_amount, min_contribution, created_at, updated_at`
)

type wishlistRepository struct {
	db *sql.DB
}

// NewWishlistRepository creates a new wishlist repository
func NewWishlistRepository(db *sql.DB) repository.WishlistRepository {
	return &wishlistRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanList(row rowScanner) (*models.Wishlist, error) {
	list := &models.Wishlist{}
	err := row.Scan(
		&list.ID,
		&list.OwnerID,
		&list.Title,
		&list.Description,
		&list.Occasion,
		&list.EventDate,
		&list.IsPublic,
		&list.ShareSlug,
		&list.CreatedAt,
		&list.UpdatedAt,
	)
	return list, err
}

func scanItem(row rowScanner) (*models.WishlistItem, error) {
	item := &models.WishlistItem{}
	err := row.Scan(
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
	)
	return item, err
}

func (r *wishlistRepository) CreateList(ctx context.Context, list *models.Wishlist) (*models.Wishlist, error) {
	query := `
		INSERT INTO wishlists (owner_id, title, description, occasion, event_date, is_public, share_slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	now := time.Now().UTC()
	list.CreatedAt = now
	list.UpdatedAt = now

	err := querierFromCtx(ctx, r.db).QueryRowContext(ctx, query,
		list.OwnerID,
		list.Title,
		list.Description,
		list.Occasion,
		list.EventDate,
		list.IsPublic,
		list.ShareSlug,
		list.CreatedAt,
		list.UpdatedAt,
	).Scan(&list.ID, &list.CreatedAt, &list.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create wishlist: %w", mapError(err))
	}

	return list, nil
}

func (r *wishlistRepository) GetListByID(ctx context.Context, id int64) (*models.Wishlist, error) {
	query := `SELECT ` + listColumns + ` FROM wishlists WHERE id = $1`

	list, err := scanList(querierFromCtx(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist %d: %w", id, mapError(err))
	}
	return list, nil
}

func (r *wishlistRepository) GetListBySlug(ctx context.Context, slug string) (*models.Wishlist, error) {
	query := `SELECT ` + listColumns + ` FROM wishlists WHERE share_slug = $1`

	list, err := scanList(querierFromCtx(ctx, r.db).QueryRowContext(ctx, query, slug))
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist by slug: %w", mapError(err))
	}
	return list, nil
}

func (r *wishlistRepository) GetListsByOwner(ctx context.Context, ownerID int64) ([]*models.Wishlist, error) {
	query := `SELECT ` + listColumns + ` FROM wishlists WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := querierFromCtx(ctx, r.db).QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlists by owner: %w", mapError(err))
	}
	defer rows.Close()

	var lists []*models.Wishlist
	for rows.Next() {
		list, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wishlist: %w", err)
		}
		lists = append(lists, list)
	}

	return lists, mapError(rows.Err())
}

func (r *wishlistRepository) UpdateList(ctx context.Context, list *models.Wishlist) (*models.Wishlist, error) {
	query := `
		UPDATE wishlists
		SET title = $2, description = $3, occasion = $4, event_date = $5, is_public = $6, updated_at = $7
		WHERE id = $1
		RETURNING updated_at`

	list.UpdatedAt = time.Now().UTC()

	err := querierFromCtx(ctx, r.db).QueryRowContext(ctx, query,
		list.ID,
		list.Title,
		list.Description,
		list.Occasion,
		list.EventDate,
		list.IsPublic,
		list.UpdatedAt,
	).Scan(&list.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update wishlist %d: %w", list.ID, mapError(err))
	}

	return list, nil
}

func (r *wishlistRepository) AddItem(ctx context.Context, item *models.WishlistItem) (*models.WishlistItem, error) {
	query := `
		INSERT INTO wishlist_items (wishlist_id, title, url, image_url, price, currency, notes,
			allow_group_funding, target_amount, min_contribution, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	err := querierFromCtx(ctx, r.db).QueryRowContext(ctx, query,
		item.WishlistID,
		item.Title,
		item.URL,
		item.ImageURL,
		item.Price,
		item.Currency,
		item.Notes,
		item.AllowGroupFunding,
		item.TargetAmount,
		item.MinContribution,
		item.CreatedAt,
		item.UpdatedAt,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to add wishlist item: %w", mapError(err))
	}

	return item, nil
}

func (r *wishlistRepository) GetItem(ctx context.Context, id int64) (*models.WishlistItem, error) {
	query := `SELECT ` + itemColumns + ` FROM wishlist_items WHERE id = $1`

	item, err := scanItem(querierFromCtx(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist item %d: %w", id, mapError(err))
	}
	return item, nil
}

func (r *wishlistRepository) GetItems(ctx context.Context, listIDs ...int64) ([]*models.WishlistItem, error) {
	if len(listIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + itemColumns + `
		FROM wishlist_items
		WHERE wishlist_id = ANY($1)
		ORDER BY id ASC`

	rows, err := querierFromCtx(ctx, r.db).QueryContext(ctx, query, pq.Array(listIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlist items: %w", mapError(err))
	}
	defer rows.Close()

	var items []*models.WishlistItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wishlist item: %w", err)
		}
		items = append(items, item)
	}

	return items, mapError(rows.Err())
}

func (r *wishlistRepository) UpdateItem(ctx context.Context, item *models.WishlistItem) (*models.WishlistItem, error) {
	query := `
		UPDATE wishlist_items
		SET title = $2, url = $3, image_url = $4, price = $5, currency = $6, notes = $7,
			allow_group_funding = $8, target_amount = $9, min_contribution = $10, updated_at = $11
		WHERE id = $1
		RETURNING updated_at`

	item.UpdatedAt = time.Now().UTC()

	err := querierFromCtx(ctx, r.db).QueryRowContext(ctx, query,
		item.ID,
		item.Title,
		item.URL,
		item.ImageURL,
		item.Price,
		item.Currency,
		item.Notes,
		item.AllowGroupFunding,
		item.TargetAmount,
		item.MinContribution,
		item.UpdatedAt,
	).Scan(&item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update wishlist item %d: %w", item.ID, mapError(err))
	}

	return item, nil
}

func (r *wishlistRepository) GetClaims(ctx context.Context, itemIDs []int64) (map[int64]*models.ItemClaims, error) {
	claims := make(map[int64]*models.ItemClaims, len(itemIDs))
	if len(itemIDs) == 0 {
		return claims, nil
	}
	for _, id := range itemIDs {
		claims[id] = &models.ItemClaims{}
	}

	q := querierFromCtx(ctx, r.db)

	rows, err := q.QueryContext(ctx, `
		SELECT id, item_id, user_id, guest_name, message, created_at
		FROM reservations
		WHERE item_id = ANY($1)
		ORDER BY id ASC`, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", mapError(err))
	}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		claims[res.ItemID].Reservations = append(claims[res.ItemID].Reservations, res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT id, item_id, user_id, guest_name, amount, currency, created_at
		FROM contributions
		WHERE item_id = ANY($1)
		ORDER BY id ASC`, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions: %w", mapError(err))
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		claims[c.ItemID].Contributions = append(claims[c.ItemID].Contributions, c)
	}

	return claims, mapError(rows.Err())
}
