package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/giftlist/internal/models"
)

var targetColumns = []string{
	"id", "wishlist_id", "title", "url", "image_url", "price", "currency", "notes",
	"allow_group_funding", "target_amount", "min_contribution", "created_at", "updated_at",
	"share_slug", "is_public",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestClaimRepository_ReserveInTransaction(t *testing.T) {
	db, mock := newMock(t)
	repo := NewClaimRepository(db)
	txm := NewTxManager(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM wishlist_items i\s+JOIN wishlists w ON w.id = i.wishlist_id\s+WHERE i.id = \$1 FOR UPDATE OF i`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(targetColumns).AddRow(
			5, 2, "Bike", "", "", "15000.00", "RUB", "",
			false, nil, nil, now, now,
			"slug", true,
		))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reservations WHERE item_id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO reservations`).
		WithArgs(int64(5), nil, "Anna", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, now))
	mock.ExpectCommit()

	name := "Anna"
	var created *models.Reservation
	err := txm.RunInTx(context.Background(), func(ctx context.Context) error {
		target, err := repo.LockTarget(ctx, 5)
		if err != nil {
			return err
		}
		assert.Equal(t, "slug", target.ListSlug)
		assert.True(t, target.ListPublic)
		assert.True(t, target.Item.Price.Equal(decimal.NewFromInt(15000)))
		assert.Nil(t, target.Item.TargetAmount)

		n, err := repo.CountReservations(ctx, 5)
		if err != nil {
			return err
		}
		assert.Zero(t, n)

		created, err = repo.CreateReservation(ctx, &models.Reservation{ItemID: 5, GuestName: &name})
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, int64(11), created.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	txm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := txm.RunInTx(context.Background(), func(ctx context.Context) error {
		return models.ErrAlreadyClaimed
	})

	assert.ErrorIs(t, err, models.ErrAlreadyClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_BeginFailureIsTransient(t *testing.T) {
	db, mock := newMock(t)
	txm := NewTxManager(db)

	mock.ExpectBegin().WillReturnError(&pqError57P01)

	err := txm.RunInTx(context.Background(), func(ctx context.Context) error {
		t.Fatal("callback must not run")
		return nil
	})

	assert.ErrorIs(t, err, models.ErrTransient)
}

func TestClaimRepository_GetTargetNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewClaimRepository(db)

	mock.ExpectQuery(`FROM wishlist_items i`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(targetColumns))

	_, err := repo.GetTarget(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepository_CreateContribution(t *testing.T) {
	db, mock := newMock(t)
	repo := NewClaimRepository(db)
	now := time.Now().UTC()
	user := int64(3)

	mock.ExpectQuery(`INSERT INTO contributions`).
		WithArgs(int64(5), &user, nil, decimal.RequireFromString("12.50"), "EUR", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(21, now))

	c, err := repo.CreateContribution(context.Background(), &models.Contribution{
		ItemID:   5,
		UserID:   &user,
		Amount:   decimal.RequireFromString("12.50"),
		Currency: "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(21), c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepository_CheckViolation(t *testing.T) {
	db, mock := newMock(t)
	repo := NewClaimRepository(db)

	mock.ExpectQuery(`INSERT INTO contributions`).
		WillReturnError(&pqError23514)

	_, err := repo.CreateContribution(context.Background(), &models.Contribution{ItemID: 5, Amount: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.False(t, errors.Is(err, models.ErrTransient))
}
