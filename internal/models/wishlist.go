package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used for items created without an explicit currency.
const DefaultCurrency = "RUB"

// MaxAmount is the largest value a NUMERIC(12,2) column can hold.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// CheckAmount reports whether amount can be stored without rounding: at most
// two decimal places and no larger than MaxAmount in absolute value.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(2)) {
		return errors.New("at most two decimal places")
	}
	if amount.Abs().GreaterThan(MaxAmount) {
		return errors.New("amount too large")
	}
	return nil
}

// Wishlist represents a gift list owned by a single user and shared through
// its public slug.
type Wishlist struct {
	ID          int64      `json:"id" db:"id"`
	OwnerID     int64      `json:"owner_id" db:"owner_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	Occasion    string     `json:"occasion" db:"occasion"`
	EventDate   *time.Time `json:"event_date" db:"event_date"`
	IsPublic    bool       `json:"is_public" db:"is_public"`
	ShareSlug   string     `json:"share_slug" db:"share_slug"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// WishlistItem represents a gift in a wishlist.
type WishlistItem struct {
	ID                int64            `json:"id" db:"id"`
	WishlistID        int64            `json:"wishlist_id" db:"wishlist_id"`
	Title             string           `json:"title" db:"title"`
	URL               string           `json:"url" db:"url"`
	ImageURL          string           `json:"image_url" db:"image_url"`
	Price             *decimal.Decimal `json:"price" db:"price"`
	Currency          string           `json:"currency" db:"currency"`
	Notes             string           `json:"notes" db:"notes"`
	AllowGroupFunding bool             `json:"allow_group_funding" db:"allow_group_funding"`
	TargetAmount      *decimal.Decimal `json:"target_amount" db:"target_amount"`
	MinContribution   *decimal.Decimal `json:"min_contribution" db:"min_contribution"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// HasTarget reports whether the item is group funded towards a positive
// target. Items without a target fall back to reservation semantics.
func (i *WishlistItem) HasTarget() bool {
	return i.AllowGroupFunding && i.TargetAmount != nil && i.TargetAmount.IsPositive()
}

// Minimum returns the minimum contribution for a group-funded item, or nil
// when any positive amount is accepted.
func (i *WishlistItem) Minimum() *decimal.Decimal {
	if !i.AllowGroupFunding || i.MinContribution == nil || !i.MinContribution.IsPositive() {
		return nil
	}
	return i.MinContribution
}

// Reservation is a pledge to buy a gift. Immutable once created.
type Reservation struct {
	ID        int64     `json:"id" db:"id"`
	ItemID    int64     `json:"item_id" db:"item_id"`
	UserID    *int64    `json:"user_id" db:"user_id"`
	GuestName *string   `json:"guest_name" db:"guest_name"`
	Message   *string   `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Contribution is a pledged amount towards a group-funded gift. The currency
// is copied from the item when the contribution is recorded.
type Contribution struct {
	ID        int64           `json:"id" db:"id"`
	ItemID    int64           `json:"item_id" db:"item_id"`
	UserID    *int64          `json:"user_id" db:"user_id"`
	GuestName *string         `json:"guest_name" db:"guest_name"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Currency  string          `json:"currency" db:"currency"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ItemClaims groups the raw claim records of a single item.
type ItemClaims struct {
	Reservations  []*Reservation
	Contributions []*Contribution
}

// ClaimTarget is an item together with the list attributes the claim rules
// depend on.
type ClaimTarget struct {
	Item       *WishlistItem
	ListSlug   string
	ListPublic bool
}
