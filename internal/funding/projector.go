// Package funding derives the public reservation and funding status of gifts
// from their raw claim records. Every function here is pure.
//
// The views never carry who reserved or contributed, nor individual
// contribution amounts: list owners must not learn who bought what, and
// guests only need the aggregate.
package funding

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kerhoff/giftlist/internal/models"
)

// ItemInfo is the item metadata shared by every view.
type ItemInfo struct {
	ID                int64            `json:"id"`
	Title             string           `json:"title"`
	URL               string           `json:"url,omitempty"`
	ImageURL          string           `json:"image_url,omitempty"`
	Price             *decimal.Decimal `json:"price"`
	Currency          string           `json:"currency"`
	Notes             string           `json:"notes,omitempty"`
	AllowGroupFunding bool             `json:"allow_group_funding"`
	TargetAmount      *decimal.Decimal `json:"target_amount"`
	MinContribution   *decimal.Decimal `json:"min_contribution"`
	CreatedAt         time.Time        `json:"created_at"`
}

// PublicItem is an item as shown on the shared page.
type PublicItem struct {
	ItemInfo
	TotalContributed decimal.Decimal `json:"total_contributed"`
	IsFullyFunded    bool            `json:"is_fully_funded"`
	Reserved         bool            `json:"reserved"`
}

// OwnerItem is an item as shown on the owner's dashboard.
type OwnerItem struct {
	ItemInfo
	TotalContributed decimal.Decimal `json:"total_contributed"`
	IsFullyFunded    bool            `json:"is_fully_funded"`
	ReservedCount    int             `json:"reserved_count"`
}

// Status is the derived claim state of one item.
type Status struct {
	TotalContributed decimal.Decimal
	Reserved         bool
	ReservedCount    int
	IsFullyFunded    bool
}

// Compute derives the status of item from its claims.
func Compute(item *models.WishlistItem, reservations []*models.Reservation, contributions []*models.Contribution) Status {
	total := decimal.Zero
	for _, c := range contributions {
		total = total.Add(c.Amount)
	}

	st := Status{
		TotalContributed: total,
		ReservedCount:    len(reservations),
		Reserved:         len(reservations) > 0,
	}

	if item.HasTarget() {
		st.IsFullyFunded = total.GreaterThanOrEqual(*item.TargetAmount)
	} else {
		st.IsFullyFunded = st.Reserved
	}
	return st
}

// Project builds the public view of an item.
func Project(item *models.WishlistItem, reservations []*models.Reservation, contributions []*models.Contribution) PublicItem {
	st := Compute(item, reservations, contributions)
	return PublicItem{
		ItemInfo:         info(item),
		TotalContributed: st.TotalContributed,
		IsFullyFunded:    st.IsFullyFunded,
		Reserved:         st.Reserved,
	}
}

// ProjectOwner builds the owner's view of an item: aggregates only.
func ProjectOwner(item *models.WishlistItem, reservations []*models.Reservation, contributions []*models.Contribution) OwnerItem {
	st := Compute(item, reservations, contributions)
	return OwnerItem{
		ItemInfo:         info(item),
		TotalContributed: st.TotalContributed,
		IsFullyFunded:    st.IsFullyFunded,
		ReservedCount:    st.ReservedCount,
	}
}

func info(item *models.WishlistItem) ItemInfo {
	return ItemInfo{
		ID:                item.ID,
		Title:             item.Title,
		URL:               item.URL,
		ImageURL:          item.ImageURL,
		Price:             item.Price,
		Currency:          item.Currency,
		Notes:             item.Notes,
		AllowGroupFunding: item.AllowGroupFunding,
		TargetAmount:      item.TargetAmount,
		MinContribution:   item.MinContribution,
		CreatedAt:         item.CreatedAt,
	}
}
