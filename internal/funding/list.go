package funding

import (
	"time"

	"github.com/Kerhoff/giftlist/internal/models"
)

// PublicList is the shared page of a wishlist.
type PublicList struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Occasion    string       `json:"occasion,omitempty"`
	EventDate   *time.Time   `json:"event_date"`
	CreatedAt   time.Time    `json:"created_at"`
	OwnerName   string       `json:"owner_name"`
	ShareSlug   string       `json:"share_slug"`
	Items       []PublicItem `json:"items"`
}

// OwnerList is one wishlist on the owner's dashboard.
type OwnerList struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Occasion    string      `json:"occasion,omitempty"`
	EventDate   *time.Time  `json:"event_date"`
	IsPublic    bool        `json:"is_public"`
	ShareSlug   string      `json:"share_slug"`
	CreatedAt   time.Time   `json:"created_at"`
	Items       []OwnerItem `json:"items"`
}

func claimsOf(claims map[int64]*models.ItemClaims, itemID int64) ([]*models.Reservation, []*models.Contribution) {
	c, ok := claims[itemID]
	if !ok || c == nil {
		return nil, nil
	}
	return c.Reservations, c.Contributions
}

// ProjectList builds the public page. items must belong to list and are
// rendered in the given order.
func ProjectList(list *models.Wishlist, ownerName string, items []*models.WishlistItem, claims map[int64]*models.ItemClaims) PublicList {
	out := PublicList{
		ID:          list.ID,
		Title:       list.Title,
		Description: list.Description,
		Occasion:    list.Occasion,
		EventDate:   list.EventDate,
		CreatedAt:   list.CreatedAt,
		OwnerName:   ownerName,
		ShareSlug:   list.ShareSlug,
		Items:       make([]PublicItem, 0, len(items)),
	}
	for _, item := range items {
		res, con := claimsOf(claims, item.ID)
		out.Items = append(out.Items, Project(item, res, con))
	}
	return out
}

// ProjectOwnerList builds the dashboard entry of a list.
func ProjectOwnerList(list *models.Wishlist, items []*models.WishlistItem, claims map[int64]*models.ItemClaims) OwnerList {
	out := OwnerList{
		ID:          list.ID,
		Title:       list.Title,
		Description: list.Description,
		Occasion:    list.Occasion,
		EventDate:   list.EventDate,
		IsPublic:    list.IsPublic,
		ShareSlug:   list.ShareSlug,
		CreatedAt:   list.CreatedAt,
		Items:       make([]OwnerItem, 0, len(items)),
	}
	for _, item := range items {
		res, con := claimsOf(claims, item.ID)
		out.Items = append(out.Items, ProjectOwner(item, res, con))
	}
	return out
}
