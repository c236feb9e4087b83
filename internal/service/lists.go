package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftlist/internal/funding"
	"github.com/Kerhoff/giftlist/internal/live"
	"github.com/Kerhoff/giftlist/internal/models"
)

// CreateList creates a wishlist with a fresh share slug.
func (s *Service) CreateList(ctx context.Context, ownerID int64, in ListInput) (*models.Wishlist, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	for attempt := 1; ; attempt++ {
		slug, err := newShareSlug()
		if err != nil {
			return nil, err
		}

		list, err := s.wishlists.CreateList(ctx, &models.Wishlist{
			OwnerID:     ownerID,
			Title:       in.Title,
			Description: in.Description,
			Occasion:    in.Occasion,
			EventDate:   in.EventDate,
			IsPublic:    isPublic,
			ShareSlug:   slug,
		})
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"list_id":  list.ID,
				"owner_id": ownerID,
			}).Info("Created wishlist")
			return list, nil
		}
		if !errors.Is(err, models.ErrAlreadyExists) || attempt == slugAttempts {
			return nil, fmt.Errorf("failed to create wishlist: %w", err)
		}
		s.logger.WithField("attempt", attempt).Warn("share slug collision, regenerating")
	}
}

// UpdateList changes list metadata and visibility.
func (s *Service) UpdateList(ctx context.Context, ownerID, listID int64, patch ListPatch) (*models.Wishlist, error) {
	list, err := s.ownedList(ctx, ownerID, listID)
	if err != nil {
		return nil, err
	}

	in := patch.merge(list)
	if err := in.normalize(); err != nil {
		return nil, err
	}
	list.Title = in.Title
	list.Description = in.Description
	list.Occasion = in.Occasion
	list.EventDate = in.EventDate
	list.IsPublic = *in.IsPublic

	updated, err := s.wishlists.UpdateList(ctx, list)
	if err != nil {
		return nil, fmt.Errorf("failed to update wishlist: %w", err)
	}
	return updated, nil
}

// AddItem adds a gift to an owned list and notifies the list's viewers.
func (s *Service) AddItem(ctx context.Context, ownerID, listID int64, in ItemInput) (*models.WishlistItem, error) {
	list, err := s.ownedList(ctx, ownerID, listID)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	item := &models.WishlistItem{WishlistID: list.ID}
	in.apply(item)

	created, err := s.wishlists.AddItem(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to add item: %w", err)
	}

	// Private lists have no viewers; their slug topic stays silent.
	if list.IsPublic {
		s.publisher.Publish(ctx, live.Event{
			Kind:   live.KindItemAdded,
			Topic:  list.ShareSlug,
			ItemID: created.ID,
		})
	}
	return created, nil
}

// UpdateItem changes item metadata. Existing reservations and
// contributions are kept as they are, including their currency.
//
// Group funding can only be switched off while the item has at most one
// reservation. The check and the write hold the item lock that reservations
// take, so a concurrent Reserve cannot slip in between.
func (s *Service) UpdateItem(ctx context.Context, ownerID, itemID int64, patch ItemPatch) (*models.WishlistItem, error) {
	item, err := s.wishlists.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedList(ctx, ownerID, item.WishlistID); err != nil {
		return nil, err
	}

	var updated *models.WishlistItem
	err = s.Claims.WithItemLocked(ctx, itemID, func(ctx context.Context, item *models.WishlistItem, reservations int) error {
		in := patch.merge(item)
		if err := in.normalize(); err != nil {
			return err
		}
		if !in.AllowGroupFunding && reservations > 1 {
			return models.NewValidationError("allow_group_funding",
				fmt.Sprintf("item already has %d reservations", reservations))
		}
		in.apply(item)

		res, err := s.wishlists.UpdateItem(ctx, item)
		if err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}
		updated = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetOwnerLists returns the owner's dashboard. Claims are aggregated; who
// reserved or contributed is never included.
func (s *Service) GetOwnerLists(ctx context.Context, ownerID int64) ([]funding.OwnerList, error) {
	lists, err := s.wishlists.GetListsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlists: %w", err)
	}
	if len(lists) == 0 {
		return []funding.OwnerList{}, nil
	}

	listIDs := make([]int64, 0, len(lists))
	for _, l := range lists {
		listIDs = append(listIDs, l.ID)
	}
	items, err := s.wishlists.GetItems(ctx, listIDs...)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	claims, err := s.claimsFor(ctx, items)
	if err != nil {
		return nil, err
	}

	byList := make(map[int64][]*models.WishlistItem, len(lists))
	for _, item := range items {
		byList[item.WishlistID] = append(byList[item.WishlistID], item)
	}

	out := make([]funding.OwnerList, 0, len(lists))
	for _, l := range lists {
		out = append(out, funding.ProjectOwnerList(l, byList[l.ID], claims))
	}
	return out, nil
}

// GetOwnerList returns one of the owner's lists with aggregated claims.
// Lists of other owners fail with models.ErrNotFound.
func (s *Service) GetOwnerList(ctx context.Context, ownerID, listID int64) (*funding.OwnerList, error) {
	list, err := s.ownedList(ctx, ownerID, listID)
	if err != nil {
		return nil, err
	}

	items, err := s.wishlists.GetItems(ctx, list.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	claims, err := s.claimsFor(ctx, items)
	if err != nil {
		return nil, err
	}

	view := funding.ProjectOwnerList(list, items, claims)
	return &view, nil
}

// GetPublicList returns the shared page of a public list. Private and
// unknown slugs both fail with models.ErrNotFound.
func (s *Service) GetPublicList(ctx context.Context, slug string) (*funding.PublicList, error) {
	list, err := s.wishlists.GetListBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !list.IsPublic {
		return nil, fmt.Errorf("wishlist %q: %w", slug, models.ErrNotFound)
	}

	items, err := s.wishlists.GetItems(ctx, list.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	claims, err := s.claimsFor(ctx, items)
	if err != nil {
		return nil, err
	}

	ownerName := models.FallbackDisplayName
	if owner, err := s.users.GetByID(ctx, list.OwnerID); err == nil {
		ownerName = owner.DisplayName()
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to get list owner: %w", err)
	}

	view := funding.ProjectList(list, ownerName, items, claims)
	return &view, nil
}

// ownedList loads a list and hides lists of other owners as not found.
func (s *Service) ownedList(ctx context.Context, ownerID, listID int64) (*models.Wishlist, error) {
	list, err := s.wishlists.GetListByID(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list.OwnerID != ownerID {
		return nil, fmt.Errorf("wishlist %d: %w", listID, models.ErrNotFound)
	}
	return list, nil
}

func (s *Service) claimsFor(ctx context.Context, items []*models.WishlistItem) (map[int64]*models.ItemClaims, error) {
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	claims, err := s.wishlists.GetClaims(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get claims: %w", err)
	}
	return claims, nil
}
