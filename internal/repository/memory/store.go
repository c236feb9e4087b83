// Package memory implements the record store in process memory. It is used
// for single-instance deployments (STORE_DRIVER=memory) and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Kerhoff/giftlist/internal/models"
	"github.com/Kerhoff/giftlist/internal/repository"
)

type txKey struct{}

// Store holds every record behind a single mutex. RunInTx keeps the mutex
// for the whole callback, so transactions are fully serialized. There is no
// rollback: callbacks must validate before they write.
type Store struct {
	mu sync.Mutex

	nextID        int64
	users         map[int64]*models.User
	lists         map[int64]*models.Wishlist
	items         map[int64]*models.WishlistItem
	reservations  map[int64][]*models.Reservation
	contributions map[int64][]*models.Contribution
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:         make(map[int64]*models.User),
		lists:         make(map[int64]*models.Wishlist),
		items:         make(map[int64]*models.WishlistItem),
		reservations:  make(map[int64][]*models.Reservation),
		contributions: make(map[int64][]*models.Contribution),
	}
}

// Users returns the user repository backed by this store.
func (s *Store) Users() repository.UserRepository { return userRepository{s} }

// Wishlists returns the wishlist repository backed by this store.
func (s *Store) Wishlists() repository.WishlistRepository { return wishlistRepository{s} }

// Claims returns the claim repository backed by this store.
func (s *Store) Claims() repository.ClaimRepository { return claimRepository{s} }

// RunInTx implements repository.TxManager.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, s))
}

// lock acquires the store mutex unless ctx already runs inside RunInTx.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func notFound(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, models.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type userRepository struct{ s *Store }

func (r userRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	defer r.s.lock(ctx)()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return nil, fmt.Errorf("user %s: %w", user.Email, models.ErrAlreadyExists)
		}
	}

	u := *user
	u.ID = r.s.id()
	u.CreatedAt = time.Now().UTC()
	r.s.users[u.ID] = &u

	out := u
	return &out, nil
}

func (r userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	out := *u
	return &out, nil
}

func (r userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.s.lock(ctx)()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, notFound("user", email)
}

// ---------------------------------------------------------------------------
// Wishlists and items
// ---------------------------------------------------------------------------

type wishlistRepository struct{ s *Store }

func (r wishlistRepository) CreateList(ctx context.Context, list *models.Wishlist) (*models.Wishlist, error) {
	defer r.s.lock(ctx)()

	for _, l := range r.s.lists {
		if l.ShareSlug == list.ShareSlug {
			return nil, fmt.Errorf("wishlist slug %s: %w", list.ShareSlug, models.ErrAlreadyExists)
		}
	}
	if _, ok := r.s.users[list.OwnerID]; !ok {
		return nil, notFound("user", list.OwnerID)
	}

	l := *list
	l.ID = r.s.id()
	l.CreatedAt = time.Now().UTC()
	l.UpdatedAt = l.CreatedAt
	r.s.lists[l.ID] = &l

	out := l
	return &out, nil
}

func (r wishlistRepository) GetListByID(ctx context.Context, id int64) (*models.Wishlist, error) {
	defer r.s.lock(ctx)()

	l, ok := r.s.lists[id]
	if !ok {
		return nil, notFound("wishlist", id)
	}
	out := *l
	return &out, nil
}

func (r wishlistRepository) GetListBySlug(ctx context.Context, slug string) (*models.Wishlist, error) {
	defer r.s.lock(ctx)()

	for _, l := range r.s.lists {
		if l.ShareSlug == slug {
			out := *l
			return &out, nil
		}
	}
	return nil, notFound("wishlist", slug)
}

func (r wishlistRepository) GetListsByOwner(ctx context.Context, ownerID int64) ([]*models.Wishlist, error) {
	defer r.s.lock(ctx)()

	var lists []*models.Wishlist
	for _, l := range r.s.lists {
		if l.OwnerID == ownerID {
			out := *l
			lists = append(lists, &out)
		}
	}
	// newest first, like the postgres store
	sort.Slice(lists, func(i, j int) bool { return lists[i].ID > lists[j].ID })
	return lists, nil
}

func (r wishlistRepository) UpdateList(ctx context.Context, list *models.Wishlist) (*models.Wishlist, error) {
	defer r.s.lock(ctx)()

	l, ok := r.s.lists[list.ID]
	if !ok {
		return nil, notFound("wishlist", list.ID)
	}
	l.Title = list.Title
	l.Description = list.Description
	l.Occasion = list.Occasion
	l.EventDate = list.EventDate
	l.IsPublic = list.IsPublic
	l.UpdatedAt = time.Now().UTC()

	out := *l
	return &out, nil
}

func (r wishlistRepository) AddItem(ctx context.Context, item *models.WishlistItem) (*models.WishlistItem, error) {
	defer r.s.lock(ctx)()

	if _, ok := r.s.lists[item.WishlistID]; !ok {
		return nil, notFound("wishlist", item.WishlistID)
	}

	it := *item
	it.ID = r.s.id()
	it.CreatedAt = time.Now().UTC()
	it.UpdatedAt = it.CreatedAt
	r.s.items[it.ID] = &it

	out := it
	return &out, nil
}

func (r wishlistRepository) GetItem(ctx context.Context, id int64) (*models.WishlistItem, error) {
	defer r.s.lock(ctx)()

	it, ok := r.s.items[id]
	if !ok {
		return nil, notFound("wishlist item", id)
	}
	out := *it
	return &out, nil
}

func (r wishlistRepository) GetItems(ctx context.Context, listIDs ...int64) ([]*models.WishlistItem, error) {
	defer r.s.lock(ctx)()

	wanted := make(map[int64]bool, len(listIDs))
	for _, id := range listIDs {
		wanted[id] = true
	}

	var items []*models.WishlistItem
	for _, it := range r.s.items {
		if wanted[it.WishlistID] {
			out := *it
			items = append(items, &out)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r wishlistRepository) UpdateItem(ctx context.Context, item *models.WishlistItem) (*models.WishlistItem, error) {
	defer r.s.lock(ctx)()

	it, ok := r.s.items[item.ID]
	if !ok {
		return nil, notFound("wishlist item", item.ID)
	}
	updated := *item
	updated.WishlistID = it.WishlistID
	updated.CreatedAt = it.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	r.s.items[item.ID] = &updated

	out := updated
	return &out, nil
}

func (r wishlistRepository) GetClaims(ctx context.Context, itemIDs []int64) (map[int64]*models.ItemClaims, error) {
	defer r.s.lock(ctx)()

	claims := make(map[int64]*models.ItemClaims, len(itemIDs))
	for _, id := range itemIDs {
		c := &models.ItemClaims{}
		for _, res := range r.s.reservations[id] {
			out := *res
			c.Reservations = append(c.Reservations, &out)
		}
		for _, con := range r.s.contributions[id] {
			out := *con
			c.Contributions = append(c.Contributions, &out)
		}
		claims[id] = c
	}
	return claims, nil
}

// ---------------------------------------------------------------------------
// Claims
// ---------------------------------------------------------------------------

type claimRepository struct{ s *Store }

func (r claimRepository) GetTarget(ctx context.Context, itemID int64) (*models.ClaimTarget, error) {
	defer r.s.lock(ctx)()
	return r.target(itemID)
}

// LockTarget relies on RunInTx holding the store mutex.
func (r claimRepository) LockTarget(ctx context.Context, itemID int64) (*models.ClaimTarget, error) {
	defer r.s.lock(ctx)()
	return r.target(itemID)
}

func (r claimRepository) target(itemID int64) (*models.ClaimTarget, error) {
	it, ok := r.s.items[itemID]
	if !ok {
		return nil, notFound("wishlist item", itemID)
	}
	l, ok := r.s.lists[it.WishlistID]
	if !ok {
		return nil, notFound("wishlist", it.WishlistID)
	}
	item := *it
	return &models.ClaimTarget{Item: &item, ListSlug: l.ShareSlug, ListPublic: l.IsPublic}, nil
}

func (r claimRepository) CountReservations(ctx context.Context, itemID int64) (int, error) {
	defer r.s.lock(ctx)()
	return len(r.s.reservations[itemID]), nil
}

func (r claimRepository) CreateReservation(ctx context.Context, res *models.Reservation) (*models.Reservation, error) {
	defer r.s.lock(ctx)()

	if _, ok := r.s.items[res.ItemID]; !ok {
		return nil, notFound("wishlist item", res.ItemID)
	}

	stored := *res
	stored.ID = r.s.id()
	stored.CreatedAt = time.Now().UTC()
	r.s.reservations[res.ItemID] = append(r.s.reservations[res.ItemID], &stored)

	out := stored
	return &out, nil
}

func (r claimRepository) CreateContribution(ctx context.Context, c *models.Contribution) (*models.Contribution, error) {
	defer r.s.lock(ctx)()

	if _, ok := r.s.items[c.ItemID]; !ok {
		return nil, notFound("wishlist item", c.ItemID)
	}

	stored := *c
	stored.ID = r.s.id()
	stored.CreatedAt = time.Now().UTC()
	r.s.contributions[c.ItemID] = append(r.s.contributions[c.ItemID], &stored)

	out := stored
	return &out, nil
}
