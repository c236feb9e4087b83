// Package claim is the only writer of reservations and contributions. It
// enforces the claim rules against the store:
//
//   - an item without group funding has at most one reservation, even under
//     concurrent requests from different app instances;
//   - contributions are only accepted for group-funded items, must be
//     positive and must reach the item's minimum.
//
// Rule violations are permanent for the given input. Store unavailability
// is reported as models.ErrTransient and is the only retryable failure.
// Nothing is retried here.
package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftlist/internal/live"
	"github.com/Kerhoff/giftlist/internal/models"
	"github.com/Kerhoff/giftlist/internal/repository"
)

const defaultWriteTimeout = 10 * time.Second

// Config selects the claim policy variant.
type Config struct {
	// AllowAuthenticatedIdentityOnReserve stores the caller's account id
	// instead of the free-text guest name when the caller is signed in.
	AllowAuthenticatedIdentityOnReserve bool
	// WriteTimeout bounds a claim once it reached the store. Claims ignore
	// cancellation of the request context.
	WriteTimeout time.Duration
}

// Recorder counts claim attempts by kind and outcome.
type Recorder interface {
	ClaimRecorded(kind, outcome string)
}

// Service creates reservations and contributions.
type Service struct {
	tx        repository.TxManager
	claims    repository.ClaimRepository
	publisher live.Publisher
	logger    *logrus.Logger
	cfg       Config
	recorder  Recorder
}

// New creates a claim service. recorder may be nil.
func New(tx repository.TxManager, claims repository.ClaimRepository, publisher live.Publisher,
	logger *logrus.Logger, cfg Config, recorder Recorder,
) *Service {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Service{
		tx:        tx,
		claims:    claims,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		recorder:  recorder,
	}
}

// ReserveInput is a request to reserve a whole gift.
type ReserveInput struct {
	ItemID    int64
	GuestName string
	Message   string
	CallerID  *int64
}

// ContributeInput is a pledge towards a group-funded gift.
type ContributeInput struct {
	ItemID    int64
	Amount    decimal.Decimal
	GuestName string
	CallerID  *int64
}

// Reserve records a reservation. It fails with models.ErrNotFound when the
// item does not exist or its list is private, and with
// models.ErrAlreadyClaimed when a non-group item is already reserved.
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (*models.Reservation, error) {
	ctx, cancel := s.writeContext(ctx)
	defer cancel()

	res := &models.Reservation{
		ItemID:  in.ItemID,
		Message: cleanText(in.Message, maxMessageLength),
	}
	res.UserID, res.GuestName = s.identity(in.CallerID, in.GuestName)

	var (
		created *models.Reservation
		topic   string
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		target, err := s.claims.LockTarget(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if !target.ListPublic {
			return fmt.Errorf("item %d: %w", in.ItemID, models.ErrNotFound)
		}

		if !target.Item.AllowGroupFunding {
			n, err := s.claims.CountReservations(ctx, in.ItemID)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("item %d: %w", in.ItemID, models.ErrAlreadyClaimed)
			}
		}

		created, err = s.claims.CreateReservation(ctx, res)
		if err != nil {
			return err
		}
		topic = target.ListSlug
		return nil
	})
	if err != nil {
		return nil, s.fail("reserve", in.ItemID, err)
	}

	s.succeed("reserve", in.ItemID)
	s.publisher.Publish(ctx, live.Event{Kind: live.KindReservationCreated, Topic: topic, ItemID: in.ItemID})
	return created, nil
}

// Contribute records a pledge. Amount checks happen before the store is
// touched. Contributions are append-only and the funded total is always
// derived, so no transaction is needed.
func (s *Service) Contribute(ctx context.Context, in ContributeInput) (*models.Contribution, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, s.fail("contribute", in.ItemID, err)
	}

	ctx, cancel := s.writeContext(ctx)
	defer cancel()

	target, err := s.claims.GetTarget(ctx, in.ItemID)
	if err != nil {
		return nil, s.fail("contribute", in.ItemID, err)
	}

	item := target.Item
	switch {
	case !target.ListPublic:
		return nil, s.fail("contribute", in.ItemID, fmt.Errorf("item %d: %w", in.ItemID, models.ErrNotFound))
	case !item.AllowGroupFunding:
		return nil, s.fail("contribute", in.ItemID, fmt.Errorf("item %d: %w", in.ItemID, models.ErrGroupFundingDisabled))
	}
	if minimum := item.Minimum(); minimum != nil && in.Amount.LessThan(*minimum) {
		return nil, s.fail("contribute", in.ItemID,
			fmt.Errorf("minimum is %s %s: %w", minimum.StringFixed(2), item.Currency, models.ErrBelowMinimum))
	}

	c := &models.Contribution{
		ItemID:   in.ItemID,
		Amount:   in.Amount,
		Currency: item.Currency,
	}
	c.UserID, c.GuestName = s.identity(in.CallerID, in.GuestName)

	created, err := s.claims.CreateContribution(ctx, c)
	if err != nil {
		return nil, s.fail("contribute", in.ItemID, err)
	}

	s.succeed("contribute", in.ItemID)
	s.publisher.Publish(ctx, live.Event{Kind: live.KindContributionCreated, Topic: target.ListSlug, ItemID: in.ItemID})
	return created, nil
}

// WithItemLocked runs fn inside a store transaction holding the same item
// lock Reserve takes. fn sees the locked item and its reservation count, so
// changes made by fn cannot interleave with a concurrent reservation.
func (s *Service) WithItemLocked(ctx context.Context, itemID int64,
	fn func(ctx context.Context, item *models.WishlistItem, reservations int) error,
) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		target, err := s.claims.LockTarget(ctx, itemID)
		if err != nil {
			return err
		}
		n, err := s.claims.CountReservations(ctx, itemID)
		if err != nil {
			return err
		}
		return fn(ctx, target.Item, n)
	})
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	if err := models.CheckAmount(amount); err != nil {
		return fmt.Errorf("%v: %w", err, models.ErrInvalidAmount)
	}
	return nil
}

// identity decides which identity fields a claim stores.
func (s *Service) identity(callerID *int64, guestName string) (*int64, *string) {
	if s.cfg.AllowAuthenticatedIdentityOnReserve && callerID != nil {
		id := *callerID
		return &id, nil
	}
	return nil, cleanText(guestName, maxGuestNameLength)
}

// writeContext detaches the claim from request cancellation: once a claim
// reaches the store it runs to completion or fails on its own deadline.
func (s *Service) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
}

func (s *Service) succeed(kind string, itemID int64) {
	s.record(kind, "ok")
	s.logger.WithFields(logrus.Fields{"item_id": itemID, "claim": kind}).Info("claim recorded")
}

func (s *Service) fail(kind string, itemID int64, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", models.ErrTransient, err)
	}

	outcome := Outcome(err)
	s.record(kind, outcome)

	entry := s.logger.WithFields(logrus.Fields{"item_id": itemID, "claim": kind, "outcome": outcome})
	switch outcome {
	case "transient", "error":
		entry.WithError(err).Warn("claim failed")
	default:
		entry.Debug("claim rejected")
	}
	return err
}

func (s *Service) record(kind, outcome string) {
	if s.recorder != nil {
		s.recorder.ClaimRecorded(kind, outcome)
	}
}

// Outcome names the class of a claim error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, models.ErrGroupFundingDisabled):
		return "group_funding_disabled"
	case errors.Is(err, models.ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, models.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, models.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
