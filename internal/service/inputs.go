package service

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/Kerhoff/giftlist/internal/models"
)

// Column limits, counted in characters like VARCHAR.
const (
	maxTextLength = 255
	maxURLLength  = 1024
)

func tooLong(s string, limit int) bool {
	return utf8.RuneCountInString(s) > limit
}

// ListInput holds the owner-editable fields of a wishlist.
type ListInput struct {
	Title       string
	Description string
	Occasion    string
	EventDate   *time.Time
	// IsPublic defaults to true when nil.
	IsPublic *bool
}

// ListPatch changes the non-nil fields of a wishlist. The share slug can
// not be changed.
type ListPatch struct {
	Title       *string
	Description *string
	Occasion    *string
	EventDate   *time.Time
	ClearDate   bool
	IsPublic    *bool
}

func (p ListPatch) merge(list *models.Wishlist) ListInput {
	in := ListInput{
		Title:       list.Title,
		Description: list.Description,
		Occasion:    list.Occasion,
		EventDate:   list.EventDate,
		IsPublic:    &list.IsPublic,
	}
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Occasion != nil {
		in.Occasion = *p.Occasion
	}
	if p.EventDate != nil {
		in.EventDate = p.EventDate
	}
	if p.ClearDate {
		in.EventDate = nil
	}
	if p.IsPublic != nil {
		in.IsPublic = p.IsPublic
	}
	return in
}

func (in *ListInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Occasion = strings.TrimSpace(in.Occasion)

	if in.Title == "" {
		return models.NewValidationError("title", "is required")
	}
	if tooLong(in.Title, maxTextLength) {
		return models.NewValidationError("title", "is too long")
	}
	if tooLong(in.Occasion, maxTextLength) {
		return models.NewValidationError("occasion", "is too long")
	}
	return nil
}

// ItemInput holds the owner-editable fields of a wishlist item.
type ItemInput struct {
	Title             string
	URL               string
	ImageURL          string
	Price             *decimal.Decimal
	Currency          string
	Notes             string
	AllowGroupFunding bool
	TargetAmount      *decimal.Decimal
	MinContribution   *decimal.Decimal
}

func (in *ItemInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.URL = strings.TrimSpace(in.URL)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.Notes = strings.TrimSpace(in.Notes)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))

	if in.Title == "" {
		return models.NewValidationError("title", "is required")
	}
	if tooLong(in.Title, maxTextLength) {
		return models.NewValidationError("title", "is too long")
	}
	if in.Currency == "" {
		in.Currency = models.DefaultCurrency
	}
	if !isCurrencyCode(in.Currency) {
		return models.NewValidationError("currency", "must be a three-letter code")
	}
	if err := checkURL("url", in.URL); err != nil {
		return err
	}
	if err := checkURL("image_url", in.ImageURL); err != nil {
		return err
	}

	for _, a := range []struct {
		field string
		value *decimal.Decimal
	}{
		{"price", in.Price},
		{"target_amount", in.TargetAmount},
		{"min_contribution", in.MinContribution},
	} {
		if a.value == nil {
			continue
		}
		if a.value.IsNegative() {
			return models.NewValidationError(a.field, "must not be negative")
		}
		if err := models.CheckAmount(*a.value); err != nil {
			return models.NewValidationError(a.field, err.Error())
		}
	}

	// A group-funded gift without an explicit target collects its price.
	if in.AllowGroupFunding && in.TargetAmount == nil && in.Price != nil {
		target := *in.Price
		in.TargetAmount = &target
	}
	return nil
}

// ItemPatch changes the non-nil fields of an item. Claim records are never
// touched by an item update.
type ItemPatch struct {
	Title             *string
	URL               *string
	ImageURL          *string
	Price             *decimal.Decimal
	Currency          *string
	Notes             *string
	AllowGroupFunding *bool
	TargetAmount      *decimal.Decimal
	MinContribution   *decimal.Decimal
}

func (p ItemPatch) merge(item *models.WishlistItem) ItemInput {
	in := ItemInput{
		Title:             item.Title,
		URL:               item.URL,
		ImageURL:          item.ImageURL,
		Price:             item.Price,
		Currency:          item.Currency,
		Notes:             item.Notes,
		AllowGroupFunding: item.AllowGroupFunding,
		TargetAmount:      item.TargetAmount,
		MinContribution:   item.MinContribution,
	}
	setString(&in.Title, p.Title)
	setString(&in.URL, p.URL)
	setString(&in.ImageURL, p.ImageURL)
	setString(&in.Currency, p.Currency)
	setString(&in.Notes, p.Notes)
	if p.Price != nil {
		in.Price = p.Price
	}
	if p.AllowGroupFunding != nil {
		in.AllowGroupFunding = *p.AllowGroupFunding
	}
	if p.TargetAmount != nil {
		in.TargetAmount = p.TargetAmount
	}
	if p.MinContribution != nil {
		in.MinContribution = p.MinContribution
	}
	return in
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (in *ItemInput) apply(item *models.WishlistItem) {
	item.Title = in.Title
	item.URL = in.URL
	item.ImageURL = in.ImageURL
	item.Price = in.Price
	item.Currency = in.Currency
	item.Notes = in.Notes
	item.AllowGroupFunding = in.AllowGroupFunding
	item.TargetAmount = in.TargetAmount
	item.MinContribution = in.MinContribution
}

func checkURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	if tooLong(raw, maxURLLength) {
		return models.NewValidationError(field, "is too long")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.NewValidationError(field, "must be an http(s) URL")
	}
	return nil
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
