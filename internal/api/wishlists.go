package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kerhoff/giftlist/internal/service"
	"github.com/Kerhoff/giftlist/pkg/ctxutil"
)

// optionalDate tells an absent field from an explicit null.
type optionalDate struct {
	Set   bool
	Value *time.Time
}

func (d *optionalDate) UnmarshalJSON(b []byte) error {
	d.Set = true
	if string(b) == "null" {
		d.Value = nil
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("event_date must be a string")
	}
	t, err := parseDate(raw)
	if err != nil {
		return err
	}
	d.Value = &t
	return nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("event_date must be YYYY-MM-DD or RFC 3339")
	}
	return t, nil
}

type createListRequest struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Occasion    string       `json:"occasion"`
	EventDate   optionalDate `json:"event_date"`
	IsPublic    *bool        `json:"is_public"`
}

type updateListRequest struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Occasion    *string      `json:"occasion"`
	EventDate   optionalDate `json:"event_date"`
	IsPublic    *bool        `json:"is_public"`
}

type itemRequest struct {
	Title             string           `json:"title"`
	URL               string           `json:"url"`
	ImageURL          string           `json:"image_url"`
	Price             *decimal.Decimal `json:"price"`
	Currency          string           `json:"currency"`
	Notes             string           `json:"notes"`
	AllowGroupFunding bool             `json:"allow_group_funding"`
	TargetAmount      *decimal.Decimal `json:"target_amount"`
	MinContribution   *decimal.Decimal `json:"min_contribution"`
}

type updateItemRequest struct {
	Title             *string          `json:"title"`
	URL               *string          `json:"url"`
	ImageURL          *string          `json:"image_url"`
	Price             *decimal.Decimal `json:"price"`
	Currency          *string          `json:"currency"`
	Notes             *string          `json:"notes"`
	AllowGroupFunding *bool            `json:"allow_group_funding"`
	TargetAmount      *decimal.Decimal `json:"target_amount"`
	MinContribution   *decimal.Decimal `json:"min_contribution"`
}

func (s *Server) handleGetLists(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ctxutil.UserIDFromCtx(r.Context())
	lists, err := s.svc.GetOwnerLists(r.Context(), ownerID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, lists)
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "bad_request", "invalid wishlist id")
		return
	}

	ownerID, _ := ctxutil.UserIDFromCtx(r.Context())
	list, err := s.svc.GetOwnerList(r.Context(), ownerID, id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if ok, msg := s.decodeJSON(w, r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	ownerID, _ := ctxutil.UserIDFromCtx(r.Context())
	list, err := s.svc.CreateList(r.Context(), ownerID, service.ListInput{
		Title:       req.Title,
		Description: req.Description,
		Occasion:    req.Occasion,
		EventDate:   req.EventDate.Value,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, list)
}

func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "bad_request", "invalid wishlist id")
		return
	}

	var req updateListRequest
	if ok, msg := s.decodeJSON(w, r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	ownerID, _ := ctxutil.UserIDFromCtx(r.Context())
	list, err := s.svc.UpdateList(r.Context(), ownerID, id, service.ListPatch{
		Title:       req.Title,
		Description: req.Description,
		Occasion:    req.Occasion,
		EventDate:   req.EventDate.Value,
		ClearDate:   req.EventDate.Set && req.EventDate.Value == nil,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	listID, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "bad_request", "invalid wishlist id")
		return
	}

	var req itemRequest
	if ok, msg := s.decodeJSON(w, r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	ownerID, _ := ctxutil.UserIDFromCtx(r.Context())
	item, err := s.svc.AddItem(r.Context(), ownerID, listID, service.ItemInput{
		Title:             req.Title,
		URL:               req.URL,
		ImageURL:          req.ImageURL,
		Price:             req.Price,
		Currency:          req.Currency,
		Notes:             req.Notes,
		AllowGroupFunding: req.AllowGroupFunding,
		TargetAmount:      req.TargetAmount,
		MinContribution:   req.MinContribution,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "bad_request", "invalid item id")
		return
	}

	var req updateItemRequest
	if ok, msg := s.decodeJSON(w, r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	ownerID, _ := ctxutil.UserIDFromCtx(r.Context())
	item, err := s.svc.UpdateItem(r.Context(), ownerID, id, service.ItemPatch{
		Title:             req.Title,
		URL:               req.URL,
		ImageURL:          req.ImageURL,
		Price:             req.Price,
		Currency:          req.Currency,
		Notes:             req.Notes,
		AllowGroupFunding: req.AllowGroupFunding,
		TargetAmount:      req.TargetAmount,
		MinContribution:   req.MinContribution,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}
