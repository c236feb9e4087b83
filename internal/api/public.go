package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kerhoff/giftlist/internal/claim"
	"github.com/Kerhoff/giftlist/pkg/ctxutil"
)

type reserveRequest struct {
	GuestName string `json:"guest_name"`
	Message   string `json:"message"`
}

type contributeRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	GuestName string          `json:"guest_name"`
}

// claimResponse confirms a claim without echoing who made it.
type claimResponse struct {
	ID        int64            `json:"id"`
	ItemID    int64            `json:"item_id"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Currency  string           `json:"currency,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func (s *Server) handleGetPublicList(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.GetPublicList(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "bad_request", "invalid item id")
		return
	}

	var req reserveRequest
	if r.ContentLength != 0 {
		if ok, msg := s.decodeJSON(w, r, &req); !ok {
			s.respondError(w, http.StatusBadRequest, "bad_request", msg)
			return
		}
	}

	res, err := s.svc.Claims.Reserve(r.Context(), claim.ReserveInput{
		ItemID:    id,
		GuestName: req.GuestName,
		Message:   req.Message,
		CallerID:  callerID(r),
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, claimResponse{
		ID:        res.ID,
		ItemID:    res.ItemID,
		CreatedAt: res.CreatedAt,
	})
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "bad_request", "invalid item id")
		return
	}

	var req contributeRequest
	if ok, msg := s.decodeJSON(w, r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	c, err := s.svc.Claims.Contribute(r.Context(), claim.ContributeInput{
		ItemID:    id,
		Amount:    req.Amount,
		GuestName: req.GuestName,
		CallerID:  callerID(r),
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, claimResponse{
		ID:        c.ID,
		ItemID:    c.ItemID,
		Amount:    &c.Amount,
		Currency:  c.Currency,
		CreatedAt: c.CreatedAt,
	})
}

func callerID(r *http.Request) *int64 {
	id, ok := ctxutil.UserIDFromCtx(r.Context())
	if !ok {
		return nil
	}
	return &id
}
