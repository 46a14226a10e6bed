package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/auth"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/services/auction"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/services/ledger"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/services/payment"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/services/property"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

type Handler struct {
	ledger     *ledger.Service
	payments   *payment.Service
	auctions   *auction.Service
	properties *property.Service
}

func NewHandler(l *ledger.Service, p *payment.Service, a *auction.Service, props *property.Service) *Handler {
	return &Handler{ledger: l, payments: p, auctions: a, properties: props}
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps the error category to an HTTP status. Domain sentinels wrap
// exactly one category, so errors.Is on the categories is exhaustive.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, pkgerrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		h.writeError(w, fmt.Errorf("%w: url query parameter is required", pkgerrors.ErrValidation))
		return
	}
	prop, err := h.properties.Get(r.Context(), url)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, prop)
}

func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PropertyURL string `json:"property_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", pkgerrors.ErrValidation, err))
		return
	}

	result, err := h.ledger.CreatePurchase(r.Context(), auth.UserID(r.Context()), req.PropertyURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) RetryPurchase(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]
	req, err := h.ledger.RetryPurchase(r.Context(), requestID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	reservations, err := h.ledger.ListReservations(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if reservations == nil {
		reservations = []models.Request{}
	}
	h.writeJSON(w, http.StatusOK, reservations)
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]
	req, err := h.ledger.GetReservation(r.Context(), requestID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// WebpayReturn accepts both the POST form callback and the GET fallback the
// gateway uses when the buyer aborts.
func (h *Handler) WebpayReturn(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token_ws")
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil && r.PostFormValue("token_ws") != "" {
			token = r.PostFormValue("token_ws")
		}
	}
	if token == "" {
		// Aborted flows come back with TBK_TOKEN instead of token_ws.
		token = r.URL.Query().Get("TBK_TOKEN")
	}

	req, err := h.payments.HandleGatewayReturn(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.auctions.ListSchedules(r.Context(), auth.GroupID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if schedules == nil {
		schedules = []models.Schedule{}
	}
	h.writeJSON(w, http.StatusOK, schedules)
}

func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: invalid schedule id", pkgerrors.ErrValidation))
		return
	}

	var req struct {
		DiscountPct *int32                 `json:"discount_pct"`
		Status      *models.ScheduleStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", pkgerrors.ErrValidation, err))
		return
	}

	schedule, err := h.auctions.UpdateSchedule(r.Context(), scheduleID, auth.GroupID(r.Context()), req.DiscountPct, req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, schedule)
}

func (h *Handler) OpenAuction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScheduleID int64 `json:"schedule_id"`
		MinPrice   int64 `json:"min_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", pkgerrors.ErrValidation, err))
		return
	}

	a, err := h.auctions.OpenAuction(r.Context(), req.ScheduleID, auth.GroupID(r.Context()), req.MinPrice)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.auctions.ListAuctions(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if auctions == nil {
		auctions = []models.Auction{}
	}
	h.writeJSON(w, http.StatusOK, auctions)
}

func (h *Handler) Propose(w http.ResponseWriter, r *http.Request) {
	auctionUUID := mux.Vars(r)["auction_uuid"]

	var req struct {
		OfferingScheduleID *int64 `json:"offering_schedule_id"`
		Message            string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", pkgerrors.ErrValidation, err))
		return
	}

	proposal, err := h.auctions.Propose(r.Context(), auctionUUID, auth.GroupID(r.Context()), req.OfferingScheduleID, req.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, proposal)
}

func (h *Handler) ListProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.auctions.ListProposals(r.Context(), mux.Vars(r)["auction_uuid"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if proposals == nil {
		proposals = []models.ExchangeProposal{}
	}
	h.writeJSON(w, http.StatusOK, proposals)
}

func (h *Handler) AcceptProposal(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.auctions.Accept(r.Context(), mux.Vars(r)["proposal_uuid"], auth.GroupID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, proposal)
}

func (h *Handler) RejectProposal(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.auctions.Reject(r.Context(), mux.Vars(r)["proposal_uuid"], auth.GroupID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, proposal)
}
