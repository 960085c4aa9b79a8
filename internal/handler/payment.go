package handler

import (
	"net/http"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles deposit endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type depositRequest struct {
	Provider  string          `json:"provider"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	ReturnURL string          `json:"returnUrl"`
}

// CreateDeposit handles POST /payments/deposit.
func (h *PaymentHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req depositRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		RespondError(w, err)
		return
	}
	prov, err := domain.ParseProvider(req.Provider)
	if err != nil {
		RespondError(w, err)
		return
	}

	res, err := h.payments.CreateDeposit(r.Context(), domain.DepositRequest{
		UserID:    p.UserID,
		Provider:  prov,
		Amount:    req.Amount,
		Currency:  req.Currency,
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// GetPaymentHistory handles GET /payments/history.
func (h *PaymentHandler) GetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	filter, err := ParseFilter(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	payments, err := h.payments.ListPayments(r.Context(), p.UserID, filter.Limit, filter.Offset)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, payments)
}

// GetPayment handles GET /payments/{id}.
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid payment id"))
		return
	}

	payment, err := h.payments.GetPayment(r.Context(), p, id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, payment)
}
