package admin

import (
	"net/http"

	"github.com/attaboy/wallet/internal/auth"
	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/handler"
	"github.com/attaboy/wallet/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PaymentAdminHandler handles payment reconciliation and inspection.
type PaymentAdminHandler struct {
	payments *service.PaymentService
}

// NewPaymentAdminHandler creates a new PaymentAdminHandler.
func NewPaymentAdminHandler(payments *service.PaymentService) *PaymentAdminHandler {
	return &PaymentAdminHandler{payments: payments}
}

// Reconcile handles POST /admin/payments/{id}/reconcile.
func (h *PaymentAdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndPaymentID(w, r)
	if !ok {
		return
	}

	res, err := h.payments.Reconcile(r.Context(), actor, id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, res)
}

type paymentDetail struct {
	Payment *domain.PaymentTransaction `json:"payment"`
	Audit   []domain.AuditLog          `json:"audit"`
}

// GetPayment handles GET /admin/payments/{id}, including the audit trail.
func (h *PaymentAdminHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndPaymentID(w, r)
	if !ok {
		return
	}

	p, err := h.payments.GetPayment(r.Context(), actor, id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	audit, err := h.payments.PaymentAudit(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, paymentDetail{Payment: p, Audit: audit})
}

// Sweep handles POST /admin/payments/sweep: queue every stuck confirmed payment now.
func (h *PaymentAdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.payments.SweepUncredited(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]int{"queued": n})
}

func actorAndPaymentID(w http.ResponseWriter, r *http.Request) (auth.Principal, uuid.UUID, bool) {
	actor, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		handler.RespondError(w, domain.ErrUnauthorized("no principal in context"))
		return auth.Principal{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid payment id"))
		return auth.Principal{}, uuid.Nil, false
	}
	return actor, id, true
}
