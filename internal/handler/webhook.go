package handler

import (
	"log/slog"
	"net/http"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/service"
	"github.com/go-chi/chi/v5"
)

// SignatureHeader carries the webhook HMAC when it is not part of the body.
const SignatureHeader = "X-Webhook-Signature"

// WebhookHandler handles payment provider callbacks.
type WebhookHandler struct {
	payments *service.PaymentService
	logger   *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(payments *service.PaymentService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{payments: payments, logger: logger}
}

// HandleWebhook handles POST /webhooks/{provider}. The path decides which
// adapter verifies the delivery. Acknowledged deliveries, including
// duplicates, answer 200 so the provider stops retrying.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	prov, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		RespondError(w, err)
		return
	}

	var in domain.WebhookInput
	if err := DecodeJSON(w, r, &in); err != nil {
		RespondError(w, err)
		return
	}
	in.Provider = prov
	if sig := r.Header.Get(SignatureHeader); sig != "" {
		in.Signature = sig
	}

	res, err := h.payments.HandleWebhook(r.Context(), ClientIP(r), in)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}
