package admin

import (
	"net/http"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/handler"
	"github.com/attaboy/wallet/internal/settings"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// SettingsAdminHandler reads and writes wallet limits.
type SettingsAdminHandler struct {
	store  settings.Store
	limits *settings.Limits
}

// NewSettingsAdminHandler creates a new SettingsAdminHandler.
func NewSettingsAdminHandler(store settings.Store, limits *settings.Limits) *SettingsAdminHandler {
	return &SettingsAdminHandler{store: store, limits: limits}
}

var limitKeys = []string{settings.KeyMaxBet, settings.KeyMaxDeposit, settings.KeyMinWithdrawal}

// ListLimits handles GET /admin/settings/limits.
func (h *SettingsAdminHandler) ListLimits(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string, len(limitKeys))
	for _, k := range limitKeys {
		out[k] = h.limits.Decimal(r.Context(), k).StringFixed(2)
	}
	handler.RespondJSON(w, http.StatusOK, out)
}

type setLimitRequest struct {
	Value decimal.Decimal `json:"value"`
}

// SetLimit handles PUT /admin/settings/limits/{key}. Zero disables the limit.
func (h *SettingsAdminHandler) SetLimit(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	known := false
	for _, k := range limitKeys {
		if k == key {
			known = true
		}
	}
	if !known {
		handler.RespondError(w, domain.ErrNotFound("setting", key))
		return
	}

	var req setLimitRequest
	if err := handler.DecodeJSON(w, r, &req); err != nil {
		handler.RespondError(w, err)
		return
	}
	if req.Value.IsNegative() {
		handler.RespondError(w, domain.ErrValidation("limit must not be negative"))
		return
	}
	if err := domain.ValidateMoneyPrecision(req.Value); err != nil {
		handler.RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	if err := h.store.Set(r.Context(), key, req.Value.StringFixed(2)); err != nil {
		handler.RespondError(w, domain.ErrInternal("save setting", err))
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]string{key: req.Value.StringFixed(2)})
}
