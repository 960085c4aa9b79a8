package admin

import (
	"net/http"

	"github.com/attaboy/wallet/internal/auth"
	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/handler"
	"github.com/attaboy/wallet/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// WalletAdminHandler handles manual adjustments and ledger inspection.
type WalletAdminHandler struct {
	wallets *service.WalletService
}

// NewWalletAdminHandler creates a new WalletAdminHandler.
func NewWalletAdminHandler(wallets *service.WalletService) *WalletAdminHandler {
	return &WalletAdminHandler{wallets: wallets}
}

type adjustRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// Adjust handles POST /admin/wallets/{userID}/adjust.
func (h *WalletAdminHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		handler.RespondError(w, domain.ErrUnauthorized("no principal in context"))
		return
	}

	var req adjustRequest
	if err := handler.DecodeJSON(w, r, &req); err != nil {
		handler.RespondError(w, err)
		return
	}

	res, err := h.wallets.Adjustment(r.Context(), actor, chi.URLParam(r, "userID"), req.Amount, req.Reason)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, res)
}

// GetBalance handles GET /admin/wallets/{userID}.
func (h *WalletAdminHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.wallets.GetBalance(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, b)
}

// Ledger handles GET /admin/wallets/{userID}/ledger?type=&from=&to=&limit=&offset=.
func (h *WalletAdminHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	filter, err := handler.ParseFilter(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	entries, err := h.wallets.ListLedgerEntries(r.Context(), chi.URLParam(r, "userID"), filter)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, entries)
}

// Verify handles GET /admin/wallets/{userID}/verify: replays the ledger
// against the stored balance.
func (h *WalletAdminHandler) Verify(w http.ResponseWriter, r *http.Request) {
	report, err := h.wallets.VerifyLedger(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if !report.AllPassed {
		status = http.StatusConflict
	}
	handler.RespondJSON(w, status, report)
}
