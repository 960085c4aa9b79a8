package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/attaboy/wallet/internal/auth"
	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/service"
)

// WalletHandler handles wallet balance and transaction endpoints.
type WalletHandler struct {
	wallets *service.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

type openWalletRequest struct {
	Currency string `json:"currency"`
}

// OpenWallet handles POST /wallet. It is idempotent: an existing wallet is returned as-is.
func (h *WalletHandler) OpenWallet(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req openWalletRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			RespondError(w, err)
			return
		}
	}

	wallet, err := h.wallets.GetOrCreateWallet(r.Context(), p.UserID, req.Currency)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, wallet)
}

// GetBalance handles GET /wallet/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	balance, err := h.wallets.GetBalance(r.Context(), p.UserID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, balance)
}

// txListResponse wraps a page of transactions.
type txListResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

// GetTransactions handles GET /wallet/transactions?type=&from=&to=&limit=&offset=.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
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

	txs, err := h.wallets.ListTransactions(r.Context(), p.UserID, filter)
	if err != nil {
		RespondError(w, err)
		return
	}
	filter = filter.Normalize()
	RespondJSON(w, http.StatusOK, txListResponse{Transactions: txs, Limit: filter.Limit, Offset: filter.Offset})
}

// principalFromRequest returns the authenticated caller.
func principalFromRequest(r *http.Request) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok || p.UserID == "" {
		return auth.Principal{}, domain.ErrUnauthorized("no principal in context")
	}
	return p, nil
}

// ParseFilter reads history filters from the query string.
func ParseFilter(r *http.Request) (domain.TransactionFilter, error) {
	q := r.URL.Query()
	var f domain.TransactionFilter

	if t := q.Get("type"); t != "" {
		f.Type = domain.TransactionType(strings.ToUpper(t))
	}
	if s := q.Get("status"); s != "" {
		f.Status = domain.TransactionStatus(strings.ToUpper(s))
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, domain.ErrValidation("'" + bound.name + "' must be an RFC 3339 timestamp")
		}
		*bound.dst = &ts
	}

	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return f, domain.ErrValidation("'limit' must be an integer")
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		return f, domain.ErrValidation("'offset' must be an integer")
	}
	return f, nil
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
