//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/attaboy/wallet/internal/auth"
	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/provider"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlayerToken issues a player JWT for userID.
func (env *TestEnv) PlayerToken(userID string) string {
	env.t.Helper()
	return env.token(userID, auth.RolePlayer)
}

// AdminToken issues an admin JWT for userID.
func (env *TestEnv) AdminToken(userID string) string {
	env.t.Helper()
	return env.token(userID, auth.RoleAdmin)
}

func (env *TestEnv) token(userID string, role auth.Role) string {
	tok, err := env.JWTMgr.GenerateToken(userID, role)
	if err != nil {
		env.t.Fatalf("generate token: %v", err)
	}
	return tok
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, "")
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, token)
}

// POST performs a JSON POST request with optional auth token.
func (env *TestEnv) POST(path string, body any, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, body, token)
}

// PUT performs a JSON PUT request with optional auth token.
func (env *TestEnv) PUT(path string, body any, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPut, path, body, token)
}

// RawPOST sends body as-is with the given headers.
func (env *TestEnv) RawPOST(path string, body []byte, headers map[string]string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		env.t.Fatalf("RawPOST %s: new request: %v", path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("RawPOST %s: %v", path, err)
	}
	return resp
}

func (env *TestEnv) do(method, path string, body any, token string) *http.Response {
	env.t.Helper()
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, env.Server.URL+path, r)
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// Fund opens a USD wallet for userID and adjusts it by a non-zero amount.
func (env *TestEnv) Fund(userID, amount string) {
	env.t.Helper()
	ctx := context.Background()
	if _, err := env.Wallets.GetOrCreateWallet(ctx, userID, "USD"); err != nil {
		env.t.Fatalf("open wallet: %v", err)
	}
	if decimal.RequireFromString(amount).IsZero() {
		return
	}
	admin := auth.Principal{UserID: "ops-1", Role: auth.RoleAdmin}
	if _, err := env.Wallets.Adjustment(ctx, admin, userID, decimal.RequireFromString(amount), "test funding"); err != nil {
		env.t.Fatalf("fund wallet: %v", err)
	}
}

// Deposit creates a stripe deposit through the API and returns its id.
func (env *TestEnv) Deposit(userID, amount string) uuid.UUID {
	env.t.Helper()
	resp := env.POST("/payments/deposit", map[string]string{
		"provider":  "stripe",
		"amount":    amount,
		"currency":  "USD",
		"returnUrl": "https://casino.test/back",
	}, env.PlayerToken(userID))
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		env.t.Fatalf("Deposit: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var res domain.DepositResult
	DecodeJSON(env.t, resp, &res)
	return res.TransactionID
}

// StripeWebhook builds a correctly signed stripe notification.
func StripeWebhook(txID uuid.UUID, status domain.PaymentStatus, amount string) domain.WebhookInput {
	providerTx := "pi_" + txID.String()[:8]
	in := domain.WebhookInput{
		Provider:              domain.ProviderStripe,
		TransactionID:         txID,
		ProviderTransactionID: &providerTx,
		Status:                status,
		Amount:                decimal.RequireFromString(amount),
		Currency:              "USD",
	}
	in.Signature = provider.Sign(TestStripeSecret, in)
	return in
}

// PostWebhook delivers in to the provider's webhook endpoint.
func (env *TestEnv) PostWebhook(in domain.WebhookInput) *http.Response {
	env.t.Helper()
	return env.POST("/webhooks/"+string(in.Provider), in, "")
}
