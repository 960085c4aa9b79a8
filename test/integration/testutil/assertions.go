//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorCode checks that the response body carries the expected error code.
func AssertErrorCode(t *testing.T, resp *http.Response, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, errResp.Code, errResp.Message)
	}
}

// AssertBalance reads wallet_accounts directly and compares the stored balance.
func AssertBalance(t *testing.T, env *TestEnv, userID, expected string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var raw string
	if err := env.Pool.QueryRow(ctx,
		"SELECT balance::text FROM wallet_accounts WHERE user_id = $1", userID).Scan(&raw); err != nil {
		t.Fatalf("AssertBalance: query: %v", err)
	}
	got := decimal.RequireFromString(raw)
	if !got.Equal(decimal.RequireFromString(expected)) {
		t.Errorf("balance: expected %s, got %s", expected, got)
	}
}

// CountLedgerEntries returns the number of ledger entries for a user.
func CountLedgerEntries(t *testing.T, env *TestEnv, userID string) int {
	t.Helper()
	return count(t, env, "SELECT COUNT(*) FROM ledger_entries WHERE user_id = $1", userID)
}

// CountOutboxEvents returns the number of outbox events for an aggregate.
func CountOutboxEvents(t *testing.T, env *TestEnv, aggregateID string) int {
	t.Helper()
	return count(t, env, "SELECT COUNT(*) FROM event_outbox WHERE aggregate_id = $1", aggregateID)
}

// CountAudit returns the number of audit rows with the given action for an entity.
func CountAudit(t *testing.T, env *TestEnv, action, entityID string) int {
	t.Helper()
	return count(t, env, "SELECT COUNT(*) FROM audit_logs WHERE action = $1 AND entity_id = $2", action, entityID)
}

// PaymentState returns a payment's stored status and whether it was credited.
func PaymentState(t *testing.T, env *TestEnv, id uuid.UUID) (status string, credited bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := env.Pool.QueryRow(ctx,
		"SELECT status, credited_at IS NOT NULL FROM payment_transactions WHERE id = $1", id).Scan(&status, &credited); err != nil {
		t.Fatalf("PaymentState: %v", err)
	}
	return status, credited
}

func count(t *testing.T, env *TestEnv, query string, args ...any) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var n int
	if err := env.Pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
