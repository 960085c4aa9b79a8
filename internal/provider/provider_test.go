package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/guard"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sampleInput() domain.WebhookInput {
	ptx := "pi_123"
	return domain.WebhookInput{
		Provider:              domain.ProviderStripe,
		TransactionID:         uuid.MustParse("7f1c2a3e-1111-4222-8333-444455556666"),
		ProviderTransactionID: &ptx,
		Status:                domain.PaymentConfirmed,
		Amount:                decimal.RequireFromString("25.5"),
		Currency:              "usd",
	}
}

// --- Signature Tests ---

func TestCanonicalPayload(t *testing.T) {
	in := sampleInput()
	assert.Equal(t, "7f1c2a3e-1111-4222-8333-444455556666|pi_123|CONFIRMED|25.50|USD", CanonicalPayload(in))

	in.ProviderTransactionID = nil
	assert.Equal(t, "7f1c2a3e-1111-4222-8333-444455556666||CONFIRMED|25.50|USD", CanonicalPayload(in))
}

func TestSignVerify_RoundTrip(t *testing.T) {
	in := sampleInput()
	sig := Sign("secret", in)
	assert.Len(t, sig, 64)
	assert.True(t, VerifySignature("secret", in, sig))

	assert.False(t, VerifySignature("other-secret", in, sig))
	assert.False(t, VerifySignature("", in, sig))
	assert.False(t, VerifySignature("secret", in, ""))

	tampered := in
	tampered.Amount = decimal.RequireFromString("2550")
	assert.False(t, VerifySignature("secret", tampered, sig))
}

func TestAllowlist(t *testing.T) {
	al, err := ParseAllowlist([]string{"203.0.113.7", " 10.0.0.0/8 ", "2001:db8::/32", ""})
	require.NoError(t, err)

	tests := []struct {
		ip   string
		want bool
	}{
		{"203.0.113.7", true},
		{"203.0.113.7:44321", true},
		{"203.0.113.8", false},
		{"10.20.30.40", true},
		{"::ffff:10.1.1.1", true},
		{"[2001:db8::1]:443", true},
		{"2001:db9::1", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, al.Allows(tt.ip))
		})
	}
}

func TestAllowlist_EmptyAllowsAll(t *testing.T) {
	al, err := ParseAllowlist(nil)
	require.NoError(t, err)
	assert.True(t, al.Empty())
	assert.True(t, al.Allows("198.51.100.1"))
}

func TestParseAllowlist_Invalid(t *testing.T) {
	_, err := ParseAllowlist([]string{"10.0.0.0/99"})
	assert.Error(t, err)
	_, err = ParseAllowlist([]string{"example.com"})
	assert.Error(t, err)
}

// --- Registry Tests ---

func TestRegistry_Get(t *testing.T) {
	stripe, err := NewStripeAdapter(Config{HMACSecret: "s", BaseURL: "http://stripe"}, nil, quietLogger())
	require.NoError(t, err)
	paypal, err := NewPayPalAdapter(Config{HMACSecret: "p", BaseURL: "http://paypal"}, nil, quietLogger())
	require.NoError(t, err)
	reg := NewRegistry(stripe, paypal)

	a, err := reg.Get(domain.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderStripe, a.Name())

	a, err = reg.Get(domain.ProviderPayPal)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderPayPal, a.Name())

	_, err = reg.Get("bitcoin")
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	_, err = NewRegistry(stripe, nil).Get(domain.ProviderPayPal)
	assert.True(t, domain.IsCode(err, domain.CodeValidation))
}

func TestAdapter_SignatureAndIP(t *testing.T) {
	for _, name := range domain.Providers {
		t.Run(string(name), func(t *testing.T) {
			cfg := Config{HMACSecret: "rail-secret", BaseURL: "http://rail", IPAllowlist: []string{"192.0.2.0/24"}}
			var a Adapter
			var err error
			if name == domain.ProviderStripe {
				a, err = NewStripeAdapter(cfg, nil, quietLogger())
			} else {
				a, err = NewPayPalAdapter(cfg, nil, quietLogger())
			}
			require.NoError(t, err)

			in := sampleInput()
			in.Provider = name
			assert.True(t, a.VerifyWebhookSignature(in, Sign("rail-secret", in)))
			assert.False(t, a.VerifyWebhookSignature(in, Sign("wrong", in)))
			assert.True(t, a.IsWebhookIPAllowed("192.0.2.55"))
			assert.False(t, a.IsWebhookIPAllowed("198.51.100.1"))
		})
	}
}

func TestNewAdapter_BadAllowlist(t *testing.T) {
	_, err := NewStripeAdapter(Config{IPAllowlist: []string{"nope"}}, nil, quietLogger())
	assert.Error(t, err)
}

// --- Redirect Tests ---

func TestStripe_BuildRedirectURL(t *testing.T) {
	a, err := NewStripeAdapter(Config{BaseURL: "https://pay.example/"}, nil, quietLogger())
	require.NoError(t, err)
	id := uuid.New()

	raw, err := a.BuildRedirectURL(id, "user-1", decimal.RequireFromString("12.34"), "EUR", "https://app/return")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/checkout/sessions/new", u.Path)
	assert.Equal(t, id.String(), u.Query().Get("client_reference_id"))
	assert.Equal(t, "1234", u.Query().Get("amount"))
	assert.Equal(t, "eur", u.Query().Get("currency"))
	assert.Equal(t, "https://app/return", u.Query().Get("success_url"))
}

func TestPayPal_BuildRedirectURL(t *testing.T) {
	a, err := NewPayPalAdapter(Config{BaseURL: "https://pp.example"}, nil, quietLogger())
	require.NoError(t, err)
	id := uuid.New()

	raw, err := a.BuildRedirectURL(id, "user-1", decimal.RequireFromString("12.3"), "usd", "")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/checkoutnow", u.Path)
	assert.Equal(t, id.String(), u.Query().Get("token"))
	assert.Equal(t, "12.30", u.Query().Get("amount"))
	assert.Equal(t, "USD", u.Query().Get("currency_code"))
}

func TestBuildRedirectURL_NoBaseURL(t *testing.T) {
	a, err := NewStripeAdapter(Config{}, nil, quietLogger())
	require.NoError(t, err)
	_, err = a.BuildRedirectURL(uuid.New(), "u", decimal.NewFromInt(1), "USD", "")
	assert.Error(t, err)
}

// --- Remote Status Tests ---

func TestStripe_FetchRemoteStatus(t *testing.T) {
	tests := []struct {
		status, paymentStatus string
		want                  domain.PaymentStatus
	}{
		{"complete", "paid", domain.PaymentConfirmed},
		{"complete", "unpaid", domain.PaymentPending},
		{"open", "unpaid", domain.PaymentPending},
		{"expired", "unpaid", domain.PaymentExpired},
		{"canceled", "unpaid", domain.PaymentFailed},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.paymentStatus, func(t *testing.T) {
			p := &domain.PaymentTransaction{ID: uuid.New()}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/checkout/sessions/"+p.ID.String(), r.URL.Path)
				_ = json.NewEncoder(w).Encode(CheckoutSession{ID: "cs_1", Status: tt.status, PaymentStatus: tt.paymentStatus})
			}))
			defer srv.Close()

			a, err := NewStripeAdapter(Config{BaseURL: srv.URL}, nil, quietLogger())
			require.NoError(t, err)
			got, err := a.FetchRemoteStatus(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayPal_FetchRemoteStatus_UsesProviderID(t *testing.T) {
	ref := "ORDER-9"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/orders/ORDER-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"ORDER-9","status":"COMPLETED"}`))
	}))
	defer srv.Close()

	a, err := NewPayPalAdapter(Config{BaseURL: srv.URL}, nil, quietLogger())
	require.NoError(t, err)
	got, err := a.FetchRemoteStatus(context.Background(), &domain.PaymentTransaction{ID: uuid.New(), ProviderTransactionID: &ref})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentConfirmed, got)
}

func TestMapPayPalStatus(t *testing.T) {
	for in, want := range map[string]domain.PaymentStatus{
		"COMPLETED": domain.PaymentConfirmed,
		"VOIDED":    domain.PaymentFailed,
		"EXPIRED":   domain.PaymentExpired,
		"approved":  domain.PaymentPending,
	} {
		got, err := mapPayPalStatus(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := mapPayPalStatus("MYSTERY")
	assert.Error(t, err)
}

func TestFetchRemoteStatus_FailuresOpenCircuit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	breaker := guard.NewCircuitBreaker(2, time.Minute)
	a, err := NewPayPalAdapter(Config{BaseURL: srv.URL}, breaker, quietLogger())
	require.NoError(t, err)
	p := &domain.PaymentTransaction{ID: uuid.New()}

	for i := 0; i < 3; i++ {
		_, err := a.FetchRemoteStatus(context.Background(), p)
		assert.True(t, domain.IsCode(err, domain.CodeProviderUnavailable))
	}
	assert.Equal(t, int32(2), hits.Load(), "third call short-circuits")
	assert.Equal(t, guard.CircuitOpen, breaker.State(string(domain.ProviderPayPal)))
}

// --- Slotopol Tests ---

func TestSlotopol_Payout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/spin", r.URL.Path)
		var req SlotopolSpinRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(250), req.Bet)
		assert.Equal(t, "round-1", req.RoundID)
		_ = json.NewEncoder(w).Encode(SlotopolSpinResult{GameRoundID: "gr-1", Win: 1075})
	}))
	defer srv.Close()

	c := NewSlotopolClient(srv.URL, quietLogger())
	win, err := c.Payout(context.Background(), "user-1", "book-of-ra", "round-1", decimal.RequireFromString("2.50"))
	require.NoError(t, err)
	assert.True(t, win.Equal(decimal.RequireFromString("10.75")))
}

func TestSlotopol_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewSlotopolClient(srv.URL, quietLogger())
	_, err := c.Payout(context.Background(), "user-1", "g", "r", decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
