package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/attaboy/wallet/internal/domain"
)

// getJSON issues a GET and decodes a 200 response into out.
func (r *rail) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s api call: %w", r.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s error (status %d): %s", r.name, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.name, err)
	}
	return nil
}

// remoteRef is the id the rail knows the payment by: its own id once a
// webhook has reported one, otherwise ours.
func remoteRef(p *domain.PaymentTransaction) string {
	if p.ProviderTransactionID != nil && *p.ProviderTransactionID != "" {
		return *p.ProviderTransactionID
	}
	return p.ID.String()
}
