package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"

	"github.com/attaboy/wallet/internal/domain"
)

// CanonicalPayload is the string a rail signs for a webhook:
// transactionId|providerTransactionId|STATUS|amount|CURRENCY with the amount
// fixed to two decimals and an absent provider id left empty.
func CanonicalPayload(in domain.WebhookInput) string {
	providerTxID := ""
	if in.ProviderTransactionID != nil {
		providerTxID = *in.ProviderTransactionID
	}
	return strings.Join([]string{
		in.TransactionID.String(),
		providerTxID,
		strings.ToUpper(string(in.Status)),
		in.Amount.StringFixed(2),
		strings.ToUpper(in.Currency),
	}, "|")
}

// Sign returns the lowercase hex HMAC-SHA256 of the canonical payload.
func Sign(secret string, in domain.WebhookInput) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(CanonicalPayload(in)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signature against Sign in constant time.
func VerifySignature(secret string, in domain.WebhookInput, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, in)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// Allowlist matches caller addresses against IPs and CIDR ranges.
// An empty list allows every address.
type Allowlist struct {
	prefixes []netip.Prefix
}

// ParseAllowlist accepts entries such as "203.0.113.7", "10.0.0.0/8" or "2001:db8::/32".
func ParseAllowlist(entries []string) (Allowlist, error) {
	var al Allowlist
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return Allowlist{}, fmt.Errorf("parse allowlist cidr %q: %w", entry, err)
			}
			al.prefixes = append(al.prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return Allowlist{}, fmt.Errorf("parse allowlist ip %q: %w", entry, err)
		}
		addr = addr.Unmap()
		al.prefixes = append(al.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return al, nil
}

// Empty reports whether the list has no entries.
func (a Allowlist) Empty() bool { return len(a.prefixes) == 0 }

// Allows reports whether ip (with or without a port) is covered by the list.
func (a Allowlist) Allows(ip string) bool {
	if a.Empty() {
		return true
	}
	addr, ok := parseCaller(ip)
	if !ok {
		return false
	}
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseCaller(ip string) (netip.Addr, bool) {
	ip = strings.TrimSpace(ip)
	if ap, err := netip.ParseAddrPort(ip); err == nil {
		return ap.Addr().Unmap().WithZone(""), true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}
