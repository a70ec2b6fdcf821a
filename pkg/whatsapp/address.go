package whatsapp

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// CanonicalSuffix is the recipient identifier suffix required on the wire.
const CanonicalSuffix = "@c.us"

// NormalizeAddress turns a raw phone number into the canonical
// <digits>@c.us form. Already-canonical input passes through unchanged.
// Everything that is not a digit is dropped, then a single leading zero
// is stripped. Numbers whose national part legitimately begins with zero
// after the country code are ambiguous under this rule; the behavior is
// kept as-is because existing callers depend on it.
func NormalizeAddress(number string) string {
	if strings.HasSuffix(number, CanonicalSuffix) {
		return number
	}

	var b strings.Builder
	b.Grow(len(number))
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		digits = digits[1:]
	}

	return digits + CanonicalSuffix
}

// toJID maps a canonical address onto the JID server the engine speaks.
func toJID(address string) types.JID {
	user := strings.TrimSuffix(NormalizeAddress(address), CanonicalSuffix)
	return types.NewJID(user, types.DefaultUserServer)
}
