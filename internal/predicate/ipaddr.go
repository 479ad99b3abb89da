package predicate

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/solatis/policykit/internal/types"
)

// ValidateIPList accepts one or more comma-separated IPv4/IPv6 literals.
// Zoned IPv6 addresses (fe80::1%eth0) are not plain literals and are
// rejected. Whitespace around entries is ignored. An empty string is valid; the caller
// excludes it from the payload. Empty entries ("1.1.1.1,") are invalid.
func ValidateIPList(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	for _, part := range strings.Split(s, ",") {
		addr := strings.TrimSpace(part)
		if addr == "" {
			return fmt.Errorf("%w: empty entry", types.ErrInvalidIPList)
		}
		ip, err := netip.ParseAddr(addr)
		if err != nil || ip.Zone() != "" {
			return fmt.Errorf("%w: %q", types.ErrInvalidIPList, addr)
		}
	}
	return nil
}
