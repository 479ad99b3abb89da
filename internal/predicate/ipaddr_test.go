package predicate

import (
	"errors"
	"testing"

	"github.com/solatis/policykit/internal/types"
)

func TestValidateIPList(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "single IPv4", in: "192.168.1.1"},
		{name: "IPv4 and IPv6", in: "192.168.1.1, 2001:0db8::1"},
		{name: "IPv6 loopback", in: "::1"},
		{name: "empty", in: ""},
		{name: "whitespace only", in: "   "},
		{name: "octet out of range", in: "999.1.1.1", wantErr: true},
		{name: "hostname", in: "printer.local", wantErr: true},
		{name: "trailing comma", in: "10.0.0.1,", wantErr: true},
		{name: "one bad entry blocks the list", in: "10.0.0.1, 10.0.0.300", wantErr: true},
		{name: "CIDR is not a literal", in: "10.0.0.0/8", wantErr: true},
		{name: "zoned IPv6", in: "fe80::1%eth0", wantErr: true},
		{name: "zoned entry in list", in: "10.0.0.1, fe80::1%25", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIPList(tt.in)
			if tt.wantErr {
				if !errors.Is(err, types.ErrInvalidIPList) {
					t.Errorf("ValidateIPList(%q) error = %v, want ErrInvalidIPList", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateIPList(%q) error = %v, want nil", tt.in, err)
			}
		})
	}
}
