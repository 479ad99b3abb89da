package auth

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

func TestParseAPIKey(t *testing.T) {
	random := strings.Repeat("ab", 32)
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", FormatAPIKey(testSecretID, random), false},
		{"wrong prefix", "tk-v1-" + testSecretID + "-" + random, true},
		{"wrong version", "pk-v2-" + testSecretID + "-" + random, true},
		{"short secret id", FormatAPIKey("abc", random), true},
		{"short random", FormatAPIKey(testSecretID, "abcd"), true},
		{"uppercase hex", FormatAPIKey(strings.ToUpper(testSecretID), random), true},
		{"extra segment", FormatAPIKey(testSecretID, random) + "-x", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secretID, data, err := ParseAPIKey(tt.key)
			if tt.wantErr {
				if err != ErrInvalidKeyFormat {
					t.Fatalf("ParseAPIKey(%q) err = %v, want ErrInvalidKeyFormat", tt.key, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAPIKey(%q) unexpected error: %v", tt.key, err)
			}
			if secretID != testSecretID || data != random {
				t.Errorf("ParseAPIKey(%q) = (%q, %q)", tt.key, secretID, data)
			}
		})
	}
}

func TestVerifyHMAC(t *testing.T) {
	key := FormatAPIKey(testSecretID, strings.Repeat("0", 64))
	a := ComputeHMAC([]byte("secret-one"), key)
	if !VerifyHMAC(a, ComputeHMAC([]byte("secret-one"), key)) {
		t.Error("same secret and key must verify")
	}
	if VerifyHMAC(a, ComputeHMAC([]byte("secret-two"), key)) {
		t.Error("different secret must not verify")
	}
}

// TestGenerateAPIKey_Property checks every generated key parses back to its secret ID.
func TestGenerateAPIKey_Property(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("generated keys parse", prop.ForAll(
		func(raw []byte) bool {
			secretID := hex.EncodeToString(raw)
			key, err := GenerateAPIKey(secretID)
			if err != nil {
				return false
			}
			got, data, err := ParseAPIKey(key)
			return err == nil && got == secretID && len(data) == 64
		},
		gen.SliceOfN(16, gen.UInt8()),
	))

	properties.TestingRun(t)
}
