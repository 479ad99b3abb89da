package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/policykit/internal/types"
)

const validSeed = `
operators:
  - name: $eq
    description: equals
    appliesTo: [string, number]
  - name: $in
    appliesTo: [array_string, array_number]
resourceTypes:
  - name: device
    label: Printer
conditions:
  - name: ip_address
    dataType: string
    format: ip
  - name: valid_from
    dataType: datetime
roles:
  - name: admin
    level: 10
departments:
  - name: Finance
    code: FIN
`

func TestParseSeed(t *testing.T) {
	snap, err := ParseSeed([]byte(validSeed))
	require.NoError(t, err)

	require.Len(t, snap.Operators, 2)
	assert.Equal(t, []string{"string", "number"}, snap.Operators[0].AppliesTo)
	assert.True(t, snap.Operators[1].IsArray())
	assert.Equal(t, "Printer", snap.ResourceTypes[0].Label)
	assert.True(t, snap.Conditions[0].IsIPAddress())
	assert.Equal(t, types.DataTypeDatetime, snap.Conditions[1].DataType)
	assert.Equal(t, 10, snap.Roles[0].Level)
	assert.Equal(t, "FIN", snap.Departments[0].Code)
}

func TestParseSeed_Empty(t *testing.T) {
	snap, err := ParseSeed(nil)
	require.NoError(t, err)
	assert.Empty(t, snap.Operators)
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		seed    string
		wantErr string
	}{
		{
			name:    "unknown key",
			seed:    "operatorz: []",
			wantErr: "invalid seed",
		},
		{
			name:    "operator without dollar",
			seed:    "operators:\n  - name: eq\n    appliesTo: [string]",
			wantErr: "must start with $",
		},
		{
			name:    "operator without appliesTo",
			seed:    "operators:\n  - name: $eq",
			wantErr: "appliesTo",
		},
		{
			name:    "duplicate operator",
			seed:    "operators:\n  - name: $eq\n    appliesTo: [string]\n  - name: $eq\n    appliesTo: [number]",
			wantErr: "duplicate operator",
		},
		{
			name:    "bad data type",
			seed:    "conditions:\n  - name: when\n    dataType: date",
			wantErr: "unknown dataType",
		},
		{
			name:    "duplicate condition",
			seed:    "conditions:\n  - name: a\n    dataType: string\n  - name: a\n    dataType: number",
			wantErr: "duplicate condition",
		},
		{
			name:    "nameless role",
			seed:    "roles:\n  - level: 3",
			wantErr: "roles[0]",
		},
		{
			name:    "nameless department",
			seed:    "departments:\n  - code: X",
			wantErr: "departments[0]",
		},
		{
			name:    "nameless resource type",
			seed:    "resourceTypes:\n  - label: Printer",
			wantErr: "resourceTypes[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed([]byte(tt.seed))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validSeed), 0o600))

	snap, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Len(t, snap.Roles, 1)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
