package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClauseUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantOp  string
		wantVal any
	}{
		{name: "single operator", input: `{"$in":["a","b"]}`, wantOp: "$in", wantVal: []any{"a", "b"}},
		{name: "first operator in document order", input: `{"$ne":1,"$eq":2}`, wantOp: "$ne", wantVal: 1.0},
		{name: "non-operator keys skipped", input: `{"label":"x","$gt":3}`, wantOp: "$gt", wantVal: 3.0},
		{name: "no operator key", input: `{"label":"x"}`, wantOp: DefaultOperator, wantVal: nil},
		{name: "empty object", input: `{}`, wantOp: DefaultOperator, wantVal: nil},
		{name: "bare string", input: `"admin"`, wantOp: DefaultOperator, wantVal: "admin"},
		{name: "bare array", input: `[1,2]`, wantOp: DefaultOperator, wantVal: []any{1.0, 2.0}},
		{name: "nested value kept", input: `{"$eq":{"a":1}}`, wantOp: "$eq", wantVal: map[string]any{"a": 1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Clause
			require.NoError(t, json.Unmarshal([]byte(tt.input), &c))
			assert.Equal(t, tt.wantOp, c.Operator)
			assert.Equal(t, tt.wantVal, c.Value)
		})
	}
}

func TestClauseUnmarshal_Malformed(t *testing.T) {
	var c Clause
	assert.Error(t, json.Unmarshal([]byte(`{"$eq":}`), &c))
}

func TestClauseMarshal(t *testing.T) {
	data, err := json.Marshal(Clause{Operator: "$in", Value: []string{"x"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"$in":["x"]}`, string(data))

	data, err = json.Marshal(Clause{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestPredicateMarshal(t *testing.T) {
	data, err := json.Marshal(Predicate{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"subject":{},"conditions":{}}`, string(data))

	p := NewPredicate()
	p.Subject["role.level"] = Clause{Operator: "$gte", Value: 5.0}
	p.Resource = &ResourceClause{Type: Clause{Operator: "$eq", Value: "device"}}
	data, err = json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"subject":{"role.level":{"$gte":5}},"resource":{"type":{"$eq":"device"}},"conditions":{}}`, string(data))
	assert.False(t, p.IsEmpty())
	assert.True(t, NewPredicate().IsEmpty())
}
