// internal/types/predicate.go
package types

/*
 * Wire shape of a policy predicate.
 *
 *   {
 *     "subject":    { "<key path>": { "<$op>": value } },
 *     "resource":   { "type": { "<$op>": "<resource type>" } },
 *     "conditions": { "<condition name>": { "<$op>": value } }
 *   }
 *
 * Clause is the one-key { "<$op>": value } object. Decoding takes the first
 * "$"-prefixed key in document order; a bare value decodes as implicit
 * equality. Anything else decodes to the default operator with a nil value
 * and is left for the caller to ignore.
 */

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DefaultOperator is assumed when a clause carries no "$" key.
const DefaultOperator = "$eq"

// operatorPrefix marks operator keys inside a clause.
const operatorPrefix = "$"

// Clause pairs one operator with its value.
type Clause struct {
	Operator string
	Value    any
}

// MarshalJSON implements json.Marshaler.
func (c Clause) MarshalJSON() ([]byte, error) {
	if c.Operator == "" {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any{c.Operator: c.Value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Clause) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*c = Clause{Operator: DefaultOperator, Value: v}
		return nil
	}

	*c = Clause{Operator: DefaultOperator}
	found := false
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		key, _ := keyTok.(string)
		if found || !strings.HasPrefix(key, operatorPrefix) {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		c.Operator, c.Value, found = key, v, true
	}
	_, err = dec.Token()
	return err
}

// ResourceClause wraps the resource-type clause.
type ResourceClause struct {
	Type Clause `json:"type"`
}

// Predicate is the object submitted to the policy-evaluation backend.
type Predicate struct {
	Subject    map[string]Clause `json:"subject"`
	Resource   *ResourceClause   `json:"resource,omitempty"`
	Conditions map[string]Clause `json:"conditions"`
}

// NewPredicate returns a predicate with empty subject and conditions.
func NewPredicate() Predicate {
	return Predicate{
		Subject:    make(map[string]Clause),
		Conditions: make(map[string]Clause),
	}
}

// MarshalJSON implements json.Marshaler.
// Subject and conditions always encode as objects, never null.
func (p Predicate) MarshalJSON() ([]byte, error) {
	type plain Predicate
	out := plain(p)
	if out.Subject == nil {
		out.Subject = map[string]Clause{}
	}
	if out.Conditions == nil {
		out.Conditions = map[string]Clause{}
	}
	return json.Marshal(out)
}

// IsEmpty reports whether the predicate constrains nothing.
func (p Predicate) IsEmpty() bool {
	return len(p.Subject) == 0 && p.Resource == nil && len(p.Conditions) == 0
}
