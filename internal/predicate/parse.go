// internal/predicate/parse.go
package predicate

/*
 * Reverse parsing: predicate -> form state, for editing existing policies.
 *
 * Best effort, not a strict inverse. For each known key path present in the
 * source, the operator is the first "$" key of the clause (default $eq) and
 * the value lands in:
 *   - ManualValues, with UseList=false, when it is an array
 *   - Manual and Selected when it is a scalar
 * Anything else (nested objects, null, non-object sections, unknown keys) is
 * skipped and the corresponding field keeps its default. The only error is
 * input that is not a JSON object at all.
 *
 * Round trip Build -> Parse -> Build reproduces operators and values for
 * shapes Build itself emits. Externally authored predicates may not survive.
 */

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/solatis/policykit/internal/types"
)

// Parse decodes predicate JSON into form state.
func Parse(data []byte) (FormState, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return FormState{}, fmt.Errorf("predicate is not a JSON object: %w", err)
	}

	pred := types.NewPredicate()
	pred.Subject = decodeClauses(top["subject"])
	pred.Conditions = decodeClauses(top["conditions"])
	if raw, ok := top["resource"]; ok {
		var res map[string]json.RawMessage
		if json.Unmarshal(raw, &res) == nil {
			if rawType, ok := res["type"]; ok {
				var c types.Clause
				if json.Unmarshal(rawType, &c) == nil {
					pred.Resource = &types.ResourceClause{Type: c}
				}
			}
		}
	}
	return ParsePredicate(pred), nil
}

// decodeClauses decodes an object of clauses, dropping entries that fail.
func decodeClauses(raw json.RawMessage) map[string]types.Clause {
	out := make(map[string]types.Clause)
	if len(raw) == 0 {
		return out
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return out
	}
	for key, val := range entries {
		var c types.Clause
		if err := json.Unmarshal(val, &c); err != nil {
			continue
		}
		out[key] = c
	}
	return out
}

// ParsePredicate reconstructs form state from a decoded predicate.
func ParsePredicate(p types.Predicate) FormState {
	form := NewFormState()

	for _, b := range roleBindings {
		if c, ok := p.Subject[string(b.Key)]; ok {
			applyClause(&form.Role, b.By, c)
		}
	}
	for _, b := range departmentBindings {
		if c, ok := p.Subject[string(b.Key)]; ok {
			applyClause(&form.Department, b.By, c)
		}
	}

	if p.Resource != nil {
		if v, ok := formatScalar(p.Resource.Type.Value); ok {
			form.Resource = ResourceMatcher{
				Enabled:  true,
				Operator: operatorOrDefault(p.Resource.Type.Operator),
				Value:    v,
			}
		}
	}

	names := make([]string, 0, len(p.Conditions))
	for name := range p.Conditions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := p.Conditions[name]
		v, ok := formatScalar(c.Value)
		if !ok {
			continue
		}
		form.Conditions[name] = ConditionInput{
			Enabled:  true,
			Operator: operatorOrDefault(c.Operator),
			Value:    v,
		}
	}

	return form
}

// applyClause loads one subject clause into a matcher. Unusable values leave
// the matcher untouched.
func applyClause(m *SubjectMatcher, by MatchBy, c types.Clause) {
	if list, ok := listValues(c.Value); ok {
		if len(list) == 0 {
			return
		}
		m.Enabled = true
		m.MatchBy = by
		m.UseList = false
		m.ValueInput = ValueInput{Operator: operatorOrDefault(c.Operator), ManualValues: list}
		return
	}

	v, ok := formatScalar(c.Value)
	if !ok || v == "" {
		return
	}
	m.Enabled = true
	m.MatchBy = by
	m.ValueInput = ValueInput{
		Operator: operatorOrDefault(c.Operator),
		Selected: v,
		Manual:   v,
	}
}

// listValues renders array values as text. Non-scalar elements are dropped.
func listValues(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...), true
	case []float64:
		out := make([]string, 0, len(x))
		for _, f := range x {
			s, _ := formatScalar(f)
			out = append(out, s)
		}
		return out, true
	case []any:
		out := make([]string, 0, len(x))
		for _, elem := range x {
			if s, ok := formatScalar(elem); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func operatorOrDefault(op string) string {
	if op == "" {
		return types.DefaultOperator
	}
	return op
}
