// internal/predicate/build.go
package predicate

/*
 * Predicate construction.
 *
 * Build walks the form once and assembles subject, resource and conditions:
 *   1. Subject matchers: skip if disabled; map (dimension, matchBy) to a key
 *      path; classify the operator; resolve the value by precedence; coerce
 *      numbers for numeric keys.
 *   2. Resource matcher: skip if disabled; scalar string only.
 *   3. Conditions: skip if disabled; coerce by the catalog dataType.
 *   4. Submission gate: any field error rejects the whole form. Nothing is
 *      returned alongside a ValidationError.
 *
 * Empty values and empty operators omit the key; they are not errors.
 * Condition names missing from the catalog are treated as untyped strings.
 */

import (
	"sort"
	"strings"
	"time"

	"github.com/solatis/policykit/internal/core/metrics"
	"github.com/solatis/policykit/internal/session"
	"github.com/solatis/policykit/internal/types"
)

// Field identifiers used in ValidationError.
const (
	FieldRole       = "role"
	FieldDepartment = "department"
	FieldResource   = "resource"

	conditionFieldPrefix = "conditions."
)

// ConditionField returns the error field identifier for a condition.
func ConditionField(name string) string {
	return conditionFieldPrefix + name
}

// ValidationError lists field-level problems that block submission.
type ValidationError struct {
	Fields map[string]string
}

// Error returns one aggregate message naming every invalid field.
func (e *ValidationError) Error() string {
	names := e.FieldNames()
	return types.ErrValidation.Error() + ": " + strings.Join(names, ", ")
}

// Unwrap makes errors.Is(err, types.ErrValidation) hold.
func (e *ValidationError) Unwrap() error {
	return types.ErrValidation
}

// FieldNames returns the invalid field identifiers in sorted order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Add records a field error, keeping the first message per field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// Merge copies other's fields into e.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for f, msg := range other.Fields {
		e.Add(f, msg)
	}
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// Build converts form state into a predicate. Returns *ValidationError when
// any field is invalid.
func Build(sess *session.Session, form FormState) (types.Predicate, error) {
	pred := types.NewPredicate()
	verr := &ValidationError{}

	buildSubject(sess, DimensionRole, FieldRole, form.Role, pred.Subject, verr)
	buildSubject(sess, DimensionDepartment, FieldDepartment, form.Department, pred.Subject, verr)
	pred.Resource = buildResource(form.Resource)
	buildConditions(sess, form.Conditions, pred.Conditions, verr)

	if verr.HasErrors() {
		metrics.PredicateBuilds.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return types.Predicate{}, verr
	}
	metrics.PredicateBuilds.WithLabelValues(metrics.OutcomeOK).Inc()
	return pred, nil
}

func buildSubject(sess *session.Session, dim Dimension, field string, m SubjectMatcher, out map[string]types.Clause, verr *ValidationError) {
	if !m.Enabled {
		return
	}
	op := strings.TrimSpace(m.Operator)
	if op == "" {
		return
	}
	key, err := subjectKey(dim, m.MatchBy)
	if err != nil {
		verr.Add(field, err.Error())
		return
	}

	shape := Classify(op, sess)
	switch shape.Kind {
	case KindArray:
		tags := resolveArray(m.ValueInput)
		if len(tags) == 0 {
			return
		}
		if shape.NumericElements && key.Numeric() {
			nums := make([]float64, 0, len(tags))
			for _, t := range tags {
				f, err := parseNumber(t)
				if err != nil {
					verr.Add(field, err.Error())
					return
				}
				nums = append(nums, f)
			}
			out[string(key)] = types.Clause{Operator: op, Value: nums}
			return
		}
		out[string(key)] = types.Clause{Operator: op, Value: tags}

	default:
		v := resolveScalar(m.ValueInput)
		if v == "" {
			return
		}
		if shape.Kind == KindNumber && key.Numeric() {
			f, err := parseNumber(v)
			if err != nil {
				verr.Add(field, err.Error())
				return
			}
			out[string(key)] = types.Clause{Operator: op, Value: f}
			return
		}
		out[string(key)] = types.Clause{Operator: op, Value: v}
	}
}

func buildResource(r ResourceMatcher) *types.ResourceClause {
	if !r.Enabled {
		return nil
	}
	op := strings.TrimSpace(r.Operator)
	v := strings.TrimSpace(r.Value)
	if op == "" || v == "" {
		return nil
	}
	return &types.ResourceClause{Type: types.Clause{Operator: op, Value: v}}
}

func buildConditions(sess *session.Session, inputs map[string]ConditionInput, out map[string]types.Clause, verr *ValidationError) {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		in := inputs[name]
		if !in.Enabled {
			continue
		}
		op := strings.TrimSpace(in.Operator)
		if op == "" {
			continue
		}

		def := types.ConditionDef{Name: name, DataType: types.DataTypeString}
		if sess != nil {
			if d, ok := sess.Condition(name); ok {
				def = d
			}
		}

		value, present, err := CoerceCondition(def, in.Value, sessionLocation(sess))
		if err != nil {
			verr.Add(ConditionField(name), err.Error())
			continue
		}
		if !present {
			continue
		}
		out[name] = types.Clause{Operator: op, Value: value}
	}
}

func sessionLocation(sess *session.Session) *time.Location {
	if sess == nil {
		return time.UTC
	}
	return sess.Location()
}
