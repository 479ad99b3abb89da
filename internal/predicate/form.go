// internal/predicate/form.go
package predicate

/*
 * Form state for the policy rule builder.
 *
 * FormState mirrors what a policy form holds between open and submit: two
 * subject matchers (role, department), one resource matcher and a set of
 * toggled conditions. It is a plain value; the builder never mutates it and
 * the reverse parser returns a fresh one.
 *
 * Provenance: multi-value inputs keep list-picked and manually typed tags
 * apart (ListValues vs ManualValues) so a client can render them differently.
 * Scalar inputs keep the list selection (Selected) and the typed value
 * (Manual) apart for the same reason. Resolution precedence lives in
 * resolve.go.
 */

import (
	"github.com/solatis/policykit/internal/session"
	"github.com/solatis/policykit/internal/types"
)

// MatchBy selects which attribute of a subject dimension is matched.
type MatchBy string

const (
	MatchByName  MatchBy = "name"
	MatchByLevel MatchBy = "level"
	MatchByCode  MatchBy = "code"
)

// ValueInput is the operator plus every value slot a matcher can hold.
type ValueInput struct {
	Operator     string   `json:"operator"`
	Selected     string   `json:"selected,omitempty"`
	Manual       string   `json:"manual,omitempty"`
	ListValues   []string `json:"listValues,omitempty"`
	ManualValues []string `json:"manualValues,omitempty"`
	RawValues    []string `json:"rawValues,omitempty"`
}

// SubjectMatcher is one toggleable subject dimension (role or department).
type SubjectMatcher struct {
	Enabled bool    `json:"enabled"`
	MatchBy MatchBy `json:"matchBy"`
	// UseList is true while the client shows the catalog picker and false
	// while it shows free-text entry.
	UseList bool `json:"useList"`
	ValueInput
}

// ResourceMatcher constrains the resource type.
type ResourceMatcher struct {
	Enabled  bool   `json:"enabled"`
	Operator string `json:"operator"`
	Value    string `json:"value,omitempty"`
}

// ConditionInput is one toggleable named condition.
type ConditionInput struct {
	Enabled  bool   `json:"enabled"`
	Operator string `json:"operator"`
	Value    string `json:"value,omitempty"`
}

// FormState is the complete builder input.
type FormState struct {
	Role       SubjectMatcher            `json:"role"`
	Department SubjectMatcher            `json:"department"`
	Resource   ResourceMatcher           `json:"resource"`
	Conditions map[string]ConditionInput `json:"conditions,omitempty"`
}

// NewFormState returns the state of a freshly opened, empty form.
func NewFormState() FormState {
	return FormState{
		Role: SubjectMatcher{
			MatchBy:    MatchByName,
			UseList:    true,
			ValueInput: ValueInput{Operator: types.DefaultOperator},
		},
		Department: SubjectMatcher{
			MatchBy:    MatchByName,
			UseList:    true,
			ValueInput: ValueInput{Operator: types.DefaultOperator},
		},
		Resource:   ResourceMatcher{Operator: types.DefaultOperator},
		Conditions: make(map[string]ConditionInput),
	}
}

// SetOperator changes the matcher operator. When the new operator differs in
// array-ness from the old one, inputs belonging to the old shape are cleared
// so they cannot leak into a differently shaped payload.
func (m *SubjectMatcher) SetOperator(op string, sess *session.Session) {
	wasArray := Classify(m.Operator, sess).Kind == KindArray
	isArray := Classify(op, sess).Kind == KindArray
	m.Operator = op
	if wasArray == isArray {
		return
	}
	if isArray {
		m.Manual = ""
		m.Selected = ""
		return
	}
	m.ManualValues = nil
	m.ListValues = nil
	m.RawValues = nil
}

// SetCondition toggles a condition on with the given operator and value.
func (f *FormState) SetCondition(name, op, value string) {
	if f.Conditions == nil {
		f.Conditions = make(map[string]ConditionInput)
	}
	f.Conditions[name] = ConditionInput{Enabled: true, Operator: op, Value: value}
}
