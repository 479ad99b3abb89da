// Package types provides domain models shared across policykit components.
//
// Reference data (operators, resource types, conditions, roles, departments)
// is owned by the policy backend and treated as read-only here. Policy and
// Predicate describe what the builder submits back to it.
package types

import (
	"strings"
	"time"
)

// Operator is a comparison token from the backend operator catalog.
// Semantics belong to the evaluation engine; policykit only uses AppliesTo
// to decide which value slot an operator needs.
type Operator struct {
	Name        string   `json:"name" yaml:"name" db:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" db:"description"`
	AppliesTo   []string `json:"appliesTo" yaml:"appliesTo" db:"-"`
}

// AppliesTo tags used by the operator catalog.
const (
	AppliesString      = "string"
	AppliesNumber      = "number"
	AppliesArrayString = "array_string"
	AppliesArrayNumber = "array_number"

	// arrayTagPrefix marks any collection-valued tag.
	arrayTagPrefix = "array"
)

// IsArray reports whether any AppliesTo tag is collection-valued.
func (o Operator) IsArray() bool {
	for _, tag := range o.AppliesTo {
		if strings.HasPrefix(tag, arrayTagPrefix) {
			return true
		}
	}
	return false
}

// Applies reports whether the operator carries the given tag.
func (o Operator) Applies(tag string) bool {
	for _, t := range o.AppliesTo {
		if t == tag {
			return true
		}
	}
	return false
}

// DataType is the declared primitive type of a condition value.
type DataType string

const (
	DataTypeString   DataType = "string"
	DataTypeNumber   DataType = "number"
	DataTypeDatetime DataType = "datetime"
)

// Valid reports whether d is a known data type.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeString, DataTypeNumber, DataTypeDatetime:
		return true
	}
	return false
}

// FormatIP marks string conditions holding IP address lists.
const FormatIP = "ip"

// ConditionDef describes a discoverable named condition.
type ConditionDef struct {
	Name        string   `json:"name" yaml:"name" db:"name"`
	Label       string   `json:"label,omitempty" yaml:"label,omitempty" db:"label"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" db:"description"`
	DataType    DataType `json:"dataType" yaml:"dataType" db:"data_type"`
	Format      string   `json:"format,omitempty" yaml:"format,omitempty" db:"format"`
}

// IsIPAddress reports whether values of this condition must be IP lists.
// Catalogs that predate the format field are recognised by name.
func (c ConditionDef) IsIPAddress() bool {
	if c.DataType != DataTypeString && c.DataType != "" {
		return false
	}
	if c.Format == FormatIP {
		return true
	}
	name := strings.ToLower(c.Name)
	return name == "ip" || strings.HasSuffix(name, "ip_address") || strings.HasSuffix(name, "_ip")
}

// ResourceType is a policy-protected resource kind (e.g. "device", "contract").
type ResourceType struct {
	Name  string `json:"name" yaml:"name" db:"name"`
	Label string `json:"label,omitempty" yaml:"label,omitempty" db:"label"`
}

// Role is a user role offered by the role matcher.
type Role struct {
	Name  string `json:"name" yaml:"name" db:"name"`
	Level int    `json:"level" yaml:"level" db:"level"`
}

// Department is a department offered by the department matcher.
type Department struct {
	Name string `json:"name" yaml:"name" db:"name"`
	Code string `json:"code" yaml:"code" db:"code"`
}

// Effect is the policy outcome.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Valid reports whether e is a known effect.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// Policy is a named predicate submitted to the policy backend.
type Policy struct {
	ID          PolicyID  `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Effect      Effect    `json:"effect"`
	Actions     []string  `json:"actions,omitempty"`
	Predicate   Predicate `json:"predicate"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
