// Package catalog provides access to the reference data a policy form is
// built from: operators, resource types, conditions, roles and departments.
//
// Sources are the REST backend (internal/backend) or the local database
// (internal/core/db). Cache layers a stale-time window over any Source.
package catalog

import (
	"context"

	"github.com/solatis/policykit/internal/types"
)

// Kind names one reference-data catalog.
type Kind string

const (
	KindOperators     Kind = "operators"
	KindResourceTypes Kind = "resource_types"
	KindConditions    Kind = "conditions"
	KindRoles         Kind = "roles"
	KindDepartments   Kind = "departments"
)

// Kinds lists every catalog in fetch order.
var Kinds = []Kind{KindOperators, KindResourceTypes, KindConditions, KindRoles, KindDepartments}

// Source fetches reference data. Each method is independent; a failure in
// one catalog says nothing about the others.
type Source interface {
	Operators(ctx context.Context) ([]types.Operator, error)
	ResourceTypes(ctx context.Context) ([]types.ResourceType, error)
	Conditions(ctx context.Context) ([]types.ConditionDef, error)
	Roles(ctx context.Context) ([]types.Role, error)
	Departments(ctx context.Context) ([]types.Department, error)
}

// Snapshot is a complete set of reference data. Seed files decode into it.
type Snapshot struct {
	Operators     []types.Operator     `json:"operators" yaml:"operators"`
	ResourceTypes []types.ResourceType `json:"resourceTypes" yaml:"resourceTypes"`
	Conditions    []types.ConditionDef `json:"conditions" yaml:"conditions"`
	Roles         []types.Role         `json:"roles" yaml:"roles"`
	Departments   []types.Department   `json:"departments" yaml:"departments"`
}

// Static serves a fixed Snapshot as a Source.
type Static struct {
	Snapshot Snapshot
}

// NewStatic returns a Source backed by snap.
func NewStatic(snap Snapshot) *Static {
	return &Static{Snapshot: snap}
}

func (s *Static) Operators(context.Context) ([]types.Operator, error) {
	return s.Snapshot.Operators, nil
}

func (s *Static) ResourceTypes(context.Context) ([]types.ResourceType, error) {
	return s.Snapshot.ResourceTypes, nil
}

func (s *Static) Conditions(context.Context) ([]types.ConditionDef, error) {
	return s.Snapshot.Conditions, nil
}

func (s *Static) Roles(context.Context) ([]types.Role, error) {
	return s.Snapshot.Roles, nil
}

func (s *Static) Departments(context.Context) ([]types.Department, error) {
	return s.Snapshot.Departments, nil
}
