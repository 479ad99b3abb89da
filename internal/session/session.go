// Package session builds the immutable reference-data snapshot a policy form
// works against.
//
// A Session is created once per form open and never mutated afterwards. The
// builder and the reverse parser read operators and condition definitions
// from it instead of from ambient state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/policykit/internal/catalog"
	"github.com/solatis/policykit/internal/types"
)

// Options configures a session.
type Options struct {
	// Location interprets datetime condition values without an offset.
	// Nil means UTC.
	Location *time.Location

	// Now stamps OpenedAt. Nil means time.Now.
	Now func() time.Time
}

// Session is a read-only snapshot of reference data.
type Session struct {
	operators     []types.Operator
	operatorIndex map[string]types.Operator
	resourceTypes []types.ResourceType
	conditions    []types.ConditionDef
	conditionIdx  map[string]types.ConditionDef
	roles         []types.Role
	departments   []types.Department
	location      *time.Location
	fetchErrors   map[catalog.Kind]error
	openedAt      time.Time
}

// Open fetches every catalog from src concurrently. A failing catalog is
// recorded (see FetchError) and left empty; Open itself only fails when ctx
// is done.
func Open(ctx context.Context, src catalog.Source, opts Options) (*Session, error) {
	var (
		snap catalog.Snapshot
		errs [5]error
	)

	// Errors are collected per catalog, so goroutines never return one and
	// the group never cancels siblings.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap.Operators, errs[0] = src.Operators(gctx)
		return nil
	})
	g.Go(func() error {
		snap.ResourceTypes, errs[1] = src.ResourceTypes(gctx)
		return nil
	})
	g.Go(func() error {
		snap.Conditions, errs[2] = src.Conditions(gctx)
		return nil
	})
	g.Go(func() error {
		snap.Roles, errs[3] = src.Roles(gctx)
		return nil
	})
	g.Go(func() error {
		snap.Departments, errs[4] = src.Departments(gctx)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := New(snap, opts)
	for i, kind := range catalog.Kinds {
		if errs[i] != nil {
			s.fetchErrors[kind] = errs[i]
		}
	}
	return s, nil
}

// New builds a session from an already loaded snapshot.
func New(snap catalog.Snapshot, opts Options) *Session {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		operators:     append([]types.Operator(nil), snap.Operators...),
		operatorIndex: make(map[string]types.Operator, len(snap.Operators)),
		resourceTypes: append([]types.ResourceType(nil), snap.ResourceTypes...),
		conditions:    append([]types.ConditionDef(nil), snap.Conditions...),
		conditionIdx:  make(map[string]types.ConditionDef, len(snap.Conditions)),
		roles:         append([]types.Role(nil), snap.Roles...),
		departments:   append([]types.Department(nil), snap.Departments...),
		location:      loc,
		fetchErrors:   make(map[catalog.Kind]error),
		openedAt:      now(),
	}
	for _, op := range s.operators {
		s.operatorIndex[op.Name] = op
	}
	for _, c := range s.conditions {
		s.conditionIdx[c.Name] = c
	}
	return s
}

// Operator looks up an operator by name.
func (s *Session) Operator(name string) (types.Operator, bool) {
	op, ok := s.operatorIndex[name]
	return op, ok
}

// Condition looks up a condition definition by name.
func (s *Session) Condition(name string) (types.ConditionDef, bool) {
	c, ok := s.conditionIdx[name]
	return c, ok
}

// Operators returns the operator catalog in source order.
func (s *Session) Operators() []types.Operator {
	return append([]types.Operator(nil), s.operators...)
}

// ResourceTypes returns the resource type catalog in source order.
func (s *Session) ResourceTypes() []types.ResourceType {
	return append([]types.ResourceType(nil), s.resourceTypes...)
}

// Conditions returns the condition definitions in source order.
func (s *Session) Conditions() []types.ConditionDef {
	return append([]types.ConditionDef(nil), s.conditions...)
}

// Roles returns the role catalog in source order.
func (s *Session) Roles() []types.Role {
	return append([]types.Role(nil), s.roles...)
}

// Departments returns the department catalog in source order.
func (s *Session) Departments() []types.Department {
	return append([]types.Department(nil), s.departments...)
}

// Location is the zone for offset-less datetime values.
func (s *Session) Location() *time.Location {
	return s.location
}

// OpenedAt is when the snapshot was taken.
func (s *Session) OpenedAt() time.Time {
	return s.openedAt
}

// FetchError returns the error recorded for kind, if any.
func (s *Session) FetchError(kind catalog.Kind) error {
	return s.fetchErrors[kind]
}

// buildCatalogs shape every clause the builder emits. Without them operators
// degrade to scalar strings and conditions lose coercion.
var buildCatalogs = []catalog.Kind{catalog.KindOperators, catalog.KindConditions}

// CheckBuildable returns types.ErrCatalogUnavailable when a catalog the
// builder depends on failed to load. Roles, departments and resource types
// only feed pickers and never block a build.
func (s *Session) CheckBuildable() error {
	for _, kind := range buildCatalogs {
		err := s.fetchErrors[kind]
		if err == nil {
			continue
		}
		if errors.Is(err, types.ErrCatalogUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", types.ErrCatalogUnavailable, kind, err)
	}
	return nil
}

// Degraded reports whether any catalog failed to load.
func (s *Session) Degraded() bool {
	return len(s.fetchErrors) > 0
}

type sessionJSON struct {
	Operators     []types.Operator        `json:"operators"`
	ResourceTypes []types.ResourceType    `json:"resourceTypes"`
	Conditions    []types.ConditionDef    `json:"conditions"`
	Roles         []types.Role            `json:"roles"`
	Departments   []types.Department      `json:"departments"`
	Timezone      string                  `json:"timezone"`
	OpenedAt      time.Time               `json:"openedAt"`
	Errors        map[catalog.Kind]string `json:"errors,omitempty"`
}

// MarshalJSON implements json.Marshaler. Fetch errors are reported per
// catalog so a client can offer a retry next to the affected field.
func (s *Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		Operators:     nonNil(s.operators),
		ResourceTypes: nonNil(s.resourceTypes),
		Conditions:    nonNil(s.conditions),
		Roles:         nonNil(s.roles),
		Departments:   nonNil(s.departments),
		Timezone:      s.location.String(),
		OpenedAt:      s.openedAt,
	}
	if len(s.fetchErrors) > 0 {
		out.Errors = make(map[catalog.Kind]string, len(s.fetchErrors))
		for k, err := range s.fetchErrors {
			out.Errors[k] = err.Error()
		}
	}
	return json.Marshal(out)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
