package api

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solatis/policykit/internal/catalog"
	"github.com/solatis/policykit/internal/predicate"
	"github.com/solatis/policykit/internal/types"
)

var createdAt = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// memRepo is an in-memory PolicyRepository. Like the real stores it stamps
// creation metadata on insert and preserves it on update.
type memRepo struct {
	mu       sync.Mutex
	policies map[types.PolicyID]types.Policy
	fail     error
}

func newMemRepo() *memRepo {
	return &memRepo{policies: make(map[types.PolicyID]types.Policy)}
}

func (r *memRepo) CreatePolicy(_ context.Context, p *types.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if p.ID == "" {
		p.ID = types.NewPolicyID()
	}
	p.CreatedAt, p.UpdatedAt = createdAt, createdAt
	r.policies[p.ID] = *p
	return nil
}

func (r *memRepo) UpdatePolicy(_ context.Context, p *types.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	prev, ok := r.policies[p.ID]
	if !ok {
		return types.ErrPolicyNotFound
	}
	stored := *p
	stored.CreatedBy, stored.CreatedAt = prev.CreatedBy, prev.CreatedAt
	stored.UpdatedAt = createdAt.Add(time.Hour)
	r.policies[p.ID] = stored
	return nil
}

func (r *memRepo) GetPolicy(_ context.Context, id types.PolicyID) (*types.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.policies[id]
	if !ok {
		return nil, types.ErrPolicyNotFound
	}
	return &p, nil
}

func (r *memRepo) ListPolicies(context.Context) ([]types.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	var out []types.Policy
	for _, p := range r.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var errBackendDown = errors.New("backend unreachable")

// failingCatalogs serves testSnapshot except for the operator and condition
// catalogs, which fail.
type failingCatalogs struct {
	*catalog.Static
}

func (failingCatalogs) Operators(context.Context) ([]types.Operator, error) {
	return nil, errBackendDown
}

func (failingCatalogs) Conditions(context.Context) ([]types.ConditionDef, error) {
	return nil, errBackendDown
}

func testSnapshot() catalog.Snapshot {
	return catalog.Snapshot{
		Operators: []types.Operator{
			{Name: "$eq", AppliesTo: []string{types.AppliesString, types.AppliesNumber}},
			{Name: "$in", AppliesTo: []string{types.AppliesArrayString, types.AppliesArrayNumber}},
		},
		ResourceTypes: []types.ResourceType{{Name: "device"}},
		Conditions: []types.ConditionDef{
			{Name: "ip_address", DataType: types.DataTypeString, Format: types.FormatIP},
		},
		Roles: []types.Role{{Name: "admin", Level: 10}},
	}
}

func newTestService(t *testing.T) (*PolicyService, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	svc, err := NewPolicyService(catalog.NewStatic(testSnapshot()), repo, nil, nil)
	require.NoError(t, err)
	return svc, repo
}

// adminForm selects role.name $in [admin].
func adminForm() predicate.FormState {
	form := predicate.NewFormState()
	form.Role.Enabled = true
	form.Role.Operator = "$in"
	form.Role.ListValues = []string{"admin"}
	return form
}
