package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/policykit/internal/types"
)

// PolicyStore persists policies locally. Predicates are stored as JSON text
// exactly as they would be submitted to the backend.
type PolicyStore struct {
	queries *Queries
	now     func() time.Time
}

// NewPolicyStore creates a policy store over loaded queries.
func NewPolicyStore(q *Queries) *PolicyStore {
	return &PolicyStore{queries: q, now: time.Now}
}

type policyRow struct {
	ID          string    `db:"policy_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Effect      string    `db:"effect"`
	Actions     string    `db:"actions"`
	Predicate   string    `db:"predicate"`
	CreatedBy   string    `db:"created_by"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r policyRow) toPolicy() (*types.Policy, error) {
	p := &types.Policy{
		ID:          types.PolicyID(r.ID),
		Name:        r.Name,
		Description: r.Description,
		Effect:      types.Effect(r.Effect),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		Predicate:   types.NewPredicate(),
	}
	if err := json.Unmarshal([]byte(r.Predicate), &p.Predicate); err != nil {
		return nil, fmt.Errorf("policy %s: invalid stored predicate: %w", r.ID, err)
	}
	if r.Actions != "" {
		if err := json.Unmarshal([]byte(r.Actions), &p.Actions); err != nil {
			return nil, fmt.Errorf("policy %s: invalid stored actions: %w", r.ID, err)
		}
	}
	return p, nil
}

func encodePolicy(p *types.Policy) (actions, predicate string, err error) {
	a := p.Actions
	if a == nil {
		a = []string{}
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return "", "", err
	}
	pb, err := json.Marshal(p.Predicate)
	if err != nil {
		return "", "", err
	}
	return string(ab), string(pb), nil
}

// CreatePolicy inserts p, assigning ID and timestamps when unset.
func (s *PolicyStore) CreatePolicy(ctx context.Context, p *types.Policy) error {
	if p.ID == "" {
		p.ID = types.NewPolicyID()
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	actions, predicate, err := encodePolicy(p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	_, err = s.queries.Exec(ctx, "insert-policy",
		string(p.ID), p.Name, p.Description, string(p.Effect), actions, predicate, p.CreatedBy, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}
	return nil
}

// UpdatePolicy rewrites an existing policy. CreatedAt and CreatedBy are
// preserved by the store.
func (s *PolicyStore) UpdatePolicy(ctx context.Context, p *types.Policy) error {
	now := s.now().UTC()
	actions, predicate, err := encodePolicy(p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	res, err := s.queries.Exec(ctx, "update-policy",
		p.Name, p.Description, string(p.Effect), actions, predicate, now, string(p.ID))
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrPolicyNotFound, p.ID)
	}
	p.UpdatedAt = now
	return nil
}

// GetPolicy loads one policy.
func (s *PolicyStore) GetPolicy(ctx context.Context, id types.PolicyID) (*types.Policy, error) {
	var row policyRow
	err := s.queries.Get(ctx, "get-policy", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrPolicyNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return row.toPolicy()
}

// ListPolicies returns every policy ordered by ID (creation order for UUIDv7).
func (s *PolicyStore) ListPolicies(ctx context.Context) ([]types.Policy, error) {
	var rows []policyRow
	if err := s.queries.Select(ctx, "list-policies", &rows); err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	out := make([]types.Policy, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPolicy()
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}
