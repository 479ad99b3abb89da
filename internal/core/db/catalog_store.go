package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/solatis/policykit/internal/catalog"
	"github.com/solatis/policykit/internal/types"
)

// CatalogStore serves reference catalogs from the local database.
type CatalogStore struct {
	queries *Queries
}

// NewCatalogStore creates a catalog store over loaded queries.
func NewCatalogStore(q *Queries) *CatalogStore {
	return &CatalogStore{queries: q}
}

type operatorRow struct {
	Name        string `db:"name"`
	Description string `db:"description"`
	AppliesTo   string `db:"applies_to"`
}

func (s *CatalogStore) Operators(ctx context.Context) ([]types.Operator, error) {
	var rows []operatorRow
	if err := s.queries.Select(ctx, "list-operators", &rows); err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}
	ops := make([]types.Operator, 0, len(rows))
	for _, r := range rows {
		op := types.Operator{Name: r.Name, Description: r.Description}
		if err := json.Unmarshal([]byte(r.AppliesTo), &op.AppliesTo); err != nil {
			return nil, fmt.Errorf("operator %s: invalid applies_to: %w", r.Name, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (s *CatalogStore) ResourceTypes(ctx context.Context) ([]types.ResourceType, error) {
	var out []types.ResourceType
	if err := s.queries.Select(ctx, "list-resource-types", &out); err != nil {
		return nil, fmt.Errorf("failed to list resource types: %w", err)
	}
	return out, nil
}

func (s *CatalogStore) Conditions(ctx context.Context) ([]types.ConditionDef, error) {
	var out []types.ConditionDef
	if err := s.queries.Select(ctx, "list-conditions", &out); err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	return out, nil
}

func (s *CatalogStore) Roles(ctx context.Context) ([]types.Role, error) {
	var out []types.Role
	if err := s.queries.Select(ctx, "list-roles", &out); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return out, nil
}

func (s *CatalogStore) Departments(ctx context.Context) ([]types.Department, error) {
	var out []types.Department
	if err := s.queries.Select(ctx, "list-departments", &out); err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	return out, nil
}

// ImportSeed replaces every catalog with the contents of snap in one
// transaction. Source order is kept in the position column.
func (s *CatalogStore) ImportSeed(ctx context.Context, snap catalog.Snapshot) error {
	if err := catalog.ValidateSnapshot(snap); err != nil {
		return err
	}

	return s.queries.InTx(ctx, func(tx *Queries) error {
		for _, name := range []string{
			"delete-operators",
			"delete-resource-types",
			"delete-conditions",
			"delete-roles",
			"delete-departments",
		} {
			if _, err := tx.Exec(ctx, name); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}

		for i, op := range snap.Operators {
			appliesTo, err := json.Marshal(op.AppliesTo)
			if err != nil {
				return fmt.Errorf("operator %s: %w", op.Name, err)
			}
			if _, err := tx.Exec(ctx, "insert-operator", op.Name, op.Description, string(appliesTo), i); err != nil {
				return fmt.Errorf("insert operator %s: %w", op.Name, err)
			}
		}
		for i, rt := range snap.ResourceTypes {
			if _, err := tx.Exec(ctx, "insert-resource-type", rt.Name, rt.Label, i); err != nil {
				return fmt.Errorf("insert resource type %s: %w", rt.Name, err)
			}
		}
		for i, c := range snap.Conditions {
			if _, err := tx.Exec(ctx, "insert-condition", c.Name, c.Label, c.Description, string(c.DataType), c.Format, i); err != nil {
				return fmt.Errorf("insert condition %s: %w", c.Name, err)
			}
		}
		for i, r := range snap.Roles {
			if _, err := tx.Exec(ctx, "insert-role", r.Name, r.Level, i); err != nil {
				return fmt.Errorf("insert role %s: %w", r.Name, err)
			}
		}
		for i, d := range snap.Departments {
			if _, err := tx.Exec(ctx, "insert-department", d.Name, d.Code, i); err != nil {
				return fmt.Errorf("insert department %s: %w", d.Name, err)
			}
		}
		return nil
	})
}
