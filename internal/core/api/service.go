// Package api provides the policy builder service and its gRPC transport.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solatis/policykit/internal/catalog"
	"github.com/solatis/policykit/internal/core/auth"
	"github.com/solatis/policykit/internal/core/metrics"
	"github.com/solatis/policykit/internal/predicate"
	"github.com/solatis/policykit/internal/session"
	"github.com/solatis/policykit/internal/types"
)

// Submission field identifiers, alongside the predicate.Field* ones.
const (
	FieldID     = "id"
	FieldName   = "name"
	FieldEffect = "effect"
)

// PolicyRepository persists policies. Implemented by *backend.Client and
// *db.PolicyStore.
type PolicyRepository interface {
	CreatePolicy(ctx context.Context, p *types.Policy) error
	UpdatePolicy(ctx context.Context, p *types.Policy) error
	GetPolicy(ctx context.Context, id types.PolicyID) (*types.Policy, error)
	ListPolicies(ctx context.Context) ([]types.Policy, error)
}

// PolicyDraft is a policy form as submitted. An empty ID creates a policy,
// a set ID updates it.
type PolicyDraft struct {
	ID          string              `json:"id,omitempty"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Effect      types.Effect        `json:"effect"`
	Actions     []string            `json:"actions,omitempty"`
	Form        predicate.FormState `json:"form"`
}

// PolicyView is a stored policy plus the form state reconstructed from it.
type PolicyView struct {
	Policy *types.Policy        `json:"policy"`
	Form   predicate.FormState `json:"form"`
}

// PolicyService implements the builder workflow: open, build, parse, submit.
// Thin orchestration layer delegating to session, predicate and the
// repository.
type PolicyService struct {
	catalog  catalog.Source
	policies PolicyRepository
	location *time.Location
	logger   *slog.Logger
}

// NewPolicyService creates service instance with dependencies.
// A nil location means UTC.
func NewPolicyService(src catalog.Source, repo PolicyRepository, loc *time.Location, logger *slog.Logger) (*PolicyService, error) {
	if src == nil {
		return nil, fmt.Errorf("catalog source cannot be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("policy repository cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyService{catalog: src, policies: repo, location: loc, logger: logger}, nil
}

// OpenSession snapshots the reference catalogs. Catalogs that fail to load
// are left empty and reported on the session.
func (s *PolicyService) OpenSession(ctx context.Context) (*session.Session, error) {
	sess, err := session.Open(ctx, s.catalog, session.Options{Location: s.location})
	if err != nil {
		return nil, err
	}
	for _, kind := range catalog.Kinds {
		if ferr := sess.FetchError(kind); ferr != nil {
			s.logger.Warn("catalog unavailable for session", "catalog", kind, "error", ferr)
		}
	}
	return sess, nil
}

// BuildPredicate opens a session and builds the predicate for form. It
// fails with types.ErrCatalogUnavailable when operators or conditions could
// not be loaded.
func (s *PolicyService) BuildPredicate(ctx context.Context, form predicate.FormState) (types.Predicate, error) {
	sess, err := s.OpenSession(ctx)
	if err != nil {
		return types.Predicate{}, err
	}
	if err := sess.CheckBuildable(); err != nil {
		return types.Predicate{}, err
	}
	return predicate.Build(sess, form)
}

// ParsePredicate reconstructs form state from predicate JSON.
func (s *PolicyService) ParsePredicate(_ context.Context, raw []byte) (predicate.FormState, error) {
	form, err := predicate.Parse(raw)
	if err != nil {
		return predicate.FormState{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	return form, nil
}

// SubmitPolicy validates draft and persists it. Every invalid field, policy
// metadata included, is reported in one *predicate.ValidationError; nothing
// is stored unless the whole draft is valid.
func (s *PolicyService) SubmitPolicy(ctx context.Context, draft PolicyDraft) (*types.Policy, error) {
	verr := &predicate.ValidationError{}

	var id types.PolicyID
	if draft.ID != "" {
		parsed, err := types.ParsePolicyID(draft.ID)
		if err != nil {
			verr.Add(FieldID, err.Error())
		}
		id = parsed
	}
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		verr.Add(FieldName, "name is required")
	}
	if !draft.Effect.Valid() {
		verr.Add(FieldEffect, fmt.Sprintf("effect must be %q or %q", types.EffectAllow, types.EffectDeny))
	}

	sess, err := s.OpenSession(ctx)
	if err == nil {
		err = sess.CheckBuildable()
	}
	if err != nil {
		metrics.PolicySubmissions.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	pred, err := predicate.Build(sess, draft.Form)
	var formErr *predicate.ValidationError
	switch {
	case errors.As(err, &formErr):
		verr.Merge(formErr)
	case err != nil:
		metrics.PolicySubmissions.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	if verr.HasErrors() {
		metrics.PolicySubmissions.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, verr
	}

	p := &types.Policy{
		ID:          id,
		Name:        name,
		Description: draft.Description,
		Effect:      draft.Effect,
		Actions:     draft.Actions,
		Predicate:   pred,
	}
	if id == "" {
		p.CreatedBy = auth.PrincipalFromContext(ctx)
		err = s.policies.CreatePolicy(ctx, p)
	} else {
		p, err = s.update(ctx, p)
	}
	if err != nil {
		metrics.PolicySubmissions.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	metrics.PolicySubmissions.WithLabelValues(metrics.OutcomeOK).Inc()
	s.logger.Info("policy submitted", "id", p.ID, "name", p.Name, "effect", p.Effect,
		"principal", auth.PrincipalFromContext(ctx))
	return p, nil
}

// update rewrites p and returns the stored policy, so creation metadata the
// repository preserved is reported instead of zero values.
func (s *PolicyService) update(ctx context.Context, p *types.Policy) (*types.Policy, error) {
	if err := s.policies.UpdatePolicy(ctx, p); err != nil {
		return nil, err
	}
	stored, err := s.policies.GetPolicy(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload policy %s: %w", p.ID, err)
	}
	return stored, nil
}

// GetPolicy loads a policy and reverse-parses its predicate.
func (s *PolicyService) GetPolicy(ctx context.Context, id string) (*PolicyView, error) {
	pid, err := types.ParsePolicyID(id)
	if err != nil {
		return nil, err
	}
	p, err := s.policies.GetPolicy(ctx, pid)
	if err != nil {
		return nil, err
	}
	return &PolicyView{Policy: p, Form: predicate.ParsePredicate(p.Predicate)}, nil
}

// ListPolicies returns every stored policy.
func (s *PolicyService) ListPolicies(ctx context.Context) ([]types.Policy, error) {
	policies, err := s.policies.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	if policies == nil {
		policies = []types.Policy{}
	}
	return policies, nil
}
