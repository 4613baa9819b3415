package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
)

// PolicyStore holds the policy in effect. Readers take the pointer once at the
// start of an operation and never observe a half-applied update.
type PolicyStore struct {
	current atomic.Pointer[model.Policy]
	writeMu sync.Mutex
	repo    PolicyRepo
}

// NewPolicyStore loads the latest persisted version, seeding the repo with
// initial when nothing has been stored yet.
func NewPolicyStore(ctx context.Context, repo PolicyRepo, initial *model.Policy) (*PolicyStore, error) {
	if repo == nil {
		repo = NewMemoryPolicyRepo()
	}
	s := &PolicyStore{repo: repo}
	latest, err := repo.Latest(ctx)
	if err != nil {
		return nil, apperrors.Internal("load policy", err)
	}
	if latest == nil {
		if initial == nil {
			return nil, apperrors.Invalid(apperrors.CodeInvalidConfig, "no policy configured")
		}
		if err := initial.Validate(); err != nil {
			return nil, apperrors.Invalid(apperrors.CodeInvalidConfig, err.Error())
		}
		latest = initial.Clone()
		if latest.Version == 0 {
			latest.Version = 1
		}
		if err := repo.Append(ctx, latest); err != nil {
			return nil, err
		}
	}
	s.current.Store(latest)
	return s, nil
}

func (s *PolicyStore) Current() *model.Policy {
	return s.current.Load()
}

// Refresh picks up a newer version appended by another instance sharing the
// repo and returns the policy now in effect.
func (s *PolicyStore) Refresh(ctx context.Context) (*model.Policy, error) {
	latest, err := s.repo.Latest(ctx)
	if err != nil {
		return nil, apperrors.Internal("load policy", err)
	}
	for {
		cur := s.current.Load()
		if latest == nil || latest.Version <= cur.Version {
			return cur, nil
		}
		if s.current.CompareAndSwap(cur, latest) {
			return latest, nil
		}
	}
}

// Update applies mutate to a copy, validates it and publishes it as the next version.
func (s *PolicyStore) Update(ctx context.Context, now time.Time, mutate func(p *model.Policy) error) (*model.Policy, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base, err := s.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	next := base.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, apperrors.Invalid(apperrors.CodeInvalidConfig, err.Error())
	}
	next.Version++
	next.UpdatedAt = now
	if err := s.repo.Append(ctx, next); err != nil {
		return nil, err
	}
	s.current.Store(next)
	return next, nil
}
