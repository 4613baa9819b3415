package service

import (
	"context"
	"sort"
	"sync"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
)

// MemoryStateStore 单实例模式下的状态存储，保存的是不可变快照
type MemoryStateStore struct {
	mu    sync.RWMutex
	state *model.State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{state: model.NewState()}
}

func (s *MemoryStateStore) Load(ctx context.Context) (*model.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

func (s *MemoryStateStore) Save(ctx context.Context, expectedVersion uint64, next *model.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// 版本号比对，等价于 CAS
	if s.state.Version != expectedVersion {
		return apperrors.Conflict("state version moved during the operation")
	}
	s.state = next.Clone()
	return nil
}

// MemoryPolicyRepo 保存所有策略版本
type MemoryPolicyRepo struct {
	mu       sync.RWMutex
	versions []*model.Policy
}

func NewMemoryPolicyRepo() *MemoryPolicyRepo {
	return &MemoryPolicyRepo{}
}

func (r *MemoryPolicyRepo) Latest(ctx context.Context) (*model.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.versions) == 0 {
		return nil, nil
	}
	return r.versions[len(r.versions)-1].Clone(), nil
}

func (r *MemoryPolicyRepo) Append(ctx context.Context, p *model.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.versions); n > 0 && r.versions[n-1].Version >= p.Version {
		return apperrors.Conflict("policy version already exists")
	}
	r.versions = append(r.versions, p.Clone())
	return nil
}

// MemoryRoleStore 能力授予表
type MemoryRoleStore struct {
	mu     sync.RWMutex
	grants map[common.Address]map[model.Role]struct{}
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{grants: make(map[common.Address]map[model.Role]struct{})}
}

func (s *MemoryRoleStore) Grant(ctx context.Context, account common.Address, role model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles, ok := s.grants[account]
	if !ok {
		roles = make(map[model.Role]struct{})
		s.grants[account] = roles
	}
	roles[role] = struct{}{}
	return nil
}

func (s *MemoryRoleStore) Revoke(ctx context.Context, account common.Address, role model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[account], role)
	return nil
}

func (s *MemoryRoleStore) Has(ctx context.Context, account common.Address, role model.Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[account][role]
	return ok, nil
}

func (s *MemoryRoleStore) List(ctx context.Context, account common.Address) ([]model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Role, 0, len(s.grants[account]))
	for r := range s.grants[account] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
