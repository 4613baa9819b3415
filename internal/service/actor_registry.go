package service

import (
	"sort"
	"sync"

	"github.com/GoPolymarket/burngate/internal/config"
	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// ActorRegistry 管理调用方身份 (API Key -> Actor) 以及各自的限流器
type ActorRegistry struct {
	mu           sync.RWMutex
	actors       map[string]*model.Actor          // Key: API Key
	limiters     map[common.Address]*rate.Limiter // Key: Actor 地址
	defaultActor *model.Actor
}

func NewActorRegistry(cfg *config.Config) *ActorRegistry {
	r := &ActorRegistry{
		actors:   make(map[string]*model.Actor),
		limiters: make(map[common.Address]*rate.Limiter),
	}
	for _, ac := range cfg.Actors {
		actor := &model.Actor{
			Name:    ac.Name,
			Address: common.HexToAddress(ac.Address),
			APIKey:  ac.APIKey,
			Rate: model.RateLimitConfig{
				QPS:   ac.QPS,
				Burst: ac.Burst,
			},
		}
		r.Register(actor)
		// 未强制 API Key 时，第一个配置的调用方作为默认身份（单机调试用）
		if !cfg.Auth.RequireAPIKey && r.defaultActor == nil {
			r.defaultActor = actor
		}
	}
	return r
}

func (r *ActorRegistry) Register(a *model.Actor) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors[a.APIKey] = a

	// 配置为 0 视为不限流
	limit := rate.Limit(a.Rate.QPS)
	if limit == 0 {
		limit = rate.Inf
	}
	burst := a.Rate.Burst
	if burst == 0 {
		burst = 1
	}
	r.limiters[a.Address] = rate.NewLimiter(limit, burst)
}

func (r *ActorRegistry) ByAPIKey(apiKey string) (*model.Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[apiKey]
	return a, ok
}

func (r *ActorRegistry) DefaultActor() *model.Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultActor
}

// LimiterFor 获取调用方的限流器
func (r *ActorRegistry) LimiterFor(addr common.Address) *rate.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[addr]
}

// List returns the registered actors ordered by name.
func (r *ActorRegistry) List() []*model.Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Actor, 0, len(r.actors))
	for _, a := range r.actors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
