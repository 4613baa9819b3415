package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
)

// EngineDeps wires the engine. State, Policies, Roles, Oracle and Venue are required.
type EngineDeps struct {
	State    StateRepo
	Policies *PolicyStore
	Roles    RoleRepo
	Oracle   PriceOracle
	Venue    MarketVenue
	Mover    LiquidityMover
	Events   EventPublisher
	Locker   Locker
	Clock    Clock

	OracleTimeout time.Duration
	VenueTimeout  time.Duration
	LockTTL       time.Duration
}

// Engine runs every value-moving operation. Operations are serialized by mu
// and staged on a clone of the committed state; nothing is visible until Save.
type Engine struct {
	mu       sync.Mutex
	state    StateRepo
	policies *PolicyStore
	roles    RoleRepo
	guard    *Guard
	oracle   PriceOracle
	venue    MarketVenue
	mover    LiquidityMover
	events   EventPublisher
	locker   Locker
	clock    Clock

	oracleTimeout time.Duration
	venueTimeout  time.Duration
	lockTTL       time.Duration
	log           *slog.Logger
}

func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.State == nil || deps.Policies == nil || deps.Roles == nil || deps.Oracle == nil || deps.Venue == nil {
		return nil, errors.New("engine: state, policies, roles, oracle and venue are required")
	}
	e := &Engine{
		state:         deps.State,
		policies:      deps.Policies,
		roles:         deps.Roles,
		guard:         NewGuard(deps.Roles),
		oracle:        deps.Oracle,
		venue:         deps.Venue,
		mover:         deps.Mover,
		events:        deps.Events,
		locker:        deps.Locker,
		clock:         deps.Clock,
		oracleTimeout: deps.OracleTimeout,
		venueTimeout:  deps.VenueTimeout,
		lockTTL:       deps.LockTTL,
		log:           logger.Component("engine"),
	}
	if e.mover == nil {
		e.mover = NoopMover{}
	}
	if e.locker == nil {
		e.locker = noopLocker{}
	}
	if e.clock == nil {
		e.clock = NewMonotonicClock()
	}
	if e.oracleTimeout <= 0 {
		e.oracleTimeout = 5 * time.Second
	}
	if e.venueTimeout <= 0 {
		e.venueTimeout = 10 * time.Second
	}
	if e.lockTTL <= 0 {
		e.lockTTL = 30 * time.Second
	}
	return e, nil
}

// Policy returns the policy currently in effect.
func (e *Engine) Policy() *model.Policy {
	return e.policies.Current()
}

// txn is one staged unit of work.
type txn struct {
	ctx    context.Context
	actor  common.Address
	policy *model.Policy
	now    time.Time
	next   *model.State
	events []*model.Event
	// external is set once value has moved outside the engine (a venue fill or
	// a liquidity move). A failed commit after that needs reconciliation.
	external bool
}

func (tx *txn) emit(t model.EventType) *model.Event {
	ev := model.NewEvent(t, tx.actor, tx.now)
	ev.PolicyVersion = tx.policy.Version
	tx.events = append(tx.events, ev)
	return ev
}

// transact runs fn against a staged copy of the state and commits it atomically.
func (e *Engine) transact(ctx context.Context, op string, actor common.Address, fn func(tx *txn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	unlock, err := e.locker.Lock(ctx, e.lockTTL)
	if err != nil {
		return apperrors.New(apperrors.ErrConflict, apperrors.CodeStateConflict, "engine is locked by another writer", err)
	}
	defer unlock()

	// 其他实例可能已经发布了新版本策略，拿到锁之后再读
	policy, err := e.policies.Refresh(ctx)
	if err != nil {
		return err
	}
	current, err := e.state.Load(ctx)
	if err != nil {
		return apperrors.Internal("load state", err)
	}
	tx := &txn{
		ctx:    ctx,
		actor:  actor,
		policy: policy,
		now:    e.clock.Now(),
		next:   current.Clone(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.next.CheckInvariants(); err != nil {
		e.log.Error("invariant check failed, discarding staged state", "op", op, "error", err)
		return apperrors.New(apperrors.ErrInternal, apperrors.CodeInvariantViolation, err.Error(), nil)
	}
	tx.next.Version = current.Version + 1
	if err := e.state.Save(ctx, current.Version, tx.next); err != nil {
		if tx.external {
			// value already left the engine; the ledger must be reconciled by hand
			e.log.Error("commit failed after external transfer, reconciliation required",
				"op", op, "state_version", current.Version, "error", err)
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperrors.Internal("save state", err)
	}
	for _, ev := range tx.events {
		ev.StateVersion = tx.next.Version
		if e.events != nil {
			e.events.Publish(ev)
		}
	}
	return nil
}

// snapshot returns the committed state for read-only queries.
func (e *Engine) snapshot(ctx context.Context) (*model.State, error) {
	st, err := e.state.Load(ctx)
	if err != nil {
		return nil, apperrors.Internal("load state", err)
	}
	return st, nil
}
