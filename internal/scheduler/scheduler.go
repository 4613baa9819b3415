package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoPolymarket/burngate/internal/config"
	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/logger"
	"github.com/GoPolymarket/burngate/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
)

// Engine is the subset of service.Engine the keeper jobs drive.
type Engine interface {
	DistributeRevenue(ctx context.Context, caller common.Address) (*model.DistributionResult, error)
	AdaptiveDistribution(ctx context.Context, caller common.Address) (*model.DistributionResult, error)
	NeedsRebalancing(ctx context.Context) (model.RebalanceCheck, error)
	RebalanceLiquidity(ctx context.Context, caller common.Address) (*model.RebalanceResult, error)
	ExecuteBuyback(ctx context.Context, caller common.Address) (*model.BuybackResult, error)
}

// Cleaner 定期清理的存储 (事件表、幂等表)
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// Retention pairs a store with how long its rows are kept.
type Retention struct {
	Name      string
	Store     Cleaner
	OlderThan time.Duration
}

const retentionCron = "0 0 3 * * *"

// Scheduler runs the keeper jobs on cron cadences, as one configured actor.
type Scheduler struct {
	cron    *cron.Cron
	engine  Engine
	cfg     config.SchedulerConfig
	actor   common.Address
	cleaner []Retention
	log     *slog.Logger
}

func New(cfg config.SchedulerConfig, engine Engine, retention ...Retention) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		engine:  engine,
		cfg:     cfg,
		actor:   common.HexToAddress(cfg.Actor),
		cleaner: retention,
		log:     logger.Component("scheduler"),
	}
}

// RegisterAll adds every job with a non-empty cron expression.
func (s *Scheduler) RegisterAll() error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"distribution", s.cfg.DistributionCron, s.RunDistribution},
		{"rebalance", s.cfg.RebalanceCron, s.RunRebalance},
		{"buyback", s.cfg.BuybackCron, s.RunBuyback},
	}
	if len(s.cleaner) > 0 {
		jobs = append(jobs, struct {
			name string
			spec string
			run  func()
		}{"retention", retentionCron, s.RunRetention})
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return fmt.Errorf("register %s job: %w", j.name, err)
		}
		s.log.Info("job registered", "job", j.name, "cron", j.spec)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "actor", s.actor.Hex())
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) RunDistribution() {
	s.run("distribution", func(ctx context.Context) error {
		var (
			res *model.DistributionResult
			err error
		)
		if s.cfg.DistributionMode == "fixed" {
			res, err = s.engine.DistributeRevenue(ctx, s.actor)
		} else {
			res, err = s.engine.AdaptiveDistribution(ctx, s.actor)
		}
		if err != nil {
			return err
		}
		s.log.Info("scheduled distribution done", "mode", res.Mode, "balance", model.Amount(res.Balance),
			"buyback_executed", res.Buyback != nil, "buyback_skipped", res.SkipReason)
		return nil
	})
}

// RunRebalance only calls into the rebalancer when the ratio is out of band.
func (s *Scheduler) RunRebalance() {
	s.run("rebalance", func(ctx context.Context) error {
		check, err := s.engine.NeedsRebalancing(ctx)
		if err != nil {
			return err
		}
		if !check.ShouldRebalance {
			s.log.Debug("liquidity ratio within band", "ratio_bps", check.CurrentRatioBps)
			return apperrors.NotYet(apperrors.CodeRebalanceNotNeeded, "liquidity ratio within band")
		}
		res, err := s.engine.RebalanceLiquidity(ctx, s.actor)
		if err != nil {
			return err
		}
		s.log.Info("scheduled rebalance done", "before", model.Amount(res.Before), "after", model.Amount(res.After))
		return nil
	})
}

func (s *Scheduler) RunBuyback() {
	s.run("buyback", func(ctx context.Context) error {
		res, err := s.engine.ExecuteBuyback(ctx, s.actor)
		if err != nil {
			return err
		}
		s.log.Info("scheduled buyback done", "spent", model.Amount(res.Spent), "tokens", model.Amount(res.TokensBought))
		return nil
	})
}

func (s *Scheduler) RunRetention() {
	s.run("retention", func(ctx context.Context) error {
		for _, r := range s.cleaner {
			if r.OlderThan <= 0 {
				continue
			}
			if err := r.Store.Cleanup(ctx, r.OlderThan); err != nil {
				return fmt.Errorf("cleanup %s: %w", r.Name, err)
			}
		}
		return nil
	})
}

// run applies the job timeout and records the outcome. Cooldowns and
// "nothing to do" are expected keeper outcomes, not failures.
func (s *Scheduler) run(job string, fn func(ctx context.Context) error) {
	ctx := context.Background()
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	err := fn(ctx)
	code := ""
	if err != nil {
		code = string(apperrors.CodeOf(err))
	}
	metrics.ScheduledJobs.WithLabelValues(job, metrics.Outcome(code)).Inc()

	switch {
	case err == nil:
	case apperrors.IsTemporal(err):
		s.log.Info("scheduled job skipped", "job", job, "code", code, "reason", err.Error())
	default:
		s.log.Error("scheduled job failed", "job", job, "code", code, "error", err)
	}
}
