// Package montecarlo runs Monte Carlo simulations of a trading strategy
// described by win rate, reward/risk ratio and commission, and summarizes the
// spread of outcomes a trader could plausibly experience.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/journal-backend/internal/observability"
	"github.com/atlas-desktop/journal-backend/internal/workers"
)

// Simulator performs Monte Carlo simulations
type Simulator struct {
	logger  *zap.Logger
	config  *SimulatorConfig
	pool    *workers.Pool
	metrics *observability.Metrics
}

// SimulatorConfig configures the simulator
type SimulatorConfig struct {
	Seed             int64 // Random seed (0 for time-based)
	ParallelWorkers  int   // Number of parallel workers (<= 0 means NumCPU)
	BucketCount      int   // Histogram buckets over final outcomes
	ProgressInterval int   // Runs between progress callbacks (<= 0 means every 1%)
}

// DefaultSimulatorConfig returns sensible defaults
func DefaultSimulatorConfig() *SimulatorConfig {
	return &SimulatorConfig{
		Seed:             0,
		ParallelWorkers:  0,
		BucketCount:      DefaultBucketCount,
		ProgressInterval: 0,
	}
}

// NewSimulator creates a new Monte Carlo simulator. metrics may be nil.
func NewSimulator(logger *zap.Logger, config *SimulatorConfig, metrics *observability.Metrics) *Simulator {
	if config == nil {
		config = DefaultSimulatorConfig()
	}
	cfg := *config
	config = &cfg
	if config.BucketCount <= 0 {
		config.BucketCount = DefaultBucketCount
	}

	poolConfig := workers.DefaultPoolConfig("montecarlo")
	if config.ParallelWorkers > 0 {
		poolConfig.NumWorkers = config.ParallelWorkers
	}

	return &Simulator{
		logger:  logger.Named("montecarlo"),
		config:  config,
		pool:    workers.NewPool(logger, poolConfig),
		metrics: metrics,
	}
}

// MonteCarloResult is the full output of one batch.
type MonteCarloResult struct {
	Params              SimulationParams     `json:"params"`
	Seed                int64                `json:"seed"`
	Statistics          SimulationStatistics `json:"statistics"`
	DistributionBuckets []DistributionBucket `json:"distributionBuckets"`
	SampleRun           SimulationRun        `json:"sampleRun"`
}

// ProgressFunc receives the number of completed runs. It is called from worker
// goroutines and must be safe for concurrent use.
type ProgressFunc func(completed, total int)

type runOptions struct {
	seed     int64
	sources  SourceFactory
	progress ProgressFunc
}

// RunOption customizes a single RunSimulation call.
type RunOption func(*runOptions)

// WithSeed overrides the configured seed for one batch.
func WithSeed(seed int64) RunOption {
	return func(o *runOptions) { o.seed = seed }
}

// WithSource replaces the seeded PCG streams, typically with a scripted source
// in tests. The reported seed is then meaningless.
func WithSource(sources SourceFactory) RunOption {
	return func(o *runOptions) { o.sources = sources }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) RunOption {
	return func(o *runOptions) { o.progress = fn }
}

// RunSimulation validates params, simulates SimulationCount independent runs
// in parallel and aggregates them. With the same params and seed the result is
// identical regardless of worker count.
func (s *Simulator) RunSimulation(ctx context.Context, params SimulationParams, opts ...RunOption) (*MonteCarloResult, error) {
	model := string(params.Kind())

	if err := params.Validate(); err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				s.metrics.ObserveValidationFailure(fe.Field)
			}
		}
		s.metrics.ObserveSimulation(model, "invalid", 0, 0)
		return nil, err
	}

	o := runOptions{seed: s.config.Seed}
	for _, opt := range opts {
		opt(&o)
	}
	if o.seed == 0 {
		o.seed = timeSeed()
	}
	if o.sources == nil {
		o.sources = SeededSources(o.seed)
	}

	riskModel := params.RiskModel()
	total := params.SimulationCount
	interval := s.progressInterval(total)

	s.logger.Info("Starting Monte Carlo simulation",
		zap.String("model", model),
		zap.Int("simulations", total),
		zap.Int("trades", params.NumberOfTrades),
		zap.Float64("winRate", params.WinRate),
		zap.Float64("rewardRisk", params.RewardRiskRatio),
		zap.Int64("seed", o.seed),
		zap.Int("workers", s.pool.NumWorkers()),
	)

	start := time.Now()
	runs := make([]SimulationRun, total)
	var completed atomic.Int64

	err := s.pool.Run(ctx, total, func(i int) error {
		runs[i] = simulateRun(&params, riskModel, o.sources(i))
		done := int(completed.Add(1))
		if o.progress != nil && (done%interval == 0 || done == total) {
			o.progress(done, total)
		}
		return nil
	})
	if err != nil {
		s.metrics.ObserveSimulation(model, "aborted", time.Since(start), 0)
		s.logger.Warn("Monte Carlo simulation aborted",
			zap.Int64("completed", completed.Load()),
			zap.Int("simulations", total),
			zap.Error(err),
		)
		return nil, fmt.Errorf("simulation aborted after %d of %d runs: %w", completed.Load(), total, err)
	}

	result := &MonteCarloResult{
		Params:              params,
		Seed:                o.seed,
		Statistics:          Aggregate(runs, params),
		DistributionBuckets: Bucketize(finalOutcomes(runs), s.config.BucketCount),
		SampleRun:           SelectSampleRun(runs),
	}

	elapsed := time.Since(start)
	s.metrics.ObserveSimulation(model, "ok", elapsed, result.Statistics.TotalTrades)

	s.logger.Info("Monte Carlo simulation complete",
		zap.Duration("elapsed", elapsed),
		zap.Float64("medianOutcome", result.Statistics.MedianOutcome),
		zap.Float64("p5Outcome", result.Statistics.P5Outcome),
		zap.Float64("profitablePct", result.Statistics.ProfitablePct),
		zap.Float64("worstMaxDrawdown", result.Statistics.WorstMaxDrawdown),
	)

	return result, nil
}

func (s *Simulator) progressInterval(total int) int {
	if s.config.ProgressInterval > 0 {
		return s.config.ProgressInterval
	}
	if step := total / 100; step > 0 {
		return step
	}
	return 1
}
