// Package orchestrator drives every configured platform pipeline to
// completion under a dependency-aware parallel schedule, applying
// per-platform retry/backoff/timeout and a continue-on-failure policy, and
// emits a structured execution report.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/adflow-io/adflow/pkg/errkind"
	"github.com/adflow-io/adflow/pkg/platform"
	"github.com/adflow-io/adflow/pkg/retry"
	"github.com/adflow-io/adflow/pkg/scheduler"
)

// PlatformEntry declares one platform's place in the run: its pipeline, its
// dependency edges, and its retry/timeout policy.
type PlatformEntry struct {
	Name      string
	Enabled   bool
	Priority  int
	Timeout   time.Duration
	DependsOn []string
	Retry     retry.Config
	Pipeline  *platform.Pipeline
}

// Config holds the orchestrator.* options from the orchestrator YAML
// document.
type Config struct {
	ParallelExecution bool
	MaxParallel       int
	ContinueOnFailure bool
	GlobalTimeout     time.Duration
	Platforms         []PlatformEntry
	ParallelGroups    [][]string
}

// Result is RunAll's return value: the monitor's final snapshot plus the
// overall exit code.
type Result struct {
	Summary  Summary
	Outcomes []PlatformOutcome
	ExitCode int
}

// Orchestrator executes a Config's platforms to completion.
type Orchestrator struct {
	cfg     Config
	clock   clockwork.Clock
	log     *slog.Logger
	monitor *Monitor
	sched   *scheduler.Scheduler
}

// New validates cfg's dependency graph and returns an Orchestrator, or a
// ConfigError-kind error (circular dependency, undeclared dependency, or a
// parallel_groups/depends_on conflict) detected before any platform runs.
func New(cfg Config, clock clockwork.Clock, log *slog.Logger) (*Orchestrator, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}

	nodes := make([]scheduler.PlatformNode, 0, len(cfg.Platforms))
	names := make([]string, 0, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		if !p.Enabled {
			continue
		}
		nodes = append(nodes, scheduler.PlatformNode{Name: p.Name, DependsOn: p.DependsOn})
		names = append(names, p.Name)
	}
	sched, err := scheduler.New(scheduler.Config{Platforms: nodes, ParallelGroups: cfg.ParallelGroups})
	if err != nil {
		return nil, err
	}
	if _, err := sched.Schedule(); err != nil {
		return nil, errkind.New(errkind.Config, "", err)
	}

	return &Orchestrator{
		cfg:     cfg,
		clock:   clock,
		log:     log,
		monitor: NewMonitor(clock, names),
		sched:   sched,
	}, nil
}

// Monitor exposes the orchestrator's execution monitor for report export.
func (o *Orchestrator) Monitor() *Monitor { return o.monitor }

func (o *Orchestrator) entry(name string) (PlatformEntry, bool) {
	for _, p := range o.cfg.Platforms {
		if p.Name == name {
			return p, true
		}
	}
	return PlatformEntry{}, false
}

// RunAll schedules every enabled platform in dependency order and executes
// each group under the configured concurrency budget, honoring
// continue_on_failure and global_timeout.
func (o *Orchestrator) RunAll(ctx context.Context, dateRange platform.DateRange) (*Result, error) {
	groups, err := o.sched.Schedule()
	if err != nil {
		return nil, err
	}

	if o.cfg.GlobalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.GlobalTimeout)
		defer cancel()
	}

	skipped := make(map[string]bool)

	for _, group := range groups {
		if ctx.Err() != nil {
			o.cancelRemaining(group)
			continue
		}

		runnable, blocked := o.partitionGroup(group, skipped)
		for _, name := range blocked {
			o.monitor.MarkSkipped(name, fmt.Errorf("orchestrator: dependency failed or skipped"))
			skipped[name] = true
		}

		maxParallel := o.cfg.MaxParallel
		if !o.cfg.ParallelExecution {
			maxParallel = 1
		}

		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(maxParallel)

		for _, name := range runnable {
			name := name
			eg.Go(func() error {
				o.runPlatform(egCtx, name, dateRange)
				if o.monitor.Status(name) == StatusFailed && !o.cfg.ContinueOnFailure {
					return fmt.Errorf("orchestrator: platform %q failed and continue_on_failure is false", name)
				}
				return nil
			})
		}

		if stopErr := eg.Wait(); stopErr != nil && !o.cfg.ContinueOnFailure {
			o.skipAllPending(groups, skipped)
			return o.buildResult(), nil
		}

		for _, name := range runnable {
			if o.monitor.Status(name) == StatusFailed {
				skipped[name] = true
			}
		}
	}

	if ctx.Err() != nil {
		o.skipAllPending(groups, skipped)
	}

	return o.buildResult(), nil
}

// partitionGroup splits group into platforms whose dependencies are all
// satisfied (runnable) and platforms that must be marked skipped because a
// dependency already failed, was cancelled, or was itself skipped.
func (o *Orchestrator) partitionGroup(group []string, skipped map[string]bool) (runnable, blocked []string) {
	for _, name := range group {
		entry, _ := o.entry(name)
		dependencyDown := false
		for _, dep := range entry.DependsOn {
			if skipped[dep] || o.monitor.Status(dep) == StatusFailed || o.monitor.Status(dep) == StatusCancelled {
				dependencyDown = true
				break
			}
		}
		if dependencyDown {
			blocked = append(blocked, name)
		} else {
			runnable = append(runnable, name)
		}
	}
	return runnable, blocked
}

// cancelRemaining marks every platform of a group that never started as
// skipped, used once the run's context has expired before the group began.
func (o *Orchestrator) cancelRemaining(group []string) {
	for _, name := range group {
		o.monitor.MarkSkipped(name, fmt.Errorf("orchestrator: run cancelled before this platform started"))
	}
}

func (o *Orchestrator) skipAllPending(groups [][]string, skipped map[string]bool) {
	for _, group := range groups {
		for _, name := range group {
			if o.monitor.Status(name) == StatusPending {
				o.monitor.MarkSkipped(name, fmt.Errorf("orchestrator: run halted before this platform started"))
				skipped[name] = true
			}
		}
	}
}

// runPlatform executes one platform's pipeline under its own timeout and
// retry policy, recording the outcome in the monitor. It never returns an
// error: failures are recorded as the platform's terminal status, and the
// caller inspects Monitor().Status to decide whether to halt the run.
func (o *Orchestrator) runPlatform(ctx context.Context, name string, dateRange platform.DateRange) {
	entry, ok := o.entry(name)
	if !ok || entry.Pipeline == nil {
		o.monitor.MarkFailed(name, 0, nil, fmt.Errorf("orchestrator: platform %q has no pipeline configured", name))
		return
	}

	platformCtx := ctx
	var cancel context.CancelFunc
	if entry.Timeout > 0 {
		platformCtx, cancel = context.WithTimeout(ctx, entry.Timeout)
		defer cancel()
	}

	cfg := entry.Retry
	if cfg.MaxAttempts == 0 {
		cfg = retry.DefaultConfig()
	}

	var (
		result  *platform.Result
		attempt int
	)
	err := retry.Do(platformCtx, o.clock, cfg, func() error {
		attempt++
		o.monitor.MarkRunning(name, attempt)
		r, runErr := entry.Pipeline.Run(platformCtx, dateRange)
		result = r
		if runErr != nil {
			return errkind.New(errkind.Classify(runErr), name, runErr)
		}
		if len(r.Errors) > 0 {
			return errkind.New(errkind.Data, name, fmt.Errorf("orchestrator: %d table(s) failed", len(r.Errors)))
		}
		return nil
	})

	tables := []string{}
	rows := 0
	if result != nil {
		tables = result.TablesLoaded
		for _, n := range result.RowsPerTable {
			rows += n
		}
	}

	if platformCtx.Err() != nil && ctx.Err() == nil {
		o.monitor.MarkCancelled(name)
		return
	}
	if err != nil {
		if errkind.Classify(err) == errkind.Fatal || platformCtx.Err() != nil {
			o.monitor.MarkCancelled(name)
			return
		}
		o.monitor.MarkFailed(name, rows, tables, err)
		return
	}
	o.monitor.MarkCompleted(name, rows, tables)
}

// RunOne executes a single platform by name, ignoring its declared
// dependencies, per the CLI's `--platform` flag.
func (o *Orchestrator) RunOne(ctx context.Context, name string, dateRange platform.DateRange) (PlatformOutcome, error) {
	if _, ok := o.entry(name); !ok {
		return PlatformOutcome{}, errkind.New(errkind.Config, name, fmt.Errorf("orchestrator: unknown platform %q", name))
	}
	o.runPlatform(ctx, name, dateRange)
	return o.monitor.get(name).snapshot(), nil
}

// ExitCode derives the process exit code from the monitor's final
// snapshot: 0 when every platform completed (or none were configured), 3
// when none completed, 2 for any other mix of outcomes.
func ExitCode(summary Summary) int {
	switch {
	case summary.TotalPlatforms == 0:
		return 0
	case summary.Completed == summary.TotalPlatforms:
		return 0
	case summary.Completed == 0:
		return 3
	default:
		return 2
	}
}

func (o *Orchestrator) buildResult() *Result {
	summary := o.monitor.Summarize()
	return &Result{
		Summary:  summary,
		Outcomes: o.monitor.Snapshot(),
		ExitCode: ExitCode(summary),
	}
}
