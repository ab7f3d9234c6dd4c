// Package engine runs the three-tier application detection against one host.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/graviton-inventory/internal/catalog"
	"github.com/miradorstack/graviton-inventory/internal/compat"
	"github.com/miradorstack/graviton-inventory/internal/models"
	"github.com/miradorstack/graviton-inventory/internal/probe"
)

// Store persists one detection record and returns its identifier.
type Store interface {
	Save(ctx context.Context, record models.DetectionRecord) (string, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// ProcessLister produces a process listing without the ps binary.
type ProcessLister interface {
	ListProcesses(ctx context.Context) (string, error)
}

// HostInspector reports facts about the inspected host.
type HostInspector interface {
	HostFacts(ctx context.Context) (models.HostFacts, error)
}

// Options wires the engine's collaborators. Only Runner is required.
type Options struct {
	Runner  probe.Runner
	Paths   probe.PathChecker
	Catalog *catalog.Catalog
	// RuleSources are consulted in order before the built-in rules.
	RuleSources  []compat.RuleSource
	Store        Store
	Clock        Clock
	Processes    ProcessLister
	Host         HostInspector
	Concurrency  int
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// Engine detects installed applications and classifies their ARM64 readiness. It keeps no
// state between runs.
type Engine struct {
	runner       probe.Runner
	paths        probe.PathChecker
	catalog      *catalog.Catalog
	ruleSources  []compat.RuleSource
	store        Store
	clock        Clock
	processes    ProcessLister
	host         HostInspector
	concurrency  int
	probeTimeout time.Duration
	logger       *slog.Logger
}

// New constructs an Engine with defaults for everything but the runner.
func New(opts Options) (*Engine, error) {
	if opts.Runner == nil {
		return nil, errors.New("engine: command runner is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Paths == nil {
		opts.Paths = probe.LocalFS{}
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = probe.DefaultTimeout
	}

	return &Engine{
		runner:       opts.Runner,
		paths:        opts.Paths,
		catalog:      opts.Catalog,
		ruleSources:  opts.RuleSources,
		store:        opts.Store,
		clock:        opts.Clock,
		processes:    opts.Processes,
		host:         opts.Host,
		concurrency:  opts.Concurrency,
		probeTimeout: opts.ProbeTimeout,
		logger:       opts.Logger,
	}, nil
}

// Detect runs one detection pass. It always returns a RunResult; failures are recorded in
// its Errors.
func (e *Engine) Detect(ctx context.Context, scanID string) models.RunResult {
	result := models.RunResult{
		ScanID:    scanID,
		Records:   []models.DetectionRecord{},
		Errors:    []models.DetectionError{},
		StartedAt: e.clock.Now(),
	}

	// Nothing below may start before the corpora are gathered.
	corp, corpusErrs := e.gatherCorpora(ctx)
	result.Errors = append(result.Errors, corpusErrs...)

	classifier, ruleErrs := e.loadClassifier(ctx)
	result.Errors = append(result.Errors, ruleErrs...)

	if e.host != nil {
		facts, err := e.host.HostFacts(ctx)
		if err != nil {
			e.logger.Warn("host facts unavailable", slog.Any("error", err))
		} else {
			result.Host = &facts
		}
	}

	signatures := e.catalog.Signatures()
	slots := make([]unitResult, len(signatures))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, sig := range signatures {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			slots[i] = e.detectOne(ctx, scanID, sig, corp, classifier)
			return nil
		})
	}
	_ = g.Wait()

	for _, slot := range slots {
		if slot.record != nil {
			result.Records = append(result.Records, *slot.record)
		}
		result.Errors = append(result.Errors, slot.errors...)
	}

	if err := ctx.Err(); err != nil {
		result.Errors = append(result.Errors, models.DetectionError{
			ApplicationKey: models.RunWide,
			Kind:           models.ErrorKindCancelled,
			Message:        fmt.Sprintf("run cancelled: %v", err),
		})
	}

	result.FinishedAt = e.clock.Now()
	e.logger.Info("detection run finished",
		slog.String("scan_id", scanID),
		slog.Int("records", len(result.Records)),
		slog.Int("errors", len(result.Errors)),
	)
	return result
}

func (e *Engine) loadClassifier(ctx context.Context) (*compat.Classifier, []models.DetectionError) {
	var (
		sets [][]compat.Rule
		errs []models.DetectionError
	)
	for _, src := range e.ruleSources {
		if src == nil {
			continue
		}
		rules, err := src.Rules(ctx)
		if err != nil {
			e.logger.Warn("compatibility rules unavailable", slog.Any("error", err))
			errs = append(errs, models.DetectionError{
				ApplicationKey: models.RunWide,
				Kind:           models.ErrorKindCatalog,
				Message:        fmt.Sprintf("load compatibility rules: %v", err),
			})
			continue
		}
		sets = append(sets, rules)
	}
	sets = append(sets, compat.BuiltinRules())
	return compat.NewClassifier(sets...), errs
}

// runProbe executes command and counts the outcome.
func (e *Engine) runProbe(ctx context.Context, command string) (string, error) {
	out, err := e.runner.Run(ctx, command, e.probeTimeout)
	observeProbe(err)
	return out, err
}
