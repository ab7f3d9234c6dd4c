// Package summary condenses a detection run into counts for logs, metrics and events.
package summary

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/graviton-inventory/internal/metrics"
	"github.com/miradorstack/graviton-inventory/internal/models"
)

// Publisher ships summaries to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, summary Summary) error
}

// Blocker is an application that prevents a straight ARM64 migration.
type Blocker struct {
	ApplicationKey string `json:"application_key"`
	Version        string `json:"version"`
	Notes          string `json:"notes,omitempty"`
}

// Summary aggregates one RunResult.
type Summary struct {
	ScanID     string                             `json:"scan_id"`
	Hostname   string                             `json:"hostname,omitempty"`
	Outcome    string                             `json:"outcome"`
	Records    int                                `json:"records"`
	Errors     int                                `json:"errors"`
	ByStatus   map[models.CompatibilityStatus]int `json:"by_status"`
	ByCategory map[models.Category]int            `json:"by_category"`
	ByMethod   map[models.DetectionMethod]int     `json:"by_method"`
	Blockers   []Blocker                          `json:"blockers,omitempty"`
	Review     []string                           `json:"review,omitempty"`
	StartedAt  time.Time                          `json:"started_at"`
	FinishedAt time.Time                          `json:"finished_at"`
}

// Ready reports whether every detected application is compatible.
func (s Summary) Ready() bool {
	return s.Records == s.ByStatus[models.StatusCompatible]
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.Before(s.StartedAt) {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Outcome labels a run for metrics: success without errors, partial otherwise.
func Outcome(result models.RunResult) string {
	if len(result.Errors) == 0 {
		return metrics.OutcomeSuccess
	}
	return metrics.OutcomePartial
}

// Build aggregates result. Blockers and review items keep record order.
func Build(result models.RunResult) Summary {
	s := Summary{
		ScanID:     result.ScanID,
		Outcome:    Outcome(result),
		Records:    len(result.Records),
		Errors:     len(result.Errors),
		ByStatus:   make(map[models.CompatibilityStatus]int),
		ByCategory: make(map[models.Category]int),
		ByMethod:   make(map[models.DetectionMethod]int),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	if result.Host != nil {
		s.Hostname = result.Host.Hostname
	}

	for _, rec := range result.Records {
		s.ByStatus[rec.CompatibilityStatus]++
		s.ByCategory[rec.Category]++
		s.ByMethod[rec.DetectionMethod]++
		switch rec.CompatibilityStatus {
		case models.StatusNotCompatible:
			s.Blockers = append(s.Blockers, Blocker{
				ApplicationKey: rec.ApplicationKey,
				Version:        rec.ResolvedVersion,
				Notes:          rec.CompatibilityNotes,
			})
		case models.StatusPartial, models.StatusUnknown:
			s.Review = append(s.Review, rec.ApplicationKey)
		}
	}
	return s
}

// Reporter logs, counts and publishes run summaries.
type Reporter struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewReporter constructs a Reporter; publisher may be nil.
func NewReporter(logger *slog.Logger, publisher Publisher) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{publisher: publisher, logger: logger}
}

// Report summarises result. A publish failure is logged and not returned.
func (r *Reporter) Report(ctx context.Context, result models.RunResult) Summary {
	s := Build(result)

	for _, rec := range result.Records {
		metrics.ObserveDetection(string(rec.Category), string(rec.CompatibilityStatus))
	}

	r.logger.Info("inventory summary",
		slog.String("scan_id", s.ScanID),
		slog.String("outcome", s.Outcome),
		slog.Int("records", s.Records),
		slog.Int("errors", s.Errors),
		slog.Int("blockers", len(s.Blockers)),
		slog.Bool("ready", s.Ready()),
	)

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, s); err != nil {
			r.logger.Warn("summary publish failed", slog.String("scan_id", s.ScanID), slog.Any("error", err))
		}
	}
	return s
}
