package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/graviton-inventory/internal/api"
	"github.com/miradorstack/graviton-inventory/internal/metrics"
	"github.com/miradorstack/graviton-inventory/internal/models"
	"github.com/miradorstack/graviton-inventory/internal/summary"
	"github.com/miradorstack/graviton-inventory/internal/utils"
)

// Detector runs one inventory pass. *engine.Engine satisfies it.
type Detector interface {
	Detect(ctx context.Context, scanID string) models.RunResult
}

// InventoryService implements the gRPC Inventory service and the one-shot CLI path.
type InventoryService struct {
	logger    *slog.Logger
	detector  Detector
	reporter  *summary.Reporter
	latencies *utils.LatencyTracker
}

var _ api.InventoryServer = (*InventoryService)(nil)

// NewInventoryService constructs the inventory service facade.
func NewInventoryService(logger *slog.Logger, detector Detector, reporter *summary.Reporter) *InventoryService {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = summary.NewReporter(logger, nil)
	}
	return &InventoryService{
		logger:    logger,
		detector:  detector,
		reporter:  reporter,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Detect handles the gRPC Detect call.
func (s *InventoryService) Detect(ctx context.Context, req *api.DetectRequest) (*api.DetectResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	result, sum, err := s.Run(ctx, req.ScanID)
	if err != nil {
		return nil, err
	}
	return &api.DetectResponse{Result: result, Summary: sum}, nil
}

// Run executes a detection, records metrics and reports the summary.
func (s *InventoryService) Run(ctx context.Context, scanID string) (models.RunResult, summary.Summary, error) {
	scanID = strings.TrimSpace(scanID)
	if scanID == "" {
		return models.RunResult{}, summary.Summary{}, status.Error(codes.InvalidArgument, "scan_id is required")
	}
	if s.detector == nil {
		metrics.ObserveRun(0, metrics.OutcomeError)
		return models.RunResult{}, summary.Summary{}, status.Error(codes.FailedPrecondition, "detection engine not configured")
	}

	s.logger.Debug("Detect called", slog.String("scan_id", scanID))

	start := time.Now()
	result := s.detector.Detect(ctx, scanID)
	duration := time.Since(start)

	s.latencies.Observe(duration)
	metrics.ObserveRun(duration, summary.Outcome(result))
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("detection latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}

	return result, s.reporter.Report(ctx, result), nil
}

// LatencyP95 returns the current p95 detection latency.
func (s *InventoryService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
