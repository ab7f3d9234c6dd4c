package services

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/graviton-inventory/internal/api"
	"github.com/miradorstack/graviton-inventory/internal/models"
	"github.com/miradorstack/graviton-inventory/internal/summary"
)

type detectorStub struct {
	scans  []string
	result models.RunResult
}

func (d *detectorStub) Detect(_ context.Context, scanID string) models.RunResult {
	d.scans = append(d.scans, scanID)
	res := d.result
	res.ScanID = scanID
	return res
}

type publisherStub struct {
	published []summary.Summary
}

func (p *publisherStub) Publish(_ context.Context, s summary.Summary) error {
	p.published = append(p.published, s)
	return nil
}

func TestDetectRunsEngineAndPublishes(t *testing.T) {
	detector := &detectorStub{result: models.RunResult{
		Records: []models.DetectionRecord{
			{ApplicationKey: "redis", Category: models.CategoryDatabase, CompatibilityStatus: models.StatusCompatible},
		},
	}}
	pub := &publisherStub{}
	service := NewInventoryService(nil, detector, summary.NewReporter(nil, pub))

	resp, err := service.Detect(context.Background(), &api.DetectRequest{ScanID: " scan-1 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detector.scans) != 1 || detector.scans[0] != "scan-1" {
		t.Fatalf("expected trimmed scan id, got %v", detector.scans)
	}
	if resp.Result.ScanID != "scan-1" || resp.Summary.Records != 1 || !resp.Summary.Ready() {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one published summary, got %d", len(pub.published))
	}
}

func TestDetectRequiresScanID(t *testing.T) {
	service := NewInventoryService(nil, &detectorStub{}, nil)

	_, err := service.Detect(context.Background(), &api.DetectRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	_, err = service.Detect(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for nil request, got %v", err)
	}
}

func TestDetectWithoutEngine(t *testing.T) {
	service := NewInventoryService(nil, nil, nil)

	_, _, err := service.Run(context.Background(), "scan-1")
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
}

func TestLatencyTracked(t *testing.T) {
	service := NewInventoryService(nil, &detectorStub{}, nil)
	for i := 0; i < 3; i++ {
		if _, _, err := service.Run(context.Background(), "scan"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if service.latencies.Count() != 3 {
		t.Fatalf("expected three samples, got %d", service.latencies.Count())
	}
}
