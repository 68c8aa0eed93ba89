package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bounceparty/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

func TestSystemServiceReportsImpairedFeatures(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK, Critical: true},
				"redis": {
					Status:   domain.HealthStatusDegraded,
					Features: []string{domain.FeatureIdempotency, domain.FeatureCarts},
				},
				"pubsub": {
					Status:   domain.HealthStatusDegraded,
					Features: []string{domain.FeatureOrderEvents, domain.FeatureCarts},
				},
			},
		},
	}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{Version: "1.2.0", CommitSHA: "abc123", Environment: "prod", StartedAt: start},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded || !report.Ready() {
		t.Fatalf("expected degraded but ready, got %q", report.Status)
	}
	want := []string{domain.FeatureCarts, domain.FeatureIdempotency, domain.FeatureOrderEvents}
	if len(report.Impaired) != len(want) {
		t.Fatalf("expected impaired %v, got %v", want, report.Impaired)
	}
	for i := range want {
		if report.Impaired[i] != want[i] {
			t.Fatalf("expected impaired %v, got %v", want, report.Impaired)
		}
	}
	if report.Version != "1.2.0" || report.Environment != "prod" || report.Uptime != 5*time.Minute || !report.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected metadata %+v", report)
	}
}

func TestSystemServiceCriticalFailureIsNotReady(t *testing.T) {
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusDegraded, Critical: true},
		},
	}}
	svc, _ := NewSystemService(SystemServiceDeps{HealthRepository: repo})

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusError || report.Ready() || len(report.Impaired) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSystemServiceKeepsRepositoryStatus(t *testing.T) {
	repo := &stubHealthRepository{report: domain.SystemHealthReport{Status: domain.HealthStatusError}}
	svc, _ := NewSystemService(SystemServiceDeps{HealthRepository: repo})

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusError || report.Checks == nil {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSystemServicePropagatesErrors(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected repository to be required")
	}
	repo := &stubHealthRepository{err: errors.New("boom")}
	svc, _ := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if _, err := svc.HealthReport(context.Background()); err == nil || repo.calls != 1 {
		t.Fatalf("expected error from repository, got %v", err)
	}
}
