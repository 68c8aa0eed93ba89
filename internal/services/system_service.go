package services

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/repositories"
)

// BuildInfo identifies the running deployment.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemHealthReport is what /readyz serves: dependency results, the storefront features they
// impair, and build metadata.
type SystemHealthReport struct {
	domain.SystemHealthReport
	Impaired    []string
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
}

// Ready reports whether the instance should receive traffic. Degraded still counts.
func (r SystemHealthReport) Ready() bool {
	return r.Status != domain.HealthStatusError
}

type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	Build() BuildInfo
}

type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	health repositories.HealthRepository
	now    func() time.Time
	build  BuildInfo
}

var _ SystemService = (*systemService)(nil)

func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		health: deps.HealthRepository,
		now:    func() time.Time { return clock().UTC() },
		build:  deps.Build,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	svc.build.StartedAt = svc.build.StartedAt.UTC()
	return svc, nil
}

func (s *systemService) Build() BuildInfo { return s.build }

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if report.Status == "" {
		report.Status = statusOf(report.Checks)
	}
	return SystemHealthReport{
		SystemHealthReport: report,
		Impaired:           impairedFeatures(report.Checks),
		Version:            s.build.Version,
		CommitSHA:          s.build.CommitSHA,
		Environment:        s.build.Environment,
		Uptime:             now.Sub(s.build.StartedAt),
	}, nil
}

// statusOf folds check results for repositories that leave the overall status blank.
func statusOf(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch {
		case check.Status == domain.HealthStatusOK || check.Status == "":
		case check.Status == domain.HealthStatusError || check.Critical:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}

func impairedFeatures(checks map[string]domain.SystemHealthCheck) []string {
	var out []string
	for _, check := range checks {
		if check.Status == domain.HealthStatusOK || check.Status == "" {
			continue
		}
		for _, feature := range check.Features {
			if !slices.Contains(out, feature) {
				out = append(out, feature)
			}
		}
	}
	slices.Sort(out)
	return out
}
