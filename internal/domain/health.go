package domain

import "time"

const (
	HealthStatusOK = "ok"
	// HealthStatusDegraded means an optional dependency failed. Quotes and orders still work.
	HealthStatusDegraded = "degraded"
	// HealthStatusError means a critical dependency failed and the instance should not take traffic.
	HealthStatusError = "error"
)

// Storefront features an optional dependency backs. Readiness lists the impaired ones.
const (
	FeatureCarts         = "carts"
	FeatureDistanceCache = "distance_cache"
	FeatureIdempotency   = "idempotency_replay"
	FeatureOrderEvents   = "order_events"
	FeatureSecrets       = "secret_rotation"
)

type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Critical  bool
	Features  []string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for readiness endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
