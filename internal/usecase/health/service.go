package health

import (
	"context"
	"maps"
	"slices"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates that no source can serve searches.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

const cacheCheck = "cache"

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	cache   Pinger
	sources map[string]Pinger
}

// New creates a Service. cache can be nil when permission caching is off;
// sources are keyed by source name.
func New(cache Pinger, sources map[string]Pinger) *Service {
	return &Service{cache: cache, sources: sources}
}

// Check runs health checks against all components. A failing cache only
// degrades the service, since permission checks fall back to the policy.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.sources)+1)

	if s.cache != nil {
		checks[cacheCheck] = result(s.cache.Ping(ctx))
	}

	failedSources := 0
	for _, name := range slices.Sorted(maps.Keys(s.sources)) {
		r := result(s.sources[name].Ping(ctx))
		if r == CheckError {
			failedSources++
		}
		checks["source:"+name] = r
	}

	status := Healthy
	switch {
	case len(s.sources) > 0 && failedSources == len(s.sources):
		status = Unhealthy
	case failedSources > 0 || checks[cacheCheck] == CheckError:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
