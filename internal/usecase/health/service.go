package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
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

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	index     IndexPinger
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil.
func New(index IndexPinger, embedding EmbeddingChecker) *Service {
	return &Service{index: index, embedding: embedding}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.index.Ping(ctx); err != nil {
		checks["index"] = CheckError
	} else {
		checks["index"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}

	status := Healthy
	switch {
	case failed == len(checks):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
