// Package health reports component availability for readiness probes.
package health

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial availability.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// ProviderLister exposes the configured language-model providers.
type ProviderLister interface {
	Names() []string
}

// BackendLister exposes the configured search backends.
type BackendLister interface {
	Backends() []string
}

// Report aggregates health check results.
type Report struct {
	Status    Status
	Checks    map[string]CheckResult
	Providers []string
}

// Service coordinates health checks.
type Service struct {
	synth  ProviderLister
	search BackendLister
}

// New creates a Service. search can be nil.
func New(synth ProviderLister, search BackendLister) *Service {
	return &Service{synth: synth, search: search}
}

// Check reports whether the pipeline can serve requests. No upstream is
// probed; the check is over configuration, since every upstream failure
// already degrades per request.
func (s *Service) Check() Report {
	checks := make(map[string]CheckResult)

	providers := s.synth.Names()
	if len(providers) == 0 {
		checks["synthesis"] = CheckError
	} else {
		checks["synthesis"] = CheckOK
	}

	if s.search != nil {
		if len(s.search.Backends()) == 0 {
			checks["search"] = CheckError
		} else {
			checks["search"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, Providers: providers}
}
