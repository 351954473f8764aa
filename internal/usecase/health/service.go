package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates no engine endpoint answers.
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

// DefaultPingTimeout bounds each component check.
const DefaultPingTimeout = 2 * time.Second

// Report aggregates health check results. Engine checks are keyed "engine:<endpoint>".
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	engine    EnginePinger
	endpoints []tenant.Endpoint
	cache     CachePinger
	timeout   time.Duration
}

// New creates a Service. cache can be nil.
func New(engine EnginePinger, endpoints []tenant.Endpoint, cache CachePinger) *Service {
	return &Service{engine: engine, endpoints: endpoints, cache: cache, timeout: DefaultPingTimeout}
}

// Check pings every engine endpoint and the cache concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		g      errgroup.Group
		checks = make(map[string]CheckResult, len(s.endpoints)+1)
	)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		checks[name] = CheckOK
		if err != nil {
			checks[name] = CheckError
		}
	}

	for _, ep := range s.endpoints {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			record("engine:"+ep.String(), s.engine.Ping(pctx, ep))
			return nil
		})
	}
	if s.cache != nil {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			record("cache", s.cache.Ping(pctx))
			return nil
		})
	}
	_ = g.Wait()

	return Report{Status: aggregate(checks, len(s.endpoints)), Checks: checks}
}

func aggregate(checks map[string]CheckResult, engines int) Status {
	failed, enginesDown := 0, 0
	for name, v := range checks {
		if v != CheckError {
			continue
		}
		failed++
		if name != "cache" {
			enginesDown++
		}
	}
	switch {
	case engines > 0 && enginesDown == engines:
		return Unhealthy
	case failed > 0:
		return Degraded
	}
	return Healthy
}
