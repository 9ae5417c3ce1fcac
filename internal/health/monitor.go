package health

import (
	"context"
	"sort"
	"time"
)

// Checker is a dependency that can report whether it is reachable.
type Checker interface {
	Health(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Health(ctx context.Context) error {
	return f(ctx)
}

// LedgerCounter reports the number of failure records.
type LedgerCounter interface {
	Count(ctx context.Context) (int, error)
}

// Monitor aggregates dependency checks and the ledger backlog.
type Monitor struct {
	checkers map[string]Checker
	ledger   LedgerCounter
	timeout  time.Duration
}

// NewMonitor creates a new health monitor.
func NewMonitor(ledger LedgerCounter) *Monitor {
	return &Monitor{
		checkers: make(map[string]Checker),
		ledger:   ledger,
		timeout:  3 * time.Second,
	}
}

// Register adds a named dependency check.
func (m *Monitor) Register(name string, c Checker) {
	m.checkers[name] = c
}

// CheckHealth runs every check. A failing dependency is critical; a non-empty
// failure ledger marks the system degraded.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.checkers)),
	}

	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ch := ComponentHealth{Name: name, Status: StatusHealthy}
		if err := m.checkers[name].Health(ctx); err != nil {
			ch.Status = StatusCritical
			ch.Error = err.Error()
			report.SystemStatus = StatusCritical
		}
		report.Components[name] = ch
	}

	if m.ledger != nil {
		count, err := m.ledger.Count(ctx)
		if err == nil {
			report.FailedMessages = count
			if count > 0 && report.SystemStatus == StatusHealthy {
				report.SystemStatus = StatusDegraded
			}
		}
	}

	return report
}
