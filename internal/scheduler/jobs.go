package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/example/gateway-ledger/internal/ledger"
)

// IntegrityJob runs the integrity checks. Violations are handled by the
// monitor itself; the job only fails when the ledger cannot be read.
func IntegrityJob(m *ledger.IntegrityMonitor, spec string) Job {
	return Job{
		Name:    "integrity_check",
		Spec:    spec,
		Timeout: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := m.Check(ctx)
			return err
		},
	}
}

// RecoveryJob resolves reservations stuck in reserved for longer than age.
func RecoveryJob(c *ledger.Coordinator, spec string, age time.Duration) Job {
	return Job{
		Name: "reservation_recovery",
		Spec: spec,
		Run: func(ctx context.Context) error {
			report, err := c.RecoverPending(ctx, age)
			if err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d reservations could not be resolved", len(report.Failed))
			}
			return nil
		},
	}
}
