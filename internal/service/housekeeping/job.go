package housekeeping

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
)

// ActiveSource lists in-flight alerts.
type ActiveSource interface {
	GetActiveAlerts() []*alert.Alert
}

// Gauges receives the computed counts.
type Gauges interface {
	ActiveAlerts(n int)
	StaleAlerts(n int)
}

// ChainVerifier re-checks the evidence hash chain.
type ChainVerifier interface {
	Verify() error
	Len() int
}

// Report is the result of one run.
type Report struct {
	Active int
	Stale  []string
	// ChainEntries is the verified chain length, zero without a chain.
	ChainEntries int
	// ChainErr is set when the chain failed verification.
	ChainErr error
}

// Job computes the housekeeping report.
type Job struct {
	source     ActiveSource
	gauges     Gauges
	staleAfter time.Duration
	chain      ChainVerifier
	now        func() time.Time
}

// NewJob creates a housekeeping job.
func NewJob(source ActiveSource, gauges Gauges, staleAfter time.Duration) *Job {
	return &Job{
		source:     source,
		gauges:     gauges,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// WithChain makes every run verify the evidence hash chain.
func (j *Job) WithChain(chain ChainVerifier) *Job {
	j.chain = chain

	return j
}

// Run computes the report, updates the gauges, logs stale alerts
// and verifies the evidence chain when one is set.
func (j *Job) Run(ctx context.Context) Report {
	alerts := j.source.GetActiveAlerts()
	now := j.now()

	report := Report{Active: len(alerts)}

	for _, a := range alerts {
		if j.staleAfter > 0 && now.Sub(a.CreatedAt) > j.staleAfter {
			report.Stale = append(report.Stale, a.ID)

			logger.WarnKV(ctx, "Alert open for too long",
				"alert_id", a.ID,
				"state", a.State,
				"age", now.Sub(a.CreatedAt).Round(time.Second),
			)
		}
	}

	if j.gauges != nil {
		j.gauges.ActiveAlerts(report.Active)
		j.gauges.StaleAlerts(len(report.Stale))
	}

	if j.chain != nil {
		j.verifyChain(ctx, &report)
	}

	return report
}

func (j *Job) verifyChain(ctx context.Context, report *Report) {
	report.ChainEntries = j.chain.Len()

	if err := j.chain.Verify(); err != nil {
		report.ChainErr = err

		logger.ErrorKV(ctx, "Evidence chain failed verification",
			"entries", report.ChainEntries,
			"error", err,
		)

		return
	}

	logger.DebugKV(ctx, "Evidence chain verified", "entries", report.ChainEntries)
}

// Start schedules the job with a cron expression and starts the scheduler.
// The returned stop function waits for a running job.
func Start(ctx context.Context, schedule string, job *Job) (func(), error) {
	ctx = logger.WithName(ctx, "housekeeping")

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	if _, err := c.AddFunc(schedule, func() { job.Run(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule housekeeping %q: %w", schedule, err)
	}

	c.Start()

	logger.InfoKV(ctx, "Housekeeping scheduled", "schedule", schedule)

	return func() {
		<-c.Stop().Done()
	}, nil
}
