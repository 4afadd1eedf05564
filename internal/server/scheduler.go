package server

import (
	"context"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/jaehyun-park/krdaily/internal/telemetry"
)

// LastRunSource reports when the most recent run started. *store.Store
// satisfies it.
type LastRunSource interface {
	LatestRunTime(ctx context.Context) (*time.Time, error)
}

// Scheduler fires the daily report on a cron schedule. A redis SetNX lock
// keeps concurrent replicas from producing duplicate runs.
type Scheduler struct {
	Runner   ReportRunner
	LastRuns LastRunSource
	Rdb      *redis.Client
	Cron     string
	Stop     chan struct{}

	tickEvery time.Duration
}

// Start launches the scheduler loop.
func (s *Scheduler) Start() {
	if s.tickEvery == 0 {
		s.tickEvery = 15 * time.Minute
	}
	ticker := time.NewTicker(s.tickEvery)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	logger := telemetry.NewLogger("SCHED")

	var last *time.Time
	if s.LastRuns != nil {
		last, _ = s.LastRuns.LatestRunTime(ctx)
	}
	if !isDue(s.Cron, last) {
		return
	}

	// distributed lock to avoid duplicate runs across replicas
	if s.Rdb != nil {
		ok, _ := s.Rdb.SetNX(ctx, "sched:lock:daily", "1", 2*time.Minute).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, "sched:lock:daily")
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	logger.Printf("scheduled run firing for %s", date.Format("2006-01-02"))
	if _, err := s.Runner.Run(ctx, date, nil); err != nil {
		logger.Printf("scheduled run failed: %v", err)
	}
}

// isDue determines whether the report should run now given the last run time.
// Supports "@daily", "@hourly", and standard 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Invalid expression: fall back to @daily.
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
