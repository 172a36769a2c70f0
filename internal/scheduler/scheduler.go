// Package scheduler provides cron-based job scheduling for recurring
// maintenance tasks such as the conversation expiry sweep.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sweetline/confectioner/internal/session"
)

// DefaultExpirySchedule runs the conversation expiry sweep every 10 minutes.
const DefaultExpirySchedule = "*/10 * * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddExpirySweep schedules the conversation store expiry sweep. Conversations
// idle beyond maxAge are reset to the beginning on their next message.
func (s *Scheduler) AddExpirySweep(expr string, sessions *session.Store, maxAge time.Duration) error {
	return s.AddJob(expr, func() {
		removed := sessions.Expire(maxAge)
		if removed > 0 {
			slog.Info("Scheduler expiry sweep removed stale conversations", "removed", removed, "max_age", maxAge)
		} else {
			slog.Debug("Scheduler expiry sweep found no stale conversations", "max_age", maxAge)
		}
	})
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
