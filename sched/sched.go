// Package sched runs the bot's periodic work: watcher polls on fixed
// intervals and clock-time jobs in the configured timezone.
package sched

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	robfigcron "github.com/robfig/cron/v3"

	"github.com/linanwx/milo/logger"
)

// jobTimeout bounds a single run; watcher polls fan out several HTTP
// fetches plus a model call.
const jobTimeout = 5 * time.Minute

// Scheduler pairs an interval scheduler (watcher polls, balance check,
// media poll) with a cron scheduler for wall-clock jobs (briefing,
// birthdays, lunch reminder). Clock jobs follow the configured
// timezone across DST changes.
type Scheduler struct {
	intervals gocron.Scheduler
	clock     *robfigcron.Cron

	mu   sync.Mutex
	jobs []string
}

// New creates a stopped scheduler in loc.
func New(loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	intervals, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		intervals: intervals,
		clock:     robfigcron.New(robfigcron.WithLocation(loc)),
	}, nil
}

// Every runs fn on a fixed interval, once immediately at start and then
// every interval. Runs never overlap; a run still going when the next
// fires pushes it back.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	_, err := s.intervals.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.run(name, fn) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.addJob(fmt.Sprintf("%s: every %s", name, fmtDur(interval)))
	return nil
}

// Daily runs fn every day at hour:minute in the scheduler's timezone.
func (s *Scheduler) Daily(name string, hour, minute int, fn func(context.Context) error) error {
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := s.clock.AddFunc(spec, func() { s.run(name, fn) }); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.addJob(fmt.Sprintf("%s: daily at %02d:%02d", name, hour, minute))
	return nil
}

// Start launches both schedulers. Interval jobs fire their first run
// right away.
func (s *Scheduler) Start() {
	s.intervals.Start()
	s.clock.Start()
	logger.Info("scheduler started", "jobs", len(s.Jobs()))
}

// Stop halts scheduling and waits for in-flight clock jobs to finish.
func (s *Scheduler) Stop() {
	if err := s.intervals.Shutdown(); err != nil {
		logger.Warn("interval scheduler shutdown", "error", err)
	}
	<-s.clock.Stop().Done()
	logger.Info("scheduler stopped")
}

// Jobs lists every registered job for the status command.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.jobs...)
}

func (s *Scheduler) addJob(desc string) {
	s.mu.Lock()
	s.jobs = append(s.jobs, desc)
	s.mu.Unlock()
}

// run executes one job with a deadline and panic recovery so a bad poll
// can't take the scheduler down.
func (s *Scheduler) run(name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduled job panicked",
				"job", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("scheduled job failed", "job", name, "error", err)
	}
}

// fmtDur trims the zero tails duration strings carry ("30m0s", "12h0m0s").
func fmtDur(d time.Duration) string {
	str := d.String()
	if strings.HasSuffix(str, "m0s") {
		str = str[:len(str)-2]
	}
	if strings.HasSuffix(str, "h0m") {
		str = str[:len(str)-2]
	}
	return str
}
