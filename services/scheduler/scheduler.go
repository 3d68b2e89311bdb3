package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reminderbot/core"
	"reminderbot/core/log"
	"reminderbot/metrics"
	"reminderbot/models"
	"reminderbot/services"
)

const (
	DefaultTickInterval  = 24 * time.Hour
	DefaultDueTolerance  = time.Minute
	DefaultDispatchDelay = 2 * time.Second
	DefaultEventTimeout  = 30 * time.Second
	DefaultSyncInterval  = 5 * time.Minute
	DefaultShutdownGrace = 10 * time.Second
)

var (
	errDispatchTimeout  = errors.New("dispatch timed out")
	errDispatchInFlight = errors.New("previous dispatch still running")
)

type Config struct {
	TickInterval time.Duration
	// DueTolerance absorbs tick jitter: an event is due once elapsed >= interval - DueTolerance
	DueTolerance  time.Duration
	DispatchDelay time.Duration
	EventTimeout  time.Duration
	SyncInterval  time.Duration
	ShutdownGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.DueTolerance < 0 {
		c.DueTolerance = 0
	}
	if c.DispatchDelay < 0 {
		c.DispatchDelay = 0
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = DefaultEventTimeout
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	return c
}

// TickReport summarizes one pass over the watched events
type TickReport struct {
	Due        int
	Dispatched int
	Failed     int
	Deferred   int
	// Failures holds the error of every failed or deferred event
	Failures map[string]error
}

type ReminderScheduler struct {
	cache      services.EventCache
	dispatcher services.ReminderDispatcher
	clock      core.Clock
	sleep      core.SleepFunc
	cfg        Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	running sync.WaitGroup

	// inflight holds events whose Dispatch call has not returned, including ones past their timeout
	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

func NewReminderScheduler(
	cache services.EventCache,
	dispatcher services.ReminderDispatcher,
	clock core.Clock,
	sleep core.SleepFunc,
	cfg Config,
) *ReminderScheduler {
	return &ReminderScheduler{
		cache:      cache,
		dispatcher: dispatcher,
		clock:      clock,
		sleep:      sleep,
		cfg:        cfg.withDefaults(),
		inflight:   make(map[string]struct{}),
	}
}

// Pause moves an ACTIVE event to PAUSED. Paused events keep their last reminder time.
func (s *ReminderScheduler) Pause(ctx context.Context, eventID string) (*models.Event, error) {
	return s.setPaused(ctx, eventID, true)
}

// Resume moves a PAUSED event back to ACTIVE. It is due on the next tick if its interval already elapsed.
func (s *ReminderScheduler) Resume(ctx context.Context, eventID string) (*models.Event, error) {
	return s.setPaused(ctx, eventID, false)
}

func (s *ReminderScheduler) setPaused(ctx context.Context, eventID string, paused bool) (*models.Event, error) {
	event, err := s.cache.Update(eventID, func(event *models.Event) error {
		if event.IsPaused == paused {
			return core.NewValidationError("state", "event %s is already %s", eventID, event.State())
		}
		event.IsPaused = paused
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Flush(ctx, eventID); err != nil {
		log.Warn("⚠️ Failed to persist state of event %s, will retry on next sync: %v", eventID, err)
	}
	log.Info("📋 Event %s is now %s", eventID, event.State())
	return event, nil
}

// IsDue reports whether an active event should be reminded at now
func (s *ReminderScheduler) IsDue(event *models.Event, now time.Time) bool {
	if event.IsPaused {
		return false
	}
	threshold := event.Interval - s.cfg.DueTolerance
	if threshold <= 0 {
		return true
	}
	return now.Sub(event.LastReminder) >= threshold
}

// Tick dispatches every due event once, sequentially and paced by the dispatch delay.
// A failing or slow event never stops the remaining ones.
func (s *ReminderScheduler) Tick(ctx context.Context) (TickReport, error) {
	started := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(started).Seconds())
	}()

	report := TickReport{Failures: make(map[string]error)}
	now := s.clock.Now()

	var due []*models.Event
	for _, event := range s.cache.ListAll() {
		if s.IsDue(event, now) {
			due = append(due, event)
		}
	}
	report.Due = len(due)
	if len(due) == 0 {
		return report, nil
	}

	log.Info("📋 Starting to process %d due events", len(due))
	for i, event := range due {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.DispatchDelay); err != nil {
				return report, err
			}
		}

		_, err := s.dispatchWithTimeout(ctx, event.MessageID)
		switch {
		case err == nil:
			report.Dispatched++
		case errors.Is(err, errDispatchTimeout):
			report.Deferred++
			report.Failures[event.MessageID] = err
			log.Warn("⚠️ Reminder for event %s timed out after %s, deferring to next tick", event.MessageID, s.cfg.EventTimeout)
		case errors.Is(err, errDispatchInFlight):
			report.Deferred++
			report.Failures[event.MessageID] = err
			log.Warn("⚠️ Previous reminder for event %s is still running, deferring to next tick", event.MessageID)
		default:
			report.Failed++
			report.Failures[event.MessageID] = err
			log.Error("❌ Failed to remind event %s: %v", event.MessageID, err)
		}

		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}

	log.Info("📋 Completed successfully - dispatched %d, failed %d, deferred %d",
		report.Dispatched, report.Failed, report.Deferred)
	return report, nil
}

func (s *ReminderScheduler) dispatchWithTimeout(ctx context.Context, eventID string) (*models.DispatchResult, error) {
	if !s.claim(eventID) {
		return nil, fmt.Errorf("event %s: %w", eventID, errDispatchInFlight)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.EventTimeout)
	defer cancel()

	type outcome struct {
		result *models.DispatchResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer s.release(eventID)
		result, err := s.dispatcher.Dispatch(ctx, eventID)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("event %s: %w", eventID, errDispatchTimeout)
		}
		return out.result, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("event %s: %w", eventID, errDispatchTimeout)
	}
}

func (s *ReminderScheduler) claim(eventID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[eventID]; busy {
		return false
	}
	s.inflight[eventID] = struct{}{}
	return true
}

func (s *ReminderScheduler) release(eventID string) {
	s.inflightMu.Lock()
	delete(s.inflight, eventID)
	s.inflightMu.Unlock()
}

func (s *ReminderScheduler) isInFlight(eventID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	_, busy := s.inflight[eventID]
	return busy
}

// Run ticks until ctx is cancelled
func (s *ReminderScheduler) Run(ctx context.Context) error {
	log.Info("📋 Reminder scheduler started with tick interval %s", s.cfg.TickInterval)
	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			log.Error("❌ Scheduler tick failed: %v", err)
		}
		if err := s.sleep(ctx, s.cfg.TickInterval); err != nil {
			log.Info("📋 Reminder scheduler stopped")
			return nil
		}
	}
}

// RunSync periodically flushes the cache to its repository until ctx is cancelled
func (s *ReminderScheduler) RunSync(ctx context.Context) error {
	for {
		if err := s.sleep(ctx, s.cfg.SyncInterval); err != nil {
			return nil
		}
		if report := s.cache.Sync(ctx); report.HasFailures() {
			log.Error("❌ Periodic sync left %d events unsaved: %v", len(report.Failures), report.Err())
		}
	}
}

// Start runs the tick and sync loops in the background
func (s *ReminderScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running.Add(2)
	go func() {
		defer s.running.Done()
		_ = s.Run(ctx)
	}()
	go func() {
		defer s.running.Done()
		_ = s.RunSync(ctx)
	}()
}

// Stop cancels the loops, waits up to the shutdown grace period for the current tick and
// flushes the cache one last time.
func (s *ReminderScheduler) Stop() models.SyncReport {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		stopped := make(chan struct{})
		go func() {
			s.running.Wait()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(s.cfg.ShutdownGrace):
			log.Warn("⚠️ Scheduler did not stop within %s, abandoning current tick", s.cfg.ShutdownGrace)
		}
	}

	ctx, cancelFlush := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancelFlush()

	log.Info("📋 Starting to flush event cache before shutdown")
	report := s.cache.Sync(ctx)
	if report.HasFailures() {
		log.Error("❌ Final flush left %d events unsaved: %v", len(report.Failures), report.Err())
	} else {
		log.Info("📋 Completed successfully - flushed %d events", report.Persisted)
	}
	return report
}

var _ services.ReminderScheduler = (*ReminderScheduler)(nil)
