package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/conduit/internal/streaming"
	"github.com/rendis/conduit/pkg/schema"
)

// Runner is the interface the scheduler uses to fire runs.
// Satisfied by a thin wrapper over the engine (avoids an import cycle).
type Runner interface {
	RunDefinition(ctx context.Context, def *schema.Definition, trigger map[string]any) error
}

// Schedule binds a cron expression to a workflow definition and a synthetic
// trigger payload.
type Schedule struct {
	ID         string
	Expr       string
	Definition *schema.Definition
	Trigger    map[string]any

	NextRunAt  time.Time
	LastRunAt  *time.Time
	LastStatus string
}

// Scheduler fires registered schedules when they come due.
// Schedules live in memory, matching the rest of the execution core.
type Scheduler struct {
	runner Runner
	parser cron.Parser
	logger *slog.Logger

	// TickInterval controls the polling cadence. Set before Start.
	TickInterval time.Duration

	// Hub, when set before Start, receives a schedule_fired event per fire.
	Hub streaming.EventHub

	cancel context.CancelFunc
	done   chan struct{}
	fires  sync.WaitGroup
	mu     sync.Mutex

	schedMu   sync.Mutex
	schedules map[string]*Schedule
	inflight  map[string]struct{} // schedule IDs currently executing (dedup)
}

// New creates a Scheduler with the standard five-field cron parser.
func New(runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:       runner,
		parser:       cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:       logger,
		TickInterval: 60 * time.Second,
		schedules:    make(map[string]*Schedule),
		inflight:     make(map[string]struct{}),
	}
}

// Add registers a schedule. The cron expression is validated here so a bad
// expression fails at registration, not at fire time.
func (s *Scheduler) Add(id, expr string, def *schema.Definition, trigger map[string]any) error {
	if id == "" {
		return schema.NewError(schema.ErrCodeValidation, "schedule id is empty")
	}
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "schedule definition is nil")
	}
	next, err := s.CalculateNextRun(expr, time.Now().UTC())
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression %q: %s", expr, err.Error()).WithCause(err)
	}

	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	if _, exists := s.schedules[id]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "schedule %q already registered", id)
	}
	s.schedules[id] = &Schedule{
		ID:         id,
		Expr:       expr,
		Definition: def,
		Trigger:    trigger,
		NextRunAt:  next,
	}
	return nil
}

// Remove unregisters a schedule.
func (s *Scheduler) Remove(id string) {
	s.schedMu.Lock()
	delete(s.schedules, id)
	s.schedMu.Unlock()
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("tick", s.TickInterval))
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer s.fires.Wait()

	ticker := time.NewTicker(s.TickInterval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires every due schedule, each on its own goroutine: a long run (an
// approval wait, say) must not stall other schedules, and the inflight set
// keeps a still-running fire from being duplicated on the next tick.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	s.schedMu.Lock()
	due := make([]*Schedule, 0)
	for _, sched := range s.schedules {
		if !sched.NextRunAt.After(now) {
			due = append(due, sched)
		}
	}
	s.schedMu.Unlock()

	for _, sched := range due {
		if !s.tryAcquire(sched.ID) {
			continue // previous fire still executing
		}
		s.fires.Add(1)
		go func(sched *Schedule) {
			defer s.fires.Done()
			defer s.release(sched.ID)
			if err := s.fire(ctx, sched, now); err != nil {
				s.logger.Error("scheduled run failed",
					slog.String("schedule_id", sched.ID),
					slog.String("error", err.Error()),
				)
			}
		}(sched)
	}
}

// fire executes one schedule and advances its timestamps.
func (s *Scheduler) fire(ctx context.Context, sched *Schedule, now time.Time) error {
	s.logger.Info("schedule fired",
		slog.String("schedule_id", sched.ID),
		slog.String("expr", sched.Expr),
	)
	if s.Hub != nil {
		_ = s.Hub.Publish(ctx, streaming.StreamEvent{
			EventType: schema.EventScheduleFired,
			Payload:   sched.ID,
		})
	}

	trigger := map[string]any{
		"scheduleId": sched.ID,
		"firedAt":    now.Format(time.RFC3339),
	}
	for k, v := range sched.Trigger {
		trigger[k] = v
	}

	err := s.runner.RunDefinition(ctx, sched.Definition, trigger)
	status := "success"
	if err != nil {
		status = "error"
	}

	next, calcErr := s.CalculateNextRun(sched.Expr, now)
	if calcErr != nil {
		return fmt.Errorf("calculate next run for schedule %q: %w", sched.ID, calcErr)
	}

	s.schedMu.Lock()
	sched.LastRunAt = &now
	sched.LastStatus = status
	sched.NextRunAt = next
	s.schedMu.Unlock()

	return err
}

// CalculateNextRun parses a cron expression and returns the next fire time
// after the given instant.
func (s *Scheduler) CalculateNextRun(expr string, after time.Time) (time.Time, error) {
	sched, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

func (s *Scheduler) tryAcquire(id string) bool {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	if _, running := s.inflight[id]; running {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.schedMu.Lock()
	delete(s.inflight, id)
	s.schedMu.Unlock()
}
