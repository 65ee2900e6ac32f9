package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/grantsweep/pkg/idx"
)

var ErrInvalidInterval = errors.New("scheduler: interval must be positive")

const (
	TriggerTick   = "tick"
	TriggerStart  = "start"
	TriggerManual = "manual"
)

// Cleaner runs one cleanup pass.
type Cleaner interface {
	RemoveExpiredGrants(ctx context.Context) PassReport
}

// Observer receives every finished pass report.
type Observer interface {
	ObservePass(PassReport)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(PassReport)

func (f ObserverFunc) ObservePass(r PassReport) { f(r) }

type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

type SchedulerConfig struct {
	Interval time.Duration

	// RunOnStart runs a pass as soon as the scheduler starts instead of
	// waiting for the first tick.
	RunOnStart bool
}

// Scheduler drives a Cleaner on a fixed interval. At most one pass runs at a
// time; ticks and manual triggers that find a pass in flight are skipped.
type Scheduler struct {
	Cleaner Cleaner
	Logger  *slog.Logger
	Config  SchedulerConfig

	state atomic.Int32

	mu        sync.RWMutex
	last      *PassReport
	observers []Observer

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	doneCh    chan struct{}
}

// NewScheduler validates cfg. A non-positive interval is refused rather than
// defaulted so misconfiguration fails at startup.
func NewScheduler(cleaner Cleaner, logger *slog.Logger, cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, ErrInvalidInterval
	}

	return &Scheduler{
		Cleaner: cleaner,
		Logger:  logger,
		Config:  cfg,
	}, nil
}

// AddObserver registers o to receive every subsequent pass report.
func (s *Scheduler) AddObserver(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Start launches the background loop. It is non-blocking; calling it again
// while running does nothing. The loop ends when ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.doneCh != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.doneCh = make(chan struct{})
	go s.run(ctx, s.doneCh)

	s.Logger.Info("cleanup scheduler started", "interval", s.Config.Interval, "run_on_start", s.Config.RunOnStart)
}

// Stop cancels the loop and blocks until it has exited. An in-flight pass is
// aborted at its next store call boundary. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.doneCh == nil {
		return
	}

	s.cancel()
	<-s.doneCh
	s.doneCh = nil
	s.cancel = nil

	s.Logger.Info("cleanup scheduler stopped")
}

// State reports whether a pass is currently running.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// LastReport returns the most recent finished pass, if any.
func (s *Scheduler) LastReport() (PassReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return PassReport{}, false
	}
	return *s.last, true
}

// TriggerNow runs a pass immediately on the caller's goroutine. It returns
// false without running anything when a pass is already in flight.
func (s *Scheduler) TriggerNow(ctx context.Context) (PassReport, bool) {
	report, ok := s.runPass(ctx, TriggerManual)
	if !ok {
		s.Logger.Warn("cleanup pass already running, skipping manual trigger")
	}
	return report, ok
}

func (s *Scheduler) run(ctx context.Context, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()

	if s.Config.RunOnStart {
		s.tick(ctx, TriggerStart)
	}

	for {
		select {
		case <-ticker.C:
			s.tick(ctx, TriggerTick)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, trigger string) {
	if _, ok := s.runPass(ctx, trigger); !ok {
		s.Logger.Warn("cleanup pass still running, skipping tick", "trigger", trigger)
	}
}

// runPass moves Idle to Running, runs one pass and always returns to Idle.
func (s *Scheduler) runPass(ctx context.Context, trigger string) (PassReport, bool) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return PassReport{}, false
	}
	defer s.state.Store(int32(StateIdle))

	report := s.safeRun(ctx)
	report.Trigger = trigger

	s.logPass(report)
	s.publish(report)
	return report, true
}

func (s *Scheduler) safeRun(ctx context.Context) (report PassReport) {
	started := time.Now().UTC()

	defer func() {
		if r := recover(); r != nil {
			report = PassReport{
				ID:         idx.New(),
				StartedAt:  started,
				FinishedAt: time.Now().UTC(),
				Failure:    fmt.Errorf("cleanup pass panicked: %v", r),
			}
		}
	}()

	return s.Cleaner.RemoveExpiredGrants(ctx)
}

func (s *Scheduler) logPass(r PassReport) {
	attrs := []any{
		"pass_id", r.ID.String(),
		"trigger", r.Trigger,
		"removed", r.Removed(),
		"duration_ms", r.Duration().Milliseconds(),
	}
	for _, k := range r.Kinds {
		attrs = append(attrs, string(k.Kind), k.Removed)
	}

	if err := r.Err(); err != nil {
		s.Logger.Error("cleanup pass completed with errors", append(attrs, "error", err)...)
		return
	}
	s.Logger.Info("cleanup pass completed", attrs...)
}

func (s *Scheduler) publish(r PassReport) {
	s.mu.Lock()
	s.last = &r
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		s.notify(o, r)
	}
}

func (s *Scheduler) notify(o Observer, r PassReport) {
	defer func() {
		if rec := recover(); rec != nil {
			s.Logger.Error("cleanup observer panicked", "pass_id", r.ID.String(), "panic", rec)
		}
	}()
	o.ObservePass(r)
}
