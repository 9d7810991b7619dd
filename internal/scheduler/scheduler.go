// Package scheduler republishes a time-stamped display name once a minute.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/danhigham/nickclock/internal/domain"
)

const (
	DefaultInterval       = 60 * time.Second
	DefaultCooldown       = 55 * time.Second
	DefaultPublishTimeout = 30 * time.Second
)

// Publisher writes the display name. UpdateDisplayName reports whether a
// write was issued.
type Publisher interface {
	FirstName(ctx context.Context) (string, error)
	UpdateDisplayName(ctx context.Context, firstName, lastName string) (bool, error)
}

// NameFunc computes the name that should be live at now.
type NameFunc func(now time.Time) string

type Option func(*Scheduler)

func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithInterval(interval, cooldown time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = interval
		s.cooldown = cooldown
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.publishTimeout = d }
}

// scheduleState lives from one Start to the matching Stop. A publish that
// finishes after Stop writes into a discarded value.
type scheduleState struct {
	inFlight atomic.Bool

	mu       sync.Mutex
	lastName string
	lastTime time.Time
}

func (st *scheduleState) last() (string, time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastName, st.lastTime
}

func (st *scheduleState) record(name string, at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastName = name
	st.lastTime = at
}

type Scheduler struct {
	pub            Publisher
	name           NameFunc
	logger         *zap.Logger
	clock          clockwork.Clock
	interval       time.Duration
	cooldown       time.Duration
	publishTimeout time.Duration

	mu      sync.Mutex
	state   *scheduleState
	stop    chan struct{}
	ticker  clockwork.Ticker
	onEvent func(domain.ActivityEntry)
}

func New(pub Publisher, name NameFunc, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		pub:            pub,
		name:           name,
		logger:         logger,
		clock:          clockwork.NewRealClock(),
		interval:       DefaultInterval,
		cooldown:       DefaultCooldown,
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetOnEvent registers a hook that receives every publish, skip, failure
// and restore.
func (s *Scheduler) SetOnEvent(fn func(domain.ActivityEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// LastPublished returns the bookkeeping of the current run.
func (s *Scheduler) LastPublished() (string, time.Time) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st == nil {
		return "", time.Time{}
	}
	return st.last()
}

// Start begins periodic publishing and runs the correction pass before
// returning. Starting a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		s.logger.Debug("Scheduler already running")
		return
	}
	st := &scheduleState{}
	stop := make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)
	s.state = st
	s.stop = stop
	s.ticker = ticker
	s.mu.Unlock()

	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))
	go s.loop(st, ticker, stop)

	s.correct(ctx, st)
}

// Stop cancels the ticker and drops the bookkeeping. An in-flight publish is
// not waited for.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.stop = nil
	s.ticker = nil
	s.state = nil
	s.logger.Info("Scheduler stopped")
}

// Disable stops the scheduler and puts base back as the display name.
// Restore failures are logged only.
func (s *Scheduler) Disable(ctx context.Context, base string) {
	s.Stop()
	if base == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	if _, err := s.pub.UpdateDisplayName(ctx, base, ""); err != nil {
		s.logger.Warn("Failed to restore base name", zap.String("name", base), zap.Error(err))
		s.emit(domain.ActivityFailed, base, err.Error())
		return
	}
	s.logger.Info("Base name restored", zap.String("name", base))
	s.emit(domain.ActivityRestored, base, "")
}

func (s *Scheduler) loop(st *scheduleState, ticker clockwork.Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			select {
			case <-stop:
				return
			default:
			}
			go s.tick(st)
		}
	}
}

// correct reconciles the remote name with the target right away.
func (s *Scheduler) correct(ctx context.Context, st *scheduleState) {
	if !st.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer st.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	now := s.clock.Now()
	target := s.name(now)
	current, err := s.pub.FirstName(ctx)
	if err != nil {
		s.failed(target, err)
		return
	}
	if current == target {
		s.logger.Debug("Name already correct", zap.String("name", target))
		st.record(target, now)
		s.emit(domain.ActivitySkipped, target, "already current")
		return
	}

	if _, err := s.pub.UpdateDisplayName(ctx, target, ""); err != nil {
		s.failed(target, err)
		return
	}
	st.record(target, now)
	s.logger.Info("Name corrected", zap.String("name", target))
	s.emit(domain.ActivityPublished, target, "")
}

func (s *Scheduler) tick(st *scheduleState) {
	if !st.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("Publish in flight, skipping tick")
		return
	}
	defer st.inFlight.Store(false)

	now := s.clock.Now()
	lastName, lastTime := st.last()
	if !lastTime.IsZero() && now.Sub(lastTime) < s.cooldown {
		s.logger.Debug("Too soon since last publish, skipping tick")
		return
	}
	target := s.name(now)
	if target == lastName {
		s.logger.Debug("Name unchanged, skipping tick", zap.String("name", target))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
	defer cancel()
	applied, err := s.pub.UpdateDisplayName(ctx, target, "")
	if err != nil {
		s.failed(target, err)
		return
	}
	st.record(target, now)
	if !applied {
		s.emit(domain.ActivitySkipped, target, "already current")
		return
	}
	s.logger.Info("Name published", zap.String("name", target))
	s.emit(domain.ActivityPublished, target, "")
}

func (s *Scheduler) failed(name string, err error) {
	serr := &domain.SchedulerError{Kind: domain.PublishFailure, Name: name, Err: err}
	s.logger.Error("Publish failed", zap.String("name", name), zap.Error(err))
	s.emit(domain.ActivityFailed, name, serr.Error())
}

func (s *Scheduler) emit(kind domain.ActivityKind, name, detail string) {
	s.mu.Lock()
	fn := s.onEvent
	s.mu.Unlock()
	if fn == nil {
		return
	}
	fn(domain.ActivityEntry{Kind: kind, Name: name, Detail: detail, Timestamp: s.clock.Now()})
}
