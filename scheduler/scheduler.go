package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is the function signature for scheduled maintenance work. The context
// is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Recorder observes job outcomes.
type Recorder interface {
	RecordJob(job string, success bool)
}

// Scheduler manages periodic and delayed maintenance jobs.
type Scheduler struct {
	mu       sync.Mutex
	tickers  map[string]*tickerEntry
	timers   map[string]*time.Timer
	logger   *zap.Logger
	recorder Recorder
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type tickerEntry struct {
	ticker   *time.Ticker
	interval time.Duration
	stopCh   chan struct{}
}

// New creates a new Scheduler. rec may be nil.
func New(logger *zap.Logger, rec Recorder) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tickers:  make(map[string]*tickerEntry),
		timers:   make(map[string]*time.Timer),
		logger:   logger,
		recorder: rec,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// run executes one job invocation, converting panics to failures.
func (s *Scheduler) run(name string, fn Job) {
	success := false
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler job panicked",
				zap.String("job", name),
				zap.Any("recover", r))
		}
		if s.recorder != nil {
			s.recorder.RecordJob(name, success)
		}
	}()
	start := time.Now()
	if err := fn(s.ctx); err != nil {
		if s.ctx.Err() == nil {
			s.logger.Warn("scheduler job failed", zap.String("job", name), zap.Error(err))
		}
		return
	}
	success = true
	s.logger.Debug("scheduler job done", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
}

// AddTicker registers a job to run on a fixed interval.
// If a job with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn Job) {
	if interval <= 0 {
		s.logger.Info("scheduler job disabled", zap.String("job", name))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		ticker:   time.NewTicker(interval),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	s.tickers[name] = entry

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer entry.ticker.Stop()
		for {
			select {
			case <-entry.ticker.C:
				s.run(name, fn)
			case <-entry.stopCh:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler job registered", zap.String("job", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after the given delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}

	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer func() {
			s.mu.Lock()
			if s.timers[name] == t {
				delete(s.timers, name)
			}
			s.mu.Unlock()
		}()
		if s.ctx.Err() != nil {
			return
		}
		s.run(name, fn)
	})
	s.timers[name] = t
}

// RunNow executes fn synchronously under the scheduler's context and
// recorder. Startup passes use it before the first tick.
func (s *Scheduler) RunNow(name string, fn Job) {
	s.run(name, fn)
}

// Remove stops and removes a ticker or delay job by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tickers[name]; ok {
		close(entry.stopCh)
		delete(s.tickers, name)
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// Stop cancels every job and waits for running tickers to return.
// Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ListTickers returns the names of all registered ticker jobs, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
