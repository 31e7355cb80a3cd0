package promotion

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"gymhub/backend/internal/logger"
)

// Drainer re-drives every queued promotion once and reports how many succeeded and
// how many remain queued.
type Drainer interface {
	DrainPromotions(ctx context.Context) (promoted, remaining int, err error)
}

// Scheduler runs a Drainer on a cron schedule. Runs never overlap.
type Scheduler struct {
	cron    *cron.Cron
	drainer Drainer
	timeout time.Duration
	logger  *zap.Logger
	mu      sync.Mutex
	started bool
}

// NewScheduler returns a scheduler running drainer on spec (standard cron or "@every 30s").
// Each run is bounded by timeout.
func NewScheduler(spec string, drainer Drainer, timeout time.Duration, log *zap.Logger) (*Scheduler, error) {
	log = logger.OrNop(log)
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		drainer: drainer,
		timeout: timeout,
		logger:  log,
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// RunOnce drains the queue now.
func (s *Scheduler) RunOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	promoted, remaining, err := s.drainer.DrainPromotions(ctx)
	if err != nil {
		s.logger.Warn("promotion retry: drain failed", zap.Error(err))
		return
	}
	if promoted > 0 || remaining > 0 {
		s.logger.Info("promotion retry: drained",
			zap.Int("promoted", promoted), zap.Int("remaining", remaining))
	}
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop halts the schedule and waits for a running drain to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
