package dataset

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RefreshConfig holds configuration for the refresher.
type RefreshConfig struct {
	Interval time.Duration
	Logger   *zap.Logger
}

// Refresher periodically rebuilds a service from its source.
type Refresher struct {
	svc      *Service
	interval time.Duration
	logger   *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRefresher starts a refresher for svc.
// Returns nil when the interval is 0 (disabled).
func NewRefresher(svc *Service, conf ...RefreshConfig) *Refresher {
	var cfg RefreshConfig
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.Interval <= 0 {
		return nil
	}
	if cfg.Logger == nil {
		cfg.Logger = svc.logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		svc:      svc,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	r.wg.Add(1)
	go r.tickLoop()
	return r
}

func (r *Refresher) tickLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refresh()
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Refresher) refresh() {
	if err := r.svc.Rebuild(r.ctx); err != nil {
		// Rebuild already logged the cause; the previous population stays live.
		r.logger.Warn("dataset: scheduled refresh failed", zap.Duration("interval", r.interval))
	}
}

// Stop cancels any in-flight rebuild and waits for the refresher to exit.
// Safe to call more than once.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		r.wg.Wait()
	})
}
