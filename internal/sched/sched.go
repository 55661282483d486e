// Package sched runs the periodic curation pass: analyze the inbox, then
// file what cleared the confidence bar.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/curator"
	"github.com/starford/ansuz/internal/filing"
)

// Config holds scheduler settings.
type Config struct {
	// Spec is a standard 5-field cron expression.
	Spec string
	// Limit caps notes per pass; zero uses the filing default.
	Limit int
	// MinConfidence for the filing step; zero uses the filing default.
	MinConfidence float64
}

// Scheduler triggers curation passes on a cron schedule. A pass that is
// still running when the next tick fires is not overlapped; the tick is
// skipped.
type Scheduler struct {
	cfg     Config
	svc     *curator.Service
	cron    *rcron.Cron
	logger  *slog.Logger
	running atomic.Bool
}

// New creates a Scheduler.
func New(cfg Config, svc *curator.Service, logger *slog.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, svc: svc, logger: logger}
}

// Run registers the job and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron = rcron.New()
	if _, err := s.cron.AddFunc(s.cfg.Spec, func() { s.tick(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler: started", slog.String("spec", s.cfg.Spec))

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn("scheduler: stop timeout waiting for running pass")
	}
	s.logger.Info("scheduler: stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("scheduler: previous pass still running, skipping tick")
		return
	}
	defer s.running.Store(false)
	s.runOnce(ctx)
}

// runOnce performs one analyze-then-file pass.
func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()

	results, err := s.svc.AnalyzeInbox(ctx, s.cfg.Limit)
	switch {
	case errors.Is(err, apperr.ErrAnalyzerDisabled):
		// Filing still proceeds over notes analyzed by other means.
	case err != nil:
		s.logger.Error("scheduler: analyze failed", slog.String("error", err.Error()))
		return
	default:
		s.logger.Info("scheduler: analyzed", slog.Int("notes", len(results)))
	}

	res, err := s.svc.FileInbox(ctx, filing.Options{
		Limit:         s.cfg.Limit,
		MinConfidence: s.cfg.MinConfidence,
	})
	if err != nil {
		s.logger.Error("scheduler: filing failed", slog.String("error", err.Error()))
		return
	}

	s.logger.Info("scheduler: pass complete",
		slog.Int("processed", res.Processed),
		slog.Int("filed", res.Filed),
		slog.Int("queued", res.Queued),
		slog.Int("failed", res.Failed),
		slog.Duration("took", time.Since(start)))
}
