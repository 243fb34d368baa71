// Package trigger is the external clock for the tick endpoints. It runs as its own process
// and only makes authenticated HTTP calls, so the server stays stateless between ticks.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Jobs fired by the runner, keyed by name.
var jobPaths = map[string]string{
	"checkins":    "/api/cron/run-checkins",
	"escalations": "/api/cron/run-escalations",
}

// Config describes where and how often to fire ticks.
type Config struct {
	BaseURL         string
	Token           string
	CheckinsSpec    string
	EscalationsSpec string
	Timeout         time.Duration
}

// Runner fires tick requests on cron schedules.
type Runner struct {
	cron   *cron.Cron
	client *resty.Client
	logger *zap.Logger
}

// New validates the schedules and registers both jobs. Call Start to begin firing.
func New(cfg Config, logger *zap.Logger) (*Runner, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("trigger base url is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("cron secret token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	cl := cronLogger{s: logger.Sugar()}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	r := &Runner{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("x-cron-token", cfg.Token),
		logger: logger,
	}

	for job, spec := range map[string]string{"checkins": cfg.CheckinsSpec, "escalations": cfg.EscalationsSpec} {
		job := job
		if _, err := r.cron.AddFunc(spec, func() { _ = r.Fire(context.Background(), job) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", job, spec, err)
		}
	}
	return r, nil
}

// Start begins firing in the background.
func (r *Runner) Start() { r.cron.Start() }

// Stop halts scheduling; the returned context is done once running fires finish.
func (r *Runner) Stop() context.Context { return r.cron.Stop() }

// Fire calls one tick endpoint and returns an error unless it answered 200.
func (r *Runner) Fire(ctx context.Context, job string) error {
	path, ok := jobPaths[job]
	if !ok {
		return fmt.Errorf("unknown job %q", job)
	}
	start := time.Now()
	resp, err := r.client.R().SetContext(ctx).Post(path)
	if err != nil {
		r.logger.Error("tick request failed", zap.String("job", job), zap.Error(err))
		return fmt.Errorf("fire %s: %w", job, err)
	}
	if resp.StatusCode() != 200 {
		r.logger.Error("tick rejected",
			zap.String("job", job),
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return fmt.Errorf("fire %s: status %d", job, resp.StatusCode())
	}
	r.logger.Info("tick fired", zap.String("job", job), zap.Duration("took", time.Since(start)))
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
