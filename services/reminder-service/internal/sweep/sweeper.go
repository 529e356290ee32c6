package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	otelx "github.com/md-rashed-zaman/mentorslots/libs/otel"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/dispatch"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Source loads reminder candidates for sessions starting in [from, to] whose fire time is at
// or before now.
type Source interface {
	Candidates(ctx context.Context, from, to, now time.Time, limit int) ([]model.Candidate, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, task model.Task) dispatch.Result
}

type Config struct {
	Interval     time.Duration
	Horizon      time.Duration
	BatchSize    int
	Concurrency  int
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Summary counts what one sweep did.
type Summary struct {
	Candidates int `json:"candidates"`
	Due        int `json:"due"`
	Sent       int `json:"sent"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
	Discarded  int `json:"discarded"`
}

// Sweeper runs the periodic reminder sweep. Overlapping sweeps, in one process or across
// replicas, are safe: the record table decides what has been sent.
type Sweeper struct {
	source     Source
	dispatcher Dispatcher
	logger     *slog.Logger
	cfg        Config
	tracer     trace.Tracer
}

func NewSweeper(source Source, dispatcher Dispatcher, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		source:     source,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		tracer:     otelx.Tracer("reminder-service/sweep"),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

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

func (s *Sweeper) tick(ctx context.Context) {
	sum, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("reminder sweep failed", "err", err)
		return
	}
	if sum.Due > 0 {
		s.logger.Info("reminder sweep done",
			"due", sum.Due, "sent", sum.Sent, "duplicates", sum.Duplicates,
			"failed", sum.Failed, "discarded", sum.Discarded)
	}
}

// RunOnce performs a single sweep. Dispatch outcomes are counted, never returned as errors;
// only a failed candidate load is.
func (s *Sweeper) RunOnce(ctx context.Context) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "reminder.sweep")
	defer span.End()

	now := s.cfg.Now().UTC()
	loadCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	cands, err := s.source.Candidates(loadCtx, now, now.Add(s.cfg.Horizon), now, s.cfg.BatchSize)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load candidates")
		return Summary{}, err
	}

	tasks := Due(cands, now, s.cfg.Horizon)
	sum := Summary{Candidates: len(cands), Due: len(tasks)}
	span.SetAttributes(attribute.Int("sweep.candidates", len(cands)), attribute.Int("sweep.due", len(tasks)))
	if len(cands) >= s.cfg.BatchSize {
		s.logger.Warn("reminder sweep hit batch limit; remaining reminders wait for the next tick", "batch_size", s.cfg.BatchSize)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, task := range tasks {
		g.Go(func() error {
			res := s.dispatcher.Dispatch(ctx, task)
			mu.Lock()
			defer mu.Unlock()
			switch res.Status {
			case dispatch.StatusSent:
				sum.Sent++
				if res.Duplicate {
					sum.Duplicates++
				}
			case dispatch.StatusDiscarded:
				sum.Discarded++
			default:
				sum.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	return sum, nil
}
