package warmstart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ZanzyTHEbar/pistat/pistat/accumulate"
	"github.com/ZanzyTHEbar/pistat/pistat/archive"
	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
	"github.com/ZanzyTHEbar/pistat/pistat/ledger"
	"github.com/ZanzyTHEbar/pistat/pistat/metrics"
	"github.com/ZanzyTHEbar/pistat/pistat/solver"
	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
	"github.com/ZanzyTHEbar/pistat/pistat/transport"
)

var (
	ErrSessionMismatch = errors.New("envelope belongs to another session")
	ErrNoArchive       = errors.New("no archive configured")
)

// Config identifies the worker a Service runs on.
type Config struct {
	Session     string
	Worker      string
	Parallelism int // concurrent sends per broadcast
}

// Deps are the collaborators of a Service. Archive and Metrics are optional.
type Deps struct {
	Registry  *solver.Registry
	Transport transport.Transport
	Ledger    ledger.Ledger
	Archive   archive.Archive
	Metrics   *metrics.TransferMetrics
	Logger    zerolog.Logger
}

// Service shares the statistics of one worker's solver with its peers and
// folds theirs back in.
type Service struct {
	cfg       Config
	registry  *solver.Registry
	transport transport.Transport
	archive   archive.Archive
	acc       *accumulate.Accumulator
	metrics   *metrics.TransferMetrics
	logger    zerolog.Logger
	tracer    trace.Tracer
}

func NewService(cfg Config, deps Deps) (*Service, error) {
	if cfg.Session == "" {
		return nil, fmt.Errorf("session cannot be empty")
	}
	if cfg.Worker == "" {
		return nil, fmt.Errorf("worker cannot be empty")
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if deps.Registry == nil {
		deps.Registry = DefaultRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewTransferMetrics("pistat")
	}
	logger := deps.Logger.With().
		Str("component", "warmstart").
		Str("session", cfg.Session).
		Str("worker", cfg.Worker).
		Logger()

	return &Service{
		cfg:       cfg,
		registry:  deps.Registry,
		transport: deps.Transport,
		archive:   deps.Archive,
		acc:       accumulate.NewAccumulator(deps.Ledger, deps.Registry, logger),
		metrics:   deps.Metrics,
		logger:    logger,
		tracer:    otel.Tracer("pistat/warmstart"),
	}, nil
}

// Metrics returns the service's metrics sink.
func (s *Service) Metrics() *metrics.TransferMetrics { return s.metrics }

// Checkpoint captures the solver's statistics into a new envelope and archives
// it when an archive is configured.
func (s *Service) Checkpoint(ctx context.Context, inst solver.Instance) (env *transfer.Envelope, err error) {
	ctx, span := s.tracer.Start(ctx, "warmstart.Checkpoint",
		trace.WithAttributes(
			attribute.String("session", s.cfg.Session),
			attribute.String("backend", inst.Backend()),
		),
	)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	capability, err := s.registry.For(inst)
	if err != nil {
		s.metrics.Observe(metrics.OpCapture, start, err)
		return nil, err
	}
	rec, err := capability.Capture(inst)
	s.metrics.Observe(metrics.OpCapture, start, err)
	if err != nil {
		return nil, err
	}
	env = transfer.NewEnvelope(s.cfg.Session, inst.Backend(), s.cfg.Worker, capability.Clone(rec))
	span.SetAttributes(
		attribute.String("transfer_id", env.ID.String()),
		attribute.Int("down", rec.Count(branchstats.Down)),
		attribute.Int("up", rec.Count(branchstats.Up)),
	)

	if s.archive != nil {
		start = time.Now()
		err = s.archive.Put(ctx, env)
		s.metrics.Observe(metrics.OpArchive, start, err)
		if err != nil {
			return nil, fmt.Errorf("archive checkpoint: %w", err)
		}
	}
	s.logger.Info().
		Str("transfer_id", env.ID.String()).
		Int("max_depth", rec.MaxDepth).
		Int("down", rec.Count(branchstats.Down)).
		Int("up", rec.Count(branchstats.Up)).
		Msg("checkpoint captured")
	return env, nil
}

// Broadcast seals env once and sends it to every peer concurrently. The
// returned error joins the failures of all peers that could not be reached.
func (s *Service) Broadcast(ctx context.Context, env *transfer.Envelope, peers []string) (err error) {
	ctx, span := s.tracer.Start(ctx, "warmstart.Broadcast",
		trace.WithAttributes(
			attribute.String("transfer_id", env.ID.String()),
			attribute.Int("peers", len(peers)),
		),
	)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	data, err := env.Seal()
	s.metrics.Observe(metrics.OpSeal, start, err)
	if err != nil {
		return err
	}
	s.metrics.ObservePayload(len(data))

	p := pool.New().WithMaxGoroutines(s.cfg.Parallelism).WithContext(ctx)
	for _, peer := range peers {
		p.Go(func(ctx context.Context) error {
			start := time.Now()
			err := s.transport.Send(ctx, peer, data)
			s.metrics.Observe(metrics.OpSend, start, err)
			if err != nil {
				s.logger.Warn().Err(err).Str("peer", peer).Str("transfer_id", env.ID.String()).Msg("send failed")
				return fmt.Errorf("peer %s: %w", peer, err)
			}
			s.logger.Debug().Str("peer", peer).Int("bytes", len(data)).Msg("envelope sent")
			return nil
		})
	}
	return p.Wait()
}

// Share checkpoints inst and broadcasts the result to peers.
func (s *Service) Share(ctx context.Context, inst solver.Instance, peers []string) (*transfer.Envelope, error) {
	env, err := s.Checkpoint(ctx, inst)
	if err != nil {
		return nil, err
	}
	return env, s.Broadcast(ctx, env, peers)
}

// ReceiveAndApply waits for one envelope and accumulates it onto inst.
// applied is false when the envelope was a redelivery.
func (s *Service) ReceiveAndApply(ctx context.Context, inst solver.Instance) (env *transfer.Envelope, applied bool, err error) {
	payload, err := s.transport.Receive(ctx)
	if err != nil {
		return nil, false, err
	}

	ctx, span := s.tracer.Start(ctx, "warmstart.ReceiveAndApply",
		trace.WithAttributes(attribute.Int("bytes", len(payload))),
	)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	env, err = transfer.Open(payload)
	s.metrics.Observe(metrics.OpReceive, start, err)
	if err != nil {
		return nil, false, err
	}
	s.metrics.ObservePayload(len(payload))
	span.SetAttributes(
		attribute.String("transfer_id", env.ID.String()),
		attribute.String("source", env.Source),
	)
	if env.Session != s.cfg.Session {
		return env, false, fmt.Errorf("%w: got %q, serving %q", ErrSessionMismatch, env.Session, s.cfg.Session)
	}

	applied, err = s.apply(ctx, inst, env)
	if err != nil || !applied {
		return env, applied, err
	}
	if s.archive != nil {
		if aerr := s.archive.Put(ctx, env); aerr != nil {
			s.logger.Warn().Err(aerr).Str("transfer_id", env.ID.String()).Msg("could not archive received envelope")
		}
	}
	return env, true, nil
}

// Seed applies the newest archived envelope of session to inst, typically a
// fresh solver joining a running solve.
func (s *Service) Seed(ctx context.Context, inst solver.Instance, session string) (env *transfer.Envelope, applied bool, err error) {
	ctx, span := s.tracer.Start(ctx, "warmstart.Seed",
		trace.WithAttributes(attribute.String("session", session)),
	)
	defer func() { endSpan(span, err) }()

	if s.archive == nil {
		return nil, false, ErrNoArchive
	}
	start := time.Now()
	env, err = s.archive.Latest(ctx, session)
	s.metrics.Observe(metrics.OpSeed, start, err)
	if err != nil {
		return nil, false, err
	}
	applied, err = s.apply(ctx, inst, env)
	return env, applied, err
}

// Serve applies incoming envelopes until ctx is done or the transport closes.
// Envelopes that fail to decode or accumulate are logged and skipped.
func (s *Service) Serve(ctx context.Context, inst solver.Instance) error {
	for {
		env, applied, err := s.ReceiveAndApply(ctx, inst)
		switch {
		case err == nil:
			if !applied {
				s.logger.Debug().Str("transfer_id", env.ID.String()).Msg("duplicate envelope ignored")
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, transport.ErrClosed):
			return err
		default:
			s.logger.Warn().Err(err).Msg("discarding envelope")
		}
	}
}

func (s *Service) apply(ctx context.Context, inst solver.Instance, env *transfer.Envelope) (bool, error) {
	start := time.Now()
	applied, err := s.acc.Apply(ctx, inst, env)
	s.metrics.Observe(metrics.OpAccumulate, start, err)
	if err != nil {
		return applied, err
	}
	if !applied {
		s.metrics.Duplicate()
		return false, nil
	}
	for _, dir := range branchstats.Directions {
		s.metrics.Accumulated(dir.String(), env.Record.Count(dir))
	}
	return true, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
