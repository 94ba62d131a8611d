package accumulate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
	"github.com/ZanzyTHEbar/pistat/pistat/ledger"
	"github.com/ZanzyTHEbar/pistat/pistat/solver"
	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
)

// Accumulator applies received envelopes to a solver at most once each.
//
// Each envelope id is looked up in the ledger before the record is touched and
// marked after it has been accumulated. A crash between the two steps leaves
// the id unmarked, so that one envelope may be applied again on redelivery.
type Accumulator struct {
	mu       sync.Mutex
	ledger   ledger.Ledger
	registry *solver.Registry
	logger   zerolog.Logger
}

// NewAccumulator returns an Accumulator backed by l. When reg is nil every
// target is accumulated with AccumulateOnto; otherwise the capability
// registered for the target's backend is used.
func NewAccumulator(l ledger.Ledger, reg *solver.Registry, logger zerolog.Logger) *Accumulator {
	return &Accumulator{
		ledger:   l,
		registry: reg,
		logger:   logger.With().Str("component", "accumulator").Logger(),
	}
}

// Apply accumulates env.Record onto target unless env.ID was applied before.
// applied is false for a redelivery and for any error.
func (a *Accumulator) Apply(ctx context.Context, target solver.Instance, env *transfer.Envelope) (applied bool, err error) {
	if env == nil || env.Record == nil {
		return false, &branchstats.AccumulationError{Op: "envelope", Err: errors.New("empty envelope")}
	}
	log := a.logger.With().
		Str("transfer_id", env.ID.String()).
		Str("session", env.Session).
		Str("source", env.Source).
		Logger()

	a.mu.Lock()
	defer a.mu.Unlock()

	seen, err := a.ledger.Applied(ctx, env.ID)
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	if seen {
		log.Debug().Msg("skipping redelivered transfer")
		return false, nil
	}

	accumulate := AccumulateOnto
	if a.registry != nil {
		t, err := a.registry.For(target)
		if err != nil {
			return false, err
		}
		accumulate = t.AccumulateOnto
	}
	if err := accumulate(target, env.Record); err != nil {
		log.Warn().Err(err).Msg("accumulation rejected")
		return false, err
	}

	if err := a.ledger.Mark(ctx, env.ID); err != nil {
		// The record is already in the solver; report it as applied.
		log.Error().Err(err).Msg("accumulated but could not mark transfer applied")
		return true, fmt.Errorf("ledger mark: %w", err)
	}
	log.Info().
		Int("down", env.Record.Count(branchstats.Down)).
		Int("up", env.Record.Count(branchstats.Up)).
		Int("max_total_depth", env.Record.MaxTotalDepth).
		Msg("transfer accumulated")
	return true, nil
}
