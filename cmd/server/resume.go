// cmd/server/resume.go
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/go-dogfight/pkg/engine"
	"github.com/opd-ai/go-dogfight/pkg/entity"
	"github.com/opd-ai/go-dogfight/pkg/logging"
	"github.com/opd-ai/go-dogfight/pkg/physics"
	"github.com/opd-ai/go-dogfight/pkg/recorder"
)

// snapshotSource is the part of the recorder a resume reads from.
type snapshotSource interface {
	LatestTick(ctx context.Context) (uint64, error)
	Load(ctx context.Context, tick uint64) (*entity.Snapshot, error)
}

// resumeEngine restores an engine from the latest snapshot in src. It
// returns a nil engine and no error when there is nothing to resume: the
// store is empty or the recorded run already ended.
func resumeEngine(ctx context.Context, src snapshotSource, limits physics.Limits, logger *logging.Logger) (*engine.Engine, error) {
	tick, err := src.LatestTick(ctx)
	if errors.Is(err, recorder.ErrTickNotFound) {
		logger.Info(ctx, "No recorded ticks, starting fresh")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap, err := src.Load(ctx, tick)
	if err != nil {
		return nil, err
	}
	if snap.Ended {
		logger.Warn(ctx, "Recorded run already ended, starting fresh", "tick", tick)
		return nil, nil
	}

	e, err := engine.Restore(limits, snap, logger.With("component", "engine"))
	if err != nil {
		return nil, fmt.Errorf("resume from tick %d: %w", tick, err)
	}
	logger.Info(ctx, "Resumed from recorder", "tick", tick, "fighters", e.FighterCount())
	return e, nil
}
