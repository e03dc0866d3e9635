// pkg/engine/restore.go
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/go-dogfight/pkg/entity"
	"github.com/opd-ai/go-dogfight/pkg/logging"
	"github.com/opd-ai/go-dogfight/pkg/physics"
)

// Restore builds an engine holding exactly the fighters in snap, at the
// snapshot's tick. Every fighter is re-validated against limits; if any
// is out of range or duplicated, no engine is returned.
func Restore(limits physics.Limits, snap *entity.Snapshot, logger *logging.Logger) (*Engine, error) {
	if snap == nil {
		return nil, errors.New("restore: nil snapshot")
	}

	e, err := NewEngine(limits, logger)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, src := range snap.Fighters {
		f, ok := e.validatedCopy(src)
		if !ok {
			errs = append(errs, fmt.Errorf("fighter %q: state outside limits", src.ID))
			continue
		}
		if !e.registry.Add(f) {
			errs = append(errs, fmt.Errorf("fighter %q: duplicate id", src.ID))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("restore tick %d: %w", snap.Tick, err)
	}

	e.currentTick = snap.Tick
	e.logger.Info(context.Background(), "restored snapshot", "tick", snap.Tick, "fighters", e.registry.IDs())
	if snap.Ended {
		e.End()
	}
	return e, nil
}
