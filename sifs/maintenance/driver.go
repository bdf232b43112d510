package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/index"
)

// AddToIndex runs one full maintenance cycle against the index at indexPath:
// flush the new data, select the partitions worth rebuilding, reorganize
// them. Phases run strictly in sequence; each phase's postconditions are the
// next phase's preconditions, so no other writer may touch the index while a
// cycle runs.
func (e *Engine) AddToIndex(ctx context.Context, newDataPaths []string, indexPath string) error {
	if e.selector == nil {
		return fmt.Errorf("partition selector is required for a full maintenance cycle")
	}

	t0 := time.Now()
	if err := e.Flush(ctx, newDataPaths, indexPath); err != nil {
		return fmt.Errorf("flush phase: %w", err)
	}
	flushDone := time.Now()
	e.log.Info().Str("index", indexPath).Dur("duration", flushDone.Sub(t0)).Msg("Append done")

	groups, err := e.selector.Select(ctx, indexPath)
	if err != nil {
		return fmt.Errorf("selection phase: %w", err)
	}
	selectDone := time.Now()
	e.log.Info().
		Str("index", indexPath).
		Int("groups", len(groups)).
		Dur("duration", selectDone.Sub(flushDone)).
		Msg("Partition selection done")

	if err := e.Reorganize(ctx, indexPath, groups); err != nil {
		return fmt.Errorf("reorganize phase: %w", err)
	}
	e.log.Info().Str("index", indexPath).Dur("duration", time.Since(selectDone)).Msg("Reorganization done")

	return nil
}

// Verify re-checks the file/metadata correspondence invariant of the index.
// Exposed so operators can audit an index between maintenance cycles.
func (e *Engine) Verify(indexPath string) (*index.VerifyReport, error) {
	return index.Verify(e.gw, indexPath)
}
