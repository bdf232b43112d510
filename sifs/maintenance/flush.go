package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/index"
)

// Flush appends the records under inputs to the index at indexPath. When the
// index does not exist yet the call delegates entirely to the builder's
// fresh-build mode. Otherwise the new data is repartitioned against the
// existing scheme into a staging area, the staged files are concatenated onto
// their corresponding live partitions, and the merged metadata is committed
// as the new master file.
//
// Flush is transactional up to its single master-file write: any failure
// before that write leaves the target index untouched.
func (e *Engine) Flush(ctx context.Context, inputs []string, indexPath string) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}

	exists, err := e.gw.Exists(indexPath)
	if err != nil {
		return err
	}
	if !exists {
		// A new index, create it.
		slog.Info("Index does not exist, building fresh", "index", indexPath)
		return e.builder.BuildFresh(ctx, inputs, indexPath, e.params)
	}

	alloc := newStagingAllocator(e.gw, filepath.Dir(indexPath), e.stagingRetries)
	stagingPath, err := alloc.Allocate()
	if err != nil {
		return err
	}
	// The staging area is removed unconditionally, whether or not the merge
	// below succeeds.
	defer e.removeStaging(stagingPath)

	// Index the input in reference to the existing partitioning scheme.
	if err := e.builder.Repartition(ctx, inputs, stagingPath, indexPath, e.params); err != nil {
		return fmt.Errorf("repartition of new data failed: %w", err)
	}

	merged, err := e.loadMergedSet(indexPath)
	if err != nil {
		return err
	}

	staged, err := index.LoadPartitions(e.gw, stagingPath)
	if err != nil {
		return err
	}
	// Repartitioning guarantees new data only lands in cells that already
	// exist in the target scheme. Check every staged partition before the
	// first byte is appended, so an inconsistent batch aborts with the index
	// untouched rather than half-concatenated.
	for _, newP := range staged {
		if _, ok := merged.Get(newP.CellID); !ok {
			return fmt.Errorf("%w: %s", ErrNoCorrespondingPartition, newP)
		}
	}

	for _, newP := range staged {
		existing, _ := merged.Get(newP.CellID)
		existing.Expand(newP)
		dst := filepath.Join(indexPath, existing.Filename)
		src := filepath.Join(stagingPath, newP.Filename)
		if err := e.gw.Concat(dst, src); err != nil {
			return err
		}
	}

	if err := index.WritePartitions(e.gw, indexPath, merged.Snapshot()); err != nil {
		return err
	}
	e.regenerateVisualization(indexPath)

	slog.Info("Flush committed",
		"index", indexPath,
		"appendedPartitions", len(staged),
		"totalPartitions", merged.Len())
	return nil
}

func (e *Engine) loadMergedSet(indexPath string) (*index.PartitionSet, error) {
	partitions, err := index.LoadPartitions(e.gw, indexPath)
	if err != nil {
		return nil, err
	}
	return index.NewPartitionSet(partitions)
}

// regenerateVisualization refreshes the derived WKT artifact. Best-effort:
// failures are logged, never raised.
func (e *Engine) regenerateVisualization(indexPath string) {
	if err := index.RegenerateVisualization(e.gw, indexPath); err != nil {
		slog.Warn("Failed to regenerate visualization metadata",
			"index", indexPath,
			"error", err)
	}
}

func (e *Engine) removeStaging(stagingPath string) {
	exists, err := e.gw.Exists(stagingPath)
	if err == nil && !exists {
		return
	}
	if err := e.gw.Delete(stagingPath, true); err != nil {
		slog.Warn("Failed to remove staging area", "path", stagingPath, "error", err)
	}
}
