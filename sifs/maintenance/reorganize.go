package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/index"

	"github.com/sourcegraph/conc/pool"
)

// Reorganize rebuilds the given disjoint groups of partitions of the index at
// indexPath, replacing each group with freshly built, freshly identified
// partitions. The per-group builds run concurrently; everything that mutates
// shared state (the merged partition set, identifier allocation, the master
// file) runs single-threaded after a mandatory barrier.
//
// Any group's build failure aborts the whole call before the merged set or
// any live file is mutated. Staging areas are removed on every path.
func (e *Engine) Reorganize(ctx context.Context, indexPath string, groups [][]index.Partition) error {
	if len(groups) == 0 {
		slog.Info("No split groups selected, skipping reorganization", "index", indexPath)
		return nil
	}

	// Groups must be disjoint before any file is touched.
	if err := index.CheckDisjoint(groups); err != nil {
		return err
	}

	// Single snapshot of the merged set, and through it the highest live cell
	// id, before the parallel build phase. New identifiers are allocated only
	// in the sequential reconciliation below, so no cross-goroutine counter
	// is needed.
	merged, err := e.loadMergedSet(indexPath)
	if err != nil {
		return err
	}

	alloc := newStagingAllocator(e.gw, filepath.Dir(indexPath), e.stagingRetries)
	stagingPaths := make([]string, len(groups))
	for i := range groups {
		if stagingPaths[i], err = alloc.Allocate(); err != nil {
			return err
		}
	}
	defer func() {
		for _, stagingPath := range stagingPaths {
			// Slots after a failed allocation are still empty.
			if stagingPath == "" {
				continue
			}
			e.removeStaging(stagingPath)
		}
	}()

	// Build phase: one independent builder job per group. Disjoint inputs,
	// disjoint staging paths, no shared mutable state among jobs.
	builds := pool.New().WithMaxGoroutines(e.maxWorkers).WithContext(ctx).WithCancelOnError()
	for i, group := range groups {
		iGroup, stagingPath := i, stagingPaths[i]
		inputs := make([]string, len(group))
		for j, p := range group {
			inputs[j] = filepath.Join(indexPath, p.Filename)
		}
		builds.Go(func(ctx context.Context) error {
			if err := e.builder.BuildFresh(ctx, inputs, stagingPath, e.params); err != nil {
				return fmt.Errorf("rebuild of group %d failed: %w", iGroup, err)
			}
			return nil
		})
	}
	// Barrier: every job must finish before any group is reconciled. A failed
	// job fails the whole call here, with the index untouched.
	if err := builds.Wait(); err != nil {
		return err
	}

	// Reconciliation: strictly sequential, in group submission order.
	maxID := merged.MaxID()
	var replaced []index.Partition
	for i, group := range groups {
		for _, oldP := range group {
			removed, err := merged.Remove(oldP.CellID)
			if err != nil {
				return fmt.Errorf("group %d references a partition missing from %s: %w", i, indexPath, err)
			}
			replaced = append(replaced, removed)
		}

		staged, err := index.LoadPartitions(e.gw, stagingPaths[i])
		if err != nil {
			return err
		}
		for _, newP := range staged {
			maxID++
			newName := fmt.Sprintf("part-%05d", maxID)
			// Preserve the extension of the staged file, if any.
			if ext := filepath.Ext(newP.Filename); ext != "" {
				newName += ext
			}
			src := filepath.Join(stagingPaths[i], newP.Filename)
			dst := filepath.Join(indexPath, newName)
			if err := e.gw.Rename(src, dst); err != nil {
				return err
			}
			newP.CellID = maxID
			newP.Filename = newName
			if err := merged.Insert(newP); err != nil {
				return err
			}
		}
	}

	// Commit the merged set as the new master file.
	if err := index.WritePartitions(e.gw, indexPath, merged.Snapshot()); err != nil {
		return err
	}

	// Only after the commit may the replaced files go away, so a reader never
	// observes a master file pointing at a deleted file.
	for _, oldP := range replaced {
		if err := e.gw.Delete(filepath.Join(indexPath, oldP.Filename), false); err != nil {
			return err
		}
	}
	e.regenerateVisualization(indexPath)

	slog.Info("Reorganization committed",
		"index", indexPath,
		"groups", len(groups),
		"replacedPartitions", len(replaced),
		"totalPartitions", merged.Len())
	return nil
}
