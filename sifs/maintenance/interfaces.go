package maintenance

import (
	"context"

	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/index"
)

// BuilderParams is the opaque configuration bag forwarded unchanged to every
// index-builder invocation. The engine never interprets it.
type BuilderParams map[string]string

// IndexBuilder is the external collaborator that materializes spatial indexes.
// Both operations either leave outPath absent or fully formed: a master file
// plus the data files it lists. Implementations block until the job completes
// or ctx is cancelled.
type IndexBuilder interface {
	// BuildFresh builds a brand-new index over inputs at outPath.
	BuildFresh(ctx context.Context, inputs []string, outPath string, params BuilderParams) error
	// Repartition builds a self-contained mini-index over inputs at outPath
	// using the cell boundaries of the existing index at refPath, so the
	// result merges into the reference index by cell id.
	Repartition(ctx context.Context, inputs []string, outPath string, refPath string, params BuilderParams) error
}

// PartitionSelector picks disjoint groups of partitions worth rebuilding
// together. The engine does not interpret the cost model behind the choice;
// it only requires that groups are disjoint, non-empty and reference
// partitions that currently exist in the index.
type PartitionSelector interface {
	Select(ctx context.Context, indexPath string) ([][]index.Partition, error)
}
