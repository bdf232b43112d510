package optimizer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/config"
	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/index"
	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/storage"
)

func writeIndex(t *testing.T, gw *storage.AferoGateway, indexPath string, partitions []index.Partition) {
	t.Helper()
	require.NoError(t, gw.MkdirAll(indexPath))
	out, err := gw.Create(filepath.Join(indexPath, "_master.rtree"), true)
	require.NoError(t, err)
	for _, p := range partitions {
		_, err := out.Write([]byte(p.MarshalLine() + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, out.Close())
}

func newOptimizer(t *testing.T, gw *storage.AferoGateway, kind Kind) *Optimizer {
	t.Helper()
	cfg := &config.Config{}
	cfg.Optimizer.Kind = string(kind)
	o, err := New(gw, cfg)
	require.NoError(t, err)
	return o
}

func TestNewRejectsUnknownKind(t *testing.T) {
	cfg := &config.Config{}
	cfg.Optimizer.Kind = "alphabetical"
	_, err := New(storage.NewAferoGateway(afero.NewMemMapFs()), cfg)
	assert.Error(t, err)
}

func TestSelectByOverlapGroupsOverlappingPartitions(t *testing.T) {
	gw := storage.NewAferoGateway(afero.NewMemMapFs())

	// Cells 1 and 2 overlap heavily; cells 3 and 4 are far away and disjoint.
	partitions := []index.Partition{
		{CellID: 1, Filename: "part-00001", Extent: index.Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}, RecordCount: 10, DataSize: 100},
		{CellID: 2, Filename: "part-00002", Extent: index.Extent{MinX: 5, MinY: 5, MaxX: 15, MaxY: 15}, RecordCount: 10, DataSize: 100},
		{CellID: 3, Filename: "part-00003", Extent: index.Extent{MinX: 100, MinY: 100, MaxX: 110, MaxY: 110}, RecordCount: 10, DataSize: 100},
		{CellID: 4, Filename: "part-00004", Extent: index.Extent{MinX: 200, MinY: 200, MaxX: 210, MaxY: 210}, RecordCount: 10, DataSize: 100},
	}
	writeIndex(t, gw, "/data/index", partitions)

	groups, err := newOptimizer(t, gw, MaximumReducedCost).Select(context.Background(), "/data/index")
	require.NoError(t, err)

	require.Len(t, groups, 1, "only the overlapping pair is worth rebuilding")
	require.Len(t, groups[0], 2)
	cells := map[int]bool{groups[0][0].CellID: true, groups[0][1].CellID: true}
	assert.True(t, cells[1] && cells[2])

	assert.NoError(t, index.CheckDisjoint(groups))
}

func TestSelectByOverlapNoOverlapNoGroups(t *testing.T) {
	gw := storage.NewAferoGateway(afero.NewMemMapFs())
	partitions := []index.Partition{
		{CellID: 1, Filename: "part-00001", Extent: index.Extent{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}},
		{CellID: 2, Filename: "part-00002", Extent: index.Extent{MinX: 10, MinY: 10, MaxX: 11, MaxY: 11}},
	}
	writeIndex(t, gw, "/data/index", partitions)

	groups, err := newOptimizer(t, gw, MaximumReducedCost).Select(context.Background(), "/data/index")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestSelectBySizeSkewFlagsOutliers(t *testing.T) {
	gw := storage.NewAferoGateway(afero.NewMemMapFs())

	// Cell 5 is a gross outlier in data size; its nearest neighbor is cell 4.
	partitions := []index.Partition{
		{CellID: 1, Filename: "part-00001", Extent: index.Extent{MinX: 0, MaxX: 1, MaxY: 1}, DataSize: 100},
		{CellID: 2, Filename: "part-00002", Extent: index.Extent{MinX: 1, MaxX: 2, MaxY: 1}, DataSize: 100},
		{CellID: 3, Filename: "part-00003", Extent: index.Extent{MinX: 2, MaxX: 3, MaxY: 1}, DataSize: 100},
		{CellID: 4, Filename: "part-00004", Extent: index.Extent{MinX: 3, MaxX: 4, MaxY: 1}, DataSize: 100},
		{CellID: 5, Filename: "part-00005", Extent: index.Extent{MinX: 4, MaxX: 5, MaxY: 1}, DataSize: 100000},
	}
	writeIndex(t, gw, "/data/index", partitions)

	// With few partitions a lone outlier tops out near (n-1)/sqrt(n) sigma,
	// so use a tighter threshold than the default.
	cfg := &config.Config{}
	cfg.Optimizer.Kind = string(SizeSkew)
	cfg.Optimizer.SkewSigma = 1.5
	o, err := New(gw, cfg)
	require.NoError(t, err)

	groups, err := o.Select(context.Background(), "/data/index")
	require.NoError(t, err)

	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
	assert.Equal(t, 5, groups[0][0].CellID)
	assert.Equal(t, 4, groups[0][1].CellID)
	assert.NoError(t, index.CheckDisjoint(groups))
}

func TestSelectBySizeSkewUnsortedInputPairsTrueNearestNeighbor(t *testing.T) {
	gw := storage.NewAferoGateway(afero.NewMemMapFs())

	// Same collinear row as above, but listed in descending spatial order so
	// the master-file order disagrees with the kd-tree's internal layout. The
	// outlier cell 1 sits at x 4.5; its nearest neighbor is cell 2 at x 3.5.
	partitions := []index.Partition{
		{CellID: 1, Filename: "part-00001", Extent: index.Extent{MinX: 4, MaxX: 5, MaxY: 1}, DataSize: 100000},
		{CellID: 2, Filename: "part-00002", Extent: index.Extent{MinX: 3, MaxX: 4, MaxY: 1}, DataSize: 100},
		{CellID: 3, Filename: "part-00003", Extent: index.Extent{MinX: 2, MaxX: 3, MaxY: 1}, DataSize: 100},
		{CellID: 4, Filename: "part-00004", Extent: index.Extent{MinX: 1, MaxX: 2, MaxY: 1}, DataSize: 100},
		{CellID: 5, Filename: "part-00005", Extent: index.Extent{MinX: 0, MaxX: 1, MaxY: 1}, DataSize: 100},
	}
	writeIndex(t, gw, "/data/index", partitions)

	cfg := &config.Config{}
	cfg.Optimizer.Kind = string(SizeSkew)
	cfg.Optimizer.SkewSigma = 1.5
	o, err := New(gw, cfg)
	require.NoError(t, err)

	groups, err := o.Select(context.Background(), "/data/index")
	require.NoError(t, err)

	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
	assert.Equal(t, 1, groups[0][0].CellID)
	assert.Equal(t, 2, groups[0][1].CellID, "outlier must be paired with its nearest spatial neighbor")
}

func TestSelectByOverlapUnsortedInputSmallNeighborhood(t *testing.T) {
	gw := storage.NewAferoGateway(afero.NewMemMapFs())

	// Cells 1 and 2 overlap; the rest are far away. The list is spatially
	// scrambled and the neighborhood cap is smaller than the index, so the
	// right pair is found only if each query starts from its own centroid.
	partitions := []index.Partition{
		{CellID: 3, Filename: "part-00003", Extent: index.Extent{MinX: 100, MinY: 100, MaxX: 101, MaxY: 101}, DataSize: 100},
		{CellID: 1, Filename: "part-00001", Extent: index.Extent{MinX: 0, MinY: 0, MaxX: 2, MaxY: 2}, DataSize: 100},
		{CellID: 5, Filename: "part-00005", Extent: index.Extent{MinX: 300, MinY: 300, MaxX: 301, MaxY: 301}, DataSize: 100},
		{CellID: 2, Filename: "part-00002", Extent: index.Extent{MinX: 1, MinY: 1, MaxX: 3, MaxY: 3}, DataSize: 100},
		{CellID: 4, Filename: "part-00004", Extent: index.Extent{MinX: 200, MinY: 200, MaxX: 201, MaxY: 201}, DataSize: 100},
	}
	writeIndex(t, gw, "/data/index", partitions)

	cfg := &config.Config{}
	cfg.Optimizer.Kind = string(MaximumReducedCost)
	cfg.Optimizer.MaxGroupSize = 2
	o, err := New(gw, cfg)
	require.NoError(t, err)

	groups, err := o.Select(context.Background(), "/data/index")
	require.NoError(t, err)

	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
	cells := map[int]bool{groups[0][0].CellID: true, groups[0][1].CellID: true}
	assert.True(t, cells[1] && cells[2])
}

func TestSelectSinglePartitionIndexYieldsNothing(t *testing.T) {
	gw := storage.NewAferoGateway(afero.NewMemMapFs())
	writeIndex(t, gw, "/data/index", []index.Partition{
		{CellID: 1, Filename: "part-00001", Extent: index.Extent{MaxX: 1, MaxY: 1}},
	})

	groups, err := newOptimizer(t, gw, MaximumReducedCost).Select(context.Background(), "/data/index")
	require.NoError(t, err)
	assert.Empty(t, groups)
}
