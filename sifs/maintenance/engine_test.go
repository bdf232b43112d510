package maintenance

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/index"
	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/storage"
)

var errBuilderDown = errors.New("builder job failed")

// fakeBuilder is a scriptable IndexBuilder double. The default behaviors
// write a well-formed mini-index so tests exercise the engine's merge and
// reconciliation paths, not the builder.
type fakeBuilder struct {
	freshCalls       int
	repartitionCalls int

	freshFn       func(ctx context.Context, inputs []string, outPath string, params BuilderParams) error
	repartitionFn func(ctx context.Context, inputs []string, outPath, refPath string, params BuilderParams) error
}

func (b *fakeBuilder) BuildFresh(ctx context.Context, inputs []string, outPath string, params BuilderParams) error {
	b.freshCalls++
	if b.freshFn != nil {
		return b.freshFn(ctx, inputs, outPath, params)
	}
	return nil
}

func (b *fakeBuilder) Repartition(ctx context.Context, inputs []string, outPath, refPath string, params BuilderParams) error {
	b.repartitionCalls++
	if b.repartitionFn != nil {
		return b.repartitionFn(ctx, inputs, outPath, refPath, params)
	}
	return nil
}

// fakeSelector returns a canned set of split groups.
type fakeSelector struct {
	groups [][]index.Partition
	err    error
	calls  int
}

func (s *fakeSelector) Select(ctx context.Context, indexPath string) ([][]index.Partition, error) {
	s.calls++
	return s.groups, s.err
}

// miniPartition pairs a partition record with its data file's content.
type miniPartition struct {
	part    index.Partition
	content string
}

func newTestGateway() *storage.AferoGateway {
	return storage.NewAferoGateway(afero.NewMemMapFs())
}

// writeMiniIndex materializes a self-contained index: one master file plus
// the data files it lists. It panics on write errors so builder fakes can
// call it from worker goroutines, where FailNow is off-limits.
func writeMiniIndex(gw *storage.AferoGateway, indexPath string, parts []miniPartition) {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(gw.MkdirAll(indexPath))
	master, err := gw.Create(filepath.Join(indexPath, "_master.rtree"), true)
	must(err)
	for _, mp := range parts {
		_, err := master.Write([]byte(mp.part.MarshalLine() + "\n"))
		must(err)
	}
	must(master.Close())

	for _, mp := range parts {
		out, err := gw.Create(filepath.Join(indexPath, mp.part.Filename), true)
		must(err)
		_, err = out.Write([]byte(mp.content))
		must(err)
		must(out.Close())
	}
}

// twoCellIndex seeds the canonical test fixture: cells 1 and 2 with known
// contents and statistics.
func twoCellIndex(t *testing.T, gw *storage.AferoGateway, indexPath string) []miniPartition {
	t.Helper()
	parts := []miniPartition{
		{
			part: index.Partition{
				CellID: 1, Filename: "part-00001",
				Extent:      index.Extent{MinX: 0, MinY: 0, MaxX: 5, MaxY: 10},
				RecordCount: 100, DataSize: 9,
			},
			content: "cell1-old",
		},
		{
			part: index.Partition{
				CellID: 2, Filename: "part-00002",
				Extent:      index.Extent{MinX: 5, MinY: 0, MaxX: 10, MaxY: 10},
				RecordCount: 200, DataSize: 9,
			},
			content: "cell2-old",
		},
	}
	writeMiniIndex(gw, indexPath, parts)
	return parts
}

func newTestEngine(t *testing.T, gw *storage.AferoGateway, builder IndexBuilder, selector PartitionSelector) *Engine {
	t.Helper()
	engine, err := NewEngine(gw, builder, selector, nil)
	require.NoError(t, err)
	return engine
}

// indexFingerprint captures every file (name and content) in an index
// directory so tests can assert byte-for-byte atomicity.
func indexFingerprint(t *testing.T, gw *storage.AferoGateway, indexPath string) map[string]string {
	t.Helper()
	paths, err := gw.ListMatching(indexPath, nil)
	require.NoError(t, err)
	fp := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := gw.ReadFile(p)
		require.NoError(t, err)
		fp[filepath.Base(p)] = string(data)
	}
	return fp
}

// stagingAreas lists leftover staging paths under the index's parent.
func stagingAreas(t *testing.T, gw *storage.AferoGateway, parent string) []string {
	t.Helper()
	matches, err := gw.ListMatching(parent, func(name string) bool {
		return len(name) > 9 && name[:9] == ".staging-"
	})
	require.NoError(t, err)
	return matches
}
