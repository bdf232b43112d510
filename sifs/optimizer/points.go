package optimizer

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/index"
)

// partitionPoint positions one partition in the kd-tree by the centroid of
// its extent.
type partitionPoint struct {
	part index.Partition
	pt   kdtree.Point
}

func newPartitionPoint(p index.Partition) partitionPoint {
	x, y := p.Extent.Center()
	return partitionPoint{part: p, pt: kdtree.Point{x, y}}
}

// Compare performs axis comparisons for the kd-tree.
func (p partitionPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(partitionPoint)
	return p.pt[d] - q.pt[d]
}

// Dims returns the number of dimensions of the centroid point.
func (p partitionPoint) Dims() int {
	return len(p.pt)
}

// Distance returns the squared Euclidean distance between two centroids, the
// metric gonum's keepers expect.
func (p partitionPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(partitionPoint)
	var dist float64
	for i := range p.pt {
		delta := p.pt[i] - q.pt[i]
		dist += delta * delta
	}
	return dist
}

// partitionPoints implements kdtree.Interface for tree construction.
type partitionPoints []partitionPoint

func (p partitionPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p partitionPoints) Len() int                      { return len(p) }
func (p partitionPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}
func (p partitionPoints) Pivot(d kdtree.Dim) int {
	return plane{partitionPoints: p, Dim: d}.Pivot()
}

// plane sorts partitionPoints along one dimension.
type plane struct {
	kdtree.Dim
	partitionPoints
}

func (p plane) Less(i, j int) bool {
	return p.partitionPoints[i].pt[p.Dim] < p.partitionPoints[j].pt[p.Dim]
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.partitionPoints = p.partitionPoints[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.partitionPoints[i], p.partitionPoints[j] = p.partitionPoints[j], p.partitionPoints[i]
}
