// Package optimizer selects groups of index partitions worth rebuilding
// together. Partitions accumulate overlap and size skew as batches are
// appended to an index; the optimizer ranks the damage and hands the
// maintenance engine disjoint split groups whose rebuild buys back the most
// quality.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/config"
	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/index"
	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/storage"
)

// Kind names a selection strategy.
type Kind string

const (
	// MaximumReducedCost groups the partitions whose mutual overlap is the
	// most expensive, together with their overlapping neighbors.
	MaximumReducedCost Kind = "maxReducedCost"
	// SizeSkew groups partitions whose data size deviates sharply from the
	// index-wide mean, paired with their nearest spatial neighbor.
	SizeSkew Kind = "sizeSkew"
)

// Optimizer implements partition selection over a live index.
type Optimizer struct {
	gw           storage.Gateway
	kind         Kind
	maxGroups    int
	maxGroupSize int
	skewSigma    float64
}

// New builds an optimizer from configuration.
func New(gw storage.Gateway, cfg *config.Config) (*Optimizer, error) {
	o := &Optimizer{
		gw:           gw,
		kind:         MaximumReducedCost,
		maxGroups:    8,
		maxGroupSize: 16,
		skewSigma:    2.0,
	}
	if cfg != nil {
		if cfg.Optimizer.Kind != "" {
			o.kind = Kind(cfg.Optimizer.Kind)
		}
		if cfg.Optimizer.MaxGroups > 0 {
			o.maxGroups = cfg.Optimizer.MaxGroups
		}
		if cfg.Optimizer.MaxGroupSize > 0 {
			o.maxGroupSize = cfg.Optimizer.MaxGroupSize
		}
		if cfg.Optimizer.SkewSigma > 0 {
			o.skewSigma = cfg.Optimizer.SkewSigma
		}
	}
	switch o.kind {
	case MaximumReducedCost, SizeSkew:
	default:
		return nil, fmt.Errorf("unknown optimizer kind %q", o.kind)
	}
	return o, nil
}

// Select returns disjoint, non-empty groups of partitions from the index at
// indexPath. Groups reference partitions as they exist at call time; the
// caller must not mutate the index before reorganizing them.
func (o *Optimizer) Select(ctx context.Context, indexPath string) ([][]index.Partition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	partitions, err := index.LoadPartitions(o.gw, indexPath)
	if err != nil {
		return nil, err
	}
	if len(partitions) < 2 {
		return nil, nil
	}

	var groups [][]index.Partition
	switch o.kind {
	case MaximumReducedCost:
		groups = o.selectByOverlap(partitions)
	case SizeSkew:
		groups = o.selectBySizeSkew(partitions)
	}

	slog.Debug("Partition selection finished",
		"index", indexPath,
		"kind", string(o.kind),
		"partitions", len(partitions),
		"groups", len(groups))
	return groups, nil
}

// selectByOverlap ranks partitions by how much extent area they share with
// their spatial neighbors and greedily groups the worst offenders with the
// neighbors they actually overlap. Groups are disjoint by construction.
func (o *Optimizer) selectByOverlap(partitions []index.Partition) [][]index.Partition {
	// kdtree.New reorders the slice in place; after this line points[i] no
	// longer matches partitions[i], so queries build a fresh point instead.
	points := make(partitionPoints, len(partitions))
	for i, p := range partitions {
		points[i] = newPartitionPoint(p)
	}
	tree := kdtree.New(points, false)

	k := min(o.maxGroupSize, len(partitions))
	type ranked struct {
		idx  int
		cost float64
	}
	costs := make([]ranked, len(partitions))
	neighborSets := make([][]index.Partition, len(partitions))
	for i, p := range partitions {
		keeper := kdtree.NewNKeeper(k)
		tree.NearestSet(keeper, newPartitionPoint(p))
		var cost float64
		var overlapping []index.Partition
		for _, item := range keeper.Heap {
			if item.Comparable == nil {
				continue
			}
			q := item.Comparable.(partitionPoint).part
			if q.CellID == p.CellID {
				continue
			}
			if area := p.Extent.IntersectionArea(q.Extent); area > 0 {
				cost += area
				overlapping = append(overlapping, q)
			}
		}
		costs[i] = ranked{idx: i, cost: cost}
		neighborSets[i] = overlapping
	}
	sort.Slice(costs, func(i, j int) bool { return costs[i].cost > costs[j].cost })

	assigned := make(map[int]bool, len(partitions))
	var groups [][]index.Partition
	for _, r := range costs {
		if len(groups) >= o.maxGroups {
			break
		}
		if r.cost <= 0 {
			break
		}
		seed := partitions[r.idx]
		if assigned[seed.CellID] {
			continue
		}
		group := []index.Partition{seed}
		assigned[seed.CellID] = true
		for _, neighbor := range neighborSets[r.idx] {
			if len(group) >= o.maxGroupSize {
				break
			}
			if assigned[neighbor.CellID] {
				continue
			}
			group = append(group, neighbor)
			assigned[neighbor.CellID] = true
		}
		// A partition overlapping nothing still available gains nothing from
		// a solo rebuild.
		if len(group) < 2 {
			continue
		}
		groups = append(groups, group)
	}
	return groups
}

// selectBySizeSkew flags partitions whose data size sits further than
// skewSigma standard deviations from the mean and pairs each with its nearest
// spatial neighbor so the rebuild can rebalance records between them.
func (o *Optimizer) selectBySizeSkew(partitions []index.Partition) [][]index.Partition {
	sizes := make([]float64, len(partitions))
	for i, p := range partitions {
		sizes[i] = float64(p.DataSize)
	}
	mean, std := stat.MeanStdDev(sizes, nil)
	if std == 0 {
		return nil
	}

	// As in selectByOverlap, tree construction reorders points; query with a
	// fresh point.
	points := make(partitionPoints, len(partitions))
	for i, p := range partitions {
		points[i] = newPartitionPoint(p)
	}
	tree := kdtree.New(points, false)

	assigned := make(map[int]bool, len(partitions))
	var groups [][]index.Partition
	for i, p := range partitions {
		if len(groups) >= o.maxGroups {
			break
		}
		if assigned[p.CellID] {
			continue
		}
		deviation := (sizes[i] - mean) / std
		if deviation < o.skewSigma && deviation > -o.skewSigma {
			continue
		}
		group := []index.Partition{p}
		assigned[p.CellID] = true

		// Pull in the nearest unassigned neighbor so records can move across
		// the cell boundary during the rebuild.
		keeper := kdtree.NewNKeeper(min(o.maxGroupSize, len(partitions)))
		tree.NearestSet(keeper, newPartitionPoint(p))
		candidates := append([]kdtree.ComparableDist(nil), keeper.Heap...)
		sort.Slice(candidates, func(a, b int) bool { return candidates[a].Dist < candidates[b].Dist })
		for _, item := range candidates {
			if item.Comparable == nil {
				continue
			}
			q := item.Comparable.(partitionPoint).part
			if q.CellID == p.CellID || assigned[q.CellID] {
				continue
			}
			group = append(group, q)
			assigned[q.CellID] = true
			break
		}
		if len(group) < 2 {
			continue
		}
		groups = append(groups, group)
	}
	return groups
}
