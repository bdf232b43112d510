package index

import (
	"errors"
	"fmt"
	"sort"

	roaring "github.com/RoaringBitmap/roaring"
)

// Consistency errors raised by merged-set mutations.
var (
	ErrDuplicateCell = errors.New("duplicate cell id")
	ErrCellNotFound  = errors.New("cell id not present in merged set")
	ErrEmptyGroup    = errors.New("split group is empty")
	ErrGroupsOverlap = errors.New("split groups are not disjoint")
)

// PartitionSet is the in-memory working copy of what the master file should
// say after an operation, keyed by cell id. A roaring bitmap mirrors the live
// ids so membership and overlap checks stay cheap even for wide indexes.
//
// The set is the single source of truth written back at commit time; it is
// mutated only by the single-threaded reconciliation phase and is not safe for
// concurrent use.
type PartitionSet struct {
	byCell map[int]*Partition
	live   *roaring.Bitmap
	maxID  int
}

// NewPartitionSet builds a merged set from the given partitions. A repeated
// cell id means the master file itself is inconsistent.
func NewPartitionSet(partitions []Partition) (*PartitionSet, error) {
	s := &PartitionSet{
		byCell: make(map[int]*Partition, len(partitions)),
		live:   roaring.New(),
	}
	for _, p := range partitions {
		p := p
		if _, ok := s.byCell[p.CellID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateCell, p.CellID)
		}
		s.byCell[p.CellID] = &p
		s.live.Add(uint32(p.CellID))
		if p.CellID > s.maxID {
			s.maxID = p.CellID
		}
	}
	return s, nil
}

// Get returns the partition stored under cellID.
func (s *PartitionSet) Get(cellID int) (*Partition, bool) {
	p, ok := s.byCell[cellID]
	return p, ok
}

// Len returns the number of partitions in the set.
func (s *PartitionSet) Len() int {
	return len(s.byCell)
}

// MaxID returns the highest cell id ever observed by the set. It never
// decreases, so identifiers allocated from it stay unique across removals.
func (s *PartitionSet) MaxID() int {
	return s.maxID
}

// Remove deletes the partition under cellID. Absence is a consistency error:
// the set has drifted from what the caller observed.
func (s *PartitionSet) Remove(cellID int) (Partition, error) {
	p, ok := s.byCell[cellID]
	if !ok {
		return Partition{}, fmt.Errorf("%w: %d", ErrCellNotFound, cellID)
	}
	delete(s.byCell, cellID)
	s.live.Remove(uint32(cellID))
	return *p, nil
}

// Insert adds a partition under a cell id that must not already be present.
func (s *PartitionSet) Insert(p Partition) error {
	if _, ok := s.byCell[p.CellID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateCell, p.CellID)
	}
	cp := p
	s.byCell[p.CellID] = &cp
	s.live.Add(uint32(p.CellID))
	if p.CellID > s.maxID {
		s.maxID = p.CellID
	}
	return nil
}

// Snapshot returns the partitions ordered by cell id. Ordering is irrelevant
// for correctness but keeps the committed master file reproducible.
func (s *PartitionSet) Snapshot() []Partition {
	out := make([]Partition, 0, len(s.byCell))
	for _, p := range s.byCell {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CellID < out[j].CellID })
	return out
}

// TotalRecords sums the per-partition record counts.
func (s *PartitionSet) TotalRecords() int64 {
	var total int64
	for _, p := range s.byCell {
		total += p.RecordCount
	}
	return total
}

// CheckDisjoint verifies that no partition appears in two groups, using one
// bitmap of all cell ids seen so far. A non-empty intersection is fatal.
func CheckDisjoint(groups [][]Partition) error {
	seen := roaring.New()
	for i, group := range groups {
		if len(group) == 0 {
			return fmt.Errorf("%w: group %d", ErrEmptyGroup, i)
		}
		groupIDs := roaring.New()
		for _, p := range group {
			groupIDs.Add(uint32(p.CellID))
		}
		if seen.Intersects(groupIDs) {
			overlap := roaring.And(seen, groupIDs)
			return fmt.Errorf("%w: cell ids %v appear twice", ErrGroupsOverlap, overlap.ToArray())
		}
		seen.Or(groupIDs)
	}
	return nil
}
