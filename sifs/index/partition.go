package index

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Extent is the minimum bounding rectangle of a partition's records.
type Extent struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// EmptyExtent returns an extent that expands to whatever is merged into it.
func EmptyExtent() Extent {
	return Extent{
		MinX: math.Inf(1),
		MinY: math.Inf(1),
		MaxX: math.Inf(-1),
		MaxY: math.Inf(-1),
	}
}

// Expand widens the extent to cover other.
func (e *Extent) Expand(other Extent) {
	e.MinX = math.Min(e.MinX, other.MinX)
	e.MinY = math.Min(e.MinY, other.MinY)
	e.MaxX = math.Max(e.MaxX, other.MaxX)
	e.MaxY = math.Max(e.MaxY, other.MaxY)
}

// IntersectionArea returns the area shared by two extents, zero when disjoint.
func (e Extent) IntersectionArea(other Extent) float64 {
	w := math.Min(e.MaxX, other.MaxX) - math.Max(e.MinX, other.MinX)
	h := math.Min(e.MaxY, other.MaxY) - math.Max(e.MinY, other.MinY)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the midpoint of the extent.
func (e Extent) Center() (x, y float64) {
	return (e.MinX + e.MaxX) / 2, (e.MinY + e.MaxY) / 2
}

// Partition describes one physical data file of an index: its cell identifier
// within the partitioning scheme, the file backing it and summary statistics.
type Partition struct {
	CellID      int
	Filename    string
	Extent      Extent
	RecordCount int64
	DataSize    int64
}

// Expand folds another partition's statistics into this one: the extent is
// widened and the record/byte counts accumulate. Used when appended data lands
// in an existing cell.
func (p *Partition) Expand(other Partition) {
	p.Extent.Expand(other.Extent)
	p.RecordCount += other.RecordCount
	p.DataSize += other.DataSize
}

// MarshalLine serializes the partition as one master-file line (without the
// trailing newline).
func (p Partition) MarshalLine() string {
	fields := []string{
		strconv.Itoa(p.CellID),
		strconv.FormatFloat(p.Extent.MinX, 'g', -1, 64),
		strconv.FormatFloat(p.Extent.MinY, 'g', -1, 64),
		strconv.FormatFloat(p.Extent.MaxX, 'g', -1, 64),
		strconv.FormatFloat(p.Extent.MaxY, 'g', -1, 64),
		strconv.FormatInt(p.RecordCount, 10),
		strconv.FormatInt(p.DataSize, 10),
		p.Filename,
	}
	return strings.Join(fields, ",")
}

// UnmarshalLine parses one master-file line into the partition.
func (p *Partition) UnmarshalLine(line string) error {
	fields := strings.Split(line, ",")
	if len(fields) != 8 {
		return fmt.Errorf("malformed partition line %q: expected 8 fields, got %d", line, len(fields))
	}
	cellID, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("malformed cell id in %q: %w", line, err)
	}
	coords := make([]float64, 4)
	for i := 0; i < 4; i++ {
		coords[i], err = strconv.ParseFloat(fields[1+i], 64)
		if err != nil {
			return fmt.Errorf("malformed extent in %q: %w", line, err)
		}
	}
	recordCount, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return fmt.Errorf("malformed record count in %q: %w", line, err)
	}
	dataSize, err := strconv.ParseInt(fields[6], 10, 64)
	if err != nil {
		return fmt.Errorf("malformed data size in %q: %w", line, err)
	}
	if fields[7] == "" {
		return fmt.Errorf("malformed partition line %q: empty filename", line)
	}
	p.CellID = cellID
	p.Extent = Extent{MinX: coords[0], MinY: coords[1], MaxX: coords[2], MaxY: coords[3]}
	p.RecordCount = recordCount
	p.DataSize = dataSize
	p.Filename = fields[7]
	return nil
}

// WKT renders the extent as a well-known-text polygon for visualization.
func (p Partition) WKT() string {
	e := p.Extent
	return fmt.Sprintf("POLYGON((%g %g, %g %g, %g %g, %g %g, %g %g))",
		e.MinX, e.MinY, e.MaxX, e.MinY, e.MaxX, e.MaxY, e.MinX, e.MaxY, e.MinX, e.MinY)
}

func (p Partition) String() string {
	return fmt.Sprintf("partition{cell=%d file=%s records=%d bytes=%d}",
		p.CellID, p.Filename, p.RecordCount, p.DataSize)
}
