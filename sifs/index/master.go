package index

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/storage"
)

// MasterFilePrefix marks the single metadata file of an index directory.
const MasterFilePrefix = "_master"

// VisualizationFilename is the derived WKT artifact regenerated after commits.
const VisualizationFilename = "_master.wkt"

// Consistency errors surfaced by master-file access. Both are fatal and
// non-retriable: they mean the index directory no longer matches the layout
// this engine maintains.
var (
	ErrMasterFileMissing   = errors.New("index has no master file")
	ErrMasterFileAmbiguous = errors.New("index has more than one master file")
)

// FindMasterFile locates the single file in indexPath whose name starts with
// MasterFilePrefix (excluding the derived visualization artifact). Zero or
// multiple matches is a consistency violation.
func FindMasterFile(gw storage.Gateway, indexPath string) (string, error) {
	matches, err := gw.ListMatching(indexPath, func(name string) bool {
		return strings.HasPrefix(name, MasterFilePrefix) && name != VisualizationFilename
	})
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrMasterFileMissing, indexPath)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s has %d", ErrMasterFileAmbiguous, indexPath, len(matches))
	}
}

// LoadPartitions parses the master file of the index at indexPath. It is
// read-only and safe to call concurrently with other readers.
func LoadPartitions(gw storage.Gateway, indexPath string) ([]Partition, error) {
	masterPath, err := FindMasterFile(gw, indexPath)
	if err != nil {
		return nil, err
	}
	data, err := gw.ReadFile(masterPath)
	if err != nil {
		return nil, err
	}
	var partitions []Partition
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var p Partition
		if err := p.UnmarshalLine(line); err != nil {
			return nil, fmt.Errorf("failed to parse master file %s: %w", masterPath, err)
		}
		partitions = append(partitions, p)
	}
	return partitions, nil
}

// WritePartitions overwrites the index's master file with the given
// partitions, one per line. The write itself is not atomic; callers that need
// crash-atomicity stage under a temporary name and rename.
func WritePartitions(gw storage.Gateway, indexPath string, partitions []Partition) error {
	masterPath, err := FindMasterFile(gw, indexPath)
	if err != nil {
		return err
	}
	out, err := gw.Create(masterPath, true)
	if err != nil {
		return err
	}
	var sb strings.Builder
	for _, p := range partitions {
		sb.WriteString(p.MarshalLine())
		sb.WriteByte('\n')
	}
	if _, err := out.Write([]byte(sb.String())); err != nil {
		out.Close()
		return fmt.Errorf("failed to write master file %s: %w", masterPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close master file %s: %w", masterPath, err)
	}
	return nil
}

// RegenerateVisualization derives the WKT artifact from the current master
// file. The artifact is purely derived; failures here are logged by callers
// and never abort the surrounding operation.
func RegenerateVisualization(gw storage.Gateway, indexPath string) error {
	partitions, err := LoadPartitions(gw, indexPath)
	if err != nil {
		return err
	}
	out, err := gw.Create(filepath.Join(indexPath, VisualizationFilename), true)
	if err != nil {
		return err
	}
	var sb strings.Builder
	for _, p := range partitions {
		fmt.Fprintf(&sb, "%d\t%s\t%s\n", p.CellID, p.Filename, p.WKT())
	}
	if _, err := out.Write([]byte(sb.String())); err != nil {
		out.Close()
		return fmt.Errorf("failed to write visualization file: %w", err)
	}
	return out.Close()
}
