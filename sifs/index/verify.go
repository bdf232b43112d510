package index

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/storage"

	"github.com/armon/go-radix"
)

// VerifyReport summarizes a file/metadata correspondence check.
type VerifyReport struct {
	Partitions   int
	MissingFiles []string // referenced by the master file but absent on disk
	Unreferenced []string // data files on disk no master-file record points at
}

// OK reports whether the index's metadata and files correspond exactly.
func (r VerifyReport) OK() bool {
	return len(r.MissingFiles) == 0 && len(r.Unreferenced) == 0
}

// Verify checks the core correspondence invariant of a committed index: every
// filename in the master file has exactly one physical file, and every data
// file (excluding underscore-prefixed artifacts and hidden staging paths) is
// referenced by exactly one record. Referenced names are held in a radix tree
// so directory sweeps stay prefix-friendly for large indexes.
func Verify(gw storage.Gateway, indexPath string) (*VerifyReport, error) {
	partitions, err := LoadPartitions(gw, indexPath)
	if err != nil {
		return nil, err
	}

	referenced := radix.New()
	for _, p := range partitions {
		if _, updated := referenced.Insert(p.Filename, p.CellID); updated {
			return nil, fmt.Errorf("master file references %s twice", p.Filename)
		}
	}

	report := &VerifyReport{Partitions: len(partitions)}

	for _, p := range partitions {
		exists, err := gw.Exists(filepath.Join(indexPath, p.Filename))
		if err != nil {
			return nil, err
		}
		if !exists {
			report.MissingFiles = append(report.MissingFiles, p.Filename)
		}
	}

	onDisk, err := gw.ListMatching(indexPath, func(name string) bool {
		return !strings.HasPrefix(name, "_") && !strings.HasPrefix(name, ".")
	})
	if err != nil {
		return nil, err
	}
	for _, path := range onDisk {
		name := filepath.Base(path)
		if _, ok := referenced.Get(name); !ok {
			report.Unreferenced = append(report.Unreferenced, name)
		}
	}

	if !report.OK() {
		slog.Warn("Index verification found inconsistencies",
			"index", indexPath,
			"missing", len(report.MissingFiles),
			"unreferenced", len(report.Unreferenced))
	}
	return report, nil
}
