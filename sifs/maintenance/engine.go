package maintenance

import (
	"fmt"

	"github.com/rs/zerolog"

	internal "github.com/ZanzyTHEbar/spatial-indexfs/sifs"
	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/config"
	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/storage"
)

// Engine orchestrates the incremental maintenance cycle of one index: flush
// (append), partition selection and reorganization. A single Engine must not
// run two maintenance cycles against the same index concurrently; callers
// serialize cycles per index.
type Engine struct {
	gw       storage.Gateway
	builder  IndexBuilder
	selector PartitionSelector
	params   BuilderParams
	log      zerolog.Logger

	maxWorkers     int
	stagingRetries int
}

// NewEngine wires the engine's collaborators. selector may be nil when only
// Flush/Reorganize are driven directly.
func NewEngine(gw storage.Gateway, builder IndexBuilder, selector PartitionSelector, cfg *config.Config) (*Engine, error) {
	if gw == nil {
		return nil, fmt.Errorf("storage gateway is required")
	}
	if builder == nil {
		return nil, fmt.Errorf("index builder is required")
	}

	maxWorkers := 4
	stagingRetries := 16
	var params BuilderParams
	if cfg != nil {
		if cfg.Maintenance.MaxReorgWorkers > 0 {
			maxWorkers = cfg.Maintenance.MaxReorgWorkers
		}
		if cfg.Maintenance.StagingRetries > 0 {
			stagingRetries = cfg.Maintenance.StagingRetries
		}
		params = cfg.Builder.Params
	}

	return &Engine{
		gw:             gw,
		builder:        builder,
		selector:       selector,
		params:         params,
		log:            internal.GetLogger(),
		maxWorkers:     maxWorkers,
		stagingRetries: stagingRetries,
	}, nil
}
