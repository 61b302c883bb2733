// Package engine assembles the evaluation stack from a process
// configuration: catalog backend, raster worker pool, metrics sink and
// chunk processor.
package engine

import (
	"fmt"

	"github.com/maesbri-forks-geo/gdalcubes/catalog"
	"github.com/maesbri-forks-geo/gdalcubes/cube"
	"github.com/maesbri-forks-geo/gdalcubes/metrics"
	"github.com/maesbri-forks-geo/gdalcubes/processor"
	"github.com/maesbri-forks-geo/gdalcubes/raster"
	"github.com/maesbri-forks-geo/gdalcubes/utils"
)

// Engine bundles everything a server or batch job needs to rebuild and
// evaluate cube graphs. Pool is nil when no worker binary is
// configured; graphs without image-collection sources still evaluate.
type Engine struct {
	Factory   *cube.Factory
	Processor *processor.ChunkProcessor
	Pool      *raster.ProcessPool
}

// New builds an engine from a loaded configuration.
func New(config *utils.Config) (*Engine, error) {
	config.RLock()
	defer config.RUnlock()

	var logger metrics.Logger
	switch config.Metrics.Sink {
	case "":
	case "stdout":
		logger = metrics.NewStdoutLogger()
	case "file":
		logger = metrics.NewFileLogger(config.Metrics.LogDir,
			config.Metrics.MaxLogFileSize, config.Metrics.MaxLogFiles, config.Metrics.Verbose)
	default:
		return nil, fmt.Errorf("unknown metrics sink '%s'", config.Metrics.Sink)
	}

	proc, err := processor.NewChunkProcessor(config.Processor.Threads, config.Processor.ChunkCacheSize, logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{Factory: &cube.Factory{}, Processor: proc}

	switch config.Catalog.Backend {
	case "sqlite":
		e.Factory.OpenCollection = func(path string) (cube.Collection, error) {
			return catalog.OpenCollection(path)
		}
	case "postgres":
		conninfo := config.Catalog.ConnInfo
		mcURI := config.Catalog.Memcache
		poolSize := config.Catalog.PoolSize
		e.Factory.OpenCollection = func(name string) (cube.Collection, error) {
			return catalog.OpenPostgresCollection(conninfo, name, mcURI, poolSize)
		}
	default:
		return nil, fmt.Errorf("unknown catalog backend '%s'", config.Catalog.Backend)
	}

	if config.Raster.WorkerBinary != "" {
		pool, err := raster.CreateProcessPool(config.Raster.PoolSize, config.Raster.WorkerBinary, config.Raster.Verbose)
		if err != nil {
			return nil, err
		}
		e.Pool = pool
		e.Factory.Facility = pool
	}
	return e, nil
}
