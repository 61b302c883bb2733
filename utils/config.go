// Package utils holds process-wide configuration shared by the engine
// binaries.
package utils

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

type RasterConfig struct {
	WorkerBinary string `json:"worker_binary"`
	PoolSize     int    `json:"pool_size"`
	Verbose      bool   `json:"verbose"`
}

type ProcessorConfig struct {
	Threads        int `json:"threads"`
	ChunkCacheSize int `json:"chunk_cache_size"`
}

type MetricsConfig struct {
	// Sink is "stdout", "file" or empty for no metrics
	Sink           string `json:"sink"`
	LogDir         string `json:"log_dir"`
	MaxLogFileSize int64  `json:"max_log_file_size"`
	MaxLogFiles    int    `json:"max_log_files"`
	Verbose        bool   `json:"verbose"`
}

type CatalogConfig struct {
	// Backend is "sqlite" (collection files opened by path) or
	// "postgres" (shared catalog database)
	Backend  string `json:"backend"`
	ConnInfo string `json:"conninfo"`
	Memcache string `json:"memcache"`
	PoolSize int    `json:"pool_size"`
}

type Config struct {
	sync.RWMutex
	Raster    RasterConfig    `json:"raster"`
	Processor ProcessorConfig `json:"processor"`
	Metrics   MetricsConfig   `json:"metrics"`
	Catalog   CatalogConfig   `json:"catalog"`
}

const defaultPoolSize = 4
const defaultThreads = 4

// LoadConfigFile unmarshals the config.json document into config,
// filling defaults for anything the file leaves out.
func (config *Config) LoadConfigFile(configFile string) error {
	cfg, err := ioutil.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error while reading config file: %s. Error: %v", configFile, err)
	}

	config.Lock()
	defer config.Unlock()

	config.Raster = RasterConfig{}
	config.Processor = ProcessorConfig{}
	config.Metrics = MetricsConfig{}
	config.Catalog = CatalogConfig{}

	err = json.Unmarshal(cfg, config)
	if err != nil {
		return fmt.Errorf("error at JSON parsing config document: %s. Error: %v", configFile, err)
	}

	if config.Raster.PoolSize <= 0 {
		config.Raster.PoolSize = defaultPoolSize
	}
	if config.Processor.Threads <= 0 {
		config.Processor.Threads = defaultThreads
	}
	if config.Processor.ChunkCacheSize < 0 {
		config.Processor.ChunkCacheSize = 0
	}
	if config.Catalog.Backend == "" {
		config.Catalog.Backend = "sqlite"
	}
	if config.Catalog.Backend != "sqlite" && config.Catalog.Backend != "postgres" {
		return fmt.Errorf("unknown catalog backend '%s' in %s", config.Catalog.Backend, configFile)
	}
	if config.Catalog.PoolSize <= 0 {
		config.Catalog.PoolSize = defaultPoolSize
	}
	switch config.Metrics.Sink {
	case "", "stdout":
	case "file":
		if config.Metrics.LogDir == "" {
			return fmt.Errorf("metrics sink 'file' needs a log_dir in %s", configFile)
		}
	default:
		return fmt.Errorf("unknown metrics sink '%s' in %s", config.Metrics.Sink, configFile)
	}
	return nil
}

// WatchConfig reloads the config file on SIGHUP. A failed reload keeps
// the previous configuration.
func WatchConfig(infoLog, errLog *log.Logger, configFile string, config *Config) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			infoLog.Println("Caught SIGHUP, reloading config...")
			if err := config.LoadConfigFile(configFile); err != nil {
				errLog.Printf("Error in loading config file: %v\n", err)
			}
		}
	}()
}
