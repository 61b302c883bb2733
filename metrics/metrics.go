// Package metrics records per-chunk evaluation timings as JSON lines,
// either to stdout or to size-rotated log files.
package metrics

import (
	"bytes"
	"encoding/json"
	"time"
)

// ChunkInfo is one chunk evaluation record.
type ChunkInfo struct {
	EvalTime string        `json:"eval_time"`
	CubeType string        `json:"cube_type,omitempty"`
	ChunkID  int           `json:"chunk_id"`
	Duration time.Duration `json:"duration"`
	Cells    int           `json:"cells"`
	CacheHit bool          `json:"cache_hit,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Collector accumulates one record and ships it to a logger. A nil
// logger makes Log a no-op, so collection sites need no guards.
type Collector struct {
	Info   *ChunkInfo
	logger Logger
}

func NewCollector(logger Logger) *Collector {
	return &Collector{
		Info:   &ChunkInfo{EvalTime: time.Now().UTC().Format(time.RFC3339)},
		logger: logger,
	}
}

func (c *Collector) Log() {
	if c.logger != nil {
		c.logger.Log(c.Info)
	}
}

func (i *ChunkInfo) ToJSON() (string, error) {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(i)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
