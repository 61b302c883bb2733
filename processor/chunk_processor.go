// Package processor evaluates cube graphs chunk by chunk over a worker
// pool, with an optional LRU cache of evaluated chunks.
package processor

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maesbri-forks-geo/gdalcubes/cube"
	"github.com/maesbri-forks-geo/gdalcubes/metrics"
)

// ChunkResult is one evaluated chunk. Results arrive in no particular
// order.
type ChunkResult struct {
	ID   cube.ChunkID
	Data *cube.ChunkBuffer
}

// chunkKey identifies a chunk across cubes; the cube handle itself is
// part of the key, so distinct graphs never share cache entries.
type chunkKey struct {
	c  cube.Cube
	id cube.ChunkID
}

type ChunkProcessor struct {
	threads int
	cache   *lru.Cache[chunkKey, *cube.ChunkBuffer]
	logger  metrics.Logger
}

// NewChunkProcessor makes a processor with the given parallelism. A
// cacheSize of zero disables the chunk cache; a nil logger disables
// metrics.
func NewChunkProcessor(threads, cacheSize int, logger metrics.Logger) (*ChunkProcessor, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("chunk processor needs at least one thread, got %d", threads)
	}
	p := &ChunkProcessor{threads: threads, logger: logger}
	if cacheSize > 0 {
		var err error
		if p.cache, err = lru.New[chunkKey, *cube.ChunkBuffer](cacheSize); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func cubeTypeOf(c cube.Cube) string {
	desc, err := c.Desc()
	if err != nil {
		return ""
	}
	return desc.CubeType
}

// ReadChunk evaluates one chunk through the cache and records metrics.
func (p *ChunkProcessor) ReadChunk(c cube.Cube, id cube.ChunkID) (*cube.ChunkBuffer, error) {
	collector := metrics.NewCollector(p.logger)
	collector.Info.CubeType = cubeTypeOf(c)
	collector.Info.ChunkID = int(id)
	start := time.Now()
	defer func() {
		collector.Info.Duration = time.Since(start)
		collector.Log()
	}()

	key := chunkKey{c: c, id: id}
	if p.cache != nil {
		if buf, ok := p.cache.Get(key); ok {
			collector.Info.CacheHit = true
			collector.Info.Cells = len(buf.Data())
			return buf, nil
		}
	}

	buf, err := c.ReadChunk(id)
	if err != nil {
		collector.Info.Error = err.Error()
		return nil, err
	}
	collector.Info.Cells = len(buf.Data())
	if p.cache != nil {
		p.cache.Add(key, buf)
	}
	return buf, nil
}

// Apply evaluates every chunk of c. Results and errors stream on the
// returned channels; the result channel closes once all pending work
// has finished. Cancelling the context stops the feed at the next chunk
// boundary.
func (p *ChunkProcessor) Apply(ctx context.Context, c cube.Cube) (<-chan ChunkResult, <-chan error) {
	out := make(chan ChunkResult, p.threads)
	errChan := make(chan error, 100)

	ids := make(chan cube.ChunkID)
	go func() {
		defer close(ids)
		for id := 0; id < c.CountChunks(); id++ {
			select {
			case ids <- cube.ChunkID(id):
			case <-ctx.Done():
				return
			}
		}
	}()

	cLimiter := NewConcLimiter(p.threads)
	go func() {
		for id := range ids {
			cLimiter.Increase()
			go func(id cube.ChunkID) {
				defer cLimiter.Decrease()
				buf, err := p.ReadChunk(c, id)
				if err != nil {
					select {
					case errChan <- err:
					default:
					}
					return
				}
				select {
				case out <- ChunkResult{ID: id, Data: buf}:
				case <-ctx.Done():
				}
			}(id)
		}
		cLimiter.Wait()
		close(out)
	}()

	return out, errChan
}
