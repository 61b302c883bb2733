package processor

import (
	"context"
	"testing"
	"time"

	"github.com/maesbri-forks-geo/gdalcubes/cube"
	"github.com/maesbri-forks-geo/gdalcubes/metrics"
)

func testCube(t *testing.T) *cube.DummyCube {
	t.Helper()
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	view := cube.CubeView{
		STRef: cube.STRef{
			SRS: "EPSG:3857", Left: 0, Right: 64, Bottom: 0, Top: 64, NX: 64, NY: 64,
			T0: t0, T1: t0.AddDate(0, 0, 3),
			DT: cube.Duration{N: 1, Unit: cube.UnitDay},
		},
		AggregationMethod: cube.AggNone,
		ResamplingMethod:  "near",
	}
	c, err := cube.NewDummyCube(view, 1, 5)
	if err != nil {
		t.Fatal(err)
	}
	c.SetChunkSize(2, 32, 32)
	return c
}

func TestApplyVisitsEveryChunk(t *testing.T) {
	c := testCube(t)
	p, err := NewChunkProcessor(4, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	out, errChan := p.Apply(context.Background(), c)
	seen := make(map[cube.ChunkID]bool)
	for res := range out {
		if seen[res.ID] {
			t.Errorf("chunk %d delivered twice", res.ID)
		}
		seen[res.ID] = true
		if res.Data.Empty() {
			t.Errorf("chunk %d is empty", res.ID)
		} else if got := res.Data.At(0, 0, 0, 0); got != 5 {
			t.Errorf("chunk %d cell = %f, want 5", res.ID, got)
		}
	}
	if len(seen) != c.CountChunks() {
		t.Errorf("visited %d chunks, want %d", len(seen), c.CountChunks())
	}
	select {
	case err := <-errChan:
		t.Errorf("unexpected error: %v", err)
	default:
	}
}

func TestApplyCancellation(t *testing.T) {
	c := testCube(t)
	p, err := NewChunkProcessor(1, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out, _ := p.Apply(ctx, c)

	// consume one result, then cancel and drain
	<-out
	cancel()
	n := 1
	for range out {
		n++
	}
	if n > c.CountChunks() {
		t.Errorf("received %d chunks after cancelling, cube has %d", n, c.CountChunks())
	}
}

type captureLogger struct {
	infos []*metrics.ChunkInfo
}

func (l *captureLogger) Log(info *metrics.ChunkInfo) {
	l.infos = append(l.infos, info)
}

func TestReadChunkCaching(t *testing.T) {
	c := testCube(t)
	logger := &captureLogger{}
	p, err := NewChunkProcessor(1, 8, logger)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.ReadChunk(c, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ReadChunk(c, 0); err != nil {
		t.Fatal(err)
	}

	if len(logger.infos) != 2 {
		t.Fatalf("%d metrics records, want 2", len(logger.infos))
	}
	if logger.infos[0].CacheHit {
		t.Error("first read reported a cache hit")
	}
	if !logger.infos[1].CacheHit {
		t.Error("second read missed the cache")
	}
	if logger.infos[0].CubeType != "dummy" {
		t.Errorf("cube type %q, want dummy", logger.infos[0].CubeType)
	}
	if logger.infos[0].Cells != 2*32*32 {
		t.Errorf("cells %d, want %d", logger.infos[0].Cells, 2*32*32)
	}
}

func TestNewChunkProcessorValidation(t *testing.T) {
	if _, err := NewChunkProcessor(0, 0, nil); err == nil {
		t.Error("zero threads accepted")
	}
}

func TestConcLimiter(t *testing.T) {
	cl := NewConcLimiter(2)
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		cl.Increase()
		go func() {
			defer cl.Decrease()
			done <- struct{}{}
		}()
	}
	cl.Wait()
	if len(done) != 3 {
		t.Errorf("%d tasks completed, want 3", len(done))
	}
}
