package cube

import (
	"math"
	"testing"
)

func TestReduceTime(t *testing.T) {
	// 4 time steps, 2x2 pixels, chunked so the reduce crosses chunk borders
	src := newMemCube(1, 4, 2, 2, [3]int{2, 2, 2})
	for ti, v := range []float64{1, 2, 3, math.NaN()} {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				src.set(0, ti, y, x, v)
			}
		}
	}

	c, err := NewReduceTimeCube(src, []ReducerBand{
		{Reducer: "min", Band: "band1"},
		{Reducer: "max", Band: "band1"},
		{Reducer: "mean", Band: "band1"},
		{Reducer: "count", Band: "band1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if c.STRef().NT() != 1 {
		t.Fatalf("reduced cube has %d time steps, want 1", c.STRef().NT())
	}
	wantBands := []string{"band1_min", "band1_max", "band1_mean", "band1_count"}
	for i, want := range wantBands {
		if got := c.Bands()[i].Name; got != want {
			t.Errorf("band %d named %s, want %s", i, got, want)
		}
	}

	x, err := c.ReadChunk(0)
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range []struct {
		band int
		want float64
	}{
		{0, 1}, {1, 3}, {2, 2}, {3, 3},
	} {
		if got := x.At(tt.band, 0, 0, 0); !sameFloat(got, tt.want) {
			t.Errorf("%s = %f, want %f", wantBands[tt.band], got, tt.want)
		}
	}
}

func TestReduceTimeTwiceIsIdentity(t *testing.T) {
	src := newMemCube(1, 3, 2, 2, [3]int{3, 2, 2})
	for ti, v := range []float64{2, 4, 9} {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				src.set(0, ti, y, x, v)
			}
		}
	}

	once, err := NewReduceTimeCube(src, []ReducerBand{{Reducer: "max", Band: "band1"}})
	if err != nil {
		t.Fatal(err)
	}
	// the input time axis is already collapsed, so the band keeps its name
	twice, err := NewReduceTimeCube(once, []ReducerBand{{Reducer: "max", Band: "band1_max"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := twice.Bands()[0].Name; got != "band1_max" {
		t.Errorf("band renamed to %s on an already reduced cube", got)
	}

	x1, err := once.ReadChunk(0)
	if err != nil {
		t.Fatal(err)
	}
	x2, err := twice.ReadChunk(0)
	if err != nil {
		t.Fatal(err)
	}
	for i := range x1.Data() {
		if !sameFloat(x1.Data()[i], x2.Data()[i]) {
			t.Fatalf("cell %d differs after second reduce: %f vs %f", i, x1.Data()[i], x2.Data()[i])
		}
	}
}

func TestReduceSpace(t *testing.T) {
	// one time step, 2x2 pixels [1 2 / 3 4]
	src := newMemCube(1, 1, 2, 2, [3]int{1, 1, 1})
	src.set(0, 0, 0, 0, 1)
	src.set(0, 0, 0, 1, 2)
	src.set(0, 0, 1, 0, 3)
	src.set(0, 0, 1, 1, 4)

	c, err := NewReduceSpaceCube(src, []ReducerBand{
		{Reducer: "mean", Band: "band1"},
		{Reducer: "max", Band: "band1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.STRef().NX != 1 || c.STRef().NY != 1 {
		t.Fatalf("reduced cube is %dx%d pixels, want 1x1", c.STRef().NX, c.STRef().NY)
	}
	if c.STRef().NT() != src.STRef().NT() {
		t.Fatalf("time axis changed: %d vs %d", c.STRef().NT(), src.STRef().NT())
	}

	x, err := c.ReadChunk(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := x.At(0, 0, 0, 0); !sameFloat(got, 2.5) {
		t.Errorf("spatial mean = %f, want 2.5", got)
	}
	if got := x.At(1, 0, 0, 0); !sameFloat(got, 4) {
		t.Errorf("spatial max = %f, want 4", got)
	}
}

func TestReduceSpaceKeepsTimeSlots(t *testing.T) {
	src := newMemCube(1, 3, 2, 2, [3]int{1, 2, 2})
	for ti := 0; ti < 3; ti++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				src.set(0, ti, y, x, float64(ti*10))
			}
		}
	}
	c, err := NewReduceSpaceCube(src, []ReducerBand{{Reducer: "mean", Band: "band1"}})
	if err != nil {
		t.Fatal(err)
	}
	for ti := 0; ti < 3; ti++ {
		x, err := c.ReadChunk(ChunkID(ti))
		if err != nil {
			t.Fatal(err)
		}
		if got := x.At(0, 0, 0, 0); !sameFloat(got, float64(ti*10)) {
			t.Errorf("time slot %d reduced to %f, want %f", ti, got, float64(ti*10))
		}
	}
}

func TestReduceAllBands(t *testing.T) {
	src := newMemCube(2, 2, 1, 1, [3]int{2, 1, 1})
	src.set(0, 0, 0, 0, 1)
	src.set(0, 1, 0, 0, 3)
	src.set(1, 0, 0, 0, 10)
	src.set(1, 1, 0, 0, 30)

	c, err := NewReduceCube(src, "mean")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Bands().Names(); got[0] != "band1_mean" || got[1] != "band2_mean" {
		t.Errorf("band names %v", got)
	}
	x, err := c.ReadChunk(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := x.At(0, 0, 0, 0); !sameFloat(got, 2) {
		t.Errorf("band1 mean = %f, want 2", got)
	}
	if got := x.At(1, 0, 0, 0); !sameFloat(got, 20) {
		t.Errorf("band2 mean = %f, want 20", got)
	}

	if _, err := NewReduceCube(src, "mode"); err == nil {
		t.Error("unknown reducer accepted")
	}
}

func TestReduceTimeDuplicateOutputBands(t *testing.T) {
	src := newMemCube(1, 2, 1, 1, [3]int{2, 1, 1})
	_, err := NewReduceTimeCube(src, []ReducerBand{
		{Reducer: "mean", Band: "band1"},
		{Reducer: "mean", Band: "band1"},
	})
	if err == nil {
		t.Error("duplicate reducer bands accepted")
	}
}

func TestReduceTimeEmptyInputChunks(t *testing.T) {
	src := newMemCube(1, 4, 1, 1, [3]int{2, 1, 1})
	src.set(0, 0, 0, 0, 5)
	src.set(0, 1, 0, 0, 7)
	// second temporal chunk yields no data at all
	src.emptyChunks[src.ChunkIDOf(1, 0, 0)] = true

	c, err := NewReduceTimeCube(src, []ReducerBand{{Reducer: "mean", Band: "band1"}})
	if err != nil {
		t.Fatal(err)
	}
	x, err := c.ReadChunk(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := x.At(0, 0, 0, 0); !sameFloat(got, 6) {
		t.Errorf("mean over available chunks = %f, want 6", got)
	}
}
