package cube

import (
	"math"
	"testing"
	"time"
)

func TestQueryPoints(t *testing.T) {
	c := newMemCube(2, 4, 4, 6, [3]int{2, 2, 3})
	c.set(0, 0, 0, 0, 11)
	c.set(1, 0, 0, 0, 21)
	c.set(0, 2, 3, 5, 12)
	c.set(1, 2, 3, 5, 22)
	c.set(0, 1, 1, 1, 13)

	day := func(d int) time.Time {
		return time.Date(2020, 1, 1+d, 0, 0, 0, 0, time.UTC)
	}
	x := []float64{0.5, 5.5, -1, 1.2}
	y := []float64{3.5, 0.5, 2, 2.1}
	ts := []time.Time{day(0), day(2), day(0), day(1)}

	out, err := QueryPoints(c, x, y, ts)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || len(out[0]) != 4 {
		t.Fatalf("result shape %dx%d, want 2x4", len(out), len(out[0]))
	}

	want := [][]float64{
		{11, 12, math.NaN(), 13},
		{21, 22, math.NaN(), 0},
	}
	for ib := range want {
		for i := range want[ib] {
			if !sameFloat(out[ib][i], want[ib][i]) {
				t.Errorf("band %d point %d = %f, want %f", ib, i, out[ib][i], want[ib][i])
			}
		}
	}
}

func TestQueryPointsEmptyChunksAndOutOfRange(t *testing.T) {
	c := newMemCube(1, 4, 4, 6, [3]int{2, 2, 3})
	c.fill(0, 7)
	c.emptyChunks[c.ChunkIDOf(0, 0, 1)] = true

	x := []float64{3.5, 0.5}
	y := []float64{3.5, 3.5}
	ts := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	out, err := QueryPoints(c, x, y, ts)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(out[0][0]) {
		t.Errorf("point in an empty chunk = %f, want NaN", out[0][0])
	}
	if !math.IsNaN(out[0][1]) {
		t.Errorf("point after the temporal extent = %f, want NaN", out[0][1])
	}
}

func TestQueryPointsValidation(t *testing.T) {
	c := newMemCube(1, 2, 2, 2, [3]int{1, 2, 2})
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := QueryPoints(c, []float64{1, 2}, []float64{1}, []time.Time{now}); err == nil {
		t.Error("mismatched coordinate lengths accepted")
	}
	if _, err := QueryPoints(c, nil, nil, nil); err == nil {
		t.Error("empty point set accepted")
	}
	if _, err := QueryPoints(nil, []float64{1}, []float64{1}, []time.Time{now}); err == nil {
		t.Error("nil cube accepted")
	}
}
