package cube

import (
	"fmt"
	"math"
	"time"
)

// QueryPoints samples a cube at arbitrary space-time points given in the
// cube's SRS. Points are grouped by the chunk that contains them so each
// chunk is read exactly once; the result is one value slice per band,
// aligned with the input points. Points outside the cube extent come
// back as NaN.
func QueryPoints(c Cube, x, y []float64, t []time.Time) ([][]float64, error) {
	if c == nil {
		return nil, fmt.Errorf("query points needs a cube")
	}
	if len(x) != len(y) || len(y) != len(t) {
		return nil, fmt.Errorf("point coordinate vectors x, y, t must have identical length, got %d, %d, %d", len(x), len(y), len(t))
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("point coordinate vectors x, y, t must not be empty")
	}

	s := c.STRef()
	size := c.ChunkSize()

	// cell indices per point, top-left-origin like the chunk layout
	ix := make([]int, len(x))
	iy := make([]int, len(x))
	it := make([]int, len(x))
	chunkIndex := make(map[ChunkID][]int)
	for i := range x {
		ix[i] = floorToInt((x[i] - s.Left) / s.DX())
		iy[i] = floorToInt((s.Top - y[i]) / s.DY())
		it[i] = floorDiv(UnitsBetween(s.T0, t[i], s.DT.Unit), s.DT.N)
		id := c.FindChunkThatContains(t[i], x[i], y[i])
		chunkIndex[id] = append(chunkIndex[id], i)
	}

	out := make([][]float64, len(c.Bands()))
	for ib := range out {
		out[ib] = make([]float64, len(x))
		for i := range out[ib] {
			out[ib][i] = math.NaN()
		}
	}

	for id, points := range chunkIndex {
		if id < 0 || int(id) >= c.CountChunks() {
			continue
		}
		dat, err := c.ReadChunk(id)
		if err != nil {
			return nil, fmt.Errorf("cannot read chunk %d: %v", id, err)
		}
		if dat.Empty() {
			continue
		}
		dims := dat.Size()
		for _, i := range points {
			lx := ix[i] % size[2]
			ly := iy[i] % size[1]
			lt := it[i] % size[0]
			if lx < 0 || lx >= dims[3] || ly < 0 || ly >= dims[2] || lt < 0 || lt >= dims[1] {
				continue
			}
			for ib := range out {
				out[ib][i] = dat.At(ib, lt, ly, lx)
			}
		}
	}
	return out, nil
}
