package cube

import (
	"fmt"
	"math"
)

// ReduceTimeCube collapses the time axis of its input cube. Each output
// band is produced by one (reducer, input band) pair; the output cube
// has nt = 1 and dt spanning the whole input range.
type ReduceTimeCube struct {
	baseCube
	in           Cube
	reducerBands []ReducerBand
	bandIdxIn    []int
}

func NewReduceTimeCube(in Cube, reducerBands []ReducerBand) (*ReduceTimeCube, error) {
	bandIdxIn, err := validateReducerBands(in, reducerBands)
	if err != nil {
		return nil, fmt.Errorf("reduce_time: %v", err)
	}

	c := &ReduceTimeCube{in: in, reducerBands: reducerBands, bandIdxIn: bandIdxIn}

	// duplicate the reference frame, then collapse time: dt = t1-t0, t1 = t0
	c.stref = *in.STRef()
	diff := UnitsBetween(c.stref.T0, c.stref.T1, c.stref.DT.Unit)
	if diff < 1 {
		diff = 1
	}
	c.stref.DT = Duration{N: diff, Unit: c.stref.DT.Unit}
	c.stref.T1 = c.stref.T0

	c.chunkSize = [3]int{1, in.ChunkSize()[1], in.ChunkSize()[2]}

	alreadyReduced := in.STRef().NT() <= 1
	for _, rb := range reducerBands {
		band, _ := in.Bands().Get(rb.Band)
		band.Name = reducedBandName(rb.Band, rb.Reducer, alreadyReduced)
		band.Type = "float64"
		c.bands = append(c.bands, band)
	}
	if err := c.bands.validateUnique(); err != nil {
		return nil, fmt.Errorf("reduce_time: %v", err)
	}

	link(in, c, &c.baseCube)
	return c, nil
}

func (c *ReduceTimeCube) ReadChunk(id ChunkID) (*ChunkBuffer, error) {
	if id < 0 || int(id) >= c.CountChunks() {
		return EmptyChunk(), nil
	}

	dims := c.ChunkDims(id)
	out := NewChunkBuffer(len(c.bands), dims[0], dims[1], dims[2])

	states := make([]reducerState, len(c.reducerBands))
	for i, rb := range c.reducerBands {
		st, err := newReducerState(rb.Reducer)
		if err != nil {
			return nil, err
		}
		st.init(dims[1]*dims[2], out.Plane(i, 0))
		states[i] = st
	}

	// all input chunks with the same spatial tile, across every ct
	_, cy, cx := c.ChunkCoords(id)
	for ct := 0; ct < c.in.CountChunksT(); ct++ {
		x, err := c.in.ReadChunk(c.in.ChunkIDOf(ct, cy, cx))
		if err != nil {
			return nil, err
		}
		if x.Empty() {
			continue
		}
		xs := x.Size()
		for i := range states {
			b := c.bandIdxIn[i]
			for t := 0; t < xs[1]; t++ {
				for j, v := range x.Plane(b, t) {
					if !math.IsNaN(v) {
						states[i].feed(j, v)
					}
				}
			}
		}
	}

	for _, st := range states {
		st.finalize()
	}
	return out, nil
}

func (c *ReduceTimeCube) Desc() (*CubeDesc, error) {
	in, err := c.in.Desc()
	if err != nil {
		return nil, err
	}
	return &CubeDesc{
		CubeType:     "reduce_time",
		InCube:       in,
		ReducerBands: c.reducerBands,
	}, nil
}
