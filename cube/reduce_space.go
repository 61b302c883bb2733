package cube

import (
	"fmt"
	"math"
)

// ReduceSpaceCube collapses the spatial axes of its input cube to a
// single pixel covering the full extent. The time axis is untouched;
// each output band is produced by one (reducer, input band) pair.
type ReduceSpaceCube struct {
	baseCube
	in           Cube
	reducerBands []ReducerBand
	bandIdxIn    []int
}

func NewReduceSpaceCube(in Cube, reducerBands []ReducerBand) (*ReduceSpaceCube, error) {
	bandIdxIn, err := validateReducerBands(in, reducerBands)
	if err != nil {
		return nil, fmt.Errorf("reduce_space: %v", err)
	}

	c := &ReduceSpaceCube{in: in, reducerBands: reducerBands, bandIdxIn: bandIdxIn}

	c.stref = *in.STRef()
	c.stref.NX = 1
	c.stref.NY = 1
	c.chunkSize = [3]int{in.ChunkSize()[0], 1, 1}

	alreadyReduced := in.STRef().NX*in.STRef().NY <= 1
	for _, rb := range reducerBands {
		band, _ := in.Bands().Get(rb.Band)
		band.Name = reducedBandName(rb.Band, rb.Reducer, alreadyReduced)
		band.Type = "float64"
		c.bands = append(c.bands, band)
	}
	if err := c.bands.validateUnique(); err != nil {
		return nil, fmt.Errorf("reduce_space: %v", err)
	}

	link(in, c, &c.baseCube)
	return c, nil
}

func (c *ReduceSpaceCube) ReadChunk(id ChunkID) (*ChunkBuffer, error) {
	if id < 0 || int(id) >= c.CountChunks() {
		return EmptyChunk(), nil
	}

	dims := c.ChunkDims(id)
	out := NewChunkBuffer(len(c.bands), dims[0], 1, 1)

	// one accumulator cell per time step of the output chunk
	states := make([]reducerState, len(c.reducerBands))
	for i, rb := range c.reducerBands {
		st, err := newReducerState(rb.Reducer)
		if err != nil {
			return nil, err
		}
		st.init(dims[0], out.BandSlice(i))
		states[i] = st
	}

	// all input chunks with the same temporal tile, across every (cy, cx)
	ct, _, _ := c.ChunkCoords(id)
	for cy := 0; cy < c.in.CountChunksY(); cy++ {
		for cx := 0; cx < c.in.CountChunksX(); cx++ {
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
					for _, v := range x.Plane(b, t) {
						if !math.IsNaN(v) {
							states[i].feed(t, v)
						}
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

func (c *ReduceSpaceCube) Desc() (*CubeDesc, error) {
	in, err := c.in.Desc()
	if err != nil {
		return nil, err
	}
	return &CubeDesc{
		CubeType:     "reduce_space",
		InCube:       in,
		ReducerBands: c.reducerBands,
	}, nil
}
