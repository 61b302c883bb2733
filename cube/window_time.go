package cube

import (
	"fmt"
	"math"
)

// WindowTimeCube applies a moving window over the time axis of its
// input. The window spans winL steps backwards and winR steps forwards
// around every time step. It runs in one of two modes: a convolution
// kernel applied to every band, or a list of (reducer, band) pairs
// evaluated per window. Geometry is unchanged in both modes.
type WindowTimeCube struct {
	baseCube
	in           Cube
	winL, winR   int
	kernel       []float64
	reducerBands []ReducerBand
	bandIdxIn    []int
}

// NewWindowTimeKernelCube builds a window cube in kernel mode. The
// kernel length must equal winL+winR+1; band names are unchanged.
func NewWindowTimeKernelCube(in Cube, kernel []float64, winL, winR int) (*WindowTimeCube, error) {
	if winL < 0 || winR < 0 {
		return nil, fmt.Errorf("window_time: negative window size")
	}
	if len(kernel) != winL+winR+1 {
		return nil, fmt.Errorf("window_time: kernel has %d weights, window spans %d steps", len(kernel), winL+winR+1)
	}
	c := &WindowTimeCube{in: in, winL: winL, winR: winR, kernel: kernel}
	c.stref = *in.STRef()
	c.chunkSize = in.ChunkSize()
	c.bands = in.Bands()
	link(in, c, &c.baseCube)
	return c, nil
}

// NewWindowTimeReduceCube builds a window cube in reducer mode. One
// output band per (reducer, band) pair, named like reduce_time bands.
func NewWindowTimeReduceCube(in Cube, reducerBands []ReducerBand, winL, winR int) (*WindowTimeCube, error) {
	if winL < 0 || winR < 0 {
		return nil, fmt.Errorf("window_time: negative window size")
	}
	bandIdxIn, err := validateReducerBands(in, reducerBands)
	if err != nil {
		return nil, fmt.Errorf("window_time: %v", err)
	}
	c := &WindowTimeCube{in: in, winL: winL, winR: winR, reducerBands: reducerBands, bandIdxIn: bandIdxIn}
	c.stref = *in.STRef()
	c.chunkSize = in.ChunkSize()
	for _, rb := range reducerBands {
		band, _ := in.Bands().Get(rb.Band)
		band.Name = reducedBandName(rb.Band, rb.Reducer, false)
		band.Type = "float64"
		c.bands = append(c.bands, band)
	}
	if err := c.bands.validateUnique(); err != nil {
		return nil, fmt.Errorf("window_time: %v", err)
	}
	link(in, c, &c.baseCube)
	return c, nil
}

// timePlane resolves the input plane for band b at the absolute time
// index it, reading neighbouring chunks through a per-call cache. A nil
// plane means the index is outside the cube or the chunk is empty.
func (c *WindowTimeCube) timePlane(cache map[ChunkID]*ChunkBuffer, cy, cx, b, it int) ([]float64, error) {
	if it < 0 || it >= c.stref.NT() {
		return nil, nil
	}
	ct := it / c.chunkSize[0]
	lt := it % c.chunkSize[0]
	id := c.in.ChunkIDOf(ct, cy, cx)
	x, ok := cache[id]
	if !ok {
		var err error
		x, err = c.in.ReadChunk(id)
		if err != nil {
			return nil, err
		}
		cache[id] = x
	}
	if x.Empty() {
		return nil, nil
	}
	return x.Plane(b, lt), nil
}

func (c *WindowTimeCube) ReadChunk(id ChunkID) (*ChunkBuffer, error) {
	if id < 0 || int(id) >= c.CountChunks() {
		return EmptyChunk(), nil
	}
	dims := c.ChunkDims(id)
	out := NewChunkBuffer(len(c.bands), dims[0], dims[1], dims[2])

	ct, cy, cx := c.ChunkCoords(id)
	t0 := ct * c.chunkSize[0] // absolute time index of the chunk's first slice
	cache := make(map[ChunkID]*ChunkBuffer)

	if c.kernel != nil {
		return out, c.readKernel(out, cache, dims, t0, cy, cx)
	}
	return out, c.readReduce(out, cache, dims, t0, cy, cx)
}

// readKernel convolves every band along time. A window reaching outside
// the cube's time range yields NaN, as does any NaN neighbour.
func (c *WindowTimeCube) readKernel(out *ChunkBuffer, cache map[ChunkID]*ChunkBuffer, dims [3]int, t0, cy, cx int) error {
	ncells := dims[1] * dims[2]
	for b := 0; b < len(c.bands); b++ {
		for t := 0; t < dims[0]; t++ {
			dst := out.Plane(b, t)
			for k := -c.winL; k <= c.winR; k++ {
				w := c.kernel[k+c.winL]
				src, err := c.timePlane(cache, cy, cx, b, t0+t+k)
				if err != nil {
					return err
				}
				if src == nil {
					nan := math.NaN()
					for j := 0; j < ncells; j++ {
						dst[j] = nan
					}
					break
				}
				if k == -c.winL {
					for j := 0; j < ncells; j++ {
						dst[j] = w * src[j]
					}
				} else {
					for j := 0; j < ncells; j++ {
						dst[j] += w * src[j]
					}
				}
			}
		}
	}
	return nil
}

// readReduce evaluates one reducer per output band over every window.
// The reducer state spans the whole chunk; the accumulator cell of a
// pixel is its row-major (t, y, x) offset within the band.
func (c *WindowTimeCube) readReduce(out *ChunkBuffer, cache map[ChunkID]*ChunkBuffer, dims [3]int, t0, cy, cx int) error {
	ncells := dims[1] * dims[2]
	for i, rb := range c.reducerBands {
		st, err := newReducerState(rb.Reducer)
		if err != nil {
			return err
		}
		st.init(dims[0]*ncells, out.BandSlice(i))
		b := c.bandIdxIn[i]
		for t := 0; t < dims[0]; t++ {
			for k := -c.winL; k <= c.winR; k++ {
				src, err := c.timePlane(cache, cy, cx, b, t0+t+k)
				if err != nil {
					return err
				}
				if src == nil {
					continue
				}
				for j, v := range src {
					if !math.IsNaN(v) {
						st.feed(t*ncells+j, v)
					}
				}
			}
		}
		st.finalize()
	}
	return nil
}

func (c *WindowTimeCube) Desc() (*CubeDesc, error) {
	in, err := c.in.Desc()
	if err != nil {
		return nil, err
	}
	d := &CubeDesc{
		CubeType: "window_time",
		InCube:   in,
		WinSizeL: c.winL,
		WinSizeR: c.winR,
	}
	if c.kernel != nil {
		d.Kernel = c.kernel
	} else {
		d.ReducerBands = c.reducerBands
	}
	return d, nil
}
