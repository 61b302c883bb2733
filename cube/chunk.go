package cube

import "math"

// ChunkBuffer owns a densely packed float64 buffer of shape
// [nb][nt][ny][nx] in band-major order with x innermost. The empty
// chunk has a nil buffer and is equivalent to all-NaN; NaN denotes
// missing data.
type ChunkBuffer struct {
	size [4]int
	data []float64
}

// EmptyChunk returns the canonical empty chunk.
func EmptyChunk() *ChunkBuffer {
	return &ChunkBuffer{}
}

// NewChunkBuffer allocates a NaN-filled chunk buffer.
func NewChunkBuffer(nb, nt, ny, nx int) *ChunkBuffer {
	return NewFilledChunkBuffer(nb, nt, ny, nx, math.NaN())
}

func NewFilledChunkBuffer(nb, nt, ny, nx int, fill float64) *ChunkBuffer {
	c := &ChunkBuffer{size: [4]int{nb, nt, ny, nx}}
	c.data = make([]float64, nb*nt*ny*nx)
	for i := range c.data {
		c.data[i] = fill
	}
	return c
}

func (c *ChunkBuffer) Empty() bool {
	return c == nil || len(c.data) == 0
}

// Size returns [nb, nt, ny, nx].
func (c *ChunkBuffer) Size() [4]int {
	return c.size
}

func (c *ChunkBuffer) Data() []float64 {
	return c.data
}

func (c *ChunkBuffer) index(b, t, y, x int) int {
	return ((b*c.size[1]+t)*c.size[2]+y)*c.size[3] + x
}

func (c *ChunkBuffer) At(b, t, y, x int) float64 {
	if c.Empty() {
		return math.NaN()
	}
	return c.data[c.index(b, t, y, x)]
}

func (c *ChunkBuffer) Set(b, t, y, x int, v float64) {
	c.data[c.index(b, t, y, x)] = v
}

// Plane returns the ny*nx spatial slice for one band and time slot.
func (c *ChunkBuffer) Plane(b, t int) []float64 {
	n := c.size[2] * c.size[3]
	off := (b*c.size[1] + t) * n
	return c.data[off : off+n]
}

// BandSlice returns the nt*ny*nx slice for one band.
func (c *ChunkBuffer) BandSlice(b int) []float64 {
	n := c.size[1] * c.size[2] * c.size[3]
	return c.data[b*n : (b+1)*n]
}
