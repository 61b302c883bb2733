package cube

import "fmt"

// DummyCube is a constant-fill source cube, mostly useful for testing
// operator graphs without an image collection behind them.
type DummyCube struct {
	baseCube
	view CubeView
	fill float64
}

func NewDummyCube(v CubeView, nbands int, fill float64) (*DummyCube, error) {
	if err := v.STRef.Validate(); err != nil {
		return nil, err
	}
	if nbands <= 0 {
		return nil, fmt.Errorf("dummy: band count must be positive, got %d", nbands)
	}
	c := &DummyCube{view: v, fill: fill}
	c.stref = v.STRef
	c.chunkSize = defaultChunkSize
	for i := 0; i < nbands; i++ {
		c.bands = append(c.bands, Band{Name: fmt.Sprintf("band%d", i+1), Type: "float64", Scale: 1})
	}
	return c, nil
}

func (c *DummyCube) SetChunkSize(t, y, x int) {
	c.chunkSize = [3]int{t, y, x}
}

func (c *DummyCube) ReadChunk(id ChunkID) (*ChunkBuffer, error) {
	if id < 0 || int(id) >= c.CountChunks() {
		return EmptyChunk(), nil
	}
	dims := c.ChunkDims(id)
	return NewFilledChunkBuffer(len(c.bands), dims[0], dims[1], dims[2], c.fill), nil
}

func (c *DummyCube) Desc() (*CubeDesc, error) {
	return &CubeDesc{
		CubeType:  "dummy",
		ChunkSize: []int{c.chunkSize[0], c.chunkSize[1], c.chunkSize[2]},
		View:      viewDescOf(c.view),
		NBands:    len(c.bands),
		Fill:      c.fill,
	}, nil
}
