package cube

import "fmt"

// SelectBandsCube reshapes its input to a subset of bands, re-packed in
// the listed order. Geometry is unchanged.
type SelectBandsCube struct {
	baseCube
	in        Cube
	names     []string
	bandIdxIn []int
}

func NewSelectBandsCube(in Cube, names []string) (*SelectBandsCube, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("select_bands: no bands given")
	}
	c := &SelectBandsCube{in: in, names: names}
	c.stref = *in.STRef()
	c.chunkSize = in.ChunkSize()
	for _, name := range names {
		idx, err := in.Bands().GetIndex(name)
		if err != nil {
			return nil, fmt.Errorf("select_bands: %v", err)
		}
		c.bandIdxIn = append(c.bandIdxIn, idx)
		c.bands = append(c.bands, in.Bands()[idx])
	}
	if err := c.bands.validateUnique(); err != nil {
		return nil, fmt.Errorf("select_bands: %v", err)
	}
	link(in, c, &c.baseCube)
	return c, nil
}

// NewSelectBandsCubeByIndex selects bands by zero-based position.
func NewSelectBandsCubeByIndex(in Cube, indexes []int) (*SelectBandsCube, error) {
	names := make([]string, len(indexes))
	for i, idx := range indexes {
		if idx < 0 || idx >= len(in.Bands()) {
			return nil, fmt.Errorf("select_bands: band index %d out of range", idx)
		}
		names[i] = in.Bands()[idx].Name
	}
	return NewSelectBandsCube(in, names)
}

func (c *SelectBandsCube) ReadChunk(id ChunkID) (*ChunkBuffer, error) {
	if id < 0 || int(id) >= c.CountChunks() {
		return EmptyChunk(), nil
	}
	x, err := c.in.ReadChunk(id)
	if err != nil {
		return nil, err
	}
	if x.Empty() {
		return EmptyChunk(), nil
	}
	xs := x.Size()
	out := NewChunkBuffer(len(c.bands), xs[1], xs[2], xs[3])
	for k, idx := range c.bandIdxIn {
		copy(out.BandSlice(k), x.BandSlice(idx))
	}
	return out, nil
}

func (c *SelectBandsCube) Desc() (*CubeDesc, error) {
	in, err := c.in.Desc()
	if err != nil {
		return nil, err
	}
	return &CubeDesc{
		CubeType: "select_bands",
		InCube:   in,
		Bands:    c.names,
	}, nil
}
