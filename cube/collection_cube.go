package cube

import (
	"fmt"
)

// Default chunk size of collection-backed cubes.
var defaultChunkSize = [3]int{16, 256, 256}

// CollectionCube reads data from an image collection. The cube view
// defines the shape of the cube; images intersecting a chunk are warped
// onto the chunk grid by the raster facility and images falling into
// the same temporal slot are fused by the view's aggregation method.
type CollectionCube struct {
	baseCube
	collection Collection
	view       CubeView
	facility   RasterFacility
	mask       ImageMask
	maskBand   string
	warpArgs   []string
}

func NewCollectionCube(col Collection, v CubeView, fac RasterFacility) (*CollectionCube, error) {
	if err := v.STRef.Validate(); err != nil {
		return nil, err
	}
	if v.AggregationMethod == AggMedian {
		return nil, fmt.Errorf("median aggregation is not supported when reading from a collection; reduce over time instead")
	}
	switch v.AggregationMethod {
	case AggNone, AggMean, AggMin, AggMax:
	default:
		return nil, fmt.Errorf("unknown aggregation method '%s'", v.AggregationMethod)
	}

	bands, err := col.Bands()
	if err != nil {
		return nil, fmt.Errorf("cannot read collection bands: %v", err)
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("collection '%s' has no bands", col.Name())
	}
	if err := bands.validateUnique(); err != nil {
		return nil, err
	}

	c := &CollectionCube{collection: col, view: v, facility: fac}
	c.stref = v.STRef
	c.bands = bands
	c.chunkSize = defaultChunkSize
	return c, nil
}

func (c *CollectionCube) View() CubeView {
	return c.view
}

// SetChunkSize overrides the chunk tiling. The collection cube is the
// only cube whose chunk size can be changed after construction.
func (c *CollectionCube) SetChunkSize(t, y, x int) {
	c.chunkSize = [3]int{t, y, x}
}

// SelectBands restricts the cube to a subset of collection bands, in
// the given order.
func (c *CollectionCube) SelectBands(names []string) error {
	all, err := c.collection.Bands()
	if err != nil {
		return err
	}
	selected := make(BandCollection, 0, len(names))
	for _, name := range names {
		band, err := all.Get(name)
		if err != nil {
			return err
		}
		selected = append(selected, band)
	}
	if err := selected.validateUnique(); err != nil {
		return err
	}
	c.bands = selected
	return nil
}

// SetMask configures a per-image mask evaluated on the named collection
// band. The mask band is removed from the cube's own band set.
func (c *CollectionCube) SetMask(band string, mask ImageMask) error {
	all, err := c.collection.Bands()
	if err != nil {
		return err
	}
	if !all.Has(band) {
		return fmt.Errorf("band '%s' does not exist in collection, mask not set", band)
	}
	c.mask = mask
	c.maskBand = band

	kept := make(BandCollection, 0, len(c.bands))
	for _, b := range c.bands {
		if b.Name != band {
			kept = append(kept, b)
		}
	}
	c.bands = kept
	return nil
}

// SetWarpArgs configures additional opaque arguments forwarded to the
// raster facility on every warp.
func (c *CollectionCube) SetWarpArgs(args []string) {
	c.warpArgs = args
}

func (c *CollectionCube) ReadChunk(id ChunkID) (*ChunkBuffer, error) {
	if id < 0 || int(id) >= c.CountChunks() {
		return EmptyChunk(), nil
	}

	dims := c.ChunkDims(id)
	bounds := c.BoundsFromChunk(id)

	rows, err := c.collection.FindRangeST(bounds, "gdalrefs.descriptor")
	if err != nil {
		return nil, fmt.Errorf("collection query for chunk %d failed: %v", id, err)
	}
	if len(rows) == 0 {
		return EmptyChunk(), nil
	}

	out := NewChunkBuffer(len(c.bands), dims[0], dims[1], dims[2])
	agg := newAggregator(c.view.AggregationMethod)

	// rows referring to the same raster are contiguous by descriptor order
	i := 0
	for i < len(rows) {
		descriptor := rows[i].Descriptor
		j := i
		for j < len(rows) && rows[j].Descriptor == descriptor {
			j++
		}
		group := rows[i:j]
		i = j

		if err := c.readImage(out, agg, group, bounds, dims); err != nil {
			return nil, err
		}
	}

	agg.finalize(out)
	return out, nil
}

type bandRel struct {
	cubeIdx int // band index in the output chunk
	bandNum int // 1-based band number within the raster dataset
}

// readImage warps one raster dataset onto the chunk grid, applies the
// configured mask, and feeds the band planes to the aggregator at the
// image's temporal slot.
func (c *CollectionCube) readImage(out *ChunkBuffer, agg aggregator, group []CatalogRow, bounds BoundsST, dims [3]int) error {
	var rels []bandRel
	maskNum := -1
	for _, row := range group {
		if c.maskBand != "" && row.BandName == c.maskBand {
			maskNum = row.BandNum
			continue
		}
		if idx, err := c.bands.GetIndex(row.BandName); err == nil {
			rels = append(rels, bandRel{cubeIdx: idx, bandNum: row.BandNum})
		}
	}
	if len(rels) == 0 {
		return nil
	}

	// datetime of all bands within one dataset is the same in practice
	dt := TruncateToUnit(group[0].DateTime, c.stref.DT.Unit)
	it := floorDiv(UnitsBetween(bounds.T0, dt, c.stref.DT.Unit), c.stref.DT.N)
	if it < 0 || it >= dims[0] {
		return nil
	}

	nums := make([]int, len(rels))
	for k, rel := range rels {
		nums[k] = rel.bandNum
	}
	req := &WarpRequest{
		Descriptor: group[0].Descriptor,
		BandNums:   nums,
		SRS:        c.stref.SRS,
		Left:       bounds.Left,
		Right:      bounds.Right,
		Bottom:     bounds.Bottom,
		Top:        bounds.Top,
		Width:      dims[2],
		Height:     dims[1],
		Resampling: c.view.ResamplingMethod,
		ExtraArgs:  c.warpArgs,
	}
	planes, err := c.facility.Warp(req)
	if err != nil {
		return fmt.Errorf("warp of '%s' failed: %v", group[0].Descriptor, err)
	}
	if planes.NBands != len(rels) || planes.Height != dims[1] || planes.Width != dims[2] {
		return fmt.Errorf("warp of '%s' returned %dx%dx%d, want %dx%dx%d",
			group[0].Descriptor, planes.NBands, planes.Height, planes.Width, len(rels), dims[1], dims[2])
	}

	if c.mask != nil && maskNum >= 0 {
		maskReq := *req
		maskReq.BandNums = []int{maskNum}
		maskPlanes, err := c.facility.Warp(&maskReq)
		if err != nil {
			return fmt.Errorf("warp of mask band for '%s' failed: %v", group[0].Descriptor, err)
		}
		bandBufs := make([][]float64, planes.NBands)
		for k := range bandBufs {
			bandBufs[k] = planes.Plane(k)
		}
		c.mask.Apply(maskPlanes.Plane(0), bandBufs)
	}

	for k, rel := range rels {
		agg.update(out, planes.Plane(k), rel.cubeIdx, it)
	}
	return nil
}

func (c *CollectionCube) Desc() (*CubeDesc, error) {
	d := &CubeDesc{
		CubeType:  "image_collection",
		File:      c.collection.Name(),
		ChunkSize: []int{c.chunkSize[0], c.chunkSize[1], c.chunkSize[2]},
		View:      viewDescOf(c.view),
	}
	if c.mask != nil {
		d.Mask = c.mask.maskDesc()
		d.MaskBand = c.maskBand
	}
	if len(c.warpArgs) > 0 {
		d.WarpArgs = c.warpArgs
	}
	return d, nil
}
