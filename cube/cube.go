package cube

import (
	"time"
)

// ChunkID addresses one tile of a cube. Ids are a row-major index over
// (ct, cy, cx) with x fastest, then y, then t.
type ChunkID int

// Cube is the pull contract every operator in the graph implements.
// ReadChunk must be deterministic for identical inputs and graph state,
// must return the empty chunk for ids outside [0, CountChunks()), and
// must be safe for concurrent calls on disjoint ids.
type Cube interface {
	STRef() *STRef
	Bands() BandCollection
	ChunkSize() [3]int

	CountChunks() int
	CountChunksT() int
	CountChunksY() int
	CountChunksX() int
	ChunkDims(id ChunkID) [3]int
	ChunkCoords(id ChunkID) (ct, cy, cx int)
	ChunkIDOf(ct, cy, cx int) ChunkID
	BoundsFromChunk(id ChunkID) BoundsST
	FindChunkThatContains(t time.Time, x, y float64) ChunkID

	ReadChunk(id ChunkID) (*ChunkBuffer, error)

	Parents() []Cube
	Children() []Cube
	Desc() (*CubeDesc, error)

	addChild(c Cube)
}

// CatalogRow is one catalog result: a band of an underlying raster
// dataset that intersects a queried space-time box.
type CatalogRow struct {
	Descriptor string
	BandName   string
	BandNum    int
	DateTime   time.Time
}

// Collection is the image-collection catalog contract. FindRangeST
// returns all rows whose space-time footprint intersects b, ordered by
// orderBy; ordering by descriptor keeps rows of the same raster
// contiguous, which the source cube relies on.
type Collection interface {
	Name() string
	Bands() (BandCollection, error)
	FindRangeST(b BoundsST, orderBy string) ([]CatalogRow, error)
}

// RasterPlanes is a float64 band-planar buffer [nbands][ny][nx] with
// NaN as the nodata sentinel, as returned by the raster facility.
type RasterPlanes struct {
	NBands int
	Height int
	Width  int
	Data   []float64
}

func (p *RasterPlanes) Plane(i int) []float64 {
	n := p.Height * p.Width
	return p.Data[i*n : (i+1)*n]
}

// WarpRequest asks the raster facility to reproject, resample and
// resize bands of a dataset onto a target grid.
type WarpRequest struct {
	Descriptor string
	BandNums   []int // 1-based band numbers
	SRS        string
	Left       float64
	Right      float64
	Bottom     float64
	Top        float64
	Width      int
	Height     int
	Resampling string
	ExtraArgs  []string
}

// ExtractRequest asks the raster facility to crop bands of a dataset to
// a projected bounding box at native resolution.
type ExtractRequest struct {
	Descriptor string
	BandNums   []int
	SRS        string
	Left       float64
	Right      float64
	Bottom     float64
	Top        float64
	ExtraArgs  []string
}

// RasterFacility abstracts raster decoding, cropping, reprojection and
// resampling. Failures are fatal to the chunk being read.
type RasterFacility interface {
	Warp(req *WarpRequest) (*RasterPlanes, error)
	Extract(req *ExtractRequest) (*RasterPlanes, error)
}

// baseCube carries the geometry shared by every operator: the reference
// frame, the band collection, the chunk tiling, and the graph links.
// Parents are owning references; children are back-references only.
type baseCube struct {
	stref     STRef
	bands     BandCollection
	chunkSize [3]int
	parents   []Cube
	children  []Cube
}

func (b *baseCube) STRef() *STRef          { return &b.stref }
func (b *baseCube) Bands() BandCollection  { return b.bands }
func (b *baseCube) ChunkSize() [3]int      { return b.chunkSize }
func (b *baseCube) Parents() []Cube        { return b.parents }
func (b *baseCube) Children() []Cube       { return b.children }
func (b *baseCube) addChild(c Cube)        { b.children = append(b.children, c) }

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func (b *baseCube) CountChunksT() int {
	return ceilDiv(b.stref.NT(), b.chunkSize[0])
}

func (b *baseCube) CountChunksY() int {
	return ceilDiv(b.stref.NY, b.chunkSize[1])
}

func (b *baseCube) CountChunksX() int {
	return ceilDiv(b.stref.NX, b.chunkSize[2])
}

func (b *baseCube) CountChunks() int {
	return b.CountChunksT() * b.CountChunksY() * b.CountChunksX()
}

func (b *baseCube) ChunkCoords(id ChunkID) (ct, cy, cx int) {
	nx := b.CountChunksX()
	ny := b.CountChunksY()
	cx = int(id) % nx
	cy = (int(id) / nx) % ny
	ct = int(id) / (nx * ny)
	return
}

func (b *baseCube) ChunkIDOf(ct, cy, cx int) ChunkID {
	return ChunkID((ct*b.CountChunksY()+cy)*b.CountChunksX() + cx)
}

// ChunkDims returns the actual [nt, ny, nx] pixel size of chunk id,
// which is smaller than the configured chunk size at cube boundaries.
func (b *baseCube) ChunkDims(id ChunkID) [3]int {
	ct, cy, cx := b.ChunkCoords(id)
	st := b.chunkSize[0]
	if r := b.stref.NT() - ct*b.chunkSize[0]; r < st {
		st = r
	}
	sy := b.chunkSize[1]
	if r := b.stref.NY - cy*b.chunkSize[1]; r < sy {
		sy = r
	}
	sx := b.chunkSize[2]
	if r := b.stref.NX - cx*b.chunkSize[2]; r < sx {
		sx = r
	}
	return [3]int{st, sy, sx}
}

// BoundsFromChunk computes the space-time box of chunk id. The temporal
// upper bound is exclusive.
func (b *baseCube) BoundsFromChunk(id ChunkID) BoundsST {
	ct, cy, cx := b.ChunkCoords(id)
	dims := b.ChunkDims(id)

	left := b.stref.Left + float64(cx*b.chunkSize[2])*b.stref.DX()
	top := b.stref.Top - float64(cy*b.chunkSize[1])*b.stref.DY()
	t0 := b.stref.DT.AddTo(b.stref.T0, ct*b.chunkSize[0])

	return BoundsST{
		Left:   left,
		Right:  left + float64(dims[2])*b.stref.DX(),
		Bottom: top - float64(dims[1])*b.stref.DY(),
		Top:    top,
		T0:     t0,
		T1:     b.stref.DT.AddTo(t0, dims[0]),
	}
}

// FindChunkThatContains floors a space-time coordinate into the tile
// grid. Points outside the cube produce an id outside [0, CountChunks).
func (b *baseCube) FindChunkThatContains(t time.Time, x, y float64) ChunkID {
	px := floorToInt((x - b.stref.Left) / b.stref.DX())
	py := floorToInt((b.stref.Top - y) / b.stref.DY())
	pt := floorDiv(UnitsBetween(b.stref.T0, t, b.stref.DT.Unit), b.stref.DT.N)

	cx := floorDiv(px, b.chunkSize[2])
	cy := floorDiv(py, b.chunkSize[1])
	ct := floorDiv(pt, b.chunkSize[0])

	if cx < 0 || cx >= b.CountChunksX() ||
		cy < 0 || cy >= b.CountChunksY() ||
		ct < 0 || ct >= b.CountChunksT() {
		return ChunkID(-1)
	}
	return b.ChunkIDOf(ct, cy, cx)
}

// link records the parent/child relation between two cubes. The child
// owns the parent reference; the parent only keeps a back-reference.
func link(parent Cube, child Cube, childBase *baseCube) {
	childBase.parents = append(childBase.parents, parent)
	parent.addChild(child)
}
