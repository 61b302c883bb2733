package cube

import (
	"encoding/json"
	"fmt"
)

// ViewDesc is the JSON form of a cube view. Datetimes travel as ISO
// strings.
type ViewDesc struct {
	SRS         string   `json:"srs"`
	Left        float64  `json:"left"`
	Right       float64  `json:"right"`
	Bottom      float64  `json:"bottom"`
	Top         float64  `json:"top"`
	NX          int      `json:"nx"`
	NY          int      `json:"ny"`
	T0          string   `json:"t0"`
	T1          string   `json:"t1"`
	DT          Duration `json:"dt"`
	Aggregation string   `json:"aggregation,omitempty"`
	Resampling  string   `json:"resampling,omitempty"`
}

func viewDescOf(v CubeView) *ViewDesc {
	return &ViewDesc{
		SRS:         v.SRS,
		Left:        v.Left,
		Right:       v.Right,
		Bottom:      v.Bottom,
		Top:         v.Top,
		NX:          v.NX,
		NY:          v.NY,
		T0:          v.T0.Format(ISOFormat),
		T1:          v.T1.Format(ISOFormat),
		DT:          v.DT,
		Aggregation: v.AggregationMethod,
		Resampling:  v.ResamplingMethod,
	}
}

func (d *ViewDesc) toView() (CubeView, error) {
	t0, err := parseISOTime(d.T0)
	if err != nil {
		return CubeView{}, fmt.Errorf("invalid t0 '%s': %v", d.T0, err)
	}
	t1, err := parseISOTime(d.T1)
	if err != nil {
		return CubeView{}, fmt.Errorf("invalid t1 '%s': %v", d.T1, err)
	}
	v := CubeView{
		STRef: STRef{
			SRS:    d.SRS,
			Left:   d.Left,
			Right:  d.Right,
			Bottom: d.Bottom,
			Top:    d.Top,
			NX:     d.NX,
			NY:     d.NY,
			T0:     t0,
			T1:     t1,
			DT:     d.DT,
		},
		AggregationMethod: d.Aggregation,
		ResamplingMethod:  d.Resampling,
	}
	if v.AggregationMethod == "" {
		v.AggregationMethod = AggNone
	}
	if v.ResamplingMethod == "" {
		v.ResamplingMethod = "near"
	}
	return v, nil
}

// MaskDesc is the JSON form of an image mask.
type MaskDesc struct {
	MaskType string    `json:"mask_type"`
	Values   []float64 `json:"values,omitempty"`
	Min      float64   `json:"min,omitempty"`
	Max      float64   `json:"max,omitempty"`
	Invert   bool      `json:"invert,omitempty"`
}

func (d *MaskDesc) toMask() (ImageMask, error) {
	switch d.MaskType {
	case "value_mask":
		return NewValueMask(d.Values, d.Invert), nil
	case "range_mask":
		return &RangeMask{Min: d.Min, Max: d.Max, Invert: d.Invert}, nil
	}
	return nil, fmt.Errorf("unknown mask type '%s'", d.MaskType)
}

// CubeDesc is one node of a serialized operator graph. CubeType selects
// the operator; the remaining fields are a union and only the ones the
// operator uses are populated.
type CubeDesc struct {
	CubeType string `json:"cube_type"`

	InCube *CubeDesc `json:"in_cube,omitempty"`
	A      *CubeDesc `json:"A,omitempty"`
	B      *CubeDesc `json:"B,omitempty"`

	Reducer      string        `json:"reducer,omitempty"`
	ReducerBands []ReducerBand `json:"reducer_bands,omitempty"`
	Expressions  []string      `json:"expr,omitempty"`
	BandNames    []string      `json:"band_names,omitempty"`
	Predicate    string        `json:"predicate,omitempty"`
	Bands        []string      `json:"bands,omitempty"`
	Kernel       []float64     `json:"kernel,omitempty"`
	WinSizeL     int           `json:"win_size_l,omitempty"`
	WinSizeR     int           `json:"win_size_r,omitempty"`
	PrefixA      string        `json:"prefix_A,omitempty"`
	PrefixB      string        `json:"prefix_B,omitempty"`
	Command      []string      `json:"command,omitempty"`

	View      *ViewDesc `json:"view,omitempty"`
	ChunkSize []int     `json:"chunk_size,omitempty"`
	File      string    `json:"file,omitempty"`
	Mask      *MaskDesc `json:"mask,omitempty"`
	MaskBand  string    `json:"mask_band,omitempty"`
	WarpArgs  []string  `json:"warp_args,omitempty"`
	NBands    int       `json:"nbands,omitempty"`
	Fill      float64   `json:"fill,omitempty"`
}

// Factory rebuilds operator graphs from their serialized descriptions.
// Source cubes need the raster facility and a way to open collections
// by name; purely derived graphs work without either.
type Factory struct {
	Facility       RasterFacility
	OpenCollection func(name string) (Collection, error)
}

func (f *Factory) CreateFromJSON(raw []byte) (Cube, error) {
	var desc CubeDesc
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("cannot parse cube description: %v", err)
	}
	return f.CreateFromDesc(&desc)
}

func (f *Factory) CreateFromDesc(desc *CubeDesc) (Cube, error) {
	switch desc.CubeType {
	case "image_collection":
		return f.createCollectionCube(desc)
	case "dummy":
		return f.createDummyCube(desc)
	case "reduce":
		in, err := f.CreateFromDesc(desc.InCube)
		if err != nil {
			return nil, err
		}
		return NewReduceCube(in, desc.Reducer)
	case "reduce_time":
		in, err := f.CreateFromDesc(desc.InCube)
		if err != nil {
			return nil, err
		}
		return NewReduceTimeCube(in, desc.ReducerBands)
	case "reduce_space":
		in, err := f.CreateFromDesc(desc.InCube)
		if err != nil {
			return nil, err
		}
		return NewReduceSpaceCube(in, desc.ReducerBands)
	case "select_bands":
		in, err := f.CreateFromDesc(desc.InCube)
		if err != nil {
			return nil, err
		}
		return NewSelectBandsCube(in, desc.Bands)
	case "apply_pixel":
		in, err := f.CreateFromDesc(desc.InCube)
		if err != nil {
			return nil, err
		}
		return NewApplyPixelCube(in, desc.Expressions, desc.BandNames)
	case "filter_pixel":
		in, err := f.CreateFromDesc(desc.InCube)
		if err != nil {
			return nil, err
		}
		return NewFilterPixelCube(in, desc.Predicate)
	case "window_time":
		in, err := f.CreateFromDesc(desc.InCube)
		if err != nil {
			return nil, err
		}
		if len(desc.Kernel) > 0 {
			return NewWindowTimeKernelCube(in, desc.Kernel, desc.WinSizeL, desc.WinSizeR)
		}
		return NewWindowTimeReduceCube(in, desc.ReducerBands, desc.WinSizeL, desc.WinSizeR)
	case "join_bands":
		a, err := f.CreateFromDesc(desc.A)
		if err != nil {
			return nil, err
		}
		b, err := f.CreateFromDesc(desc.B)
		if err != nil {
			return nil, err
		}
		return NewJoinBandsCube(a, b, desc.PrefixA, desc.PrefixB)
	case "stream":
		in, err := f.CreateFromDesc(desc.InCube)
		if err != nil {
			return nil, err
		}
		return NewStreamCube(in, desc.Command, desc.NBands)
	}
	return nil, fmt.Errorf("unknown cube type '%s'", desc.CubeType)
}

func (f *Factory) createCollectionCube(desc *CubeDesc) (Cube, error) {
	if f.OpenCollection == nil {
		return nil, fmt.Errorf("factory cannot open collection '%s': no collection opener configured", desc.File)
	}
	if desc.View == nil {
		return nil, fmt.Errorf("image_collection description has no view")
	}
	col, err := f.OpenCollection(desc.File)
	if err != nil {
		return nil, err
	}
	view, err := desc.View.toView()
	if err != nil {
		return nil, err
	}
	c, err := NewCollectionCube(col, view, f.Facility)
	if err != nil {
		return nil, err
	}
	if len(desc.ChunkSize) == 3 {
		c.SetChunkSize(desc.ChunkSize[0], desc.ChunkSize[1], desc.ChunkSize[2])
	}
	if desc.Mask != nil {
		mask, err := desc.Mask.toMask()
		if err != nil {
			return nil, err
		}
		if err := c.SetMask(desc.MaskBand, mask); err != nil {
			return nil, err
		}
	}
	if len(desc.WarpArgs) > 0 {
		c.SetWarpArgs(desc.WarpArgs)
	}
	return c, nil
}

func (f *Factory) createDummyCube(desc *CubeDesc) (Cube, error) {
	if desc.View == nil {
		return nil, fmt.Errorf("dummy description has no view")
	}
	view, err := desc.View.toView()
	if err != nil {
		return nil, err
	}
	c, err := NewDummyCube(view, desc.NBands, desc.Fill)
	if err != nil {
		return nil, err
	}
	if len(desc.ChunkSize) == 3 {
		c.SetChunkSize(desc.ChunkSize[0], desc.ChunkSize[1], desc.ChunkSize[2])
	}
	return c, nil
}

// SerializeJSON renders a cube's operator graph as indented JSON. The
// result round-trips through CreateFromJSON.
func SerializeJSON(c Cube) ([]byte, error) {
	desc, err := c.Desc()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(desc, "", "  ")
}
