package cube

import "math"

// ImageMask invalidates pixels of a warped image based on the values of
// a dedicated mask band: wherever the predicate fires, every band of
// the pixel is set to NaN before aggregation.
type ImageMask interface {
	Apply(maskBuf []float64, bands [][]float64)
	maskDesc() *MaskDesc
}

// ValueMask fires when the mask value is a member of a fixed set,
// or outside the set when inverted.
type ValueMask struct {
	Values map[float64]bool
	Invert bool
}

func NewValueMask(values []float64, invert bool) *ValueMask {
	set := make(map[float64]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return &ValueMask{Values: set, Invert: invert}
}

func (m *ValueMask) Apply(maskBuf []float64, bands [][]float64) {
	nan := math.NaN()
	for i, v := range maskBuf {
		if m.Values[v] != m.Invert {
			for _, band := range bands {
				band[i] = nan
			}
		}
	}
}

func (m *ValueMask) maskDesc() *MaskDesc {
	values := make([]float64, 0, len(m.Values))
	for v := range m.Values {
		values = append(values, v)
	}
	return &MaskDesc{MaskType: "value_mask", Values: values, Invert: m.Invert}
}

// RangeMask fires when the mask value falls inside [Min, Max], or
// outside it when inverted.
type RangeMask struct {
	Min    float64
	Max    float64
	Invert bool
}

func (m *RangeMask) Apply(maskBuf []float64, bands [][]float64) {
	nan := math.NaN()
	for i, v := range maskBuf {
		inside := v >= m.Min && v <= m.Max
		if inside != m.Invert {
			for _, band := range bands {
				band[i] = nan
			}
		}
	}
}

func (m *RangeMask) maskDesc() *MaskDesc {
	return &MaskDesc{MaskType: "range_mask", Min: m.Min, Max: m.Max, Invert: m.Invert}
}
