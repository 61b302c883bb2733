package cube

import "fmt"

// ReduceCube is the early single-reducer variant of ReduceTimeCube: one
// reducer applied to every band of the input. Kept for compatibility
// with existing graph descriptions.
type ReduceCube struct {
	*ReduceTimeCube
	reducer string
}

func NewReduceCube(in Cube, reducer string) (*ReduceCube, error) {
	if !ValidReducer(reducer) {
		return nil, fmt.Errorf("reduce: unknown reducer '%s'", reducer)
	}
	reducerBands := make([]ReducerBand, len(in.Bands()))
	for i, name := range in.Bands().Names() {
		reducerBands[i] = ReducerBand{Reducer: reducer, Band: name}
	}
	rt, err := NewReduceTimeCube(in, reducerBands)
	if err != nil {
		return nil, err
	}
	return &ReduceCube{ReduceTimeCube: rt, reducer: reducer}, nil
}

func (c *ReduceCube) Desc() (*CubeDesc, error) {
	in, err := c.in.Desc()
	if err != nil {
		return nil, err
	}
	return &CubeDesc{
		CubeType: "reduce",
		InCube:   in,
		Reducer:  c.reducer,
	}, nil
}
