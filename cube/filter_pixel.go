package cube

import (
	"fmt"
	"math"

	goeval "github.com/edisonguo/govaluate"
)

// FilterPixelCube evaluates a boolean predicate over the bands of its
// input and sets all bands to NaN wherever the predicate is false.
// Bands and geometry are unchanged.
type FilterPixelCube struct {
	baseCube
	in        Cube
	predicate string
	compiled  *goeval.EvaluableExpression
	vars      []string
	varIdx    []int
}

func NewFilterPixelCube(in Cube, predicate string) (*FilterPixelCube, error) {
	compiled, vars, varIdx, err := compileBandExpression(predicate, in.Bands())
	if err != nil {
		return nil, fmt.Errorf("filter_pixel: %v", err)
	}
	c := &FilterPixelCube{in: in, predicate: predicate, compiled: compiled, vars: vars, varIdx: varIdx}
	c.stref = *in.STRef()
	c.chunkSize = in.ChunkSize()
	c.bands = in.Bands()
	link(in, c, &c.baseCube)
	return c, nil
}

func (c *FilterPixelCube) ReadChunk(id ChunkID) (*ChunkBuffer, error) {
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
	ncells := xs[1] * xs[2] * xs[3]
	out := NewChunkBuffer(xs[0], xs[1], xs[2], xs[3])

	params := make(map[string]interface{})
	for i := 0; i < ncells; i++ {
		for vi, varName := range c.vars {
			params[varName] = x.BandSlice(c.varIdx[vi])[i]
		}
		res, err := c.compiled.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("filter_pixel: evaluating '%s': %v", c.predicate, err)
		}
		keep, ok := res.(bool)
		if !ok {
			return nil, fmt.Errorf("filter_pixel: predicate '%s' is not boolean", c.predicate)
		}
		if keep {
			for b := 0; b < xs[0]; b++ {
				out.BandSlice(b)[i] = x.BandSlice(b)[i]
			}
		} else {
			nan := math.NaN()
			for b := 0; b < xs[0]; b++ {
				out.BandSlice(b)[i] = nan
			}
		}
	}
	return out, nil
}

func (c *FilterPixelCube) Desc() (*CubeDesc, error) {
	in, err := c.in.Desc()
	if err != nil {
		return nil, err
	}
	return &CubeDesc{
		CubeType:  "filter_pixel",
		InCube:    in,
		Predicate: c.predicate,
	}, nil
}
