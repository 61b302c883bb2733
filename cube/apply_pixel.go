package cube

import (
	"fmt"

	goeval "github.com/edisonguo/govaluate"
)

// ApplyPixelCube evaluates a list of arithmetic expressions over the
// bands of its input, per pixel, producing one output band per
// expression. Geometry is unchanged.
type ApplyPixelCube struct {
	baseCube
	in        Cube
	exprs     []string
	bandNames []string
	compiled  []*goeval.EvaluableExpression
	vars      [][]string
	varIdx    [][]int
}

// compileBandExpression parses an expression and verifies that every
// variable refers to an input band.
func compileBandExpression(expr string, bands BandCollection) (*goeval.EvaluableExpression, []string, []int, error) {
	compiled, err := goeval.NewEvaluableExpression(expr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("cannot parse expression '%s': %v", expr, err)
	}

	var vars []string
	var varIdx []int
	seen := make(map[string]bool)
	for _, token := range compiled.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		varName, ok := token.Value.(string)
		if !ok {
			return nil, nil, nil, fmt.Errorf("variable token '%v' failed to cast string", token.Value)
		}
		if seen[varName] {
			continue
		}
		seen[varName] = true
		idx, err := bands.GetIndex(varName)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("expression '%s' references unknown band '%s'", expr, varName)
		}
		vars = append(vars, varName)
		varIdx = append(varIdx, idx)
	}
	return compiled, vars, varIdx, nil
}

func NewApplyPixelCube(in Cube, exprs []string, bandNames []string) (*ApplyPixelCube, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("apply_pixel: no expressions given")
	}
	if bandNames != nil && len(bandNames) != len(exprs) {
		return nil, fmt.Errorf("apply_pixel: %d band names given for %d expressions", len(bandNames), len(exprs))
	}

	c := &ApplyPixelCube{in: in, exprs: exprs}
	c.stref = *in.STRef()
	c.chunkSize = in.ChunkSize()

	for i, expr := range exprs {
		compiled, vars, varIdx, err := compileBandExpression(expr, in.Bands())
		if err != nil {
			return nil, fmt.Errorf("apply_pixel: %v", err)
		}
		c.compiled = append(c.compiled, compiled)
		c.vars = append(c.vars, vars)
		c.varIdx = append(c.varIdx, varIdx)

		name := fmt.Sprintf("band%d", i+1)
		if bandNames != nil {
			name = bandNames[i]
		}
		c.bands = append(c.bands, Band{Name: name, Type: "float64", Scale: 1})
	}
	if bandNames != nil {
		c.bandNames = bandNames
	}
	if err := c.bands.validateUnique(); err != nil {
		return nil, fmt.Errorf("apply_pixel: %v", err)
	}

	link(in, c, &c.baseCube)
	return c, nil
}

func (c *ApplyPixelCube) ReadChunk(id ChunkID) (*ChunkBuffer, error) {
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
	out := NewChunkBuffer(len(c.bands), xs[1], xs[2], xs[3])

	params := make(map[string]interface{})
	for k := range c.compiled {
		dst := out.BandSlice(k)
		for i := 0; i < ncells; i++ {
			for vi, varName := range c.vars[k] {
				params[varName] = x.BandSlice(c.varIdx[k][vi])[i]
			}
			res, err := c.compiled[k].Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("apply_pixel: evaluating '%s': %v", c.exprs[k], err)
			}
			v, ok := res.(float64)
			if !ok {
				return nil, fmt.Errorf("apply_pixel: expression '%s' is not numeric", c.exprs[k])
			}
			dst[i] = v
		}
	}
	return out, nil
}

func (c *ApplyPixelCube) Desc() (*CubeDesc, error) {
	in, err := c.in.Desc()
	if err != nil {
		return nil, err
	}
	return &CubeDesc{
		CubeType:    "apply_pixel",
		InCube:      in,
		Expressions: c.exprs,
		BandNames:   c.bandNames,
	}, nil
}
