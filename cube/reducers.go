package cube

import (
	"fmt"
	"math"
	"sort"
)

// Reducer names accepted by the reduce and window operators.
var reducerNames = map[string]bool{
	"sum":    true,
	"prod":   true,
	"count":  true,
	"min":    true,
	"max":    true,
	"mean":   true,
	"median": true,
	"var":    true,
	"sd":     true,
}

func ValidReducer(name string) bool {
	return reducerNames[name]
}

// reducerState is the three-phase state machine that collapses one axis
// of a cube for one band. init binds the accumulator cells (which alias
// the output chunk), feed consumes one finite value for cell i, and
// finalize postprocesses the cells and frees auxiliary buffers. NaN
// filtering is the caller's job: feed only ever sees finite values.
type reducerState interface {
	init(n int, acc []float64)
	feed(i int, v float64)
	finalize()
}

func newReducerState(name string) (reducerState, error) {
	switch name {
	case "sum":
		return &sumState{}, nil
	case "prod":
		return &prodState{}, nil
	case "count":
		return &countState{}, nil
	case "min":
		return &minState{}, nil
	case "max":
		return &maxState{}, nil
	case "mean":
		return &meanState{}, nil
	case "median":
		return &medianState{}, nil
	case "var":
		return &varState{}, nil
	case "sd":
		return &sdState{}, nil
	}
	return nil, fmt.Errorf("unknown reducer '%s'", name)
}

type sumState struct {
	acc []float64
}

func (s *sumState) init(n int, acc []float64) {
	s.acc = acc
	for i := range acc {
		acc[i] = 0
	}
}

func (s *sumState) feed(i int, v float64) {
	s.acc[i] += v
}

func (s *sumState) finalize() {}

type prodState struct {
	acc []float64
}

func (s *prodState) init(n int, acc []float64) {
	s.acc = acc
	for i := range acc {
		acc[i] = 1
	}
}

func (s *prodState) feed(i int, v float64) {
	s.acc[i] *= v
}

func (s *prodState) finalize() {}

type countState struct {
	acc []float64
}

func (s *countState) init(n int, acc []float64) {
	s.acc = acc
	for i := range acc {
		acc[i] = 0
	}
}

func (s *countState) feed(i int, v float64) {
	s.acc[i]++
}

func (s *countState) finalize() {}

type minState struct {
	acc []float64
}

func (s *minState) init(n int, acc []float64) {
	s.acc = acc
	nan := math.NaN()
	for i := range acc {
		acc[i] = nan
	}
}

func (s *minState) feed(i int, v float64) {
	if math.IsNaN(s.acc[i]) || v < s.acc[i] {
		s.acc[i] = v
	}
}

func (s *minState) finalize() {}

type maxState struct {
	acc []float64
}

func (s *maxState) init(n int, acc []float64) {
	s.acc = acc
	nan := math.NaN()
	for i := range acc {
		acc[i] = nan
	}
}

func (s *maxState) feed(i int, v float64) {
	if math.IsNaN(s.acc[i]) || v > s.acc[i] {
		s.acc[i] = v
	}
}

func (s *maxState) finalize() {}

type meanState struct {
	acc   []float64
	count []uint32
}

func (s *meanState) init(n int, acc []float64) {
	s.acc = acc
	s.count = make([]uint32, n)
	for i := range acc {
		acc[i] = 0
	}
}

func (s *meanState) feed(i int, v float64) {
	s.acc[i] += v
	s.count[i]++
}

func (s *meanState) finalize() {
	for i := range s.acc {
		if s.count[i] > 0 {
			s.acc[i] /= float64(s.count[i])
		} else {
			s.acc[i] = math.NaN()
		}
	}
	s.count = nil
}

// varState implements Welford's online algorithm. The accumulator cells
// hold the running M2 sum of squared distances from the mean.
type varState struct {
	acc   []float64
	mean  []float64
	count []uint32
}

func (s *varState) init(n int, acc []float64) {
	s.acc = acc
	s.mean = make([]float64, n)
	s.count = make([]uint32, n)
	for i := range acc {
		acc[i] = 0
	}
}

func (s *varState) feed(i int, v float64) {
	s.count[i]++
	delta := v - s.mean[i]
	s.mean[i] += delta / float64(s.count[i])
	s.acc[i] += delta * (v - s.mean[i])
}

func (s *varState) finalize() {
	for i := range s.acc {
		if s.count[i] > 1 {
			s.acc[i] /= float64(s.count[i] - 1)
		} else {
			s.acc[i] = math.NaN()
		}
	}
	s.mean = nil
	s.count = nil
}

type sdState struct {
	varState
}

func (s *sdState) finalize() {
	s.varState.finalize()
	for i := range s.acc {
		s.acc[i] = math.Sqrt(s.acc[i])
	}
}

// medianState buckets every finite value per cell; the exact median has
// a strong memory overhead but approximate reducers are out of scope.
type medianState struct {
	acc     []float64
	buckets [][]float64
}

func (s *medianState) init(n int, acc []float64) {
	s.acc = acc
	s.buckets = make([][]float64, n)
}

func (s *medianState) feed(i int, v float64) {
	s.buckets[i] = append(s.buckets[i], v)
}

func (s *medianState) finalize() {
	for i, list := range s.buckets {
		sort.Float64s(list)
		n := len(list)
		switch {
		case n == 0:
			s.acc[i] = math.NaN()
		case n%2 == 1:
			s.acc[i] = list[n/2]
		default:
			s.acc[i] = (list[n/2] + list[n/2-1]) / 2
		}
	}
	s.buckets = nil
}

// ReducerBand pairs a reducer with the input band it applies to.
type ReducerBand struct {
	Reducer string `json:"reducer"`
	Band    string `json:"band"`
}

// validateReducerBands checks reducer names and band existence, and
// returns the input band index for every pair.
func validateReducerBands(in Cube, reducerBands []ReducerBand) ([]int, error) {
	if len(reducerBands) == 0 {
		return nil, fmt.Errorf("no reducer bands given")
	}
	indexes := make([]int, len(reducerBands))
	for i, rb := range reducerBands {
		if !ValidReducer(rb.Reducer) {
			return nil, fmt.Errorf("unknown reducer '%s'", rb.Reducer)
		}
		idx, err := in.Bands().GetIndex(rb.Band)
		if err != nil {
			return nil, err
		}
		indexes[i] = idx
	}
	return indexes, nil
}

// reducedBandName renames an input band after the reducer applied to
// it, unless the input axis is already collapsed.
func reducedBandName(band, reducer string, alreadyReduced bool) string {
	if alreadyReduced {
		return band
	}
	return band + "_" + reducer
}
