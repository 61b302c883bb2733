package cube

import "math"

// aggregator fuses the band planes of successive images that fall into
// the same temporal slot of a chunk. Update receives one warped band
// plane for cube band b and temporal slot t; Finalize releases any
// auxiliary state.
type aggregator interface {
	update(chunk *ChunkBuffer, img []float64, b, t int)
	finalize(chunk *ChunkBuffer)
}

func newAggregator(method string) aggregator {
	switch method {
	case AggMin:
		return &minAggregator{}
	case AggMax:
		return &maxAggregator{}
	case AggMean:
		return &meanAggregator{}
	default:
		return &noneAggregator{}
	}
}

// noneAggregator: last writer wins. The catalog's descriptor order
// defines the winner; the whole plane is copied, NaNs included.
type noneAggregator struct{}

func (a *noneAggregator) update(chunk *ChunkBuffer, img []float64, b, t int) {
	copy(chunk.Plane(b, t), img)
}

func (a *noneAggregator) finalize(chunk *ChunkBuffer) {}

type minAggregator struct{}

func (a *minAggregator) update(chunk *ChunkBuffer, img []float64, b, t int) {
	plane := chunk.Plane(b, t)
	for i, v := range img {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(plane[i]) || v < plane[i] {
			plane[i] = v
		}
	}
}

func (a *minAggregator) finalize(chunk *ChunkBuffer) {}

type maxAggregator struct{}

func (a *maxAggregator) update(chunk *ChunkBuffer, img []float64, b, t int) {
	plane := chunk.Plane(b, t)
	for i, v := range img {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(plane[i]) || v > plane[i] {
			plane[i] = v
		}
	}
}

func (a *maxAggregator) finalize(chunk *ChunkBuffer) {}

// meanAggregator keeps a per-(band, slot) counter plane and maintains a
// standard online mean per pixel.
type meanAggregator struct {
	counts map[int][]uint32
}

func (a *meanAggregator) update(chunk *ChunkBuffer, img []float64, b, t int) {
	if a.counts == nil {
		a.counts = make(map[int][]uint32)
	}
	key := b*chunk.Size()[1] + t
	cnt := a.counts[key]
	if cnt == nil {
		cnt = make([]uint32, len(img))
		a.counts[key] = cnt
	}

	plane := chunk.Plane(b, t)
	for i, v := range img {
		if math.IsNaN(v) {
			continue
		}
		n := cnt[i]
		if n == 0 || math.IsNaN(plane[i]) {
			plane[i] = v
			cnt[i] = 1
			continue
		}
		cnt[i] = n + 1
		plane[i] += (v - plane[i]) / float64(n+1)
	}
}

func (a *meanAggregator) finalize(chunk *ChunkBuffer) {
	a.counts = nil
}
