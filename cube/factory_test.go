package cube

import (
	"testing"
)

func testFactory() *Factory {
	return &Factory{}
}

const dummyGraph = `{
  "cube_type": "dummy",
  "view": {
    "srs": "EPSG:3857",
    "left": 0, "right": 100, "bottom": 0, "top": 100,
    "nx": 10, "ny": 10,
    "t0": "2020-01-01", "t1": "2020-01-04",
    "dt": {"n": 1, "unit": "day"},
    "aggregation": "none", "resampling": "near"
  },
  "nbands": 2,
  "fill": 3
}`

func TestFactoryDummyCube(t *testing.T) {
	c, err := testFactory().CreateFromJSON([]byte(dummyGraph))
	if err != nil {
		t.Fatal(err)
	}
	if c.STRef().NX != 10 || c.STRef().NY != 10 || c.STRef().NT() != 4 {
		t.Fatalf("dummy shape %dx%dx%d", c.STRef().NT(), c.STRef().NY, c.STRef().NX)
	}
	if len(c.Bands()) != 2 {
		t.Fatalf("dummy has %d bands, want 2", len(c.Bands()))
	}
	x, err := c.ReadChunk(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := x.At(0, 0, 0, 0); !sameFloat(got, 3) {
		t.Errorf("fill value %f, want 3", got)
	}
}

func TestFactoryGraphRoundTrip(t *testing.T) {
	f := testFactory()
	src, err := f.CreateFromJSON([]byte(dummyGraph))
	if err != nil {
		t.Fatal(err)
	}

	applied, err := NewApplyPixelCube(src, []string{"band1 + band2"}, []string{"total"})
	if err != nil {
		t.Fatal(err)
	}
	filtered, err := NewFilterPixelCube(applied, "total > 0")
	if err != nil {
		t.Fatal(err)
	}
	reduced, err := NewReduceTimeCube(filtered, []ReducerBand{{Reducer: "mean", Band: "total"}})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := SerializeJSON(reduced)
	if err != nil {
		t.Fatal(err)
	}
	rebuilt, err := f.CreateFromJSON(raw)
	if err != nil {
		t.Fatalf("cannot rebuild serialized graph: %v\n%s", err, raw)
	}

	if !rebuilt.STRef().Equal(reduced.STRef()) {
		t.Error("rebuilt graph has a different reference frame")
	}
	if got, want := rebuilt.Bands().Names(), reduced.Bands().Names(); len(got) != len(want) || got[0] != want[0] {
		t.Errorf("rebuilt bands %v, want %v", got, want)
	}

	x1, err := reduced.ReadChunk(0)
	if err != nil {
		t.Fatal(err)
	}
	x2, err := rebuilt.ReadChunk(0)
	if err != nil {
		t.Fatal(err)
	}
	for i := range x1.Data() {
		if !sameFloat(x1.Data()[i], x2.Data()[i]) {
			t.Fatalf("cell %d differs after round trip: %f vs %f", i, x1.Data()[i], x2.Data()[i])
		}
	}
}

func TestFactoryWindowAndJoin(t *testing.T) {
	f := testFactory()
	src, err := f.CreateFromJSON([]byte(dummyGraph))
	if err != nil {
		t.Fatal(err)
	}
	win, err := NewWindowTimeKernelCube(src, []float64{0.25, 0.5, 0.25}, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	src2, err := f.CreateFromJSON([]byte(dummyGraph))
	if err != nil {
		t.Fatal(err)
	}
	joined, err := NewJoinBandsCube(win, src2, "smooth", "raw")
	if err != nil {
		t.Fatal(err)
	}

	raw, err := SerializeJSON(joined)
	if err != nil {
		t.Fatal(err)
	}
	rebuilt, err := f.CreateFromJSON(raw)
	if err != nil {
		t.Fatalf("cannot rebuild serialized graph: %v\n%s", err, raw)
	}
	if got, want := rebuilt.Bands().Names(), joined.Bands().Names(); len(got) != len(want) {
		t.Fatalf("rebuilt bands %v, want %v", got, want)
	} else {
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("rebuilt band %d = %s, want %s", i, got[i], want[i])
			}
		}
	}
}

func TestFactoryUnknownCubeType(t *testing.T) {
	if _, err := testFactory().CreateFromJSON([]byte(`{"cube_type": "hypercube"}`)); err == nil {
		t.Error("unknown cube type accepted")
	}
	if _, err := testFactory().CreateFromJSON([]byte(`not json`)); err == nil {
		t.Error("malformed json accepted")
	}
}

func TestFactoryCollectionNeedsOpener(t *testing.T) {
	desc := &CubeDesc{CubeType: "image_collection", File: "x.db", View: viewDescOf(CubeView{})}
	if _, err := testFactory().CreateFromDesc(desc); err == nil {
		t.Error("collection cube built without a collection opener")
	}
}
