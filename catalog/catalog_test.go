package catalog

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/maesbri-forks-geo/gdalcubes/cube"
)

func testFormat() *CollectionFormat {
	f := &CollectionFormat{}
	f.Description = "test imagery"
	f.Images.Pattern = `.*/(S2_[0-9]{8})_B[0-9]+\.tif`
	f.DateTime.Pattern = `S2_([0-9]{8})_`
	f.DateTime.Format = "20060102"
	f.Bands = map[string]*BandSpec{
		"B04": {Pattern: `_B04\.tif$`, BandNum: 1, Type: "int16"},
		"B08": {Pattern: `_B08\.tif$`, BandNum: 1, Type: "int16"},
	}
	return f
}

func testFiles() []ImageFile {
	box := ImageFile{Left: 0, Right: 100, Bottom: 0, Top: 100, SRS: "EPSG:32632"}
	var files []ImageFile
	for _, p := range []string{
		"/data/S2_20200101_B04.tif",
		"/data/S2_20200101_B08.tif",
		"/data/S2_20200117_B04.tif",
		"/data/S2_20200117_B08.tif",
	} {
		f := box
		f.Path = p
		files = append(files, f)
	}
	return files
}

func createTestCollection(t *testing.T) *SQLiteCollection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	col, err := CreateCollection(path, testFormat(), testFiles())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { col.Close() })
	return col
}

func TestCreateAndOpenCollection(t *testing.T) {
	col := createTestCollection(t)

	n, err := col.CountImages()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("collection has %d images, want 2", n)
	}

	bands, err := col.Bands()
	if err != nil {
		t.Fatal(err)
	}
	if names := bands.Names(); len(names) != 2 || names[0] != "B04" || names[1] != "B08" {
		t.Errorf("collection bands %v, want [B04 B08]", names)
	}

	md, err := col.Metadata()
	if err != nil {
		t.Fatal(err)
	}
	if md["description"] != "test imagery" {
		t.Errorf("description %q", md["description"])
	}

	// reopen from disk
	reopened, err := OpenCollection(col.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	images, err := reopened.Images()
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 || images[0] != "S2_20200101" || images[1] != "S2_20200117" {
		t.Errorf("images %v", images)
	}
}

func TestCreateCollectionBareBandNames(t *testing.T) {
	// `bands:\n  B04:` parses to a nil spec; it matches every file with
	// default band number and scale
	f := &CollectionFormat{}
	f.DateTime.Pattern = `S2_([0-9]{8})_`
	f.DateTime.Format = "20060102"
	f.Bands = map[string]*BandSpec{"B04": nil}

	path := filepath.Join(t.TempDir(), "bare.db")
	col, err := CreateCollection(path, f, testFiles()[:1])
	if err != nil {
		t.Fatal(err)
	}
	defer col.Close()

	bands, err := col.Bands()
	if err != nil {
		t.Fatal(err)
	}
	if names := bands.Names(); len(names) != 1 || names[0] != "B04" {
		t.Errorf("collection bands %v, want [B04]", names)
	}

	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rows, err := col.FindRangeST(cube.BoundsST{
		Left: 0, Right: 100, Bottom: 0, Top: 100,
		T0: t0, T1: t0.AddDate(0, 0, 1),
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("%d rows, want 1", len(rows))
	}
	if rows[0].BandNum != 1 {
		t.Errorf("default band number %d, want 1", rows[0].BandNum)
	}
}

func TestOpenCollectionErrors(t *testing.T) {
	if _, err := OpenCollection(filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Error("missing collection opened")
	}

	junk := filepath.Join(t.TempDir(), "junk.db")
	if err := ioutil.WriteFile(junk, []byte("not a database"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenCollection(junk); err == nil {
		t.Error("junk file opened as collection")
	}
}

func TestCreateCollectionRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	col, err := CreateCollection(path, testFormat(), testFiles())
	if err != nil {
		t.Fatal(err)
	}
	col.Close()
	if _, err := CreateCollection(path, testFormat(), testFiles()); err == nil {
		t.Error("existing collection overwritten")
	}
}

func TestFindRangeST(t *testing.T) {
	col := createTestCollection(t)

	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	bounds := cube.BoundsST{
		Left: 0, Right: 100, Bottom: 0, Top: 100,
		T0: t0, T1: t0.AddDate(0, 0, 16),
	}

	// only the january 1st image falls into the first 16 days
	rows, err := col.FindRangeST(bounds, "gdalrefs.descriptor")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("%d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if !r.DateTime.Equal(t0) {
			t.Errorf("row datetime %v, want %v", r.DateTime, t0)
		}
	}
	if rows[0].Descriptor > rows[1].Descriptor {
		t.Error("rows not ordered by descriptor")
	}

	// both images over the full month
	bounds.T1 = t0.AddDate(0, 1, 0)
	if rows, err = col.FindRangeST(bounds, ""); err != nil {
		t.Fatal(err)
	} else if len(rows) != 4 {
		t.Errorf("%d rows over the full month, want 4", len(rows))
	}

	// spatially disjoint query finds nothing
	bounds.Left, bounds.Right = 500, 600
	if rows, err = col.FindRangeST(bounds, ""); err != nil {
		t.Fatal(err)
	} else if len(rows) != 0 {
		t.Errorf("%d rows outside the footprint, want 0", len(rows))
	}

	if _, err := col.FindRangeST(bounds, "images.datetime; drop table images"); err == nil {
		t.Error("arbitrary order clause accepted")
	}
}

func TestCollectionDrivesSourceCube(t *testing.T) {
	col := createTestCollection(t)

	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	view := cube.CubeView{
		STRef: cube.STRef{
			SRS: "EPSG:32632", Left: 0, Right: 100, Bottom: 0, Top: 100, NX: 10, NY: 10,
			T0: t0, T1: t0.AddDate(0, 0, 16),
			DT: cube.Duration{N: 16, Unit: cube.UnitDay},
		},
		AggregationMethod: cube.AggMean,
		ResamplingMethod:  "bilinear",
	}
	c, err := cube.NewCollectionCube(col, view, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Bands().Names(); len(got) != 2 {
		t.Errorf("source cube bands %v", got)
	}
	if c.STRef().NT() != 2 {
		t.Errorf("source cube has %d time slots, want 2", c.STRef().NT())
	}
}

func TestDateTimeExtraction(t *testing.T) {
	cf, err := testFormat().compile()
	if err != nil {
		t.Fatal(err)
	}
	dt, err := cf.extractDateTime("/data/S2_20200117_B04.tif")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2020, 1, 17, 0, 0, 0, 0, time.UTC); !dt.Equal(want) {
		t.Errorf("extracted %v, want %v", dt, want)
	}
	if _, err := cf.extractDateTime("/data/nodate.tif"); err == nil {
		t.Error("file without datetime accepted")
	}
}

func TestFormatValidation(t *testing.T) {
	f := testFormat()
	f.Bands = nil
	if _, err := f.compile(); err == nil {
		t.Error("format without bands accepted")
	}

	f = testFormat()
	f.DateTime.Pattern = ""
	if _, err := f.compile(); err == nil {
		t.Error("format without datetime accepted")
	}

	f = testFormat()
	f.Bands["B04"].Pattern = "("
	if _, err := f.compile(); err == nil {
		t.Error("broken band pattern accepted")
	}
}

func TestLoadCollectionFormat(t *testing.T) {
	raw := `
description: sentinel-2 subset
images:
  pattern: '.*/(S2_[0-9]{8})_B[0-9]+\.tif'
datetime:
  pattern: 'S2_([0-9]{8})_'
  format: '20060102'
bands:
  B04:
    pattern: '_B04\.tif$'
    band: 1
    type: int16
    nodata: 0
`
	path := filepath.Join(t.TempDir(), "format.yml")
	if err := ioutil.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := LoadCollectionFormat(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Description != "sentinel-2 subset" {
		t.Errorf("description %q", f.Description)
	}
	spec := f.Bands["B04"]
	if spec == nil || spec.BandNum != 1 || spec.Type != "int16" {
		t.Errorf("band spec %+v", spec)
	}
	if spec.NoData == nil || *spec.NoData != 0 {
		t.Error("nodata not parsed")
	}
	if _, err := f.compile(); err != nil {
		t.Errorf("loaded format does not compile: %v", err)
	}

	if _, err := LoadCollectionFormat(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("missing format file loaded")
	}
}

func TestFootprintWKT(t *testing.T) {
	poly := `{"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0,0],[100,0],[100,100],[0,100],[0,0]]]}}`
	wkt, err := footprintWKT(poly)
	if err != nil {
		t.Fatal(err)
	}
	if wkt == "" {
		t.Error("empty WKT for a valid polygon")
	}

	point := `{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0,0]}}`
	if _, err := footprintWKT(point); err == nil {
		t.Error("point footprint accepted")
	}
	if _, err := footprintWKT("not geojson"); err == nil {
		t.Error("malformed footprint accepted")
	}
}
