package engine

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/maesbri-forks-geo/gdalcubes/utils"
)

func loadConfig(t *testing.T, raw string) *utils.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := ioutil.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}
	config := &utils.Config{}
	if err := config.LoadConfigFile(path); err != nil {
		t.Fatal(err)
	}
	return config
}

func TestNewEngineEvaluatesGraphs(t *testing.T) {
	config := loadConfig(t, `{
		"processor": {"threads": 2, "chunk_cache_size": 8},
		"catalog": {"backend": "sqlite"}
	}`)
	e, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	if e.Pool != nil {
		t.Error("process pool created without a worker binary")
	}
	if e.Factory.OpenCollection == nil {
		t.Error("no collection opener for the sqlite backend")
	}

	c, err := e.Factory.CreateFromJSON([]byte(`{
		"cube_type": "dummy",
		"view": {
			"srs": "EPSG:3857",
			"left": 0, "right": 100, "bottom": 0, "top": 100,
			"nx": 10, "ny": 10,
			"t0": "2020-01-01", "t1": "2020-01-04",
			"dt": {"n": 1, "unit": "day"},
			"aggregation": "none", "resampling": "near"
		},
		"nbands": 1,
		"fill": 3
	}`))
	if err != nil {
		t.Fatal(err)
	}

	out, errChan := e.Processor.Apply(context.Background(), c)
	n := 0
	for res := range out {
		n++
		if got := res.Data.At(0, 0, 0, 0); got != 3 {
			t.Errorf("chunk %d cell = %f, want 3", res.ID, got)
		}
	}
	if n != c.CountChunks() {
		t.Errorf("evaluated %d chunks, want %d", n, c.CountChunks())
	}
	select {
	case err := <-errChan:
		t.Errorf("unexpected error: %v", err)
	default:
	}
}

func TestNewEnginePostgresOpener(t *testing.T) {
	config := loadConfig(t, `{
		"catalog": {"backend": "postgres", "conninfo": "dbname=catalog"}
	}`)
	e, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	if e.Factory.OpenCollection == nil {
		t.Error("no collection opener for the postgres backend")
	}
}

func TestNewEngineMetricsSinks(t *testing.T) {
	config := loadConfig(t, `{"metrics": {"sink": "stdout"}}`)
	if _, err := New(config); err != nil {
		t.Fatal(err)
	}
}
