package catalog

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"regexp"
	"sort"
	"time"

	geo "github.com/nci/geometry"
	"gopkg.in/yaml.v2"

	"github.com/maesbri-forks-geo/gdalcubes/cube"
)

// BandSpec describes how one collection band is found in a file path
// and which band of the raster dataset holds it.
type BandSpec struct {
	Pattern string   `yaml:"pattern"`
	BandNum int      `yaml:"band"`
	Type    string   `yaml:"type"`
	NoData  *float64 `yaml:"nodata"`
	Offset  float64  `yaml:"offset"`
	Scale   float64  `yaml:"scale"`
	Unit    string   `yaml:"unit"`
}

// CollectionFormat is the YAML recipe that turns a list of raster files
// into an image collection: how to group files into images, where the
// acquisition datetime hides in the path, and which band each file or
// dataset band contributes.
type CollectionFormat struct {
	Description string `yaml:"description"`
	Images      struct {
		// first capture group of Pattern names the image a file belongs to
		Pattern string `yaml:"pattern"`
	} `yaml:"images"`
	DateTime struct {
		Pattern string `yaml:"pattern"`
		Format  string `yaml:"format"`
	} `yaml:"datetime"`
	Bands map[string]*BandSpec `yaml:"bands"`
}

type compiledFormat struct {
	format   *CollectionFormat
	images   *regexp.Regexp
	datetime *regexp.Regexp
	bands    map[string]*regexp.Regexp
}

func LoadCollectionFormat(path string) (*CollectionFormat, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read collection format '%s': %v", path, err)
	}
	f := &CollectionFormat{}
	if err := yaml.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("cannot parse collection format '%s': %v", path, err)
	}
	return f, nil
}

func (f *CollectionFormat) compile() (*compiledFormat, error) {
	if len(f.Bands) == 0 {
		return nil, fmt.Errorf("collection format defines no bands")
	}
	if f.DateTime.Pattern == "" || f.DateTime.Format == "" {
		return nil, fmt.Errorf("collection format defines no datetime extraction")
	}
	c := &compiledFormat{format: f, bands: make(map[string]*regexp.Regexp)}

	var err error
	if f.Images.Pattern != "" {
		if c.images, err = regexp.Compile(f.Images.Pattern); err != nil {
			return nil, fmt.Errorf("bad image pattern: %v", err)
		}
		if c.images.NumSubexp() < 1 {
			return nil, fmt.Errorf("image pattern '%s' has no capture group for the image name", f.Images.Pattern)
		}
	}
	if c.datetime, err = regexp.Compile(f.DateTime.Pattern); err != nil {
		return nil, fmt.Errorf("bad datetime pattern: %v", err)
	}
	for name, spec := range f.Bands {
		if spec == nil || spec.Pattern == "" {
			// bands without a pattern match every file, as separate dataset bands
			c.bands[name] = nil
			continue
		}
		if c.bands[name], err = regexp.Compile(spec.Pattern); err != nil {
			return nil, fmt.Errorf("bad pattern for band '%s': %v", name, err)
		}
	}
	return c, nil
}

// imageName groups a file path into its image. Without an image pattern
// every file is its own image.
func (c *compiledFormat) imageName(path string) string {
	if c.images == nil {
		return path
	}
	m := c.images.FindStringSubmatch(path)
	if m == nil || m[1] == "" {
		return path
	}
	return m[1]
}

func (c *compiledFormat) extractDateTime(path string) (time.Time, error) {
	m := c.datetime.FindStringSubmatch(path)
	if m == nil {
		return time.Time{}, fmt.Errorf("no datetime in '%s'", path)
	}
	s := m[0]
	if len(m) > 1 {
		s = m[1]
	}
	t, err := time.Parse(c.format.DateTime.Format, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("datetime '%s' of '%s' does not match layout '%s'", s, path, c.format.DateTime.Format)
	}
	return t.UTC(), nil
}

// ImageFile is one raster file offered for ingestion. The spatial
// extent comes from the caller, typically a crawler that has read the
// file's metadata. Footprint optionally carries a GeoJSON feature with
// the valid-data polygon.
type ImageFile struct {
	Path      string
	DateTime  time.Time
	Left      float64
	Right     float64
	Bottom    float64
	Top       float64
	SRS       string
	Footprint string
}

// footprintWKT validates a GeoJSON footprint and renders it as WKT.
// Only polygonal footprints make sense for raster coverage.
func footprintWKT(raw string) (string, error) {
	var feat geo.Feature
	if err := json.Unmarshal([]byte(raw), &feat); err != nil {
		return "", fmt.Errorf("cannot parse footprint GeoJSON: %v", err)
	}
	switch feat.Geometry.(type) {
	case *geo.Polygon, *geo.MultiPolygon:
		return feat.Geometry.MarshalWKT(), nil
	}
	return "", fmt.Errorf("footprint must be a Polygon or MultiPolygon")
}

// CreateCollection builds a new collection file at dbPath from a list
// of raster files, following the format recipe. Files matching no band
// pattern are skipped with a log message rather than failing the whole
// ingestion.
func CreateCollection(dbPath string, f *CollectionFormat, files []ImageFile) (*SQLiteCollection, error) {
	cf, err := f.compile()
	if err != nil {
		return nil, err
	}

	db, err := createCollectionDB(dbPath)
	if err != nil {
		return nil, err
	}

	tx, err := db.Beginx()
	if err != nil {
		db.Close()
		return nil, err
	}

	if f.Description != "" {
		if _, err := tx.Exec("INSERT INTO collection_md (key, value) VALUES ('description', ?)", f.Description); err != nil {
			tx.Rollback()
			db.Close()
			return nil, err
		}
	}

	// stable band ids across runs of the same format; a bare band name
	// (nil spec) means defaults
	bandNames := make([]string, 0, len(f.Bands))
	specs := make(map[string]*BandSpec, len(f.Bands))
	for name, spec := range f.Bands {
		bandNames = append(bandNames, name)
		if spec == nil {
			spec = &BandSpec{}
		}
		specs[name] = spec
	}
	sort.Strings(bandNames)

	bandIDs := make(map[string]int64, len(bandNames))
	for i, name := range bandNames {
		spec := specs[name]
		scale := spec.Scale
		if scale == 0 {
			scale = 1
		}
		var nodata interface{}
		if spec.NoData != nil {
			nodata = *spec.NoData
		}
		if _, err := tx.Exec(
			`INSERT INTO bands (id, name, type, "offset", scale, unit, nodata) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i+1, name, spec.Type, spec.Offset, scale, spec.Unit, nodata); err != nil {
			tx.Rollback()
			db.Close()
			return nil, fmt.Errorf("cannot insert band '%s': %v", name, err)
		}
		bandIDs[name] = int64(i + 1)
	}

	imageIDs := make(map[string]int64)
	nextImage := int64(1)
	skipped := 0

	for _, file := range files {
		matched := false
		for _, name := range bandNames {
			re := cf.bands[name]
			if re != nil && !re.MatchString(file.Path) {
				continue
			}
			matched = true

			img := cf.imageName(file.Path)
			id, ok := imageIDs[img]
			if !ok {
				dt := file.DateTime
				if dt.IsZero() {
					if dt, err = cf.extractDateTime(file.Path); err != nil {
						tx.Rollback()
						db.Close()
						return nil, err
					}
				}
				var fp string
				if file.Footprint != "" {
					if fp, err = footprintWKT(file.Footprint); err != nil {
						tx.Rollback()
						db.Close()
						return nil, fmt.Errorf("bad footprint for '%s': %v", file.Path, err)
					}
				}
				id = nextImage
				nextImage++
				if _, err := tx.Exec(
					`INSERT INTO images (id, name, left, top, bottom, right, datetime, proj, footprint)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					id, img, file.Left, file.Top, file.Bottom, file.Right,
					dt.Format(cube.ISOFormat), file.SRS, fp); err != nil {
					tx.Rollback()
					db.Close()
					return nil, fmt.Errorf("cannot insert image '%s': %v", img, err)
				}
				imageIDs[img] = id
			}

			bandNum := specs[name].BandNum
			if bandNum <= 0 {
				bandNum = 1
			}
			if _, err := tx.Exec(
				`INSERT INTO gdalrefs (image_id, band_id, descriptor, band_num) VALUES (?, ?, ?, ?)`,
				id, bandIDs[name], file.Path, bandNum); err != nil {
				tx.Rollback()
				db.Close()
				return nil, fmt.Errorf("cannot reference '%s' for band '%s': %v", file.Path, name, err)
			}
		}
		if !matched {
			skipped++
			log.Printf("file '%s' matches no band pattern, skipped", file.Path)
		}
	}

	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, err
	}
	if skipped > 0 {
		log.Printf("collection '%s': %d of %d files skipped", dbPath, skipped, len(files))
	}
	return &SQLiteCollection{path: dbPath, db: db}, nil
}
