package catalog

import (
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/maesbri-forks-geo/gdalcubes/cube"
)

// collectionSchema is the single-file catalog layout: images carry the
// spatial footprint and datetime, gdalrefs map (image, band) pairs to a
// raster descriptor and band number within that raster.
const collectionSchema = `
CREATE TABLE IF NOT EXISTS collection_md (
	key   TEXT PRIMARY KEY,
	value TEXT
);
CREATE TABLE IF NOT EXISTS bands (
	id          INTEGER PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	type        TEXT,
	offset      REAL DEFAULT 0,
	scale       REAL DEFAULT 1,
	unit        TEXT DEFAULT '',
	nodata      REAL,
	description TEXT DEFAULT ''
);
CREATE TABLE IF NOT EXISTS images (
	id       INTEGER PRIMARY KEY,
	name     TEXT NOT NULL UNIQUE,
	left     REAL,
	top      REAL,
	bottom   REAL,
	right    REAL,
	datetime  TEXT,
	proj      TEXT,
	footprint TEXT DEFAULT ''
);
CREATE TABLE IF NOT EXISTS gdalrefs (
	image_id   INTEGER NOT NULL REFERENCES images(id),
	band_id    INTEGER NOT NULL REFERENCES bands(id),
	descriptor TEXT NOT NULL,
	band_num   INTEGER NOT NULL,
	PRIMARY KEY (image_id, band_id)
);
CREATE INDEX IF NOT EXISTS idx_images_datetime ON images(datetime);
CREATE INDEX IF NOT EXISTS idx_gdalrefs_image ON gdalrefs(image_id);
`

// SQLiteCollection is an image collection stored in a single sqlite
// file, opened read-only for cube evaluation.
type SQLiteCollection struct {
	path string
	db   *sqlx.DB
}

// orderColumns whitelists the columns a caller may order results by.
var orderColumns = map[string]bool{
	"gdalrefs.descriptor": true,
	"images.datetime":     true,
	"images.name":         true,
}

func OpenCollection(path string) (*SQLiteCollection, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("collection '%s' does not exist: %v", path, err)
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cannot open collection '%s': %v", path, err)
	}
	// fail early on files that are not a collection
	var n int
	if err := db.Get(&n, "SELECT count(*) FROM bands"); err != nil {
		db.Close()
		return nil, fmt.Errorf("'%s' is not an image collection: %v", path, err)
	}
	return &SQLiteCollection{path: path, db: db}, nil
}

// createCollectionDB makes a fresh collection file with the catalog
// schema in place. Used by collection creation, not by evaluation.
func createCollectionDB(path string) (*sqlx.DB, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("collection '%s' already exists", path)
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cannot create collection '%s': %v", path, err)
	}
	if _, err := db.Exec(collectionSchema); err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("cannot initialize collection '%s': %v", path, err)
	}
	return db, nil
}

func (c *SQLiteCollection) Close() error {
	return c.db.Close()
}

func (c *SQLiteCollection) Name() string {
	return c.path
}

type bandRow struct {
	Name        string   `db:"name"`
	Type        string   `db:"type"`
	Offset      float64  `db:"offset"`
	Scale       float64  `db:"scale"`
	Unit        string   `db:"unit"`
	NoData      *float64 `db:"nodata"`
	Description string   `db:"description"`
}

func (c *SQLiteCollection) Bands() (cube.BandCollection, error) {
	var rows []bandRow
	err := c.db.Select(&rows, `SELECT name, type, "offset", scale, unit, nodata, description FROM bands ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("cannot read bands of '%s': %v", c.path, err)
	}
	bands := make(cube.BandCollection, 0, len(rows))
	for _, r := range rows {
		b := cube.Band{
			Name:        r.Name,
			Type:        r.Type,
			Offset:      r.Offset,
			Scale:       r.Scale,
			Unit:        r.Unit,
			Description: r.Description,
		}
		if r.NoData != nil {
			b.NoData = *r.NoData
		}
		bands = append(bands, b)
	}
	return bands, nil
}

type refRow struct {
	Descriptor string `db:"descriptor"`
	BandName   string `db:"band_name"`
	BandNum    int    `db:"band_num"`
	DateTime   string `db:"datetime"`
}

func (c *SQLiteCollection) FindRangeST(b cube.BoundsST, orderBy string) ([]cube.CatalogRow, error) {
	if orderBy == "" {
		orderBy = "gdalrefs.descriptor"
	}
	if !orderColumns[orderBy] {
		return nil, fmt.Errorf("cannot order catalog results by '%s'", orderBy)
	}

	query := fmt.Sprintf(`
		SELECT gdalrefs.descriptor AS descriptor,
		       bands.name AS band_name,
		       gdalrefs.band_num AS band_num,
		       images.datetime AS datetime
		FROM images
		JOIN gdalrefs ON gdalrefs.image_id = images.id
		JOIN bands ON bands.id = gdalrefs.band_id
		WHERE images.datetime >= ? AND images.datetime < ?
		  AND images.right >= ? AND images.left <= ?
		  AND images.top >= ? AND images.bottom <= ?
		ORDER BY %s`, orderBy)

	var rows []refRow
	err := c.db.Select(&rows, query,
		b.T0.Format(cube.ISOFormat), b.T1.Format(cube.ISOFormat),
		b.Left, b.Right, b.Bottom, b.Top)
	if err != nil {
		return nil, fmt.Errorf("catalog query on '%s' failed: %v", c.path, err)
	}
	return convertRefRows(rows)
}

func convertRefRows(rows []refRow) ([]cube.CatalogRow, error) {
	out := make([]cube.CatalogRow, 0, len(rows))
	for _, r := range rows {
		dt, err := parseCatalogTime(r.DateTime)
		if err != nil {
			return nil, fmt.Errorf("bad datetime '%s' for '%s': %v", r.DateTime, r.Descriptor, err)
		}
		out = append(out, cube.CatalogRow{
			Descriptor: r.Descriptor,
			BandName:   r.BandName,
			BandNum:    r.BandNum,
			DateTime:   dt,
		})
	}
	return out, nil
}

// Images returns the distinct image names, mostly for inspection tools.
func (c *SQLiteCollection) Images() ([]string, error) {
	var names []string
	if err := c.db.Select(&names, "SELECT name FROM images ORDER BY name"); err != nil {
		return nil, err
	}
	return names, nil
}

// Metadata reads the free-form key/value section of the collection.
func (c *SQLiteCollection) Metadata() (map[string]string, error) {
	type kv struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	var rows []kv
	if err := c.db.Select(&rows, "SELECT key, value FROM collection_md"); err != nil {
		return nil, err
	}
	md := make(map[string]string, len(rows))
	for _, r := range rows {
		md[r.Key] = r.Value
	}
	return md, nil
}

// CountImages is used by creation to report how much was ingested.
func (c *SQLiteCollection) CountImages() (int, error) {
	var n int
	err := c.db.Get(&n, "SELECT count(*) FROM images")
	return n, err
}

// parseCatalogTime accepts the ISO form the catalog writes plus a few
// shortened variants found in hand-built collections.
func parseCatalogTime(s string) (time.Time, error) {
	for _, layout := range []string{cube.ISOFormat, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime format")
}
