package catalog

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/nci/gomemcache/memcache"

	"github.com/maesbri-forks-geo/gdalcubes/cube"
)

// PostgresCollection is a shared catalog holding many collections in
// one database, keyed by collection name. Query results are cached in
// memcache when a server is configured; the database stays the source
// of truth and cache errors are ignored.
type PostgresCollection struct {
	name string
	db   *sqlx.DB
	mc   *memcache.Client
}

// OpenPostgresCollection connects to the catalog database. The conninfo
// string is passed to lib/pq as is; mcURI is an optional host:port of a
// memcache server.
func OpenPostgresCollection(conninfo, name, mcURI string, poolSize int) (*PostgresCollection, error) {
	db, err := sqlx.Open("postgres", conninfo)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to catalog database: %v", err)
	}
	db.SetMaxIdleConns(poolSize)
	db.SetMaxOpenConns(poolSize * 8)

	var n int
	if err := db.Get(&n, "SELECT count(*) FROM bands WHERE collection = $1", name); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot read collection '%s': %v", name, err)
	}
	if n == 0 {
		db.Close()
		return nil, fmt.Errorf("collection '%s' has no bands", name)
	}

	c := &PostgresCollection{name: name, db: db}
	if mcURI != "" {
		// lazy connection; errors surface on Get and are ignored
		c.mc = memcache.New(mcURI)
	}
	return c, nil
}

func (c *PostgresCollection) Close() error {
	return c.db.Close()
}

func (c *PostgresCollection) Name() string {
	return c.name
}

func (c *PostgresCollection) Bands() (cube.BandCollection, error) {
	var rows []bandRow
	err := c.db.Select(&rows, `
		SELECT name, type, "offset", scale, unit, nodata, description
		FROM bands WHERE collection = $1 ORDER BY id`, c.name)
	if err != nil {
		return nil, fmt.Errorf("cannot read bands of '%s': %v", c.name, err)
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

func (c *PostgresCollection) FindRangeST(b cube.BoundsST, orderBy string) ([]cube.CatalogRow, error) {
	if orderBy == "" {
		orderBy = "gdalrefs.descriptor"
	}
	if !orderColumns[orderBy] {
		return nil, fmt.Errorf("cannot order catalog results by '%s'", orderBy)
	}

	var hash string
	if c.mc != nil {
		sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%s", c.name, b.String(), orderBy)))
		hash = hex.EncodeToString(sum[:])
		if cached, err := c.mc.Get(hash); err == nil {
			var rows []refRow
			if err := json.Unmarshal(cached.Value, &rows); err == nil {
				return convertRefRows(rows)
			}
		}
	}

	query := fmt.Sprintf(`
		SELECT gdalrefs.descriptor AS descriptor,
		       bands.name AS band_name,
		       gdalrefs.band_num AS band_num,
		       images.datetime AS datetime
		FROM images
		JOIN gdalrefs ON gdalrefs.image_id = images.id
		JOIN bands ON bands.id = gdalrefs.band_id
		WHERE images.collection = $1
		  AND images.datetime >= $2 AND images.datetime < $3
		  AND images.right >= $4 AND images.left <= $5
		  AND images.top >= $6 AND images.bottom <= $7
		ORDER BY %s`, orderBy)

	var rows []refRow
	err := c.db.Select(&rows, query, c.name,
		b.T0.Format(cube.ISOFormat), b.T1.Format(cube.ISOFormat),
		b.Left, b.Right, b.Bottom, b.Top)
	if err != nil {
		return nil, fmt.Errorf("catalog query on '%s' failed: %v", c.name, err)
	}

	if c.mc != nil {
		if payload, err := json.Marshal(rows); err == nil {
			// memcache may evict this at any time, errors don't matter
			if err := c.mc.Set(&memcache.Item{Key: hash, Value: payload}); err != nil {
				log.Printf("memcache set failed: %v", err)
			}
		}
	}
	return convertRefRows(rows)
}
