/*
Copyright © 2026 the NoiseMap authors.
This file is part of NoiseMap.

NoiseMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

NoiseMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with NoiseMap.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package store provides an SQLite-backed spatial store for noise map
// computations. Geometries are stored as GeoJSON text in columns whose
// declared SQL type names the geometry type, alongside minx, miny, maxx and
// maxy bounding box columns that serve the envelope intersection queries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	_ "modernc.org/sqlite"

	"github.com/acousticmodel/noisemap"
)

// geometryTypes are the declared SQL column types recognized as geometry
// columns.
var geometryTypes = map[string]struct{}{
	"GEOMETRY":           {},
	"POINT":              {},
	"MULTIPOINT":         {},
	"LINESTRING":         {},
	"MULTILINESTRING":    {},
	"POLYGON":            {},
	"MULTIPOLYGON":       {},
	"GEOMETRYCOLLECTION": {},
}

// bounding box columns maintained next to every geometry column.
const (
	colMinX = "minx"
	colMinY = "miny"
	colMaxX = "maxx"
	colMaxY = "maxy"
)

type column struct {
	name     string
	declType string
	pk       int // position in the primary key, 0 when not part of it
}

type tableMeta struct {
	columns []column
}

// metaCache caches per-table column metadata. It is shared between all
// connections of one database so the schema is discovered once.
type metaCache struct {
	mu     sync.Mutex
	tables map[string]*tableMeta
}

// DB is one connection to the spatial store. It implements
// noisemap.SpatialStore. A DB wraps a dedicated driver connection, so a
// single DB must not be used from multiple cell workers concurrently; use
// NewConnection to obtain one DB per worker.
type DB struct {
	pool *sql.DB
	conn *sql.Conn
	meta *metaCache
	root bool

	autoCommit bool
}

var _ noisemap.SpatialStore = (*DB)(nil)

// Open opens (creating if needed) the SQLite database at path and returns
// the root store connection.
func Open(path string) (*DB, error) {
	pool, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %v", path, err)
	}
	conn, err := pool.Conn(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: connecting to %s: %v", path, err)
	}
	if err := initConn(conn, true); err != nil {
		conn.Close()
		pool.Close()
		return nil, fmt.Errorf("store: configuring %s: %v", path, err)
	}
	return &DB{
		pool:       pool,
		conn:       conn,
		meta:       &metaCache{tables: make(map[string]*tableMeta)},
		root:       true,
		autoCommit: true,
	}, nil
}

// NewConnection returns an additional store connection sharing the
// database and metadata cache of d.
func (d *DB) NewConnection() (*DB, error) {
	conn, err := d.pool.Conn(context.Background())
	if err != nil {
		return nil, fmt.Errorf("store: opening connection: %v", err)
	}
	if err := initConn(conn, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: configuring connection: %v", err)
	}
	return &DB{pool: d.pool, conn: conn, meta: d.meta, autoCommit: true}, nil
}

// initConn applies the per-connection pragmas. Write-ahead logging lets the
// output writes of a run proceed while worker connections hold streaming
// readers; the busy timeout covers the remaining lock contention. The
// journal mode persists in the database file, so only the first connection
// sets it.
func initConn(conn *sql.Conn, wal bool) error {
	ctx := context.Background()
	if wal {
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return err
		}
	}
	_, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=10000")
	return err
}

// Close releases the connection. Closing the root connection also closes
// the underlying database.
func (d *DB) Close() error {
	err := d.conn.Close()
	if d.root {
		if perr := d.pool.Close(); err == nil {
			err = perr
		}
	}
	return err
}

func (d *DB) tableMeta(table string) (*tableMeta, error) {
	d.meta.mu.Lock()
	defer d.meta.mu.Unlock()
	if m, ok := d.meta.tables[table]; ok {
		return m, nil
	}
	rows, err := d.conn.QueryContext(context.Background(),
		fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := &tableMeta{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, declType   string
			dflt             interface{}
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		m.columns = append(m.columns, column{name: name, declType: strings.ToUpper(declType), pk: pk})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(m.columns) == 0 {
		return nil, fmt.Errorf("store: table %s does not exist", table)
	}
	d.meta.tables[table] = m
	return m, nil
}

func (d *DB) invalidate(table string) {
	d.meta.mu.Lock()
	delete(d.meta.tables, table)
	d.meta.mu.Unlock()
}

// GeometryColumns returns the geometry columns of table, in schema order.
func (d *DB) GeometryColumns(table string) ([]string, error) {
	m, err := d.tableMeta(table)
	if err != nil {
		return nil, err
	}
	var cols []string
	for _, c := range m.columns {
		if _, ok := geometryTypes[c.declType]; ok {
			cols = append(cols, c.name)
		}
	}
	return cols, nil
}

// IntegerPrimaryKey returns the name of the table's integer primary key
// column, or "" when the table has none (a missing, composite or
// non-integer key all count as none).
func (d *DB) IntegerPrimaryKey(table string) (string, error) {
	m, err := d.tableMeta(table)
	if err != nil {
		return "", err
	}
	name := ""
	nkeys := 0
	for _, c := range m.columns {
		if c.pk == 0 {
			continue
		}
		nkeys++
		if strings.Contains(c.declType, "INT") {
			name = c.name
		}
	}
	if nkeys != 1 {
		return "", nil
	}
	return name, nil
}

// HasColumn reports whether table has a column with the given name.
func (d *DB) HasColumn(table, name string) (bool, error) {
	m, err := d.tableMeta(table)
	if err != nil {
		return false, err
	}
	for _, c := range m.columns {
		if strings.EqualFold(c.name, name) {
			return true, nil
		}
	}
	return false, nil
}

// TableEnvelope returns the bounding box of all rows of table, from its
// bounding box columns. An empty table yields an error.
func (d *DB) TableEnvelope(table string) (*geom.Bounds, error) {
	if _, err := d.tableMeta(table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT min(%s), min(%s), max(%s), max(%s) FROM %s",
		colMinX, colMinY, colMaxX, colMaxY, quoteIdent(table))
	var minx, miny, maxx, maxy sql.NullFloat64
	err := d.conn.QueryRowContext(context.Background(), q).Scan(&minx, &miny, &maxx, &maxy)
	if err != nil {
		return nil, err
	}
	if !minx.Valid {
		return nil, fmt.Errorf("store: table %s is empty", table)
	}
	return &geom.Bounds{
		Min: geom.Point{X: minx.Float64, Y: miny.Float64},
		Max: geom.Point{X: maxx.Float64, Y: maxy.Float64},
	}, nil
}

// QueryIntersecting streams the rows of table whose bounding box intersects
// env. A nil columns selects every column. fetchSize is a streaming hint;
// rows are always delivered through a forward-only cursor.
func (d *DB) QueryIntersecting(table string, columns []string, env *geom.Bounds, fetchSize int) (noisemap.SpatialRows, error) {
	if _, err := d.tableMeta(table); err != nil {
		return nil, err
	}
	sel := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = quoteIdent(c)
		}
		sel = strings.Join(quoted, ", ")
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s >= ? AND %s <= ? AND %s >= ? AND %s <= ?",
		sel, quoteIdent(table), colMaxX, colMinX, colMaxY, colMinY)
	rows, err := d.conn.QueryContext(context.Background(), q,
		env.Min.X, env.Max.X, env.Min.Y, env.Max.Y)
	if err != nil {
		return nil, err
	}
	return newRows(rows)
}

// ManualCommit runs body inside a single transaction, suspending autocommit
// for its duration. The previous autocommit state is restored on every exit
// path, including errors. Nested calls run in the enclosing transaction.
func (d *DB) ManualCommit(body func() error) error {
	wasAuto := d.autoCommit
	if wasAuto {
		if _, err := d.conn.ExecContext(context.Background(), "BEGIN DEFERRED"); err != nil {
			return err
		}
		d.autoCommit = false
	}
	defer func() {
		d.autoCommit = wasAuto
	}()
	if err := body(); err != nil {
		if wasAuto {
			d.conn.ExecContext(context.Background(), "ROLLBACK")
		}
		return err
	}
	if wasAuto {
		if _, err := d.conn.ExecContext(context.Background(), "COMMIT"); err != nil {
			// Leave no transaction open on the connection.
			d.conn.ExecContext(context.Background(), "ROLLBACK")
			return err
		}
	}
	return nil
}

// Exec runs an arbitrary statement on the store connection.
func (d *DB) Exec(query string, args ...interface{}) error {
	_, err := d.conn.ExecContext(context.Background(), query, args...)
	return err
}

// ColumnDef declares one attribute column of a spatial table.
type ColumnDef struct {
	Name string
	// Type is the declared SQL type, e.g. "REAL" or "TEXT".
	Type string
}

// CreateSpatialTable creates table with an integer primary key named pk
// (omitted when pk is ""), a geometry column of the given declared geometry
// type, the four bounding box columns and the extra attribute columns.
func (d *DB) CreateSpatialTable(table, pk, geomColumn, geomType string, extra []ColumnDef) error {
	geomType = strings.ToUpper(geomType)
	if _, ok := geometryTypes[geomType]; !ok {
		return fmt.Errorf("store: %s is not a geometry type", geomType)
	}
	var defs []string
	if pk != "" {
		defs = append(defs, quoteIdent(pk)+" INTEGER PRIMARY KEY")
	}
	defs = append(defs,
		quoteIdent(geomColumn)+" "+geomType,
		colMinX+" REAL", colMinY+" REAL", colMaxX+" REAL", colMaxY+" REAL")
	for _, c := range extra {
		defs = append(defs, quoteIdent(c.Name)+" "+c.Type)
	}
	q := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
	if err := d.Exec(q); err != nil {
		return err
	}
	d.invalidate(table)
	return nil
}

// InsertGeometry inserts one row into table: the geometry is encoded as
// GeoJSON into geomColumn, its bounding box columns are filled in, and the
// remaining fields are stored as given.
func (d *DB) InsertGeometry(table, geomColumn string, g geom.Geom, fields map[string]interface{}) error {
	data, err := geojson.Encode(g)
	if err != nil {
		return fmt.Errorf("store: encoding geometry for %s: %v", table, err)
	}
	b := g.Bounds()
	cols := []string{quoteIdent(geomColumn), colMinX, colMinY, colMaxX, colMaxY}
	args := []interface{}{string(data), b.Min.X, b.Min.Y, b.Max.X, b.Max.Y}
	for name, v := range fields {
		cols = append(cols, quoteIdent(name))
		args = append(args, v)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", "))
	return d.Exec(q, args...)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Rows adapts a result set to noisemap.SpatialRows, decoding geometry
// columns from GeoJSON on demand.
type Rows struct {
	rows  *sql.Rows
	cols  []string
	index map[string]int
	vals  []interface{}
	err   error
}

var _ noisemap.SpatialRows = (*Rows)(nil)

func newRows(rows *sql.Rows) (*Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[strings.ToLower(c)] = i
	}
	vals := make([]interface{}, len(cols))
	for i := range vals {
		vals[i] = new(interface{})
	}
	return &Rows{rows: rows, cols: cols, index: index, vals: vals}, nil
}

// Next advances to the next row, reporting false at the end of the set or
// on error.
func (r *Rows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	if err := r.rows.Scan(r.vals...); err != nil {
		r.err = err
		return false
	}
	return true
}

// Columns returns the column names of the result set.
func (r *Rows) Columns() []string { return r.cols }

func (r *Rows) value(column string) (interface{}, bool) {
	i, ok := r.index[strings.ToLower(column)]
	if !ok {
		return nil, false
	}
	return *(r.vals[i].(*interface{})), true
}

// Geometry decodes the GeoJSON geometry in column for the current row. A
// NULL or empty value yields (nil, nil).
func (r *Rows) Geometry(column string) (geom.Geom, error) {
	v, ok := r.value(column)
	if !ok {
		return nil, fmt.Errorf("store: no column %s in result set", column)
	}
	var data []byte
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		data = t
	case string:
		data = []byte(t)
	default:
		return nil, fmt.Errorf("store: column %s holds %T, not a geometry", column, v)
	}
	if len(data) == 0 {
		return nil, nil
	}
	g, err := geojson.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("store: decoding geometry in column %s: %v", column, err)
	}
	return g, nil
}

// Float returns the value of column for the current row coerced to float64.
// The second result is false for NULL values, missing columns and
// non-numeric text.
func (r *Rows) Float(column string) (float64, bool) {
	v, ok := r.value(column)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int64 returns the value of column for the current row coerced to int64.
func (r *Rows) Int64(column string) (int64, bool) {
	v, ok := r.value(column)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case []byte:
		i, err := strconv.ParseInt(string(t), 10, 64)
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Err returns the first error encountered while iterating.
func (r *Rows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

// Close releases the result set.
func (r *Rows) Close() error { return r.rows.Close() }
