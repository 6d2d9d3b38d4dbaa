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

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSchemaDiscovery(t *testing.T) {
	d := openTestDB(t)
	err := d.CreateSpatialTable("buildings", "pk", "the_geom", "POLYGON",
		[]ColumnDef{{Name: "height", Type: "REAL"}, {Name: "alpha", Type: "REAL"}})
	if err != nil {
		t.Fatal(err)
	}

	cols, err := d.GeometryColumns("buildings")
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 1 || cols[0] != "the_geom" {
		t.Errorf("geometry columns = %v, want [the_geom]", cols)
	}

	pk, err := d.IntegerPrimaryKey("buildings")
	if err != nil {
		t.Fatal(err)
	}
	if pk != "pk" {
		t.Errorf("integer primary key = %q, want pk", pk)
	}

	for _, test := range []struct {
		col  string
		want bool
	}{{"height", true}, {"HEIGHT", true}, {"nope", false}} {
		has, err := d.HasColumn("buildings", test.col)
		if err != nil {
			t.Fatal(err)
		}
		if has != test.want {
			t.Errorf("HasColumn(%q) = %v, want %v", test.col, has, test.want)
		}
	}

	if _, err := d.GeometryColumns("missing"); err == nil {
		t.Error("expected an error for a missing table")
	}
}

func TestIntegerPrimaryKeyAbsent(t *testing.T) {
	d := openTestDB(t)
	if err := d.Exec("CREATE TABLE plain (a REAL, b TEXT)"); err != nil {
		t.Fatal(err)
	}
	pk, err := d.IntegerPrimaryKey("plain")
	if err != nil {
		t.Fatal(err)
	}
	if pk != "" {
		t.Errorf("primary key of keyless table = %q, want empty", pk)
	}

	if err := d.Exec("CREATE TABLE named (name TEXT PRIMARY KEY, v REAL)"); err != nil {
		t.Fatal(err)
	}
	pk, err = d.IntegerPrimaryKey("named")
	if err != nil {
		t.Fatal(err)
	}
	if pk != "" {
		t.Errorf("primary key of text-keyed table = %q, want empty", pk)
	}
}

func TestEnvelopeAndIntersection(t *testing.T) {
	d := openTestDB(t)
	if err := d.CreateSpatialTable("pts", "pk", "the_geom", "POINT",
		[]ColumnDef{{Name: "v", Type: "REAL"}}); err != nil {
		t.Fatal(err)
	}
	for i, p := range []geom.Point{{X: 0, Y: 0}, {X: 10, Y: 10}, {X: 100, Y: 50}} {
		err := d.InsertGeometry("pts", "the_geom", p, map[string]interface{}{"v": float64(i)})
		if err != nil {
			t.Fatal(err)
		}
	}

	env, err := d.TableEnvelope("pts")
	if err != nil {
		t.Fatal(err)
	}
	want := geom.Bounds{Max: geom.Point{X: 100, Y: 50}}
	if *env != want {
		t.Errorf("envelope = %+v, want %+v", *env, want)
	}

	rows, err := d.QueryIntersecting("pts", nil,
		&geom.Bounds{Min: geom.Point{X: -1, Y: -1}, Max: geom.Point{X: 20, Y: 20}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var got []float64
	for rows.Next() {
		g, err := rows.Geometry("the_geom")
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := g.(geom.Point); !ok {
			t.Fatalf("decoded geometry is %T, want a point", g)
		}
		v, ok := rows.Float("v")
		if !ok {
			t.Fatal("missing v value")
		}
		got = append(got, v)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("intersecting rows = %v, want the two points inside the box", got)
	}
}

func TestTableEnvelopeEmpty(t *testing.T) {
	d := openTestDB(t)
	if err := d.CreateSpatialTable("empty", "pk", "the_geom", "POINT", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := d.TableEnvelope("empty"); err == nil {
		t.Error("expected an error for an empty table")
	}
}

func TestManualCommit(t *testing.T) {
	d := openTestDB(t)
	if err := d.Exec("CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatal(err)
	}

	// A failing body rolls its writes back.
	err := d.ManualCommit(func() error {
		if err := d.Exec("INSERT INTO t (v) VALUES (1)"); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("got %v, want the body error", err)
	}
	if n := countRows(t, d, "t"); n != 0 {
		t.Errorf("rows after rollback = %d, want 0", n)
	}

	// A successful body commits, and autocommit is restored so later
	// writes need no explicit transaction.
	err = d.ManualCommit(func() error {
		return d.Exec("INSERT INTO t (v) VALUES (2)")
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Exec("INSERT INTO t (v) VALUES (3)"); err != nil {
		t.Fatalf("autocommit not restored: %v", err)
	}
	if n := countRows(t, d, "t"); n != 2 {
		t.Errorf("rows after commit = %d, want 2", n)
	}

	// Nested scopes share the outer transaction.
	err = d.ManualCommit(func() error {
		return d.ManualCommit(func() error {
			return d.Exec("INSERT INTO t (v) VALUES (4)")
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, d, "t"); n != 3 {
		t.Errorf("rows after nested commit = %d, want 3", n)
	}
}

func TestOpenJournalMode(t *testing.T) {
	d := openTestDB(t)
	rows, err := d.conn.QueryContext(context.Background(), "PRAGMA journal_mode")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("no journal mode row")
	}
	var mode string
	if err := rows.Scan(&mode); err != nil {
		t.Fatal(err)
	}
	// Write-ahead logging keeps the output writes of a run from blocking
	// on the workers' streaming readers.
	if mode != "wal" {
		t.Errorf("journal mode = %q, want wal", mode)
	}
}

func TestManualCommitCommitFailure(t *testing.T) {
	d := openTestDB(t)
	// A violated deferred foreign key makes the COMMIT itself fail.
	if err := d.Exec("PRAGMA foreign_keys=ON"); err != nil {
		t.Fatal(err)
	}
	if err := d.Exec("CREATE TABLE parent (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatal(err)
	}
	err := d.Exec("CREATE TABLE child (id INTEGER PRIMARY KEY, " +
		"pid INTEGER REFERENCES parent(id) DEFERRABLE INITIALLY DEFERRED)")
	if err != nil {
		t.Fatal(err)
	}

	err = d.ManualCommit(func() error {
		return d.Exec("INSERT INTO child (id, pid) VALUES (1, 99)")
	})
	if err == nil {
		t.Fatal("commit with a violated deferred constraint should fail")
	}
	// The failed transaction must not linger on the connection; a new
	// scope has to be able to begin.
	err = d.ManualCommit(func() error {
		return d.Exec("INSERT INTO parent (id) VALUES (1)")
	})
	if err != nil {
		t.Errorf("transaction after a failed commit: %v", err)
	}
	if n := countRows(t, d, "parent"); n != 1 {
		t.Errorf("rows after recovery = %d, want 1", n)
	}
}

func countRows(t *testing.T, d *DB, table string) int {
	t.Helper()
	rows, err := d.conn.QueryContext(context.Background(), "SELECT count(*) FROM "+table)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("no count row")
	}
	var n int
	if err := rows.Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestNewConnection(t *testing.T) {
	d := openTestDB(t)
	if err := d.CreateSpatialTable("pts", "pk", "the_geom", "POINT", nil); err != nil {
		t.Fatal(err)
	}
	c, err := d.NewConnection()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	// The second connection sees the schema through the shared cache.
	cols, err := c.GeometryColumns("pts")
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 1 {
		t.Errorf("geometry columns via second connection = %v", cols)
	}
}
