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

package noisemaputil

import (
	"fmt"

	"github.com/ctessum/geom/encoding/shp"
	"github.com/sirupsen/logrus"

	"github.com/acousticmodel/noisemap/store"
)

// Import loads a shapefile into a new spatial table named table in the
// database at dbPath. The table gets an integer primary key named "pk", the
// geometry and bounding box columns, and one REAL column per requested
// attribute field. Attribute values are copied as text; SQLite's numeric
// affinity converts the numeric ones.
func Import(dbPath, table, shapefile string, fields []string, logger *logrus.Logger) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	d, err := shp.NewDecoder(shapefile)
	if err != nil {
		return fmt.Errorf("noisemap: opening shapefile %s: %v", shapefile, err)
	}
	defer d.Close()

	cols := make([]store.ColumnDef, len(fields))
	for i, f := range fields {
		cols[i] = store.ColumnDef{Name: f, Type: "REAL"}
	}
	if err := st.CreateSpatialTable(table, "pk", "the_geom", "GEOMETRY", cols); err != nil {
		return err
	}

	n := 0
	err = st.ManualCommit(func() error {
		for {
			g, attrs, more := d.DecodeRowFields(fields...)
			if !more {
				break
			}
			row := make(map[string]interface{}, len(attrs))
			for k, v := range attrs {
				row[k] = v
			}
			if err := st.InsertGeometry(table, "the_geom", g, row); err != nil {
				return err
			}
			n++
		}
		return d.Error()
	})
	if err != nil {
		return fmt.Errorf("noisemap: importing %s into %s: %v", shapefile, table, err)
	}
	logger.WithFields(logrus.Fields{
		"table": table,
		"rows":  n,
	}).Info("shapefile imported")
	return nil
}
