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
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/acousticmodel/noisemap"
	"github.com/acousticmodel/noisemap/store"
)

// Run computes the noise map for configuration c over the database at
// dbPath and writes one row per evaluated receiver to outputTable,
// replacing it if it exists. Each output row carries the receiver primary
// key, the per-band levels and the broadband level in dB.
func Run(dbPath, outputTable string, c noisemap.Config, logger *logrus.Logger) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	nm := noisemap.New(c)
	if err := nm.Initialize(st, nil); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"gridDim": nm.GridDim(),
		"cells":   nm.GridDim() * nm.GridDim(),
	}).Info("computation grid ready")

	if err := createOutputTable(st, outputTable, c.SoundLevelField); err != nil {
		return err
	}
	insert := insertStatement(outputTable, c.SoundLevelField)

	prog := noisemap.NewProgress(nm.GridDim() * nm.GridDim())
	stopLog := make(chan struct{})
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				logger.Infof("%.0f%% done", prog.Fraction()*100)
			case <-stopLog:
				return
			}
		}
	}()
	defer close(stopLog)

	start := time.Now()
	connect := func() (noisemap.SpatialStore, error) { return st.NewConnection() }
	// The root connection is reserved for output writes; handle runs
	// serialized, so it needs no locking of its own.
	err = nm.Run(connect, prog, func(r *noisemap.CellResult) error {
		acc, ok := r.Out.(*noisemap.LevelAccumulator)
		if !ok {
			return fmt.Errorf("noisemap: cell %d produced a %T, expected a LevelAccumulator", r.CellID, r.Out)
		}
		levels := acc.ReceiverLevels()
		err := st.ManualCommit(func() error {
			for _, rec := range r.Receivers {
				args := outputRow(rec.ID, levels[rec.ID])
				if err := st.Exec(insert, args...); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"cell":      r.CellID,
			"receivers": len(r.Receivers),
		}).Debug("cell done")
		return nil
	})
	if err != nil {
		return err
	}
	logger.WithField("elapsed", time.Since(start)).Info("noise map complete")
	return nil
}

// Grid computes the study area envelope and the computation grid for c and
// reports them without evaluating any cell.
func Grid(dbPath string, c noisemap.Config, logger *logrus.Logger) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	nm := noisemap.New(c)
	if err := nm.Initialize(st, nil); err != nil {
		return err
	}
	env := nm.MainEnvelope()
	logger.WithFields(logrus.Fields{
		"minX":       env.Min.X,
		"minY":       env.Min.Y,
		"maxX":       env.Max.X,
		"maxY":       env.Max.Y,
		"level":      nm.SubdivisionLevel(),
		"gridDim":    nm.GridDim(),
		"cellWidth":  nm.CellWidth(),
		"cellHeight": nm.CellHeight(),
	}).Info("computation grid")
	return nil
}

func bandColumn(prefix string, freq float64) string {
	return prefix + strconv.Itoa(int(freq))
}

func createOutputTable(st *store.DB, table, prefix string) error {
	if err := st.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", table)); err != nil {
		return err
	}
	defs := []string{"id INTEGER PRIMARY KEY", "laeq REAL"}
	for _, f := range noisemap.OctaveBands {
		defs = append(defs, fmt.Sprintf("%q REAL", bandColumn(prefix, f)))
	}
	return st.Exec(fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(defs, ", ")))
}

func insertStatement(table, prefix string) string {
	cols := []string{"id", "laeq"}
	for _, f := range noisemap.OctaveBands {
		cols = append(cols, fmt.Sprintf("%q", bandColumn(prefix, f)))
	}
	return fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", table,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
}

// outputRow builds the insert arguments for one receiver. Bands without a
// finite level, and receivers that no source could reach, are stored as
// NULL.
func outputRow(id int64, bands []float64) []interface{} {
	args := []interface{}{id}
	if bands == nil {
		args = append(args, nil)
		for range noisemap.OctaveBands {
			args = append(args, nil)
		}
		return args
	}
	wSum := 0.
	for _, db := range bands {
		wSum += noisemap.DbaToW(db)
	}
	args = append(args, finiteOrNil(noisemap.WToDba(wSum)))
	for _, db := range bands {
		args = append(args, finiteOrNil(db))
	}
	return args
}

func finiteOrNil(v float64) interface{} {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return v
}
