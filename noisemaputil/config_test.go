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
	"os"
	"path/filepath"
	"testing"

	"github.com/lnashier/viper"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	data := `
Database = "city.db"
BuildingsTable = "buildings"
SourcesTable = "roads_src"
ReceiversTable = "receivers"
DEMTable = "dem"
MaxPropagationDistance = 500.0
ReflectionOrder = 1
ComputeVerticalDiffraction = true
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Database != "city.db" || c.DEMTable != "dem" {
		t.Errorf("tables = %q / %q, want city.db / dem", c.Database, c.DEMTable)
	}
	if c.MaxPropagationDistance != 500 || c.ReflectionOrder != 1 {
		t.Errorf("propagation settings = (%g, %d), want (500, 1)",
			c.MaxPropagationDistance, c.ReflectionOrder)
	}
	// Unset keys keep their defaults.
	if c.SoundLevelField != "db_m" || c.FetchSize != 300 {
		t.Errorf("defaults = (%q, %d), want (db_m, 300)", c.SoundLevelField, c.FetchSize)
	}

	cfg := c.Config()
	if cfg.SourcesTable != "roads_src" || cfg.MaxPropagationDistance != 500 {
		t.Errorf("converted config = %+v", cfg)
	}
	if !cfg.ComputeVerticalDiffraction {
		t.Error("vertical diffraction flag lost in conversion")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected an error for a missing configuration file")
	}
}

func TestNoiseMapConfig(t *testing.T) {
	v := viper.New()
	v.Set("BuildingsTable", "b")
	v.Set("SourcesTable", "s")
	v.Set("ReceiversTable", "r")
	v.Set("MaxPropagationDistance", 600)
	v.Set("MaxReflectionDistance", 50.0)
	v.Set("ReflectionOrder", 1)
	v.Set("WallAbsorption", 1175.0)
	v.Set("FetchSize", 300)
	c, err := NoiseMapConfig(v)
	if err != nil {
		t.Fatal(err)
	}
	if c.BuildingsTable != "b" || c.MaxPropagationDistance != 600 || c.MaxReflectionDistance != 50 {
		t.Errorf("config = %+v", c)
	}

	v = viper.New()
	v.Set("BuildingsTable", "b")
	if _, err := NoiseMapConfig(v); err == nil {
		t.Error("expected an error when mandatory tables are unset")
	}
}
