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
	"os"

	"github.com/BurntSushi/toml"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"

	"github.com/acousticmodel/noisemap"
)

// ConfigData mirrors the run configuration in a TOML-friendly layout, for
// programs embedding the model without going through the command line.
type ConfigData struct {
	// Database is the path of the SQLite spatial database.
	Database string
	// OutputTable receives one row per evaluated receiver.
	OutputTable string

	BuildingsTable string
	SourcesTable   string
	ReceiversTable string
	DEMTable       string
	GroundTable    string

	HeightField     string
	AlphaField      string
	GroundGField    string
	SoundLevelField string

	MaxPropagationDistance       float64
	MaxReflectionDistance        float64
	ReflectionOrder              int
	ComputeHorizontalDiffraction bool
	ComputeVerticalDiffraction   bool
	AbsoluteZCoordinates         bool
	WallAbsorption               float64
	ParallelComputationCount     int
	FetchSize                    int
}

// LoadConfig reads a TOML configuration file, expanding environment
// variables in the table and field names.
func LoadConfig(path string) (*ConfigData, error) {
	c := &ConfigData{
		AlphaField:             "alpha",
		GroundGField:           "g",
		SoundLevelField:        "db_m",
		OutputTable:            "receiver_levels",
		MaxPropagationDistance: 750,
		MaxReflectionDistance:  100,
		ReflectionOrder:        2,
		WallAbsorption:         noisemap.DefaultWallAbsorption,
		FetchSize:              noisemap.DefaultFetchSize,
	}
	if _, err := toml.DecodeFile(os.ExpandEnv(path), c); err != nil {
		return nil, fmt.Errorf("noisemap: problem reading configuration file: %v", err)
	}
	c.Database = os.ExpandEnv(c.Database)
	return c, nil
}

// Config converts the loaded data to a model configuration.
func (c *ConfigData) Config() noisemap.Config {
	cfg := noisemap.DefaultConfig(c.BuildingsTable, c.SourcesTable, c.ReceiversTable)
	cfg.DEMTable = c.DEMTable
	cfg.GroundTable = c.GroundTable
	cfg.HeightField = c.HeightField
	cfg.AlphaField = c.AlphaField
	cfg.GroundGField = c.GroundGField
	cfg.SoundLevelField = c.SoundLevelField
	cfg.MaxPropagationDistance = c.MaxPropagationDistance
	cfg.MaxReflectionDistance = c.MaxReflectionDistance
	cfg.ReflectionOrder = c.ReflectionOrder
	cfg.ComputeHorizontalDiffraction = c.ComputeHorizontalDiffraction
	cfg.ComputeVerticalDiffraction = c.ComputeVerticalDiffraction
	cfg.AbsoluteZCoordinates = c.AbsoluteZCoordinates
	cfg.WallAbsorption = c.WallAbsorption
	cfg.ParallelComputationCount = c.ParallelComputationCount
	cfg.FetchSize = c.FetchSize
	return cfg
}

// NoiseMapConfig creates a model configuration from the command-line
// configuration, checking the values that the model cannot default.
func NoiseMapConfig(cfg *viper.Viper) (noisemap.Config, error) {
	for _, key := range []string{"BuildingsTable", "SourcesTable", "ReceiversTable"} {
		if cfg.GetString(key) == "" {
			return noisemap.Config{}, fmt.Errorf("noisemap: the configuration variable %s must be set", key)
		}
	}
	c := noisemap.DefaultConfig(
		os.ExpandEnv(cfg.GetString("BuildingsTable")),
		os.ExpandEnv(cfg.GetString("SourcesTable")),
		os.ExpandEnv(cfg.GetString("ReceiversTable")))
	c.DEMTable = os.ExpandEnv(cfg.GetString("DEMTable"))
	c.GroundTable = os.ExpandEnv(cfg.GetString("GroundTable"))
	c.HeightField = cfg.GetString("HeightField")
	c.AlphaField = cfg.GetString("AlphaField")
	c.GroundGField = cfg.GetString("GroundGField")
	c.SoundLevelField = cfg.GetString("SoundLevelField")

	maxProp, err := cast.ToFloat64E(cfg.Get("MaxPropagationDistance"))
	if err != nil {
		return c, fmt.Errorf("noisemap: reading MaxPropagationDistance: %v", err)
	}
	c.MaxPropagationDistance = maxProp
	maxRefl, err := cast.ToFloat64E(cfg.Get("MaxReflectionDistance"))
	if err != nil {
		return c, fmt.Errorf("noisemap: reading MaxReflectionDistance: %v", err)
	}
	c.MaxReflectionDistance = maxRefl
	c.ReflectionOrder = cfg.GetInt("ReflectionOrder")
	c.ComputeHorizontalDiffraction = cfg.GetBool("ComputeHorizontalDiffraction")
	c.ComputeVerticalDiffraction = cfg.GetBool("ComputeVerticalDiffraction")
	c.AbsoluteZCoordinates = cfg.GetBool("AbsoluteZCoordinates")
	c.WallAbsorption = cfg.GetFloat64("WallAbsorption")
	c.ParallelComputationCount = cfg.GetInt("ParallelComputationCount")
	c.FetchSize = cfg.GetInt("FetchSize")
	return c, nil
}
