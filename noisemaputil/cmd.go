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

// Package noisemaputil translates command-line and configuration file input
// into noise map computations.
package noisemaputil

import (
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/acousticmodel/noisemap"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to NoiseMap.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Database",
			usage: `
              Database is the path of the SQLite spatial database holding the
              input tables and receiving the output table.`,
			shorthand:  "d",
			defaultVal: "noisemap.db",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "BuildingsTable",
			usage: `
              BuildingsTable is the name of the table containing building
              footprint polygons.`,
			defaultVal: "buildings",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags()},
		},
		{
			name: "SourcesTable",
			usage: `
              SourcesTable is the name of the table containing sound sources
              with their emission spectra.`,
			defaultVal: "roads_src",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags()},
		},
		{
			name: "ReceiversTable",
			usage: `
              ReceiversTable is the name of the table containing the points at
              which sound levels are evaluated. The table must have an
              integer primary key.`,
			defaultVal: "receivers",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags()},
		},
		{
			name: "DEMTable",
			usage: `
              DEMTable is the name of the table containing digital elevation
              model points. Leave empty to compute over flat terrain.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "GroundTable",
			usage: `
              GroundTable is the name of the table containing ground
              absorption polygons. Optional.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "HeightField",
			usage: `
              HeightField is the buildings-table column holding building
              height above the ground. Leave empty to treat buildings as
              obstacles of unbounded height.`,
			defaultVal: "height",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "AlphaField",
			usage: `
              AlphaField is the buildings-table column holding the wall
              absorption coefficient.`,
			defaultVal: "alpha",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "GroundGField",
			usage: `
              GroundGField is the ground-table column holding the ground
              absorption coefficient G.`,
			defaultVal: "g",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "SoundLevelField",
			usage: `
              SoundLevelField is the prefix of the per-octave-band emission
              columns in the sources table, e.g. "db_m" for columns db_m63
              through db_m8000.`,
			defaultVal: "db_m",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "OutputTable",
			usage: `
              OutputTable is the name of the table receiving one row per
              evaluated receiver. It is replaced if it already exists.`,
			defaultVal: "receiver_levels",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "MaxPropagationDistance",
			usage: `
              MaxPropagationDistance is the distance [m] beyond which sound
              propagation is not evaluated. Computation cell size is
              proportional to this value.`,
			defaultVal: 750.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags()},
		},
		{
			name: "MaxReflectionDistance",
			usage: `
              MaxReflectionDistance is the distance [m] within which walls are
              searched for reflected paths. It cannot exceed
              MaxPropagationDistance.`,
			defaultVal: 100.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "ReflectionOrder",
			usage: `
              ReflectionOrder is the maximum number of wall collisions along a
              reflected sound path. 0 disables reflections.`,
			defaultVal: 2,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "ComputeHorizontalDiffraction",
			usage: `
              ComputeHorizontalDiffraction enables diffraction around vertical
              building edges.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "ComputeVerticalDiffraction",
			usage: `
              ComputeVerticalDiffraction enables diffraction over horizontal
              building edges. Building heights must be provided.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "AbsoluteZCoordinates",
			usage: `
              AbsoluteZCoordinates specifies that source and receiver Z values
              are relative to sea level rather than to the ground.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "WallAbsorption",
			usage: `
              WallAbsorption is the wall impedance used for buildings without
              a per-row absorption value.`,
			defaultVal: float64(noisemap.DefaultWallAbsorption),
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "ParallelComputationCount",
			usage: `
              ParallelComputationCount is the number of computation cells
              evaluated concurrently. 0 uses all available execution units;
              1 runs serially.`,
			shorthand:  "j",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "FetchSize",
			usage: `
              FetchSize is the forward-only cursor hint used when streaming
              sound sources.`,
			defaultVal: noisemap.DefaultFetchSize,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "table",
			usage: `
              table is the name of the spatial table created by the import.`,
			shorthand:  "t",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{importCmd.Flags()},
		},
		{
			name: "fields",
			usage: `
              fields lists the shapefile attribute columns copied into the
              imported table.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{importCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("NOISEMAP")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(gridCmd)
	Root.AddCommand(importCmd)
}

// Log is the logger commands report through.
var Log = logrus.StandardLogger()

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("noisemap: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "noisemap",
	Short: "An environmental noise mapping model.",
	Long: `NoiseMap computes sound levels at receiver points from geographic sound
sources, accounting for buildings, terrain and ground absorption. The study
area is split into a grid of computation cells evaluated independently.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'NOISEMAP_var' where 'var'
is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of NoiseMap.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("NoiseMap v%s\n", noisemap.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute the noise map.",
	Long: `run evaluates the sound level at every receiver of the receiver table and
writes the per-band and broadband results to the output table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := NoiseMapConfig(Cfg)
		if err != nil {
			return err
		}
		return Run(os.ExpandEnv(Cfg.GetString("Database")),
			os.ExpandEnv(Cfg.GetString("OutputTable")), c, Log)
	},
	DisableAutoGenTag: true,
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Report the computation grid",
	Long: `grid computes the study area envelope and the computation cell grid for
the given configuration and reports them without evaluating any cell.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := NoiseMapConfig(Cfg)
		if err != nil {
			return err
		}
		return Grid(os.ExpandEnv(Cfg.GetString("Database")), c, Log)
	},
	DisableAutoGenTag: true,
}

var importCmd = &cobra.Command{
	Use:   "import [shapefile]",
	Short: "Import a shapefile into the spatial database",
	Long: `import loads the geometries and selected attribute columns of a shapefile
into a new spatial table with an integer primary key, ready to serve as a
buildings, sources, receivers, elevation or ground table.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table := Cfg.GetString("table")
		if table == "" {
			return fmt.Errorf("noisemap: the import table name must be set with --table")
		}
		return Import(os.ExpandEnv(Cfg.GetString("Database")), table,
			os.ExpandEnv(args[0]), Cfg.GetStringSlice("fields"), Log)
	},
	DisableAutoGenTag: true,
}
