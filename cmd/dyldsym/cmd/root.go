// This file is part of dyldsym.
//
// Copyright (C) 2024 dyldsym Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
	"github.com/goretk/dyldsym"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dyldsym",
	Short: "List the images loaded in a process and the symbols they define",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = !viper.GetBool("color")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihandler.Default)
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/dyldsym/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().Bool("color", false, "colorize output")
	rootCmd.PersistentFlags().Bool("strict", false, "validate headers and table bounds")
	rootCmd.PersistentFlags().StringSlice("map", nil, "map a Mach-O file instead of reading this process (path[@slide])")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
	viper.BindPFlag("strict", rootCmd.PersistentFlags().Lookup("strict"))
	viper.BindPFlag("map", rootCmd.PersistentFlags().Lookup("map"))
	viper.BindEnv("color", "CLICOLOR")

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(filepath.Join(home, ".config", "dyldsym"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("dyldsym")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

// openCatalog returns a catalog over the mapped files given with --map, or over this
// process when there are none. The returned func releases the mapped files.
func openCatalog(filter dyldsym.SymbolFilter) (*dyldsym.Catalog, func() error, error) {
	cfg := &dyldsym.Config{
		Filter: filter,
		Strict: viper.GetBool("strict"),
		Logger: log.Log,
	}

	maps := viper.GetStringSlice("map")
	if len(maps) == 0 {
		c, err := dyldsym.Open(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open host process (use --map on non-darwin hosts): %w", err)
		}
		return c, func() error { return nil }, nil
	}

	p := dyldsym.NewMappedProcess()
	for _, m := range maps {
		path, slide, err := parseMapping(m)
		if err != nil {
			p.Close()
			return nil, nil, err
		}
		if err = p.MapFile(path, slide); err != nil {
			p.Close()
			return nil, nil, fmt.Errorf("failed to map %s: %w", path, err)
		}
		log.WithFields(log.Fields{"path": path, "slide": fmt.Sprintf("%#x", slide)}).Debug("mapped image")
	}
	return dyldsym.NewProcessCatalog(p, cfg), p.Close, nil
}

// parseMapping splits "path@slide" at the last '@'; the slide accepts any strconv
// base prefix. An '@' followed by a path separator is part of the path.
func parseMapping(s string) (string, int64, error) {
	i := strings.LastIndexByte(s, '@')
	if i < 0 || strings.ContainsRune(s[i+1:], '/') {
		return s, 0, nil
	}
	path := s[:i]
	slide, err := strconv.ParseInt(s[i+1:], 0, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid slide in %q: %w", s, err)
	}
	return path, slide, nil
}
