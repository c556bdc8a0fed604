// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/daviszhen/rowdedup/pkg/util"
)

func init() {
	cobra.OnInitialize(loadConfig)
	initRootCmd()
	initFilterCmd()
	initDescribeCmd()
}

var runCfg = util.DefaultConfig()
var cfgFile string

///root cmd

var info = "rowdedup"
var RootCmd = &cobra.Command{
	Use:          "rowdedup",
	Short:        "deduplicate tab separated query results",
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use rowdedup --help or -h")
	},
}

func initRootCmd() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: rowdedup.toml in . or etc/rowdedup)")
	flags.String("log_level", "", "log level: debug, info, warn, error")
	flags.Bool("debug_checks", false, "enable programmer error assertions")
	flags.Int("logical_cpus", 0, "logical cpu count used to size the dedup pools")

	viper.BindPFlag("debug.logLevel", flags.Lookup("log_level"))
	viper.BindPFlag("debug.checks", flags.Lookup("debug_checks"))
	viper.BindPFlag("dedup.logicalCpus", flags.Lookup("logical_cpus"))
}

var defCfgFilePaths = []string{".", "etc/rowdedup"}
var cfgFileName = "rowdedup.toml"

func loadConfig() {
	viper.SetEnvPrefix("ROWDEDUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	paths := defCfgFilePaths
	if cfgFile != "" {
		paths = []string{filepath.Dir(cfgFile)}
		cfgFileName = filepath.Base(cfgFile)
	}
	for _, dirPath := range paths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if !util.FileIsValid(fpath) {
			continue
		}
		cfg, err := util.LoadConfig(fpath)
		if err != nil {
			util.Error("load config file failed",
				zap.String("fpath", fpath),
				zap.Error(err))
			continue
		}
		runCfg = cfg
		break
	}
	if cfgFile != "" && !util.FileIsValid(cfgFile) {
		util.Error("config file does not exist", zap.String("fpath", cfgFile))
		os.Exit(1)
	}
}

// applyOverrides copies flags and environment values that were explicitly
// set on top of the file configuration.
func applyOverrides(cfg *util.Config) error {
	ints := map[string]*int{
		"dedup.distinctCapacity":    &cfg.Dedup.DistinctCapacity,
		"dedup.reducedCapacity":     &cfg.Dedup.ReducedCapacity,
		"dedup.windowCapacity":      &cfg.Dedup.WindowCapacity,
		"dedup.crossSourceCapacity": &cfg.Dedup.CrossSourceCapacity,
		"dedup.logicalCpus":         &cfg.Dedup.LogicalCpus,
		"dedup.poolPerCpu":          &cfg.Dedup.PoolPerCpu,
	}
	for key, dst := range ints {
		if viper.IsSet(key) {
			*dst = viper.GetInt(key)
		}
	}
	if viper.IsSet("debug.checks") {
		cfg.Debug.Checks = viper.GetBool("debug.checks")
	}
	if viper.IsSet("debug.logLevel") {
		cfg.Debug.LogLevel = viper.GetString("debug.logLevel")
	}
	cfg.Dedup.Normalize()

	util.EnableDebugChecks(cfg.Debug.Checks)
	if cfg.Debug.LogLevel != "" {
		logger, err := util.NewLogger(cfg.Debug.LogLevel)
		if err != nil {
			return fmt.Errorf("log level %q: %w", cfg.Debug.LogLevel, err)
		}
		util.SetLogger(logger)
	}
	return nil
}

func main() {
	defer util.Sync()
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
