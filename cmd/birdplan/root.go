// Copyright (C) 2024 The BirdPlan Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/birdplan/birdplan/internal/pkg/cache"
	"github.com/birdplan/birdplan/internal/pkg/version"
	"github.com/birdplan/birdplan/pkg/birdplan"
	"github.com/birdplan/birdplan/pkg/compiler"
	"github.com/birdplan/birdplan/pkg/irr"
	"github.com/birdplan/birdplan/pkg/log"
	"github.com/birdplan/birdplan/pkg/peeringdb"
)

const envPrefix = "BIRDPLAN"

// Setting keys, shared by flags, environment and the settings file.
const (
	keyConfigFile       = "config-file"
	keyStateFile        = "state-file"
	keyOutputFile       = "output-file"
	keyIRRServer        = "irr-server"
	keyIRRCommand       = "irr-command"
	keyIRRConcurrency   = "irr-concurrency"
	keyPeeringDBURL     = "peeringdb-url"
	keyPeeringDBTimeout = "peeringdb-timeout"
	keyCacheTTL         = "cache-ttl"
	keyLogLevel         = "log-level"
	keyLogJSON          = "log-json"
)

var globalOpts struct {
	Settings string
	Json     bool
}

type settings struct {
	ConfigFile       string
	StateFile        string
	OutputFile       string
	IRRServer        string
	IRRCommand       string
	IRRConcurrency   int
	PeeringDBURL     string
	PeeringDBTimeout time.Duration
	CacheTTL         time.Duration
	LogLevel         string
	LogJSON          bool
}

func addSettingFlags(fs *pflag.FlagSet) {
	fs.String(keyConfigFile, "/etc/birdplan/birdplan.yaml", "policy document to compile")
	fs.String(keyStateFile, "/var/lib/birdplan/birdplan.state", "state file holding overrides, empty to run stateless")
	fs.String(keyOutputFile, "/etc/bird/bird.conf", "BIRD configuration file to write")
	fs.String(keyIRRServer, irr.DefaultServer, "IRR server queried for as-sets")
	fs.String(keyIRRCommand, irr.DefaultCommand, "bgpq4 compatible command used for IRR queries")
	fs.Int(keyIRRConcurrency, 1, "number of peers resolved in parallel")
	fs.String(keyPeeringDBURL, peeringdb.DefaultURL, "PeeringDB API base URL")
	fs.Duration(keyPeeringDBTimeout, peeringdb.DefaultTimeout, "PeeringDB request timeout")
	fs.Duration(keyCacheTTL, cache.DefaultTTL, "lifetime of cached IRR and PeeringDB answers")
	fs.String(keyLogLevel, "info", "log level")
	fs.Bool(keyLogJSON, false, "log in json format")
}

// loadSettings layers the settings file, BIRDPLAN_ environment variables
// and flags, flags taking precedence.
func loadSettings(fs *pflag.FlagSet, file string) (*settings, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return &settings{
		ConfigFile:       v.GetString(keyConfigFile),
		StateFile:        v.GetString(keyStateFile),
		OutputFile:       v.GetString(keyOutputFile),
		IRRServer:        v.GetString(keyIRRServer),
		IRRCommand:       v.GetString(keyIRRCommand),
		IRRConcurrency:   v.GetInt(keyIRRConcurrency),
		PeeringDBURL:     v.GetString(keyPeeringDBURL),
		PeeringDBTimeout: v.GetDuration(keyPeeringDBTimeout),
		CacheTTL:         v.GetDuration(keyCacheTTL),
		LogLevel:         v.GetString(keyLogLevel),
		LogJSON:          v.GetBool(keyLogJSON),
	}, nil
}

func newLogger(s *settings, w io.Writer) (log.Logger, error) {
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(w)
	if s.LogJSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
		})
	}
	logger := log.NewLogrusLogger(l)
	logger.SetLevel(level)
	return logger, nil
}

// newBirdPlan builds the orchestrator from the settings. The IRR and
// PeeringDB resolvers share one cache for the lifetime of the process.
func newBirdPlan(s *settings, logger log.Logger) *birdplan.BirdPlan {
	c := cache.New(s.CacheTTL)
	return birdplan.New(
		birdplan.ConfigFile(s.ConfigFile),
		birdplan.StateFile(s.StateFile),
		birdplan.LoggerOption(logger),
		birdplan.CompilerOptions(
			compiler.WithIRRResolver(irr.NewResolver(
				irr.WithServer(s.IRRServer),
				irr.WithCommand(s.IRRCommand),
				irr.WithCache(c),
				irr.WithLogger(logger),
			)),
			compiler.WithPeeringDBResolver(peeringdb.NewResolver(
				peeringdb.WithURL(s.PeeringDBURL),
				peeringdb.WithTimeout(s.PeeringDBTimeout),
				peeringdb.WithCache(c),
				peeringdb.WithLogger(logger),
			)),
			compiler.WithConcurrency(s.IRRConcurrency),
		),
	)
}

// env is what every subcommand runs with, set up before it runs.
type env struct {
	settings *settings
	logger   log.Logger
	bp       *birdplan.BirdPlan
}

func newRootCmd() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "birdplan",
		Short:         "compile a network policy document into BIRD configuration",
		Version:       version.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd.Flags(), globalOpts.Settings)
			if err != nil {
				return err
			}
			logger, err := newLogger(s, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			e.settings, e.logger = s, logger
			e.bp = newBirdPlan(s, logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&globalOpts.Settings, "settings", "s", "", "settings file (toml, yaml or json)")
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.Json, "json", "j", false, "use json format to output format")
	addSettingFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newConfigureCmd(e),
		newBGPCmd(e),
		newOSPFCmd(e),
		newSettingsCmd(e),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitWithError(os.Stderr, err)
	}
}
