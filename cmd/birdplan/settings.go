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

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

func newSettingsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalOpts.Json {
				return printJSON(cmd.OutOrStdout(), settingsMap(e.settings))
			}
			return writeSettings(cmd.OutOrStdout(), e.settings)
		},
	}
}

func settingsMap(s *settings) map[string]interface{} {
	return map[string]interface{}{
		keyConfigFile:       s.ConfigFile,
		keyStateFile:        s.StateFile,
		keyOutputFile:       s.OutputFile,
		keyIRRServer:        s.IRRServer,
		keyIRRCommand:       s.IRRCommand,
		keyIRRConcurrency:   s.IRRConcurrency,
		keyPeeringDBURL:     s.PeeringDBURL,
		keyPeeringDBTimeout: s.PeeringDBTimeout.String(),
		keyCacheTTL:         s.CacheTTL.String(),
		keyLogLevel:         s.LogLevel,
		keyLogJSON:          s.LogJSON,
	}
}

// writeSettings renders s in the format read back through --settings.
func writeSettings(w io.Writer, s *settings) error {
	return toml.NewEncoder(w).Encode(settingsMap(s))
}
