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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birdplan/birdplan/pkg/birdplan"
)

var configureOpts struct {
	Diff                   bool
	Stdout                 bool
	IgnoreIRRChanges       bool
	IgnorePeeringDBChanges bool
	UseCached              bool
}

func newConfigureCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "compile the policy document and write the BIRD configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := birdplan.ConfigureRequest{
				Diff: configureOpts.Diff,
			}
			req.IgnoreIRRChanges = configureOpts.IgnoreIRRChanges
			req.IgnorePeeringDBChanges = configureOpts.IgnorePeeringDBChanges
			req.UseCached = configureOpts.UseCached
			if !configureOpts.Stdout {
				req.OutputFile = e.settings.OutputFile
			}
			res, err := e.bp.Configure(cmd.Context(), req)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if globalOpts.Json {
				return printJSON(w, struct {
					Fingerprint string `json:"fingerprint"`
					Changed     bool   `json:"changed"`
					Output      string `json:"output,omitempty"`
					Diff        string `json:"diff,omitempty"`
				}{res.Fingerprint, res.Changed, req.OutputFile, res.Diff})
			}
			if configureOpts.Stdout {
				_, err := w.Write(res.Config)
				return err
			}
			if res.Diff != "" {
				fmt.Fprint(w, res.Diff)
			}
			if res.Changed {
				fmt.Fprintf(w, "Configuration %s written to %s\n", res.Fingerprint, req.OutputFile)
			} else {
				fmt.Fprintf(w, "Configuration %s unchanged\n", res.Fingerprint)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&configureOpts.Diff, "diff", false, "show the changes to the existing configuration")
	cmd.Flags().BoolVar(&configureOpts.Stdout, "stdout", false, "print the configuration instead of writing the output file")
	cmd.Flags().BoolVar(&configureOpts.IgnoreIRRChanges, "ignore-irr-changes", false, "accept IRR data differing from the last run")
	cmd.Flags().BoolVar(&configureOpts.IgnorePeeringDBChanges, "ignore-peeringdb-changes", false, "accept PeeringDB prefix limits differing from the last run")
	cmd.Flags().BoolVar(&configureOpts.UseCached, "use-cached", false, "reuse IRR and PeeringDB data recorded on the last run")
	return cmd
}
