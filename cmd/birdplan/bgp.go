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
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/birdplan/birdplan/pkg/birdplan"
	"github.com/birdplan/birdplan/pkg/state"
	"github.com/birdplan/birdplan/pkg/utils"
)

func newBGPCmd(e *env) *cobra.Command {
	bgpCmd := &cobra.Command{
		Use:   "bgp",
		Short: "BGP peer operations",
	}
	peerCmd := &cobra.Command{
		Use:   "peer",
		Short: "BGP peer overrides and status",
	}
	for _, ns := range state.Namespaces {
		peerCmd.AddCommand(newPeerOverrideCmd(e, ns))
	}
	peerCmd.AddCommand(&cobra.Command{
		Use:   "show [<peer>]",
		Short: "show the peers of the last applied configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			peers, err := e.bp.Peers(name)
			if err != nil {
				return err
			}
			if globalOpts.Json {
				return printJSON(cmd.OutOrStdout(), peers)
			}
			showPeers(cmd.OutOrStdout(), peers)
			return nil
		},
	})
	bgpCmd.AddCommand(peerCmd)
	return bgpCmd
}

func newPeerOverrideCmd(e *env, ns state.Namespace) *cobra.Command {
	name := strings.ReplaceAll(string(ns), "_", "-")
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("manage %s overrides", strings.ReplaceAll(string(ns), "_", " ")),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <peer pattern> <true|false>",
			Short: "override the configured value for peers matching the pattern",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := parseBool(args[1])
				if err != nil {
					return err
				}
				return e.bp.SetPeerOverride(ns, args[0], v)
			},
		},
		&cobra.Command{
			Use:   "remove <peer pattern>",
			Short: "remove an override",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.bp.RemovePeerOverride(ns, args[0])
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "show overrides, applied and pending values",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := e.bp.PeerOverrideStatus(ns)
				if err != nil {
					return err
				}
				if globalOpts.Json {
					return printJSON(cmd.OutOrStdout(), st)
				}
				showPeerStatus(cmd.OutOrStdout(), st)
				return nil
			},
		},
	)
	return cmd
}

func showPeerStatus(w io.Writer, st *state.BGPStatus) {
	if len(st.Overrides) > 0 {
		rows := [][]string{}
		for _, pattern := range utils.SortedKeys(st.Overrides) {
			rows = append(rows, []string{pattern, formatBool(st.Overrides[pattern], true)})
		}
		renderTable(w, []string{"PATTERN", "OVERRIDE"}, rows)
		fmt.Fprintln(w)
	}

	peers := map[string]bool{}
	for p := range st.Current {
		peers[p] = true
	}
	for p := range st.Pending {
		peers[p] = true
	}
	rows := [][]string{}
	for _, p := range utils.SortedKeys(peers) {
		current, ok := st.Current[p]
		pending, pok := st.Pending[p]
		rows = append(rows, []string{p, formatBool(current, ok), formatBool(pending, pok)})
	}
	renderTable(w, []string{"PEER", "CURRENT", "PENDING"}, rows)
}

func showPeers(w io.Writer, peers []*birdplan.PeerSummary) {
	rows := [][]string{}
	for _, p := range peers {
		protocols := []string{}
		for _, f := range utils.SortedKeys(p.Protocols) {
			protocols = append(protocols, p.Protocols[f])
		}
		rows = append(rows, []string{
			p.Name,
			fmt.Sprintf("AS%d", p.ASN),
			p.Type,
			strings.Join(protocols, ","),
			formatBool(p.GracefulShutdown, true),
			formatBool(p.Quarantine, true),
			p.Description,
		})
	}
	renderTable(w, []string{"PEER", "ASN", "TYPE", "PROTOCOLS", "GRACEFUL SHUTDOWN", "QUARANTINE", "DESCRIPTION"}, rows)
}
