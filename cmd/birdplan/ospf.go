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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/birdplan/birdplan/pkg/errdefs"
	"github.com/birdplan/birdplan/pkg/state"
	"github.com/birdplan/birdplan/pkg/utils"
)

func newOSPFCmd(e *env) *cobra.Command {
	ospfCmd := &cobra.Command{
		Use:   "ospf",
		Short: "OSPF operations",
	}
	ifaceCmd := &cobra.Command{
		Use:   "interface",
		Short: "OSPF interface overrides and status",
	}
	for _, attr := range []state.InterfaceAttribute{state.Cost, state.ECMPWeight} {
		ifaceCmd.AddCommand(newInterfaceOverrideCmd(e, attr))
	}
	ospfCmd.AddCommand(ifaceCmd)
	return ospfCmd
}

func newInterfaceOverrideCmd(e *env, attr state.InterfaceAttribute) *cobra.Command {
	cmd := &cobra.Command{
		Use:   strings.ReplaceAll(string(attr), "_", "-"),
		Short: fmt.Sprintf("manage OSPF interface %s overrides", strings.ReplaceAll(string(attr), "_", " ")),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <area> <interface> <value>",
			Short: "override the configured value of an interface",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[2])
				if err != nil {
					return errdefs.NewUsageError("invalid %s '%s'", attr, args[2])
				}
				return e.bp.SetInterfaceOverride(args[0], args[1], attr, v)
			},
		},
		&cobra.Command{
			Use:   "remove <area> <interface>",
			Short: "remove an override",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.bp.RemoveInterfaceOverride(args[0], args[1], attr)
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "show overrides, applied and pending values",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := e.bp.InterfaceStatus()
				if err != nil {
					return err
				}
				if globalOpts.Json {
					return printJSON(cmd.OutOrStdout(), st)
				}
				showInterfaceStatus(cmd.OutOrStdout(), st, attr)
				return nil
			},
		},
	)
	return cmd
}

type areaValues map[string]map[string]*state.InterfaceValues

func (a areaValues) get(area, iface string, attr state.InterfaceAttribute) *int {
	return a[area][iface].Get(attr)
}

func showInterfaceStatus(w io.Writer, st *state.InterfaceStatus, attr state.InterfaceAttribute) {
	keys := map[[2]string]bool{}
	for _, m := range []areaValues{st.Overrides, st.Current, st.Pending} {
		for area, ifaces := range m {
			for iface := range ifaces {
				keys[[2]string{area, iface}] = true
			}
		}
	}
	names := map[string][2]string{}
	for k := range keys {
		names[k[0]+"\x00"+k[1]] = k
	}
	rows := [][]string{}
	for _, n := range utils.SortedKeys(names) {
		k := names[n]
		rows = append(rows, []string{
			k[0],
			k[1],
			formatInt(areaValues(st.Overrides).get(k[0], k[1], attr)),
			formatInt(areaValues(st.Current).get(k[0], k[1], attr)),
			formatInt(areaValues(st.Pending).get(k[0], k[1], attr)),
		})
	}
	renderTable(w, []string{"AREA", "INTERFACE", "OVERRIDE", "CURRENT", "PENDING"}, rows)
}
