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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/birdplan/birdplan/pkg/errdefs"
)

func printError(w io.Writer, err error) {
	if globalOpts.Json {
		j, _ := json.Marshal(struct {
			Error string `json:"error"`
		}{Error: err.Error()})
		fmt.Fprintln(w, string(j))
	} else {
		fmt.Fprintln(w, "Error:", err)
	}
}

// exitCode distinguishes operator mistakes from failures to compile.
func exitCode(err error) int {
	switch {
	case errdefs.IsUsageError(err), errdefs.IsNotFoundError(err):
		return 2
	case errdefs.IsRegressionError(err):
		return 3
	}
	return 1
}

func exitWithError(w io.Writer, err error) {
	printError(w, err)
	os.Exit(exitCode(err))
}

func printJSON(w io.Writer, v interface{}) error {
	j, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(j))
	return err
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

func formatBool(v bool, ok bool) string {
	if !ok {
		return "-"
	}
	if v {
		return "yes"
	}
	return "no"
}

func formatInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func parseBool(s string) (bool, error) {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, errdefs.NewUsageError("invalid value '%s', must be true or false", s)
	}
	return v, nil
}
