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

package compiler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/birdplan/birdplan/pkg/policy"
)

const ospfSources = "[ RTS_OSPF, RTS_OSPF_IA, RTS_OSPF_EXT1, RTS_OSPF_EXT2 ]"

// emitter renders the BIRD 2 configuration. Everything is written in
// document or canonical order so the output is byte stable.
type emitter struct {
	buf *bytes.Buffer
	doc *policy.Document
}

func newEmitter(buf *bytes.Buffer, doc *policy.Document) *emitter {
	return &emitter{buf: buf, doc: doc}
}

func (e *emitter) line(indent int, format string, args ...interface{}) {
	e.buf.WriteString(strings.Repeat("\t", indent))
	fmt.Fprintf(e.buf, format, args...)
	e.buf.WriteByte('\n')
}

func (e *emitter) blank() {
	e.buf.WriteByte('\n')
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `'`) + `"`
}

// set renders a BIRD set literal on one line.
func set(items []string) string {
	return "[ " + strings.Join(items, ", ") + " ]"
}

// define renders a named set, one item per line.
func (e *emitter) define(name string, items []string) {
	e.line(0, "define %s = [", name)
	for i, item := range items {
		sep := ","
		if i == len(items)-1 {
			sep = ""
		}
		e.line(1, "%s%s", item, sep)
	}
	e.line(0, "];")
}

func channel(f policy.Family) string {
	return f.String()
}

func (e *emitter) emit() {
	e.header()
	for _, f := range policy.Families {
		e.direct(f)
	}
	for _, f := range policy.Families {
		e.kernel(f)
	}
	for _, f := range policy.Families {
		e.static(f)
	}
	if e.doc.RIP != nil {
		e.rip()
	}
	if e.doc.OSPF != nil {
		e.ospf()
	}
	if e.doc.BGP != nil {
		e.bgp()
	}
}

func (e *emitter) header() {
	e.line(0, "# Generated by birdplan, do not edit.")
	e.blank()
	e.line(0, "router id %s;", e.doc.RouterID)
	if e.doc.LogFile != "" {
		e.line(0, "log %s all;", quote(e.doc.LogFile))
	} else {
		e.line(0, "log syslog all;")
	}
	if e.doc.Debug {
		e.line(0, "debug protocols all;")
	}
	e.blank()
	e.line(0, "protocol device {")
	e.line(1, "scan time 10;")
	e.line(0, "}")
	e.blank()
}

func (e *emitter) direct(f policy.Family) {
	e.line(0, "protocol direct %s {", policy.RouteClassConnected.ProtocolName(f))
	e.line(1, "description \"Directly connected routes for IPv%d\";", f)
	e.line(1, "%s {", channel(f))
	e.line(2, "import all;")
	e.line(2, "export none;")
	e.line(1, "};")
	e.line(0, "}")
	e.blank()
}

func (e *emitter) kernel(f policy.Family) {
	name := policy.RouteClassKernel.ProtocolName(f)
	ek := e.doc.ExportKernel

	e.line(0, "filter f_%s_export {", name)
	if ek.Static {
		e.line(1, "if proto = \"%s\" then accept;", policy.RouteClassStatic.ProtocolName(f))
	}
	if ek.RIP && e.doc.RIP != nil {
		e.line(1, "if source = RTS_RIP then accept;")
	}
	if ek.OSPF && e.doc.OSPF != nil {
		e.line(1, "if source ~ %s then accept;", ospfSources)
	}
	if ek.BGP && e.doc.BGP != nil {
		e.line(1, "if source = RTS_BGP then accept;")
	}
	e.line(1, "reject;")
	e.line(0, "}")
	e.blank()

	e.line(0, "protocol kernel %s {", name)
	e.line(1, "description \"Kernel routes for IPv%d\";", f)
	if k := e.doc.Kernel; k != nil {
		if k.VRF != "" {
			e.line(1, "vrf %s;", quote(k.VRF))
		}
		if k.RoutingTable != 0 {
			e.line(1, "kernel table %d;", k.RoutingTable)
		}
	}
	e.line(1, "metric 600;")
	e.line(1, "learn;")
	e.line(1, "persist;")
	e.line(1, "%s {", channel(f))
	e.line(2, "import all;")
	e.line(2, "export filter f_%s_export;", name)
	e.line(1, "};")
	e.line(0, "}")
	e.blank()
}

func (e *emitter) staticProtocol(name, description string, f policy.Family, routes []policy.StaticRoute) {
	e.line(0, "protocol static %s {", name)
	e.line(1, "description %s;", quote(description))
	e.line(1, "%s {", channel(f))
	e.line(2, "import all;")
	e.line(2, "export none;")
	e.line(1, "};")
	for _, r := range policy.StaticRoutesFor(routes, f) {
		e.line(1, "route %s %s;", r.Prefix, r.Attributes)
	}
	e.line(0, "}")
	e.blank()
}

func (e *emitter) static(f policy.Family) {
	e.staticProtocol(policy.RouteClassStatic.ProtocolName(f), fmt.Sprintf("Static routes for IPv%d", f), f, e.doc.Static)
}

// igpFilters writes the import and export filters shared by RIP and OSPF.
func (e *emitter) igpFilters(name string, f policy.Family, acceptDefault bool, redistribute map[policy.RouteClass]bool, own string) {
	e.line(0, "filter f_%s_import {", name)
	if !acceptDefault {
		e.line(1, "if net.len = 0 then reject;")
	}
	e.line(1, "accept;")
	e.line(0, "}")
	e.blank()

	e.line(0, "filter f_%s_export {", name)
	if own != "" {
		e.line(1, "if %s then accept;", own)
	}
	for _, rc := range policy.RouteClasses {
		if redistribute[rc] {
			e.line(1, "if %s then accept;", rc.Condition(0, f))
		}
	}
	e.line(1, "reject;")
	e.line(0, "}")
	e.blank()
}

func (e *emitter) rip() {
	rip := e.doc.RIP
	for _, f := range policy.Families {
		name := fmt.Sprintf("rip%d", f)
		e.igpFilters(name, f, rip.AcceptDefault, rip.Redistribute, "source = RTS_RIP")

		kind := "rip"
		if f == policy.IPv6 {
			kind = "rip ng"
		}
		e.line(0, "protocol %s %s {", kind, name)
		e.line(1, "description \"RIP for IPv%d\";", f)
		e.line(1, "%s {", channel(f))
		e.line(2, "import filter f_%s_import;", name)
		e.line(2, "export filter f_%s_export;", name)
		e.line(1, "};")
		for _, i := range rip.Interfaces {
			e.line(1, "interface %s {", quote(i.Name))
			if i.Metric != 0 {
				e.line(2, "metric %d;", i.Metric)
			}
			if i.UpdateTime != 0 {
				e.line(2, "update time %d;", i.UpdateTime)
			}
			e.line(1, "};")
		}
		e.line(0, "}")
		e.blank()
	}
}

func (e *emitter) ospf() {
	ospf := e.doc.OSPF
	for _, f := range policy.Families {
		name := fmt.Sprintf("ospf%d", f)
		e.igpFilters(name, f, ospf.AcceptDefault, ospf.Redistribute, "")

		version := "v2"
		if f == policy.IPv6 {
			version = "v3"
		}
		e.line(0, "protocol ospf %s %s {", version, name)
		e.line(1, "description \"OSPF for IPv%d\";", f)
		e.line(1, "%s {", channel(f))
		e.line(2, "import filter f_%s_import;", name)
		e.line(2, "export filter f_%s_export;", name)
		e.line(1, "};")
		for _, a := range ospf.Areas {
			e.line(1, "area %s {", a.Name)
			for _, i := range a.Interfaces {
				e.line(2, "interface %s {", quote(i.Name))
				e.line(3, "cost %d;", i.Cost)
				e.line(3, "ecmp weight %d;", i.ECMPWeight)
				if i.Hello != 0 {
					e.line(3, "hello %d;", i.Hello)
				}
				if i.Wait != 0 {
					e.line(3, "wait %d;", i.Wait)
				}
				if i.Stub {
					e.line(3, "stub yes;")
				}
				e.line(2, "};")
			}
			e.line(1, "};")
		}
		e.line(0, "}")
		e.blank()
	}
}
