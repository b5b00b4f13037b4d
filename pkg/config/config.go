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

// Package config loads the declarative policy document and turns it into
// the validated policy model.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/birdplan/birdplan/pkg/errdefs"
	"github.com/birdplan/birdplan/pkg/policy"
)

var topLevelKeys = []string{"router_id", "kernel", "log_file", "debug", "static", "export_kernel", "bgp", "rip", "ospf"}

// ReadConfigFile reads and parses the policy document at path.
func ReadConfigFile(path string) (*policy.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading policy document %s", path)
	}
	return Parse(data)
}

// Parse validates a policy document section by section. The first problem
// found is returned as a ConfigError.
func Parse(data []byte) (*policy.Document, error) {
	raw := yaml.MapSlice{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &errdefs.ConfigError{Msg: fmt.Sprintf("invalid YAML: %v", err)}
	}
	root := &section{items: raw}
	if err := root.checkKeys(topLevelKeys); err != nil {
		return nil, err
	}

	doc := &policy.Document{
		ExportKernel: policy.DefaultExportKernel(),
	}
	steps := []struct {
		key   string
		parse func(*section, *policy.Document) error
	}{
		{"router_id", parseGlobal},
		{"kernel", parseKernel},
		{"static", parseStatic},
		{"export_kernel", parseExportKernel},
		{"rip", parseRIP},
		{"ospf", parseOSPF},
		{"bgp", parseBGP},
	}
	for _, step := range steps {
		if step.key != "router_id" && !root.has(step.key) {
			continue
		}
		if err := step.parse(root, doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func parseGlobal(root *section, doc *policy.Document) error {
	if !root.has("router_id") {
		return root.fail("router_id", "'router_id' is required")
	}
	id, err := root.addr("router_id", true)
	if err != nil {
		return err
	}
	doc.RouterID = id
	if root.has("log_file") {
		if doc.LogFile, err = root.str("log_file"); err != nil {
			return err
		}
	}
	if root.has("debug") {
		if doc.Debug, err = root.boolean("debug"); err != nil {
			return err
		}
	}
	return nil
}

func parseKernel(root *section, doc *policy.Document) error {
	s, err := root.child("kernel")
	if err != nil {
		return err
	}
	if err := s.checkKeys([]string{"vrf", "routing_table"}); err != nil {
		return err
	}
	k := &policy.Kernel{}
	if s.has("vrf") {
		if k.VRF, err = s.str("vrf"); err != nil {
			return err
		}
	}
	if s.has("routing_table") {
		if k.RoutingTable, err = s.integer("routing_table", 1, 4294967295); err != nil {
			return err
		}
	}
	doc.Kernel = k
	return nil
}

// parseRoute splits "<prefix> <attributes>" into a StaticRoute.
func parseRoute(s *section, key, route string) (policy.StaticRoute, error) {
	fields := strings.Fields(route)
	if len(fields) < 2 {
		return policy.StaticRoute{}, s.fail(key, "route '%s' needs a prefix and attributes", route)
	}
	p, err := netip.ParsePrefix(fields[0])
	if err != nil || p.Masked() != p {
		return policy.StaticRoute{}, s.fail(key, "invalid prefix in route '%s'", route)
	}
	return policy.StaticRoute{Prefix: p, Attributes: strings.Join(fields[1:], " ")}, nil
}

func parseRoutes(s *section, key string) ([]policy.StaticRoute, error) {
	routes, err := s.strList(key)
	if err != nil {
		return nil, err
	}
	out := make([]policy.StaticRoute, 0, len(routes))
	for _, r := range routes {
		route, err := parseRoute(s, key, r)
		if err != nil {
			return nil, err
		}
		out = append(out, route)
	}
	return out, nil
}

func parseStatic(root *section, doc *policy.Document) error {
	routes, err := parseRoutes(root, "static")
	if err != nil {
		return err
	}
	doc.Static = routes
	return nil
}

func parseExportKernel(root *section, doc *policy.Document) error {
	s, err := root.child("export_kernel")
	if err != nil {
		return err
	}
	if err := s.checkKeys([]string{"static", "rip", "ospf", "bgp"}); err != nil {
		return err
	}
	targets := map[string]*bool{
		"static": &doc.ExportKernel.Static,
		"rip":    &doc.ExportKernel.RIP,
		"ospf":   &doc.ExportKernel.OSPF,
		"bgp":    &doc.ExportKernel.BGP,
	}
	for _, k := range s.keys() {
		v, err := s.boolean(k)
		if err != nil {
			return err
		}
		*targets[k] = v
	}
	return nil
}

// parseClassSwitches reads a RouteClass keyed map of booleans.
func parseClassSwitches(s *section, allowed []policy.RouteClass, out map[policy.RouteClass]bool) error {
	if err := s.checkKeys(nil); err != nil {
		return err
	}
	for _, k := range s.keys() {
		rc, err := policy.ParseRouteClass(k, allowed)
		if err != nil {
			return s.fail(k, "%v", err)
		}
		v, err := s.boolean(k)
		if err != nil {
			return err
		}
		out[rc] = v
	}
	return nil
}
