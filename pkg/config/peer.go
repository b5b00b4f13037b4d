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

package config

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/birdplan/birdplan/pkg/policy"
)

var peerKeys = []string{
	"asn", "type", "description",
	"neighbor4", "neighbor6", "source_address4", "source_address6",
	"multihop", "connect_delay_time", "connect_retry_time", "error_wait_time",
	"password", "ttl_security", "passive",
	"cost", "graceful_shutdown", "quarantine", "add_paths",
	"prefix_limit4", "prefix_limit6", "prefix_limit_action",
	"location", "blackhole_community", "use_rpki", "replace_aspath",
	"accept", "redistribute", "outgoing_communities", "outgoing_large_communities",
	"prepend", "constraints",
	"filter", "import_filter", "import_filter_deny", "export_filter", "actions",
}

var (
	filterPolicyKeys = []string{"prefixes", "origin_asns", "peer_asns", "as_sets"}
	denyPolicyKeys   = []string{"aspath_asns", "origin_asns", "prefixes"}
	exportFilterKeys = []string{"origin_asns", "prefixes"}
	locationKeys     = []string{"iso3166", "unm49"}
	actionKeys       = []string{"direction", "matches", "action"}
	actionMatchKeys  = []string{"origin_asn", "prefix", "community", "extended_community", "large_community"}
)

// peerField parses one key of a peer section into the builder.
type peerField func(s *section, key string, b *policy.PeerBuilder) error

var peerFields = map[string]peerField{
	"asn":                        parsePeerASN,
	"type":                       parsePeerType,
	"description":                parsePeerDescription,
	"neighbor4":                  parsePeerAddress,
	"neighbor6":                  parsePeerAddress,
	"source_address4":            parsePeerAddress,
	"source_address6":            parsePeerAddress,
	"multihop":                   parsePeerTunable,
	"connect_delay_time":         parsePeerTunable,
	"connect_retry_time":         parsePeerTunable,
	"error_wait_time":            parsePeerErrorWaitTime,
	"password":                   parsePeerPassword,
	"ttl_security":               parsePeerSwitch,
	"passive":                    parsePeerSwitch,
	"cost":                       parsePeerTunable,
	"graceful_shutdown":          parsePeerSwitch,
	"quarantine":                 parsePeerSwitch,
	"add_paths":                  parsePeerAddPaths,
	"prefix_limit4":              parsePeerPrefixLimit,
	"prefix_limit6":              parsePeerPrefixLimit,
	"prefix_limit_action":        parsePeerPrefixLimitAction,
	"location":                   parsePeerLocation,
	"blackhole_community":        parsePeerSwitch,
	"use_rpki":                   parsePeerSwitch,
	"replace_aspath":             parsePeerSwitch,
	"accept":                     parsePeerAccept,
	"redistribute":               parsePeerRedistribute,
	"outgoing_communities":       parsePeerOutgoingCommunities,
	"outgoing_large_communities": parsePeerOutgoingLargeCommunities,
	"prepend":                    parsePeerPrepend,
	"constraints":                parsePeerConstraints,
	"filter":                     parsePeerImportFilter,
	"import_filter":              parsePeerImportFilter,
	"import_filter_deny":         parsePeerImportFilterDeny,
	"export_filter":              parsePeerExportFilter,
	"actions":                    parsePeerActions,
}

func parsePeer(peers *section, name string, g *policy.BGPGlobal) (*policy.BGPPeer, error) {
	s, err := peers.child(name)
	if err != nil {
		return nil, err
	}
	if err := s.checkKeys(peerKeys); err != nil {
		return nil, err
	}
	if s.has("filter") && s.has("import_filter") {
		return nil, s.fail("filter", "'filter' and 'import_filter' cannot be used together")
	}
	b := policy.NewPeerBuilder(name, s.path)
	for _, key := range s.keys() {
		b.Mark(key)
		if err := peerFields[key](s, key, b); err != nil {
			return nil, err
		}
	}
	return b.Build(g)
}

func parsePeerASN(s *section, key string, b *policy.PeerBuilder) error {
	asn, err := s.asn(key)
	b.Peer.ASN = asn
	return err
}

func parsePeerType(s *section, key string, b *policy.PeerBuilder) error {
	t, err := s.str(key)
	b.RawType = t
	return err
}

func parsePeerDescription(s *section, key string, b *policy.PeerBuilder) error {
	d, err := s.str(key)
	if err != nil {
		return err
	}
	if strings.TrimSpace(d) == "" {
		return s.fail(key, "must not be empty")
	}
	b.Peer.Description = d
	return nil
}

func parsePeerAddress(s *section, key string, b *policy.PeerBuilder) error {
	a, err := s.addr(key, strings.HasSuffix(key, "4"))
	if err != nil {
		return err
	}
	p := b.Peer
	switch key {
	case "neighbor4":
		p.Neighbor4 = a
	case "neighbor6":
		p.Neighbor6 = a
	case "source_address4":
		p.SourceAddress4 = a
	case "source_address6":
		p.SourceAddress6 = a
	}
	return nil
}

func parsePeerTunable(s *section, key string, b *policy.PeerBuilder) error {
	p := b.Peer
	var err error
	switch key {
	case "multihop":
		p.Multihop, err = s.integer(key, 1, 255)
	case "connect_delay_time":
		p.ConnectDelayTime, err = s.integer(key, 1, 65535)
	case "connect_retry_time":
		p.ConnectRetryTime, err = s.integer(key, 1, 65535)
	case "cost":
		p.Cost, err = s.integer(key, 0, 65535)
	}
	return err
}

// parsePeerErrorWaitTime accepts "min,max" in seconds.
func parsePeerErrorWaitTime(s *section, key string, b *policy.PeerBuilder) error {
	raw, err := s.str(key)
	if err != nil {
		return err
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return s.fail(key, "must be in the form 'min,max'")
	}
	out := make([]int, 0, 2)
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 1 {
			return s.fail(key, "must be in the form 'min,max'")
		}
		out = append(out, v)
	}
	if out[0] > out[1] {
		return s.fail(key, "minimum %d is greater than maximum %d", out[0], out[1])
	}
	b.Peer.ErrorWaitTime = out
	return nil
}

func parsePeerPassword(s *section, key string, b *policy.PeerBuilder) error {
	pw, err := s.str(key)
	if err != nil {
		return err
	}
	if strings.ContainsAny(pw, "\"\n") {
		return s.fail(key, "must not contain quotes or newlines")
	}
	b.Peer.Password = pw
	return nil
}

func parsePeerSwitch(s *section, key string, b *policy.PeerBuilder) error {
	v, err := s.boolean(key)
	if err != nil {
		return err
	}
	p := b.Peer
	switch key {
	case "ttl_security":
		p.TTLSecurity = v
	case "passive":
		p.Passive = v
	case "graceful_shutdown":
		b.SetGracefulShutdown(v)
	case "quarantine":
		b.SetQuarantine(v)
	case "blackhole_community":
		p.BlackholeCommunity = v
	case "use_rpki":
		b.SetUseRPKI(v)
	case "replace_aspath":
		p.ReplaceASPath = v
	}
	return nil
}

func parsePeerAddPaths(s *section, key string, b *policy.PeerBuilder) error {
	raw, err := s.str(key)
	if err != nil {
		return err
	}
	ap, err := policy.ParseAddPaths(raw)
	if err != nil {
		return s.fail(key, "%v", err)
	}
	b.Peer.AddPaths = ap
	return nil
}

// parsePeerPrefixLimit accepts a number or "peeringdb".
func parsePeerPrefixLimit(s *section, key string, b *policy.PeerBuilder) error {
	v, _ := s.get(key)
	limit := &policy.PrefixLimit{}
	if str, ok := v.(string); ok && strings.EqualFold(strings.TrimSpace(str), "peeringdb") {
		limit.PeeringDB = true
	} else {
		n, err := s.integer(key, 1, 10000000)
		if err != nil {
			return s.fail(key, "must be a number or 'peeringdb'")
		}
		limit.Value = n
	}
	if key == "prefix_limit6" {
		b.Peer.PrefixLimit6 = limit
	} else {
		b.Peer.PrefixLimit4 = limit
	}
	return nil
}

func parsePeerPrefixLimitAction(s *section, key string, b *policy.PeerBuilder) error {
	a, err := s.str(key)
	if err != nil {
		return err
	}
	for _, valid := range policy.PrefixLimitActions {
		if a == valid {
			b.Peer.PrefixLimitAction = a
			return nil
		}
	}
	return s.fail(key, "invalid action '%s', must be one of %s", a, strings.Join(policy.PrefixLimitActions, ", "))
}

func parsePeerLocation(s *section, key string, b *policy.PeerBuilder) error {
	c, err := s.child(key)
	if err != nil {
		return err
	}
	if err := c.checkKeys(locationKeys); err != nil {
		return err
	}
	loc := &policy.Location{}
	if c.has("iso3166") {
		if loc.ISO3166, err = c.integer("iso3166", 1, 999); err != nil {
			return err
		}
	}
	if c.has("unm49") {
		if loc.UNM49, err = c.integer("unm49", 1, 999); err != nil {
			return err
		}
	}
	b.Peer.Location = loc
	return nil
}

func parsePeerAccept(s *section, key string, b *policy.PeerBuilder) error {
	c, err := s.child(key)
	if err != nil {
		return err
	}
	return parseClassSwitches(c, policy.PeerAcceptClasses, b.Peer.Accept)
}

func parsePeerRedistribute(s *section, key string, b *policy.PeerBuilder) error {
	c, err := s.child(key)
	if err != nil {
		return err
	}
	out := map[policy.RouteClass]bool{}
	if err := parseClassSwitches(c, nil, out); err != nil {
		return err
	}
	for rc, v := range out {
		b.SetRedistribute(rc, v)
	}
	return nil
}

// parseValues parses every entry of the list under key.
func parseValues[T any](s *section, key string, parse func(string) (T, error)) ([]T, error) {
	raw, err := s.strList(key)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		v, err := parse(r)
		if err != nil {
			return nil, s.fail(key, "%v", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseClassCommunities accepts either a flat list applied to all routes
// or a mapping of route class to list.
func parseClassCommunities[T any](s *section, key string, parse func(string) (T, error)) (policy.ClassCommunities[T], error) {
	out := policy.ClassCommunities[T]{ByClass: map[policy.RouteClass][]T{}}
	v, _ := s.get(key)
	if _, ok := v.(yaml.MapSlice); !ok {
		all, err := parseValues(s, key, parse)
		out.All = all
		return out, err
	}
	c, err := s.child(key)
	if err != nil {
		return out, err
	}
	if err := c.checkKeys(nil); err != nil {
		return out, err
	}
	for _, k := range c.keys() {
		rc, err := policy.ParseRouteClass(k, nil)
		if err != nil {
			return out, c.fail(k, "%v", err)
		}
		vals, err := parseValues(c, k, parse)
		if err != nil {
			return out, err
		}
		out.ByClass[rc] = vals
	}
	return out, nil
}

func parsePeerOutgoingCommunities(s *section, key string, b *policy.PeerBuilder) error {
	cc, err := parseClassCommunities(s, key, policy.ParseCommunity)
	b.Peer.OutgoingCommunities = cc
	return err
}

func parsePeerOutgoingLargeCommunities(s *section, key string, b *policy.PeerBuilder) error {
	cc, err := parseClassCommunities(s, key, policy.ParseLargeCommunity)
	b.Peer.OutgoingLargeCommunities = cc
	return err
}

const maxPrepend = 10

// parsePeerPrepend accepts a count applied to all routes or a mapping of
// route class to count.
func parsePeerPrepend(s *section, key string, b *policy.PeerBuilder) error {
	pp := policy.ClassPrepend{ByClass: map[policy.RouteClass]int{}}
	v, _ := s.get(key)
	if _, ok := v.(yaml.MapSlice); !ok {
		n, err := s.integer(key, 0, maxPrepend)
		if err != nil {
			return err
		}
		pp.All = n
		b.Peer.Prepend = pp
		return nil
	}
	c, err := s.child(key)
	if err != nil {
		return err
	}
	if err := c.checkKeys(nil); err != nil {
		return err
	}
	for _, k := range c.keys() {
		rc, err := policy.ParseRouteClass(k, nil)
		if err != nil {
			return c.fail(k, "%v", err)
		}
		n, err := c.integer(k, 0, maxPrepend)
		if err != nil {
			return err
		}
		pp.ByClass[rc] = n
	}
	b.Peer.Prepend = pp
	return nil
}

func parsePeerConstraints(s *section, key string, b *policy.PeerBuilder) error {
	c, err := s.child(key)
	if err != nil {
		return err
	}
	cs, err := parseConstraintSet(c, "")
	if err != nil {
		return err
	}
	for k, v := range cs {
		b.SetConstraint(k, v)
	}
	return nil
}

func parsePrefixPatterns(s *section, key string) ([]policy.PrefixPattern, error) {
	return parseValues(s, key, policy.ParsePrefixPattern)
}

func parsePeerImportFilter(s *section, key string, b *policy.PeerBuilder) error {
	c, err := s.child(key)
	if err != nil {
		return err
	}
	if err := c.checkKeys(filterPolicyKeys); err != nil {
		return err
	}
	f := &policy.FilterPolicy{}
	if c.has("prefixes") {
		if f.Prefixes, err = parsePrefixPatterns(c, "prefixes"); err != nil {
			return err
		}
	}
	if c.has("origin_asns") {
		if f.OriginASNs, err = c.asnList("origin_asns"); err != nil {
			return err
		}
	}
	if c.has("peer_asns") {
		if f.PeerASNs, err = c.asnList("peer_asns"); err != nil {
			return err
		}
	}
	if c.has("as_sets") {
		if f.ASSets, err = c.strList("as_sets"); err != nil {
			return err
		}
	}
	b.Peer.ImportFilter = f
	return nil
}

func parsePeerImportFilterDeny(s *section, key string, b *policy.PeerBuilder) error {
	c, err := s.child(key)
	if err != nil {
		return err
	}
	if err := c.checkKeys(denyPolicyKeys); err != nil {
		return err
	}
	d := &policy.DenyPolicy{}
	if c.has("aspath_asns") {
		if d.ASPathASNs, err = c.asnList("aspath_asns"); err != nil {
			return err
		}
	}
	if c.has("origin_asns") {
		if d.OriginASNs, err = c.asnList("origin_asns"); err != nil {
			return err
		}
	}
	if c.has("prefixes") {
		if d.Prefixes, err = parsePrefixPatterns(c, "prefixes"); err != nil {
			return err
		}
	}
	b.Peer.ImportFilterDeny = d
	return nil
}

func parsePeerExportFilter(s *section, key string, b *policy.PeerBuilder) error {
	c, err := s.child(key)
	if err != nil {
		return err
	}
	if err := c.checkKeys(exportFilterKeys); err != nil {
		return err
	}
	e := &policy.ExportFilter{}
	if c.has("origin_asns") {
		if e.OriginASNs, err = c.asnList("origin_asns"); err != nil {
			return err
		}
	}
	if c.has("prefixes") {
		if e.Prefixes, err = parsePrefixPatterns(c, "prefixes"); err != nil {
			return err
		}
	}
	b.Peer.ExportFilter = e
	return nil
}

func parsePeerActions(s *section, key string, b *policy.PeerBuilder) error {
	items, err := s.list(key)
	if err != nil {
		return err
	}
	for i, item := range items {
		as, err := newSection(subPath(s.path, key+":"+strconv.Itoa(i)), item)
		if err != nil {
			return err
		}
		a, err := parseAction(as)
		if err != nil {
			return err
		}
		b.Peer.Actions = append(b.Peer.Actions, a)
	}
	return nil
}

func parseAction(s *section) (policy.Action, error) {
	a := policy.Action{}
	if err := s.checkKeys(actionKeys); err != nil {
		return a, err
	}
	for _, k := range actionKeys {
		if !s.has(k) {
			return a, s.fail(k, "'%s' is required", k)
		}
	}

	dir, err := s.str("direction")
	if err != nil {
		return a, err
	}
	switch d := policy.ActionDirection(dir); d {
	case policy.ActionIn, policy.ActionOut:
		a.Direction = d
	default:
		return a, s.fail("direction", "must be 'in' or 'out'")
	}

	if a.Match, err = parseActionMatch(s); err != nil {
		return a, err
	}
	if a.Ops, err = parseActionOps(s); err != nil {
		return a, err
	}
	return a, nil
}

func parseActionMatch(parent *section) (policy.ActionMatch, error) {
	m := policy.ActionMatch{}
	s, err := parent.child("matches")
	if err != nil {
		return m, err
	}
	if err := s.checkKeys(actionMatchKeys); err != nil {
		return m, err
	}
	if len(s.keys()) == 0 {
		return m, s.fail("", "at least one match is required")
	}
	for _, k := range s.keys() {
		switch k {
		case "origin_asn":
			m.OriginASNs, err = s.asnList(k)
		case "prefix":
			m.Prefixes, err = parsePrefixPatterns(s, k)
		case "community":
			m.Communities, err = parseValues(s, k, policy.ParseCommunity)
		case "extended_community":
			m.ExtendedCommunities, err = parseValues(s, k, policy.ParseExtendedCommunity)
		case "large_community":
			m.LargeCommunities, err = parseValues(s, k, policy.ParseLargeCommunity)
		}
		if err != nil {
			return m, err
		}
	}
	return m, nil
}

// parseActionOps reads either the "reject" keyword or a mapping of
// operations, returned in emit order.
func parseActionOps(parent *section) ([]policy.ActionOp, error) {
	v, _ := parent.get("action")
	if str, ok := v.(string); ok {
		if policy.ActionKind(str) != policy.ActionReject {
			return nil, parent.fail("action", "unknown action '%s'", str)
		}
		return []policy.ActionOp{{Kind: policy.ActionReject}}, nil
	}
	s, err := parent.child("action")
	if err != nil {
		return nil, err
	}
	allowed := make([]string, 0, len(policy.ActionKinds))
	for _, k := range policy.ActionKinds[1:] {
		allowed = append(allowed, string(k))
	}
	if err := s.checkKeys(allowed); err != nil {
		return nil, err
	}
	if len(s.keys()) == 0 {
		return nil, s.fail("", "at least one operation is required")
	}
	ops := []policy.ActionOp{}
	for _, kind := range policy.ActionKinds[1:] {
		k := string(kind)
		if !s.has(k) {
			continue
		}
		op := policy.ActionOp{Kind: kind}
		switch kind {
		case policy.ActionAddCommunity, policy.ActionRemoveCommunity:
			op.Communities, err = parseValues(s, k, policy.ParseCommunity)
		case policy.ActionAddExtendedCommunity, policy.ActionRemoveExtendedCommunity:
			op.ExtendedCommunities, err = parseValues(s, k, policy.ParseExtendedCommunity)
		case policy.ActionAddLargeCommunity, policy.ActionRemoveLargeCommunity:
			op.LargeCommunities, err = parseValues(s, k, policy.ParseLargeCommunity)
		case policy.ActionPrepend:
			op.Count, err = s.integer(k, 1, maxPrepend)
		}
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}
