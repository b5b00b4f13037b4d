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
	"fmt"
	"strings"

	"github.com/birdplan/birdplan/pkg/policy"
	"github.com/birdplan/birdplan/pkg/utils"
)

func roaTable(f policy.Family) string {
	return fmt.Sprintf("t_roa%d", f)
}

func (e *emitter) bgp() {
	g := e.doc.BGP
	e.line(0, "# BGP AS%d", g.ASN)
	e.blank()

	if src := g.RPKISource; src != nil {
		for _, f := range policy.Families {
			e.line(0, "roa%d table %s;", f, roaTable(f))
		}
		e.blank()
		e.line(0, "protocol rpki rpki1 {")
		e.line(1, "description \"RPKI validator %s\";", src)
		for _, f := range policy.Families {
			e.line(1, "roa%d { table %s; };", f, roaTable(f))
		}
		e.line(1, "remote %s port %d;", quote(src.Host), src.Port)
		e.line(1, "retry keep 90;")
		e.line(1, "refresh keep 900;")
		e.line(1, "expire keep 172800;")
		e.line(0, "}")
		e.blank()
	}

	for _, f := range policy.Families {
		e.staticProtocol(policy.RouteClassOriginated.ProtocolName(f), fmt.Sprintf("BGP originated routes for IPv%d", f), f, g.Originate)
	}

	for _, p := range g.Peers {
		e.peer(g, p)
	}
}

func (e *emitter) peer(g *policy.BGPGlobal, p *policy.BGPPeer) {
	e.line(0, "# Peer %s: AS%d %s (%s)", p.Name, p.ASN, p.Description, p.Type)
	e.blank()
	e.peerDefines(p)
	for _, f := range policy.Families {
		if !p.HasFamily(f) {
			continue
		}
		if p.Type.AcceptsImport() {
			e.importFilter(g, p, f)
		}
		e.exportFilter(g, p, f)
		e.protocol(g, p, f)
	}
}

func asnItems(asns []uint32) []string {
	out := make([]string, 0, len(asns))
	for _, a := range utils.Uniq(asns) {
		out = append(out, fmt.Sprint(a))
	}
	return out
}

// uniqStrings drops repeated items keeping the first occurrence.
func uniqStrings(items []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, i := range items {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}

// blackholeItems widens prefix patterns so every more specific of the
// base prefix matches.
func blackholeItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		base := i
		if n := strings.IndexAny(i, "+-{"); n >= 0 {
			base = i[:n]
		}
		out = append(out, base+"+")
	}
	return uniqStrings(out)
}

func setName(p *policy.BGPPeer, f policy.Family, what string) string {
	if f == 0 {
		return fmt.Sprintf("bgp_%s_%s", p.Name, what)
	}
	return fmt.Sprintf("bgp%d_%s_%s", f, p.Name, what)
}

// filterHasPrefixes reports whether the import filter restricts prefixes.
func filterHasPrefixes(p *policy.BGPPeer) bool {
	f := p.ImportFilter
	return f != nil && (len(f.Prefixes) > 0 || len(f.ASSets) > 0)
}

func filterHasOrigins(p *policy.BGPPeer) bool {
	f := p.ImportFilter
	return f != nil && (len(f.OriginASNs) > 0 || len(f.ASSets) > 0)
}

func (e *emitter) peerDefines(p *policy.BGPPeer) {
	rf := p.ResolvedFilter
	if rf == nil || !p.Type.AcceptsImport() {
		return
	}
	if items := asnItems(rf.OriginASNs.All()); filterHasOrigins(p) && len(items) > 0 {
		e.define(setName(p, 0, "origin_asns"), items)
		e.blank()
	}
	if items := asnItems(rf.PeerASNs.All()); len(items) > 0 {
		e.define(setName(p, 0, "peer_asns"), items)
		e.blank()
	}
	if !filterHasPrefixes(p) {
		return
	}
	for _, f := range policy.Families {
		items := uniqStrings(rf.Prefixes(f).All())
		if !p.HasFamily(f) || len(items) == 0 {
			continue
		}
		e.define(setName(p, f, "prefixes"), items)
		e.blank()
		if p.Type.BlackholeImportCapable() && e.acceptsBlackhole(p) {
			e.define(setName(p, f, "blackhole_prefixes"), blackholeItems(items))
			e.blank()
		}
	}
}

func (e *emitter) globalAccepts(rc policy.RouteClass) bool {
	return e.doc.BGP.Accept[rc]
}

func (e *emitter) acceptsBlackhole(p *policy.BGPPeer) bool {
	if !p.Type.BlackholeImportCapable() {
		return false
	}
	for _, rc := range []policy.RouteClass{policy.RouteClassBGPCustomerBlackhole, policy.RouteClassBGPOwnBlackhole} {
		if p.Accepts(rc) && e.globalAccepts(rc) {
			return true
		}
	}
	return false
}

func (e *emitter) acceptsDefault(p *policy.BGPPeer) bool {
	for _, rc := range []policy.RouteClass{policy.RouteClassBGPOwnDefault, policy.RouteClassBGPTransitDefault} {
		if p.Accepts(rc) && e.globalAccepts(rc) {
			return true
		}
	}
	return false
}

func lengthCheck(c policy.ConstraintSet, minLen, maxLen policy.Constraint, guardDefault bool) string {
	lo, okLo := c.Get(minLen)
	hi, okHi := c.Get(maxLen)
	conds := []string{}
	if okLo && lo > 0 {
		conds = append(conds, fmt.Sprintf("net.len < %d", lo))
	}
	if okHi {
		conds = append(conds, fmt.Sprintf("net.len > %d", hi))
	}
	if len(conds) == 0 {
		return ""
	}
	cond := strings.Join(conds, " || ")
	if guardDefault {
		cond = fmt.Sprintf("net.len != 0 && (%s)", cond)
	}
	return fmt.Sprintf("if %s then reject;", cond)
}

func byFamily(f policy.Family, c4, c6 policy.Constraint) policy.Constraint {
	if f == policy.IPv6 {
		return c6
	}
	return c4
}

func (e *emitter) importFilter(g *policy.BGPGlobal, p *policy.BGPPeer, f policy.Family) {
	t := p.Type
	c := p.Constraints
	e.line(0, "filter f_%s_import {", p.ProtocolName(f))
	if p.Quarantine {
		e.line(1, "# quarantined")
		e.line(1, "reject;")
		e.line(0, "}")
		e.blank()
		return
	}

	if !t.IsInternal() {
		e.line(1, "bgp_large_community.delete([(%d, *, *)]);", g.ASN)
		if t != policy.PeerTypeRouteServer {
			e.line(1, "if bgp_path.first != %d then reject;", p.ASN)
		}
	}

	if v, ok := c.Get(policy.ASPathImportMaxLen); ok {
		if lo, _ := c.Get(policy.ASPathImportMinLen); lo > 0 {
			e.line(1, "if bgp_path.len < %d || bgp_path.len > %d then reject;", lo, v)
		} else {
			e.line(1, "if bgp_path.len > %d then reject;", v)
		}
	}
	for _, cc := range []struct {
		constraint policy.Constraint
		attr       string
	}{
		{policy.CommunityImportMaxLen, "bgp_community"},
		{policy.ExtendedCommunityImportMaxLen, "bgp_ext_community"},
		{policy.LargeCommunityImportMaxLen, "bgp_large_community"},
	} {
		if v, ok := c.Get(cc.constraint); ok {
			e.line(1, "if %s.len > %d then reject;", cc.attr, v)
		}
	}

	if d := p.ImportFilterDeny; d != nil {
		for _, asn := range d.ASPathASNs {
			e.line(1, "if bgp_path ~ [= * %d * =] then reject;", asn)
		}
		if len(d.OriginASNs) > 0 {
			e.line(1, "if bgp_path.last_nonaggregated ~ %s then reject;", set(asnItems(d.OriginASNs)))
		}
		if items := policy.PrefixPatternsFor(d.Prefixes, f); len(items) > 0 {
			e.line(1, "if net ~ %s then reject;", set(items))
		}
	}

	if rf := p.ResolvedFilter; rf != nil {
		if len(rf.PeerASNs.All()) > 0 {
			e.line(1, "if !(bgp_path.first ~ %s) then reject;", setName(p, 0, "peer_asns"))
		}
		if filterHasOrigins(p) {
			if len(rf.OriginASNs.All()) == 0 {
				e.line(1, "# no origin ASNs resolved")
				e.line(1, "reject;")
			} else {
				e.line(1, "if !(bgp_path.last_nonaggregated ~ %s) then reject;", setName(p, 0, "origin_asns"))
			}
		}
	}

	prefixCheck := func(indent int, what string) {
		if !filterHasPrefixes(p) || p.ResolvedFilter == nil {
			return
		}
		if len(p.ResolvedFilter.Prefixes(f).All()) == 0 {
			e.line(indent, "# no IPv%d prefixes resolved", f)
			e.line(indent, "reject;")
			return
		}
		e.line(indent, "if !(net ~ %s) then reject;", setName(p, f, what))
	}

	e.line(1, "if %s ~ bgp_community then {", policy.CommunityBlackhole)
	if e.acceptsBlackhole(p) {
		minLen := byFamily(f, policy.BlackholeImportMinLen4, policy.BlackholeImportMinLen6)
		maxLen := byFamily(f, policy.BlackholeImportMaxLen4, policy.BlackholeImportMaxLen6)
		if check := lengthCheck(c, minLen, maxLen, false); check != "" {
			e.line(2, "%s", check)
		}
		prefixCheck(2, "blackhole_prefixes")
		e.line(2, "dest = RTD_BLACKHOLE;")
	} else {
		e.line(2, "reject;")
	}
	e.line(1, "} else {")
	acceptDefault := e.acceptsDefault(p)
	if !acceptDefault {
		e.line(2, "if net.len = 0 then reject;")
	}
	minLen := byFamily(f, policy.ImportMinLen4, policy.ImportMinLen6)
	maxLen := byFamily(f, policy.ImportMaxLen4, policy.ImportMaxLen6)
	if check := lengthCheck(c, minLen, maxLen, acceptDefault); check != "" {
		e.line(2, "%s", check)
	}
	prefixCheck(2, "prefixes")
	if p.UseRPKI {
		e.line(2, "if roa_check(%s, net, bgp_path.last_nonaggregated) = ROA_INVALID then reject;", roaTable(f))
	}
	e.line(1, "}")

	if t == policy.PeerTypeCustomerPrivate {
		e.line(1, "bgp_path = delete(bgp_path, %d);", p.ASN)
	}

	if !t.IsInternal() {
		if loc := p.Location; loc != nil {
			if loc.ISO3166 != 0 {
				e.line(1, "bgp_large_community.add(%s);", policy.LargeCommunity{Global: g.ASN, Data1: policy.LCFunctionLocationISO3166, Data2: uint32(loc.ISO3166)})
			}
			if loc.UNM49 != 0 {
				e.line(1, "bgp_large_community.add(%s);", policy.LargeCommunity{Global: g.ASN, Data1: policy.LCFunctionLocationUNM49, Data2: uint32(loc.UNM49)})
			}
		}
		if lc, ok := policy.PeerTagCommunity(g.ASN, t); ok {
			e.line(1, "bgp_large_community.add(%s);", lc)
		}
		e.line(1, "bgp_local_pref = %d;", p.LocalPreference())
	}

	e.line(1, "if %s ~ bgp_community then bgp_local_pref = 0;", policy.CommunityGracefulShutdown)
	if p.GracefulShutdown {
		e.line(1, "bgp_local_pref = 0;")
	}

	e.actions(g, p, f, policy.ActionIn)
	e.line(1, "accept;")
	e.line(0, "}")
	e.blank()
}

func (e *emitter) exportFilter(g *policy.BGPGlobal, p *policy.BGPPeer, f policy.Family) {
	c := p.Constraints
	e.line(0, "filter f_%s_export {", p.ProtocolName(f))
	if p.Quarantine {
		e.line(1, "# quarantined")
		e.line(1, "reject;")
		e.line(0, "}")
		e.blank()
		return
	}

	if x := p.ExportFilter; x != nil {
		if len(x.OriginASNs) > 0 {
			e.line(1, "if bgp_path.last_nonaggregated ~ %s then reject;", set(asnItems(x.OriginASNs)))
		}
		if items := policy.PrefixPatternsFor(x.Prefixes, f); len(items) > 0 {
			e.line(1, "if net ~ %s then reject;", set(items))
		}
	}

	for _, rc := range policy.RouteClasses {
		if !p.Redistributes(rc) || !g.Exportable(rc) {
			continue
		}
		if rc.IsBlackhole() && !p.Type.BlackholeExportCapable() {
			continue
		}
		e.line(1, "if %s then {", rc.Condition(g.ASN, f))
		switch {
		case rc.IsBlackhole():
			minLen := byFamily(f, policy.BlackholeExportMinLen4, policy.BlackholeExportMinLen6)
			maxLen := byFamily(f, policy.BlackholeExportMaxLen4, policy.BlackholeExportMaxLen6)
			if check := lengthCheck(c, minLen, maxLen, false); check != "" {
				e.line(2, "%s", check)
			}
		case !rc.IsDefault():
			minLen := byFamily(f, policy.ExportMinLen4, policy.ExportMinLen6)
			maxLen := byFamily(f, policy.ExportMaxLen4, policy.ExportMaxLen6)
			if check := lengthCheck(c, minLen, maxLen, rc == policy.RouteClassBGP || rc == policy.RouteClassConnected); check != "" {
				e.line(2, "%s", check)
			}
		}
		if !rc.IsBGP() {
			if lc, ok := policy.TagCommunity(g.ASN, rc); ok {
				e.line(2, "bgp_large_community.add(%s);", lc)
			}
			if rc.IsBlackhole() {
				e.line(2, "bgp_community.add(%s);", policy.CommunityBlackhole)
			}
		}
		if p.ReplaceASPath && rc.IsBGP() {
			e.line(2, "bgp_path.empty;")
		}
		for i := 0; i < p.Prepend.For(rc); i++ {
			e.line(2, "bgp_path.prepend(%d);", g.ASN)
		}
		for _, comm := range p.OutgoingCommunities.For(rc) {
			e.line(2, "bgp_community.add(%s);", comm)
		}
		for _, lc := range p.OutgoingLargeCommunities.For(rc) {
			e.line(2, "bgp_large_community.add(%s);", lc)
		}
		if p.GracefulShutdown {
			e.line(2, "bgp_community.add(%s);", policy.CommunityGracefulShutdown)
		}
		e.actions(g, p, f, policy.ActionOut)
		e.line(2, "accept;")
		e.line(1, "}")
	}
	e.line(1, "reject;")
	e.line(0, "}")
	e.blank()
}

// matchCondition renders the conjunction of an action match, false when
// nothing of family f can match.
func matchCondition(m policy.ActionMatch, f policy.Family) (string, bool) {
	conds := []string{}
	if len(m.OriginASNs) > 0 {
		conds = append(conds, fmt.Sprintf("bgp_path.last_nonaggregated ~ %s", set(asnItems(m.OriginASNs))))
	}
	if len(m.Prefixes) > 0 {
		items := policy.PrefixPatternsFor(m.Prefixes, f)
		if len(items) == 0 {
			return "", false
		}
		conds = append(conds, fmt.Sprintf("net ~ %s", set(items)))
	}
	anyOf := func(values []string, attr string) {
		if len(values) == 0 {
			return
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, fmt.Sprintf("%s ~ %s", v, attr))
		}
		conds = append(conds, "("+strings.Join(parts, " || ")+")")
	}
	anyOf(stringsOf(m.Communities), "bgp_community")
	anyOf(stringsOf(m.ExtendedCommunities), "bgp_ext_community")
	anyOf(stringsOf(m.LargeCommunities), "bgp_large_community")
	return strings.Join(conds, " && "), true
}

func stringsOf[T fmt.Stringer](values []T) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.String())
	}
	return out
}

func (e *emitter) actions(g *policy.BGPGlobal, p *policy.BGPPeer, f policy.Family, dir policy.ActionDirection) {
	indent := 1
	if dir == policy.ActionOut {
		indent = 2
	}
	prependASN := g.ASN
	if dir == policy.ActionIn {
		prependASN = p.ASN
	}
	for _, a := range p.Actions {
		if a.Direction != dir {
			continue
		}
		cond, ok := matchCondition(a.Match, f)
		if !ok {
			continue
		}
		e.line(indent, "if %s then {", cond)
		for _, op := range a.Ops {
			e.actionOp(indent+1, op, prependASN)
		}
		e.line(indent, "}")
	}
}

func (e *emitter) actionOp(indent int, op policy.ActionOp, prependASN uint32) {
	modify := func(attr, method string, values []string) {
		for _, v := range values {
			e.line(indent, "%s.%s(%s);", attr, method, v)
		}
	}
	switch op.Kind {
	case policy.ActionReject:
		e.line(indent, "reject;")
	case policy.ActionAddCommunity:
		modify("bgp_community", "add", stringsOf(op.Communities))
	case policy.ActionRemoveCommunity:
		modify("bgp_community", "delete", stringsOf(op.Communities))
	case policy.ActionAddExtendedCommunity:
		modify("bgp_ext_community", "add", stringsOf(op.ExtendedCommunities))
	case policy.ActionRemoveExtendedCommunity:
		modify("bgp_ext_community", "delete", stringsOf(op.ExtendedCommunities))
	case policy.ActionAddLargeCommunity:
		modify("bgp_large_community", "add", stringsOf(op.LargeCommunities))
	case policy.ActionRemoveLargeCommunity:
		modify("bgp_large_community", "delete", stringsOf(op.LargeCommunities))
	case policy.ActionPrepend:
		for i := 0; i < op.Count; i++ {
			e.line(indent, "bgp_path.prepend(%d);", prependASN)
		}
	}
}

func (e *emitter) protocol(g *policy.BGPGlobal, p *policy.BGPPeer, f policy.Family) {
	name := p.ProtocolName(f)
	e.line(0, "protocol bgp %s {", name)
	e.line(1, "description %s;", quote(fmt.Sprintf("AS%d - %s", p.ASN, p.Description)))
	e.line(1, "local %s as %d;", p.SourceAddress(f), g.ASN)
	e.line(1, "neighbor %s as %d;", p.Neighbor(f), p.ASN)
	if p.Multihop != 0 {
		e.line(1, "multihop %d;", p.Multihop)
	}
	if p.Password != "" {
		e.line(1, "password %s;", quote(p.Password))
	}
	if p.Passive {
		e.line(1, "passive yes;")
	}
	if p.TTLSecurity {
		e.line(1, "ttl security yes;")
	}
	if p.ConnectDelayTime != 0 {
		e.line(1, "connect delay time %d;", p.ConnectDelayTime)
	}
	if p.ConnectRetryTime != 0 {
		e.line(1, "connect retry time %d;", p.ConnectRetryTime)
	}
	if len(p.ErrorWaitTime) == 2 {
		e.line(1, "error wait time %d, %d;", p.ErrorWaitTime[0], p.ErrorWaitTime[1])
	}
	if p.Type == policy.PeerTypeRRClient {
		e.line(1, "rr client;")
		e.line(1, "rr cluster id %s;", g.RRClusterID)
	}
	e.line(1, "%s {", channel(f))
	if p.Type.AcceptsImport() {
		e.line(2, "import filter f_%s_import;", name)
	} else {
		e.line(2, "import none;")
	}
	e.line(2, "export filter f_%s_export;", name)
	if limit := p.ResolvedPrefixLimit(f); limit != nil && p.Type.AcceptsImport() {
		e.line(2, "import limit %d action %s;", *limit, p.PrefixLimitAction)
	}
	if p.AddPaths != policy.AddPathsOff && p.AddPaths != "" {
		e.line(2, "add paths %s;", p.AddPaths)
	}
	e.line(1, "};")
	e.line(0, "}")
	e.blank()
}
