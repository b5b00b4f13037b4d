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

package policy

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

var prefixRangeRe = regexp.MustCompile(`^\{(\d+),(\d+)\}$`)

// PrefixPattern is a BIRD prefix set entry: a prefix optionally followed by
// '+', '-' or a {min,max} length range.
type PrefixPattern struct {
	Prefix netip.Prefix
	Suffix string
}

func ParsePrefixPattern(s string) (PrefixPattern, error) {
	s = strings.TrimSpace(s)
	cidr, suffix := s, ""
	if i := strings.IndexAny(s, "+-{"); i >= 0 {
		cidr, suffix = s[:i], s[i:]
	}
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return PrefixPattern{}, fmt.Errorf("invalid prefix '%s'", s)
	}
	if p.Masked() != p {
		return PrefixPattern{}, fmt.Errorf("prefix '%s' has host bits set", s)
	}
	switch suffix {
	case "", "+", "-":
	default:
		m := prefixRangeRe.FindStringSubmatch(suffix)
		if m == nil {
			return PrefixPattern{}, fmt.Errorf("invalid prefix range in '%s'", s)
		}
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if lo < p.Bits() || hi < lo || hi > p.Addr().BitLen() {
			return PrefixPattern{}, fmt.Errorf("invalid prefix range in '%s'", s)
		}
	}
	return PrefixPattern{Prefix: p, Suffix: suffix}, nil
}

func (p PrefixPattern) Family() Family {
	if p.Prefix.Addr().Is4() {
		return IPv4
	}
	return IPv6
}

func (p PrefixPattern) String() string {
	return p.Prefix.String() + p.Suffix
}

// PrefixPatternsFor returns the rendered patterns of family f.
func PrefixPatternsFor(patterns []PrefixPattern, f Family) []string {
	out := []string{}
	for _, p := range patterns {
		if p.Family() == f {
			out = append(out, p.String())
		}
	}
	return out
}

// FilterPolicy restricts what is imported from a peer. ASSets are resolved
// through the IRR into additional origin ASNs and prefixes.
type FilterPolicy struct {
	Prefixes   []PrefixPattern
	OriginASNs []uint32
	PeerASNs   []uint32
	ASSets     []string
}

func (f *FilterPolicy) IsEmpty() bool {
	return f == nil || len(f.Prefixes) == 0 && len(f.OriginASNs) == 0 && len(f.PeerASNs) == 0 && len(f.ASSets) == 0
}

type DenyPolicy struct {
	ASPathASNs []uint32
	OriginASNs []uint32
	Prefixes   []PrefixPattern
}

type ExportFilter struct {
	OriginASNs []uint32
	Prefixes   []PrefixPattern
}

// ResolvedList keeps manually configured entries apart from those the IRR
// contributed.
type ResolvedList[T any] struct {
	Static []T `json:"static"`
	IRR    []T `json:"irr"`
}

func (l ResolvedList[T]) All() []T {
	out := make([]T, 0, len(l.Static)+len(l.IRR))
	out = append(out, l.Static...)
	return append(out, l.IRR...)
}

// ResolvedFilter is the import filter after IRR resolution. ASSets names
// the objects the IRR lists were resolved from and is empty when no IRR
// lookup took part.
type ResolvedFilter struct {
	ASSets     []string             `json:"as_sets,omitempty"`
	OriginASNs ResolvedList[uint32] `json:"origin_asns"`
	PeerASNs   ResolvedList[uint32] `json:"peer_asns"`
	Prefixes4  ResolvedList[string] `json:"prefixes4"`
	Prefixes6  ResolvedList[string] `json:"prefixes6"`
}

func (r *ResolvedFilter) Prefixes(f Family) ResolvedList[string] {
	if f == IPv6 {
		return r.Prefixes6
	}
	return r.Prefixes4
}

type ActionDirection string

const (
	ActionIn  ActionDirection = "in"
	ActionOut ActionDirection = "out"
)

type ActionKind string

const (
	ActionReject                  ActionKind = "reject"
	ActionAddCommunity            ActionKind = "add_community"
	ActionRemoveCommunity         ActionKind = "remove_community"
	ActionAddExtendedCommunity    ActionKind = "add_extended_community"
	ActionRemoveExtendedCommunity ActionKind = "remove_extended_community"
	ActionAddLargeCommunity       ActionKind = "add_large_community"
	ActionRemoveLargeCommunity    ActionKind = "remove_large_community"
	ActionPrepend                 ActionKind = "prepend"
)

// ActionKinds in the order operations are emitted.
var ActionKinds = []ActionKind{
	ActionReject,
	ActionRemoveCommunity,
	ActionRemoveExtendedCommunity,
	ActionRemoveLargeCommunity,
	ActionAddCommunity,
	ActionAddExtendedCommunity,
	ActionAddLargeCommunity,
	ActionPrepend,
}

// ActionMatch is a conjunction over the configured match types, each
// type matching when any of its values does.
type ActionMatch struct {
	OriginASNs          []uint32
	Prefixes            []PrefixPattern
	Communities         []Community
	ExtendedCommunities []ExtendedCommunity
	LargeCommunities    []LargeCommunity
}

type ActionOp struct {
	Kind                ActionKind
	Communities         []Community
	ExtendedCommunities []ExtendedCommunity
	LargeCommunities    []LargeCommunity
	Count               int
}

type Action struct {
	Direction ActionDirection
	Match     ActionMatch
	Ops       []ActionOp
}

// PrefixLimit is either a fixed value or taken from PeeringDB.
type PrefixLimit struct {
	Value     int
	PeeringDB bool
}

var PrefixLimitActions = []string{"block", "disable", "restart", "warn"}

type Location struct {
	ISO3166 int
	UNM49   int
}

type AddPaths string

const (
	AddPathsOff AddPaths = "off"
	AddPathsTx  AddPaths = "tx"
	AddPathsRx  AddPaths = "rx"
	AddPathsOn  AddPaths = "on"
)

func ParseAddPaths(s string) (AddPaths, error) {
	switch a := AddPaths(s); a {
	case AddPathsOff, AddPathsTx, AddPathsRx, AddPathsOn:
		return a, nil
	}
	return "", fmt.Errorf("invalid add_paths value '%s'", s)
}

// ClassCommunities are communities added on export, either to every route
// (All) or per route class.
type ClassCommunities[T any] struct {
	All     []T
	ByClass map[RouteClass][]T
}

// For returns the communities to add to routes of class rc.
func (c ClassCommunities[T]) For(rc RouteClass) []T {
	out := append([]T{}, c.All...)
	return append(out, c.ByClass[rc]...)
}

// ClassPrepend counts own ASN prepends on export.
type ClassPrepend struct {
	All     int
	ByClass map[RouteClass]int
}

func (p ClassPrepend) For(rc RouteClass) int {
	if n, ok := p.ByClass[rc]; ok {
		return n
	}
	return p.All
}
