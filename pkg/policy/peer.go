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
	"strings"

	"github.com/birdplan/birdplan/pkg/errdefs"
)

var peerNameRe = regexp.MustCompile(`^[a-z0-9]+$`)

func ValidPeerName(name string) bool {
	return peerNameRe.MatchString(name)
}

type BGPPeer struct {
	Name        string
	Description string
	ASN         uint32
	Type        PeerType

	Neighbor4      netip.Addr
	Neighbor6      netip.Addr
	SourceAddress4 netip.Addr
	SourceAddress6 netip.Addr

	Multihop         int
	ConnectDelayTime int
	ConnectRetryTime int
	ErrorWaitTime    []int
	Password         string
	TTLSecurity      bool
	Passive          bool

	Cost               int
	GracefulShutdown   bool
	Quarantine         bool
	AddPaths           AddPaths
	PrefixLimit4       *PrefixLimit
	PrefixLimit6       *PrefixLimit
	PrefixLimitAction  string
	Location           *Location
	BlackholeCommunity bool
	UseRPKI            bool
	ReplaceASPath      bool

	Accept                   map[RouteClass]bool
	Redistribute             map[RouteClass]bool
	OutgoingCommunities      ClassCommunities[Community]
	OutgoingLargeCommunities ClassCommunities[LargeCommunity]
	Prepend                  ClassPrepend
	Constraints              ConstraintSet

	ImportFilter     *FilterPolicy
	ImportFilterDeny *DenyPolicy
	ExportFilter     *ExportFilter
	Actions          []Action

	// Set by the compiler once external data is resolved.
	ResolvedFilter       *ResolvedFilter
	ResolvedPrefixLimit4 *int
	ResolvedPrefixLimit6 *int
}

func (p *BGPPeer) Neighbor(f Family) netip.Addr {
	if f == IPv6 {
		return p.Neighbor6
	}
	return p.Neighbor4
}

func (p *BGPPeer) SourceAddress(f Family) netip.Addr {
	if f == IPv6 {
		return p.SourceAddress6
	}
	return p.SourceAddress4
}

func (p *BGPPeer) HasFamily(f Family) bool {
	return p.Neighbor(f).IsValid()
}

func (p *BGPPeer) PrefixLimit(f Family) *PrefixLimit {
	if f == IPv6 {
		return p.PrefixLimit6
	}
	return p.PrefixLimit4
}

func (p *BGPPeer) ResolvedPrefixLimit(f Family) *int {
	if f == IPv6 {
		return p.ResolvedPrefixLimit6
	}
	return p.ResolvedPrefixLimit4
}

// ProtocolName is the BIRD protocol name of the session for family f.
func (p *BGPPeer) ProtocolName(f Family) string {
	return fmt.Sprintf("bgp%d_%s", f, p.Name)
}

func (p *BGPPeer) LocalPreference() int {
	// validated when the peer was built
	pref, _ := ComputeLocalPreference(p.Type, p.Cost)
	return pref
}

func (p *BGPPeer) Accepts(rc RouteClass) bool {
	return p.Accept[rc]
}

func (p *BGPPeer) Redistributes(rc RouteClass) bool {
	return p.Redistribute[rc]
}

// DefaultRedistribute is what a peer of type t is sent unless its
// redistribute section says otherwise.
func DefaultRedistribute(t PeerType) map[RouteClass]bool {
	var classes []RouteClass
	switch t {
	case PeerTypeCustomer, PeerTypeCustomerPrivate, PeerTypeRouteCollector:
		classes = []RouteClass{RouteClassOriginated, RouteClassBGPOwn, RouteClassBGPCustomer, RouteClassBGPPeering, RouteClassBGPTransit}
	case PeerTypePeer, PeerTypeRouteServer, PeerTypeTransit:
		classes = []RouteClass{RouteClassOriginated, RouteClassBGPOwn, RouteClassBGPCustomer}
	default:
		classes = []RouteClass{
			RouteClassOriginated, RouteClassOriginatedDefault,
			RouteClassStatic, RouteClassStaticBlackhole, RouteClassStaticDefault,
			RouteClassBGPOwn, RouteClassBGPOwnBlackhole, RouteClassBGPOwnDefault,
			RouteClassBGPCustomer, RouteClassBGPCustomerBlackhole,
			RouteClassBGPPeering, RouteClassBGPTransit, RouteClassBGPTransitDefault,
		}
	}
	out := map[RouteClass]bool{}
	for _, rc := range RouteClasses {
		out[rc] = false
	}
	for _, rc := range classes {
		out[rc] = true
	}
	return out
}

func acceptValidFor(rc RouteClass, t PeerType) bool {
	if t.IsInternal() {
		return true
	}
	switch rc {
	case RouteClassBGPCustomerBlackhole:
		return t == PeerTypeCustomer
	case RouteClassBGPTransitDefault:
		return t == PeerTypeTransit
	}
	return false
}

// PeerBuilder collects the fields of a peer while its section is parsed
// and validates them once in Build.
type PeerBuilder struct {
	Peer    *BGPPeer
	Path    []string
	RawType string

	present          map[string]bool
	useRPKI          *bool
	gracefulShutdown *bool
	quarantine       *bool
	redistribute     map[RouteClass]bool
	constraints      ConstraintSet
}

func NewPeerBuilder(name string, path []string) *PeerBuilder {
	return &PeerBuilder{
		Peer: &BGPPeer{
			Name:              name,
			AddPaths:          AddPathsOff,
			PrefixLimitAction: "restart",
			Accept:            map[RouteClass]bool{},
		},
		Path:         path,
		present:      map[string]bool{},
		redistribute: map[RouteClass]bool{},
		constraints:  ConstraintSet{},
	}
}

// Mark records that key was present in the peer section.
func (b *PeerBuilder) Mark(key string) {
	b.present[key] = true
}

func (b *PeerBuilder) Has(key string) bool {
	return b.present[key]
}

func (b *PeerBuilder) SetUseRPKI(v bool) {
	b.useRPKI = &v
}

func (b *PeerBuilder) SetGracefulShutdown(v bool) {
	b.gracefulShutdown = &v
}

func (b *PeerBuilder) SetQuarantine(v bool) {
	b.quarantine = &v
}

func (b *PeerBuilder) SetRedistribute(rc RouteClass, v bool) {
	b.redistribute[rc] = v
}

func (b *PeerBuilder) SetConstraint(c Constraint, v int) {
	b.constraints[c] = v
}

func (b *PeerBuilder) fail(key string, format string, args ...interface{}) error {
	path := append(append([]string{}, b.Path...), key)
	if key == "" {
		path = b.Path
	}
	return errdefs.NewConfigError(path, format, args...)
}

// Build validates the collected peer against the global BGP section.
func (b *PeerBuilder) Build(g *BGPGlobal) (*BGPPeer, error) {
	p := b.Peer

	missing := []string{}
	for _, key := range []string{"asn", "type", "description"} {
		if !b.present[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, b.fail("", "missing required field(s): %s", strings.Join(missing, ", "))
	}

	t, err := ParsePeerType(b.RawType)
	if err != nil {
		return nil, b.fail("type", "%v", err)
	}
	p.Type = t

	if t == PeerTypeRRClient && g.RRClusterID == "" {
		return nil, b.fail("type", "peer type 'rrclient' requires 'rr_cluster_id' in the bgp section")
	}

	if t == PeerTypeCustomer && p.ImportFilter.IsEmpty() {
		return nil, b.fail("import_filter", "'import_filter' is required for peer type '%s'", t)
	}

	if !p.Neighbor4.IsValid() && !p.Neighbor6.IsValid() {
		return nil, b.fail("", "at least one of 'neighbor4' or 'neighbor6' must be set")
	}
	for _, f := range Families {
		neighbor, source := p.Neighbor(f).IsValid(), p.SourceAddress(f).IsValid()
		if neighbor && !source {
			return nil, b.fail(fmt.Sprintf("source_address%d", f), "'source_address%d' must be set when 'neighbor%d' is set", f, f)
		}
		if source && !neighbor {
			return nil, b.fail(fmt.Sprintf("neighbor%d", f), "'neighbor%d' must be set when 'source_address%d' is set", f, f)
		}
	}

	if b.useRPKI != nil {
		if *b.useRPKI && g.RPKISource == nil {
			return nil, b.fail("use_rpki", "'use_rpki' requires 'rpki_source' in the bgp section")
		}
		p.UseRPKI = *b.useRPKI
	} else {
		p.UseRPKI = g.RPKISource != nil && t.RPKIByDefault()
	}

	if t.IsInternal() && p.ASN != g.ASN {
		return nil, b.fail("asn", "peer type '%s' requires our own ASN %d, got %d", t, g.ASN, p.ASN)
	}
	if !t.IsInternal() && p.ASN == g.ASN {
		return nil, b.fail("asn", "peer type '%s' cannot use our own ASN %d", t, g.ASN)
	}

	for _, rc := range PeerAcceptClasses {
		if p.Accept[rc] && !acceptValidFor(rc, t) {
			return nil, b.fail("accept", "'%s' cannot be accepted from peer type '%s'", rc, t)
		}
	}

	p.Redistribute = DefaultRedistribute(t)
	for rc, v := range b.redistribute {
		if v && rc.IsBlackhole() {
			if !t.BlackholeExportCapable() {
				return nil, b.fail("redistribute", "'%s' cannot be redistributed to peer type '%s'", rc, t)
			}
			if !t.IsInternal() && !p.BlackholeCommunity {
				return nil, b.fail("redistribute", "'%s' requires 'blackhole_community' to be enabled", rc)
			}
		}
		p.Redistribute[rc] = v
	}

	cs, err := ResolveConstraints(t, g.PeerTypeConstraints[t], b.constraints)
	if err != nil {
		return nil, b.fail("constraints", "%v", err)
	}
	p.Constraints = cs

	if _, err := ComputeLocalPreference(t, p.Cost); err != nil {
		return nil, b.fail("cost", "%v", err)
	}

	if !t.AcceptsImport() {
		for _, a := range p.Actions {
			if a.Direction == ActionIn {
				return nil, b.fail("actions", "peer type '%s' does not import routes", t)
			}
		}
	}

	p.GracefulShutdown = g.GracefulShutdown
	if b.gracefulShutdown != nil {
		p.GracefulShutdown = *b.gracefulShutdown
	}
	p.Quarantine = g.Quarantine
	if b.quarantine != nil {
		p.Quarantine = *b.quarantine
	}
	return p, nil
}
