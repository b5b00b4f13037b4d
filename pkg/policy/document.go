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
)

// Document is the validated policy document.
type Document struct {
	RouterID     netip.Addr
	LogFile      string
	Debug        bool
	Kernel       *Kernel
	Static       []StaticRoute
	ExportKernel ExportKernel
	RIP          *RIP
	OSPF         *OSPF
	BGP          *BGPGlobal
}

type Kernel struct {
	VRF          string
	RoutingTable int
}

// StaticRoute is a prefix followed by the BIRD route attributes, e.g.
// "via 192.0.2.1" or "blackhole".
type StaticRoute struct {
	Prefix     netip.Prefix
	Attributes string
}

func (r StaticRoute) Family() Family {
	if r.Prefix.Addr().Is4() {
		return IPv4
	}
	return IPv6
}

// StaticRoutesFor filters routes of family f.
func StaticRoutesFor(routes []StaticRoute, f Family) []StaticRoute {
	out := []StaticRoute{}
	for _, r := range routes {
		if r.Family() == f {
			out = append(out, r)
		}
	}
	return out
}

// ExportKernel selects the protocols whose routes end up in the kernel FIB.
type ExportKernel struct {
	Static bool
	RIP    bool
	OSPF   bool
	BGP    bool
}

func DefaultExportKernel() ExportKernel {
	return ExportKernel{Static: true, RIP: true, OSPF: true, BGP: true}
}

type RIP struct {
	AcceptDefault bool
	Redistribute  map[RouteClass]bool
	Interfaces    []*RIPInterface
}

type RIPInterface struct {
	Name       string
	Metric     int
	UpdateTime int
}

type OSPF struct {
	AcceptDefault bool
	Redistribute  map[RouteClass]bool
	Areas         []*OSPFArea
}

type OSPFArea struct {
	Name       string
	Interfaces []*OSPFInterface
}

type OSPFInterface struct {
	Name       string
	Cost       int
	ECMPWeight int
	Hello      int
	Wait       int
	Stub       bool
}

// Interface returns the named interface of the area, nil when absent.
func (a *OSPFArea) Interface(name string) *OSPFInterface {
	for _, i := range a.Interfaces {
		if i.Name == name {
			return i
		}
	}
	return nil
}

const DefaultRPKIPort = 323

type RPKISource struct {
	Scheme string
	Host   string
	Port   int
}

func (s *RPKISource) String() string {
	return fmt.Sprintf("%s://%s:%d", s.Scheme, s.Host, s.Port)
}

type BGPGlobal struct {
	ASN                 uint32
	RRClusterID         string
	GracefulShutdown    bool
	Quarantine          bool
	RPKISource          *RPKISource
	Accept              map[RouteClass]bool
	Import              map[RouteClass]bool
	Originate           []StaticRoute
	PeerTypeConstraints map[PeerType]ConstraintSet
	Peers               []*BGPPeer
}

func NewBGPGlobal() *BGPGlobal {
	g := &BGPGlobal{
		Accept:              map[RouteClass]bool{},
		Import:              map[RouteClass]bool{},
		PeerTypeConstraints: map[PeerType]ConstraintSet{},
	}
	for _, rc := range GlobalAcceptClasses {
		g.Accept[rc] = false
	}
	g.Accept[RouteClassOriginated] = true
	for _, rc := range GlobalImportClasses {
		g.Import[rc] = false
	}
	return g
}

func (g *BGPGlobal) Peer(name string) *BGPPeer {
	for _, p := range g.Peers {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Exportable reports whether routes of class rc can reach the BGP export
// filters at all given the global accept and import switches.
func (g *BGPGlobal) Exportable(rc RouteClass) bool {
	if v, ok := g.Import[rc]; ok {
		return v
	}
	if v, ok := g.Accept[rc]; ok {
		return v
	}
	return true
}
