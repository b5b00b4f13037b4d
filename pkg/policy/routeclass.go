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
	"slices"
)

type Family int

const (
	IPv4 Family = 4
	IPv6 Family = 6
)

var Families = []Family{IPv4, IPv6}

func (f Family) String() string {
	return fmt.Sprintf("ipv%d", int(f))
}

// MaxLen is the address length in bits.
func (f Family) MaxLen() int {
	if f == IPv6 {
		return 128
	}
	return 32
}

// RouteClass classifies a route by where it came from.
type RouteClass string

const (
	RouteClassConnected            RouteClass = "connected"
	RouteClassKernel               RouteClass = "kernel"
	RouteClassKernelBlackhole      RouteClass = "kernel_blackhole"
	RouteClassKernelDefault        RouteClass = "kernel_default"
	RouteClassStatic               RouteClass = "static"
	RouteClassStaticBlackhole      RouteClass = "static_blackhole"
	RouteClassStaticDefault        RouteClass = "static_default"
	RouteClassOriginated           RouteClass = "originated"
	RouteClassOriginatedDefault    RouteClass = "originated_default"
	RouteClassBGP                  RouteClass = "bgp"
	RouteClassBGPOwn               RouteClass = "bgp_own"
	RouteClassBGPOwnBlackhole      RouteClass = "bgp_own_blackhole"
	RouteClassBGPOwnDefault        RouteClass = "bgp_own_default"
	RouteClassBGPCustomer          RouteClass = "bgp_customer"
	RouteClassBGPCustomerBlackhole RouteClass = "bgp_customer_blackhole"
	RouteClassBGPPeering           RouteClass = "bgp_peering"
	RouteClassBGPTransit           RouteClass = "bgp_transit"
	RouteClassBGPTransitDefault    RouteClass = "bgp_transit_default"
)

// RouteClasses is the canonical ordering used whenever output is generated.
var RouteClasses = []RouteClass{
	RouteClassConnected,
	RouteClassKernel,
	RouteClassKernelBlackhole,
	RouteClassKernelDefault,
	RouteClassStatic,
	RouteClassStaticBlackhole,
	RouteClassStaticDefault,
	RouteClassOriginated,
	RouteClassOriginatedDefault,
	RouteClassBGP,
	RouteClassBGPOwn,
	RouteClassBGPOwnBlackhole,
	RouteClassBGPOwnDefault,
	RouteClassBGPCustomer,
	RouteClassBGPCustomerBlackhole,
	RouteClassBGPPeering,
	RouteClassBGPTransit,
	RouteClassBGPTransitDefault,
}

// Key sets for the RouteClass keyed maps of the document.
var (
	PeerAcceptClasses = []RouteClass{
		RouteClassBGPCustomerBlackhole,
		RouteClassBGPOwnBlackhole,
		RouteClassBGPOwnDefault,
		RouteClassBGPTransitDefault,
	}
	GlobalAcceptClasses = []RouteClass{
		RouteClassBGPCustomerBlackhole,
		RouteClassBGPOwnBlackhole,
		RouteClassBGPOwnDefault,
		RouteClassBGPTransitDefault,
		RouteClassOriginated,
		RouteClassOriginatedDefault,
	}
	GlobalImportClasses = []RouteClass{
		RouteClassConnected,
		RouteClassKernel,
		RouteClassKernelBlackhole,
		RouteClassKernelDefault,
		RouteClassStatic,
		RouteClassStaticBlackhole,
		RouteClassStaticDefault,
	}
	IGPRedistributeClasses = []RouteClass{
		RouteClassConnected,
		RouteClassKernel,
		RouteClassKernelDefault,
		RouteClassStatic,
		RouteClassStaticDefault,
	}
)

// ParseRouteClass validates s against the allowed set, all classes when
// allowed is empty.
func ParseRouteClass(s string, allowed []RouteClass) (RouteClass, error) {
	if len(allowed) == 0 {
		allowed = RouteClasses
	}
	rc := RouteClass(s)
	if !slices.Contains(allowed, rc) {
		return "", fmt.Errorf("invalid route class '%s'", s)
	}
	return rc, nil
}

func (rc RouteClass) String() string {
	return string(rc)
}

func (rc RouteClass) IsBlackhole() bool {
	switch rc {
	case RouteClassKernelBlackhole, RouteClassStaticBlackhole, RouteClassBGPOwnBlackhole, RouteClassBGPCustomerBlackhole:
		return true
	}
	return false
}

func (rc RouteClass) IsDefault() bool {
	switch rc {
	case RouteClassKernelDefault, RouteClassStaticDefault, RouteClassOriginatedDefault,
		RouteClassBGPOwnDefault, RouteClassBGPTransitDefault:
		return true
	}
	return false
}

func (rc RouteClass) IsBGP() bool {
	return rc == RouteClassBGP || len(rc) > 4 && rc[:4] == "bgp_"
}

// Relation maps a class to the relation tag value of its origin, 0 for
// the catch-all bgp class.
func (rc RouteClass) Relation() uint32 {
	switch rc {
	case RouteClassBGP:
		return 0
	case RouteClassBGPCustomer, RouteClassBGPCustomerBlackhole:
		return RelationCustomer
	case RouteClassBGPPeering:
		return RelationPeer
	case RouteClassBGPTransit, RouteClassBGPTransitDefault:
		return RelationTransit
	}
	return RelationOwn
}

// ProtocolName returns the BIRD protocol a non BGP class originates from.
func (rc RouteClass) ProtocolName(f Family) string {
	switch rc {
	case RouteClassConnected:
		return fmt.Sprintf("direct%d", f)
	case RouteClassKernel, RouteClassKernelBlackhole, RouteClassKernelDefault:
		return fmt.Sprintf("kernel%d", f)
	case RouteClassStatic, RouteClassStaticBlackhole, RouteClassStaticDefault:
		return fmt.Sprintf("static%d", f)
	case RouteClassOriginated, RouteClassOriginatedDefault:
		return fmt.Sprintf("bgp_originate%d", f)
	}
	return ""
}

// Condition renders the BIRD filter expression selecting routes of this
// class for our ASN.
func (rc RouteClass) Condition(asn uint32, f Family) string {
	blackhole := fmt.Sprintf("%s ~ bgp_community", CommunityBlackhole)
	tagged := func(relation uint32) string {
		return fmt.Sprintf("%s ~ bgp_large_community", LargeCommunity{Global: asn, Data1: LCFunctionRelation, Data2: relation})
	}
	switch rc {
	case RouteClassConnected:
		return fmt.Sprintf("proto = \"%s\"", rc.ProtocolName(f))
	case RouteClassKernel, RouteClassStatic:
		return fmt.Sprintf("proto = \"%s\" && dest != RTD_BLACKHOLE && net.len != 0", rc.ProtocolName(f))
	case RouteClassKernelBlackhole, RouteClassStaticBlackhole:
		return fmt.Sprintf("proto = \"%s\" && dest = RTD_BLACKHOLE", rc.ProtocolName(f))
	case RouteClassKernelDefault, RouteClassStaticDefault:
		return fmt.Sprintf("proto = \"%s\" && dest != RTD_BLACKHOLE && net.len = 0", rc.ProtocolName(f))
	case RouteClassOriginated:
		return fmt.Sprintf("proto = \"%s\" && net.len != 0", rc.ProtocolName(f))
	case RouteClassOriginatedDefault:
		return fmt.Sprintf("proto = \"%s\" && net.len = 0", rc.ProtocolName(f))
	case RouteClassBGP:
		return "source = RTS_BGP"
	case RouteClassBGPOwn, RouteClassBGPCustomer:
		return fmt.Sprintf("source = RTS_BGP && %s && !(%s) && net.len != 0", tagged(rc.Relation()), blackhole)
	case RouteClassBGPOwnBlackhole, RouteClassBGPCustomerBlackhole:
		return fmt.Sprintf("source = RTS_BGP && %s && %s", tagged(rc.Relation()), blackhole)
	case RouteClassBGPOwnDefault, RouteClassBGPTransitDefault:
		return fmt.Sprintf("source = RTS_BGP && %s && net.len = 0", tagged(rc.Relation()))
	case RouteClassBGPPeering:
		return fmt.Sprintf("source = RTS_BGP && (%s || %s) && net.len != 0", tagged(RelationPeer), tagged(RelationRouteServer))
	case RouteClassBGPTransit:
		return fmt.Sprintf("source = RTS_BGP && %s && net.len != 0", tagged(RelationTransit))
	}
	return "false"
}
