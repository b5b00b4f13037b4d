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

type PeerType string

const (
	PeerTypeCustomer         PeerType = "customer"
	PeerTypeCustomerPrivate  PeerType = "customer.private"
	PeerTypeInternal         PeerType = "internal"
	PeerTypePeer             PeerType = "peer"
	PeerTypeRouteCollector   PeerType = "routecollector"
	PeerTypeRouteServer      PeerType = "routeserver"
	PeerTypeRRClient         PeerType = "rrclient"
	PeerTypeRRServer         PeerType = "rrserver"
	PeerTypeRRServerRRServer PeerType = "rrserver-rrserver"
	PeerTypeTransit          PeerType = "transit"
)

var PeerTypes = []PeerType{
	PeerTypeCustomer,
	PeerTypeCustomerPrivate,
	PeerTypeInternal,
	PeerTypePeer,
	PeerTypeRouteCollector,
	PeerTypeRouteServer,
	PeerTypeRRClient,
	PeerTypeRRServer,
	PeerTypeRRServerRRServer,
	PeerTypeTransit,
}

func ParsePeerType(s string) (PeerType, error) {
	t := PeerType(s)
	if !slices.Contains(PeerTypes, t) {
		return "", fmt.Errorf("invalid peer type '%s'", s)
	}
	return t, nil
}

func (t PeerType) String() string {
	return string(t)
}

// IsInternal reports peer types living inside our own AS.
func (t PeerType) IsInternal() bool {
	switch t {
	case PeerTypeInternal, PeerTypeRRClient, PeerTypeRRServer, PeerTypeRRServerRRServer:
		return true
	}
	return false
}

func (t PeerType) IsCustomer() bool {
	return t == PeerTypeCustomer || t == PeerTypeCustomerPrivate
}

// AcceptsImport is false for peers we only ever send routes to.
func (t PeerType) AcceptsImport() bool {
	return t != PeerTypeRouteCollector
}

func (t PeerType) BlackholeImportCapable() bool {
	switch t {
	case PeerTypeCustomer, PeerTypeInternal, PeerTypeRRClient, PeerTypeRRServer, PeerTypeRRServerRRServer:
		return true
	}
	return false
}

func (t PeerType) BlackholeExportCapable() bool {
	switch t {
	case PeerTypeInternal, PeerTypeRouteServer, PeerTypeRouteCollector, PeerTypeRRClient,
		PeerTypeRRServer, PeerTypeRRServerRRServer, PeerTypeTransit:
		return true
	}
	return false
}

// RPKIByDefault lists the peer types which get route origin validation
// once an RPKI source is configured.
func (t PeerType) RPKIByDefault() bool {
	switch t {
	case PeerTypeCustomer, PeerTypePeer, PeerTypeRouteServer, PeerTypeTransit:
		return true
	}
	return false
}

// Relation is the third field of the relation large community routes
// learned from this peer type are tagged with, 0 when routes keep the tags
// they arrived with.
func (t PeerType) Relation() uint32 {
	switch t {
	case PeerTypeCustomer, PeerTypeCustomerPrivate:
		return RelationCustomer
	case PeerTypePeer:
		return RelationPeer
	case PeerTypeTransit:
		return RelationTransit
	case PeerTypeRouteServer:
		return RelationRouteServer
	}
	return 0
}
