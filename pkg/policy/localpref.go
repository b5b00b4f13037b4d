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

import "fmt"

// Local preference bases per peer type. The own value is what routes we
// originate carry inside our AS.
const (
	LocalPrefOwn         = 950
	LocalPrefCustomer    = 750
	LocalPrefPeer        = 470
	LocalPrefRouteServer = 450
	LocalPrefTransit     = 150
)

// BaseLocalPreference returns the local preference routes from a peer of
// type t start from before the peer cost is applied.
func BaseLocalPreference(t PeerType) int {
	switch t {
	case PeerTypeCustomer, PeerTypeCustomerPrivate:
		return LocalPrefCustomer
	case PeerTypeInternal, PeerTypePeer, PeerTypeRRClient, PeerTypeRRServer, PeerTypeRRServerRRServer:
		return LocalPrefPeer
	case PeerTypeRouteServer, PeerTypeRouteCollector:
		return LocalPrefRouteServer
	case PeerTypeTransit:
		return LocalPrefTransit
	}
	return 0
}

// ComputeLocalPreference returns the base preference of t minus cost.
func ComputeLocalPreference(t PeerType, cost int) (int, error) {
	pref := BaseLocalPreference(t) - cost
	if pref < 0 {
		return 0, fmt.Errorf("cost %d exceeds the base local preference %d of peer type '%s'", cost, BaseLocalPreference(t), t)
	}
	return pref, nil
}

// TagCommunity returns the relation large community marking routes of
// class rc for asn. The catch-all bgp class carries no tag.
func TagCommunity(asn uint32, rc RouteClass) (LargeCommunity, bool) {
	relation := rc.Relation()
	if relation == 0 {
		return LargeCommunity{}, false
	}
	return LargeCommunity{Global: asn, Data1: LCFunctionRelation, Data2: relation}, true
}

// PeerTagCommunity returns the relation community routes imported from a
// peer of type t are tagged with.
func PeerTagCommunity(asn uint32, t PeerType) (LargeCommunity, bool) {
	relation := t.Relation()
	if relation == 0 {
		return LargeCommunity{}, false
	}
	return LargeCommunity{Global: asn, Data1: LCFunctionRelation, Data2: relation}, true
}
