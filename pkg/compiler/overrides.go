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
	"github.com/birdplan/birdplan/pkg/policy"
	"github.com/birdplan/birdplan/pkg/state"
)

// ApplyOverrides sets the effective graceful shutdown and quarantine flags
// of every peer and the effective OSPF interface values.
func ApplyOverrides(doc *policy.Document, st *state.Document) {
	if doc.BGP != nil {
		gs := st.BGPOverrides(state.GracefulShutdown)
		quarantine := st.BGPOverrides(state.Quarantine)
		for _, p := range doc.BGP.Peers {
			p.GracefulShutdown = state.ComputeEffective(gs, p.Name, p.GracefulShutdown)
			p.Quarantine = state.ComputeEffective(quarantine, p.Name, p.Quarantine)
		}
	}
	if doc.OSPF != nil {
		for _, a := range doc.OSPF.Areas {
			for _, i := range a.Interfaces {
				o := st.InterfaceOverride(a.Name, i.Name)
				if v := o.Get(state.Cost); v != nil {
					i.Cost = *v
				}
				if v := o.Get(state.ECMPWeight); v != nil {
					i.ECMPWeight = *v
				}
			}
		}
	}
}

// PendingBGP returns the effective value of namespace ns per peer of doc,
// overrides must already be applied.
func PendingBGP(doc *policy.Document, ns state.Namespace) map[string]bool {
	out := map[string]bool{}
	if doc.BGP == nil {
		return out
	}
	for _, p := range doc.BGP.Peers {
		if ns == state.Quarantine {
			out[p.Name] = p.Quarantine
		} else {
			out[p.Name] = p.GracefulShutdown
		}
	}
	return out
}

// PendingInterfaces returns the effective OSPF interface values of doc.
func PendingInterfaces(doc *policy.Document) map[string]map[string]*state.InterfaceValues {
	out := map[string]map[string]*state.InterfaceValues{}
	if doc.OSPF == nil {
		return out
	}
	for _, a := range doc.OSPF.Areas {
		out[a.Name] = map[string]*state.InterfaceValues{}
		for _, i := range a.Interfaces {
			cost, weight := i.Cost, i.ECMPWeight
			out[a.Name][i.Name] = &state.InterfaceValues{Cost: &cost, ECMPWeight: &weight}
		}
	}
	return out
}
