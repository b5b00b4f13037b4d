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
	"github.com/birdplan/birdplan/pkg/policy"
)

var (
	ripKeys          = []string{"accept", "redistribute", "interfaces"}
	ripInterfaceKeys = []string{"metric", "update_time"}

	ospfKeys          = []string{"accept", "redistribute", "areas"}
	ospfAreaKeys      = []string{"interfaces"}
	ospfInterfaceKeys = []string{"cost", "ecmp_weight", "hello", "wait", "stub"}
)

// parseIGPAccept reads the accept section shared by RIP and OSPF, only
// the default route can be switched.
func parseIGPAccept(parent *section) (bool, error) {
	if !parent.has("accept") {
		return false, nil
	}
	s, err := parent.child("accept")
	if err != nil {
		return false, err
	}
	if err := s.checkKeys([]string{"default"}); err != nil {
		return false, err
	}
	if !s.has("default") {
		return false, nil
	}
	return s.boolean("default")
}

func parseIGPRedistribute(parent *section) (map[policy.RouteClass]bool, error) {
	out := map[policy.RouteClass]bool{}
	for _, rc := range policy.IGPRedistributeClasses {
		out[rc] = false
	}
	if !parent.has("redistribute") {
		return out, nil
	}
	s, err := parent.child("redistribute")
	if err != nil {
		return nil, err
	}
	if err := parseClassSwitches(s, policy.IGPRedistributeClasses, out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseRIP(root *section, doc *policy.Document) error {
	s, err := root.child("rip")
	if err != nil {
		return err
	}
	if err := s.checkKeys(ripKeys); err != nil {
		return err
	}
	rip := &policy.RIP{}
	if rip.AcceptDefault, err = parseIGPAccept(s); err != nil {
		return err
	}
	if rip.Redistribute, err = parseIGPRedistribute(s); err != nil {
		return err
	}
	if s.has("interfaces") {
		ifaces, err := s.child("interfaces")
		if err != nil {
			return err
		}
		if err := ifaces.checkKeys(nil); err != nil {
			return err
		}
		for _, name := range ifaces.keys() {
			is, err := ifaces.child(name)
			if err != nil {
				return err
			}
			if err := is.checkKeys(ripInterfaceKeys); err != nil {
				return err
			}
			iface := &policy.RIPInterface{Name: name}
			if is.has("metric") {
				if iface.Metric, err = is.integer("metric", 1, 16); err != nil {
					return err
				}
			}
			if is.has("update_time") {
				if iface.UpdateTime, err = is.integer("update_time", 1, 65535); err != nil {
					return err
				}
			}
			rip.Interfaces = append(rip.Interfaces, iface)
		}
	}
	doc.RIP = rip
	return nil
}

func parseOSPF(root *section, doc *policy.Document) error {
	s, err := root.child("ospf")
	if err != nil {
		return err
	}
	if err := s.checkKeys(ospfKeys); err != nil {
		return err
	}
	ospf := &policy.OSPF{}
	if ospf.AcceptDefault, err = parseIGPAccept(s); err != nil {
		return err
	}
	if ospf.Redistribute, err = parseIGPRedistribute(s); err != nil {
		return err
	}
	if s.has("areas") {
		areas, err := s.child("areas")
		if err != nil {
			return err
		}
		if err := areas.checkKeys(nil); err != nil {
			return err
		}
		for _, name := range areas.keys() {
			area, err := parseOSPFArea(areas, name)
			if err != nil {
				return err
			}
			ospf.Areas = append(ospf.Areas, area)
		}
	}
	doc.OSPF = ospf
	return nil
}

func parseOSPFArea(areas *section, name string) (*policy.OSPFArea, error) {
	s, err := areas.child(name)
	if err != nil {
		return nil, err
	}
	if err := s.checkKeys(ospfAreaKeys); err != nil {
		return nil, err
	}
	area := &policy.OSPFArea{Name: name}
	if !s.has("interfaces") {
		return area, nil
	}
	ifaces, err := s.child("interfaces")
	if err != nil {
		return nil, err
	}
	if err := ifaces.checkKeys(nil); err != nil {
		return nil, err
	}
	for _, ifname := range ifaces.keys() {
		is, err := ifaces.child(ifname)
		if err != nil {
			return nil, err
		}
		if err := is.checkKeys(ospfInterfaceKeys); err != nil {
			return nil, err
		}
		iface := &policy.OSPFInterface{Name: ifname, Cost: 10, ECMPWeight: 1}
		if is.has("cost") {
			if iface.Cost, err = is.integer("cost", 1, 65535); err != nil {
				return nil, err
			}
		}
		if is.has("ecmp_weight") {
			if iface.ECMPWeight, err = is.integer("ecmp_weight", 1, 256); err != nil {
				return nil, err
			}
		}
		if is.has("hello") {
			if iface.Hello, err = is.integer("hello", 1, 65535); err != nil {
				return nil, err
			}
		}
		if is.has("wait") {
			if iface.Wait, err = is.integer("wait", 1, 65535); err != nil {
				return nil, err
			}
		}
		if is.has("stub") {
			if iface.Stub, err = is.boolean("stub"); err != nil {
				return nil, err
			}
		}
		area.Interfaces = append(area.Interfaces, iface)
	}
	return area, nil
}
