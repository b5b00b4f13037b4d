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

package state

import (
	"fmt"
	"path"
	"strings"

	"github.com/birdplan/birdplan/pkg/errdefs"
	"github.com/birdplan/birdplan/pkg/log"
	"github.com/birdplan/birdplan/pkg/utils"
)

// Namespace selects a peer flag that can be overridden by pattern.
type Namespace string

const (
	GracefulShutdown Namespace = "graceful_shutdown"
	Quarantine       Namespace = "quarantine"
)

var Namespaces = []Namespace{GracefulShutdown, Quarantine}

func ParseNamespace(s string) (Namespace, error) {
	for _, ns := range Namespaces {
		if string(ns) == s {
			return ns, nil
		}
	}
	return "", fmt.Errorf("invalid override namespace '%s'", s)
}

// InterfaceAttribute selects an OSPF interface value that can be
// overridden.
type InterfaceAttribute string

const (
	Cost       InterfaceAttribute = "cost"
	ECMPWeight InterfaceAttribute = "ecmp_weight"
)

func (a InterfaceAttribute) limits() (int, int) {
	if a == ECMPWeight {
		return 1, 256
	}
	return 1, 65535
}

func (v *InterfaceValues) field(a InterfaceAttribute) **int {
	if a == ECMPWeight {
		return &v.ECMPWeight
	}
	return &v.Cost
}

// Get returns the value of attribute a, nil when unset.
func (v *InterfaceValues) Get(a InterfaceAttribute) *int {
	if v == nil {
		return nil
	}
	return *v.field(a)
}

// MatchOverride finds the override applying to name. The longest matching
// pattern wins, equally long patterns are ordered lexically and the last
// one wins.
func MatchOverride[T any](overrides map[string]T, name string) (T, bool) {
	var zero T
	best := ""
	found := false
	for _, pattern := range utils.SortedKeys(overrides) {
		if !utils.GlobMatch(pattern, name) {
			continue
		}
		if !found || len(pattern) >= len(best) {
			best, found = pattern, true
		}
	}
	if !found {
		return zero, false
	}
	return overrides[best], true
}

// ComputeEffective returns the override for name if any pattern matches,
// otherwise the configured value.
func ComputeEffective[T any](overrides map[string]T, name string, configured T) T {
	if v, ok := MatchOverride(overrides, name); ok {
		return v
	}
	return configured
}

func (b *BGPState) overrides(ns Namespace) *map[string]bool {
	if ns == Quarantine {
		return &b.QuarantineOverrides
	}
	return &b.GracefulShutdownOverrides
}

// BGPOverrides returns the patterns of namespace ns, never nil.
func (d *Document) BGPOverrides(ns Namespace) map[string]bool {
	out := map[string]bool{}
	if d == nil || d.BGP == nil {
		return out
	}
	for k, v := range *d.BGP.overrides(ns) {
		out[k] = v
	}
	return out
}

func validPattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return errdefs.NewUsageError("override pattern must not be empty")
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return errdefs.NewUsageError("invalid override pattern '%s'", pattern)
	}
	return nil
}

// SetBGPOverride upserts pattern in namespace ns.
func (s *Store) SetBGPOverride(ns Namespace, pattern string, value bool) error {
	if err := s.requirePath(fmt.Sprintf("setting a %s override", ns)); err != nil {
		return err
	}
	if err := validPattern(pattern); err != nil {
		return err
	}
	if s.doc.BGP == nil {
		s.doc.BGP = &BGPState{}
	}
	m := s.doc.BGP.overrides(ns)
	if *m == nil {
		*m = map[string]bool{}
	}
	(*m)[pattern] = value
	s.logger.Info("Set override", log.Fields{
		"Topic":     "state",
		"Namespace": ns,
		"Pattern":   pattern,
		"Value":     value,
	})
	return nil
}

// RemoveBGPOverride deletes pattern from namespace ns and prunes empty
// containers.
func (s *Store) RemoveBGPOverride(ns Namespace, pattern string) error {
	if err := s.requirePath(fmt.Sprintf("removing a %s override", ns)); err != nil {
		return err
	}
	if s.doc.BGP == nil {
		return errdefs.NewNotFoundError(fmt.Sprintf("%s override", ns), pattern)
	}
	m := s.doc.BGP.overrides(ns)
	if _, ok := (*m)[pattern]; !ok {
		return errdefs.NewNotFoundError(fmt.Sprintf("%s override", ns), pattern)
	}
	delete(*m, pattern)
	s.doc.pruneBGP()
	s.logger.Info("Removed override", log.Fields{
		"Topic":     "state",
		"Namespace": ns,
		"Pattern":   pattern,
	})
	return nil
}

// BGPStatus is the three way view of a peer flag.
type BGPStatus struct {
	Overrides map[string]bool `json:"overrides,omitempty"`
	Current   map[string]bool `json:"current"`
	Pending   map[string]bool `json:"pending"`
}

// IsNew reports a peer that is pending but was never applied.
func (st *BGPStatus) IsNew(peer string) bool {
	_, ok := st.Current[peer]
	return !ok
}

// Status combines the overrides and the applied values of namespace ns
// with pending, the effective values of the freshly compiled model.
func (s *Store) Status(ns Namespace, pending map[string]bool) (*BGPStatus, error) {
	if err := s.requirePath(fmt.Sprintf("showing %s status", ns)); err != nil {
		return nil, err
	}
	st := &BGPStatus{
		Current: map[string]bool{},
		Pending: map[string]bool{},
	}
	if o := s.doc.BGPOverrides(ns); len(o) > 0 {
		st.Overrides = o
	}
	if s.doc.BGP != nil {
		for name, p := range s.doc.BGP.Peers {
			if ns == Quarantine {
				st.Current[name] = p.Quarantine
			} else {
				st.Current[name] = p.GracefulShutdown
			}
		}
	}
	for name, v := range pending {
		st.Pending[name] = v
	}
	return st, nil
}

// InterfaceOverrides returns the OSPF interface overrides as
// area -> interface -> values, never nil.
func (d *Document) InterfaceOverrides() map[string]map[string]*InterfaceValues {
	out := map[string]map[string]*InterfaceValues{}
	if d.OSPF == nil {
		return out
	}
	for name, a := range d.OSPF.Areas {
		if len(a.InterfaceOverrides) == 0 {
			continue
		}
		out[name] = map[string]*InterfaceValues{}
		for iface, v := range a.InterfaceOverrides {
			c := *v
			out[name][iface] = &c
		}
	}
	return out
}

// InterfaceOverride returns the override of one interface, nil if none.
func (d *Document) InterfaceOverride(area, iface string) *InterfaceValues {
	if d == nil || d.OSPF == nil {
		return nil
	}
	a := d.OSPF.area(area, false)
	if a == nil {
		return nil
	}
	return a.InterfaceOverrides[iface]
}

func (s *Store) SetInterfaceOverride(area, iface string, attr InterfaceAttribute, value int) error {
	if err := s.requirePath(fmt.Sprintf("setting an OSPF interface %s override", attr)); err != nil {
		return err
	}
	if area == "" || iface == "" {
		return errdefs.NewUsageError("area and interface must not be empty")
	}
	if lo, hi := attr.limits(); value < lo || value > hi {
		return errdefs.NewUsageError("OSPF interface %s %d out of range %d..%d", attr, value, lo, hi)
	}
	if s.doc.OSPF == nil {
		s.doc.OSPF = &OSPFState{}
	}
	a := s.doc.OSPF.area(area, true)
	if a.InterfaceOverrides == nil {
		a.InterfaceOverrides = map[string]*InterfaceValues{}
	}
	v, ok := a.InterfaceOverrides[iface]
	if !ok {
		v = &InterfaceValues{}
		a.InterfaceOverrides[iface] = v
	}
	*v.field(attr) = &value
	s.logger.Info("Set OSPF interface override", log.Fields{
		"Topic":     "state",
		"Area":      area,
		"Interface": iface,
		"Attribute": attr,
		"Value":     value,
	})
	return nil
}

func (s *Store) RemoveInterfaceOverride(area, iface string, attr InterfaceAttribute) error {
	if err := s.requirePath(fmt.Sprintf("removing an OSPF interface %s override", attr)); err != nil {
		return err
	}
	v := s.doc.InterfaceOverride(area, iface)
	if v.Get(attr) == nil {
		return errdefs.NewNotFoundError(fmt.Sprintf("OSPF interface %s override", attr), area+":"+iface)
	}
	*v.field(attr) = nil
	s.doc.pruneOSPF()
	s.logger.Info("Removed OSPF interface override", log.Fields{
		"Topic":     "state",
		"Area":      area,
		"Interface": iface,
		"Attribute": attr,
	})
	return nil
}

type InterfaceStatus struct {
	Overrides map[string]map[string]*InterfaceValues `json:"overrides,omitempty"`
	Current   map[string]map[string]*InterfaceValues `json:"current"`
	Pending   map[string]map[string]*InterfaceValues `json:"pending"`
}

// InterfaceStatus is the three way view of OSPF interface values, pending
// being the values of the freshly compiled model.
func (s *Store) InterfaceStatus(pending map[string]map[string]*InterfaceValues) (*InterfaceStatus, error) {
	if err := s.requirePath("showing OSPF interface status"); err != nil {
		return nil, err
	}
	st := &InterfaceStatus{
		Current: map[string]map[string]*InterfaceValues{},
		Pending: pending,
	}
	if st.Pending == nil {
		st.Pending = map[string]map[string]*InterfaceValues{}
	}
	if o := s.doc.InterfaceOverrides(); len(o) > 0 {
		st.Overrides = o
	}
	if s.doc.OSPF != nil {
		for name, a := range s.doc.OSPF.Areas {
			if len(a.Interfaces) == 0 {
				continue
			}
			st.Current[name] = map[string]*InterfaceValues{}
			for iface, v := range a.Interfaces {
				c := *v
				st.Current[name][iface] = &c
			}
		}
	}
	return st, nil
}
