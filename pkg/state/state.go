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

// Package state keeps the persisted operational state: what the last
// successful configure run applied, the resolved external data it used and
// the operator overrides layered on top of the policy document.
package state

import (
	"encoding/json"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/birdplan/birdplan/pkg/errdefs"
	"github.com/birdplan/birdplan/pkg/log"
	"github.com/birdplan/birdplan/pkg/peeringdb"
	"github.com/birdplan/birdplan/pkg/policy"
)

const (
	FileMode = 0o660
	// Owner of the state file when running with enough privileges.
	ServiceUser = "birdplan"
)

type Document struct {
	ConfigFingerprint string     `json:"config_fingerprint,omitempty"`
	BGP               *BGPState  `json:"bgp,omitempty"`
	OSPF              *OSPFState `json:"ospf,omitempty"`
}

type BGPState struct {
	Peers map[string]*PeerState `json:"peers,omitempty"`

	GracefulShutdownOverrides map[string]bool `json:"+graceful_shutdown,omitempty"`
	QuarantineOverrides       map[string]bool `json:"+quarantine,omitempty"`
}

// PeerState is what was applied to a peer by the last configure run.
type PeerState struct {
	ASN              uint32                    `json:"asn"`
	Description      string                    `json:"description"`
	Type             string                    `json:"type,omitempty"`
	Protocols        map[string]*ProtocolState `json:"protocols,omitempty"`
	GracefulShutdown bool                      `json:"graceful_shutdown"`
	Quarantine       bool                      `json:"quarantine"`
	PrefixLimit      *PrefixLimitState         `json:"prefix_limit,omitempty"`
	FilterPolicy     *policy.ResolvedFilter    `json:"filter_policy,omitempty"`
}

type ProtocolState struct {
	Name     string `json:"name"`
	Neighbor string `json:"neighbor"`
}

type PrefixLimitState struct {
	PeeringDB *peeringdb.PrefixLimits `json:"peeringdb,omitempty"`
}

type OSPFState struct {
	Areas map[string]*OSPFAreaState `json:"areas,omitempty"`
}

type OSPFAreaState struct {
	InterfaceOverrides map[string]*InterfaceValues `json:"+interfaces,omitempty"`
	Interfaces         map[string]*InterfaceValues `json:"interfaces,omitempty"`
}

type InterfaceValues struct {
	Cost       *int `json:"cost,omitempty"`
	ECMPWeight *int `json:"ecmp_weight,omitempty"`
}

func (v *InterfaceValues) IsEmpty() bool {
	return v == nil || v.Cost == nil && v.ECMPWeight == nil
}

// Peer returns the recorded state of a peer, nil if it was never applied.
func (d *Document) Peer(name string) *PeerState {
	if d == nil || d.BGP == nil {
		return nil
	}
	return d.BGP.Peers[name]
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{}
	data, err := json.Marshal(d)
	if err == nil {
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		// every field is plain data
		panic(err)
	}
	return out
}

// Record replaces the applied part of the document with what doc
// describes. Overrides are left alone.
func (d *Document) Record(doc *policy.Document, fingerprint string) {
	d.ConfigFingerprint = fingerprint
	d.recordBGP(doc.BGP)
	d.recordOSPF(doc.OSPF)
}

func (d *Document) recordBGP(g *policy.BGPGlobal) {
	peers := map[string]*PeerState{}
	if g != nil {
		for _, p := range g.Peers {
			peers[p.Name] = newPeerState(p)
		}
	}
	if d.BGP == nil {
		if len(peers) == 0 {
			return
		}
		d.BGP = &BGPState{}
	}
	d.BGP.Peers = peers
	if len(peers) == 0 {
		d.BGP.Peers = nil
	}
	d.pruneBGP()
}

func newPeerState(p *policy.BGPPeer) *PeerState {
	ps := &PeerState{
		ASN:              p.ASN,
		Description:      p.Description,
		Type:             p.Type.String(),
		Protocols:        map[string]*ProtocolState{},
		GracefulShutdown: p.GracefulShutdown,
		Quarantine:       p.Quarantine,
		FilterPolicy:     p.ResolvedFilter,
	}
	var pdb *peeringdb.PrefixLimits
	for _, f := range policy.Families {
		if !p.HasFamily(f) {
			continue
		}
		ps.Protocols[f.String()] = &ProtocolState{
			Name:     p.ProtocolName(f),
			Neighbor: p.Neighbor(f).String(),
		}
		if limit := p.PrefixLimit(f); limit != nil && limit.PeeringDB {
			if pdb == nil {
				pdb = &peeringdb.PrefixLimits{}
			}
			if f == policy.IPv4 {
				pdb.IPv4 = p.ResolvedPrefixLimit4
			} else {
				pdb.IPv6 = p.ResolvedPrefixLimit6
			}
		}
	}
	if pdb != nil {
		ps.PrefixLimit = &PrefixLimitState{PeeringDB: pdb}
	}
	return ps
}

func (d *Document) recordOSPF(o *policy.OSPF) {
	if o == nil && d.OSPF == nil {
		return
	}
	if d.OSPF == nil {
		d.OSPF = &OSPFState{}
	}
	for _, area := range d.OSPF.Areas {
		area.Interfaces = nil
	}
	if o != nil {
		for _, a := range o.Areas {
			area := d.OSPF.area(a.Name, true)
			area.Interfaces = map[string]*InterfaceValues{}
			for _, i := range a.Interfaces {
				cost, weight := i.Cost, i.ECMPWeight
				area.Interfaces[i.Name] = &InterfaceValues{Cost: &cost, ECMPWeight: &weight}
			}
		}
	}
	d.pruneOSPF()
}

func (o *OSPFState) area(name string, create bool) *OSPFAreaState {
	if o.Areas == nil {
		if !create {
			return nil
		}
		o.Areas = map[string]*OSPFAreaState{}
	}
	a, ok := o.Areas[name]
	if !ok && create {
		a = &OSPFAreaState{}
		o.Areas[name] = a
	}
	return a
}

// pruneBGP drops empty containers so removed overrides leave no trace.
func (d *Document) pruneBGP() {
	if d.BGP == nil {
		return
	}
	if len(d.BGP.GracefulShutdownOverrides) == 0 {
		d.BGP.GracefulShutdownOverrides = nil
	}
	if len(d.BGP.QuarantineOverrides) == 0 {
		d.BGP.QuarantineOverrides = nil
	}
	if len(d.BGP.Peers) == 0 && d.BGP.GracefulShutdownOverrides == nil && d.BGP.QuarantineOverrides == nil {
		d.BGP = nil
	}
}

func (d *Document) pruneOSPF() {
	if d.OSPF == nil {
		return
	}
	for name, a := range d.OSPF.Areas {
		for iface, v := range a.InterfaceOverrides {
			if v.IsEmpty() {
				delete(a.InterfaceOverrides, iface)
			}
		}
		if len(a.InterfaceOverrides) == 0 {
			a.InterfaceOverrides = nil
		}
		if len(a.Interfaces) == 0 {
			a.Interfaces = nil
		}
		if a.InterfaceOverrides == nil && a.Interfaces == nil {
			delete(d.OSPF.Areas, name)
		}
	}
	if len(d.OSPF.Areas) == 0 {
		d.OSPF = nil
	}
}

// Store is the state document bound to the file it is persisted in. A
// store without a path is usable for compiling but refuses overrides.
type Store struct {
	path   string
	doc    *Document
	logger log.Logger
}

type Option func(*Store)

func WithLogger(l log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Load reads the state file at path. A missing file yields an empty
// document.
func Load(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, doc: &Document{}}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = log.NewDiscardLogger()
	}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.logger.Debug("State file does not exist, starting empty", log.Fields{
			"Topic": "state",
			"Path":  path,
		})
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading state file %s", path)
	}
	if err := json.Unmarshal(data, s.doc); err != nil {
		return nil, errors.Wrapf(err, "decoding state file %s", path)
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Document() *Document {
	return s.doc
}

// Replace swaps in a new document, typically the one a successful compile
// produced. Nothing is written until Save.
func (s *Store) Replace(doc *Document) {
	s.doc = doc
}

func (s *Store) requirePath(op string) error {
	if s.path == "" {
		return errdefs.NewUsageError("%s requires a state file", op)
	}
	return nil
}

// Save writes the document atomically: a temporary file in the same
// directory is renamed over the state file.
func (s *Store) Save() error {
	if err := s.requirePath("saving state"); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding state")
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp := filepath.Join(dir, "."+filepath.Base(s.path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, FileMode); err != nil {
		return errors.Wrapf(err, "writing state file %s", tmp)
	}
	// WriteFile is subject to the umask
	if err := os.Chmod(tmp, FileMode); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "setting mode of state file %s", tmp)
	}
	chownServiceUser(tmp)
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "replacing state file %s", s.path)
	}
	s.logger.Debug("Saved state file", log.Fields{
		"Topic": "state",
		"Path":  s.path,
	})
	return nil
}

// chownServiceUser hands the file to the service user when it exists and
// we are allowed to, failures are ignored.
func chownServiceUser(path string) {
	u, err := user.Lookup(ServiceUser)
	if err != nil {
		return
	}
	uid, err1 := strconv.Atoi(u.Uid)
	gid, err2 := strconv.Atoi(u.Gid)
	if err1 != nil || err2 != nil {
		return
	}
	_ = os.Chown(path, uid, gid)
}
