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
	"net/url"
	"strconv"

	"github.com/birdplan/birdplan/pkg/policy"
)

var bgpKeys = []string{
	"asn", "rr_cluster_id", "graceful_shutdown", "quarantine", "rpki_source",
	"accept", "import", "originate", "peertype_constraints", "peers",
}

func parseBGP(root *section, doc *policy.Document) error {
	s, err := root.child("bgp")
	if err != nil {
		return err
	}
	if err := s.checkKeys(bgpKeys); err != nil {
		return err
	}
	if !s.has("asn") {
		return s.fail("asn", "'asn' is required")
	}

	g := policy.NewBGPGlobal()
	if g.ASN, err = s.asn("asn"); err != nil {
		return err
	}
	if s.has("rr_cluster_id") {
		id, err := s.addr("rr_cluster_id", true)
		if err != nil {
			return err
		}
		g.RRClusterID = id.String()
	}
	if s.has("graceful_shutdown") {
		if g.GracefulShutdown, err = s.boolean("graceful_shutdown"); err != nil {
			return err
		}
	}
	if s.has("quarantine") {
		if g.Quarantine, err = s.boolean("quarantine"); err != nil {
			return err
		}
	}
	if s.has("rpki_source") {
		if g.RPKISource, err = parseRPKISource(s); err != nil {
			return err
		}
	}
	for _, sw := range []struct {
		key     string
		allowed []policy.RouteClass
		out     map[policy.RouteClass]bool
	}{
		{"accept", policy.GlobalAcceptClasses, g.Accept},
		{"import", policy.GlobalImportClasses, g.Import},
	} {
		if !s.has(sw.key) {
			continue
		}
		c, err := s.child(sw.key)
		if err != nil {
			return err
		}
		if err := parseClassSwitches(c, sw.allowed, sw.out); err != nil {
			return err
		}
	}
	if s.has("originate") {
		if g.Originate, err = parseRoutes(s, "originate"); err != nil {
			return err
		}
	}
	if s.has("peertype_constraints") {
		if err := parsePeerTypeConstraints(s, g); err != nil {
			return err
		}
	}
	// peers are parsed last, they are validated against the global settings
	if s.has("peers") {
		peers, err := s.child("peers")
		if err != nil {
			return err
		}
		if err := peers.checkKeys(nil); err != nil {
			return err
		}
		for _, name := range peers.keys() {
			if !policy.ValidPeerName(name) {
				return peers.fail(name, "invalid peer name '%s', only lowercase letters and digits are allowed", name)
			}
			peer, err := parsePeer(peers, name, g)
			if err != nil {
				return err
			}
			g.Peers = append(g.Peers, peer)
		}
	}
	doc.BGP = g
	return nil
}

// parseRPKISource accepts rtr://host[:port].
func parseRPKISource(s *section) (*policy.RPKISource, error) {
	raw, err := s.str("rpki_source")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "rtr" || u.Hostname() == "" || (u.Path != "" && u.Path != "/") {
		return nil, s.fail("rpki_source", "invalid RPKI source '%s', expected rtr://host[:port]", raw)
	}
	src := &policy.RPKISource{Scheme: u.Scheme, Host: u.Hostname(), Port: policy.DefaultRPKIPort}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, s.fail("rpki_source", "invalid port in RPKI source '%s'", raw)
		}
		src.Port = port
	}
	return src, nil
}

// parseConstraintSet reads constraint values, checking them against peer
// type t unless it is empty.
func parseConstraintSet(s *section, t policy.PeerType) (policy.ConstraintSet, error) {
	if err := s.checkKeys(nil); err != nil {
		return nil, err
	}
	cs := policy.ConstraintSet{}
	for _, k := range s.keys() {
		c, err := policy.ParseConstraint(k)
		if err != nil {
			return nil, s.fail(k, "%v", err)
		}
		v, err := s.integer(k, 0, c.Limit())
		if err != nil {
			return nil, err
		}
		if t == "" {
			cs[c] = v
			continue
		}
		if err := c.ValidFor(t); err != nil {
			return nil, s.fail(k, "%v", err)
		}
		cs[c] = v
	}
	return cs, nil
}

func parsePeerTypeConstraints(parent *section, g *policy.BGPGlobal) error {
	s, err := parent.child("peertype_constraints")
	if err != nil {
		return err
	}
	if err := s.checkKeys(nil); err != nil {
		return err
	}
	for _, k := range s.keys() {
		t, err := policy.ParsePeerType(k)
		if err != nil {
			return s.fail(k, "%v", err)
		}
		c, err := s.child(k)
		if err != nil {
			return err
		}
		cs, err := parseConstraintSet(c, t)
		if err != nil {
			return err
		}
		g.PeerTypeConstraints[t] = cs
	}
	return nil
}
