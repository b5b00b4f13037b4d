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
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdplan/birdplan/pkg/errdefs"
	"github.com/birdplan/birdplan/pkg/log"
	"github.com/birdplan/birdplan/pkg/peeringdb"
	"github.com/birdplan/birdplan/pkg/policy"
)

func intPtr(i int) *int {
	return &i
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Load(filepath.Join(t.TempDir(), "birdplan.state"))
	require.NoError(t, err)
	return s
}

func TestLoadMissingFile(t *testing.T) {
	s := newStore(t)
	assert.Equal(t, &Document{}, s.Document())
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "birdplan.state")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetBGPOverride(GracefulShutdown, "p*", true))
	require.NoError(t, s.SetBGPOverride(Quarantine, "c1", false))
	require.NoError(t, s.SetInterfaceOverride("0", "eth0", Cost, 42))
	s.Document().ConfigFingerprint = "abc"
	s.Document().BGP.Peers = map[string]*PeerState{
		"p1": {
			ASN:         65001,
			Description: "Peer one",
			Protocols:   map[string]*ProtocolState{"ipv4": {Name: "bgp4_p1", Neighbor: "192.0.2.2"}},
			PrefixLimit: &PrefixLimitState{PeeringDB: &peeringdb.PrefixLimits{IPv4: intPtr(100)}},
			FilterPolicy: &policy.ResolvedFilter{
				OriginASNs: policy.ResolvedList[uint32]{Static: []uint32{65001}, IRR: []uint32{65010}},
			},
		},
	}
	require.NoError(t, s.Save())

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FileMode), info.Mode().Perm())

	loaded, err := Load(s.Path())
	require.NoError(t, err)
	if diff := cmp.Diff(s.Document(), loaded.Document()); diff != "" {
		t.Errorf("state changed after round trip (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"+graceful_shutdown"`)
	assert.Contains(t, string(data), `"+quarantine"`)
	assert.Contains(t, string(data), `"+interfaces"`)

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestOperationsRequireStateFile(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	checks := []error{
		s.SetBGPOverride(GracefulShutdown, "*", true),
		s.RemoveBGPOverride(Quarantine, "*"),
		s.SetInterfaceOverride("0", "eth0", Cost, 1),
		s.RemoveInterfaceOverride("0", "eth0", Cost),
		s.Save(),
	}
	_, statusErr := s.Status(GracefulShutdown, nil)
	checks = append(checks, statusErr)
	_, ifaceErr := s.InterfaceStatus(nil)
	checks = append(checks, ifaceErr)

	for i, err := range checks {
		assert.True(t, errdefs.IsUsageError(err), "check %d: %v", i, err)
	}
}

func TestSetAndRemoveOverride(t *testing.T) {
	l := log.NewTestLogger()
	s, err := Load(filepath.Join(t.TempDir(), "birdplan.state"), WithLogger(l))
	require.NoError(t, err)

	require.NoError(t, s.SetBGPOverride(GracefulShutdown, "p1", true))
	require.NoError(t, s.SetBGPOverride(GracefulShutdown, "p1", false))
	assert.Equal(t, map[string]bool{"p1": false}, s.Document().BGPOverrides(GracefulShutdown))
	assert.Empty(t, s.Document().BGPOverrides(Quarantine))
	assert.True(t, l.Contains("info", "Set override"))

	st, err := s.Status(GracefulShutdown, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p1": false}, st.Overrides)

	err = s.RemoveBGPOverride(Quarantine, "p1")
	assert.True(t, errdefs.IsNotFoundError(err))

	require.NoError(t, s.RemoveBGPOverride(GracefulShutdown, "p1"))
	assert.Nil(t, s.Document().BGP, "empty containers are pruned")

	st, err = s.Status(GracefulShutdown, nil)
	require.NoError(t, err)
	assert.Nil(t, st.Overrides)

	err = s.RemoveBGPOverride(GracefulShutdown, "p1")
	assert.True(t, errdefs.IsNotFoundError(err))
}

func TestRemoveOverrideKeepsPeers(t *testing.T) {
	s := newStore(t)
	s.Document().BGP = &BGPState{Peers: map[string]*PeerState{"p1": {ASN: 65001}}}
	require.NoError(t, s.SetBGPOverride(Quarantine, "*", true))
	require.NoError(t, s.RemoveBGPOverride(Quarantine, "*"))
	require.NotNil(t, s.Document().BGP)
	assert.Nil(t, s.Document().BGP.QuarantineOverrides)
	assert.NotNil(t, s.Document().Peer("p1"))
}

func TestInvalidPattern(t *testing.T) {
	s := newStore(t)
	assert.True(t, errdefs.IsUsageError(s.SetBGPOverride(Quarantine, "[", true)))
	assert.True(t, errdefs.IsUsageError(s.SetBGPOverride(Quarantine, " ", true)))
}

func TestMatchOverride(t *testing.T) {
	overrides := map[string]bool{
		"*":    true,
		"p*":   false,
		"p1":   true,
		"c?":   false,
		"[ab]": true,
	}
	tests := []struct {
		peer  string
		want  bool
		found bool
	}{
		{"p1", true, true},
		{"p2", false, true},
		{"c1", false, true},
		{"c10", true, true},
		{"a", true, true},
		{"x", true, true},
	}
	for _, tt := range tests {
		v, ok := MatchOverride(overrides, tt.peer)
		assert.Equal(t, tt.found, ok, tt.peer)
		assert.Equal(t, tt.want, v, tt.peer)
	}

	_, ok := MatchOverride(map[string]bool{"p*": true}, "c1")
	assert.False(t, ok)

	// same length, lexically last wins
	v, ok := MatchOverride(map[string]int{"p?": 1, "?1": 2}, "p1")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestComputeEffective(t *testing.T) {
	overrides := map[string]bool{"p*": true}
	assert.True(t, ComputeEffective(overrides, "p1", false))
	assert.False(t, ComputeEffective(overrides, "c1", false))
	assert.True(t, ComputeEffective(nil, "c1", true))
}

func TestStatus(t *testing.T) {
	s := newStore(t)
	s.Document().BGP = &BGPState{Peers: map[string]*PeerState{
		"p1": {ASN: 65001, GracefulShutdown: true},
		"p2": {ASN: 65002, Quarantine: true},
	}}
	require.NoError(t, s.SetBGPOverride(Quarantine, "p*", false))

	st, err := s.Status(Quarantine, map[string]bool{"p1": false, "p2": false, "p3": false})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p*": false}, st.Overrides)
	assert.Equal(t, map[string]bool{"p1": false, "p2": true}, st.Current)
	assert.Equal(t, map[string]bool{"p1": false, "p2": false, "p3": false}, st.Pending)
	assert.True(t, st.IsNew("p3"))
	assert.False(t, st.IsNew("p2"))

	st, err = s.Status(GracefulShutdown, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p1": true, "p2": false}, st.Current)
	assert.Empty(t, st.Pending)
}

func TestInterfaceOverrides(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetInterfaceOverride("0", "eth0", Cost, 100))
	require.NoError(t, s.SetInterfaceOverride("0", "eth0", ECMPWeight, 3))
	assert.True(t, errdefs.IsUsageError(s.SetInterfaceOverride("0", "eth0", ECMPWeight, 300)))

	v := s.Document().InterfaceOverride("0", "eth0")
	require.NotNil(t, v)
	assert.Equal(t, 100, *v.Get(Cost))
	assert.Equal(t, 3, *v.Get(ECMPWeight))

	assert.True(t, errdefs.IsNotFoundError(s.RemoveInterfaceOverride("0", "eth1", Cost)))
	assert.True(t, errdefs.IsNotFoundError(s.RemoveInterfaceOverride("1", "eth0", Cost)))

	require.NoError(t, s.RemoveInterfaceOverride("0", "eth0", Cost))
	assert.Nil(t, s.Document().InterfaceOverride("0", "eth0").Get(Cost))
	assert.True(t, errdefs.IsNotFoundError(s.RemoveInterfaceOverride("0", "eth0", Cost)))

	require.NoError(t, s.RemoveInterfaceOverride("0", "eth0", ECMPWeight))
	assert.Nil(t, s.Document().OSPF, "empty containers are pruned")
}

func TestInterfaceStatus(t *testing.T) {
	s := newStore(t)
	doc := &policy.Document{OSPF: &policy.OSPF{Areas: []*policy.OSPFArea{{
		Name:       "0",
		Interfaces: []*policy.OSPFInterface{{Name: "eth0", Cost: 10, ECMPWeight: 1}},
	}}}}
	s.Document().Record(doc, "")
	require.NoError(t, s.SetInterfaceOverride("0", "eth0", Cost, 20))

	pending := map[string]map[string]*InterfaceValues{
		"0": {"eth0": {Cost: intPtr(20), ECMPWeight: intPtr(1)}},
	}
	st, err := s.InterfaceStatus(pending)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]*InterfaceValues{"0": {"eth0": {Cost: intPtr(20)}}}, st.Overrides)
	assert.Equal(t, map[string]map[string]*InterfaceValues{"0": {"eth0": {Cost: intPtr(10), ECMPWeight: intPtr(1)}}}, st.Current)
	assert.Equal(t, pending, st.Pending)
}

func TestRecord(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetBGPOverride(GracefulShutdown, "old", true))
	s.Document().BGP.Peers = map[string]*PeerState{"old": {ASN: 65009}}

	limit := 250
	peer := &policy.BGPPeer{
		Name:                 "p1",
		Description:          "Peer one",
		ASN:                  65001,
		Type:                 policy.PeerTypePeer,
		Neighbor4:            mustAddr("192.0.2.2"),
		Neighbor6:            mustAddr("2001:db8::2"),
		GracefulShutdown:     true,
		PrefixLimit4:         &policy.PrefixLimit{PeeringDB: true},
		PrefixLimit6:         &policy.PrefixLimit{Value: 10},
		ResolvedPrefixLimit4: &limit,
	}
	doc := &policy.Document{BGP: &policy.BGPGlobal{Peers: []*policy.BGPPeer{peer}}}
	s.Document().Record(doc, "fp")

	d := s.Document()
	assert.Equal(t, "fp", d.ConfigFingerprint)
	assert.Nil(t, d.Peer("old"))
	assert.Equal(t, map[string]bool{"old": true}, d.BGPOverrides(GracefulShutdown))
	want := &PeerState{
		ASN:         65001,
		Description: "Peer one",
		Type:        "peer",
		Protocols: map[string]*ProtocolState{
			"ipv4": {Name: "bgp4_p1", Neighbor: "192.0.2.2"},
			"ipv6": {Name: "bgp6_p1", Neighbor: "2001:db8::2"},
		},
		GracefulShutdown: true,
		PrefixLimit:      &PrefixLimitState{PeeringDB: &peeringdb.PrefixLimits{IPv4: &limit}},
	}
	if diff := cmp.Diff(want, d.Peer("p1")); diff != "" {
		t.Errorf("recorded peer mismatch (-want +got):\n%s", diff)
	}

	s.Document().Record(&policy.Document{}, "")
	assert.Nil(t, s.Document().Peer("p1"))
	assert.NotNil(t, s.Document().BGP, "overrides survive")
}

func TestClone(t *testing.T) {
	d := &Document{BGP: &BGPState{QuarantineOverrides: map[string]bool{"*": true}}}
	c := d.Clone()
	c.BGP.QuarantineOverrides["*"] = false
	assert.True(t, d.BGP.QuarantineOverrides["*"])
}

func mustAddr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}
