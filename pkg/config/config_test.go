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
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdplan/birdplan/pkg/errdefs"
	"github.com/birdplan/birdplan/pkg/policy"
)

const fullDocument = `
router_id: 192.0.2.1
log_file: /var/log/bird.log
debug: true
kernel:
  vrf: red
  routing_table: 10
static:
  - 10.0.0.0/24 via 192.0.2.2
  - 2001:db8::/48 blackhole
export_kernel:
  rip: false
rip:
  accept:
    default: true
  redistribute:
    connected: true
  interfaces:
    eth1:
      metric: 2
ospf:
  redistribute:
    static: true
  areas:
    0:
      interfaces:
        eth0:
          cost: 20
          ecmp_weight: 5
        lo:
          stub: true
bgp:
  asn: 65000
  rr_cluster_id: 0.0.0.1
  rpki_source: rtr://rpki.example.net
  accept:
    originated_default: true
  import:
    static: true
  originate:
    - 100.64.0.0/22 unreachable
  peertype_constraints:
    peer:
      import_maxlen4: 23
  peers:
    p1:
      asn: 65001
      type: peer
      description: Peer one
      neighbor4: 192.0.2.10
      source_address4: 192.0.2.1
      cost: 5
      prefix_limit4: peeringdb
      prefix_limit6: 500
      location:
        iso3166: 710
      outgoing_communities:
        - 65000:1
      outgoing_large_communities:
        bgp_own:
          - 65000:4:1
      prepend:
        bgp_customer: 2
      actions:
        - direction: in
          matches:
            prefix: 203.0.113.0/24+
          action: reject
        - direction: out
          matches:
            community: 65000:100
          action:
            prepend: 3
            add_large_community: 65000:5:1
    c1:
      asn: AS65002
      type: customer
      description: Customer one
      neighbor6: 2001:db8::2
      source_address6: 2001:db8::1
      filter:
        as_sets: AS-EXAMPLE
        origin_asns: [65002]
      constraints:
        import_maxlen6: 64
      error_wait_time: 30,300
    i1:
      asn: 65000
      type: rrclient
      description: Client
      neighbor4: 192.0.2.20
      source_address4: 192.0.2.1
`

func TestParseFullDocument(t *testing.T) {
	doc, err := Parse([]byte(fullDocument))
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), doc.RouterID)
	assert.Equal(t, "/var/log/bird.log", doc.LogFile)
	assert.True(t, doc.Debug)
	assert.Equal(t, &policy.Kernel{VRF: "red", RoutingTable: 10}, doc.Kernel)
	require.Len(t, doc.Static, 2)
	assert.Equal(t, "via 192.0.2.2", doc.Static[0].Attributes)
	assert.Equal(t, policy.IPv6, doc.Static[1].Family())
	assert.Equal(t, policy.ExportKernel{Static: true, RIP: false, OSPF: true, BGP: true}, doc.ExportKernel)

	require.NotNil(t, doc.RIP)
	assert.True(t, doc.RIP.AcceptDefault)
	assert.True(t, doc.RIP.Redistribute[policy.RouteClassConnected])
	assert.False(t, doc.RIP.Redistribute[policy.RouteClassStatic])
	assert.Equal(t, []*policy.RIPInterface{{Name: "eth1", Metric: 2}}, doc.RIP.Interfaces)

	require.NotNil(t, doc.OSPF)
	require.Len(t, doc.OSPF.Areas, 1)
	area := doc.OSPF.Areas[0]
	assert.Equal(t, "0", area.Name)
	assert.Equal(t, &policy.OSPFInterface{Name: "eth0", Cost: 20, ECMPWeight: 5}, area.Interface("eth0"))
	assert.True(t, area.Interface("lo").Stub)

	g := doc.BGP
	require.NotNil(t, g)
	assert.Equal(t, uint32(65000), g.ASN)
	assert.Equal(t, "0.0.0.1", g.RRClusterID)
	assert.Equal(t, &policy.RPKISource{Scheme: "rtr", Host: "rpki.example.net", Port: 323}, g.RPKISource)
	assert.True(t, g.Accept[policy.RouteClassOriginatedDefault])
	assert.True(t, g.Import[policy.RouteClassStatic])
	assert.Len(t, g.Originate, 1)
	assert.Equal(t, 23, g.PeerTypeConstraints[policy.PeerTypePeer][policy.ImportMaxLen4])

	require.Len(t, g.Peers, 3)
	assert.Equal(t, []string{"p1", "c1", "i1"}, []string{g.Peers[0].Name, g.Peers[1].Name, g.Peers[2].Name})

	p1 := g.Peer("p1")
	assert.Equal(t, 465, p1.LocalPreference())
	assert.True(t, p1.UseRPKI)
	assert.Equal(t, &policy.PrefixLimit{PeeringDB: true}, p1.PrefixLimit4)
	assert.Equal(t, &policy.PrefixLimit{Value: 500}, p1.PrefixLimit6)
	assert.Equal(t, 710, p1.Location.ISO3166)
	assert.Equal(t, 23, p1.Constraints[policy.ImportMaxLen4])
	assert.Equal(t, []policy.Community{{ASN: 65000, Value: 1}}, p1.OutgoingCommunities.For(policy.RouteClassBGPOwn))
	assert.Equal(t, []policy.LargeCommunity{{Global: 65000, Data1: 4, Data2: 1}}, p1.OutgoingLargeCommunities.For(policy.RouteClassBGPOwn))
	assert.Empty(t, p1.OutgoingLargeCommunities.For(policy.RouteClassBGPCustomer))
	assert.Equal(t, 2, p1.Prepend.For(policy.RouteClassBGPCustomer))
	assert.Equal(t, 0, p1.Prepend.For(policy.RouteClassBGPOwn))
	require.Len(t, p1.Actions, 2)
	assert.Equal(t, policy.ActionIn, p1.Actions[0].Direction)
	assert.Equal(t, []policy.ActionOp{{Kind: policy.ActionReject}}, p1.Actions[0].Ops)
	assert.Equal(t, "203.0.113.0/24+", p1.Actions[0].Match.Prefixes[0].String())
	assert.Equal(t, []policy.ActionOp{
		{Kind: policy.ActionAddLargeCommunity, LargeCommunities: []policy.LargeCommunity{{Global: 65000, Data1: 5, Data2: 1}}},
		{Kind: policy.ActionPrepend, Count: 3},
	}, p1.Actions[1].Ops)

	c1 := g.Peer("c1")
	assert.Equal(t, uint32(65002), c1.ASN)
	assert.Equal(t, []string{"AS-EXAMPLE"}, c1.ImportFilter.ASSets)
	assert.Equal(t, []uint32{65002}, c1.ImportFilter.OriginASNs)
	assert.Equal(t, 64, c1.Constraints[policy.ImportMaxLen6])
	assert.Equal(t, []int{30, 300}, c1.ErrorWaitTime)
	assert.False(t, c1.HasFamily(policy.IPv4))

	i1 := g.Peer("i1")
	assert.Equal(t, policy.PeerTypeRRClient, i1.Type)
	assert.False(t, i1.UseRPKI)
}

func TestParseMinimal(t *testing.T) {
	doc, err := Parse([]byte("router_id: 10.0.0.1\n"))
	require.NoError(t, err)
	assert.Nil(t, doc.BGP)
	assert.Nil(t, doc.OSPF)
	assert.Equal(t, policy.DefaultExportKernel(), doc.ExportKernel)
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "birdplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("router_id: 10.0.0.1\n"), 0o600))

	doc, err := ReadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", doc.RouterID.String())

	_, err = ReadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

const peerPrefix = `
router_id: 192.0.2.1
bgp:
  asn: 65000
  peers:
    p1:
`

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"invalid yaml", "router_id: [", ""},
		{"unknown top level key", "router_id: 192.0.2.1\nfoo: bar\n", "foo"},
		{"missing router id", "debug: true\n", "router_id"},
		{"router id is not ipv4", "router_id: 2001:db8::1\n", "router_id"},
		{"kernel unknown key", "router_id: 192.0.2.1\nkernel:\n  table: 1\n", "kernel:table"},
		{"static host bits", "router_id: 192.0.2.1\nstatic:\n  - 10.0.0.1/24 blackhole\n", "static"},
		{"ospf cost range", "router_id: 192.0.2.1\nospf:\n  areas:\n    0:\n      interfaces:\n        eth0:\n          cost: 0\n", "ospf:areas:0:interfaces:eth0:cost"},
		{"rip redistribute bad class", "router_id: 192.0.2.1\nrip:\n  redistribute:\n    bgp: true\n", "rip:redistribute:bgp"},
		{"bgp missing asn", "router_id: 192.0.2.1\nbgp:\n  peers: {}\n", "bgp:asn"},
		{"bgp accept bad class", "router_id: 192.0.2.1\nbgp:\n  asn: 65000\n  accept:\n    static: true\n", "bgp:accept:static"},
		{"rpki source scheme", "router_id: 192.0.2.1\nbgp:\n  asn: 65000\n  rpki_source: http://x\n", "bgp:rpki_source"},
		{"peertype constraint invalid for type", "router_id: 192.0.2.1\nbgp:\n  asn: 65000\n  peertype_constraints:\n    peer:\n      blackhole_import_maxlen4: 32\n", "bgp:peertype_constraints:peer:blackhole_import_maxlen4"},
		{"bad peer name", "router_id: 192.0.2.1\nbgp:\n  asn: 65000\n  peers:\n    Peer_1: {}\n", "bgp:peers:Peer_1"},
		{"duplicate peer", "router_id: 192.0.2.1\nbgp:\n  asn: 65000\n  peers:\n    p1: {}\n    p1: {}\n", "bgp:peers:p1"},
		{"missing required", peerPrefix + "      neighbor4: 192.0.2.2\n", "bgp:peers:p1"},
		{"unknown peer key", peerPrefix + "      foo: 1\n", "bgp:peers:p1:foo"},
		{"filter and import_filter", peerPrefix + "      filter: {}\n      import_filter: {}\n", "bgp:peers:p1:filter"},
		{"bad add_paths", peerPrefix + "      add_paths: both\n", "bgp:peers:p1:add_paths"},
		{"bad prefix limit", peerPrefix + "      prefix_limit4: lots\n", "bgp:peers:p1:prefix_limit4"},
		{"bad prefix limit action", peerPrefix + "      prefix_limit_action: drop\n", "bgp:peers:p1:prefix_limit_action"},
		{"bad accept class", peerPrefix + "      accept:\n        bgp_peering: true\n", "bgp:peers:p1:accept:bgp_peering"},
		{"bad community", peerPrefix + "      outgoing_communities: [\"1:2:3\"]\n", "bgp:peers:p1:outgoing_communities"},
		{"prepend too large", peerPrefix + "      prepend: 11\n", "bgp:peers:p1:prepend"},
		{"bad constraint", peerPrefix + "      constraints:\n        foo: 1\n", "bgp:peers:p1:constraints:foo"},
		{"bad error_wait_time", peerPrefix + "      error_wait_time: 300,30\n", "bgp:peers:p1:error_wait_time"},
		{"action direction", peerPrefix + "      actions:\n        - direction: up\n          matches: {prefix: 10.0.0.0/8}\n          action: reject\n", "bgp:peers:p1:actions:0:direction"},
		{"action unknown op", peerPrefix + "      actions:\n        - direction: in\n          matches: {prefix: 10.0.0.0/8}\n          action: drop\n", "bgp:peers:p1:actions:0:action"},
		{"action no matches", peerPrefix + "      actions:\n        - direction: in\n          matches: {}\n          action: reject\n", "bgp:peers:p1:actions:0:matches"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			var cerr *errdefs.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.path, cerr.Path, err.Error())
		})
	}
}

func peerDocument(peer string, global string) []byte {
	return []byte("router_id: 192.0.2.1\nbgp:\n  asn: 65000\n" + global + "  peers:\n    p1:\n" + peer)
}

func TestParsePeerValidation(t *testing.T) {
	const base = "      asn: 65001\n      description: test\n"
	tests := []struct {
		name   string
		peer   string
		global string
		path   string
	}{
		{
			name: "customer without filter",
			peer: base + "      type: customer\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n",
			path: "bgp:peers:p1:import_filter",
		},
		{
			name: "customer with filter",
			peer: base + "      type: customer\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n      filter:\n        origin_asns: [65001]\n",
		},
		{
			name: "customer with import_filter",
			peer: base + "      type: customer\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n      import_filter:\n        prefixes: [198.51.100.0/24]\n",
		},
		{
			name: "rrclient without cluster id",
			peer: "      asn: 65000\n      description: test\n      type: rrclient\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n",
			path: "bgp:peers:p1:type",
		},
		{
			name:   "rrclient with cluster id",
			peer:   "      asn: 65000\n      description: test\n      type: rrclient\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n",
			global: "  rr_cluster_id: 0.0.0.1\n",
		},
		{
			name: "neighbor without source address",
			peer: base + "      type: peer\n      neighbor4: 192.0.2.2\n",
			path: "bgp:peers:p1:source_address4",
		},
		{
			name: "source address without neighbor",
			peer: base + "      type: peer\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n      source_address6: 2001:db8::1\n",
			path: "bgp:peers:p1:neighbor6",
		},
		{
			name: "neighbor family mismatch",
			peer: base + "      type: peer\n      neighbor4: 2001:db8::2\n",
			path: "bgp:peers:p1:neighbor4",
		},
		{
			name: "use_rpki without source",
			peer: base + "      type: peer\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n      use_rpki: true\n",
			path: "bgp:peers:p1:use_rpki",
		},
		{
			name: "blackhole redistribute without community",
			peer: base + "      type: transit\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n      redistribute:\n        bgp_customer_blackhole: true\n",
			path: "bgp:peers:p1:redistribute",
		},
		{
			name: "blackhole redistribute with community",
			peer: base + "      type: transit\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n      blackhole_community: true\n      redistribute:\n        bgp_customer_blackhole: true\n",
		},
		{
			name: "cost too large",
			peer: base + "      type: transit\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n      cost: 151\n",
			path: "bgp:peers:p1:cost",
		},
		{
			name: "import action for route collector",
			peer: base + "      type: routecollector\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n      actions:\n        - direction: in\n          matches: {origin_asn: 65001}\n          action: reject\n",
			path: "bgp:peers:p1:actions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(peerDocument(tt.peer, tt.global))
			if tt.path == "" {
				require.NoError(t, err)
				require.NotNil(t, doc.BGP.Peer("p1"))
				return
			}
			require.Error(t, err)
			assert.True(t, errdefs.IsConfigError(err))
			var cerr *errdefs.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.path, cerr.Path, err.Error())
		})
	}
}

func TestParsePeerDefaults(t *testing.T) {
	doc, err := Parse(peerDocument(
		"      asn: 65001\n      description: test\n      type: transit\n      neighbor4: 192.0.2.2\n      source_address4: 192.0.2.1\n",
		"  rpki_source: rtr://[2001:db8::5]:3323\n  graceful_shutdown: true\n",
	))
	require.NoError(t, err)
	assert.Equal(t, 3323, doc.BGP.RPKISource.Port)
	assert.Equal(t, "2001:db8::5", doc.BGP.RPKISource.Host)

	p := doc.BGP.Peer("p1")
	assert.True(t, p.UseRPKI)
	assert.True(t, p.GracefulShutdown)
	assert.False(t, p.Quarantine)
	assert.Equal(t, policy.AddPathsOff, p.AddPaths)
	assert.Equal(t, "restart", p.PrefixLimitAction)
	assert.Equal(t, policy.DefaultRedistribute(policy.PeerTypeTransit), p.Redistribute)
	assert.Equal(t, policy.DefaultConstraints(policy.PeerTypeTransit), p.Constraints)
}
