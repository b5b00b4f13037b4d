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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdplan/birdplan/pkg/config"
	"github.com/birdplan/birdplan/pkg/errdefs"
	"github.com/birdplan/birdplan/pkg/irr"
	"github.com/birdplan/birdplan/pkg/log"
	"github.com/birdplan/birdplan/pkg/peeringdb"
	"github.com/birdplan/birdplan/pkg/policy"
	"github.com/birdplan/birdplan/pkg/state"
)

const testDocument = `
router_id: 192.0.2.1
ospf:
  areas:
    0:
      interfaces:
        eth0:
          cost: 20
        eth1: {}
bgp:
  asn: 65000
  peers:
    transit1:
      asn: 65100
      type: transit
      description: Transit
      neighbor4: 192.0.2.10
      source_address4: 192.0.2.1
      prefix_limit4: peeringdb
    cust1:
      asn: 65200
      type: customer
      description: Customer
      neighbor4: 192.0.2.20
      source_address4: 192.0.2.1
      neighbor6: 2001:db8::20
      source_address6: 2001:db8::1
      filter:
        as_sets: AS-CUST
`

type fakeIRR struct {
	asns     []uint32
	prefixes *irr.Prefixes
	err      error
}

func (f *fakeIRR) ResolveASNs(ctx context.Context, objects []string) ([]uint32, error) {
	return f.asns, f.err
}

func (f *fakeIRR) ResolvePrefixes(ctx context.Context, objects []string) (*irr.Prefixes, error) {
	return f.prefixes, f.err
}

type fakePeeringDB struct {
	limits map[uint32]*peeringdb.PrefixLimits
}

func (f *fakePeeringDB) ResolvePrefixLimits(ctx context.Context, asn uint32) (*peeringdb.PrefixLimits, error) {
	if l, ok := f.limits[asn]; ok {
		return l, nil
	}
	return &peeringdb.PrefixLimits{}, nil
}

func intPtr(v int) *int {
	return &v
}

func newFakes(limit int) (*fakeIRR, *fakePeeringDB) {
	return &fakeIRR{
			asns: []uint32{65200, 65201},
			prefixes: &irr.Prefixes{
				IPv4: []string{"198.51.100.0/24"},
				IPv6: []string{"2001:db8:100::/48"},
			},
		}, &fakePeeringDB{limits: map[uint32]*peeringdb.PrefixLimits{
			65100: {IPv4: intPtr(limit)},
		}}
}

func parse(t *testing.T) *policy.Document {
	t.Helper()
	return parseSource(t, testDocument)
}

func parseSource(t *testing.T, src string) *policy.Document {
	t.Helper()
	doc, err := config.Parse([]byte(src))
	require.NoError(t, err)
	return doc
}

func compile(t *testing.T, c *Compiler, prev *state.Document, opts Options) (*Result, error) {
	t.Helper()
	return c.Compile(context.Background(), parse(t), prev, opts)
}

func TestCompileIsStable(t *testing.T) {
	i, p := newFakes(100)
	c := New(WithIRRResolver(i), WithPeeringDBResolver(p), WithConcurrency(4))

	first, err := compile(t, c, nil, Options{})
	require.NoError(t, err)
	second, err := compile(t, c, nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, string(first.Config), string(second.Config))
	assert.Equal(t, Fingerprint(first.Config), first.Fingerprint)
	assert.Len(t, first.Fingerprint, 16)
	assert.Equal(t, first.Fingerprint, first.State.ConfigFingerprint)
}

func TestCompileOutput(t *testing.T) {
	i, p := newFakes(100)
	res, err := compile(t, New(WithIRRResolver(i), WithPeeringDBResolver(p)), nil, Options{})
	require.NoError(t, err)
	out := string(res.Config)

	for _, want := range []string{
		"router id 192.0.2.1;",
		"protocol bgp bgp4_transit1 {\n",
		"\tdescription \"AS65100 - Transit\";\n",
		"\tlocal 192.0.2.1 as 65000;\n",
		"\tneighbor 192.0.2.10 as 65100;\n",
		"\t\timport limit 100 action restart;\n",
		"filter f_bgp4_transit1_import {\n",
		"\tif bgp_path.first != 65100 then reject;\n",
		"\tbgp_large_community.delete([(65000, *, *)]);\n",
		"\tbgp_large_community.add((65000, 3, 4));\n",
		"\tbgp_local_pref = 150;\n",
		"\tbgp_local_pref = 750;\n",
		"define bgp_cust1_origin_asns = [\n\t65200,\n\t65201\n];\n",
		"define bgp4_cust1_prefixes = [\n\t198.51.100.0/24\n];\n",
		"define bgp6_cust1_prefixes = [\n\t2001:db8:100::/48\n];\n",
		"\t\tif !(net ~ bgp4_cust1_prefixes) then reject;\n",
		"\tif !(bgp_path.last_nonaggregated ~ bgp_cust1_origin_asns) then reject;\n",
		"protocol bgp bgp6_cust1 {\n",
		"protocol ospf v2 ospf4 {\n",
		"\t\t\tcost 20;\n",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "bgp6_transit1")
	assert.NotContains(t, out, "protocol rpki")
}

func TestCompileRecordsState(t *testing.T) {
	i, p := newFakes(100)
	res, err := compile(t, New(WithIRRResolver(i), WithPeeringDBResolver(p)), nil, Options{})
	require.NoError(t, err)

	transit := res.State.Peer("transit1")
	require.NotNil(t, transit)
	assert.Equal(t, uint32(65100), transit.ASN)
	require.NotNil(t, transit.PrefixLimit)
	assert.Equal(t, intPtr(100), transit.PrefixLimit.PeeringDB.IPv4)
	assert.Equal(t, "bgp4_transit1", transit.Protocols["ipv4"].Name)

	cust := res.State.Peer("cust1")
	require.NotNil(t, cust)
	require.NotNil(t, cust.FilterPolicy)
	assert.Equal(t, []uint32{65200, 65201}, cust.FilterPolicy.OriginASNs.IRR)
	assert.Equal(t, []string{"2001:db8:100::/48"}, cust.FilterPolicy.Prefixes6.IRR)
}

func TestCompilePeeringDBChange(t *testing.T) {
	i, p := newFakes(100)
	first, err := compile(t, New(WithIRRResolver(i), WithPeeringDBResolver(p)), nil, Options{})
	require.NoError(t, err)

	i, p = newFakes(250)
	c := New(WithIRRResolver(i), WithPeeringDBResolver(p))

	_, err = compile(t, c, first.State, Options{})
	require.Error(t, err)
	assert.True(t, errdefs.IsRegressionError(err))
	var regression *errdefs.RegressionError
	require.True(t, errors.As(err, &regression))
	assert.Equal(t, "PeeringDB", regression.Source)
	assert.Equal(t, "transit1", regression.Peer)
	assert.Equal(t, "100", regression.Old)
	assert.Equal(t, "250", regression.New)

	res, err := compile(t, c, first.State, Options{IgnorePeeringDBChanges: true})
	require.NoError(t, err)
	assert.Contains(t, string(res.Config), "import limit 250 action restart;")
	assert.Equal(t, intPtr(250), res.State.Peer("transit1").PrefixLimit.PeeringDB.IPv4)

	res, err = compile(t, c, first.State, Options{UseCached: true})
	require.NoError(t, err)
	assert.Contains(t, string(res.Config), "import limit 100 action restart;")
}

func TestCompileIRRChange(t *testing.T) {
	i, p := newFakes(100)
	first, err := compile(t, New(WithIRRResolver(i), WithPeeringDBResolver(p)), nil, Options{})
	require.NoError(t, err)

	i.asns = []uint32{65200}
	logger := log.NewTestLogger()
	c := New(WithIRRResolver(i), WithPeeringDBResolver(p), WithLogger(logger))

	_, err = compile(t, c, first.State, Options{})
	var regression *errdefs.RegressionError
	require.True(t, errors.As(err, &regression))
	assert.Equal(t, "IRR", regression.Source)
	assert.Equal(t, "origin ASNs", regression.Item)
	assert.Equal(t, "--ignore-irr-changes", regression.Hint)

	res, err := compile(t, c, first.State, Options{IgnoreIRRChanges: true})
	require.NoError(t, err)
	assert.True(t, logger.Contains("warn", "Accepting changed IRR data"))
	assert.Equal(t, []uint32{65200}, res.State.Peer("cust1").FilterPolicy.OriginASNs.IRR)
}

func TestCompileUseCachedWithoutState(t *testing.T) {
	i, p := newFakes(100)
	_, err := compile(t, New(WithIRRResolver(i), WithPeeringDBResolver(p)), nil, Options{UseCached: true})
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFoundError(err))
}

func TestCompileDocumentEdits(t *testing.T) {
	tests := []struct {
		name   string
		before string
		check  func(t *testing.T, res *Result)
	}{
		{
			name:   "as_sets added to a filter",
			before: strings.Replace(testDocument, "as_sets: AS-CUST", "origin_asns: [65200]", 1),
			check: func(t *testing.T, res *Result) {
				cust := res.State.Peer("cust1").FilterPolicy
				assert.Equal(t, []string{"AS-CUST"}, cust.ASSets)
				assert.Equal(t, []uint32{65200, 65201}, cust.OriginASNs.IRR)
			},
		},
		{
			name: "family with a peeringdb limit added",
			before: strings.Replace(testDocument,
				"      neighbor4: 192.0.2.10\n      source_address4: 192.0.2.1\n      prefix_limit4: peeringdb\n",
				"      neighbor6: 2001:db8::10\n      source_address6: 2001:db8::1\n", 1),
			check: func(t *testing.T, res *Result) {
				assert.Contains(t, string(res.Config), "import limit 100 action restart;")
				assert.Equal(t, intPtr(100), res.State.Peer("transit1").PrefixLimit.PeeringDB.IPv4)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotEqual(t, testDocument, tt.before)
			i, p := newFakes(100)
			c := New(WithIRRResolver(i), WithPeeringDBResolver(p))
			first, err := c.Compile(context.Background(), parseSource(t, tt.before), nil, Options{})
			require.NoError(t, err)

			_, err = compile(t, c, first.State, Options{UseCached: true})
			require.Error(t, err)
			assert.True(t, errdefs.IsNotFoundError(err))

			res, err := compile(t, c, first.State, Options{})
			require.NoError(t, err)
			tt.check(t, res)

			cached, err := compile(t, c, res.State, Options{UseCached: true})
			require.NoError(t, err)
			assert.Equal(t, string(res.Config), string(cached.Config))
		})
	}
}

func TestCompileResolutionFailure(t *testing.T) {
	i, p := newFakes(100)
	i.err = errdefs.NewExternalResolutionError("bgpq3", "AS-CUST", errors.New("exit status 1"))
	_, err := compile(t, New(WithIRRResolver(i), WithPeeringDBResolver(p), WithConcurrency(2)), nil, Options{})
	require.Error(t, err)
	assert.True(t, errdefs.IsExternalResolutionError(err))
}

func TestCompileAppliesOverrides(t *testing.T) {
	prev := &state.Document{
		BGP: &state.BGPState{
			GracefulShutdownOverrides: map[string]bool{"trans*": true},
			QuarantineOverrides:       map[string]bool{"cust1": true},
		},
		OSPF: &state.OSPFState{
			Areas: map[string]*state.OSPFAreaState{
				"0": {InterfaceOverrides: map[string]*state.InterfaceValues{
					"eth1": {Cost: intPtr(50), ECMPWeight: intPtr(3)},
				}},
			},
		},
	}
	i, p := newFakes(100)
	res, err := compile(t, New(WithIRRResolver(i), WithPeeringDBResolver(p)), prev, Options{})
	require.NoError(t, err)

	g := res.Document.BGP
	assert.True(t, g.Peer("transit1").GracefulShutdown)
	assert.False(t, g.Peer("transit1").Quarantine)
	assert.True(t, g.Peer("cust1").Quarantine)
	assert.True(t, res.State.Peer("cust1").Quarantine)
	assert.Equal(t, map[string]bool{"trans*": true}, res.State.BGP.GracefulShutdownOverrides)

	out := string(res.Config)
	assert.Contains(t, out, "filter f_bgp4_cust1_import {\n\t# quarantined\n\treject;\n}\n")
	assert.Contains(t, out, "\t\tbgp_community.add((65535, 0));\n")
	assert.Contains(t, out, "\t\t\tcost 50;\n\t\t\tecmp weight 3;\n")

	eth1 := res.Document.OSPF.Areas[0].Interface("eth1")
	assert.Equal(t, 50, eth1.Cost)
	assert.Equal(t, 3, eth1.ECMPWeight)
}

func TestCompileLogsProgress(t *testing.T) {
	logger := log.NewTestLogger()
	i, p := newFakes(100)
	_, err := compile(t, New(WithIRRResolver(i), WithPeeringDBResolver(p), WithLogger(logger)), nil, Options{})
	require.NoError(t, err)
	assert.True(t, logger.Contains("info", "Configuring BGP peer"))
	assert.True(t, logger.Contains("info", "Configuration compiled"))
	assert.True(t, logger.Contains("debug", "Compiled policy model"))
}

func TestPending(t *testing.T) {
	doc := parse(t)
	ApplyOverrides(doc, &state.Document{
		BGP: &state.BGPState{GracefulShutdownOverrides: map[string]bool{"cust*": true}},
	})
	assert.Equal(t, map[string]bool{"transit1": false, "cust1": true}, PendingBGP(doc, state.GracefulShutdown))
	assert.Equal(t, map[string]bool{"transit1": false, "cust1": false}, PendingBGP(doc, state.Quarantine))

	pending := PendingInterfaces(doc)
	require.Contains(t, pending, "0")
	assert.Equal(t, &state.InterfaceValues{Cost: intPtr(20), ECMPWeight: intPtr(1)}, pending["0"]["eth0"])
	assert.Equal(t, &state.InterfaceValues{Cost: intPtr(10), ECMPWeight: intPtr(1)}, pending["0"]["eth1"])

	assert.Empty(t, PendingBGP(&policy.Document{}, state.Quarantine))
}

func TestMatchCondition(t *testing.T) {
	pfx := func(s string) policy.PrefixPattern {
		p, err := policy.ParsePrefixPattern(s)
		require.NoError(t, err)
		return p
	}
	tests := []struct {
		name  string
		match policy.ActionMatch
		f     policy.Family
		want  string
		ok    bool
	}{
		{
			name:  "origin and community",
			match: policy.ActionMatch{OriginASNs: []uint32{65001}, Communities: []policy.Community{{ASN: 65000, Value: 1}, {ASN: 65000, Value: 2}}},
			f:     policy.IPv4,
			want:  "bgp_path.last_nonaggregated ~ [ 65001 ] && ((65000, 1) ~ bgp_community || (65000, 2) ~ bgp_community)",
			ok:    true,
		},
		{
			name:  "prefix of family",
			match: policy.ActionMatch{Prefixes: []policy.PrefixPattern{pfx("203.0.113.0/24+")}},
			f:     policy.IPv4,
			want:  "net ~ [ 203.0.113.0/24+ ]",
			ok:    true,
		},
		{
			name:  "prefix of other family",
			match: policy.ActionMatch{Prefixes: []policy.PrefixPattern{pfx("203.0.113.0/24+")}},
			f:     policy.IPv6,
			ok:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchCondition(tt.match, tt.f)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlackholeItems(t *testing.T) {
	assert.Equal(t,
		[]string{"198.51.100.0/24+", "203.0.113.0/24+"},
		blackholeItems([]string{"198.51.100.0/24", "198.51.100.0/24{24,28}", "203.0.113.0/24-"}))
}
