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
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/birdplan/birdplan/pkg/errdefs"
	"github.com/birdplan/birdplan/pkg/irr"
	"github.com/birdplan/birdplan/pkg/log"
	"github.com/birdplan/birdplan/pkg/peeringdb"
	"github.com/birdplan/birdplan/pkg/policy"
	"github.com/birdplan/birdplan/pkg/state"
)

// liveData is what was resolved for one peer during this run.
type liveData struct {
	originASNs []uint32
	prefixes   *irr.Prefixes
	limits     *peeringdb.PrefixLimits
}

func needsIRR(p *policy.BGPPeer) bool {
	return p.ImportFilter != nil && len(p.ImportFilter.ASSets) > 0
}

func needsPeeringDB(p *policy.BGPPeer) bool {
	for _, f := range policy.Families {
		if l := p.PrefixLimit(f); l != nil && l.PeeringDB && p.HasFamily(f) {
			return true
		}
	}
	return false
}

// resolve fills the resolved filter and prefix limits of every peer. Live
// lookups run in parallel bounded by the configured concurrency, the
// results are then checked against prev in declaration order.
func (c *Compiler) resolve(ctx context.Context, g *policy.BGPGlobal, prev *state.Document, opts Options) error {
	live := make([]*liveData, len(g.Peers))
	if !opts.UseCached {
		if err := c.fetch(ctx, g.Peers, live); err != nil {
			return err
		}
	}
	total := len(g.Peers)
	for i, p := range g.Peers {
		c.logger.Info("Configuring BGP peer", log.Fields{
			"Topic": "compiler",
			"Peer":  p.Name,
			"Index": i + 1,
			"Total": total,
		})
		if err := c.resolvePeer(p, prev.Peer(p.Name), live[i], opts); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) fetch(ctx context.Context, peers []*policy.BGPPeer, out []*liveData) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.concurrency)
	for i, p := range peers {
		i, p := i, p
		eg.Go(func() error {
			d := &liveData{}
			if needsIRR(p) {
				asns, err := c.irr.ResolveASNs(ctx, p.ImportFilter.ASSets)
				if err != nil {
					return err
				}
				prefixes, err := c.irr.ResolvePrefixes(ctx, p.ImportFilter.ASSets)
				if err != nil {
					return err
				}
				d.originASNs, d.prefixes = asns, prefixes
			}
			if needsPeeringDB(p) {
				limits, err := c.peeringdb.ResolvePrefixLimits(ctx, p.ASN)
				if err != nil {
					return err
				}
				d.limits = limits
			}
			out[i] = d
			return nil
		})
	}
	return eg.Wait()
}

func (c *Compiler) resolvePeer(p *policy.BGPPeer, prev *state.PeerState, live *liveData, opts Options) error {
	if p.ImportFilter != nil {
		f := p.ImportFilter
		rf := &policy.ResolvedFilter{
			OriginASNs: policy.ResolvedList[uint32]{Static: f.OriginASNs},
			PeerASNs:   policy.ResolvedList[uint32]{Static: f.PeerASNs},
			Prefixes4:  policy.ResolvedList[string]{Static: policy.PrefixPatternsFor(f.Prefixes, policy.IPv4)},
			Prefixes6:  policy.ResolvedList[string]{Static: policy.PrefixPatternsFor(f.Prefixes, policy.IPv6)},
		}
		if needsIRR(p) {
			if err := c.resolveIRR(p, rf, prev, live, opts); err != nil {
				return err
			}
		}
		p.ResolvedFilter = rf
	}

	for _, f := range policy.Families {
		limit := p.PrefixLimit(f)
		var resolved *int
		switch {
		case limit == nil || !p.HasFamily(f):
		case !limit.PeeringDB:
			v := limit.Value
			resolved = &v
		default:
			v, err := c.resolvePeeringDB(p, f, prev, live, opts)
			if err != nil {
				return err
			}
			resolved = v
		}
		if f == policy.IPv4 {
			p.ResolvedPrefixLimit4 = resolved
		} else {
			p.ResolvedPrefixLimit6 = resolved
		}
	}
	return nil
}

func (c *Compiler) resolveIRR(p *policy.BGPPeer, rf *policy.ResolvedFilter, prev *state.PeerState, live *liveData, opts Options) error {
	// A filter recorded before the peer had as_sets carries no IRR data.
	var cached *policy.ResolvedFilter
	if prev != nil && prev.FilterPolicy != nil && len(prev.FilterPolicy.ASSets) > 0 {
		cached = prev.FilterPolicy
	}

	if opts.UseCached {
		if cached == nil {
			return errdefs.NewNotFoundError("cached IRR data for peer", p.Name)
		}
		rf.ASSets = cached.ASSets
		rf.OriginASNs.IRR = cached.OriginASNs.IRR
		rf.Prefixes4.IRR = cached.Prefixes4.IRR
		rf.Prefixes6.IRR = cached.Prefixes6.IRR
		return nil
	}

	rf.ASSets = p.ImportFilter.ASSets
	rf.OriginASNs.IRR = live.originASNs
	rf.Prefixes4.IRR = live.prefixes.IPv4
	rf.Prefixes6.IRR = live.prefixes.IPv6
	if cached == nil {
		return nil
	}

	changes := []struct {
		item     string
		old, new []string
	}{
		{"origin ASNs", asnStrings(cached.OriginASNs.IRR), asnStrings(rf.OriginASNs.IRR)},
		{"IPv4 prefixes", cached.Prefixes4.IRR, rf.Prefixes4.IRR},
		{"IPv6 prefixes", cached.Prefixes6.IRR, rf.Prefixes6.IRR},
	}
	for _, ch := range changes {
		if slices.Equal(ch.old, ch.new) {
			continue
		}
		if !opts.IgnoreIRRChanges {
			return &errdefs.RegressionError{
				Source: "IRR",
				Peer:   p.Name,
				Item:   ch.item,
				Old:    summarize(ch.old),
				New:    summarize(ch.new),
				Hint:   "--ignore-irr-changes",
			}
		}
		c.logger.Warn("Accepting changed IRR data", log.Fields{
			"Topic": "compiler",
			"Peer":  p.Name,
			"Item":  ch.item,
			"Old":   len(ch.old),
			"New":   len(ch.new),
		})
	}
	return nil
}

func (c *Compiler) resolvePeeringDB(p *policy.BGPPeer, f policy.Family, prev *state.PeerState, live *liveData, opts Options) (*int, error) {
	var cached *peeringdb.PrefixLimits
	if prev != nil && prev.PrefixLimit != nil {
		cached = prev.PrefixLimit.PeeringDB
	}
	pick := func(l *peeringdb.PrefixLimits) *int {
		if f == policy.IPv6 {
			return l.IPv6
		}
		return l.IPv4
	}

	// A family without a recorded limit has never been looked up.
	var old *int
	if cached != nil {
		old = pick(cached)
	}

	if opts.UseCached {
		if old == nil {
			return nil, errdefs.NewNotFoundError("cached PeeringDB prefix limit for peer", p.Name)
		}
		return old, nil
	}

	value := pick(live.limits)
	if old == nil {
		return value, nil
	}
	if equalLimit(old, value) {
		return value, nil
	}
	if !opts.IgnorePeeringDBChanges {
		return nil, &errdefs.RegressionError{
			Source: "PeeringDB",
			Peer:   p.Name,
			Item:   fmt.Sprintf("IPv%d prefix limit", f),
			Old:    limitString(old),
			New:    limitString(value),
			Hint:   "--ignore-peeringdb-changes",
		}
	}
	c.logger.Warn("Accepting changed PeeringDB prefix limit", log.Fields{
		"Topic":  "compiler",
		"Peer":   p.Name,
		"Family": f.String(),
		"Old":    limitString(old),
		"New":    limitString(value),
	})
	return value, nil
}

func equalLimit(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func limitString(v *int) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprint(*v)
}

func asnStrings(asns []uint32) []string {
	out := make([]string, 0, len(asns))
	for _, a := range asns {
		out = append(out, fmt.Sprint(a))
	}
	return out
}

// summarize renders short lists in full and long ones as a count.
func summarize(items []string) string {
	if len(items) <= 5 {
		return "[" + strings.Join(items, " ") + "]"
	}
	return fmt.Sprintf("%d entries", len(items))
}
