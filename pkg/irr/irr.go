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

// Package irr resolves AS-SETs and aut-num objects into origin ASNs and
// prefix lists by running bgpq4 (or a compatible tool) with JSON output.
package irr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"os/exec"
	"strings"

	radix "github.com/armon/go-radix"
	"github.com/pkg/errors"

	"github.com/birdplan/birdplan/internal/pkg/cache"
	"github.com/birdplan/birdplan/pkg/errdefs"
	"github.com/birdplan/birdplan/pkg/log"
	"github.com/birdplan/birdplan/pkg/utils"
)

const (
	DefaultServer  = "whois.radb.net"
	DefaultCommand = "bgpq4"

	// Objects in this namespace are answered by test fixtures and keep
	// private and documentation ASNs.
	TestNamespace = "_BIRDPLAN:"
)

// Runner executes the IRR query tool and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type Resolver struct {
	server  string
	command string
	runner  Runner
	cache   *cache.Cache
	logger  log.Logger
}

type Option func(*Resolver)

func WithServer(server string) Option {
	return func(r *Resolver) {
		r.server = server
	}
}

func WithCommand(command string) Option {
	return func(r *Resolver) {
		r.command = command
	}
}

func WithRunner(runner Runner) Option {
	return func(r *Resolver) {
		r.runner = runner
	}
}

func WithCache(c *cache.Cache) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

func WithLogger(l log.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		server:  DefaultServer,
		command: DefaultCommand,
		runner:  ExecRunner{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.cache == nil {
		r.cache = cache.New(cache.DefaultTTL)
	}
	if r.logger == nil {
		r.logger = log.NewDiscardLogger()
	}
	return r
}

func (r *Resolver) Server() string {
	return r.server
}

// Prefixes holds BIRD prefix pattern expressions per address family.
type Prefixes struct {
	IPv4 []string `json:"ipv4"`
	IPv6 []string `json:"ipv6"`
}

func (p *Prefixes) Len() int {
	return len(p.IPv4) + len(p.IPv6)
}

type asnResult struct {
	ASNs []uint32 `json:"asns"`
}

type prefixEntry struct {
	Prefix       string `json:"prefix"`
	Exact        bool   `json:"exact"`
	GreaterEqual *int   `json:"greater-equal,omitempty"`
	LessEqual    *int   `json:"less-equal,omitempty"`
}

// ResolveASNs returns the sorted union of the ASNs the given objects expand
// to, without reserved, private and documentation ASNs.
func (r *Resolver) ResolveASNs(ctx context.Context, objects []string) ([]uint32, error) {
	all := []uint32{}
	for _, object := range objects {
		asns, err := r.queryASNs(ctx, object)
		if err != nil {
			return nil, err
		}
		keepPrivate := strings.HasPrefix(object, TestNamespace)
		for _, asn := range asns {
			if IsReservedASN(asn) {
				continue
			}
			if !keepPrivate && (IsPrivateASN(asn) || IsDocumentationASN(asn)) {
				continue
			}
			all = append(all, asn)
		}
	}
	return utils.Uniq(all), nil
}

// ResolvePrefixes returns the merged prefix patterns of the given objects.
func (r *Resolver) ResolvePrefixes(ctx context.Context, objects []string) (*Prefixes, error) {
	trees := map[string]*radix.Tree{
		"ipv4": radix.New(),
		"ipv6": radix.New(),
	}
	for _, object := range objects {
		for _, family := range []string{"ipv4", "ipv6"} {
			entries, err := r.queryPrefixes(ctx, family, object)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				key, expr, err := renderPrefix(e)
				if err != nil {
					return nil, errdefs.NewExternalResolutionError("irr", object, err)
				}
				trees[family].Insert(key, expr)
			}
		}
	}
	collect := func(t *radix.Tree) []string {
		out := make([]string, 0, t.Len())
		t.Walk(func(_ string, v interface{}) bool {
			out = append(out, v.(string))
			return false
		})
		return out
	}
	return &Prefixes{
		IPv4: collect(trees["ipv4"]),
		IPv6: collect(trees["ipv6"]),
	}, nil
}

func (r *Resolver) queryASNs(ctx context.Context, object string) ([]uint32, error) {
	key := cache.Key(r.server, "asns", object)
	if v, ok := r.cache.Get(key); ok {
		return v.([]uint32), nil
	}
	out, err := r.run(ctx, object, "-j", "-l", "asns", "-t", object)
	if err != nil {
		return nil, err
	}
	res := asnResult{}
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, errdefs.NewExternalResolutionError("irr", object, errors.Wrap(err, "decoding asn list"))
	}
	if res.ASNs == nil {
		return nil, errdefs.NewExternalResolutionError("irr", object, errors.New("no 'asns' in output"))
	}
	r.cache.Set(key, res.ASNs)
	return res.ASNs, nil
}

func (r *Resolver) queryPrefixes(ctx context.Context, family, object string) ([]prefixEntry, error) {
	key := cache.Key(r.server, family, object)
	if v, ok := r.cache.Get(key); ok {
		return v.([]prefixEntry), nil
	}
	flag := "-4"
	if family == "ipv6" {
		flag = "-6"
	}
	out, err := r.run(ctx, object, flag, "-A", "-j", "-l", family, object)
	if err != nil {
		return nil, err
	}
	res := map[string][]prefixEntry{}
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, errdefs.NewExternalResolutionError("irr", object, errors.Wrapf(err, "decoding %s prefixes", family))
	}
	entries, ok := res[family]
	if !ok {
		return nil, errdefs.NewExternalResolutionError("irr", object, fmt.Errorf("no '%s' in output", family))
	}
	r.cache.Set(key, entries)
	return entries, nil
}

func (r *Resolver) run(ctx context.Context, object string, args ...string) ([]byte, error) {
	argv := append([]string{"-h", r.server}, args...)
	r.logger.Debug("querying IRR",
		log.Fields{
			"Topic":   "irr",
			"Server":  r.server,
			"Object":  object,
			"Command": r.command,
		})
	out, err := r.runner.Run(ctx, r.command, argv...)
	if err != nil {
		return nil, errdefs.NewExternalResolutionError("irr", object, err)
	}
	return out, nil
}

// renderPrefix returns a radix key ordering prefixes by address and the
// BIRD prefix pattern for the entry.
func renderPrefix(e prefixEntry) (string, string, error) {
	p, err := netip.ParsePrefix(e.Prefix)
	if err != nil {
		return "", "", errors.Wrap(err, "invalid prefix in IRR output")
	}
	p = p.Masked()
	expr := p.String()
	if !e.Exact {
		lower := p.Bits()
		if e.GreaterEqual != nil {
			lower = *e.GreaterEqual
		}
		upper := p.Addr().BitLen()
		if e.LessEqual != nil {
			upper = *e.LessEqual
		}
		if lower < p.Bits() || upper < lower || upper > p.Addr().BitLen() {
			return "", "", fmt.Errorf("invalid length range {%d,%d} for %s", lower, upper, p)
		}
		expr = fmt.Sprintf("%s{%d,%d}", p, lower, upper)
	}
	return prefixKey(p) + expr, expr, nil
}

func prefixKey(p netip.Prefix) string {
	var b strings.Builder
	for _, octet := range p.Addr().AsSlice() {
		fmt.Fprintf(&b, "%08b", octet)
	}
	fmt.Fprintf(&b, "%03d", p.Bits())
	return b.String()
}
