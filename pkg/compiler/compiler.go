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

// Package compiler turns a validated policy document into BIRD
// configuration. It applies the operator overrides of the state document,
// resolves IRR and PeeringDB data with change safety checks and renders
// the configuration text.
package compiler

import (
	"bytes"
	"context"
	"fmt"

	farm "github.com/dgryski/go-farm"
	"github.com/kr/pretty"

	"github.com/birdplan/birdplan/pkg/irr"
	"github.com/birdplan/birdplan/pkg/log"
	"github.com/birdplan/birdplan/pkg/peeringdb"
	"github.com/birdplan/birdplan/pkg/policy"
	"github.com/birdplan/birdplan/pkg/state"
)

type IRRResolver interface {
	ResolveASNs(ctx context.Context, objects []string) ([]uint32, error)
	ResolvePrefixes(ctx context.Context, objects []string) (*irr.Prefixes, error)
}

type PrefixLimitResolver interface {
	ResolvePrefixLimits(ctx context.Context, asn uint32) (*peeringdb.PrefixLimits, error)
}

// Options control how externally resolved data may differ from what the
// state document recorded on the last run.
type Options struct {
	IgnoreIRRChanges       bool
	IgnorePeeringDBChanges bool
	// UseCached skips live resolution and reuses the recorded values.
	UseCached bool
}

type Compiler struct {
	irr         IRRResolver
	peeringdb   PrefixLimitResolver
	logger      log.Logger
	concurrency int
}

type Option func(*Compiler)

func WithIRRResolver(r IRRResolver) Option {
	return func(c *Compiler) {
		c.irr = r
	}
}

func WithPeeringDBResolver(r PrefixLimitResolver) Option {
	return func(c *Compiler) {
		c.peeringdb = r
	}
}

func WithLogger(l log.Logger) Option {
	return func(c *Compiler) {
		c.logger = l
	}
}

// WithConcurrency bounds the number of peers resolved at the same time.
func WithConcurrency(n int) Option {
	return func(c *Compiler) {
		c.concurrency = n
	}
}

func New(opts ...Option) *Compiler {
	c := &Compiler{
		concurrency: 1,
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = log.NewDiscardLogger()
	}
	if c.irr == nil {
		c.irr = irr.NewResolver(irr.WithLogger(c.logger))
	}
	if c.peeringdb == nil {
		c.peeringdb = peeringdb.NewResolver(peeringdb.WithLogger(c.logger))
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c
}

// Result is the outcome of a successful compile. State is a new document
// recording what Config applies, the previous document is not modified.
type Result struct {
	Config      []byte
	Fingerprint string
	State       *state.Document
	Document    *policy.Document
}

// Fingerprint returns a stable identifier of a configuration text.
func Fingerprint(config []byte) string {
	return fmt.Sprintf("%016x", farm.Fingerprint64(config))
}

// Compile applies overrides from prev to doc, resolves external data and
// renders the configuration. doc is updated in place with the effective
// values. Nothing is returned on error.
func (c *Compiler) Compile(ctx context.Context, doc *policy.Document, prev *state.Document, opts Options) (*Result, error) {
	if prev == nil {
		prev = &state.Document{}
	}
	ApplyOverrides(doc, prev)

	if doc.BGP != nil {
		if err := c.resolve(ctx, doc.BGP, prev, opts); err != nil {
			return nil, err
		}
	}

	if c.logger.GetLevel() >= log.DebugLevel {
		c.logger.Debug("Compiled policy model", log.Fields{
			"Topic": "compiler",
			"Model": pretty.Sprint(doc),
		})
	}

	var buf bytes.Buffer
	newEmitter(&buf, doc).emit()
	config := buf.Bytes()
	fp := Fingerprint(config)

	next := prev.Clone()
	next.Record(doc, fp)

	fields := log.Fields{
		"Topic":       "compiler",
		"Fingerprint": fp,
		"Bytes":       len(config),
	}
	if doc.BGP != nil {
		fields["Peers"] = len(doc.BGP.Peers)
	}
	c.logger.Info("Configuration compiled", fields)

	return &Result{
		Config:      config,
		Fingerprint: fp,
		State:       next,
		Document:    doc,
	}, nil
}
