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

// Package birdplan wires the document loader, the compiler and the state
// engine into the operations exposed by the command line tool.
package birdplan

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/birdplan/birdplan/pkg/compiler"
	"github.com/birdplan/birdplan/pkg/config"
	"github.com/birdplan/birdplan/pkg/errdefs"
	"github.com/birdplan/birdplan/pkg/log"
	"github.com/birdplan/birdplan/pkg/policy"
	"github.com/birdplan/birdplan/pkg/state"
)

const outputFileMode = 0o640

type options struct {
	configFile   string
	stateFile    string
	logger       log.Logger
	compilerOpts []compiler.Option
}

type Option func(*options)

func ConfigFile(path string) Option {
	return func(o *options) {
		o.configFile = path
	}
}

// StateFile sets the persisted state document, empty runs stateless.
func StateFile(path string) Option {
	return func(o *options) {
		o.stateFile = path
	}
}

func LoggerOption(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func CompilerOptions(opts ...compiler.Option) Option {
	return func(o *options) {
		o.compilerOpts = append(o.compilerOpts, opts...)
	}
}

type BirdPlan struct {
	configFile string
	stateFile  string
	logger     log.Logger
	compiler   *compiler.Compiler
}

func New(opt ...Option) *BirdPlan {
	opts := options{}
	for _, o := range opt {
		o(&opts)
	}
	if opts.logger == nil {
		opts.logger = log.NewDiscardLogger()
	}
	copts := append([]compiler.Option{compiler.WithLogger(opts.logger)}, opts.compilerOpts...)
	return &BirdPlan{
		configFile: opts.configFile,
		stateFile:  opts.stateFile,
		logger:     opts.logger,
		compiler:   compiler.New(copts...),
	}
}

func (b *BirdPlan) loadState() (*state.Store, error) {
	return state.Load(b.stateFile, state.WithLogger(b.logger))
}

func (b *BirdPlan) loadConfig() (*policy.Document, error) {
	if b.configFile == "" {
		return nil, errdefs.NewUsageError("no configuration file given")
	}
	return config.ReadConfigFile(b.configFile)
}

type ConfigureRequest struct {
	compiler.Options
	// OutputFile receives the configuration, nothing is written when empty.
	OutputFile string
	Diff       bool
}

type ConfigureResult struct {
	Config      []byte
	Fingerprint string
	// Changed is false when OutputFile already held the same configuration.
	Changed bool
	Diff    string
}

// Configure compiles the configuration file, writes the result and records
// it in the state document. Nothing is written unless every step succeeds.
func (b *BirdPlan) Configure(ctx context.Context, req ConfigureRequest) (*ConfigureResult, error) {
	doc, err := b.loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := b.loadState()
	if err != nil {
		return nil, err
	}
	res, err := b.compiler.Compile(ctx, doc, st.Document(), req.Options)
	if err != nil {
		return nil, err
	}

	out := &ConfigureResult{
		Config:      res.Config,
		Fingerprint: res.Fingerprint,
		Changed:     true,
	}
	// The output is staged and only put in place once the state that
	// describes it has been saved.
	var staged string
	if req.OutputFile != "" {
		old, err := os.ReadFile(req.OutputFile)
		switch {
		case err == nil:
			out.Changed = compiler.Fingerprint(old) != res.Fingerprint
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "failed to read %s", req.OutputFile)
		}
		if req.Diff {
			out.Diff = Diff(string(old), string(res.Config))
		}
		if out.Changed {
			if staged, err = stageFile(req.OutputFile, res.Config, outputFileMode); err != nil {
				return nil, err
			}
		}
	}

	st.Replace(res.State)
	if st.Path() != "" {
		if err := st.Save(); err != nil {
			if staged != "" {
				os.Remove(staged)
			}
			return nil, err
		}
	}
	if staged != "" {
		if err := commitFile(staged, req.OutputFile); err != nil {
			return nil, err
		}
	}
	b.logger.Info("Configuration applied", log.Fields{
		"Topic":       "birdplan",
		"Output":      req.OutputFile,
		"Fingerprint": res.Fingerprint,
		"Changed":     out.Changed,
	})
	return out, nil
}

// stageFile writes data next to path and returns the temporary name.
func stageFile(path string, data []byte, mode os.FileMode) (string, error) {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, mode); err != nil {
		os.Remove(tmp)
		return "", errors.Wrapf(err, "failed to write %s", tmp)
	}
	return tmp, nil
}

// commitFile atomically replaces path with a staged file.
func commitFile(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to replace %s", path)
	}
	return nil
}

// pending compiles the policy model without resolving external data so
// the effective override values can be shown.
func (b *BirdPlan) pending(st *state.Store) (*policy.Document, error) {
	doc, err := b.loadConfig()
	if err != nil {
		return nil, err
	}
	compiler.ApplyOverrides(doc, st.Document())
	return doc, nil
}

// SetPeerOverride stores a graceful shutdown or quarantine override.
func (b *BirdPlan) SetPeerOverride(ns state.Namespace, pattern string, value bool) error {
	st, err := b.loadState()
	if err != nil {
		return err
	}
	if err := st.SetBGPOverride(ns, pattern, value); err != nil {
		return err
	}
	return st.Save()
}

func (b *BirdPlan) RemovePeerOverride(ns state.Namespace, pattern string) error {
	st, err := b.loadState()
	if err != nil {
		return err
	}
	if err := st.RemoveBGPOverride(ns, pattern); err != nil {
		return err
	}
	return st.Save()
}

func (b *BirdPlan) PeerOverrideStatus(ns state.Namespace) (*state.BGPStatus, error) {
	st, err := b.loadState()
	if err != nil {
		return nil, err
	}
	if st.Path() == "" {
		return st.Status(ns, nil)
	}
	doc, err := b.pending(st)
	if err != nil {
		return nil, err
	}
	return st.Status(ns, compiler.PendingBGP(doc, ns))
}

func (b *BirdPlan) SetInterfaceOverride(area, iface string, attr state.InterfaceAttribute, value int) error {
	st, err := b.loadState()
	if err != nil {
		return err
	}
	if err := st.SetInterfaceOverride(area, iface, attr, value); err != nil {
		return err
	}
	return st.Save()
}

func (b *BirdPlan) RemoveInterfaceOverride(area, iface string, attr state.InterfaceAttribute) error {
	st, err := b.loadState()
	if err != nil {
		return err
	}
	if err := st.RemoveInterfaceOverride(area, iface, attr); err != nil {
		return err
	}
	return st.Save()
}

func (b *BirdPlan) InterfaceStatus() (*state.InterfaceStatus, error) {
	st, err := b.loadState()
	if err != nil {
		return nil, err
	}
	if st.Path() == "" {
		return st.InterfaceStatus(nil)
	}
	doc, err := b.pending(st)
	if err != nil {
		return nil, err
	}
	return st.InterfaceStatus(compiler.PendingInterfaces(doc))
}

// PeerSummary is what the state document knows about a configured peer.
type PeerSummary struct {
	Name             string            `json:"name"`
	ASN              uint32            `json:"asn"`
	Description      string            `json:"description"`
	Type             string            `json:"type"`
	Protocols        map[string]string `json:"protocols"`
	GracefulShutdown bool              `json:"graceful_shutdown"`
	Quarantine       bool              `json:"quarantine"`
}

// Peers lists the peers of the last applied configuration, sorted by name.
// When name is not empty only that peer is returned.
func (b *BirdPlan) Peers(name string) ([]*PeerSummary, error) {
	st, err := b.loadState()
	if err != nil {
		return nil, err
	}
	doc := st.Document()
	out := []*PeerSummary{}
	if doc.BGP != nil {
		for n, p := range doc.BGP.Peers {
			if name != "" && n != name {
				continue
			}
			s := &PeerSummary{
				Name:             n,
				ASN:              p.ASN,
				Description:      p.Description,
				Type:             p.Type,
				Protocols:        map[string]string{},
				GracefulShutdown: p.GracefulShutdown,
				Quarantine:       p.Quarantine,
			}
			for f, proto := range p.Protocols {
				s.Protocols[f] = proto.Name
			}
			out = append(out, s)
		}
	}
	if name != "" && len(out) == 0 {
		return nil, errdefs.NewNotFoundError("BGP peer", name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
