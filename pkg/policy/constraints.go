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

package policy

import (
	"fmt"
	"slices"
	"strings"
)

type Constraint string

const (
	BlackholeImportMaxLen4        Constraint = "blackhole_import_maxlen4"
	BlackholeImportMinLen4        Constraint = "blackhole_import_minlen4"
	BlackholeImportMaxLen6        Constraint = "blackhole_import_maxlen6"
	BlackholeImportMinLen6        Constraint = "blackhole_import_minlen6"
	BlackholeExportMaxLen4        Constraint = "blackhole_export_maxlen4"
	BlackholeExportMinLen4        Constraint = "blackhole_export_minlen4"
	BlackholeExportMaxLen6        Constraint = "blackhole_export_maxlen6"
	BlackholeExportMinLen6        Constraint = "blackhole_export_minlen6"
	ImportMaxLen4                 Constraint = "import_maxlen4"
	ImportMinLen4                 Constraint = "import_minlen4"
	ImportMaxLen6                 Constraint = "import_maxlen6"
	ImportMinLen6                 Constraint = "import_minlen6"
	ExportMaxLen4                 Constraint = "export_maxlen4"
	ExportMinLen4                 Constraint = "export_minlen4"
	ExportMaxLen6                 Constraint = "export_maxlen6"
	ExportMinLen6                 Constraint = "export_minlen6"
	ASPathImportMaxLen            Constraint = "aspath_import_maxlen"
	ASPathImportMinLen            Constraint = "aspath_import_minlen"
	CommunityImportMaxLen         Constraint = "community_import_maxlen"
	ExtendedCommunityImportMaxLen Constraint = "extended_community_import_maxlen"
	LargeCommunityImportMaxLen    Constraint = "large_community_import_maxlen"
)

var Constraints = []Constraint{
	BlackholeImportMaxLen4,
	BlackholeImportMinLen4,
	BlackholeImportMaxLen6,
	BlackholeImportMinLen6,
	BlackholeExportMaxLen4,
	BlackholeExportMinLen4,
	BlackholeExportMaxLen6,
	BlackholeExportMinLen6,
	ImportMaxLen4,
	ImportMinLen4,
	ImportMaxLen6,
	ImportMinLen6,
	ExportMaxLen4,
	ExportMinLen4,
	ExportMaxLen6,
	ExportMinLen6,
	ASPathImportMaxLen,
	ASPathImportMinLen,
	CommunityImportMaxLen,
	ExtendedCommunityImportMaxLen,
	LargeCommunityImportMaxLen,
}

func ParseConstraint(s string) (Constraint, error) {
	c := Constraint(s)
	if !slices.Contains(Constraints, c) {
		return "", fmt.Errorf("invalid constraint '%s'", s)
	}
	return c, nil
}

func (c Constraint) isBlackholeImport() bool {
	return strings.HasPrefix(string(c), "blackhole_import_")
}

func (c Constraint) isBlackholeExport() bool {
	return strings.HasPrefix(string(c), "blackhole_export_")
}

func (c Constraint) isImport() bool {
	return strings.Contains(string(c), "_import_") || strings.HasPrefix(string(c), "import_")
}

// Limit is the largest value the constraint may take.
func (c Constraint) Limit() int {
	switch {
	case strings.HasSuffix(string(c), "len4"):
		return 32
	case strings.HasSuffix(string(c), "len6"):
		return 128
	case c == ASPathImportMaxLen || c == ASPathImportMinLen:
		return 255
	}
	return 1024
}

// ValidFor reports whether the constraint has meaning for peer type t.
func (c Constraint) ValidFor(t PeerType) error {
	if c.isBlackholeImport() && !t.BlackholeImportCapable() {
		return fmt.Errorf("constraint '%s' is not valid for peer type '%s'", c, t)
	}
	if c.isBlackholeExport() && !t.BlackholeExportCapable() {
		return fmt.Errorf("constraint '%s' is not valid for peer type '%s'", c, t)
	}
	if c.isImport() && !t.AcceptsImport() {
		return fmt.Errorf("constraint '%s' is not valid for peer type '%s' which does not import routes", c, t)
	}
	return nil
}

type ConstraintSet map[Constraint]int

func (s ConstraintSet) Get(c Constraint) (int, bool) {
	v, ok := s[c]
	return v, ok
}

// Validate checks ranges and that every constraint suits peer type t.
func (s ConstraintSet) Validate(t PeerType) error {
	for _, c := range Constraints {
		v, ok := s[c]
		if !ok {
			continue
		}
		if err := c.ValidFor(t); err != nil {
			return err
		}
		if v < 0 || v > c.Limit() {
			return fmt.Errorf("constraint '%s' value %d out of range 0..%d", c, v, c.Limit())
		}
	}
	return nil
}

// DefaultConstraints returns the built-in constraints for peer type t, only
// those valid for it are present.
func DefaultConstraints(t PeerType) ConstraintSet {
	s := ConstraintSet{
		BlackholeImportMaxLen4:        32,
		BlackholeImportMinLen4:        24,
		BlackholeImportMaxLen6:        128,
		BlackholeImportMinLen6:        64,
		BlackholeExportMaxLen4:        32,
		BlackholeExportMinLen4:        24,
		BlackholeExportMaxLen6:        128,
		BlackholeExportMinLen6:        64,
		ImportMaxLen4:                 24,
		ImportMinLen4:                 8,
		ImportMaxLen6:                 48,
		ImportMinLen6:                 16,
		ExportMaxLen4:                 24,
		ExportMinLen4:                 8,
		ExportMaxLen6:                 48,
		ExportMinLen6:                 16,
		ASPathImportMaxLen:            100,
		ASPathImportMinLen:            1,
		CommunityImportMaxLen:         100,
		ExtendedCommunityImportMaxLen: 100,
		LargeCommunityImportMaxLen:    100,
	}
	if t.IsInternal() {
		s[ImportMaxLen4] = 32
		s[ImportMinLen4] = 1
		s[ImportMaxLen6] = 128
		s[ImportMinLen6] = 1
		s[ExportMaxLen4] = 32
		s[ExportMinLen4] = 1
		s[ExportMaxLen6] = 128
		s[ExportMinLen6] = 1
		s[ASPathImportMinLen] = 0
	}
	for c := range s {
		if c.ValidFor(t) != nil {
			delete(s, c)
		}
	}
	return s
}

// ResolveConstraints layers peer values over peer type values over the
// built-in defaults and checks every min/max pair.
func ResolveConstraints(t PeerType, peerType, peer ConstraintSet) (ConstraintSet, error) {
	out := DefaultConstraints(t)
	for _, layer := range []ConstraintSet{peerType, peer} {
		for c, v := range layer {
			out[c] = v
		}
	}
	if err := out.Validate(t); err != nil {
		return nil, err
	}
	pairs := [][2]Constraint{
		{BlackholeImportMinLen4, BlackholeImportMaxLen4},
		{BlackholeImportMinLen6, BlackholeImportMaxLen6},
		{BlackholeExportMinLen4, BlackholeExportMaxLen4},
		{BlackholeExportMinLen6, BlackholeExportMaxLen6},
		{ImportMinLen4, ImportMaxLen4},
		{ImportMinLen6, ImportMaxLen6},
		{ExportMinLen4, ExportMaxLen4},
		{ExportMinLen6, ExportMaxLen6},
		{ASPathImportMinLen, ASPathImportMaxLen},
	}
	for _, p := range pairs {
		lo, okLo := out[p[0]]
		hi, okHi := out[p[1]]
		if okLo && okHi && lo > hi {
			return nil, fmt.Errorf("constraint '%s' (%d) is greater than '%s' (%d)", p[0], lo, p[1], hi)
		}
	}
	return out, nil
}
