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
	"strconv"
	"strings"
)

// Large community functions (second field) used with our own ASN.
const (
	LCFunctionLocationISO3166 uint32 = 1
	LCFunctionLocationUNM49   uint32 = 2
	LCFunctionRelation        uint32 = 3
)

// Relation tags (third field of the LCFunctionRelation community).
const (
	RelationOwn         uint32 = 1
	RelationCustomer    uint32 = 2
	RelationPeer        uint32 = 3
	RelationTransit     uint32 = 4
	RelationRouteServer uint32 = 5
)

var (
	CommunityBlackhole        = Community{ASN: 65535, Value: 666}
	CommunityGracefulShutdown = Community{ASN: 65535, Value: 0}
)

type Community struct {
	ASN   uint16
	Value uint16
}

func (c Community) String() string {
	return fmt.Sprintf("(%d, %d)", c.ASN, c.Value)
}

type LargeCommunity struct {
	Global uint32
	Data1  uint32
	Data2  uint32
}

func (c LargeCommunity) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.Global, c.Data1, c.Data2)
}

type ExtendedCommunity struct {
	Kind   string
	Global uint32
	Local  uint32
}

func (c ExtendedCommunity) String() string {
	return fmt.Sprintf("(%s, %d, %d)", c.Kind, c.Global, c.Local)
}

func splitUints(s string, n int, bits int) ([]uint64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d fields separated by ':'", n)
	}
	out := make([]uint64, 0, n)
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, bits)
		if err != nil {
			return nil, fmt.Errorf("invalid field '%s'", p)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseCommunity parses "ASN:VALUE".
func ParseCommunity(s string) (Community, error) {
	v, err := splitUints(s, 2, 16)
	if err != nil {
		return Community{}, fmt.Errorf("invalid community '%s': %v", s, err)
	}
	return Community{ASN: uint16(v[0]), Value: uint16(v[1])}, nil
}

// ParseLargeCommunity parses "GLOBAL:DATA1:DATA2".
func ParseLargeCommunity(s string) (LargeCommunity, error) {
	v, err := splitUints(s, 3, 32)
	if err != nil {
		return LargeCommunity{}, fmt.Errorf("invalid large community '%s': %v", s, err)
	}
	return LargeCommunity{Global: uint32(v[0]), Data1: uint32(v[1]), Data2: uint32(v[2])}, nil
}

// ParseExtendedCommunity parses "KIND:GLOBAL:LOCAL" with KIND one of rt,
// ro or generic.
func ParseExtendedCommunity(s string) (ExtendedCommunity, error) {
	kind, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	switch kind {
	case "rt", "ro", "generic":
	default:
		return ExtendedCommunity{}, fmt.Errorf("invalid extended community '%s': unknown kind '%s'", s, kind)
	}
	if !ok {
		return ExtendedCommunity{}, fmt.Errorf("invalid extended community '%s'", s)
	}
	v, err := splitUints(rest, 2, 32)
	if err != nil {
		return ExtendedCommunity{}, fmt.Errorf("invalid extended community '%s': %v", s, err)
	}
	return ExtendedCommunity{Kind: kind, Global: uint32(v[0]), Local: uint32(v[1])}, nil
}
