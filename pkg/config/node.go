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
	"fmt"
	"math"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/birdplan/birdplan/pkg/errdefs"
)

// section is a mapping node of the document along with its path, used to
// produce errors naming the offending location.
type section struct {
	path  []string
	items yaml.MapSlice
}

func keyString(k interface{}) string {
	return fmt.Sprint(k)
}

func subPath(path []string, key string) []string {
	return append(append([]string{}, path...), key)
}

func newSection(path []string, v interface{}) (*section, error) {
	switch m := v.(type) {
	case nil:
		return &section{path: path}, nil
	case yaml.MapSlice:
		return &section{path: path, items: m}, nil
	}
	return nil, errdefs.NewConfigError(path, "must be a mapping")
}

func (s *section) fail(key string, format string, args ...interface{}) error {
	if key == "" {
		return errdefs.NewConfigError(s.path, format, args...)
	}
	return errdefs.NewConfigError(subPath(s.path, key), format, args...)
}

func (s *section) keys() []string {
	out := make([]string, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, keyString(it.Key))
	}
	return out
}

// checkKeys fails on the first key not in allowed, or on a duplicate key.
func (s *section) checkKeys(allowed []string) error {
	seen := map[string]bool{}
	for _, k := range s.keys() {
		if allowed != nil && !slices.Contains(allowed, k) {
			return s.fail(k, "unknown option '%s'", k)
		}
		if seen[k] {
			return s.fail(k, "duplicate option '%s'", k)
		}
		seen[k] = true
	}
	return nil
}

func (s *section) get(key string) (interface{}, bool) {
	for _, it := range s.items {
		if keyString(it.Key) == key {
			return it.Value, true
		}
	}
	return nil, false
}

func (s *section) has(key string) bool {
	_, ok := s.get(key)
	return ok
}

func (s *section) child(key string) (*section, error) {
	v, _ := s.get(key)
	return newSection(subPath(s.path, key), v)
}

func (s *section) str(key string) (string, error) {
	v, _ := s.get(key)
	switch x := v.(type) {
	case string:
		return x, nil
	case int, float64:
		return fmt.Sprint(x), nil
	}
	return "", s.fail(key, "must be a string")
}

func (s *section) boolean(key string) (bool, error) {
	v, _ := s.get(key)
	b, ok := v.(bool)
	if !ok {
		return false, s.fail(key, "must be a boolean")
	}
	return b, nil
}

func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int(x), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		return i, err == nil
	}
	return 0, false
}

func (s *section) integer(key string, min, max int) (int, error) {
	v, _ := s.get(key)
	i, ok := toInt(v)
	if !ok {
		return 0, s.fail(key, "must be an integer")
	}
	if i < min || i > max {
		return 0, s.fail(key, "value %d out of range %d..%d", i, min, max)
	}
	return i, nil
}

func parseASN(v interface{}) (uint32, bool) {
	if s, ok := v.(string); ok {
		v = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "AS")
	}
	i, ok := toInt(v)
	if !ok || i < 1 || int64(i) > math.MaxUint32 {
		return 0, false
	}
	return uint32(i), true
}

func (s *section) asn(key string) (uint32, error) {
	v, _ := s.get(key)
	asn, ok := parseASN(v)
	if !ok {
		return 0, s.fail(key, "must be an ASN between 1 and %d", uint32(math.MaxUint32))
	}
	return asn, nil
}

// list returns the sequence under key, a scalar is treated as a one
// element list.
func (s *section) list(key string) ([]interface{}, error) {
	v, _ := s.get(key)
	switch x := v.(type) {
	case []interface{}:
		return x, nil
	case nil:
		return nil, s.fail(key, "must not be empty")
	case yaml.MapSlice:
		return nil, s.fail(key, "must be a list")
	}
	return []interface{}{v}, nil
}

func (s *section) strList(key string) ([]string, error) {
	l, err := s.list(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(l))
	for _, v := range l {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case int:
			out = append(out, strconv.Itoa(x))
		default:
			return nil, s.fail(key, "must be a list of strings")
		}
	}
	return out, nil
}

func (s *section) asnList(key string) ([]uint32, error) {
	l, err := s.list(key)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(l))
	for _, v := range l {
		asn, ok := parseASN(v)
		if !ok {
			return nil, s.fail(key, "invalid ASN '%v'", v)
		}
		out = append(out, asn)
	}
	return out, nil
}

func (s *section) addr(key string, is4 bool) (netip.Addr, error) {
	str, err := s.str(key)
	if err != nil {
		return netip.Addr{}, err
	}
	a, err := netip.ParseAddr(str)
	if err != nil || a.Is4() != is4 || a.Zone() != "" {
		family := "IPv6"
		if is4 {
			family = "IPv4"
		}
		return netip.Addr{}, s.fail(key, "must be an %s address", family)
	}
	return a, nil
}
