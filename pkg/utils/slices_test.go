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

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
	assert.Empty(t, SortedKeys(map[string]int{}))
}

func TestUniq(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, Uniq([]int{3, 1, 2, 3, 1}))
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*", "peer1", true},
		{"peer*", "peer1", true},
		{"peer*", "transit1", false},
		{"p?er1", "peer1", true},
		{"peer1", "peer1", true},
		{"peer1", "peer12", false},
		{"[", "peer1", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GlobMatch(tt.pattern, tt.name), "%s ~ %s", tt.pattern, tt.name)
	}
}
