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

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	defer func(sha, tag string) { SHA, TAG = sha, tag }(SHA, TAG)

	SHA, TAG = "", ""
	assert.Equal(t, "0.9.0", Version())
	TAG = "rc1"
	assert.Equal(t, "0.9.0-rc1", Version())
	SHA = "abc123"
	assert.Equal(t, "0.9.0-rc1+sha.abc123", Version())
}
