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

package errdefs

import (
	"fmt"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestConfigErrorPath(t *testing.T) {
	err := NewConfigError([]string{"bgp", "peers", "p1", "import_filter"}, "is required for peer type '%s'", "customer")
	assert.Equal(t, "configuration error at 'bgp:peers:p1:import_filter': is required for peer type 'customer'", err.Error())
	assert.True(t, IsConfigError(fmt.Errorf("compile: %w", err)))
	assert.False(t, IsUsageError(err))
}

func TestExternalResolutionErrorUnwrap(t *testing.T) {
	cause := errors.Wrap(io.ErrUnexpectedEOF, "reading response")
	err := NewExternalResolutionError("peeringdb", "AS65000", cause)
	assert.True(t, IsExternalResolutionError(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "peeringdb query 'AS65000' failed")
}

func TestKinds(t *testing.T) {
	assert.True(t, IsNotFoundError(NewNotFoundError("pattern", "p*")))
	assert.True(t, IsUsageError(NewUsageError("no state file")))
	r := &RegressionError{Source: "peeringdb", Peer: "p1", Item: "prefix_limit4", Old: "100", New: "250", Hint: "--ignore-peeringdb-changes"}
	assert.True(t, IsRegressionError(r))
	assert.Equal(t, "peeringdb prefix_limit4 for peer 'p1' changed from 100 to 250, use --ignore-peeringdb-changes to accept the change", r.Error())
}
