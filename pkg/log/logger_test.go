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

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTestLoggerRecordsMessages(t *testing.T) {
	l := NewTestLogger()
	l.Info("hello", Fields{"Topic": "test"})
	l.Warn("careful", nil)
	l.Fatal("boom", nil)

	assert.True(t, l.Contains("info", "hello"))
	assert.True(t, l.Contains("warn", "careful"))
	assert.True(t, l.Contains("fatal", "boom"))
	assert.False(t, l.Contains("error", "hello"))

	l.Reset()
	assert.Empty(t, l.Messages)
}

func TestParseLevel(t *testing.T) {
	lv, err := ParseLevel("debug")
	assert.NoError(t, err)
	assert.Equal(t, DebugLevel, lv)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)

	l := NewDiscardLogger()
	l.SetLevel(WarnLevel)
	assert.Equal(t, WarnLevel, l.GetLevel())
	assert.Equal(t, "warning", WarnLevel.String())
}
