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

package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCacheExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New(60*time.Second, WithClock(clock))

	c.Set(Key("whois.radb.net", "AS-EXAMPLE"), []uint32{65001})
	v, ok := c.Get(Key("whois.radb.net", "AS-EXAMPLE"))
	assert.True(t, ok)
	assert.Equal(t, []uint32{65001}, v)

	_, ok = c.Get(Key("rr.ntt.net", "AS-EXAMPLE"))
	assert.False(t, ok)

	clock.Advance(59 * time.Second)
	_, ok = c.Get(Key("whois.radb.net", "AS-EXAMPLE"))
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get(Key("whois.radb.net", "AS-EXAMPLE"))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheDefaultTTL(t *testing.T) {
	c := New(0)
	assert.Equal(t, DefaultTTL, c.TTL())
	c.Set("a", 1)
	assert.Equal(t, 1, c.Len())
	c.Flush()
	assert.Equal(t, 0, c.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(Key("k", string(rune('a'+i))), i)
			c.Get(Key("k", "a"))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 16, c.Len())
}
