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

// Package cache provides the time-boxed in-process cache shared by the
// external resolvers.
package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const DefaultTTL = 60 * time.Second

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type entry struct {
	value   interface{}
	expires time.Time
}

// Cache stores values for a fixed TTL. Expiry is evaluated against the
// configured Clock so tests can move time explicitly; the underlying
// store is safe for concurrent use.
type Cache struct {
	ttl   time.Duration
	clock Clock
	store *gocache.Cache
}

type Option func(*Cache)

func WithClock(c Clock) Option {
	return func(cc *Cache) {
		cc.clock = c
	}
}

func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:   ttl,
		clock: systemClock{},
		// expiry is handled here against clock, go-cache only sweeps
		store: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key joins the parts that make up a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, "\x00")
}

func (c *Cache) Get(key string) (interface{}, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if !c.clock.Now().Before(e.expires) {
		c.store.Delete(key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Set(key string, value interface{}) {
	c.store.Set(key, &entry{
		value:   value,
		expires: c.clock.Now().Add(c.ttl),
	}, gocache.NoExpiration)
}

func (c *Cache) Len() int {
	return c.store.ItemCount()
}

func (c *Cache) Flush() {
	c.store.Flush()
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}
