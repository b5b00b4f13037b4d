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

// Package peeringdb looks up the advertised prefix counts of a network.
package peeringdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/birdplan/birdplan/internal/pkg/cache"
	"github.com/birdplan/birdplan/pkg/errdefs"
	"github.com/birdplan/birdplan/pkg/log"
)

const (
	DefaultURL     = "https://www.peeringdb.com/api"
	DefaultTimeout = 10 * time.Second
)

// PrefixLimits holds the prefix counts a network registered. A nil value
// means no limit is known for that family.
type PrefixLimits struct {
	IPv4 *int `json:"ipv4,omitempty"`
	IPv6 *int `json:"ipv6,omitempty"`
}

type network struct {
	ASN           uint32 `json:"asn"`
	Name          string `json:"name"`
	InfoPrefixes4 *int   `json:"info_prefixes4"`
	InfoPrefixes6 *int   `json:"info_prefixes6"`
}

type netResponse struct {
	Data []network `json:"data"`
}

type Resolver struct {
	baseURL string
	client  *http.Client
	cache   *cache.Cache
	logger  log.Logger
}

type Option func(*Resolver)

func WithURL(url string) Option {
	return func(r *Resolver) {
		r.baseURL = strings.TrimRight(url, "/")
	}
}

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.client.Timeout = d
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		r.client = c
	}
}

func WithCache(c *cache.Cache) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

func WithLogger(l log.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		baseURL: DefaultURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(r)
	}
	if r.cache == nil {
		r.cache = cache.New(cache.DefaultTTL)
	}
	if r.logger == nil {
		r.logger = log.NewDiscardLogger()
	}
	return r
}

// IsPrivateASN reports ASNs which are never registered in PeeringDB.
func IsPrivateASN(asn uint32) bool {
	return (asn >= 64512 && asn <= 65534) || (asn >= 4200000000 && asn <= 4294967294)
}

// ResolvePrefixLimits returns the prefix counts registered for asn.
// Private ASNs resolve to no limit without a network call.
func (r *Resolver) ResolvePrefixLimits(ctx context.Context, asn uint32) (*PrefixLimits, error) {
	if IsPrivateASN(asn) {
		return &PrefixLimits{}, nil
	}
	key := cache.Key(r.baseURL, strconv.FormatUint(uint64(asn), 10))
	if v, ok := r.cache.Get(key); ok {
		return v.(*PrefixLimits), nil
	}

	query := fmt.Sprintf("AS%d", asn)
	n, err := r.fetchNetwork(ctx, asn)
	if err != nil {
		return nil, errdefs.NewExternalResolutionError("peeringdb", query, err)
	}
	limits := &PrefixLimits{
		IPv4: n.InfoPrefixes4,
		IPv6: n.InfoPrefixes6,
	}
	r.logger.Debug("resolved prefix limits",
		log.Fields{
			"Topic": "peeringdb",
			"ASN":   asn,
			"Name":  n.Name,
		})
	r.cache.Set(key, limits)
	return limits, nil
}

func (r *Resolver) fetchNetwork(ctx context.Context, asn uint32) (*network, error) {
	url := fmt.Sprintf("%s/net?asn__in=%d", r.baseURL, asn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "requesting network")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	res := netResponse{}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("no network registered for AS%d", asn)
	}
	return &res.Data[0], nil
}
