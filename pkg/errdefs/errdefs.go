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

// Package errdefs defines the error kinds surfaced by the compiler, the
// resolvers and the state engine.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError reports a structural or semantic problem in the policy
// document. Path names the offending location, e.g. "bgp:peers:p1:asn".
type ConfigError struct {
	Path string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration error: %s", e.Msg)
	}
	return fmt.Sprintf("configuration error at '%s': %s", e.Path, e.Msg)
}

// NewConfigError builds a ConfigError for the path made of the given parts.
func NewConfigError(path []string, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		Path: strings.Join(path, ":"),
		Msg:  fmt.Sprintf(format, args...),
	}
}

// UsageError is returned when an operation is invoked without its
// preconditions, like an override command without a state file.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

func NewUsageError(format string, args ...interface{}) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Key)
}

func NewNotFoundError(kind, key string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key}
}

// ExternalResolutionError wraps failures talking to IRR or PeeringDB.
type ExternalResolutionError struct {
	Source string
	Query  string
	Err    error
}

func (e *ExternalResolutionError) Error() string {
	return fmt.Sprintf("%s query '%s' failed: %v", e.Source, e.Query, e.Err)
}

func (e *ExternalResolutionError) Unwrap() error {
	return e.Err
}

func NewExternalResolutionError(source, query string, err error) *ExternalResolutionError {
	return &ExternalResolutionError{Source: source, Query: query, Err: err}
}

// RegressionError is returned when an externally resolved value changed
// since the last run and the caller did not opt into the change.
type RegressionError struct {
	Source string
	Peer   string
	Item   string
	Old    string
	New    string
	Hint   string
}

func (e *RegressionError) Error() string {
	msg := fmt.Sprintf("%s %s for peer '%s' changed from %s to %s", e.Source, e.Item, e.Peer, e.Old, e.New)
	if e.Hint != "" {
		msg += fmt.Sprintf(", use %s to accept the change", e.Hint)
	}
	return msg
}

func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

func IsUsageError(err error) bool {
	var e *UsageError
	return errors.As(err, &e)
}

func IsNotFoundError(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsExternalResolutionError(err error) bool {
	var e *ExternalResolutionError
	return errors.As(err, &e)
}

func IsRegressionError(err error) bool {
	var e *RegressionError
	return errors.As(err, &e)
}
