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
	"io"
	"sync"
)

// unit tests helper to check log messages
type TestLogger struct {
	Logger   *DefaultLogger
	Messages map[string][]string
	Level    LogLevel

	mu sync.Mutex
}

func NewTestLogger() *TestLogger {
	l := NewDefaultLogger()
	l.logger.SetOutput(io.Discard)
	l.SetLevel(DebugLevel)
	return &TestLogger{
		Logger:   l,
		Messages: make(map[string][]string),
		Level:    DebugLevel,
	}
}

func (m *TestLogger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = make(map[string][]string)
}

func (m *TestLogger) record(level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages[level] = append(m.Messages[level], msg)
}

func (m *TestLogger) Panic(msg string, fields Fields) {
	m.record("panic", msg)
	m.Logger.Panic(msg, fields)
}

// Fatal only records the message, the wrapped logger would exit the test binary.
func (m *TestLogger) Fatal(msg string, fields Fields) {
	m.record("fatal", msg)
}

func (m *TestLogger) Error(msg string, fields Fields) {
	m.Logger.Error(msg, fields)
	m.record("error", msg)
}

func (m *TestLogger) Warn(msg string, fields Fields) {
	m.Logger.Warn(msg, fields)
	m.record("warn", msg)
}

func (m *TestLogger) Info(msg string, fields Fields) {
	m.Logger.Info(msg, fields)
	m.record("info", msg)
}

func (m *TestLogger) Debug(msg string, fields Fields) {
	m.Logger.Debug(msg, fields)
	m.record("debug", msg)
}

func (m *TestLogger) SetLevel(level LogLevel) {
	m.Logger.SetLevel(level)
	m.Level = level
}

func (m *TestLogger) GetLevel() LogLevel {
	return m.Level
}

// Contains reports whether msg was logged at the given level.
func (m *TestLogger) Contains(level, msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Messages[level] {
		if s == msg {
			return true
		}
	}
	return false
}
