/*
Copyright 2026 The Capsule Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logger implements the capsule's per-connection access/error
// logger: a cheap-to-clone handle carrying a name, an optional group, and
// up to two append-only sinks. Two Logger values that name the same file
// path share a single underlying sink, so writes interleave atomically at
// the line level rather than tearing.
package logger

import (
	"fmt"
	"os"
	"time"
)

// Logger is a cloneable logging handle. The zero value is not usable;
// construct one with [New].
type Logger struct {
	reg   *registry
	name  string
	group string

	access *sink
	error_ *sink
}

// New returns a root Logger with no sinks: Access/Error write to stdout
// and stderr only, until [Logger.AsLogs] attaches file sinks.
func New(name string) *Logger {
	return &Logger{reg: newRegistry(), name: name}
}

func (l *Logger) label() string {
	if l.group == "" {
		return l.name
	}
	return l.name + "|" + l.group
}

func (l *Logger) format(level, msg string) string {
	return fmt.Sprintf("%s %s [%s] %s\n", time.Now().Local().Format("2006-01-02T15:04:05.000Z07:00"), level, l.label(), msg)
}

// Access logs msg to the access sink (and stdout), formatted as
// "<timestamp> ACCESS [<name>|<group>] <msg>".
func (l *Logger) Access(msg string) {
	line := l.format("ACCESS", msg)
	os.Stdout.WriteString(line)
	if l.access != nil {
		if err := l.access.write("ACCESS", l.label(), line); err != nil {
			fmt.Fprintf(os.Stderr, "logger: failed to write access log: %v\n", err)
			os.Stdout.WriteString(line)
		}
	}
}

// Accessf is [Logger.Access] with fmt.Sprintf formatting.
func (l *Logger) Accessf(format string, args ...any) {
	l.Access(fmt.Sprintf(format, args...))
}

// Error logs msg to the error sink (and stderr), formatted as
// "<timestamp> ERROR [<name>|<group>] <msg>".
func (l *Logger) Error(msg string) {
	line := l.format("ERROR", msg)
	os.Stderr.WriteString(line)
	if l.error_ != nil {
		if err := l.error_.write("ERROR", l.label(), line); err != nil {
			fmt.Fprintf(os.Stderr, "logger: failed to write error log: %v\n", err)
			os.Stderr.WriteString(line)
		}
	}
}

// Errorf is [Logger.Error] with fmt.Sprintf formatting.
func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}

// AsGroup returns a clone carrying an additional group label (e.g. a
// connection's "ip:port"), sharing this Logger's sinks.
func (l *Logger) AsGroup(group string) *Logger {
	clone := *l
	if l.group == "" {
		clone.group = group
	} else {
		clone.group = l.group + " " + group
	}
	return &clone
}

// AsLogs returns a clone with its access/error sinks replaced by the
// given file paths (sqlite if a path ends in ".db", plain text
// otherwise), re-using an already-open sink when the path matches one
// this logger (or a sibling clone sharing its registry) already opened.
// Either path may be empty, in which case the clone keeps this Logger's
// current sink for that stream.
func (l *Logger) AsLogs(accessPath, errorPath string) (*Logger, error) {
	clone := *l

	if accessPath != "" {
		s, err := l.reg.open(accessPath)
		if err != nil {
			return nil, fmt.Errorf("logger: failed to open access log %s: %w", accessPath, err)
		}
		clone.access = s
	}

	if errorPath != "" {
		s, err := l.reg.open(errorPath)
		if err != nil {
			return nil, fmt.Errorf("logger: failed to open error log %s: %w", errorPath, err)
		}
		clone.error_ = s
	}

	return &clone, nil
}

// Close releases this Logger's sink references. It does not close sinks
// still held by other clones sharing the same registry.
func (l *Logger) Close() {
	if l.access != nil {
		l.reg.release(l.access)
	}
	if l.error_ != nil && l.error_ != l.access {
		l.reg.release(l.error_)
	}
}
