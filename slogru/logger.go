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

package slogru

import (
	"fmt"
	"log/slog"
)

type Logger struct {
	*slog.Logger
}

func (l *Logger) WithField(k string, v any) Entry {
	return &Logger{l.With(k, v)}
}

func (l *Logger) WithFields(fields Fields) Entry {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{l.With(args...)}
}

func (l *Logger) WithError(err error) Entry {
	return &Logger{l.With("error", err)}
}

func (l *Logger) Fatal(err error) {
	l.WithError(err).Error("Fatal")
	panic(err)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.Warn(fmt.Sprintf(format, args...))
}
