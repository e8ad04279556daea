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

// Package slogru is a thin, logrus-flavored convenience layer over
// [log/slog]: a cloneable *Logger plus chained WithField/WithFields/
// WithError helpers, for call sites that want structured context without
// threading a slog.Logger through every signature.
package slogru

// Fields is a set of structured log fields, as accepted by
// [Logger.WithFields].
type Fields map[string]any

// Entry is a logger with pending structured context, returned by the
// With* chain methods.
type Entry interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
	WithError(err error) Entry
	Warnf(format string, args ...any)
}
