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

// Package glob implements the single-wildcard-character glob used to match
// SNI names and request domains against a capsule's configured domain
// patterns.
package glob

import "strings"

// Glob is an ordered list of literal segments separated by "*" wildcards.
type Glob struct {
	segments []string
}

// Compile splits pattern on "*" into a Glob. An empty pattern matches only
// the empty string; a bare "*" matches anything, including the empty
// string.
func Compile(pattern string) Glob {
	return Glob{segments: strings.Split(pattern, "*")}
}

// Match reports whether s matches the glob: the first segment must be a
// prefix of what remains, every subsequent segment must occur somewhere
// after the previous match, and the last segment (unless it's empty) must
// be a suffix of s.
//
// The scan is greedy left-to-right and linear in len(s): each segment
// after the first is located with the earliest possible occurrence, so a
// pattern like "*aa*" can in principle skip a match it could have taken
// later, but the anchoring rules for the first and last segments still
// hold exactly.
func (g Glob) Match(s string) bool {
	if len(g.segments) == 1 {
		return s == g.segments[0]
	}

	first := g.segments[0]
	if !strings.HasPrefix(s, first) {
		return false
	}
	cursor := len(first)

	last := len(g.segments) - 1
	for i := 1; i < last; i++ {
		seg := g.segments[i]
		if seg == "" {
			continue
		}
		idx := strings.Index(s[cursor:], seg)
		if idx < 0 {
			return false
		}
		cursor += idx + len(seg)
	}

	tail := g.segments[last]
	if tail == "" {
		return true
	}
	return strings.HasSuffix(s[cursor:], tail)
}

// String returns the original "*"-joined pattern.
func (g Glob) String() string {
	return strings.Join(g.segments, "*")
}

// MatchAny reports whether s matches any of globs.
func MatchAny(globs []Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}
