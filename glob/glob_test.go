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

package glob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobLiterals(t *testing.T) {
	cases := []struct {
		pattern string
		yes     []string
		no      []string
	}{
		{"Hello", []string{"Hello"}, []string{"hello", "Hello!", "xHello"}},
		{"*Hello", []string{"Hello", "xHello", "xxxHello"}, []string{"Helloo", "hello"}},
		{"Hello*", []string{"Hello", "Hellox", "Helloxxx"}, []string{"xHello"}},
		{"*", []string{"", "anything", "x"}, nil},
		{"", []string{""}, []string{"x"}},
		{"*.example.org", []string{"a.example.org", "b.a.example.org"}, []string{"example.org", "example.org.evil"}},
		{"a*b*c", []string{"abc", "axbxc", "a--b--c"}, []string{"acb", "ab"}},
	}

	for _, c := range cases {
		g := Compile(c.pattern)
		for _, s := range c.yes {
			assert.Truef(t, g.Match(s), "%q should match %q", c.pattern, s)
		}
		for _, s := range c.no {
			assert.Falsef(t, g.Match(s), "%q should not match %q", c.pattern, s)
		}
	}
}

func TestMatchAny(t *testing.T) {
	globs := []Glob{Compile("foo.*"), Compile("*.example.org")}
	assert.True(t, MatchAny(globs, "foo.org"))
	assert.True(t, MatchAny(globs, "a.example.org"))
	assert.False(t, MatchAny(globs, "bar.org"))
}
