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

// Package pathutil collects the pure path helpers shared by the static-file
// and CGI handlers: joining, traversal-safe resolution, percent-encoding
// that preserves "/", and extension-based MIME lookup.
package pathutil

import (
	"errors"
	"strings"
)

// ErrTraversal is returned by [TraversalSafe] and [Expand] when a path
// attempts to escape its implicit root via "..".
var ErrTraversal = errors.New("pathutil: path escapes root")

// Join concatenates a and b with exactly one "/" between them.
func Join(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case strings.HasSuffix(a, "/") && strings.HasPrefix(b, "/"):
		return a + b[1:]
	case !strings.HasSuffix(a, "/") && !strings.HasPrefix(b, "/"):
		return a + "/" + b
	default:
		return a + b
	}
}

// TraversalSafe resolves "." and ".." components in p and rejects any path
// that would pop past the implicit root, e.g. "/foo/../..". The result
// always keeps a leading "/" if p had one.
func TraversalSafe(p string) (string, error) {
	absolute := strings.HasPrefix(p, "/")

	parts := strings.Split(p, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", ErrTraversal
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, part)
		}
	}

	joined := strings.Join(stack, "/")
	if absolute {
		return "/" + joined, nil
	}
	return joined, nil
}

// Expand normalizes "." and ".." components the way a shell would: for an
// absolute path, an escape attempt fails exactly like [TraversalSafe]; for a
// relative path, excess ".." components are kept and accumulate at the
// front instead of erroring, since there's no fixed root to escape.
func Expand(p string) (string, error) {
	if strings.HasPrefix(p, "/") {
		return TraversalSafe(p)
	}

	parts := strings.Split(p, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 && stack[len(stack)-1] != ".." {
				stack = stack[:len(stack)-1]
			} else {
				stack = append(stack, "..")
			}
		default:
			stack = append(stack, part)
		}
	}

	return strings.Join(stack, "/"), nil
}

// Basename returns the final path component of p.
func Basename(p string) string {
	p = strings.TrimRight(p, "/")
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// Parent returns p with its final component removed. Parent("/a/b") is
// "/a"; Parent("/a") is "/"; Parent("a") is "".
func Parent(p string) string {
	trimmed := strings.TrimRight(p, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return ""
	}
	if idx == 0 {
		return "/"
	}
	return trimmed[:idx]
}

// Encode percent-encodes every character of s except "/": s is split on
// "/", each piece is percent-encoded independently, and the pieces are
// rejoined with "/".
func Encode(s string) string {
	pieces := strings.Split(s, "/")
	for i, piece := range pieces {
		pieces[i] = encodeSegment(piece)
	}
	return strings.Join(pieces, "/")
}

const upperhex = "0123456789ABCDEF"

func encodeSegment(s string) string {
	var needsEscape bool
	for i := 0; i < len(s); i++ {
		if !isUnreserved(s[i]) {
			needsEscape = true
			break
		}
	}
	if !needsEscape {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperhex[c>>4])
		sb.WriteByte(upperhex[c&0xf])
	}
	return sb.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	default:
		return false
	}
}
