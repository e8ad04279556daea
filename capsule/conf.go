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

// Package capsule implements one capsule: a listener, the application
// dispatcher that picks a handler for each request, and the connection
// pipeline that drives a single accepted socket from SNI peek through
// response framing.
package capsule

import (
	"regexp"
	"time"

	"golang.org/x/net/idna"

	"github.com/coldwax/capsule/glob"
)

// Kind tags which variant of [AppItem] is populated.
type Kind int

const (
	KindRedirect Kind = iota
	KindProxy
	KindCGI
	KindFile
)

// RedirectItem opaquely forwards a matching SNI's raw TLS byte stream to
// an upstream authority without terminating TLS locally.
type RedirectItem struct {
	TargetAuthority string
}

// ProxyItem forwards a matched request to an upstream Gemini server over a
// fresh TLS connection and relays its response back verbatim.
type ProxyItem struct {
	TargetAuthority string
}

// CGIItem locates and executes a CGI script under CGIRoot.
type CGIItem struct {
	CGIRoot string
	// Extensions, if non-empty, restricts script resolution to files
	// whose extension is in this set (without the leading ".").
	Extensions []string
	// Indexes is tried, in order, when script resolution lands on a
	// directory.
	Indexes []glob.Glob
	// PTY attaches the child to a pseudo-terminal instead of plain
	// pipes, for scripts that expect one.
	PTY bool
	// MaxOutputBytes caps how much of the child's stdout is buffered;
	// zero means cfg.Config.CGIMaxOutputBytes.
	MaxOutputBytes int64
}

// FileItem serves static files out of FileRoot.
type FileItem struct {
	FileRoot    string
	SendFolders bool
	Indexes     []glob.Glob
	// Cache enables response caching for this item. CacheTTL names an
	// explicit lifetime; when zero, cfg.Config.DefaultCacheTTL applies.
	Cache    bool
	CacheTTL time.Duration
}

// AppItem is one dispatch target within a capsule: a tagged union over the
// four application kinds, modeled as one struct with a Kind tag and a
// pointer per variant payload so a switch over Kind is exhaustive and
// costs no dynamic dispatch.
type AppItem struct {
	Kind Kind

	// Domains is matched against the SNI name (redirect items) or the
	// request's domain (all other items).
	Domains []glob.Glob
	// Rule, if non-nil, is matched against the request path. A nil Rule
	// matches any path.
	Rule *regexp.Regexp

	AccessLog string
	ErrorLog  string

	Redirect *RedirectItem
	Proxy    *ProxyItem
	CGI      *CGIItem
	File     *FileItem
}

// MatchDomain reports whether domain matches any of the item's configured
// globs. domain is normalized to its ASCII (punycode) form first, so a
// Unicode SNI name or request authority matches a plain-ASCII configured
// pattern; a domain that fails normalization is compared as-is.
func (a *AppItem) MatchDomain(domain string) bool {
	return glob.MatchAny(a.Domains, normalizeDomain(domain))
}

// MatchPath reports whether path satisfies the item's rule: a nil Rule
// matches everything, and a non-nil Rule must actually match.
func (a *AppItem) MatchPath(path string) bool {
	return a.Rule == nil || a.Rule.MatchString(path)
}

// normalizeDomain lowercases and punycode-encodes domain, so configured
// patterns can be written in plain ASCII regardless of whether a client
// presents a Unicode domain name.
func normalizeDomain(domain string) string {
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return domain
	}
	return ascii
}

// Matches reports whether the item applies to a parsed request's domain
// and path. SNI-phase redirect matching uses MatchDomain directly instead,
// since no request has been parsed yet at that point.
func (a *AppItem) Matches(domain, path string) bool {
	return a.MatchDomain(domain) && a.MatchPath(path)
}

// Conf is one capsule: one listener's address, optional certificate
// material, and its ordered application items. A Conf with no certificate
// material may only contain Redirect items (enforced by [NewListener],
// not by this type, since validation belongs to the configuration loader
// in the general case).
type Conf struct {
	Listen string

	Certificate    []byte
	CertificateKey []byte

	// CertificatePath and CertificateKeyPath, when set, are watched for
	// changes so the listener can rotate the loaded material without a
	// restart. Both are empty for configurations that hand the decoded
	// bytes over directly.
	CertificatePath    string
	CertificateKeyPath string

	Items []AppItem

	AccessLog string
	ErrorLog  string
}

// Redirects returns the items in configuration order whose Kind is
// KindRedirect, for the SNI-phase scan.
func (c *Conf) Redirects() []AppItem {
	var out []AppItem
	for _, item := range c.Items {
		if item.Kind == KindRedirect {
			out = append(out, item)
		}
	}
	return out
}
