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

// Package config loads a [capsule.Conf] from a JSON file: the reading,
// defaulting, and path resolution that the core pointedly leaves to "the
// surrounding configuration loader." This package is that loader, built
// around encoding/json the same way every other binary in this repo
// decodes its own configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/coldwax/capsule/capsule"
	"github.com/coldwax/capsule/glob"
)

// item is the wire shape of one application entry: every field any kind
// might use, tagged by which of redirect/proxy/cgi_root/file_root is set,
// matching the "one struct, several optional fields" shape the original's
// own ConfigurationItem used before it was split into per-kind types.
type item struct {
	DomainNames []string `json:"domain_names"`
	Rule        string   `json:"rule"`
	AccessLog   string   `json:"access_log"`
	ErrorLog    string   `json:"error_log"`

	Redirect string `json:"redirect"`

	Proxy string `json:"proxy"`

	CGIRoot        string   `json:"cgi_root"`
	Extensions     []string `json:"extensions"`
	PTY            bool     `json:"pty"`
	MaxOutputBytes int64    `json:"max_output_bytes"`

	FileRoot        string `json:"file_root"`
	SendFolders     bool   `json:"send_folders"`
	Cache           bool   `json:"cache"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`

	// Indexes is shared between cgi_root (matched against the directory
	// entry name the same way file_root's is) and file_root.
	Indexes []string `json:"indexes"`
}

type file struct {
	Listen         string `json:"listen"`
	Certificate    string `json:"certificate"`
	CertificateKey string `json:"certificate_key"`
	AccessLog      string `json:"access_log"`
	ErrorLog       string `json:"error_log"`
	Items          []item `json:"items"`
}

// Load reads and resolves a capsule configuration file: every field named
// *_log, *_root, certificate, and certificate_key is resolved relative to
// path's directory, and exactly one of an item's redirect/proxy/cgi_root/
// file_root fields must be set.
func Load(path string) (*capsule.Conf, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	var raw file
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	conf := &capsule.Conf{
		Listen:    raw.Listen,
		AccessLog: resolve(raw.AccessLog),
		ErrorLog:  resolve(raw.ErrorLog),
	}

	if raw.Certificate != "" || raw.CertificateKey != "" {
		if raw.Certificate == "" || raw.CertificateKey == "" {
			return nil, fmt.Errorf("config: %s: certificate and certificate_key must both be set", path)
		}
		cert, err := os.ReadFile(resolve(raw.Certificate))
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		key, err := os.ReadFile(resolve(raw.CertificateKey))
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		conf.Certificate = cert
		conf.CertificateKey = key
		conf.CertificatePath = resolve(raw.Certificate)
		conf.CertificateKeyPath = resolve(raw.CertificateKey)
	}

	for i, raw := range raw.Items {
		built, err := buildItem(raw, resolve)
		if err != nil {
			return nil, fmt.Errorf("config: item %d: %w", i, err)
		}
		conf.Items = append(conf.Items, built)
	}

	return conf, nil
}

func compileGlobs(patterns []string) []glob.Glob {
	globs := make([]glob.Glob, len(patterns))
	for i, p := range patterns {
		globs[i] = glob.Compile(p)
	}
	return globs
}

func buildItem(raw item, resolve func(string) string) (capsule.AppItem, error) {
	kinds := 0
	for _, set := range []bool{raw.Redirect != "", raw.Proxy != "", raw.CGIRoot != "", raw.FileRoot != ""} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return capsule.AppItem{}, fmt.Errorf("exactly one of redirect/proxy/cgi_root/file_root must be set, got %d", kinds)
	}

	out := capsule.AppItem{
		Domains:   compileGlobs(raw.DomainNames),
		AccessLog: resolve(raw.AccessLog),
		ErrorLog:  resolve(raw.ErrorLog),
	}

	if raw.Rule != "" {
		re, err := regexp.Compile(raw.Rule)
		if err != nil {
			return capsule.AppItem{}, fmt.Errorf("invalid rule %q: %w", raw.Rule, err)
		}
		out.Rule = re
	}

	switch {
	case raw.Redirect != "":
		out.Kind = capsule.KindRedirect
		out.Redirect = &capsule.RedirectItem{TargetAuthority: raw.Redirect}

	case raw.Proxy != "":
		out.Kind = capsule.KindProxy
		out.Proxy = &capsule.ProxyItem{TargetAuthority: raw.Proxy}

	case raw.CGIRoot != "":
		out.Kind = capsule.KindCGI
		out.CGI = &capsule.CGIItem{
			CGIRoot:        resolve(raw.CGIRoot),
			Extensions:     raw.Extensions,
			Indexes:        compileGlobs(raw.Indexes),
			PTY:            raw.PTY,
			MaxOutputBytes: raw.MaxOutputBytes,
		}

	case raw.FileRoot != "":
		out.Kind = capsule.KindFile
		out.File = &capsule.FileItem{
			FileRoot:    resolve(raw.FileRoot),
			SendFolders: raw.SendFolders,
			Indexes:     compileGlobs(raw.Indexes),
			Cache:       raw.Cache || raw.CacheTTLSeconds > 0,
			CacheTTL:    time.Duration(raw.CacheTTLSeconds) * time.Second,
		}
	}

	return out, nil
}
