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

package capsule

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/coldwax/capsule/cache"
	"github.com/coldwax/capsule/cfg"
	"github.com/coldwax/capsule/logger"
	"github.com/coldwax/capsule/pathutil"
)

// Listener owns one capsule's bound socket, its certificate (reloaded on
// change, unless the capsule serves redirect items only), its response
// cache, and its mime table.
type Listener struct {
	Conf           *Conf
	Config         *cfg.Config
	ServerSoftware string
	MimeTablePath  string

	Log *logger.Logger

	cache *cache.Cache
	mime  *pathutil.MimeTable

	certMu    sync.RWMutex
	cert      *tls.Certificate
	certWatch *fsnotify.Watcher
}

// onlyRedirects reports whether every item in the capsule is a redirect,
// which is the one configuration where no certificate is required: the
// SNI peek aborts the handshake for every name before a server cert would
// ever be needed.
func (c *Conf) onlyRedirects() bool {
	for _, item := range c.Items {
		if item.Kind != KindRedirect {
			return false
		}
	}
	return len(c.Items) > 0
}

// NewListener constructs a Listener, loading its certificate (if any) and
// mime table up front. Loading either is fatal: both must be valid before
// the capsule starts accepting connections.
func NewListener(conf *Conf, config *cfg.Config, serverSoftware, mimeTablePath string, log *logger.Logger) (*Listener, error) {
	config.FillDefaults()

	l := &Listener{
		Conf:           conf,
		Config:         config,
		ServerSoftware: serverSoftware,
		MimeTablePath:  mimeTablePath,
		Log:            log,
		cache:          cache.New(),
	}

	if len(conf.Certificate) > 0 {
		if err := l.loadCertificate(conf.Certificate, conf.CertificateKey); err != nil {
			return nil, fmt.Errorf("capsule: failed to load certificate: %w", err)
		}
		if conf.CertificatePath != "" && conf.CertificateKeyPath != "" {
			if err := l.WatchCertificate(conf.CertificatePath, conf.CertificateKeyPath); err != nil {
				return nil, fmt.Errorf("capsule: failed to watch certificate: %w", err)
			}
		}
	} else if !conf.onlyRedirects() {
		return nil, fmt.Errorf("capsule: %s has non-redirect items but no certificate", conf.Listen)
	}

	mime, err := pathutil.LoadMimeTable(slog.Default(), mimeTablePath, config.MimeReloadDebounce)
	if err != nil {
		return nil, fmt.Errorf("capsule: failed to load mime table: %w", err)
	}
	l.mime = mime

	return l, nil
}

func (l *Listener) loadCertificate(certPEM, keyPEM []byte) error {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return err
	}
	l.certMu.Lock()
	l.cert = &cert
	l.certMu.Unlock()
	return nil
}

// WatchCertificate reloads the capsule's certificate whenever certPath or
// keyPath changes on disk, so an operator can rotate a certificate without
// restarting the process.
func (l *Listener) WatchCertificate(certPath, keyPath string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range uniqueDirs(certPath, keyPath) {
		if err := w.Add(dir); err != nil {
			w.Close()
			return err
		}
	}
	l.certWatch = w

	go func() {
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					timer.Reset(time.Second)
				}
			case <-timer.C:
				certPEM, err1 := os.ReadFile(certPath)
				keyPEM, err2 := os.ReadFile(keyPath)
				if err1 != nil || err2 != nil {
					l.Log.Errorf("failed to reload certificate: %v / %v", err1, err2)
					continue
				}
				if err := l.loadCertificate(certPEM, keyPEM); err != nil {
					l.Log.Errorf("failed to reload certificate: %v", err)
					continue
				}
				l.Log.Accessf("reloaded certificate %s", certPath)
			}
		}
	}()

	return nil
}

func uniqueDirs(paths ...string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range paths {
		dir := filepath.Dir(p)
		if !seen[dir] {
			seen[dir] = true
			out = append(out, dir)
		}
	}
	return out
}

// GetCertificate satisfies tls.Config.GetCertificate: it returns whatever
// certificate is currently loaded, regardless of the requested SNI name,
// since each Listener serves exactly one capsule's material.
func (l *Listener) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.certMu.RLock()
	defer l.certMu.RUnlock()
	if l.cert == nil {
		return nil, fmt.Errorf("capsule: no certificate loaded for %s", l.Conf.Listen)
	}
	return l.cert, nil
}

// Serve binds the capsule's listen address and drives connections until
// ctx is canceled.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.Conf.Listen)
	if err != nil {
		return fmt.Errorf("capsule: failed to listen on %s: %w", l.Conf.Listen, err)
	}

	tlsConfig := &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: l.GetCertificate,
	}

	pipeline := NewPipeline(l.Conf, l.Config, tlsConfig, l.cache, l.Log, l.ServerSoftware)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		ln.Close()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		l.runCacheCleanup(ctx)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			l.Log.Errorf("failed to accept connection: %v", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			pipeline.Handle(ctx, conn, l.mime)
		}()
	}

	wg.Wait()
	return nil
}

func (l *Listener) runCacheCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.Config.CacheCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.cache.CleanUp(); removed > 0 {
				l.Log.Accessf("cache sweep removed %d entries", removed)
			}
		}
	}
}

// Close releases the listener's mime table and certificate watch.
func (l *Listener) Close() error {
	if l.certWatch != nil {
		l.certWatch.Close()
	}
	if l.mime != nil {
		return l.mime.Close()
	}
	return nil
}
