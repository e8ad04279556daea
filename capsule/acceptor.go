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
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
)

// teeConn records every byte Read from the wrapped connection into buf, so
// whatever a TLS handshake reads from it (the ClientHello, in practice) can
// be replayed verbatim to an upstream server if the connection turns out to
// be an opaque redirect rather than one this capsule terminates.
//
// Writes are passed straight through; recording only matters for the
// handshake's reads, since redirecting aborts before any bytes are written
// back to the client.
type teeConn struct {
	net.Conn
	mu        sync.Mutex
	buf       bytes.Buffer
	recording bool
}

func (t *teeConn) Read(p []byte) (int, error) {
	n, err := t.Conn.Read(p)
	if n > 0 {
		t.mu.Lock()
		if t.recording {
			t.buf.Write(p[:n])
		}
		t.mu.Unlock()
	}
	return n, err
}

func (t *teeConn) recorded() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.buf.Bytes()...)
}

// stopRecording discards the buffered ClientHello and stops copying
// further reads into it. Called once a handshake completes without a
// redirect, so a long-lived terminated connection doesn't grow an
// unbounded copy of everything it ever reads.
func (t *teeConn) stopRecording() {
	t.mu.Lock()
	t.recording = false
	t.buf.Reset()
	t.mu.Unlock()
}

// errAbortForRedirect is returned by a GetConfigForClient callback to abort
// a handshake after it has decided the connection should be redirected
// instead of terminated. It never escapes this package: peekClientHello
// unwraps it before returning.
var errAbortForRedirect = errors.New("capsule: aborting handshake for redirect")

// peekResult is the outcome of peeking a connection's ClientHello.
type peekResult struct {
	// ServerName is the SNI name offered by the client, or "" if none.
	ServerName string
	// Redirect is the matched redirect item, if SNI matched one
	// configured on the capsule. When non-nil, TLSConn is nil and Raw
	// holds every byte read from the connection so far (the ClientHello
	// record(s)), which must be replayed to the upstream verbatim.
	Redirect *RedirectItem
	Raw      []byte

	// TLSConn is the live, handshake-complete connection, set only when
	// Redirect is nil.
	TLSConn *tls.Conn
}

// peekClientHello performs a single-pass TLS server handshake that branches
// on SNI before any bytes are written back to the client: resolveConfig is
// invoked with the ClientHello's SNI name exactly once, and decides whether
// this capsule terminates TLS for that name (returning a *tls.Config) or
// hands the connection off to a raw byte splice (returning a non-nil
// *RedirectItem instead).
//
// Go's crypto/tls has no public "accept, but stop before the handshake
// writes anything" primitive (unlike a ClientHello-splitting acceptor type
// some TLS libraries expose), so this reproduces the same effect: tee every
// byte read from conn, and if resolveConfig asks for a redirect, abort the
// handshake from inside GetConfigForClient before the server writes a
// ServerHello, then replay the recorded bytes to the upstream.
func peekClientHello(conn net.Conn, resolveConfig func(serverName string) (*tls.Config, *RedirectItem)) (peekResult, error) {
	tee := &teeConn{Conn: conn, recording: true}

	var matched *RedirectItem
	var serverName string

	base := &tls.Config{
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			serverName = hello.ServerName

			cfg, redirect := resolveConfig(hello.ServerName)
			if redirect != nil {
				matched = redirect
				return nil, errAbortForRedirect
			}
			return cfg, nil
		},
	}

	tlsConn := tls.Server(tee, base)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		if matched != nil {
			return peekResult{
				ServerName: serverName,
				Redirect:   matched,
				Raw:        tee.recorded(),
			}, nil
		}
		return peekResult{}, err
	}

	tee.stopRecording()
	return peekResult{ServerName: serverName, TLSConn: tlsConn}, nil
}

// splice replays raw (the already-read ClientHello bytes) to upstream, then
// relays bytes bidirectionally between client and upstream until either
// side closes or errors. It never inspects the stream again: from here on
// the capsule is a dumb byte pipe.
func splice(client net.Conn, upstream net.Conn, raw []byte) error {
	if len(raw) > 0 {
		if _, err := upstream.Write(raw); err != nil {
			return err
		}
	}

	errc := make(chan error, 2)
	go func() {
		_, err := io.Copy(upstream, client)
		if tc, ok := upstream.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		errc <- err
	}()
	go func() {
		_, err := io.Copy(client, upstream)
		if tc, ok := client.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		errc <- err
	}()

	err1 := <-errc
	err2 := <-errc
	if err1 != nil {
		return err1
	}
	return err2
}
