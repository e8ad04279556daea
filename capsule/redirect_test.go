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
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldwax/capsule/cache"
	"github.com/coldwax/capsule/cfg"
	"github.com/coldwax/capsule/glob"
	"github.com/coldwax/capsule/logger"
)

func TestServeRedirectSplicesToUpstream(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	type upstreamSaw struct {
		hello, extra string
	}
	sawc := make(chan upstreamSaw, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			sawc <- upstreamSaw{}
			return
		}
		defer conn.Close()

		hello := make([]byte, len("CLIENT-HELLO"))
		if _, err := io.ReadFull(conn, hello); err != nil {
			sawc <- upstreamSaw{}
			return
		}
		io.WriteString(conn, "UPSTREAM")
		extra := make([]byte, len("MORE"))
		io.ReadFull(conn, extra)
		sawc <- upstreamSaw{hello: string(hello), extra: string(extra)}
	}()

	client, server := net.Pipe()
	item := &RedirectItem{TargetAuthority: ln.Addr().String()}

	served := make(chan error, 1)
	go func() {
		served <- ServeRedirect(item, server, []byte("CLIENT-HELLO"), logger.New("test"))
	}()

	buf := make([]byte, len("UPSTREAM"))
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "UPSTREAM", string(buf))

	_, err = client.Write([]byte("MORE"))
	require.NoError(t, err)

	saw := <-sawc
	assert.Equal(t, "CLIENT-HELLO", saw.hello)
	assert.Equal(t, "MORE", saw.extra)

	client.Close()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeRedirect did not return after both sides closed")
	}
}

func TestServeRedirectDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	item := &RedirectItem{TargetAuthority: addr}
	assert.Error(t, ServeRedirect(item, server, []byte("CLIENT-HELLO"), logger.New("test")))
}

// TestPipelineRedirectsBySNIWithoutLocalHandshake drives the whole pipeline
// for a redirected name: the capsule never answers the handshake itself,
// and the upstream receives the client's ClientHello record verbatim
// (including the plaintext SNI inside it).
func TestPipelineRedirectsBySNIWithoutLocalHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	helloc := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			helloc <- nil
			return
		}
		defer conn.Close()

		header := make([]byte, 5)
		if _, err := io.ReadFull(conn, header); err != nil {
			helloc <- nil
			return
		}
		rest := make([]byte, int(header[3])<<8|int(header[4]))
		if _, err := io.ReadFull(conn, rest); err != nil {
			helloc <- nil
			return
		}
		helloc <- append(header, rest...)
	}()

	conf := &Conf{
		Items: []AppItem{
			{
				Kind:     KindRedirect,
				Domains:  []glob.Glob{glob.Compile("mirror.example")},
				Redirect: &RedirectItem{TargetAuthority: ln.Addr().String()},
			},
		},
	}
	config := &cfg.Config{}
	config.FillDefaults()
	p := NewPipeline(conf, config, nil, cache.New(), logger.New("test"), "capsule/test")

	server, client := net.Pipe()
	handleDone := make(chan struct{})
	go func() {
		defer close(handleDone)
		p.Handle(context.Background(), server, nil)
	}()

	go tls.Client(client, &tls.Config{InsecureSkipVerify: true, ServerName: "mirror.example"}).Handshake()

	raw := <-helloc
	require.NotEmpty(t, raw)
	assert.Equal(t, byte(0x16), raw[0])
	assert.Contains(t, string(raw), "mirror.example")

	client.Close()
	select {
	case <-handleDone:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish after the client hung up")
	}
}
