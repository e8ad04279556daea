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
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"

	"github.com/coldwax/capsule/gemini"
	"github.com/coldwax/capsule/logger"
)

// ServeProxy implements the proxy application item: a request matched
// locally is forwarded to item.TargetAuthority over a fresh TLS
// connection, and whatever that server answers is relayed back verbatim,
// using the same request/response codec the rest of the capsule speaks.
func ServeProxy(ctx context.Context, item *ProxyItem, req gemini.Request, log *logger.Logger) (gemini.Response, Outcome) {
	// Gemini servers almost universally present self-signed certificates;
	// trust-on-first-use policy belongs to the client, not this relay.
	dialer := &tls.Dialer{Config: &tls.Config{
		ServerName:         hostOf(item.TargetAuthority),
		InsecureSkipVerify: true,
	}}
	conn, err := dialer.DialContext(ctx, "tcp", item.TargetAuthority)
	if err != nil {
		log.Errorf("proxy: failed to connect to %s: %v", item.TargetAuthority, err)
		return gemini.Response{}, Failed
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, req.URI()+"\r\n"); err != nil {
		log.Errorf("proxy: failed to write request to %s: %v", item.TargetAuthority, err)
		return gemini.Response{}, Failed
	}

	body, err := io.ReadAll(bufio.NewReader(conn))
	if err != nil {
		log.Errorf("proxy: failed to read response from %s: %v", item.TargetAuthority, err)
		return gemini.Response{}, Failed
	}

	resp, err := gemini.ParseResponse(body)
	if err != nil {
		log.Errorf("proxy: invalid response from %s: %v", item.TargetAuthority, err)
		return gemini.Response{}, Failed
	}

	return resp, Served
}

func hostOf(authority string) string {
	host, _, err := net.SplitHostPort(authority)
	if err != nil {
		return authority
	}
	return host
}
