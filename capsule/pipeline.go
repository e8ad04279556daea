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
	"errors"
	"io"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/coldwax/capsule/cache"
	"github.com/coldwax/capsule/cfg"
	"github.com/coldwax/capsule/gemini"
	"github.com/coldwax/capsule/logger"
	"github.com/coldwax/capsule/pathutil"
)

// Handler is what the connection pipeline calls to dispatch a parsed
// request against one matched application item.
type Handler func(ctx context.Context, item *AppItem, req gemini.Request, remoteAddr string) (gemini.Response, Outcome)

// Pipeline drives every accepted connection for one capsule: peek SNI,
// either splice a redirect or finish the handshake, read and parse a
// request, consult the cache, dispatch, and write the response.
type Pipeline struct {
	Conf           *Conf
	Config         *cfg.Config
	TLSConfig      *tls.Config
	Cache          *cache.Cache
	Log            *logger.Logger
	ServerSoftware string

	Buffers sync.Pool
}

// NewPipeline returns a Pipeline with its request-line buffer pool sized
// to config.MaxRequestLine.
func NewPipeline(conf *Conf, config *cfg.Config, tlsConfig *tls.Config, c *cache.Cache, log *logger.Logger, serverSoftware string) *Pipeline {
	p := &Pipeline{Conf: conf, Config: config, TLSConfig: tlsConfig, Cache: c, Log: log, ServerSoftware: serverSoftware}
	p.Buffers.New = func() any {
		return make([]byte, config.MaxRequestLine)
	}
	return p
}

// Handle drives one accepted TCP connection end to end. It never returns
// an error: every failure is logged and answered (where an answer is
// still possible) instead.
func (p *Pipeline) Handle(ctx context.Context, conn net.Conn, mime *pathutil.MimeTable) {
	defer conn.Close()

	connID := uuid.New().String()
	log := p.Log.AsGroup(conn.RemoteAddr().String() + " " + connID)

	if err := conn.SetDeadline(time.Now().Add(p.Config.RequestTimeout)); err != nil {
		log.Errorf("failed to set deadline: %v", err)
		return
	}

	result, err := peekClientHello(conn, func(serverName string) (*tls.Config, *RedirectItem) {
		if redirect := SelectRedirect(p.Conf, serverName); redirect != nil {
			return nil, redirect
		}
		return p.TLSConfig, nil
	})
	if err != nil {
		log.Errorf("handshake failed: %v", err)
		return
	}

	if result.Redirect != nil {
		if err := ServeRedirect(result.Redirect, conn, result.Raw, log); err != nil {
			log.Errorf("redirect failed: %v", err)
		}
		return
	}

	p.serve(ctx, result.TLSConn, conn.RemoteAddr().String(), log, mime)
}

func (p *Pipeline) readRequestLine(conn net.Conn) (string, error) {
	buf := p.Buffers.Get().([]byte)
	defer p.Buffers.Put(buf)

	total := 0
	for {
		if total == len(buf) {
			return "", errors.New("capsule: request line too long")
		}

		n, err := conn.Read(buf[total : total+1])
		if n > 0 {
			total += n
			if total >= 2 && buf[total-2] == '\r' && buf[total-1] == '\n' {
				return string(buf[:total-2]), nil
			}
			if buf[total-1] == '\n' {
				return string(buf[:total-1]), nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && total > 0 {
				return string(buf[:total]), nil
			}
			return "", err
		}
	}
}

func (p *Pipeline) serve(ctx context.Context, tlsConn *tls.Conn, remoteAddr string, log *logger.Logger, mime *pathutil.MimeTable) {
	line, err := p.readRequestLine(tlsConn)
	if err != nil {
		log.Errorf("failed to read request: %v", err)
		return
	}

	if !utf8.ValidString(line) {
		log.Errorf("request line is not valid utf-8")
		writeResponse(tlsConn, gemini.Fail(gemini.StatusBadRequest, "Malformed request"), log)
		return
	}

	req, err := gemini.Parse(line)
	if err != nil {
		log.Errorf("failed to parse request %q: %v", line, err)
		writeResponse(tlsConn, gemini.Fail(gemini.StatusBadRequest, "Malformed request"), log)
		return
	}

	if cached, ok := p.Cache.Get(req.Key()); ok {
		if _, err := tlsConn.Write(cached); err != nil {
			log.Errorf("failed to write cached response: %v", err)
		}
		log.Accessf("%s (cached)", req.URI())
		return
	}

	resp, result := Dispatch(p.Conf, req, func(item *AppItem, req gemini.Request) (gemini.Response, Outcome) {
		return p.dispatchItem(ctx, item, req, remoteAddr, log, mime)
	})
	switch result {
	case NoCandidates:
		resp = gemini.Fail(gemini.StatusNotFound, "Requested application not served here")
	case AllPassed:
		resp = gemini.Fail(gemini.StatusNotFound, "Resource not found")
	}

	if result == Answered && resp.Status() == gemini.StatusSuccess {
		if ttl, ok := p.cacheTTL(req.Domain(), req.Path()); ok {
			p.Cache.Insert(req.Key(), resp.Bytes(), ttl)
		}
	}

	log.Accessf("%s -> %d", req.URI(), resp.Status())
	writeResponse(tlsConn, resp, log)
}

func (p *Pipeline) cacheTTL(domain, path string) (time.Duration, bool) {
	for i := range p.Conf.Items {
		item := &p.Conf.Items[i]
		if item.Kind != KindFile || (!item.File.Cache && item.File.CacheTTL <= 0) {
			continue
		}
		if item.Matches(domain, path) {
			if item.File.CacheTTL > 0 {
				return item.File.CacheTTL, true
			}
			return p.Config.DefaultCacheTTL, true
		}
	}
	return 0, false
}

func (p *Pipeline) dispatchItem(ctx context.Context, item *AppItem, req gemini.Request, remoteAddr string, log *logger.Logger, mime *pathutil.MimeTable) (gemini.Response, Outcome) {
	itemLog := log
	if item.AccessLog != "" || item.ErrorLog != "" {
		if withLogs, err := log.AsLogs(item.AccessLog, item.ErrorLog); err == nil {
			itemLog = withLogs
		}
	}

	switch item.Kind {
	case KindFile:
		return ServeFile(item.File, req, mime, itemLog)
	case KindCGI:
		return ServeCGI(ctx, item.CGI, req, p.Conf.Listen, p.ServerSoftware, remoteAddr, p.Config.CGIMaxOutputBytes, itemLog)
	case KindProxy:
		return ServeProxy(ctx, item.Proxy, req, itemLog)
	default:
		return gemini.Response{}, Pass
	}
}

func writeResponse(w io.Writer, resp gemini.Response, log *logger.Logger) {
	if _, err := resp.WriteTo(w); err != nil {
		log.Errorf("failed to write response: %v", err)
	}
}
