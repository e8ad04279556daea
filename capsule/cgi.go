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
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/creack/pty"

	"github.com/coldwax/capsule/gemini"
	"github.com/coldwax/capsule/logger"
	"github.com/coldwax/capsule/pathutil"
)

// errCGINotFound distinguishes "no matching script" (fall through to the
// next application item) from an actual I/O error that should fail the
// connection.
var errCGINotFound = errors.New("capsule: no matching cgi script")

// cgiMatch is what findCGIFile resolved: the script to run, the URL path
// that selected it, and whatever request path remained after the script's
// own path was consumed (PATH_INFO).
type cgiMatch struct {
	file     string
	path     string
	pathInfo string
	urlPath  string
}

// findCGIFile walks from the request path up through conf.CGIRoot looking
// for a regular file (honoring conf.Extensions), descending into a
// directory's configured index when the path currently points at one. It
// mirrors a shell's script-resolution-by-longest-prefix: "/cgi/foo/bar"
// resolves to "/cgi/foo" (the script) with "/bar" left over as PATH_INFO
// whenever "/cgi/foo/bar" itself doesn't exist.
func findCGIFile(req gemini.Request, conf *CGIItem) (cgiMatch, error) {
	decoded, err := url.PathUnescape(req.Path())
	if err != nil {
		decoded = req.Path()
	}
	relPath := strings.TrimPrefix(decoded, "/")

	safe, err := pathutil.TraversalSafe(relPath)
	if err != nil {
		return cgiMatch{}, errCGINotFound
	}

	originalPath, err := pathutil.Expand(decoded)
	if err != nil {
		return cgiMatch{}, errCGINotFound
	}
	cgiPath := strings.TrimSuffix(originalPath, "/")

	file := pathutil.Join(conf.CGIRoot, safe)

	matchesExtension := func(name string) bool {
		if len(conf.Extensions) == 0 {
			return true
		}
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		for _, e := range conf.Extensions {
			if e == ext {
				return true
			}
		}
		return false
	}

	for {
		info, err := os.Stat(file)
		if err == nil {
			if info.Mode().IsRegular() && matchesExtension(file) {
				return cgiMatch{
					file:     file,
					path:     cgiPath,
					pathInfo: strings.Replace(originalPath, cgiPath, "", 1),
					urlPath:  originalPath,
				}, nil
			}
			if info.IsDir() {
				entries, err := os.ReadDir(file)
				if err != nil {
					return cgiMatch{}, err
				}
				for _, ent := range entries {
					for _, idx := range conf.Indexes {
						if !idx.Match(ent.Name()) {
							continue
						}
						childInfo, err := ent.Info()
						if err == nil && childInfo.Mode().IsRegular() {
							child := pathutil.Join(file, ent.Name())
							if matchesExtension(child) {
								return cgiMatch{
									file:     child,
									path:     cgiPath,
									pathInfo: strings.Replace(originalPath, cgiPath, "", 1),
									urlPath:  originalPath,
								}, nil
							}
						}
					}
				}
			}
		}

		parent := pathutil.Parent(file)
		if parent == "" || parent == file || !strings.HasPrefix(parent, conf.CGIRoot) {
			return cgiMatch{}, errCGINotFound
		}
		file = parent

		cgiParent := pathutil.Parent(cgiPath)
		if cgiParent == "" && cgiPath != "" {
			return cgiMatch{}, errCGINotFound
		}
		cgiPath = strings.TrimSuffix(cgiParent, "/")
	}
}

// shebangCommand inspects file's first line for a "#!" interpreter
// directive, returning the interpreter and any arguments it was given.
func shebangCommand(file string) (command string, args []string, err error) {
	f, err := os.Open(file)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, 256)
	line, _ := reader.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")

	if !strings.HasPrefix(line, "#!") {
		return file, nil, nil
	}

	fields := strings.Fields(line[2:])
	if len(fields) == 0 {
		return "", nil, errors.New("capsule: empty shebang")
	}
	return fields[0], append(fields[1:], file), nil
}

// ServeCGI implements the CGI application item: resolve the script,
// assemble its environment per the Gemini CGI convention, run it, and
// parse its stdout as a response. A script that exits non-zero or whose
// stdout doesn't parse produces a 42 response instead of failing the
// connection outright. maxOutput caps how much of the child's stdout and
// stderr is buffered; conf.MaxOutputBytes overrides it per item.
func ServeCGI(ctx context.Context, conf *CGIItem, req gemini.Request, listen, serverSoftware string, remoteAddr string, maxOutput int64, log *logger.Logger) (gemini.Response, Outcome) {
	match, err := findCGIFile(req, conf)
	if err != nil {
		if errors.Is(err, errCGINotFound) {
			return gemini.Response{}, Pass
		}
		log.Errorf("cgi lookup failed: %v", err)
		return gemini.Response{}, Failed
	}

	command, args, err := shebangCommand(match.file)
	if err != nil {
		log.Errorf("cgi shebang: %v", err)
		return gemini.Response{}, Failed
	}

	env := []string{
		"GATEWAY_INTERFACE=1.1",
		"REMOTE_ADDR=" + remoteAddr,
		"REMOTE_HOST=" + remoteAddr,
		"REQUEST_METHOD=",
		"SCRIPT_NAME=" + match.path,
		"SERVER_NAME=" + req.Domain(),
		"SERVER_PORT=" + portOf(listen),
		"SERVER_PROTOCOL=GEMINI",
		"SERVER_SOFTWARE=" + serverSoftware,
		"GEMINI_DOCUMENT_ROOT=" + filepath.Dir(match.file),
		"GEMINI_SCRIPT_FILENAME=" + match.file,
		"GEMINI_URL=" + req.URI(),
		"GEMINI_URL_PATH=" + match.urlPath,
	}
	if path, ok := os.LookupEnv("PATH"); ok {
		env = append(env, "PATH="+path)
	}
	if match.pathInfo != "" {
		translated := pathutil.Join(conf.CGIRoot, strings.TrimPrefix(match.pathInfo, "/"))
		env = append(env, "PATH_INFO="+match.pathInfo, "PATH_TRANSLATED="+translated)
	}
	if req.HasQuery() {
		env = append(env, "QUERY_STRING="+req.Query())
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = env

	limit := conf.MaxOutputBytes
	if limit <= 0 {
		limit = maxOutput
	}
	if limit <= 0 {
		limit = 1024 * 1024
	}

	var stdout, stderr []byte
	if conf.PTY {
		stdout, stderr, err = runWithPTY(cmd, limit)
	} else {
		stdout, stderr, err = runWithPipes(cmd, limit)
	}

	if int64(len(stdout)) >= limit {
		log.Errorf("cgi output truncated at %d bytes", limit)
	}
	if len(stderr) > 0 {
		log.Error(string(stderr))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Errorf("cgi script exited with status %d", exitErr.ExitCode())
			return gemini.Fail(gemini.StatusCGIError, fmt.Sprintf("exited with status %d", exitErr.ExitCode())), Served
		}
		log.Errorf("cgi script failed to run: %v", err)
		return gemini.Response{}, Failed
	}

	resp, err := gemini.ParseResponse(stdout)
	if err != nil {
		log.Errorf("cgi response: %v", err)
		return gemini.Fail(gemini.StatusCGIError, "invalid response header"), Served
	}
	return resp, Served
}

func portOf(listen string) string {
	if idx := strings.LastIndexByte(listen, ':'); idx >= 0 {
		return listen[idx+1:]
	}
	return listen
}

func runWithPipes(cmd *exec.Cmd, limit int64) (stdout, stderr []byte, err error) {
	var outBuf, errBuf limitedBuffer
	outBuf.limit = limit
	errBuf.limit = limit
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.buf, errBuf.buf, err
}

// runWithPTY attaches the child's stdout+stderr to one pseudo-terminal,
// for scripts that refuse to run unless they believe they own a tty. PTY
// output is not split into separate stdout/stderr streams, so stderr is
// always empty here; any error text the script wrote shows up in stdout
// and fails gemini.ParseResponse, which is an acceptable loss for an
// already-unusual mode.
func runWithPTY(cmd *exec.Cmd, limit int64) (stdout, stderr []byte, err error) {
	f, err := pty.Start(cmd)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var buf limitedBuffer
	buf.limit = limit
	_, copyErr := io.Copy(&buf, f)

	waitErr := cmd.Wait()
	if waitErr != nil {
		return buf.buf, nil, waitErr
	}
	// A PTY's read side returns io.EOF wrapped as a syscall error when
	// the child exits; only surface copyErr if the child itself failed.
	_ = copyErr
	return buf.buf, nil, nil
}

// limitedBuffer accumulates writes up to limit bytes and silently drops
// anything past that.
type limitedBuffer struct {
	buf   []byte
	limit int64
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if int64(len(b.buf)) >= b.limit {
		return len(p), nil
	}
	remaining := b.limit - int64(len(b.buf))
	if int64(len(p)) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}
