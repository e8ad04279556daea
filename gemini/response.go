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

package gemini

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Status codes defined by the Gemini protocol. Only these values may appear
// in a constructed [Response]; anything else is ErrInvalidResponse.
const (
	StatusInput                     = 10
	StatusSensitiveInput            = 11
	StatusSuccess                   = 20
	StatusRedirectTemporary         = 30
	StatusRedirectPermanent         = 31
	StatusTemporaryFailure          = 40
	StatusServerUnavailable         = 41
	StatusCGIError                  = 42
	StatusProxyError                = 43
	StatusSlowDown                  = 44
	StatusPermanentFailure          = 50
	StatusNotFound                  = 51
	StatusGone                      = 52
	StatusProxyRequestRefused       = 53
	StatusBadRequest                = 59
	StatusClientCertificateRequired = 60
	StatusCertificateNotAuthorized  = 61
	StatusCertificateNotValid       = 62
)

// ErrInvalidResponse is returned by [ParseResponse] when the input isn't a
// well-formed Gemini response header, or by a constructor given a status
// outside the protocol's defined set.
var ErrInvalidResponse = errors.New("gemini: invalid response")

func validStatus(status int) bool {
	switch status {
	case StatusInput, StatusSensitiveInput, StatusSuccess,
		StatusRedirectTemporary, StatusRedirectPermanent,
		StatusTemporaryFailure, StatusServerUnavailable, StatusCGIError, StatusProxyError, StatusSlowDown,
		StatusPermanentFailure, StatusNotFound, StatusGone, StatusProxyRequestRefused,
		StatusBadRequest,
		StatusClientCertificateRequired, StatusCertificateNotAuthorized, StatusCertificateNotValid:
		return true
	default:
		return false
	}
}

// Response is a Gemini response: a status, a one-line meta string, and,
// only for [StatusSuccess], a body. Meta never contains '\r' or '\n'; the
// zero value is not a valid Response and is never returned from this
// package's constructors.
type Response struct {
	status  int
	meta    string
	body    []byte
	hasBody bool
}

// New constructs a Response for an arbitrary status, validating both the
// status and that meta carries no line breaks. Most callers want one of the
// status-specific constructors below instead.
func New(status int, meta string) (Response, error) {
	if !validStatus(status) {
		return Response{}, fmt.Errorf("%w: status %d", ErrInvalidResponse, status)
	}
	if strings.ContainsAny(meta, "\r\n") {
		return Response{}, fmt.Errorf("%w: meta contains a line break", ErrInvalidResponse)
	}
	return Response{status: status, meta: meta}, nil
}

func must(r Response, err error) Response {
	if err != nil {
		panic(err)
	}
	return r
}

// Success builds a 20 response with the given MIME type and body.
func Success(mimeType string, body []byte) Response {
	r := must(New(StatusSuccess, mimeType))
	r.body = body
	r.hasBody = true
	return r
}

// Input builds a 10 response prompting for input.
func Input(prompt string) Response { return must(New(StatusInput, prompt)) }

// SensitiveInput builds an 11 response prompting for input that a client
// should not echo.
func SensitiveInput(prompt string) Response { return must(New(StatusSensitiveInput, prompt)) }

// Redirect builds a 30 (temporary) or 31 (permanent) response.
func Redirect(target string, permanent bool) Response {
	if permanent {
		return must(New(StatusRedirectPermanent, target))
	}
	return must(New(StatusRedirectTemporary, target))
}

// Fail builds a 40-range or 50-range failure response with a free-form
// message.
func Fail(status int, message string) Response { return must(New(status, message)) }

// Status returns the two-digit status code.
func (r Response) Status() int { return r.status }

// Meta returns the meta line (without the status prefix or trailing CRLF).
func (r Response) Meta() string { return r.meta }

// Body returns the response body and whether one is present. Only
// [StatusSuccess] responses carry a body.
func (r Response) Body() ([]byte, bool) { return r.body, r.hasBody }

// Header returns "<status> <meta>\r\n".
func (r Response) Header() string {
	return strconv.Itoa(r.status) + " " + r.meta + "\r\n"
}

// WriteTo serializes the response (header, then body iff present) to w,
// matching [io.WriterTo].
func (r Response) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.Header())
	if err != nil {
		return int64(n), err
	}
	if r.hasBody {
		m, err := w.Write(r.body)
		return int64(n + m), err
	}
	return int64(n), nil
}

// Bytes returns the full serialized response.
func (r Response) Bytes() []byte {
	var buf bytes.Buffer
	r.WriteTo(&buf)
	return buf.Bytes()
}

// ParseResponse recovers a Response from wire bytes: the first line must be
// "<2-digit status> <meta>\r\n" (a bare "\n" is also accepted). After a
// [StatusSuccess] header everything that follows is the body, treated as
// opaque bytes (an empty remainder gives a nil body, as [Success] with a
// nil body does); after any other status the remainder is discarded.
func ParseResponse(data []byte) (Response, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	line, err := br.ReadString('\n')
	if err != nil && len(line) == 0 {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	line = strings.TrimRight(line, "\r\n")
	if len(line) < 2 {
		return Response{}, fmt.Errorf("%w: header too short", ErrInvalidResponse)
	}

	status, err := strconv.Atoi(line[:2])
	if err != nil || !validStatus(status) {
		return Response{}, fmt.Errorf("%w: bad status %q", ErrInvalidResponse, line[:2])
	}

	meta := strings.TrimLeft(line[2:], " \t")

	rest, err := io.ReadAll(br)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	r := Response{status: status, meta: meta}
	if status == StatusSuccess {
		if len(rest) > 0 {
			r.body = rest
		}
		r.hasBody = true
	}
	return r, nil
}
