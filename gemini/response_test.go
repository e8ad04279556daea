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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseFramingRoundTrip(t *testing.T) {
	cases := []Response{
		Input("search term?"),
		SensitiveInput("password?"),
		Success("text/gemini", []byte("# hi\n")),
		Success("text/plain", nil),
		Redirect("/new/path", false),
		Redirect("/new/path", true),
		Fail(StatusTemporaryFailure, "try again"),
		Fail(StatusNotFound, "nope"),
		Fail(StatusCGIError, "exited with status 2"),
		Fail(StatusClientCertificateRequired, "cert please"),
	}

	for _, r := range cases {
		t.Run(r.Header(), func(t *testing.T) {
			wire := r.Bytes()

			assert.Len(t, wire[:2], 2)
			assert.Regexp(t, `^[0-9]{2} `, string(wire))

			parsed, err := ParseResponse(wire)
			require.NoError(t, err)
			assert.Equal(t, r.Status(), parsed.Status())
			assert.Equal(t, r.Meta(), parsed.Meta())

			body, hasBody := r.Body()
			parsedBody, parsedHasBody := parsed.Body()
			assert.Equal(t, hasBody, parsedHasBody)
			if hasBody {
				assert.Equal(t, body, parsedBody)
			}
		})
	}
}

func TestResponseRejectsLineBreakInMeta(t *testing.T) {
	_, err := New(StatusInput, "bad\r\nmeta")
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestResponseRejectsUnknownStatus(t *testing.T) {
	_, err := New(99, "meta")
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseResponseRejectsUnknownStatus(t *testing.T) {
	_, err := ParseResponse([]byte("07 nope\r\n"))
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseResponseOnlyBodyForSuccess(t *testing.T) {
	r, err := ParseResponse([]byte("51 not found\r\nthis is not a body\n"))
	require.NoError(t, err)
	_, hasBody := r.Body()
	assert.False(t, hasBody)
}
