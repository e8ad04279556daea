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
	"github.com/coldwax/capsule/gemini"
)

// Outcome is what a handler reports after being given a chance to serve a
// request.
type Outcome int

const (
	// Pass means the item didn't apply to this request; the dispatcher
	// should keep trying later items.
	Pass Outcome = iota
	// Served means the item produced a response, including failure
	// responses whose wire text is part of the protocol contract (a
	// traversal rejection's "Permission denied", a CGI child's "exited
	// with status N").
	Served
	// Failed means the item applied but hit an unexpected error; the
	// handler logs the details and the dispatcher answers with a generic
	// 50 rather than falling through to a later item that happens to
	// also match.
	Failed
)

// SelectRedirect scans conf's redirect items in declaration order for one
// whose domain glob matches serverName, and returns the first match. It is
// called from the SNI peek, before any request has been parsed.
func SelectRedirect(conf *Conf, serverName string) *RedirectItem {
	for _, item := range conf.Items {
		if item.Kind == KindRedirect && item.MatchDomain(serverName) {
			return item.Redirect
		}
	}
	return nil
}

// DispatchResult is the overall outcome of one Dispatch run.
type DispatchResult int

const (
	// Answered means the returned response goes on the wire: a handler
	// Served it, or a handler Failed and Dispatch substituted a generic
	// "50 Internal server error".
	Answered DispatchResult = iota
	// NoCandidates means no item's domain and rule matched the request at
	// all; the capsule doesn't serve this application.
	NoCandidates
	// AllPassed means every matching item reported Pass; nothing behind
	// the matched applications had this resource.
	AllPassed
)

// Dispatch walks conf's items in declaration order, skipping redirect items
// (already handled at the SNI phase), and invokes handle on each item whose
// domain and path rule both match req. It stops at the first item that
// reports Served or Failed; a Pass keeps scanning.
//
// A Failed handler's response is discarded and replaced with a generic
// "50 Internal server error", so handler-internal diagnostics (dial
// targets, filesystem paths) never reach the wire; the details live in
// the item's error log.
func Dispatch(conf *Conf, req gemini.Request, handle func(item *AppItem, req gemini.Request) (gemini.Response, Outcome)) (gemini.Response, DispatchResult) {
	domain := req.Domain()
	path := req.Path()

	candidates := 0
	for i := range conf.Items {
		item := &conf.Items[i]
		if item.Kind == KindRedirect {
			continue
		}
		if !item.Matches(domain, path) {
			continue
		}
		candidates++

		resp, outcome := handle(item, req)
		switch outcome {
		case Served:
			return resp, Answered
		case Failed:
			return gemini.Fail(gemini.StatusPermanentFailure, "Internal server error"), Answered
		case Pass:
			continue
		}
	}

	if candidates == 0 {
		return gemini.Response{}, NoCandidates
	}
	return gemini.Response{}, AllPassed
}
