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
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/coldwax/capsule/gemini"
	"github.com/coldwax/capsule/logger"
	"github.com/coldwax/capsule/pathutil"
)

// cleanPath checks whether the requested path exists under root. If it
// doesn't and the request ended in "/", the slash is stripped and the check
// repeated, so "/foo/" can resolve to a file "/foo"; it never walks further
// up the tree than that. If what it finds is a directory and the request
// didn't end in "/", or is a file and the request did, it returns a
// redirect to the canonical form instead of serving anything.
//
// A redirect that changes the path based on what's actually on disk (as
// opposed to echoing back exactly what the client asked for) depends on
// runtime state, so it's framed as 30 (temporary) whenever the request
// carried a query string worth preserving, and 31 (permanent) otherwise;
// a preserved query is appended as "?query" to the redirect target.
func cleanPath(root, relPath, requestPath, query string, hasQuery bool) (gemini.Response, bool, error) {
	path := relPath
	redirectPath := requestPath

	for {
		file := pathutil.Join(root, path)
		info, err := os.Stat(file)
		if err == nil {
			if info.IsDir() && !strings.HasSuffix(redirectPath, "/") {
				redirectPath += "/"
			}
			if !info.IsDir() && strings.HasSuffix(redirectPath, "/") {
				redirectPath = strings.TrimSuffix(redirectPath, "/")
			}
			if redirectPath != requestPath {
				target := pathutil.Encode(redirectPath)
				if hasQuery {
					return gemini.Redirect(target+"?"+query, false), true, nil
				}
				return gemini.Redirect(target, true), true, nil
			}
			return gemini.Response{}, false, nil
		}
		if !os.IsNotExist(err) {
			return gemini.Response{}, false, err
		}

		if !strings.HasSuffix(redirectPath, "/") {
			return gemini.Response{}, false, err
		}
		redirectPath = strings.TrimSuffix(redirectPath, "/")
		path = strings.TrimSuffix(path, "/")
	}
}

// ServeFile implements the static-file application item: percent-decode the
// request path, resolve it traversal-safely under item.FileRoot, redirect
// to the canonical trailing-slash form for directories, substitute a
// configured index file, or list the directory's contents.
//
// A path that resolves to nothing on disk reports Pass rather than
// Failed, so the dispatcher keeps trying later items matching the same
// domain and rule instead of committing to a 51.
func ServeFile(item *FileItem, req gemini.Request, mime *pathutil.MimeTable, log *logger.Logger) (gemini.Response, Outcome) {
	decoded, err := url.PathUnescape(req.Path())
	if err != nil {
		decoded = req.Path()
	}

	relPath := strings.TrimPrefix(decoded, "/")

	safe, err := pathutil.TraversalSafe(relPath)
	if err != nil {
		log.Errorf("Invalid path %q: %v", decoded, err)
		return gemini.Fail(gemini.StatusPermanentFailure, "Permission denied"), Served
	}

	originalPath, err := pathutil.Expand(decoded)
	if err != nil {
		return gemini.Fail(gemini.StatusPermanentFailure, "Permission denied"), Served
	}
	// Expand normalizes away a trailing "/", but canonicalisation depends
	// on whether the client asked for the directory form.
	if strings.HasSuffix(decoded, "/") && !strings.HasSuffix(originalPath, "/") {
		originalPath += "/"
	}

	if resp, redirected, err := cleanPath(item.FileRoot, safe, originalPath, req.Query(), req.HasQuery()); err != nil {
		if os.IsNotExist(err) {
			return gemini.Response{}, Pass
		}
		log.Errorf("Failed to resolve %s: %v", originalPath, err)
		return gemini.Response{}, Failed
	} else if redirected {
		return resp, Served
	}

	file := pathutil.Join(item.FileRoot, safe)
	info, err := os.Stat(file)
	if err != nil {
		return gemini.Response{}, Pass
	}

	if info.IsDir() {
		return serveDirectory(item, file, originalPath, mime, log)
	}
	if !info.Mode().IsRegular() {
		log.Errorf("Refusing to serve non-regular file %s", file)
		return gemini.Fail(gemini.StatusPermanentFailure, "Permission denied"), Served
	}

	body, err := os.ReadFile(file)
	if err != nil {
		log.Errorf("Failed to read %s: %v", file, err)
		return gemini.Response{}, Failed
	}
	return gemini.Success(mime.Lookup(file), body), Served
}

func serveDirectory(item *FileItem, dir, originalPath string, mime *pathutil.MimeTable, log *logger.Logger) (gemini.Response, Outcome) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Errorf("Failed to list %s: %v", dir, err)
		return gemini.Response{}, Failed
	}

	var folders, files []string
	for _, ent := range entries {
		if ent.IsDir() {
			folders = append(folders, ent.Name())
			continue
		}
		for _, idx := range item.Indexes {
			if idx.Match(ent.Name()) {
				body, err := os.ReadFile(pathutil.Join(dir, ent.Name()))
				if err != nil {
					log.Errorf("Failed to read index %s: %v", ent.Name(), err)
					return gemini.Response{}, Failed
				}
				return gemini.Success(mime.Lookup(ent.Name()), body), Served
			}
		}
		files = append(files, ent.Name())
	}

	if !item.SendFolders {
		return gemini.Fail(gemini.StatusPermanentFailure, "Permission denied"), Served
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", originalPath)
	if parent := pathutil.Parent(originalPath); parent != "" {
		fmt.Fprintf(&b, "=> %s ..\n\n", pathutil.Encode(parent))
	}

	sort.Strings(folders)
	for _, folder := range folders {
		link := pathutil.Join(pathutil.Encode(originalPath), pathutil.Encode(folder)+"/")
		fmt.Fprintf(&b, "=> %s \U0001F4C2 %s\n", link, folder)
	}

	sort.Strings(files)
	for _, f := range files {
		link := pathutil.Join(pathutil.Encode(originalPath), pathutil.Encode(f))
		fmt.Fprintf(&b, "=> %s \U0001F4C3 %s\n", link, f)
	}

	return gemini.Success("text/gemini", []byte(b.String())), Served
}
