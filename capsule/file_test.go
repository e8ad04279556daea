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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldwax/capsule/gemini"
	"github.com/coldwax/capsule/glob"
	"github.com/coldwax/capsule/logger"
	"github.com/coldwax/capsule/pathutil"
)

func newMimeTable(t *testing.T) *pathutil.MimeTable {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mime-types.toml")
	require.NoError(t, os.WriteFile(path, []byte("gmi = \"text/gemini\"\nbin = \"application/octet-stream\"\n"), 0o644))
	mime, err := pathutil.LoadMimeTable(nil, path, 0)
	require.NoError(t, err)
	t.Cleanup(func() { mime.Close() })
	return mime
}

func TestServeFileServesARegularFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.gmi"), []byte("# hi\n"), 0o644))

	item := &FileItem{FileRoot: root}
	req, err := gemini.Parse("gemini://example.com/index.gmi\r\n")
	require.NoError(t, err)

	resp, outcome := ServeFile(item, req, newMimeTable(t), logger.New("test"))
	require.Equal(t, Served, outcome)
	assert.Equal(t, gemini.StatusSuccess, resp.Status())
	assert.Equal(t, "text/gemini", resp.Meta())
	body, _ := resp.Body()
	assert.Equal(t, "# hi\n", string(body))
}

func TestServeFileMissingFilePasses(t *testing.T) {
	root := t.TempDir()
	item := &FileItem{FileRoot: root}
	req, err := gemini.Parse("gemini://example.com/nope.gmi\r\n")
	require.NoError(t, err)

	_, outcome := ServeFile(item, req, newMimeTable(t), logger.New("test"))
	assert.Equal(t, Pass, outcome)
}

func TestServeFileRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	item := &FileItem{FileRoot: root}
	req, err := gemini.Parse("gemini://example.com/../../etc/passwd\r\n")
	require.NoError(t, err)

	resp, outcome := ServeFile(item, req, newMimeTable(t), logger.New("test"))
	require.Equal(t, Served, outcome)
	assert.Equal(t, gemini.StatusPermanentFailure, resp.Status())
	assert.Equal(t, "Permission denied", resp.Meta())
}

func TestServeFileDirectoryWithoutTrailingSlashRedirects(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o755))

	item := &FileItem{FileRoot: root}
	req, err := gemini.Parse("gemini://example.com/docs\r\n")
	require.NoError(t, err)

	resp, outcome := ServeFile(item, req, newMimeTable(t), logger.New("test"))
	require.Equal(t, Served, outcome)
	assert.Equal(t, gemini.StatusRedirectPermanent, resp.Status())
	assert.Equal(t, "/docs/", resp.Meta())
}

func TestServeFileDirectoryRedirectPreservesQueryAsTemporary(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o755))

	item := &FileItem{FileRoot: root}
	req, err := gemini.Parse("gemini://example.com/docs?q=1\r\n")
	require.NoError(t, err)

	resp, outcome := ServeFile(item, req, newMimeTable(t), logger.New("test"))
	require.Equal(t, Served, outcome)
	assert.Equal(t, gemini.StatusRedirectTemporary, resp.Status())
	assert.Equal(t, "/docs/?q=1", resp.Meta())
}

func TestServeFileRegularFileWithTrailingSlashRedirects(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "page.gmi"), []byte("hi"), 0o644))

	item := &FileItem{FileRoot: root}
	req, err := gemini.Parse("gemini://example.com/page.gmi/\r\n")
	require.NoError(t, err)

	resp, outcome := ServeFile(item, req, newMimeTable(t), logger.New("test"))
	require.Equal(t, Served, outcome)
	assert.Equal(t, gemini.StatusRedirectPermanent, resp.Status())
	assert.Equal(t, "/page.gmi", resp.Meta())

	req, err = gemini.Parse("gemini://example.com/page.gmi/?q=1\r\n")
	require.NoError(t, err)

	resp, outcome = ServeFile(item, req, newMimeTable(t), logger.New("test"))
	require.Equal(t, Served, outcome)
	assert.Equal(t, gemini.StatusRedirectTemporary, resp.Status())
	assert.Equal(t, "/page.gmi?q=1", resp.Meta())
}

func TestServeFileDirectoryListing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "a.gmi"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "b.gmi"), []byte("b"), 0o644))

	item := &FileItem{FileRoot: root, SendFolders: true}
	req, err := gemini.Parse("gemini://example.com/docs/\r\n")
	require.NoError(t, err)

	resp, outcome := ServeFile(item, req, newMimeTable(t), logger.New("test"))
	require.Equal(t, Served, outcome)
	assert.Equal(t, gemini.StatusSuccess, resp.Status())
	body, _ := resp.Body()
	assert.Contains(t, string(body), "a.gmi")
	assert.Contains(t, string(body), "b.gmi")
}

func TestServeFileDirectoryListingDeniedWithoutSendFolders(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o755))

	item := &FileItem{FileRoot: root, SendFolders: false}
	req, err := gemini.Parse("gemini://example.com/docs/\r\n")
	require.NoError(t, err)

	resp, outcome := ServeFile(item, req, newMimeTable(t), logger.New("test"))
	require.Equal(t, Served, outcome)
	assert.Equal(t, gemini.StatusPermanentFailure, resp.Status())
	assert.Equal(t, "Permission denied", resp.Meta())
}

func TestServeFileSubstitutesIndex(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "index.gmi"), []byte("home"), 0o644))

	item := &FileItem{FileRoot: root, Indexes: []glob.Glob{glob.Compile("index.gmi")}}
	req, err := gemini.Parse("gemini://example.com/docs/\r\n")
	require.NoError(t, err)

	resp, outcome := ServeFile(item, req, newMimeTable(t), logger.New("test"))
	require.Equal(t, Served, outcome)
	body, _ := resp.Body()
	assert.Equal(t, "home", string(body))
}
