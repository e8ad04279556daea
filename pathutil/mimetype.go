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

package pathutil

import (
	"bufio"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultMimeType is returned by [MimeTable.Lookup] for an extension with
// no entry, and is what key "bin" must map to in mime-types.toml.
const DefaultMimeType = "application/octet-stream"

const defaultMimeReloadDelay = time.Second

// MimeTable is an extension-to-MIME-type lookup loaded from a
// "key = value" TOML-subset file. A missing file at construction time is
// fatal; edits made afterwards are picked up automatically.
type MimeTable struct {
	lock  sync.Mutex
	wg    sync.WaitGroup
	w     *fsnotify.Watcher
	types map[string]string
}

func parseMimeTable(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	types := make(map[string]string)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, fmt.Errorf("pathutil: malformed mime-types line %q", line)
		}

		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		}
		key = strings.Trim(key, `"`)

		types[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if _, ok := types["bin"]; !ok {
		types["bin"] = DefaultMimeType
	}

	return types, nil
}

// LoadMimeTable loads path once and starts watching it for edits, waiting
// debounce after each write event before re-parsing (zero means one
// second). A failure to open or parse path is returned to the caller (and
// is meant to be fatal at capsule startup); failures to reload after that
// are only logged, leaving the previous table in effect.
func LoadMimeTable(log *slog.Logger, path string, debounce time.Duration) (*MimeTable, error) {
	if log == nil {
		log = slog.Default()
	}
	if debounce <= 0 {
		debounce = defaultMimeReloadDelay
	}

	types, err := parseMimeTable(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	absPath := filepath.Join(dir, filepath.Base(path))

	t := &MimeTable{w: w, types: types}

	timer := time.NewTimer(math.MaxInt64)
	timer.Stop()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					timer.Stop()
					return
				}

				if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && event.Name == absPath {
					timer.Reset(debounce)
				}

			case <-timer.C:
				newTypes, err := parseMimeTable(path)
				if err != nil {
					log.Warn("Failed to reload mime table", "path", path, "error", err)
					continue
				}

				t.lock.Lock()
				t.types = newTypes
				t.lock.Unlock()
				log.Info("Reloaded mime table", "path", path, "entries", len(newTypes))
			}
		}
	}()

	return t, nil
}

// Lookup returns the MIME type for a file path's extension (case-sensitive,
// without the leading "."), or [DefaultMimeType] if there is no entry.
func (t *MimeTable) Lookup(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")

	t.lock.Lock()
	defer t.lock.Unlock()

	if mt, ok := t.types[ext]; ok {
		return mt
	}
	return t.types["bin"]
}

// Close stops watching the underlying file.
func (t *MimeTable) Close() error {
	err := t.w.Close()
	t.wg.Wait()
	return err
}
