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

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessAndErrorWriteToFiles(t *testing.T) {
	dir := t.TempDir()
	access := filepath.Join(dir, "access.log")
	errPath := filepath.Join(dir, "error.log")

	l, err := New("capsule").AsLogs(access, errPath)
	require.NoError(t, err)
	defer l.Close()

	l.Access("served /index.gmi")
	l.Error("boom")

	data, err := os.ReadFile(access)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ACCESS")
	assert.Contains(t, string(data), "served /index.gmi")

	data, err = os.ReadFile(errPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ERROR")
	assert.Contains(t, string(data), "boom")
}

func TestAsGroupAddsLabel(t *testing.T) {
	dir := t.TempDir()
	access := filepath.Join(dir, "access.log")

	l, err := New("capsule").AsLogs(access, "")
	require.NoError(t, err)
	defer l.Close()

	conn := l.AsGroup("10.0.0.1:5000")
	conn.Access("hello")

	data, err := os.ReadFile(access)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "capsule|10.0.0.1:5000"))
}

func TestSharedSinkSerializesWrites(t *testing.T) {
	dir := t.TempDir()
	access := filepath.Join(dir, "shared.log")

	root := New("capsule")
	a, err := root.AsLogs(access, "")
	require.NoError(t, err)
	b, err := root.AsLogs(access, "")
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	assert.Same(t, a.access, b.access)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); a.Access("from a") }()
		go func() { defer wg.Done(); b.Access("from b") }()
	}
	wg.Wait()

	data, err := os.ReadFile(access)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 100)
}

func TestAsLogsSqliteSink(t *testing.T) {
	dir := t.TempDir()
	access := filepath.Join(dir, "access.db")

	l, err := New("capsule").AsLogs(access, "")
	require.NoError(t, err)
	defer l.Close()

	l.Access("db-backed line")
}
