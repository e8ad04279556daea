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
	"database/sql"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// sink is one append-only destination for log lines: a text file or a
// sqlite table. Two [Logger] values that name the same path share the
// same sink instance (see the registry below), so their writes are
// serialized at the line level by sink.mu rather than racing on the
// underlying file descriptor or database handle.
type sink struct {
	mu   sync.Mutex
	path string
	refs int

	file *os.File
	db   *sql.DB
}

func openSink(path string) (*sink, error) {
	if strings.HasSuffix(path, ".db") {
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, err
		}
		if _, err := db.Exec(`create table if not exists log_lines (
			logged_at text not null,
			level text not null,
			name text not null,
			line text not null
		)`); err != nil {
			db.Close()
			return nil, err
		}
		return &sink{path: path, db: db}, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &sink{path: path, file: f}, nil
}

// write appends one formatted line. For a file sink, line already includes
// the trailing "\n" and is written atomically via a single Write.
func (s *sink) write(level, name, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		_, err := s.db.Exec(`insert into log_lines (logged_at, level, name, line) values (?, ?, ?, ?)`,
			time.Now().Format(time.RFC3339Nano), level, name, strings.TrimRight(line, "\n"))
		return err
	}

	_, err := s.file.Write([]byte(line))
	return err
}

func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return s.file.Close()
}

// registry shares one sink per path across every Logger that names it, so
// writes from unrelated loggers to the same access or error log interleave
// atomically line-by-line instead of tearing.
type registry struct {
	mu    sync.Mutex
	sinks map[string]*sink
}

func newRegistry() *registry {
	return &registry{sinks: make(map[string]*sink)}
}

func (r *registry) open(path string) (*sink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sinks[path]; ok {
		s.refs++
		return s, nil
	}

	s, err := openSink(path)
	if err != nil {
		return nil, err
	}
	s.refs = 1
	r.sinks[path] = s
	return s, nil
}

func (r *registry) release(s *sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.refs--
	if s.refs > 0 {
		return
	}
	delete(r.sinks, s.path)
	s.close()
}
