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

// capsulestat is an operator's live tail of one or more capsules' access
// and error logs, rendered as a scrolling terminal dashboard instead of
// interleaved "tail -f" output.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/fsnotify/fsnotify"
)

var accessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
var pathStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).Background(lipgloss.Color("4"))

type lineMsg struct {
	path string
	text string
}

type errMsg struct{ error }

// tailer watches one log file and reports every line appended to it after
// the program started. Like pathutil's mime table reload it reacts to
// fsnotify write events, but it reads new lines on every event, with no
// debounce, and line-granular instead of whole-file.
type tailer struct {
	path   string
	watch  *fsnotify.Watcher
	file   *os.File
	reader *bufio.Reader
}

func newTailer(path string) (*tailer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		f.Close()
		return nil, err
	}

	return &tailer{path: path, watch: w, file: f, reader: bufio.NewReader(f)}, nil
}

// poll drains whatever complete lines are currently available without
// blocking for more; it's called again whenever fsnotify reports a write.
func (t *tailer) poll() []string {
	var lines []string
	for {
		line, err := t.reader.ReadString('\n')
		if line != "" && err == nil {
			lines = append(lines, strings.TrimRight(line, "\n"))
			continue
		}
		// Hand an incomplete trailing line back to the file so the next
		// poll reads it whole once its "\n" has been written.
		if line != "" {
			if _, err := t.file.Seek(-int64(len(line)), io.SeekCurrent); err == nil {
				t.reader.Reset(t.file)
			}
		}
		break
	}
	return lines
}

func (t *tailer) waitForWrite() tea.Cmd {
	return func() tea.Msg {
		absPath, _ := filepath.Abs(t.path)
		for event := range t.watch.Events {
			name, _ := filepath.Abs(event.Name)
			if name != absPath {
				continue
			}
			if event.Has(fsnotify.Write) {
				lines := t.poll()
				if len(lines) > 0 {
					return lineBatchMsg{path: t.path, lines: lines}
				}
			}
		}
		return errMsg{fmt.Errorf("watch closed for %s", t.path)}
	}
}

type lineBatchMsg struct {
	path  string
	lines []string
}

type model struct {
	tailers  []*tailer
	history  []lineMsg
	viewport viewport.Model
	ready    bool
	err      error
}

func newModel(paths []string) (model, error) {
	var tailers []*tailer
	for _, p := range paths {
		t, err := newTailer(p)
		if err != nil {
			return model{}, fmt.Errorf("capsulestat: %s: %w", p, err)
		}
		tailers = append(tailers, t)
	}
	return model{tailers: tailers}, nil
}

func (m model) Init() tea.Cmd {
	cmds := make([]tea.Cmd, len(m.tailers))
	for i, t := range m.tailers {
		cmds[i] = t.waitForWrite()
	}
	return tea.Batch(cmds...)
}

const headerHeight = 1

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight
		}
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case lineBatchMsg:
		for _, line := range msg.lines {
			m.history = append(m.history, lineMsg{path: msg.path, text: line})
		}
		if max := 1000; len(m.history) > max {
			m.history = m.history[len(m.history)-max:]
		}
		if m.ready {
			atBottom := m.viewport.AtBottom()
			m.viewport.SetContent(m.renderHistory())
			if atBottom {
				m.viewport.GotoBottom()
			}
		}

		for _, t := range m.tailers {
			if t.path == msg.path {
				return m, t.waitForWrite()
			}
		}
		return m, nil

	case errMsg:
		m.err = msg.error
		return m, nil
	}

	return m, nil
}

func (m model) renderHistory() string {
	var b strings.Builder
	for i, entry := range m.history {
		style := accessStyle
		if strings.Contains(entry.text, " ERROR ") {
			style = errorStyle
		}
		b.WriteString(pathStyle.Render(filepath.Base(entry.path)))
		b.WriteString(" ")
		b.WriteString(style.Render(entry.text))
		if i < len(m.history)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m model) View() string {
	if m.err != nil {
		return errorStyle.Render(m.err.Error()) + "\n"
	}
	if !m.ready {
		return "initializing…\n"
	}

	header := headerStyle.Render(fmt.Sprintf("capsulestat — %d source(s) — q to quit", len(m.tailers)))
	return header + "\n" + m.viewport.View()
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s LOGFILE...\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		flag.Usage()
	}
	sort.Strings(paths)

	if !term.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr, "capsulestat: stdout is not a terminal")
		os.Exit(1)
	}

	m, err := newModel(paths)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
