// Package artifacts reports the files generated code leaves behind in the
// working directory: charts, exported tables, reports.
package artifacts

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile holds extra gitignore-style patterns, read from the root of
// the working directory.
const IgnoreFile = ".analystignore"

// DefaultIgnorePatterns are never reported as artifacts.
var DefaultIgnorePatterns = []string{
	".analyst",
	".git",
	"__pycache__",
	"*.pyc",
	".ipynb_checkpoints",
	".matplotlib",
	".cache",
	".DS_Store",
	IgnoreFile,
}

// DefaultMaxDepth limits watching to the root and its direct
// subdirectories. Generated code saves charts and tables there; the
// working directory may be a large tree such as a home directory.
const DefaultMaxDepth = 1

type fileState struct {
	size    int64
	modTime time.Time
}

// Watcher records files created or modified under a directory between
// Start and Stop. The final answer comes from comparing directory snapshots;
// fsnotify events add paths in directories created while watching and feed
// the OnEvent callback.
//
// A Watcher is single-use.
type Watcher struct {
	root   string
	ignore gitignore.IgnoreParser
	logger *slog.Logger

	// MaxDepth is how many directory levels below root are watched and
	// scanned. Files in deeper directories are never reported.
	MaxDepth int

	// OnEvent, when set before Start, receives every relevant path as it
	// changes. It runs on the watcher goroutine.
	OnEvent func(relPath string)

	fs      *fsnotify.Watcher
	before  map[string]fileState
	mu      sync.Mutex
	touched map[string]bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher prepares a watcher for root. Patterns from root/.analystignore
// are added to DefaultIgnorePatterns.
func NewWatcher(root string, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	patterns := append([]string(nil), DefaultIgnorePatterns...)
	if lines, err := readIgnoreLines(filepath.Join(abs, IgnoreFile)); err == nil {
		patterns = append(patterns, lines...)
	}
	return &Watcher{
		root:     abs,
		ignore:   gitignore.CompileIgnoreLines(patterns...),
		logger:   logger,
		MaxDepth: DefaultMaxDepth,
		touched:  make(map[string]bool),
	}, nil
}

// Ignored reports whether relPath is excluded from artifact reporting.
func (w *Watcher) Ignored(relPath string) bool {
	return w.ignore.MatchesPath(filepath.ToSlash(relPath))
}

// Start snapshots the directory and begins watching it.
func (w *Watcher) Start() error {
	if w.done != nil {
		return fmt.Errorf("watcher already started")
	}
	before, err := w.snapshot()
	if err != nil {
		return err
	}
	w.before = before

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.fs = fsw
	w.done = make(chan struct{})

	if err := fsw.Add(w.root); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	err = w.walk(func(path string, d os.DirEntry) {
		if d.IsDir() && path != w.root {
			w.watchDir(path)
		}
	})
	if err != nil {
		_ = fsw.Close()
		return err
	}

	w.wg.Add(1)
	go w.eventLoop()
	return nil
}

// Stop ends watching and returns the relative paths, sorted, of regular
// files that exist now and were created or modified since Start.
func (w *Watcher) Stop() ([]string, error) {
	if w.done == nil {
		return nil, fmt.Errorf("watcher not started")
	}
	close(w.done)
	w.wg.Wait()
	closeErr := w.fs.Close()

	after, err := w.snapshot()
	if err != nil {
		return nil, err
	}

	changed := make(map[string]bool)
	for rel, st := range after {
		prev, existed := w.before[rel]
		if !existed || prev.size != st.size || !prev.modTime.Equal(st.modTime) {
			changed[rel] = true
		}
	}
	w.mu.Lock()
	for rel := range w.touched {
		if _, ok := after[rel]; ok {
			changed[rel] = true
		}
	}
	w.mu.Unlock()

	out := make([]string, 0, len(changed))
	for rel := range changed {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, closeErr
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || w.Ignored(rel) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if depth(rel) <= w.MaxDepth {
			w.watchDir(event.Name)
		}
		return
	}
	if depth(rel) > w.MaxDepth+1 {
		return
	}
	rel = filepath.ToSlash(rel)
	w.mu.Lock()
	w.touched[rel] = true
	w.mu.Unlock()
	if w.OnEvent != nil {
		w.OnEvent(rel)
	}
}

func (w *Watcher) snapshot() (map[string]fileState, error) {
	files := make(map[string]fileState)
	err := w.walk(func(path string, d os.DirEntry) {
		if !d.Type().IsRegular() {
			return
		}
		info, err := d.Info()
		if err != nil {
			return
		}
		rel, _ := filepath.Rel(w.root, path)
		files[filepath.ToSlash(rel)] = fileState{size: info.Size(), modTime: info.ModTime()}
	})
	return files, err
}

// watchDir adds a directory watch. Files in a directory that cannot be
// watched are still found by the snapshot at Stop, so failures (usually the
// inotify watch limit) are reported as warnings rather than errors.
func (w *Watcher) watchDir(path string) {
	if err := w.fs.Add(path); err != nil {
		w.logger.Warn("failed to watch directory, new files there are found only by the final scan",
			"path", path, "error", err)
	}
}

// depth returns how many path elements rel has: 1 for "a", 2 for "a/b".
func depth(rel string) int {
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}

// walk visits every entry under root that is not ignored and lies within
// MaxDepth directory levels.
func (w *Watcher) walk(visit func(path string, d os.DirEntry)) error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != w.root {
			rel, err := filepath.Rel(w.root, path)
			if err != nil {
				return nil
			}
			if w.Ignored(rel) || (d.IsDir() && depth(rel) > w.MaxDepth) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		visit(path, d)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", w.root, err)
	}
	return nil
}

func readIgnoreLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
