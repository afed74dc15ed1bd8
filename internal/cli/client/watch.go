package client

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debouncer collects file paths and releases each one once it has been quiet
// for the configured period. Editors emit several events per save.
type debouncer struct {
	mu      sync.Mutex
	quiet   time.Duration
	pending map[string]time.Time
}

func newDebouncer(quiet time.Duration) *debouncer {
	return &debouncer{quiet: quiet, pending: make(map[string]time.Time)}
}

func (d *debouncer) add(path string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[path] = at
}

// due removes and returns the paths whose last event is older than the quiet
// period, sorted.
func (d *debouncer) due(now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ready []string
	for p, at := range d.pending {
		if now.Sub(at) >= d.quiet {
			ready = append(ready, p)
			delete(d.pending, p)
		}
	}
	sort.Strings(ready)
	return ready
}

// watchRoots maps a changed path back to the directory it was found under.
type watchRoots []string

func (w watchRoots) nameFor(p string) (string, bool) {
	for _, root := range w {
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		return filepath.ToSlash(rel), true
	}
	return "", false
}

// change is a debounced file event. Removed is set when the file no longer
// exists, so the stored document should be dropped.
type change struct {
	Name    string
	Path    string
	Removed bool
}

// watch follows roots until ctx is cancelled and calls apply with each batch
// of settled changes.
func watch(ctx context.Context, roots []string, quiet time.Duration, apply func(context.Context, []change)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range roots {
		if err := addTree(watcher, root); err != nil {
			return err
		}
	}

	names := watchRoots(roots)
	pending := newDebouncer(quiet)
	tick := quiet / 2
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						log.Printf("watch: failed to add %s: %v", event.Name, err)
					}
					continue
				}
			}
			if event.Op == fsnotify.Chmod || !supported(event.Name) {
				continue
			}
			pending.add(event.Name, time.Now())

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)

		case now := <-ticker.C:
			paths := pending.due(now)
			if len(paths) == 0 {
				continue
			}
			changes := make([]change, 0, len(paths))
			for _, p := range paths {
				name, ok := names.nameFor(p)
				if !ok {
					continue
				}
				_, statErr := os.Stat(p)
				changes = append(changes, change{Name: name, Path: p, Removed: os.IsNotExist(statErr)})
			}
			if len(changes) > 0 {
				apply(ctx, changes)
			}
		}
	}
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}
