package provider

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval collapses the event bursts editors produce on save.
const debounceInterval = 100 * time.Millisecond

// FileProvider reads configuration from a file on disk and watches it for
// changes. The watch is placed on the parent directory because editors and
// orchestrators typically replace the file rather than write it in place.
type FileProvider struct {
	path string

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	callbacks []func()
	watching  bool
	done      chan struct{}
}

// NewFileProvider creates a provider for the given file path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Load reads the file contents.
func (p *FileProvider) Load() ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.path, err)
	}
	return data, nil
}

// Watch registers a callback for file changes, starting the watcher on
// first use.
func (p *FileProvider) Watch(callback func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.callbacks = append(p.callbacks, callback)
	if p.watching {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	p.watcher = watcher
	p.watching = true
	p.done = make(chan struct{})
	go p.watchLoop()

	slog.Debug("Watching config file", "path", p.path)
	return nil
}

// Close stops the watcher.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.watching {
		return nil
	}
	close(p.done)
	p.watching = false
	return p.watcher.Close()
}

func (p *FileProvider) watchLoop() {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceInterval, p.notify)
			}
			if event.Op&fsnotify.Remove != 0 {
				// Atomic replaces surface as remove+create; re-add the
				// directory in case the inode went away.
				p.tryRewatch()
			}

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", "path", p.path, "error", err)

		case <-p.done:
			return
		}
	}
}

func (p *FileProvider) notify() {
	p.mu.Lock()
	callbacks := make([]func(), len(p.callbacks))
	copy(callbacks, p.callbacks)
	p.mu.Unlock()

	slog.Info("Config file changed", "path", p.path)
	for _, cb := range callbacks {
		cb()
	}
}

func (p *FileProvider) tryRewatch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.watching {
		return
	}
	dir := filepath.Dir(p.path)
	if err := p.watcher.Add(dir); err != nil {
		slog.Warn("Failed to re-watch config directory", "dir", dir, "error", err)
	}
}
