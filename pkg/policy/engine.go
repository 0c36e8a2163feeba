package policy

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/pario-ai/leasegate/pkg/models"
)

// FileEngine serves a policy loaded from disk. With hot reload enabled it
// watches the file's directory and swaps in a new snapshot whenever the file
// changes and parses cleanly; a file that fails to parse leaves the previous
// snapshot active.
type FileEngine struct {
	path    string
	snap    atomic.Pointer[Snapshot]
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewFileEngine loads path and, if hotReload is set, starts watching it.
func NewFileEngine(path string, hotReload bool, logger *slog.Logger) (*FileEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	e := &FileEngine{
		path:   path,
		logger: logger.With("component", "policy"),
		done:   make(chan struct{}),
	}
	e.snap.Store(snap)

	if hotReload {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("policy: create watcher: %w", err)
		}
		dir := filepath.Dir(path)
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("policy: watch %q: %w", dir, err)
		}
		e.watcher = watcher
		e.wg.Add(1)
		go e.watch()
	}
	return e, nil
}

// Snapshot returns the active policy snapshot.
func (e *FileEngine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// Evaluate checks req against the active policy.
func (e *FileEngine) Evaluate(req models.AcquireRequest) models.PolicyDecision {
	return Evaluate(e.snap.Load().Policy, req)
}

// Reload re-reads the policy file. On error the current snapshot is kept.
func (e *FileEngine) Reload() error {
	snap, err := Load(e.path)
	if err != nil {
		return err
	}
	prev := e.snap.Swap(snap)
	if prev == nil || prev.Hash != snap.Hash {
		e.logger.Info("policy reloaded", "path", e.path, "policy_hash", snap.Hash)
	}
	return nil
}

// Close stops the watcher, if any.
func (e *FileEngine) Close() error {
	var err error
	e.once.Do(func() {
		close(e.done)
		if e.watcher != nil {
			err = e.watcher.Close()
		}
		e.wg.Wait()
	})
	return err
}

func (e *FileEngine) watch() {
	defer e.wg.Done()
	name := filepath.Clean(e.path)
	for {
		select {
		case <-e.done:
			return
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := e.Reload(); err != nil {
				e.logger.Warn("policy reload failed", "path", e.path, "error", err)
			}
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			e.logger.Warn("policy watcher error", "error", err)
		}
	}
}
