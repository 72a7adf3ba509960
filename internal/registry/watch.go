// pattern: Imperative Shell

package registry

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"treetop/internal/logging"
)

// debounceDelay lets an external writer finish before we reload.
const debounceDelay = 50 * time.Millisecond

// Watch reloads the registry and invokes onChange whenever the backing
// file is written by someone else (the supervisor feeding server state,
// or a manual edit). Watching the parent directory instead of the file
// survives the supervisor's write-and-rename updates. Returns a stop
// function.
func (r *Registry) Watch(logger *logging.ScopedLogger, onChange func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(r.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				time.Sleep(debounceDelay)
				if err := r.Reload(); err != nil {
					logger.Warn("registry reload after external write failed", "error", err)
					continue
				}
				onChange()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("registry watcher error", "error", err)

			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
