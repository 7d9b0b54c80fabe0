package stagehand

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stagecraft/stagehand/pkg/log"
)

const tokenDebounceDelay = 100 * time.Millisecond

// tokenWatcher monitors a mounted secret file and applies its trimmed
// contents as the auth token. It watches the parent directory because
// secret rotation typically replaces the file rather than writing it in
// place.
type tokenWatcher struct {
	path   string
	apply  func(token string)
	logger log.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	debounce *time.Timer
}

func newTokenWatcher(path string, apply func(string), logger log.Logger) *tokenWatcher {
	return &tokenWatcher{
		path:   path,
		apply:  apply,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (t *tokenWatcher) start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("token watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(t.path)); err != nil {
		w.Close()
		return fmt.Errorf("token watcher: watch %s: %w", filepath.Dir(t.path), err)
	}
	t.watcher = w

	// Pick up the current contents so the file wins over any token that
	// came in via config.
	t.reload()

	t.wg.Add(1)
	go t.loop()
	return nil
}

func (t *tokenWatcher) loop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case ev, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(t.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			t.scheduleReload()
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.logger.Warn("token watcher error", log.Err(err))
		}
	}
}

// scheduleReload debounces bursts of filesystem events into one reload.
func (t *tokenWatcher) scheduleReload() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.debounce != nil {
		t.debounce.Stop()
	}
	t.debounce = time.AfterFunc(tokenDebounceDelay, t.reload)
}

func (t *tokenWatcher) reload() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		t.logger.Warn("token file unreadable", log.String("path", t.path), log.Err(err))
		return
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		t.logger.Warn("token file is empty, keeping previous token", log.String("path", t.path))
		return
	}
	t.apply(token)
	t.logger.Info("auth token reloaded", log.String("path", t.path))
}

// stop is idempotent: Provider.Stop may run after a failed Start already
// tore the watcher down.
func (t *tokenWatcher) stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		if t.watcher != nil {
			t.watcher.Close()
		}
		t.mu.Lock()
		if t.debounce != nil {
			t.debounce.Stop()
		}
		t.mu.Unlock()
	})
	t.wg.Wait()
}
