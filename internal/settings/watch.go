package settings

import (
	"context"
	"errors"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	reloadDebounce     = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watch reloads the file whenever it changes on disk until ctx is done.
// Writes made by Save are recognized by their content hash and skipped.
// The watcher is recreated with a jittered backoff when it breaks.
// A missing settings directory is created so the first edit is not lost.
func (s *Store) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	file := filepath.Base(s.path)

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	wait := func() bool {
		d := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff = min(backoff*2, restartBackoffMax)
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, s.reload)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for ctx.Err() == nil {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Debug("settings directory {} unavailable", dir, err)
			if !wait() {
				return nil
			}
			continue
		}
		w, err := fsnotify.NewWatcher()
		if err != nil {
			s.log.Warn("settings watch init failed for {}", dir, err)
			if !wait() {
				return nil
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			if errors.Is(err, fs.ErrNotExist) {
				s.log.Debug("settings directory {} vanished before it could be watched", dir)
			} else {
				s.log.Warn("settings watch add failed for {}", dir, err)
			}
			if !wait() {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		s.log.Debug("watching {} for settings changes", s.path)
		// Catch edits made while no watcher was registered.
		if _, err := os.Stat(s.path); err == nil {
			debounce()
		}

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					s.log.Warn("settings watch overflow, forcing reload", err)
					debounce()
					continue
				}
				s.log.Warn("settings watch error", err)
			}
		}

		_ = w.Close()
		s.log.Warn("settings watcher stopped, restarting")
		if !wait() {
			return nil
		}
	}
	return nil
}

func (s *Store) reload() {
	b, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warn("failed to read settings file {}", s.path, err)
		return
	}
	if !s.changed(b) {
		s.log.Trace("settings file {} unchanged", s.path)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.apply(b); err != nil {
		s.log.Warn("failed to reload settings", err)
		return
	}
	s.lastHash = hashBytes(b)
	s.log.Info("reloaded settings from {}", s.path)
}
