package sandbox

import (
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watcher wraps one fsnotify.Watcher scoped to a single session's
// workspace directory.
type watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// ensureWatcher starts a workspace watcher for sessionID if one isn't
// already running and a FileChangeHook was configured.
func (m *Manager) ensureWatcher(sessionID, workspacePath string) {
	if m.onFileChange == nil {
		return
	}
	m.mu.Lock()
	_, exists := m.watchers[sessionID]
	m.mu.Unlock()
	if exists {
		return
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("sandbox: fsnotify watcher unavailable", "session_id", sessionID, "error", err)
		return
	}
	if err := fsw.Add(workspacePath); err != nil {
		slog.Warn("sandbox: fsnotify watch failed", "session_id", sessionID, "error", err)
		_ = fsw.Close()
		return
	}

	w := &watcher{fsw: fsw, done: make(chan struct{})}
	m.mu.Lock()
	m.watchers[sessionID] = w
	m.mu.Unlock()

	go m.watchLoop(sessionID, w)
}

func (m *Manager) watchLoop(sessionID string, w *watcher) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			m.onFileChange(sessionID, event.Name, fsOpName(event.Op))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("sandbox: fsnotify error", "session_id", sessionID, "error", err)
		}
	}
}

// stopWatcher stops and removes a session's workspace watcher, if any.
func (m *Manager) stopWatcher(sessionID string) {
	m.mu.Lock()
	w, ok := m.watchers[sessionID]
	if ok {
		delete(m.watchers, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	_ = w.fsw.Close()
	<-w.done
}

func fsOpName(op fsnotify.Op) string {
	var parts []string
	if op&fsnotify.Create != 0 {
		parts = append(parts, "create")
	}
	if op&fsnotify.Write != 0 {
		parts = append(parts, "write")
	}
	if op&fsnotify.Remove != 0 {
		parts = append(parts, "remove")
	}
	if op&fsnotify.Rename != 0 {
		parts = append(parts, "rename")
	}
	if op&fsnotify.Chmod != 0 {
		parts = append(parts, "chmod")
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}
