package directive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/codemachine-ai/codemachine/internal/logging"
)

// Watcher logs every write agents make to the directive file. It backs
// the trigger-debugging switch: with it enabled, the operator sees each
// directive the moment it lands instead of waiting for the next
// evaluation.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	logger    *log.Logger

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewWatcher starts watching the directive file's directory. The
// directory is created if needed, since agents create the file lazily.
func NewWatcher(path string) (*Watcher, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close() //nolint:errcheck
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		path:      path,
		logger:    logging.New("directive"),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.processEvents()

	w.logger.Debug("directive debug watcher active", "path", path)
	return w, nil
}

// processEvents logs writes to the directive file until Close.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logWrite()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("directive watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// logWrite reads the file best-effort and logs what the agent wrote.
func (w *Watcher) logWrite() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Debug("directive written but unreadable", "error", err)
		return
	}

	var d Directive
	if err := json.Unmarshal(data, &d); err != nil {
		w.logger.Info("directive written (unparsed)", "bytes", len(data))
		return
	}
	w.logger.Info("directive written",
		"action", d.Action,
		"reason", d.Reason,
		"triggerAgentId", d.TriggerAgentID,
	)
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.once.Do(func() { close(w.done) })
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}
