package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// EventKind distinguishes watcher notifications.
// "updated" covers both creation and modification.
type EventKind string

const (
	EventUpdated EventKind = "updated"
	EventRemoved EventKind = "removed"
	EventAsset   EventKind = "asset"
)

// EventCallback receives external changes under the notes root. title is
// the note title for note events and the asset filename for asset events.
type EventCallback func(kind EventKind, title string)

// Watch runs an fsnotify watcher over the notes root and the asset
// directory until ctx is cancelled. Events for paths inside an active
// Suppress scope are the store's own writes and are not reported.
func (s *Store) Watch(ctx context.Context, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, dir := range []string{s.root, filepath.Join(s.root, assetsDir)} {
		if err := w.Add(dir); err != nil {
			return err
		}
	}
	s.log.Info("watcher: started", slog.String("root", s.root))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if s.isSuppressed(ev.Name) {
				continue
			}
			kind, title, ok := s.classify(ev)
			if !ok {
				continue
			}
			s.log.Debug("watcher: external change",
				slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			if cb != nil {
				cb(kind, title)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (s *Store) classify(ev fsnotify.Event) (EventKind, string, bool) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return "", "", false
	}
	inAssets := filepath.Dir(ev.Name) == filepath.Join(s.root, assetsDir)
	if inAssets {
		if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
			return "", "", false
		}
		return EventAsset, name, true
	}
	if !strings.HasSuffix(name, noteExt) {
		return "", "", false
	}
	title := strings.TrimSuffix(name, noteExt)
	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		return EventUpdated, title, true
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// renames fire on the old path; the new path arrives as Create
		return EventRemoved, title, true
	}
	return "", "", false
}
