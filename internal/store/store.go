// Package store is the file-backed note store: one .md file per note in the
// notes root, image assets in a dedicated subdirectory, sketches in a binary
// sidecar next to the note, and archive/ plus trash/ subdirectories for the
// note lifecycle. Text and asset writes are atomic (temp file, fsync,
// rename) so a crash never leaves a half-written note behind.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"inknote/pkg/sketch"
)

var (
	ErrNotFound = errors.New("store: note not found")
	ErrExists   = errors.New("store: note already exists")
	ErrBadTitle = errors.New("store: invalid note title")
)

const (
	noteExt    = ".md"
	sketchExt  = ".ink"
	assetsDir  = "assets"
	archiveDir = "archive"
	trashDir   = "trash"
	pinsFile   = ".pins.yaml"
)

type Note struct {
	Title    string
	Path     string
	Pinned   bool
	Modified time.Time
}

type Store struct {
	root string
	log  *slog.Logger

	mu         sync.Mutex
	pins       map[string]bool
	suppressed map[string]int

	sketchOpts sketch.SaveOptions

	lastStamp int64
}

// Open prepares the notes root, creating the asset and lifecycle
// subdirectories if missing, and loads the pin list.
func Open(root string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	for _, dir := range []string{root, filepath.Join(root, assetsDir), filepath.Join(root, archiveDir), filepath.Join(root, trashDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: prepare %s: %w", dir, err)
		}
	}
	s := &Store{
		root:       root,
		log:        log,
		pins:       map[string]bool{},
		suppressed: map[string]int{},
	}
	if err := s.loadPins(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Root() string { return s.root }

// ConfigureSketch sets the sidecar codec options used by SaveSketch and
// LoadSketch.
func (s *Store) ConfigureSketch(compress, encrypt bool, password string) {
	s.sketchOpts = sketch.SaveOptions{
		Compression: compress,
		Encryption:  sketch.EncryptionOptions{Enabled: encrypt, Password: password},
	}
}

// List returns the active notes, pinned first, then newest modification
// first.
func (s *Store) List() ([]Note, error) {
	return s.listIn(s.root)
}

// ListArchived returns the notes moved to the archive.
func (s *Store) ListArchived() ([]Note, error) {
	return s.listIn(filepath.Join(s.root, archiveDir))
}

func (s *Store) listIn(dir string) ([]Note, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", dir, err)
	}
	var notes []Note
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), noteExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		title := strings.TrimSuffix(e.Name(), noteExt)
		notes = append(notes, Note{
			Title:    title,
			Path:     filepath.Join(dir, e.Name()),
			Pinned:   s.pinned(title),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].Pinned != notes[j].Pinned {
			return notes[i].Pinned
		}
		return notes[i].Modified.After(notes[j].Modified)
	})
	return notes, nil
}

// Load reads a note's markdown text. Legacy inline sketch tags are stripped
// from the returned text; their strokes are migrated into the binary
// sidecar if one does not exist yet.
func (s *Store) Load(title string) (string, error) {
	path, err := s.notePath(title)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("store: load %s: %w", title, ErrNotFound)
		}
		return "", fmt.Errorf("store: load %s: %w", title, err)
	}

	text, strokes, found := sketch.ExtractInline(string(data))
	if !found {
		return string(data), nil
	}
	if !s.HasSketch(title) && len(strokes) > 0 {
		m := &sketch.Model{Strokes: strokes}
		if err := s.SaveSketch(title, m); err != nil {
			s.log.Warn("store: legacy sketch migration failed",
				slog.String("note", title), slog.String("error", err.Error()))
		} else {
			s.log.Info("store: migrated inline sketch to sidecar", slog.String("note", title))
		}
	}
	return text, nil
}

// Save writes the note text atomically. The write path is suppressed so the
// watcher does not report the store's own mutation back to it.
func (s *Store) Save(title, text string) error {
	path, err := s.notePath(title)
	if err != nil {
		return err
	}
	release := s.Suppress(path)
	defer release()
	if err := atomicWrite(path, []byte(text)); err != nil {
		return fmt.Errorf("store: save %s: %w", title, err)
	}
	return nil
}

// Rename moves a note and its sketch sidecar to a new title.
func (s *Store) Rename(oldTitle, newTitle string) error {
	oldPath, err := s.notePath(oldTitle)
	if err != nil {
		return err
	}
	newPath, err := s.notePath(newTitle)
	if err != nil {
		return err
	}
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("store: rename to %s: %w", newTitle, ErrExists)
	}
	if _, err := os.Stat(oldPath); err != nil {
		return fmt.Errorf("store: rename %s: %w", oldTitle, ErrNotFound)
	}

	relOld := s.Suppress(oldPath)
	relNew := s.Suppress(newPath)
	defer relOld()
	defer relNew()

	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("store: rename %s: %w", oldTitle, err)
	}
	oldSketch := s.sketchPath(oldTitle)
	if _, err := os.Stat(oldSketch); err == nil {
		if err := os.Rename(oldSketch, s.sketchPath(newTitle)); err != nil {
			s.log.Warn("store: sketch rename failed",
				slog.String("note", oldTitle), slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	if s.pins[oldTitle] {
		delete(s.pins, oldTitle)
		s.pins[newTitle] = true
	}
	s.mu.Unlock()
	return s.savePins()
}

// Delete moves the note and its sidecar into the trash. Trashed files keep
// their modification time, which Housekeep later uses as the expiry clock.
func (s *Store) Delete(title string) error {
	return s.moveTo(title, trashDir)
}

// Archive moves the note out of the active list into archive/.
func (s *Store) Archive(title string) error {
	return s.moveTo(title, archiveDir)
}

// Unarchive moves an archived note back into the active list.
func (s *Store) Unarchive(title string) error {
	if err := validTitle(title); err != nil {
		return err
	}
	src := filepath.Join(s.root, archiveDir, title+noteExt)
	dst := filepath.Join(s.root, title+noteExt)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("store: unarchive %s: %w", title, ErrNotFound)
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("store: unarchive %s: %w", title, ErrExists)
	}
	release := s.Suppress(dst)
	defer release()
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("store: unarchive %s: %w", title, err)
	}
	srcSketch := filepath.Join(s.root, archiveDir, title+sketchExt)
	if _, err := os.Stat(srcSketch); err == nil {
		_ = os.Rename(srcSketch, s.sketchPath(title))
	}
	return nil
}

func (s *Store) moveTo(title, dir string) error {
	path, err := s.notePath(title)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("store: %s %s: %w", dir, title, ErrNotFound)
	}
	dst := filepath.Join(s.root, dir, title+noteExt)
	if _, err := os.Stat(dst); err == nil {
		// keep both: the newer one gets a timestamp suffix
		dst = filepath.Join(s.root, dir, fmt.Sprintf("%s-%d%s", title, time.Now().Unix(), noteExt))
	}
	release := s.Suppress(path)
	defer release()
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("store: %s %s: %w", dir, title, err)
	}
	sk := s.sketchPath(title)
	if _, err := os.Stat(sk); err == nil {
		_ = os.Rename(sk, strings.TrimSuffix(dst, noteExt)+sketchExt)
	}
	s.mu.Lock()
	delete(s.pins, title)
	s.mu.Unlock()
	return s.savePins()
}

// Pin marks or unmarks a note as pinned. Pinned notes sort first in List.
func (s *Store) Pin(title string, pinned bool) error {
	if err := validTitle(title); err != nil {
		return err
	}
	s.mu.Lock()
	if pinned {
		s.pins[title] = true
	} else {
		delete(s.pins, title)
	}
	s.mu.Unlock()
	return s.savePins()
}

// Housekeep removes trashed files older than retention and reports how many
// were purged.
func (s *Store) Housekeep(retention time.Duration) (int, error) {
	dir := filepath.Join(s.root, trashDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("store: housekeep: %w", err)
	}
	cutoff := time.Now().Add(-retention)
	purged := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			s.log.Warn("store: purge failed",
				slog.String("file", e.Name()), slog.String("error", err.Error()))
			continue
		}
		purged++
	}
	if purged > 0 {
		s.log.Info("store: trash purged", slog.Int("files", purged))
	}
	return purged, nil
}

// SaveImage writes image bytes into the asset directory under a generated
// token name and returns the relative reference used in markdown tags.
func (s *Store) SaveImage(data []byte) (string, error) {
	name := fmt.Sprintf("%s.png", s.nextToken())
	path := filepath.Join(s.root, assetsDir, name)
	release := s.Suppress(path)
	defer release()
	if err := atomicWrite(path, data); err != nil {
		return "", fmt.Errorf("store: save image: %w", err)
	}
	return name, nil
}

// Resolve maps a relative asset reference to its on-disk path. References
// that try to leave the asset directory do not resolve.
func (s *Store) Resolve(ref string) (string, bool) {
	if ref == "" || strings.ContainsAny(ref, "/\\") || strings.Contains(ref, "..") {
		return "", false
	}
	path := filepath.Join(s.root, assetsDir, ref)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// HasSketch reports whether the note has a sketch sidecar.
func (s *Store) HasSketch(title string) bool {
	if validTitle(title) != nil {
		return false
	}
	_, err := os.Stat(s.sketchPath(title))
	return err == nil
}

// LoadSketch reads the note's sketch sidecar.
func (s *Store) LoadSketch(title string) (*sketch.Model, error) {
	if err := validTitle(title); err != nil {
		return nil, err
	}
	m, err := sketch.LoadWithOptions(s.sketchPath(title), sketch.LoadOptions{Password: s.sketchOpts.Encryption.Password})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("store: sketch %s: %w", title, ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

// SaveSketch writes the note's sketch sidecar.
func (s *Store) SaveSketch(title string, m *sketch.Model) error {
	if err := validTitle(title); err != nil {
		return err
	}
	path := s.sketchPath(title)
	release := s.Suppress(path)
	defer release()
	return sketch.SaveWithOptions(path, m, s.sketchOpts)
}

// Suppress marks a path as self-mutated so the watcher ignores its next
// events. The returned release function ends the suppression scope; callers
// defer it around the write.
func (s *Store) Suppress(path string) func() {
	s.mu.Lock()
	s.suppressed[path]++
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			// events for a finished write may still be queued; expire the
			// suppression shortly after the scope closes
			time.AfterFunc(250*time.Millisecond, func() {
				s.mu.Lock()
				if s.suppressed[path] > 1 {
					s.suppressed[path]--
				} else {
					delete(s.suppressed, path)
				}
				s.mu.Unlock()
			})
		})
	}
}

func (s *Store) isSuppressed(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressed[path] > 0
}

func (s *Store) notePath(title string) (string, error) {
	if err := validTitle(title); err != nil {
		return "", err
	}
	return filepath.Join(s.root, title+noteExt), nil
}

func (s *Store) sketchPath(title string) string {
	return filepath.Join(s.root, title+sketchExt)
}

func (s *Store) pinned(title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[title]
}

func (s *Store) nextToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	return fmt.Sprintf("img_%d", now)
}

type pinList struct {
	Pinned []string `yaml:"pinned"`
}

func (s *Store) loadPins() error {
	data, err := os.ReadFile(filepath.Join(s.root, pinsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("store: read pins: %w", err)
	}
	var pl pinList
	if err := yaml.Unmarshal(data, &pl); err != nil {
		return fmt.Errorf("store: parse pins: %w", err)
	}
	s.mu.Lock()
	for _, t := range pl.Pinned {
		s.pins[t] = true
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) savePins() error {
	s.mu.Lock()
	pl := pinList{Pinned: make([]string, 0, len(s.pins))}
	for t := range s.pins {
		pl.Pinned = append(pl.Pinned, t)
	}
	s.mu.Unlock()
	sort.Strings(pl.Pinned)
	data, err := yaml.Marshal(&pl)
	if err != nil {
		return fmt.Errorf("store: encode pins: %w", err)
	}
	path := filepath.Join(s.root, pinsFile)
	release := s.Suppress(path)
	defer release()
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("store: write pins: %w", err)
	}
	return nil
}

func validTitle(title string) error {
	if title == "" || strings.ContainsAny(title, `/\`) || strings.Contains(title, "..") {
		return fmt.Errorf("store: title %q: %w", title, ErrBadTitle)
	}
	return nil
}

// atomicWrite lands the data under a temporary name, fsyncs, and renames
// over the target.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
