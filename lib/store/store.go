// Package store persists presets and the cue stack as JSON documents in
// the user data directory. Every mutation is written through as a full
// document before it becomes visible.
package store

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"showcall/lib/cuestack"
	"showcall/lib/macro"
)

const (
	PresetsFile  = "presets.json"
	CueStackFile = "cuestack.json"
)

var (
	ErrDuplicateID = errors.New("duplicate preset id")
	ErrNotFound    = errors.New("not found")
	ErrMissingID   = errors.New("preset id missing")
)

//go:embed default_presets.json
var defaultPresets []byte

type Preset struct {
	ID     string       `json:"id"`
	Label  string       `json:"label"`
	Hotkey string       `json:"hotkey,omitempty"`
	Color  string       `json:"color,omitempty"`
	Macro  []macro.Step `json:"macro"`

	Extra map[string]json.RawMessage `json:"-"`
}

// QuickCue is a one-tap button for a single dispatcher action.
type QuickCue struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Presets is the presets.json document. Cells holds the UI's grid
// labels, which the server stores but does not interpret. Extra keeps
// any other top-level fields as written.
type Presets struct {
	Presets   []Preset        `json:"presets"`
	QuickCues []QuickCue      `json:"quickCues"`
	Cells     json.RawMessage `json:"cells,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (d Presets) clone() Presets {
	out := d
	out.Presets = slices.Clone(d.Presets)
	out.QuickCues = slices.Clone(d.QuickCues)
	return out
}

func (d Presets) index(id string) int {
	return slices.IndexFunc(d.Presets, func(p Preset) bool { return p.ID == id })
}

// Validate requires unique non-empty ids and well-formed macros. An
// empty macro is allowed and runs as a no-op.
func (d Presets) Validate() error {
	seen := map[string]bool{}
	for i, p := range d.Presets {
		if p.ID == "" {
			return fmt.Errorf("%w: preset %d", ErrMissingID, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
		}
		seen[p.ID] = true
		if err := validateMacro(p); err != nil {
			return err
		}
	}
	return nil
}

func validateMacro(p Preset) error {
	if len(p.Macro) == 0 {
		return nil
	}
	if err := macro.Validate(p.Macro); err != nil {
		return fmt.Errorf("preset %s: %w", p.ID, err)
	}
	return nil
}

type Store struct {
	dir string
	log *slog.Logger

	mu      sync.RWMutex
	presets Presets
	stack   cuestack.Stack
	// written holds the bytes of our own last write per file so the
	// watcher can skip the echo.
	written map[string][]byte

	subMu sync.Mutex
	subs  []func(file string)
}

// Open loads both documents from dir, creating dir if needed. A missing
// or unusable document falls back to the built-in default without
// writing it, and a stored cue pointer past the end of the list is reset
// to -1. Only filesystem errors fail.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s := &Store{
		dir:     dir,
		log:     log.With(slog.String("component", "store")),
		written: map[string][]byte{},
	}
	if err := s.loadPresets(); err != nil {
		return nil, err
	}
	if err := s.loadCueStack(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func decodePresets(data []byte) (Presets, error) {
	var doc Presets
	if err := json.Unmarshal(data, &doc); err != nil {
		return Presets{}, fmt.Errorf("store: parse presets: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Presets{}, fmt.Errorf("store: presets: %w", err)
	}
	return doc, nil
}

func decodeCueStack(data []byte, log *slog.Logger) (cuestack.Stack, error) {
	var st cuestack.Stack
	if err := json.Unmarshal(data, &st); err != nil {
		return cuestack.Stack{}, fmt.Errorf("store: parse cue stack: %w", err)
	}
	if st.Cues == nil {
		st.Cues = []cuestack.Cue{}
	}
	if st.CurrentIndex < -1 || st.CurrentIndex >= len(st.Cues) {
		log.Warn("cue pointer out of range, resetting",
			slog.Int("currentIndex", st.CurrentIndex), slog.Int("cues", len(st.Cues)))
		st.CurrentIndex = -1
	}
	if err := st.Validate(); err != nil {
		return cuestack.Stack{}, fmt.Errorf("store: cue stack: %w", err)
	}
	return st, nil
}

func (s *Store) loadPresets() error {
	data, err := os.ReadFile(s.path(PresetsFile))
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info("no presets file, using defaults", slog.String("path", s.path(PresetsFile)))
		data = defaultPresets
	} else if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	doc, err := decodePresets(data)
	if err != nil {
		s.log.Warn("presets file unusable, using defaults",
			slog.String("path", s.path(PresetsFile)), slog.String("error", err.Error()))
		if doc, err = decodePresets(defaultPresets); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.presets = doc
	s.mu.Unlock()
	return nil
}

func (s *Store) loadCueStack() error {
	data, err := os.ReadFile(s.path(CueStackFile))
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.stack = cuestack.DefaultStack()
		s.mu.Unlock()
		return nil
	} else if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	st, err := decodeCueStack(data, s.log)
	if err != nil {
		s.log.Warn("cue stack file unusable, using default",
			slog.String("path", s.path(CueStackFile)), slog.String("error", err.Error()))
		st = cuestack.DefaultStack()
	}
	s.mu.Lock()
	s.stack = st
	s.mu.Unlock()
	return nil
}

// writeFile replaces name atomically. Caller holds s.mu.
func (s *Store) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", name, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("store: replace %s: %w", name, err)
	}
	s.written[name] = data
	return nil
}

// OnChange registers fn to run after a document changes, whether by
// this process or by an edit on disk.
func (s *Store) OnChange(fn func(file string)) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

func (s *Store) changed(file string) {
	s.subMu.Lock()
	subs := slices.Clone(s.subs)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(file)
	}
}

func (s *Store) Presets() Presets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presets.clone()
}

func (s *Store) Preset(id string) (Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.presets.index(id)
	if i < 0 {
		return Preset{}, false
	}
	return s.presets.Presets[i], true
}

// PresetMacro resolves a cue's preset reference.
func (s *Store) PresetMacro(id string) (string, []macro.Step, bool) {
	p, ok := s.Preset(id)
	return p.Label, p.Macro, ok
}

// SavePresets replaces the whole document. Presets without an id get a
// generated one.
func (s *Store) SavePresets(doc Presets) (Presets, error) {
	doc = doc.clone()
	for i := range doc.Presets {
		if doc.Presets[i].ID == "" {
			doc.Presets[i].ID = uuid.NewString()
		}
	}
	if doc.Presets == nil {
		doc.Presets = []Preset{}
	}
	if doc.QuickCues == nil {
		doc.QuickCues = []QuickCue{}
	}
	if err := doc.Validate(); err != nil {
		return Presets{}, err
	}

	s.mu.Lock()
	if err := s.writeFile(PresetsFile, doc); err != nil {
		s.mu.Unlock()
		return Presets{}, err
	}
	s.presets = doc
	s.mu.Unlock()

	s.log.Info("presets saved", slog.Int("count", len(doc.Presets)))
	s.changed(PresetsFile)
	return doc.clone(), nil
}

// UpsertPreset adds p, or replaces the preset currently stored as
// previousID. The id may change on replace but must not collide with
// any other preset.
func (s *Store) UpsertPreset(p Preset, previousID string) (Preset, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := validateMacro(p); err != nil {
		return Preset{}, err
	}
	if p.Macro == nil {
		p.Macro = []macro.Step{}
	}

	s.mu.Lock()
	doc := s.presets.clone()
	target := -1
	if previousID != "" {
		target = doc.index(previousID)
		if target < 0 {
			s.mu.Unlock()
			return Preset{}, fmt.Errorf("%w: preset %s", ErrNotFound, previousID)
		}
	}
	if i := doc.index(p.ID); i >= 0 && i != target {
		s.mu.Unlock()
		return Preset{}, fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
	}
	if target >= 0 {
		doc.Presets[target] = p
	} else {
		doc.Presets = append(doc.Presets, p)
	}
	if err := s.writeFile(PresetsFile, doc); err != nil {
		s.mu.Unlock()
		return Preset{}, err
	}
	s.presets = doc
	s.mu.Unlock()

	s.log.Info("preset saved", slog.String("preset", p.ID))
	s.changed(PresetsFile)
	return p, nil
}

func (s *Store) DeletePreset(id string) error {
	s.mu.Lock()
	doc := s.presets.clone()
	i := doc.index(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: preset %s", ErrNotFound, id)
	}
	doc.Presets = slices.Delete(doc.Presets, i, i+1)
	if err := s.writeFile(PresetsFile, doc); err != nil {
		s.mu.Unlock()
		return err
	}
	s.presets = doc
	s.mu.Unlock()

	s.log.Info("preset deleted", slog.String("preset", id))
	s.changed(PresetsFile)
	return nil
}

func (s *Store) CueStack() cuestack.Stack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stack
	st.Cues = slices.Clone(s.stack.Cues)
	return st
}

func (s *Store) SaveCueStack(st cuestack.Stack) error {
	if st.Cues == nil {
		st.Cues = []cuestack.Cue{}
	}
	if err := st.Validate(); err != nil {
		return err
	}
	st.Cues = slices.Clone(st.Cues)

	s.mu.Lock()
	if err := s.writeFile(CueStackFile, st); err != nil {
		s.mu.Unlock()
		return err
	}
	s.stack = st
	s.mu.Unlock()

	s.changed(CueStackFile)
	return nil
}

func (s *Store) SetCurrentIndex(i int) error {
	s.mu.Lock()
	st := s.stack
	if i < -1 || i >= len(st.Cues) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", cuestack.ErrIndexOutOfRange, i)
	}
	st.CurrentIndex = i
	if err := s.writeFile(CueStackFile, st); err != nil {
		s.mu.Unlock()
		return err
	}
	s.stack = st
	s.mu.Unlock()
	return nil
}
