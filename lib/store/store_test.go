package store

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcall/lib/cuestack"
	"showcall/lib/macro"
)

func setupTest(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestDefaultsWithoutFiles(t *testing.T) {
	s := setupTest(t)

	doc := s.Presets()
	assert.NotEmpty(t, doc.Presets)
	assert.NotEmpty(t, doc.QuickCues)
	_, err := os.Stat(filepath.Join(s.Dir(), PresetsFile))
	assert.True(t, os.IsNotExist(err))

	st := s.CueStack()
	assert.Equal(t, "Show", st.Name)
	assert.Equal(t, -1, st.CurrentIndex)
	require.Len(t, st.Cues, 1)
	assert.Equal(t, cuestack.StandbyLabel, st.Cues[0].Custom.Label)
}

func TestUpsertDuplicateLeavesStoreUnchanged(t *testing.T) {
	s := setupTest(t)
	_, err := s.SavePresets(Presets{Presets: []Preset{
		{ID: "a", Label: "A", Macro: []macro.Step{macro.Cut()}},
		{ID: "b", Label: "B", Macro: []macro.Step{macro.Clear()}},
	}})
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(s.Dir(), PresetsFile))
	require.NoError(t, err)

	_, err = s.UpsertPreset(Preset{ID: "a", Label: "Other", Macro: []macro.Step{macro.Cut()}}, "b")
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = s.UpsertPreset(Preset{ID: "a", Label: "New", Macro: []macro.Step{macro.Cut()}}, "")
	assert.ErrorIs(t, err, ErrDuplicateID)

	after, err := os.ReadFile(filepath.Join(s.Dir(), PresetsFile))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	p, ok := s.Preset("b")
	require.True(t, ok)
	assert.Equal(t, "B", p.Label)
}

func TestUpsertRenameAndInsert(t *testing.T) {
	s := setupTest(t)
	_, err := s.SavePresets(Presets{Presets: []Preset{{ID: "a", Label: "A", Macro: []macro.Step{macro.Cut()}}}})
	require.NoError(t, err)

	_, err = s.UpsertPreset(Preset{ID: "a2", Label: "A2", Macro: []macro.Step{macro.Cut()}}, "a")
	require.NoError(t, err)
	_, ok := s.Preset("a")
	assert.False(t, ok)

	p, err := s.UpsertPreset(Preset{Label: "Fresh", Macro: []macro.Step{macro.Sleep(10)}}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Len(t, s.Presets().Presets, 2)

	_, err = s.UpsertPreset(Preset{ID: "x", Macro: []macro.Step{macro.Cut()}}, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSavePresetsRejectsDuplicates(t *testing.T) {
	s := setupTest(t)

	_, err := s.SavePresets(Presets{Presets: []Preset{
		{ID: "a", Macro: []macro.Step{macro.Cut()}},
		{ID: "a", Macro: []macro.Step{macro.Cut()}},
	}})
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.NotEmpty(t, s.Presets().Presets)
}

func TestDeletePreset(t *testing.T) {
	s := setupTest(t)

	require.NoError(t, s.DeletePreset("walkin"))
	_, ok := s.Preset("walkin")
	assert.False(t, ok)
	assert.ErrorIs(t, s.DeletePreset("walkin"), ErrNotFound)
}

func TestCueStackRoundTrip(t *testing.T) {
	s := setupTest(t)
	st := cuestack.Stack{
		Name: "Sunday",
		Cues: []cuestack.Cue{
			cuestack.Standby(),
			{PresetID: "walkin"},
			{Custom: &cuestack.CustomCue{Label: "Hit", Actions: []macro.Step{macro.Trigger(2, 3), macro.Sleep(100)}}},
		},
		CurrentIndex: 1,
	}
	require.NoError(t, s.SaveCueStack(st))
	require.NoError(t, s.SetCurrentIndex(2))

	reopened, err := Open(s.Dir(), nil)
	require.NoError(t, err)
	got := reopened.CueStack()
	assert.Equal(t, "Sunday", got.Name)
	assert.Equal(t, 2, got.CurrentIndex)
	require.Len(t, got.Cues, 3)
	assert.Equal(t, "walkin", got.Cues[1].PresetID)
	assert.Equal(t, 3, got.Cues[2].Custom.Actions[0].Column)

	assert.ErrorIs(t, s.SetCurrentIndex(3), cuestack.ErrIndexOutOfRange)
}

func TestOpenFallsBackOnUnusablePresets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, PresetsFile)
	for _, body := range []string{`{"presets":[`, `{"presets":[{"id":"a"},{"id":"a"}]}`} {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

		s, err := Open(dir, nil)
		require.NoError(t, err, body)
		_, ok := s.Preset("walkin")
		assert.True(t, ok, body)

		onDisk, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, body, string(onDisk))
	}
}

func TestOpenResetsStaleCuePointer(t *testing.T) {
	dir := t.TempDir()
	doc := `{"name":"Sunday","cues":[{"custom":{"label":"Standby","actions":[]}}],"currentIndex":3}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, CueStackFile), []byte(doc), 0o644))

	s, err := Open(dir, nil)
	require.NoError(t, err)
	st := s.CueStack()
	assert.Equal(t, "Sunday", st.Name)
	assert.Equal(t, -1, st.CurrentIndex)
	require.Len(t, st.Cues, 1)
}

func TestOpenFallsBackOnUnusableCueStack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CueStackFile), []byte(`[1,2`), 0o644))

	s, err := Open(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, cuestack.DefaultStack().Name, s.CueStack().Name)
}

func TestEmptyMacroAllowed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PresetsFile),
		[]byte(`{"presets":[{"id":"a","label":"A","macro":[]}],"quickCues":[]}`), 0o644))

	s, err := Open(dir, nil)
	require.NoError(t, err)
	p, ok := s.Preset("a")
	require.True(t, ok)
	assert.Empty(t, p.Macro)

	_, err = s.SavePresets(Presets{Presets: []Preset{{ID: "b", Macro: []macro.Step{}}}})
	require.NoError(t, err)

	p, err = s.UpsertPreset(Preset{ID: "c", Label: "Placeholder"}, "")
	require.NoError(t, err)
	assert.NotNil(t, p.Macro)

	_, err = s.UpsertPreset(Preset{ID: "d", Macro: []macro.Step{macro.Trigger(0, 1)}}, "")
	assert.ErrorIs(t, err, macro.ErrInvalidStep)
}

func TestPresetsKeepUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, PresetsFile)
	doc := `{"version":2,"presets":[{"id":"a","label":"A","macro":[{"type":"cut"}],"icon":"star"}],"quickCues":[]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := Open(dir, nil)
	require.NoError(t, err)
	_, err = s.UpsertPreset(Preset{ID: "b", Macro: []macro.Step{macro.Clear()}}, "")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var saved struct {
		Version int `json:"version"`
		Presets []struct {
			ID   string `json:"id"`
			Icon string `json:"icon"`
		} `json:"presets"`
	}
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, 2, saved.Version)
	require.Len(t, saved.Presets, 2)
	assert.Equal(t, "star", saved.Presets[0].Icon)
	assert.Empty(t, saved.Presets[1].Icon)
}

func TestWatchReloadsExternalEdit(t *testing.T) {
	s := setupTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var changes atomic.Int32
	s.OnChange(func(file string) {
		if file == CueStackFile {
			changes.Add(1)
		}
	})
	go s.Watch(ctx)

	require.NoError(t, s.SaveCueStack(cuestack.DefaultStack()))
	// let the watcher register before the external edit
	time.Sleep(200 * time.Millisecond)
	selfWrites := changes.Load()

	edited := `{"name":"Edited","cues":[{"custom":{"label":"Standby","actions":[]}}],"currentIndex":0}`
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), CueStackFile), []byte(edited), 0o644))

	require.Eventually(t, func() bool {
		return s.CueStack().Name == "Edited"
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, s.CueStack().CurrentIndex)
	assert.Equal(t, selfWrites+1, changes.Load())
}

func TestWatchKeepsCopyOnInvalidEdit(t *testing.T) {
	s := setupTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Watch(ctx)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), PresetsFile), []byte(`not json`), 0o644))
	time.Sleep(300 * time.Millisecond)

	assert.NotEmpty(t, s.Presets().Presets)
}
