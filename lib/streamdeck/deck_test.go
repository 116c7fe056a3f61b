package streamdeck

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcall/lib/cuestack"
	"showcall/lib/logging"
	"showcall/lib/macro"
	"showcall/lib/store"
)

type fakePanel struct {
	model *Model

	mu    sync.Mutex
	keys  map[int]image.Image
	lcd   int
	input chan InputEvent
}

func newFakePanel(m Model) *fakePanel {
	return &fakePanel{model: &m, keys: map[int]image.Image{}, input: make(chan InputEvent)}
}

func (p *fakePanel) Model() *Model { return p.model }

func (p *fakePanel) SetKeyImage(key int, img image.Image) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[key] = img
	return nil
}

func (p *fakePanel) SetLCDImage(x, y int, img image.Image) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lcd++
	return nil
}

func (p *fakePanel) ReadInput(ch chan<- InputEvent) error {
	for ev := range p.input {
		ch <- ev
	}
	return nil
}

func (p *fakePanel) Close() error { return nil }

func (p *fakePanel) key(i int) image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[i]
}

type fakePresets struct{ doc store.Presets }

func (f fakePresets) Presets() store.Presets { return f.doc }

type fakeExec struct {
	mu   sync.Mutex
	runs [][]macro.Step
}

func (f *fakeExec) Run(ctx context.Context, steps []macro.Step) macro.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, steps)
	return macro.Report{TotalSteps: len(steps), Executed: len(steps), State: macro.StateCompleted}
}

func (f *fakeExec) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

type fakeCues struct {
	steps []int
	gos   int
}

func (f *fakeCues) State() cuestack.State {
	return cuestack.State{Name: "Show", CurrentIndex: 0, Total: 2, Current: &cuestack.CueInfo{Label: "Walk-In"}}
}

func (f *fakeCues) Next(ctx context.Context) (cuestack.Outcome, error) {
	f.gos++
	return cuestack.Outcome{}, nil
}

func (f *fakeCues) Step(delta int) (cuestack.State, error) {
	f.steps = append(f.steps, delta)
	return f.State(), nil
}

func setupTest(t *testing.T, m Model) (*Deck, *fakePanel, *fakeExec, *fakeCues) {
	t.Helper()
	panel := newFakePanel(m)
	exec := &fakeExec{}
	cues := &fakeCues{}
	doc := store.Presets{Presets: []store.Preset{
		{ID: "walkin", Label: "Walk-In", Color: "#2d6cdf", Macro: []macro.Step{macro.Trigger(1, 1)}},
		{ID: "blackout", Label: "Blackout", Macro: []macro.Step{macro.Clear()}},
	}}
	deck := NewDeck(Options{
		Panel:    panel,
		Presets:  fakePresets{doc: doc},
		Executor: exec,
		Cues:     cues,
		Lockout:  500 * time.Millisecond,
		Logger:   logging.Discard(),
	})
	return deck, panel, exec, cues
}

func keyDown(key int, at time.Time) InputEvent {
	return InputEvent{Time: at, Key: &KeyEvent{Key: key, Pressed: true}}
}

func TestRefreshDrawsEveryKey(t *testing.T) {
	deck, panel, _, _ := setupTest(t, ModelPlus)

	require.NoError(t, deck.Refresh())
	assert.Len(t, panel.keys, ModelPlus.Keys)
	assert.Equal(t, 1, panel.lcd)

	// presets sit dimmed until pressed, unused keys are black
	assert.Equal(t, color.RGBA{0x2d / 3, 0x6c / 3, 0xdf / 3, 255}, panel.key(0).At(1, 1))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, panel.key(5).At(1, 1))
}

func TestKeyPressRunsPreset(t *testing.T) {
	deck, panel, exec, _ := setupTest(t, ModelXL)
	require.NoError(t, deck.Refresh())
	now := time.Now()

	deck.Handle(context.Background(), keyDown(1, now))
	require.Equal(t, 1, exec.count())
	assert.Equal(t, []macro.Step{macro.Clear()}, exec.runs[0])

	deck.Handle(context.Background(), InputEvent{Time: now, Key: &KeyEvent{Key: 0, Pressed: false}})
	deck.Handle(context.Background(), keyDown(7, now))
	assert.Equal(t, 1, exec.count())
	assert.Equal(t, 0, panel.lcd, "XL has no strip")
}

func TestKeyLockout(t *testing.T) {
	deck, _, exec, _ := setupTest(t, ModelXL)
	require.NoError(t, deck.Refresh())
	now := time.Now()

	deck.Handle(context.Background(), keyDown(0, now))
	deck.Handle(context.Background(), keyDown(0, now.Add(100*time.Millisecond)))
	assert.Equal(t, 1, exec.count())

	deck.Handle(context.Background(), keyDown(1, now.Add(100*time.Millisecond)))
	assert.Equal(t, 2, exec.count(), "other keys are not locked")

	deck.Handle(context.Background(), keyDown(0, now.Add(600*time.Millisecond)))
	assert.Equal(t, 3, exec.count())
}

func TestEncoderDrivesCueStack(t *testing.T) {
	deck, _, _, cues := setupTest(t, ModelPlus)
	now := time.Now()
	ctx := context.Background()

	deck.Handle(ctx, InputEvent{Time: now, Encoder: &EncoderEvent{Encoder: 0, Delta: -3}})
	deck.Handle(ctx, InputEvent{Time: now, Encoder: &EncoderEvent{Encoder: 0, Delta: 1}})
	deck.Handle(ctx, InputEvent{Time: now, Encoder: &EncoderEvent{Encoder: 2, Delta: 1}})
	assert.Equal(t, []int{-1, 1}, cues.steps)

	deck.Handle(ctx, InputEvent{Time: now, Encoder: &EncoderEvent{Encoder: 0, Pressed: true}})
	deck.Handle(ctx, InputEvent{Time: now.Add(200 * time.Millisecond), Encoder: &EncoderEvent{Encoder: 0, Pressed: true}})
	assert.Equal(t, 1, cues.gos)
	deck.Handle(ctx, InputEvent{Time: now.Add(time.Second), Encoder: &EncoderEvent{Encoder: 0, Pressed: true}})
	assert.Equal(t, 2, cues.gos)
}

func TestRunStopsWithContext(t *testing.T) {
	deck, panel, exec, _ := setupTest(t, ModelXL)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- deck.Run(ctx) }()

	panel.input <- keyDown(0, time.Now())
	require.Eventually(t, func() bool { return exec.count() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestParseColor(t *testing.T) {
	assert.Equal(t, color.RGBA{0xff, 0x80, 0x00, 255}, ParseColor("#ff8000"))
	assert.Equal(t, color.RGBA{0xff, 0x88, 0x00, 255}, ParseColor("#f80"))
	assert.Equal(t, colorIdle, ParseColor("red"))
	assert.Equal(t, colorIdle, ParseColor(""))
}

func TestWrap(t *testing.T) {
	assert.Equal(t, []string{"Walk-In"}, wrap("Walk-In", 13))
	assert.Equal(t, []string{"Sermon", "Background"}, wrap("Sermon Background", 13))
	assert.Equal(t, []string{"Blackout", "[4]"}, wrap("Blackout\n[4]", 13))
}

func TestKeyImageSize(t *testing.T) {
	img := KeyImage(96, color.RGBA{10, 20, 30, 255}, color.White, "Go")
	assert.Equal(t, image.Rect(0, 0, 96, 96), img.Bounds())
	assert.Equal(t, color.RGBA{10, 20, 30, 255}, img.At(0, 0))
}

func TestParser(t *testing.T) {
	p := newParser(&ModelPlus)
	now := time.Now()

	evs := p.parse([]byte{0x00, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}, now)
	require.Len(t, evs, 1)
	assert.Equal(t, KeyEvent{Key: 0, Pressed: true}, *evs[0].Key)

	assert.Empty(t, p.parse([]byte{0x00, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}, now))

	evs = p.parse([]byte{0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, now)
	require.Len(t, evs, 1)
	assert.False(t, evs[0].Key.Pressed)

	evs = p.parse([]byte{0x03, 0, 0, 0x01, 0xff, 0, 2, 0}, now)
	require.Len(t, evs, 2)
	assert.Equal(t, EncoderEvent{Encoder: 0, Delta: -1}, *evs[0].Encoder)
	assert.Equal(t, EncoderEvent{Encoder: 2, Delta: 2}, *evs[1].Encoder)

	evs = p.parse([]byte{0x03, 0, 0, 0x00, 0, 1, 0, 0}, now)
	require.Len(t, evs, 1)
	assert.Equal(t, EncoderEvent{Encoder: 1, Pressed: true}, *evs[0].Encoder)

	assert.Empty(t, p.parse([]byte{0x01}, now))
}
