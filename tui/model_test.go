package tui

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pasqually/midi"
	"pasqually/puppet"
	"pasqually/remote"
)

type emitted struct {
	event   string
	payload any
}

type fakeRemote struct {
	mu     sync.Mutex
	events []emitted
	status chan remote.Status
}

func (r *fakeRemote) Emit(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{event, payload})
}

func (r *fakeRemote) Status() <-chan remote.Status { return r.status }

func (r *fakeRemote) take() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

type fakeDevices struct{ events chan midi.DeviceEvent }

func (d fakeDevices) Events() <-chan midi.DeviceEvent { return d.events }

type fakeDest struct{ sent [][]byte }

func (d *fakeDest) Name() string { return "Test MIDI" }

func (d *fakeDest) Send(msg []byte) error {
	d.sent = append(d.sent, append([]byte(nil), msg...))
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	m      Model
	remote *fakeRemote
	dest   *fakeDest
	clock  *clock
	ctrl   *puppet.Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		remote: &fakeRemote{status: make(chan remote.Status, 1)},
		dest:   &fakeDest{},
		clock:  &clock{now: time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)},
	}
	f.ctrl = puppet.New(f.remote, puppet.Options{Now: f.clock.Now, Logger: logger})
	require.NoError(t, f.ctrl.LoadMovements([]puppet.Movement{{Key: "o", Note: 50}, {Key: "x", Note: 56}}))
	f.ctrl.SetDestination(f.dest)
	f.m = NewModel(f.ctrl, f.remote, fakeDevices{events: make(chan midi.DeviceEvent)}, Options{Logger: logger})
	return f
}

func (f *fixture) send(msg tea.Msg) tea.Cmd {
	next, cmd := f.m.Update(msg)
	f.m = next.(Model)
	f.clock.Advance(10 * time.Millisecond)
	return cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestHeldKeyReleasesOnLatestTick(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		assert.NotNil(t, f.send(runes("o")))
	}
	assert.Equal(t, []emitted{{puppet.EventKeyPress, puppet.KeyPress{KeyVal: "o", Val: 1}}}, f.remote.take())

	latest := f.m.holds.keys["o"]
	f.send(releaseMsg{key: "o", seq: latest - 1})
	assert.Empty(t, f.remote.take(), "stale tick must not release")
	assert.True(t, f.ctrl.Snapshot().Movements[0].Held)

	f.send(releaseMsg{key: "o", seq: latest})
	assert.Equal(t, []emitted{{puppet.EventKeyPress, puppet.KeyPress{KeyVal: "o", Val: 0}}}, f.remote.take())
	assert.False(t, f.ctrl.Snapshot().Movements[0].Held)
	assert.Equal(t, [][]byte{{0x90, 50, 0x7F}, {0x80, 50, 0x40}}, f.dest.sent)
}

func TestTabCapturesInput(t *testing.T) {
	f := newFixture(t)

	f.send(runes("o"))
	f.remote.take()

	f.send(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, []emitted{{puppet.EventKeyPress, puppet.KeyPress{KeyVal: "o", Val: 0}}}, f.remote.take(),
		"held keys are released before the text box takes the keyboard")
	assert.True(t, f.ctrl.Snapshot().Captured)

	f.send(runes("x"))
	f.send(runes("!"))
	assert.Empty(t, f.remote.take())
	assert.Equal(t, "x!", f.m.input.Value())

	f.send(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []emitted{{remote.EventTTSSubmit, "x!"}}, f.remote.take())
	assert.Empty(t, f.m.input.Value())

	f.send(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, f.remote.take(), "blank lines are not sent")

	f.send(tea.KeyMsg{Type: tea.KeyEscape})
	assert.False(t, f.ctrl.Snapshot().Captured)
	f.send(runes("x"))
	assert.Equal(t, []emitted{{puppet.EventKeyPress, puppet.KeyPress{KeyVal: "x", Val: 1}}}, f.remote.take())
}

func TestFunctionKeys(t *testing.T) {
	f := newFixture(t)

	f.send(tea.KeyMsg{Type: tea.KeyF1})
	f.send(tea.KeyMsg{Type: tea.KeyF1})
	f.send(tea.KeyMsg{Type: tea.KeyF2})
	f.send(tea.KeyMsg{Type: tea.KeyF3})
	assert.Equal(t, []emitted{
		{remote.EventMirroredMode, true},
		{remote.EventMirroredMode, false},
		{remote.EventRetroMode, true},
		{remote.EventHeadNodInvert, true},
	}, f.remote.take())

	f.send(tea.KeyMsg{Type: tea.KeyF5})
	assert.Empty(t, f.remote.take(), "nothing to play before a show list arrives")

	f.send(ShowListMsg{"row", "birthday"})
	f.send(tea.KeyMsg{Type: tea.KeyPgDown})
	f.send(tea.KeyMsg{Type: tea.KeyPgDown})
	f.send(tea.KeyMsg{Type: tea.KeyF5})
	f.send(tea.KeyMsg{Type: tea.KeyPgUp})
	f.send(tea.KeyMsg{Type: tea.KeyF5})
	f.send(tea.KeyMsg{Type: tea.KeyF6})
	f.send(tea.KeyMsg{Type: tea.KeyF7})
	assert.Equal(t, []emitted{
		{remote.EventShowPlay, "birthday"},
		{remote.EventShowPlay, "row"},
		{remote.EventShowPause, nil},
		{remote.EventShowStop, nil},
	}, f.remote.take())
}

func TestReconnectResetsState(t *testing.T) {
	f := newFixture(t)

	f.send(runes("o"))
	seq := f.m.holds.keys["o"]
	require.True(t, f.ctrl.Snapshot().Movements[0].On)
	f.remote.take()

	cmd := f.send(StatusMsg{Connected: true})
	assert.NotNil(t, cmd)
	assert.True(t, f.m.connected)
	mv := f.ctrl.Snapshot().Movements[0]
	assert.False(t, mv.On)
	assert.False(t, mv.Held)

	assert.Equal(t, [][]byte{{0x90, 50, 0x7F}, {0x80, 50, 0x40}}, f.dest.sent, "the held note is turned off")

	f.send(releaseMsg{key: "o", seq: seq})
	assert.Empty(t, f.remote.take())

	f.clock.Advance(time.Second)
	f.send(runes("o"))
	assert.Equal(t, []byte{0x90, 50, 0x7F}, f.dest.sent[2])
	assert.Len(t, f.dest.sent, 3)
}

func TestCtrlCQuits(t *testing.T) {
	f := newFixture(t)
	f.send(runes("x"))
	f.remote.take()

	cmd := f.send(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, []emitted{{puppet.EventKeyPress, puppet.KeyPress{KeyVal: "x", Val: 0}}}, f.remote.take())
	assert.Empty(t, f.m.View())
}

func TestView(t *testing.T) {
	f := newFixture(t)
	f.send(tea.WindowSizeMsg{Width: 80, Height: 24})
	f.send(SystemInfoMsg{CPU: 12, RAM: 40, Disk: 71, Temperature: 48.2, WifiSignal: 80})
	f.send(DeviceEventMsg{Type: midi.InputConnected, Name: "USB MIDI"})

	v := f.m.View()
	assert.Contains(t, v, "pasqually")
	assert.Contains(t, v, "Test MIDI")
	assert.Contains(t, v, "+1 in")
	assert.Contains(t, v, "temp 48.2°C")
	assert.Contains(t, v, "f5/f6/f7:play/pause/stop")

	f.send(DeviceEventMsg{Type: midi.DriverUnavailable})
	f.send(tea.KeyMsg{Type: tea.KeyF12})
	v = f.m.View()
	assert.Contains(t, v, "MIDI off")
	assert.Contains(t, v, "invert head nod")
}
