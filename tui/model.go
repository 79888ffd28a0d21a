// Package tui is the puppeteer console: a bubbletea program turning terminal
// keys into movements and showing what the animatronic is doing.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pasqually/debug"
	"pasqually/keys"
	"pasqually/midi"
	"pasqually/puppet"
	"pasqually/remote"
	"pasqually/theme"
	"pasqually/widgets"
)

// DefaultHoldWindow is how long a key counts as held after its last press or
// repeat. Terminals report no key-up, so the release is synthesised.
const DefaultHoldWindow = 150 * time.Millisecond

// Remote is the server connection as seen by the console.
type Remote interface {
	Emit(event string, payload any)
	Status() <-chan remote.Status
}

// Devices reports MIDI port changes.
type Devices interface {
	Events() <-chan midi.DeviceEvent
}

type Options struct {
	HoldWindow time.Duration
	Theme      *theme.Theme
	Logger     *slog.Logger
}

// holds tracks keys waiting for a synthesised release. Each press stamps the
// key with a new sequence number; only the tick carrying the latest stamp
// releases it.
type holds struct {
	seq  uint64
	keys map[string]uint64
}

type Model struct {
	ctrl       *puppet.Controller
	remote     Remote
	devices    Devices
	theme      *theme.Theme
	logger     *slog.Logger
	holdWindow time.Duration
	holds      *holds

	input    textinput.Model
	quitting bool
	fullHelp bool
	width    int

	connected bool
	linkErr   error
	output    string
	inputs    map[string]bool
	noDriver  bool

	mirrored   bool
	retro      bool
	nodInvert  bool
	shows      []string
	selected   int
	systemInfo *remote.SystemInfo
}

// UpdateMsg means the controller state changed.
type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

type StatusMsg remote.Status

// SystemInfoMsg carries a systemInfo push from the server.
type SystemInfoMsg remote.SystemInfo

// ShowListMsg carries the show names pushed by the server.
type ShowListMsg []string

type releaseMsg struct {
	key string
	seq uint64
}

func NewModel(ctrl *puppet.Controller, r Remote, devices Devices, opts Options) Model {
	if opts.HoldWindow <= 0 {
		opts.HoldWindow = DefaultHoldWindow
	}
	if opts.Theme == nil {
		opts.Theme = theme.New(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	in := textinput.New()
	in.Prompt = "say> "
	in.Placeholder = "tab to type a line for Pasqually"
	in.CharLimit = 280

	return Model{
		ctrl:       ctrl,
		remote:     r,
		devices:    devices,
		theme:      opts.Theme,
		logger:     opts.Logger.With("component", "tui"),
		holdWindow: opts.HoldWindow,
		holds:      &holds{keys: make(map[string]uint64)},
		input:      in,
		inputs:     make(map[string]bool),
	}
}

func ListenForUpdates(ctrl *puppet.Controller) tea.Cmd {
	return func() tea.Msg {
		<-ctrl.Updates()
		return UpdateMsg{}
	}
}

func ListenForDevices(devices Devices) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-devices.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func ListenForStatus(r Remote) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-r.Status()
		if !ok {
			return nil
		}
		return StatusMsg(s)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.ctrl),
		ListenForDevices(m.devices),
		ListenForStatus(m.remote),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			m.releaseAll()
			return m, tea.Quit
		}
		if m.input.Focused() {
			return m.updateInput(msg)
		}
		return m.updateKey(msg)

	case releaseMsg:
		if m.holds.keys[msg.key] == msg.seq {
			delete(m.holds.keys, msg.key)
			m.ctrl.KeyUp(msg.key)
			m.logger.Log(context.Background(), debug.LevelTrace, "key released", "key", msg.key)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case UpdateMsg:
		return m, ListenForUpdates(m.ctrl)

	case DeviceEventMsg:
		m.applyDeviceEvent(midi.DeviceEvent(msg))
		return m, ListenForDevices(m.devices)

	case StatusMsg:
		m.connected = msg.Connected
		m.linkErr = msg.Err
		if msg.Connected {
			// Server restarted or we redialled: start from a clean slate.
			clear(m.holds.keys)
			m.ctrl.Reset()
		}
		return m, ListenForStatus(m.remote)

	case SystemInfoMsg:
		info := remote.SystemInfo(msg)
		m.systemInfo = &info

	case ShowListMsg:
		m.shows = []string(msg)
		if m.selected >= len(m.shows) {
			m.selected = 0
		}
	}

	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab":
		m.releaseAll()
		m.ctrl.SetInputCaptured(true)
		return m, m.input.Focus()

	case "f1":
		m.mirrored = !m.mirrored
		m.remote.Emit(remote.EventMirroredMode, m.mirrored)
		return m, nil

	case "f2":
		m.retro = !m.retro
		m.remote.Emit(remote.EventRetroMode, m.retro)
		return m, nil

	case "f3":
		m.nodInvert = !m.nodInvert
		m.remote.Emit(remote.EventHeadNodInvert, m.nodInvert)
		return m, nil

	case "f5":
		if len(m.shows) > 0 {
			m.remote.Emit(remote.EventShowPlay, m.shows[m.selected])
		}
		return m, nil

	case "f6":
		m.remote.Emit(remote.EventShowPause, nil)
		return m, nil

	case "f7":
		m.remote.Emit(remote.EventShowStop, nil)
		return m, nil

	case "pgup":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "pgdown":
		if m.selected < len(m.shows)-1 {
			m.selected++
		}
		return m, nil

	case "f12":
		m.fullHelp = !m.fullHelp
		return m, nil
	}

	id, ok := keys.FromTerminal(msg)
	if !ok {
		return m, nil
	}
	return m, m.press(id)
}

// press registers a press or repeat of id and schedules its release.
func (m Model) press(id string) tea.Cmd {
	if m.ctrl.KeyDown(id) {
		m.logger.Log(context.Background(), debug.LevelTrace, "key pressed", "key", id)
	}
	m.holds.seq++
	seq := m.holds.seq
	m.holds.keys[id] = seq
	return tea.Tick(m.holdWindow, func(time.Time) tea.Msg {
		return releaseMsg{key: id, seq: seq}
	})
}

// releaseAll releases every held key now. Pending ticks become stale.
func (m Model) releaseAll() {
	for id := range m.holds.keys {
		m.ctrl.KeyUp(id)
	}
	clear(m.holds.keys)
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.input.Blur()
		m.ctrl.SetInputCaptured(false)
		return m, nil

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text != "" {
			m.remote.Emit(remote.EventTTSSubmit, text)
			m.logger.Info("line sent", "chars", len(text))
		}
		m.input.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) applyDeviceEvent(ev midi.DeviceEvent) {
	switch ev.Type {
	case midi.OutputConnected:
		m.output = ev.Name
	case midi.OutputDisconnected:
		if m.output == ev.Name {
			m.output = ""
		}
	case midi.InputConnected:
		m.inputs[ev.Name] = true
	case midi.InputDisconnected:
		delete(m.inputs, ev.Name)
	case midi.DriverUnavailable:
		m.noDriver = true
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.theme.Accent()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(m.theme.Muted())
	textStyle := lipgloss.NewStyle().Foreground(m.theme.FG())

	snap := m.ctrl.Snapshot()

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render("pasqually") + "  " + m.linkView() + "  " + m.midiView(snap))
	out.WriteString("\n")
	out.WriteString(m.modesView(dimStyle))
	out.WriteString("\n\n")

	if len(snap.Movements) == 0 {
		out.WriteString(dimStyle.Render("waiting for movements from the server..."))
	} else {
		out.WriteString(widgets.RenderLampGrid(m.lamps(snap), m.gridCols(), textStyle))
	}
	out.WriteString("\n\n")

	if info := m.systemInfoView(); info != "" {
		out.WriteString(dimStyle.Render(info))
		out.WriteString("\n")
	}
	if shows := m.showsView(textStyle, dimStyle); shows != "" {
		out.WriteString(shows)
		out.WriteString("\n")
	}
	out.WriteString("\n")
	out.WriteString(m.input.View())
	out.WriteString("\n\n")

	if m.fullHelp {
		out.WriteString(dimStyle.Render(widgets.RenderKeyHelp(helpSections)))
	} else {
		out.WriteString(dimStyle.Render(widgets.RenderHelpLine(helpLine)))
	}
	return out.String()
}

func (m Model) linkView() string {
	if m.connected {
		return lipgloss.NewStyle().Foreground(m.theme.Success()).
			Render(fmt.Sprintf("%c server", m.theme.Symbols.Link))
	}
	s := fmt.Sprintf("%c server", m.theme.Symbols.NoLink)
	if m.linkErr != nil {
		s += " (reconnecting)"
	}
	return lipgloss.NewStyle().Foreground(m.theme.Warning()).Render(s)
}

func (m Model) midiView(snap puppet.Snapshot) string {
	switch {
	case m.noDriver:
		return lipgloss.NewStyle().Foreground(m.theme.Warning()).Render("MIDI off")
	case snap.Output == "":
		return lipgloss.NewStyle().Foreground(m.theme.Muted()).
			Render(fmt.Sprintf("%c MIDI", m.theme.Symbols.NoLink))
	}
	s := fmt.Sprintf("%c MIDI %s", m.theme.Symbols.Link, snap.Output)
	if n := len(m.inputs); n > 0 {
		s += fmt.Sprintf(" (+%d in)", n)
	}
	return lipgloss.NewStyle().Foreground(m.theme.Success()).Render(s)
}

func (m Model) modesView(style lipgloss.Style) string {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	nod := "normal"
	if m.nodInvert {
		nod = "inverted"
	}
	return style.Render(fmt.Sprintf("mirror:%s  retro:%s  nod:%s", onOff(m.mirrored), onOff(m.retro), nod))
}

func (m Model) lamps(snap puppet.Snapshot) []widgets.Lamp {
	lamps := make([]widgets.Lamp, len(snap.Movements))
	for i, mv := range snap.Movements {
		l := widgets.Lamp{Key: mv.Key, Note: mv.Note, Symbol: m.theme.Symbols.NoteOff, Color: m.theme.Muted()}
		switch {
		case mv.On:
			l.Symbol, l.Color = m.theme.Symbols.NoteOn, m.theme.Active()
		case mv.Held:
			l.Symbol, l.Color = m.theme.Symbols.Held, m.theme.Accent()
		}
		lamps[i] = l
	}
	return lamps
}

func (m Model) gridCols() int {
	const cell = 14
	if m.width <= 0 {
		return 4
	}
	return max(1, (m.width+3)/cell)
}

func (m Model) systemInfoView() string {
	if m.systemInfo == nil {
		return ""
	}
	i := m.systemInfo
	return fmt.Sprintf("cpu %.0f%%  ram %.0f%%  disk %.0f%%  temp %.1f°C  wifi %.0f%%",
		i.CPU, i.RAM, i.Disk, i.Temperature, i.WifiSignal)
}

func (m Model) showsView(text, dim lipgloss.Style) string {
	if len(m.shows) == 0 {
		return ""
	}
	var lines []string
	for i, name := range m.shows {
		if i == m.selected {
			lines = append(lines, lipgloss.NewStyle().Foreground(m.theme.Accent()).Render("> "+name))
			continue
		}
		lines = append(lines, text.Render("  "+name))
	}
	return dim.Render("shows") + "\n" + strings.Join(lines, "\n")
}

var helpLine = []widgets.KeyBinding{
	{Key: "tab", Desc: "speak"},
	{Key: "f1", Desc: "mirror"},
	{Key: "f2", Desc: "retro"},
	{Key: "f3", Desc: "nod"},
	{Key: "f5/f6/f7", Desc: "play/pause/stop"},
	{Key: "f12", Desc: "help"},
	{Key: "ctrl+c", Desc: "quit"},
}

var helpSections = []widgets.KeySection{
	{
		Title: "Movements",
		Keys: []widgets.KeyBinding{
			{Key: "keys", Desc: "hold a key to hold its movement"},
		},
	},
	{
		Title: "Modes",
		Keys: []widgets.KeyBinding{
			{Key: "f1", Desc: "mirrored mode"},
			{Key: "f2", Desc: "retro mode"},
			{Key: "f3", Desc: "invert head nod"},
		},
	},
	{
		Title: "Shows",
		Keys: []widgets.KeyBinding{
			{Key: "pgup/pgdown", Desc: "select show"},
			{Key: "f5", Desc: "play selected"},
			{Key: "f6", Desc: "pause"},
			{Key: "f7", Desc: "stop"},
		},
	},
	{
		Title: "Speech",
		Keys: []widgets.KeyBinding{
			{Key: "tab", Desc: "type a line"},
			{Key: "enter", Desc: "send it"},
			{Key: "esc", Desc: "back to puppeteering"},
		},
	},
}
