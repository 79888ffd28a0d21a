// Package puppet turns key and MIDI input into movement notifications and
// MIDI note output for the animatronic.
package puppet

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// EventKeyPress is the outward notification sent for every dispatched key.
const EventKeyPress = "onKeyPress"

// DefaultDebounce is the re-trigger window for a single binding.
const DefaultDebounce = time.Millisecond

// Emitter is the outward notification channel. Emit must not block.
type Emitter interface {
	Emit(event string, payload any)
}

// KeyPress is the payload of an onKeyPress notification.
type KeyPress struct {
	KeyVal string `json:"keyVal"`
	Val    int    `json:"val"`
}

// Options tune a Controller. Zero values pick the defaults; a nil
// ReleaseVelocity means DefaultReleaseVelocity.
type Options struct {
	Debounce        time.Duration
	ReleaseVelocity *uint8
	Now             func() time.Time
	Logger          *slog.Logger
}

// Controller owns all dispatch state. Handlers may arrive from several
// goroutines (terminal, MIDI driver, websocket); each call runs to completion
// under the controller's lock.
type Controller struct {
	mu sync.Mutex

	table    *MovementTable
	keys     *KeyState
	output   *Output
	emitter  Emitter
	debounce time.Duration
	now      func() time.Time
	captured bool
	logger   *slog.Logger

	updates chan struct{}
}

// New creates a controller that notifies through emitter. A nil emitter
// disables broadcasting.
func New(emitter Emitter, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	velocity := DefaultReleaseVelocity
	if opts.ReleaseVelocity != nil {
		velocity = *opts.ReleaseVelocity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		table:    NewMovementTable(),
		keys:     NewKeyState(),
		output:   NewOutput(velocity, opts.Logger),
		emitter:  emitter,
		debounce: opts.Debounce,
		now:      opts.Now,
		logger:   opts.Logger,
		updates:  make(chan struct{}, 1),
	}
}

// Updates signals (coalesced) whenever visible state changes.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// LoadMovements replaces the movement table.
func (c *Controller) LoadMovements(movements []Movement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.table.Load(movements)
	if err != nil {
		c.logger.Warn("some movements were skipped", "error", err)
	}
	c.logger.Info("movements loaded", "count", c.table.Len())
	c.notify()
	return err
}

// Reset forgets held keys and note states, as after a reconnect. Notes still
// sounding on the output are turned off first.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys.Reset()
	c.output.AllOff()
	c.notify()
}

// Dispatch fires the movement bound to key. It returns true if anything was
// emitted or sent; unmapped keys and debounced repeats return false.
func (c *Controller) Dispatch(key string, value int, broadcast, muteOutput bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatch(key, value, broadcast, muteOutput)
}

func (c *Controller) dispatch(key string, value int, broadcast, muteOutput bool) bool {
	b, ok := c.table.Lookup(key)
	if !ok {
		return false
	}

	now := c.now()
	if !b.LastTrigger.IsZero() && now.Sub(b.LastTrigger) <= c.debounce {
		c.logger.Debug("dispatch debounced", "key", b.Key, "val", value)
		return false
	}

	if broadcast && c.emitter != nil {
		c.emitter.Emit(EventKeyPress, KeyPress{KeyVal: key, Val: value})
	}
	if !muteOutput {
		if err := c.output.SetNote(b.Note, value); err != nil && !errors.Is(err, ErrNoDestination) {
			c.logger.Debug("note output failed", "key", b.Key, "error", err)
		}
	}
	b.LastTrigger = now
	c.notify()
	return true
}

// SetInputCaptured marks whether a text-entry field owns the keyboard. While
// captured, KeyDown and KeyUp do nothing.
func (c *Controller) SetInputCaptured(captured bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured = captured
}

// KeyDown handles a raw key press. Repeats of a held key are dropped. It
// returns true on the first press.
func (c *Controller) KeyDown(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.captured || !c.keys.Down(id) {
		return false
	}
	c.dispatch(id, 1, true, false)
	return true
}

// KeyUp handles a raw key release. Releases of keys never seen pressed are
// dropped. It returns true when the key was held.
func (c *Controller) KeyUp(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.captured || !c.keys.Up(id) {
		return false
	}
	c.dispatch(id, 0, true, false)
	return true
}

// HandleRemoteKey applies a key event pushed by the server (gamepad input on
// the server side). It is not broadcast back.
func (c *Controller) HandleRemoteKey(key string, value int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatch(key, value, false, false)
}

// HandleDeviceMessage mirrors an incoming MIDI note into key dispatches for
// every binding on that note. Output is muted so the note is not echoed back.
// It returns the number of bindings dispatched.
func (c *Controller) HandleDeviceMessage(msg []byte) int {
	note, s, ok := ParseNote(msg)
	if !ok {
		return 0
	}
	value := 0
	if s == On {
		value = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	c.table.Each(func(b *Binding) {
		if b.Note != note {
			return
		}
		if c.dispatch(b.Key, value, true, true) {
			n++
		}
	})
	return n
}

// ParseNote reads a note on/off message. Note-on with velocity 0 is an off.
func ParseNote(msg []byte) (note uint8, s State, ok bool) {
	if len(msg) < 3 {
		return 0, Off, false
	}
	command := msg[0] >> 4
	note, velocity := msg[1], msg[2]
	switch {
	case command == 9 && velocity > 0:
		return note, On, true
	case command == 8 || (command == 9 && velocity == 0):
		return note, Off, true
	}
	return 0, Off, false
}

// SetDestination selects the MIDI output.
func (c *Controller) SetDestination(d Destination) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output.SetDestination(d)
	c.notify()
}

// ClearDestination deselects the output with the given name, if active.
func (c *Controller) ClearDestination(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.output.ClearDestination(name) {
		c.notify()
	}
}

// SetNote drives the output directly, bypassing the movement table.
func (c *Controller) SetNote(note uint8, value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.output.SetNote(note, value)
	c.notify()
	return err
}

// MovementView is a binding with its current state, for display.
type MovementView struct {
	Key  string
	Note uint8
	Held bool
	On   bool
}

// Snapshot describes the controller for display.
type Snapshot struct {
	Movements []MovementView
	Output    string // empty when no output is selected
	Captured  bool
}

// Snapshot copies the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Captured: c.captured}
	if d := c.output.Destination(); d != nil {
		s.Output = d.Name()
	}
	for _, b := range c.table.Snapshot() {
		s.Movements = append(s.Movements, MovementView{
			Key:  b.Key,
			Note: b.Note,
			Held: c.keys.Held(b.Key),
			On:   c.output.Notes().Get(b.Note) == On,
		})
	}
	return s
}
