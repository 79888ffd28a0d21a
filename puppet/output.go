package puppet

import (
	"errors"
	"fmt"
	"log/slog"
)

// MIDI status bytes and velocities used for movement notes.
const (
	StatusNoteOn  uint8 = 0x90
	StatusNoteOff uint8 = 0x80

	VelocityOn             uint8 = 0x7F
	DefaultReleaseVelocity uint8 = 0x40
	MaxVelocity            uint8 = 0x7F
)

// Destination is an output that accepts raw MIDI messages.
type Destination interface {
	Name() string
	Send(msg []byte) error
}

// Output drives note on/off messages to the active destination, sending only
// when a note actually changes state.
type Output struct {
	notes           *NoteState
	dest            Destination
	releaseVelocity uint8
	logger          *slog.Logger
}

// NewOutput creates an output with no destination selected. A release
// velocity above MaxVelocity is clamped.
func NewOutput(releaseVelocity uint8, logger *slog.Logger) *Output {
	if logger == nil {
		logger = slog.Default()
	}
	if releaseVelocity > MaxVelocity {
		logger.Warn("release velocity clamped", "velocity", releaseVelocity, "max", MaxVelocity)
		releaseVelocity = MaxVelocity
	}
	return &Output{
		notes:           NewNoteState(),
		releaseVelocity: releaseVelocity,
		logger:          logger,
	}
}

// Encode builds the 3-byte message for note in state s.
func (o *Output) Encode(note uint8, s State) []byte {
	if s == On {
		return []byte{StatusNoteOn, note, VelocityOn}
	}
	return []byte{StatusNoteOff, note, o.releaseVelocity}
}

// SetNote requests note to be on (value 1) or off (value 0). A request for the
// state already recorded sends nothing. The state is recorded only once the
// message went out. Failures are logged and returned but are never fatal.
func (o *Output) SetNote(note uint8, value int) error {
	if o.dest == nil {
		o.logger.Warn("no MIDI output selected", "note", note)
		return ErrNoDestination
	}

	s := StateOf(value)
	if o.notes.Get(note) == s {
		return nil
	}

	msg := o.Encode(note, s)
	if err := o.dest.Send(msg); err != nil {
		o.logger.Warn("MIDI send skipped", "output", o.dest.Name(), "note", note, "state", s, "error", err)
		if errors.Is(err, ErrDestinationGone) {
			return err
		}
		return fmt.Errorf("send to %s: %w", o.dest.Name(), err)
	}
	o.notes.Set(note, s)
	o.logger.Debug("MIDI sent", "output", o.dest.Name(), "note", note, "state", s)
	return nil
}

// AllOff sends note-off for every note recorded on, then forgets all note
// state. Send failures are logged; the tracker is cleared regardless.
func (o *Output) AllOff() {
	if o.dest != nil {
		for _, note := range o.notes.Active() {
			_ = o.SetNote(note, 0)
		}
	}
	o.notes.Reset()
}

// SetDestination makes d the active output. Nil clears it.
func (o *Output) SetDestination(d Destination) {
	o.dest = d
	if d != nil {
		o.logger.Info("MIDI output selected", "output", d.Name())
	}
}

// ClearDestination deselects the active output if it has the given name.
func (o *Output) ClearDestination(name string) bool {
	if o.dest == nil || o.dest.Name() != name {
		return false
	}
	o.logger.Warn("MIDI output removed", "output", name)
	o.dest = nil
	return true
}

// Destination returns the active output, or nil.
func (o *Output) Destination() Destination {
	return o.dest
}

// Notes exposes the note-state tracker.
func (o *Output) Notes() *NoteState {
	return o.notes
}
