package puppet

import "sort"

// State is the logical state of an output note.
type State bool

const (
	Off State = false
	On  State = true
)

func (s State) String() string {
	if s == On {
		return "on"
	}
	return "off"
}

// StateOf maps a dispatch value to a note state: 1 is on, anything else off.
func StateOf(value int) State {
	return State(value == 1)
}

// NoteState remembers the last state sent for each note. Notes never sent are Off.
type NoteState struct {
	notes map[uint8]State
}

// NewNoteState creates a tracker with every note off
func NewNoteState() *NoteState {
	return &NoteState{notes: make(map[uint8]State)}
}

// Get returns the stored state of note (Off when absent).
func (n *NoteState) Get(note uint8) State {
	return n.notes[note]
}

// Set stores s for note and reports whether it differed from the stored state.
// Off entries are removed so absent and off stay equivalent.
func (n *NoteState) Set(note uint8, s State) bool {
	if n.notes[note] == s {
		return false
	}
	if s == Off {
		delete(n.notes, note)
	} else {
		n.notes[note] = s
	}
	return true
}

// Active returns the notes currently on, ascending.
func (n *NoteState) Active() []uint8 {
	out := make([]uint8, 0, len(n.notes))
	for note := range n.notes {
		out = append(out, note)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (n *NoteState) Reset() {
	n.notes = make(map[uint8]State)
}
