package puppet

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxNote is the highest MIDI note number a movement may be bound to.
const MaxNote = 127

// Movement is one (key, note) pair as pushed by the show-control server.
type Movement struct {
	Key  string `json:"key"`
	Note int    `json:"note"`
}

// Binding is a movement loaded into the table, plus the time it last fired.
type Binding struct {
	Key         string
	Note        uint8
	LastTrigger time.Time // zero until the first successful dispatch
}

// MovementTable maps lowercase key identifiers to note bindings, keeping the
// order the server sent them in.
type MovementTable struct {
	order []*Binding
	byKey map[string]*Binding
}

// NewMovementTable creates an empty table
func NewMovementTable() *MovementTable {
	return &MovementTable{byKey: make(map[string]*Binding)}
}

// Load replaces the table wholesale. A repeated key keeps the position of its
// first occurrence and takes the note of its last. Invalid entries are skipped
// and reported in the returned error; the valid ones are still loaded.
func (t *MovementTable) Load(movements []Movement) error {
	order := make([]*Binding, 0, len(movements))
	byKey := make(map[string]*Binding, len(movements))

	var errs []error
	for i, m := range movements {
		key := strings.ToLower(m.Key)
		if key == "" {
			errs = append(errs, fmt.Errorf("movement %d: %w", i, ErrEmptyKey))
			continue
		}
		if m.Note < 0 || m.Note > MaxNote {
			errs = append(errs, fmt.Errorf("movement %d (%q): note %d: %w", i, key, m.Note, ErrNoteRange))
			continue
		}
		if b, ok := byKey[key]; ok {
			b.Note = uint8(m.Note)
			continue
		}
		b := &Binding{Key: key, Note: uint8(m.Note)}
		byKey[key] = b
		order = append(order, b)
	}

	t.order = order
	t.byKey = byKey
	return errors.Join(errs...)
}

// Lookup finds the binding for key, ignoring case.
func (t *MovementTable) Lookup(key string) (*Binding, bool) {
	b, ok := t.byKey[strings.ToLower(key)]
	return b, ok
}

// Each calls fn for every binding in insertion order.
func (t *MovementTable) Each(fn func(b *Binding)) {
	for _, b := range t.order {
		fn(b)
	}
}

// Len returns the number of bindings.
func (t *MovementTable) Len() int {
	return len(t.order)
}

// Snapshot returns copies of all bindings in insertion order.
func (t *MovementTable) Snapshot() []Binding {
	out := make([]Binding, len(t.order))
	for i, b := range t.order {
		out[i] = *b
	}
	return out
}
