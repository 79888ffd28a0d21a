package puppet

import "sort"

// KeyState is the set of input identifiers currently held down. It collapses
// key-repeat into a single logical press.
type KeyState struct {
	down map[string]struct{}
}

// NewKeyState creates an empty key set
func NewKeyState() *KeyState {
	return &KeyState{down: make(map[string]struct{})}
}

// Down records id as held. It returns false if id was already held (a repeat).
func (k *KeyState) Down(id string) bool {
	if _, ok := k.down[id]; ok {
		return false
	}
	k.down[id] = struct{}{}
	return true
}

// Up releases id. It returns false if id was never recorded as held.
func (k *KeyState) Up(id string) bool {
	if _, ok := k.down[id]; !ok {
		return false
	}
	delete(k.down, id)
	return true
}

func (k *KeyState) Held(id string) bool {
	_, ok := k.down[id]
	return ok
}

// Keys returns the held identifiers, sorted.
func (k *KeyState) Keys() []string {
	out := make([]string, 0, len(k.down))
	for id := range k.down {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (k *KeyState) Reset() {
	k.down = make(map[string]struct{})
}
