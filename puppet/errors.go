package puppet

import "errors"

var (
	ErrEmptyKey        = errors.New("empty key")
	ErrNoteRange       = errors.New("note out of range 0-127")
	ErrNoDestination   = errors.New("no output destination selected")
	ErrDestinationGone = errors.New("output destination no longer exists")
)
