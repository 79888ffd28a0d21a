package midi

import (
	"fmt"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"

	"pasqually/puppet"
)

// Port is an opened MIDI output usable as a puppet destination.
type Port struct {
	name   string
	send   func(msg gomidi.Message) error
	isOpen func() bool
}

func newPort(name string, send func(gomidi.Message) error, isOpen func() bool) *Port {
	return &Port{name: name, send: send, isOpen: isOpen}
}

func (p *Port) Name() string { return p.name }

// Send writes a raw message. Failures on a port that has gone away wrap
// puppet.ErrDestinationGone.
func (p *Port) Send(msg []byte) error {
	if p.isOpen != nil && !p.isOpen() {
		return fmt.Errorf("%s: %w", p.name, puppet.ErrDestinationGone)
	}
	if err := p.send(gomidi.Message(msg)); err != nil {
		if p.isOpen != nil && !p.isOpen() {
			return fmt.Errorf("%s: %w", p.name, puppet.ErrDestinationGone)
		}
		return err
	}
	return nil
}

// SelectPort returns the first name containing any include pattern and none of
// the exclude patterns, comparing case-insensitively. An empty include list
// matches everything.
func SelectPort(names, include, exclude []string) (string, bool) {
	for _, name := range names {
		if matchesPort(name, include, exclude) {
			return name, true
		}
	}
	return "", false
}

func matchesPort(name string, include, exclude []string) bool {
	lower := strings.ToLower(name)
	for _, p := range exclude {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, p := range include {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
