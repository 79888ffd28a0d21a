package midi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	gomidi "gitlab.com/gomidi/midi/v2"

	"pasqually/puppet"
)

func TestSelectPort(t *testing.T) {
	names := []string{"Midi Through:Midi Through Port-0 14:0", "USB MIDI Interface", "Launchpad X"}

	name, ok := SelectPort(names, []string{"MIDI"}, []string{"Midi Through"})
	assert.True(t, ok)
	assert.Equal(t, "USB MIDI Interface", name)

	name, ok = SelectPort(names, nil, []string{"through"})
	assert.True(t, ok)
	assert.Equal(t, "USB MIDI Interface", name)

	_, ok = SelectPort(names, []string{"loopMIDI"}, nil)
	assert.False(t, ok)

	_, ok = SelectPort(nil, nil, nil)
	assert.False(t, ok)
}

func TestPortSend(t *testing.T) {
	var got []byte
	open := true
	p := newPort("USB MIDI", func(msg gomidi.Message) error {
		got = msg.Bytes()
		return nil
	}, func() bool { return open })

	assert.Equal(t, "USB MIDI", p.Name())
	assert.NoError(t, p.Send([]byte{0x90, 60, 0x7F}))
	assert.Equal(t, []byte{0x90, 60, 0x7F}, got)

	open = false
	assert.ErrorIs(t, p.Send([]byte{0x80, 60, 0x40}), puppet.ErrDestinationGone)
}

func TestPortSendError(t *testing.T) {
	boom := errors.New("boom")
	p := newPort("USB MIDI", func(gomidi.Message) error { return boom }, func() bool { return true })

	err := p.Send([]byte{0x90, 60, 0x7F})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, puppet.ErrDestinationGone)
}

func TestDeviceEventTypeString(t *testing.T) {
	assert.Equal(t, "output connected", OutputConnected.String())
	assert.Equal(t, "driver unavailable", DriverUnavailable.String())
}
