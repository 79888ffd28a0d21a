package midi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"pasqually/debug"
	"pasqually/puppet"
)

var (
	ErrNoDriver    = errors.New("no MIDI driver available")
	ErrScanTimeout = errors.New("MIDI port scan timed out")
	ErrNoOutput    = errors.New("no matching MIDI output")
)

// scanTimeout bounds a port listing; CoreMIDI can hang.
const scanTimeout = 3 * time.Second

// Sink receives output selection and inbound note messages.
type Sink interface {
	SetDestination(d puppet.Destination)
	ClearDestination(name string)
	HandleDeviceMessage(msg []byte) int
}

// Options select which ports the manager uses
type Options struct {
	Outputs  []string // name patterns for the output; first match wins
	Inputs   []string // name patterns for inputs; all matches are listened to
	Exclude  []string // name patterns never used
	PollRate time.Duration
}

// DeviceManager handles hot-plug detection of MIDI ports
type DeviceManager struct {
	opts   Options
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	outPort drivers.Out
	output  *Port
	inputs  map[string]func()

	events chan DeviceEvent
}

// NewDeviceManager creates a device manager feeding sink
func NewDeviceManager(sink Sink, opts Options, logger *slog.Logger) *DeviceManager {
	if opts.PollRate <= 0 {
		opts.PollRate = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceManager{
		opts:   opts,
		sink:   sink,
		logger: logger.With("component", "midi"),
		inputs: make(map[string]func()),
		events: make(chan DeviceEvent, 16),
	}
}

// Events returns a channel of port connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Run starts the polling loop (blocking - run in goroutine). Without a usable
// driver it reports once and returns; MIDI stays off for the session.
func (dm *DeviceManager) Run(ctx context.Context) error {
	defer close(dm.events)

	if drivers.Get() == nil {
		dm.logger.Error("MIDI unavailable, notes will not be sent or received")
		dm.emit(DeviceEvent{Type: DriverUnavailable})
		return ErrNoDriver
	}

	ticker := time.NewTicker(dm.opts.PollRate)
	defer ticker.Stop()

	dm.scan()
	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			return nil
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) emit(ev DeviceEvent) {
	select {
	case dm.events <- ev:
	default:
		dm.logger.Debug("device event dropped", "type", ev.Type, "name", ev.Name)
	}
}

func (dm *DeviceManager) scan() {
	inPorts, outPorts, err := listPorts(scanTimeout)
	if err != nil {
		// User needs to run: sudo killall coreaudiod midiserver
		dm.logger.Warn("skipping MIDI scan", "error", err)
		return
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.scanOutput(outPorts)
	dm.scanInputs(inPorts)
}

func (dm *DeviceManager) scanOutput(outPorts []drivers.Out) {
	if dm.output != nil {
		for _, p := range outPorts {
			if p.String() == dm.output.Name() {
				return
			}
		}
		name := dm.output.Name()
		dm.sink.ClearDestination(name)
		dm.output = nil
		dm.outPort = nil
		dm.emit(DeviceEvent{Type: OutputDisconnected, Name: name})
	}

	names := make([]string, len(outPorts))
	for i, p := range outPorts {
		names[i] = p.String()
	}
	name, ok := SelectPort(names, dm.opts.Outputs, dm.opts.Exclude)
	if !ok {
		return
	}
	for _, p := range outPorts {
		if p.String() != name {
			continue
		}
		send, err := gomidi.SendTo(p)
		if err != nil {
			dm.logger.Warn("open MIDI output", "name", name, "error", err)
			return
		}
		dm.outPort = p
		dm.output = newPort(name, send, p.IsOpen)
		dm.sink.SetDestination(dm.output)
		dm.emit(DeviceEvent{Type: OutputConnected, Name: name})
		return
	}
}

func (dm *DeviceManager) scanInputs(inPorts []drivers.In) {
	seen := make(map[string]bool)
	for _, p := range inPorts {
		name := p.String()
		if !matchesPort(name, dm.opts.Inputs, dm.opts.Exclude) {
			continue
		}
		seen[name] = true
		if _, ok := dm.inputs[name]; ok {
			continue
		}
		trace := debug.Every(dm.logger, 16)
		stop, err := gomidi.ListenTo(p, func(msg gomidi.Message, timestampms int32) {
			n := dm.sink.HandleDeviceMessage(msg.Bytes())
			trace(debug.LevelTrace, "MIDI in", "port", name, "msg", msg.String(), "dispatched", n)
		})
		if err != nil {
			dm.logger.Warn("open MIDI input", "name", name, "error", err)
			continue
		}
		dm.inputs[name] = stop
		dm.logger.Info("MIDI input opened", "name", name)
		dm.emit(DeviceEvent{Type: InputConnected, Name: name})
	}

	for name, stop := range dm.inputs {
		if seen[name] {
			continue
		}
		stop()
		delete(dm.inputs, name)
		dm.logger.Warn("MIDI input removed", "name", name)
		dm.emit(DeviceEvent{Type: InputDisconnected, Name: name})
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for name, stop := range dm.inputs {
		stop()
		delete(dm.inputs, name)
	}
	if dm.outPort != nil {
		dm.sink.ClearDestination(dm.output.Name())
		_ = dm.outPort.Close()
		dm.outPort = nil
		dm.output = nil
	}
}

// ListPorts returns the names of all MIDI input and output ports.
func ListPorts() (ins, outs []string, err error) {
	if drivers.Get() == nil {
		return nil, nil, ErrNoDriver
	}
	inPorts, outPorts, err := listPorts(scanTimeout)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range inPorts {
		ins = append(ins, p.String())
	}
	for _, p := range outPorts {
		outs = append(outs, p.String())
	}
	return ins, outs, nil
}

func listPorts(timeout time.Duration) ([]drivers.In, []drivers.Out, error) {
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{inPorts: gomidi.GetInPorts(), outPorts: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.inPorts, r.outPorts, nil
	case <-time.After(timeout):
		return nil, nil, ErrScanTimeout
	}
}

// OpenOutput opens the first output matching include and not exclude. The
// returned close function releases the port.
func OpenOutput(include, exclude []string) (*Port, func() error, error) {
	if drivers.Get() == nil {
		return nil, nil, ErrNoDriver
	}
	_, outPorts, err := listPorts(scanTimeout)
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, len(outPorts))
	for i, p := range outPorts {
		names[i] = p.String()
	}
	name, ok := SelectPort(names, include, exclude)
	if !ok {
		return nil, nil, fmt.Errorf("no output matches %v: %w", include, ErrNoOutput)
	}
	for _, p := range outPorts {
		if p.String() != name {
			continue
		}
		send, err := gomidi.SendTo(p)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", name, err)
		}
		return newPort(name, send, p.IsOpen), p.Close, nil
	}
	return nil, nil, fmt.Errorf("%s vanished: %w", name, ErrNoOutput)
}
