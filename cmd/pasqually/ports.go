package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"pasqually/config"
	"pasqually/midi"
	"pasqually/puppet"
)

// PortsCmd lists MIDI ports, marking the ones the console would use.
type PortsCmd struct {
	MIDI  config.MIDI `embed:"" prefix:"midi."`
	Watch bool        `help:"Keep polling and print whenever the port list changes"`
	Test  int         `help:"Send a short note-on/off with this note number to the selected output" default:"-1"`
}

// Validate is called by Kong after parsing.
func (c *PortsCmd) Validate() error {
	return c.MIDI.Validate()
}

// Run is called by Kong when the ports command is executed.
func (c *PortsCmd) Run(logger *slog.Logger) error {
	ins, outs, err := midi.ListPorts()
	if err != nil {
		if errors.Is(err, midi.ErrScanTimeout) {
			// CoreMIDI hangs now and then.
			return fmt.Errorf("%w (try: sudo killall coreaudiod midiserver)", err)
		}
		return err
	}
	c.print(os.Stdout, ins, outs)

	if c.Test >= 0 {
		if err := c.testNote(logger); err != nil {
			return err
		}
	}
	if c.Watch {
		return c.watch(ins, outs)
	}
	return nil
}

func (c *PortsCmd) print(w io.Writer, ins, outs []string) {
	out, _ := midi.SelectPort(outs, c.MIDI.Outputs, c.MIDI.Exclude)

	fmt.Fprintln(w, "=== MIDI Output Ports ===")
	for i, name := range outs {
		mark := " "
		if name == out {
			mark = "*"
		}
		fmt.Fprintf(w, " %s%d: %s\n", mark, i, name)
	}
	fmt.Fprintln(w, "\n=== MIDI Input Ports ===")
	for i, name := range ins {
		mark := " "
		if _, ok := midi.SelectPort([]string{name}, c.MIDI.Inputs, c.MIDI.Exclude); ok {
			mark = "*"
		}
		fmt.Fprintf(w, " %s%d: %s\n", mark, i, name)
	}
	fmt.Fprintln(w, "\n* = used by the console")
}

func (c *PortsCmd) testNote(logger *slog.Logger) error {
	if c.Test > 127 {
		return fmt.Errorf("note %d: %w", c.Test, puppet.ErrNoteRange)
	}
	port, closePort, err := midi.OpenOutput(c.MIDI.Outputs, c.MIDI.Exclude)
	if err != nil {
		return err
	}
	defer closePort()

	out := puppet.NewOutput(c.MIDI.ReleaseVelocity, logger)
	out.SetDestination(port)
	fmt.Printf("\nSending note %d to %s...\n", c.Test, port.Name())
	if err := out.SetNote(uint8(c.Test), 1); err != nil {
		return err
	}
	time.Sleep(300 * time.Millisecond)
	return out.SetNote(uint8(c.Test), 0)
}

func (c *PortsCmd) watch(ins, outs []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rate := c.MIDI.PollRate
	if rate <= 0 {
		rate = time.Second
	}
	fmt.Printf("\nPolling every %s. Ctrl+C to exit.\n", rate)
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		nextIns, nextOuts, err := midi.ListPorts()
		if err != nil {
			fmt.Printf("[%s] %v\n", time.Now().Format("15:04:05"), err)
			continue
		}
		if slices.Equal(ins, nextIns) && slices.Equal(outs, nextOuts) {
			continue
		}
		fmt.Printf("\n[%s] Device change detected!\n", time.Now().Format("15:04:05"))
		fmt.Printf("  Inputs:  %s\n", strings.Join(nextIns, ", "))
		fmt.Printf("  Outputs: %s\n", strings.Join(nextOuts, ", "))
		ins, outs = nextIns, nextOuts
	}
}
