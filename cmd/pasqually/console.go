package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pasqually/config"
	"pasqually/keys"
	"pasqually/midi"
	"pasqually/puppet"
	"pasqually/remote"
	"pasqually/theme"
	"pasqually/tui"
)

// ConsoleCmd runs the terminal puppeteer console.
type ConsoleCmd struct {
	Server  config.Server `embed:"" prefix:"server."`
	MIDI    config.MIDI   `embed:"" prefix:"midi."`
	Puppet  config.Puppet `embed:"" prefix:"puppet."`
	Palette string        `help:"GIMP palette file for the console colours" type:"path" env:"PASQUALLY_PALETTE"`
}

// Validate is called by Kong after parsing.
func (c *ConsoleCmd) Validate() error {
	return c.MIDI.Validate()
}

// Run is called by Kong when the console command is executed.
func (c *ConsoleCmd) Run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	th, err := c.theme()
	if err != nil {
		return err
	}

	client := remote.New(c.Server.URL, remote.Options{ReconnectDelay: c.Server.ReconnectDelay}, logger)
	ctrl := puppet.New(client, puppet.Options{
		Debounce:        c.Puppet.Debounce,
		ReleaseVelocity: &c.MIDI.ReleaseVelocity,
		Logger:          logger,
	})
	devices := midi.NewDeviceManager(ctrl, midi.Options{
		Outputs:  c.MIDI.Outputs,
		Inputs:   c.MIDI.Inputs,
		Exclude:  c.MIDI.Exclude,
		PollRate: c.MIDI.PollRate,
	}, logger)

	model := tui.NewModel(ctrl, client, devices, tui.Options{
		HoldWindow: c.Puppet.HoldWindow,
		Theme:      th,
		Logger:     logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	cachePath := c.cachePath(logger)
	if cachePath != "" {
		loadCache(ctrl, cachePath, logger)
	}
	registerHandlers(client, ctrl, p.Send, cachePath, logger)

	go func() {
		_ = client.Run(ctx)
	}()
	go func() {
		if err := devices.Run(ctx); err != nil && !errors.Is(err, midi.ErrNoDriver) {
			logger.Error("MIDI device manager stopped", "error", err)
		}
	}()

	logger.Info("console started", "server", c.Server.URL, "outputs", c.MIDI.Outputs, "inputs", c.MIDI.Inputs)
	_, err = p.Run()
	stop()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func (c *ConsoleCmd) theme() (*theme.Theme, error) {
	if c.Palette == "" {
		return theme.New(nil), nil
	}
	palette, err := theme.LoadGPL(c.Palette)
	if err != nil {
		return nil, fmt.Errorf("load palette: %w", err)
	}
	return theme.New(palette), nil
}

func (c *ConsoleCmd) cachePath(logger *slog.Logger) string {
	if !c.Puppet.Cache {
		return ""
	}
	dir, err := config.Dir()
	if err != nil {
		logger.Warn("movement cache disabled", "error", err)
		return ""
	}
	return filepath.Join(dir, puppet.CacheFile)
}

func loadCache(ctrl *puppet.Controller, path string, logger *slog.Logger) {
	movements, saved, err := puppet.LoadMovementsFile(path)
	if err != nil {
		logger.Warn("ignoring movement cache", "error", err)
		return
	}
	if len(movements) == 0 {
		return
	}
	_ = ctrl.LoadMovements(movements)
	logger.Info("using cached movements until the server pushes", "saved", saved.Format(time.RFC3339))
}

type registrar interface {
	On(event string, h remote.Handler)
}

// registerHandlers routes server pushes. Movement and key events go straight
// to the controller; display-only data is handed to the UI through send. A
// non-empty cachePath receives every accepted movement list.
func registerHandlers(client registrar, ctrl *puppet.Controller, send func(tea.Msg), cachePath string, logger *slog.Logger) {
	client.On(remote.EventMovementInfo, func(data json.RawMessage) {
		movements, err := remote.DecodeMovements(data)
		if err != nil {
			logger.Warn("ignoring movement list", "error", err)
			return
		}
		_ = ctrl.LoadMovements(movements)
		if cachePath == "" {
			return
		}
		if err := puppet.SaveMovements(cachePath, movements); err != nil {
			logger.Warn("cannot cache movements", "error", err)
		}
	})

	client.On(remote.EventGamepadKey, func(data json.RawMessage) {
		key, val, err := remote.DecodeKeyEvent(data)
		if err != nil {
			logger.Warn("ignoring gamepad key", "error", err)
			return
		}
		ctrl.HandleRemoteKey(keys.Normalize(key), val)
	})

	client.On(remote.EventSystemInfo, func(data json.RawMessage) {
		info, err := remote.DecodeSystemInfo(data)
		if err != nil {
			logger.Debug("ignoring system info", "error", err)
			return
		}
		send(tui.SystemInfoMsg(info))
	})

	client.On(remote.EventShowList, func(data json.RawMessage) {
		shows, err := remote.DecodeShowList(data)
		if err != nil {
			logger.Warn("ignoring show list", "error", err)
			return
		}
		send(tui.ShowListMsg(shows))
	})
}
