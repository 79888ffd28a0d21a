// Package config holds the settings shared by the pasqually commands and the
// paths their configuration files are looked up in.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Server selects the show-control server.
type Server struct {
	URL            string        `help:"Show-control server URL (Socket.IO endpoint at /socket.io/)" default:"http://pasqually.local" env:"PASQUALLY_SERVER_URL"`
	ReconnectDelay time.Duration `help:"Delay before redialling a dropped connection" default:"2s" env:"PASQUALLY_SERVER_RECONNECT_DELAY"`
}

// MIDI selects the ports notes are sent to and mirrored from.
type MIDI struct {
	Outputs         []string      `help:"Output port name patterns; the first matching port is used" default:"MIDI" env:"PASQUALLY_MIDI_OUTPUTS"`
	Inputs          []string      `help:"Input port name patterns mirrored into key presses" default:"MIDI" env:"PASQUALLY_MIDI_INPUTS"`
	Exclude         []string      `help:"Port name patterns never used" default:"Midi Through,RtMidi" env:"PASQUALLY_MIDI_EXCLUDE"`
	PollRate        time.Duration `help:"How often ports are rescanned for hot-plug" default:"1s" env:"PASQUALLY_MIDI_POLL_RATE"`
	ReleaseVelocity uint8         `help:"Velocity sent with note-off (0-127)" default:"64" env:"PASQUALLY_MIDI_RELEASE_VELOCITY"`
}

// Validate rejects settings that cannot be encoded as MIDI data bytes.
func (m MIDI) Validate() error {
	if m.ReleaseVelocity > 127 {
		return fmt.Errorf("midi.release-velocity %d out of range 0-127", m.ReleaseVelocity)
	}
	return nil
}

// Puppet tunes key handling.
type Puppet struct {
	Debounce   time.Duration `help:"Re-trigger window for one movement" default:"1ms" env:"PASQUALLY_PUPPET_DEBOUNCE"`
	HoldWindow time.Duration `help:"A key is released when no repeat arrives within this window" default:"150ms" env:"PASQUALLY_PUPPET_HOLD_WINDOW"`
	Cache      bool          `help:"Remember the last movement list between runs" default:"true" negatable:"" env:"PASQUALLY_PUPPET_CACHE"`
}

// Log configures logging.
type Log struct {
	Level string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"PASQUALLY_LOG_LEVEL"`
	File  string `help:"Log file; the console writes to debug.log in the config directory when unset" env:"PASQUALLY_LOG_FILE"`
}

const appName = "pasqually"

// Dir returns the platform config directory.
func Dir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if appdata := os.Getenv("AppData"); appdata != "" {
			return filepath.Join(appdata, appName), nil
		}
		return "", errors.New("AppData not set")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", appName), nil
	}
}

// Path returns the default config file for format ("json", "yaml", "toml").
func Path(format string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config."+Ext(format)), nil
}

// Ext maps a format name to its file extension. Unknown formats are json.
func Ext(format string) string {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	default:
		return "json"
	}
}

// EnsureDir creates the directory holding filePath.
func EnsureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o755)
}

// CandidatePaths lists config files per format in priority order. A user
// supplied path comes first and is routed by its extension.
func CandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".yaml", ".yml":
			yamlPaths = append(yamlPaths, userPath)
		case ".toml":
			tomlPaths = append(tomlPaths, userPath)
		default:
			jsonPaths = append(jsonPaths, userPath)
		}
	}

	add := func(base string) {
		jsonPaths = append(jsonPaths, base+".json")
		yamlPaths = append(yamlPaths, base+".yaml", base+".yml")
		tomlPaths = append(tomlPaths, base+".toml")
	}
	if wd, err := os.Getwd(); err == nil {
		add(filepath.Join(wd, appName))
	}
	if dir, err := Dir(); err == nil {
		add(filepath.Join(dir, "config"))
	}
	return jsonPaths, yamlPaths, tomlPaths
}

// FindUserConfig picks --config out of args before flags are parsed, falling
// back to PASQUALLY_CONFIG.
func FindUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("PASQUALLY_CONFIG")
}
