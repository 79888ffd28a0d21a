// Package debug builds the program's slog.Logger.
//
// Console output goes through a charmbracelet/log handler. While the terminal
// UI owns the screen, logs must go to a file instead; DefaultFile names the
// usual one under the config directory.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	charmlog "github.com/charmbracelet/log"
)

// LevelTrace sits below Debug for per-event output (every key, every note).
const LevelTrace slog.Level = -8

// FileName is the log file written inside the config directory.
const FileName = "debug.log"

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultFile returns dir/debug.log, creating dir if needed.
func DefaultFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	return filepath.Join(dir, FileName), nil
}

// Setup builds a logger at level. With an empty file it writes to stderr;
// otherwise the file is truncated and becomes the only sink. The returned
// closers must be closed on exit.
func Setup(level, file string) (*slog.Logger, []io.Closer, error) {
	if file == "" {
		return slog.New(NewHandler(os.Stderr, level)), nil, nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(NewHandler(f, level))
	logger.Info("=== debug logging started ===", "level", strings.ToLower(level))
	return logger, []io.Closer{f}, nil
}

// NewHandler returns a charm log handler writing to w at the named level.
func NewHandler(w io.Writer, level string) slog.Handler {
	l := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(ParseLevel(level)),
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	styles := charmlog.DefaultStyles()
	styles.Levels[charmlog.Level(LevelTrace)] = lipgloss.NewStyle().
		SetString("TRAC").
		Foreground(lipgloss.Color("245"))
	l.SetStyles(styles)
	return l
}

// Every returns a function that logs only every n-th call, for high-rate
// events such as inbound MIDI. n <= 1 logs every call. Safe for concurrent use.
func Every(logger *slog.Logger, n int) func(level slog.Level, msg string, args ...any) {
	if n < 1 {
		n = 1
	}
	var count atomic.Int64
	return func(level slog.Level, msg string, args ...any) {
		c := count.Add(1)
		if c%int64(n) != 0 {
			return
		}
		logger.Log(context.Background(), level, msg, append(args, "every", n, "count", c)...)
	}
}
