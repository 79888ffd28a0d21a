package main

import (
	"errors"
	"fmt"
	"os"

	"pasqually/config"
)

// ConfigCmd groups config-related subcommands.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Generate a configuration template"`
}

// ConfigInitCmd scaffolds a configuration file from the flag defaults.
type ConfigInitCmd struct {
	Format string `help:"Output format" enum:"json,yaml,toml" default:"json"`
	Output string `help:"Destination file path (defaults to the config directory)" type:"path"`
	Force  bool   `help:"Overwrite if the file already exists"`
}

// logSettings carries the root-level log flags into the template.
type logSettings struct {
	Log config.Log `embed:"" prefix:"log."`
}

// Run writes the template and prints where it went.
func (c *ConfigInitCmd) Run() error {
	dest, err := c.write()
	if err != nil {
		return err
	}
	fmt.Println("wrote", dest)
	return nil
}

func (c *ConfigInitCmd) write() (string, error) {
	dest := c.Output
	if dest == "" {
		p, err := config.Path(c.Format)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		dest = p
	}

	if !c.Force {
		if _, err := os.Stat(dest); err == nil {
			return "", errors.New("destination exists; use --force to overwrite")
		}
	}

	data, err := config.Template(c.Format, logSettings{}, ConsoleCmd{})
	if err != nil {
		return "", err
	}
	if err := config.EnsureDir(dest); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	return dest, nil
}
