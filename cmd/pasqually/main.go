// Command pasqually is the puppeteer console for the Pasqually animatronic.
package main

import (
	"os"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	"pasqually/config"
	"pasqually/debug"
)

// CLI is the root command line.
type CLI struct {
	ConfigFile string     `name:"config" help:"Configuration file (json, yaml or toml)" type:"path" env:"PASQUALLY_CONFIG"`
	Log        config.Log `embed:"" prefix:"log."`

	Console ConsoleCmd `cmd:"" default:"1" help:"Run the puppeteer console (default)"`
	Ports   PortsCmd   `cmd:"" help:"List MIDI ports and which would be used"`
	Config  ConfigCmd  `cmd:"" help:"Configuration file helpers"`
}

func main() {
	jsonPaths, yamlPaths, tomlPaths := config.CandidatePaths(config.FindUserConfig(os.Args[1:]))

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("pasqually"),
		kong.Description("Puppeteer console for the Pasqually animatronic"),
		kong.UsageOnError(),
		// Flags and env override config values.
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, closers, err := debug.Setup(cli.Log.Level, logFile(ctx.Command(), cli.Log.File))
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}

	ctx.Bind(logger)
	err = ctx.Run()
	for _, c := range closers {
		_ = c.Close()
	}
	ctx.FatalIfErrorf(err)
}

// logFile keeps the console's logs off the screen it draws on.
func logFile(command, file string) string {
	if file != "" || command != "console" {
		return file
	}
	dir, err := config.Dir()
	if err != nil {
		return ""
	}
	path, err := debug.DefaultFile(dir)
	if err != nil {
		return ""
	}
	return path
}
