// Package config defines the top-level CLI grammar parsed by kong.
package config

import (
	"github.com/alecthomas/kong"

	"github.com/keywire/keywire/internal/cmd"
)

// LogOptions are the global logging flags shared by every command.
type LogOptions struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" default:"info" env:"KEYWIRE_LOG_LEVEL"`
	File    string `help:"Log to this file in addition to the console" env:"KEYWIRE_LOG_FILE"`
	RawFile string `help:"Write raw USB-IP packet hex dumps to this file" env:"KEYWIRE_LOG_RAW_FILE"`
}

// CLI is the root command grammar.
type CLI struct {
	Log    LogOptions `embed:"" prefix:"log."`
	Config string     `help:"Path to a config file (JSON, YAML or TOML)" env:"KEYWIRE_CONFIG"`

	Server    cmd.Server        `cmd:"" default:"withargs" help:"Run the keywire USB-IP and API servers"`
	Proxy     cmd.Proxy         `cmd:"" help:"Run a protocol-logging USB-IP proxy"`
	ConfigCmd cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration file utilities"`
	Install   cmd.Install       `cmd:"" help:"Install keywire as a system service"`
	Uninstall cmd.Uninstall     `cmd:"" help:"Remove the keywire system service"`

	Version kong.VersionFlag `help:"Print version and exit"`
}
