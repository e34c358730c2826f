// Package config declares the command-line interface.
package config

import (
	"github.com/shinow/qrscan/internal/cmd"
	"github.com/shinow/qrscan/internal/log"
)

// CLI is the root kong grammar. Values come from flags, then environment,
// then the first configuration file found.
type CLI struct {
	Config string     `help:"Configuration file (JSON, YAML or TOML)" env:"QRSCAN_CONFIG"`
	Log    log.Config `embed:"" prefix:"log."`

	Server     cmd.Server        `cmd:"" help:"Start the scanner server"`
	Ping       cmd.Ping          `cmd:"" help:"Check that a server is reachable"`
	Generate   cmd.Generate      `cmd:"" help:"Render text as a QR code"`
	Scan       cmd.Scan          `cmd:"" help:"Scan QR codes"`
	Session    cmd.Session       `cmd:"" help:"Show the scanner session state"`
	Permission cmd.Permission    `cmd:"" help:"Manage camera and photo library consent"`
	ConfigCmd  cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration helpers"`
}
