//go:build windows

package main

import (
	"log/slog"
	"os"

	"github.com/shinow/qrscan/internal/launch"
)

func init() {
	if !launch.FromDesktop() {
		return
	}
	slog.Info("started from the desktop, running the server")
	os.Args = launch.WithDefaultCommand(os.Args, launch.DefaultCommand)
}
