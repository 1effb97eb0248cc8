package cmd

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Install registers keywire with the system service manager.
type Install struct{}

func (i *Install) Run(logger *slog.Logger) error {
	return install(logger)
}

// Uninstall removes the keywire system service.
type Uninstall struct{}

func (u *Uninstall) Run(logger *slog.Logger) error {
	return uninstall(logger)
}

func currentExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}
