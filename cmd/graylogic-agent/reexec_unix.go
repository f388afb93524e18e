//go:build unix

package main

import (
	"fmt"
	"os"
	"syscall"
)

// reexec replaces the process with a fresh copy of the agent binary,
// keeping the arguments and environment.
func reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil { //nolint:gosec // re-executing our own binary
		return fmt.Errorf("re-executing %s: %w", exe, err)
	}
	return nil
}
