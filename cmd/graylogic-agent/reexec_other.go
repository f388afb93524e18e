//go:build !unix

package main

import "errors"

// reexec is unsupported here; the service manager is expected to restart
// the agent after it exits.
func reexec() error {
	return errors.New("in-place restart is not supported on this platform, exiting")
}
