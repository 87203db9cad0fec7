// Package deps probes the external binaries episodegen shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Status reports whether an external tool can be used.
type Status struct {
	Name      string
	Command   string // resolved path when Available
	Available bool
	Detail    string
}

// Lookup resolves command on PATH, or as a path, and reports it under name.
func Lookup(name, command string) Status {
	status := Status{Name: name, Command: strings.TrimSpace(command)}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}
