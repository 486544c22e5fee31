package agent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Powerer turns the local machine off.
type Powerer interface {
	PowerOff(ctx context.Context) error
}

// CommandPowerer runs an operating system command to power off.
type CommandPowerer struct {
	Args []string
}

// DefaultShutdownCommand returns the power-off command for goos.
func DefaultShutdownCommand(goos string) []string {
	if goos == "windows" {
		return []string{"cmd", "/C", "shutdown -s -t 5"}
	}
	return []string{"sh", "-c", "shutdown -h now"}
}

// NewCommandPowerer uses args, or the platform default when args is empty.
func NewCommandPowerer(args []string) *CommandPowerer {
	if len(args) == 0 {
		args = DefaultShutdownCommand(runtime.GOOS)
	}
	return &CommandPowerer{Args: args}
}

// PowerOff runs the configured command and returns its output on failure.
func (p *CommandPowerer) PowerOff(ctx context.Context) error {
	if p == nil || len(p.Args) == 0 {
		return errors.New("no shutdown command configured")
	}
	out, err := exec.CommandContext(ctx, p.Args[0], p.Args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %q: %w: %s", strings.Join(p.Args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
