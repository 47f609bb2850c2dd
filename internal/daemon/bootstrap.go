package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// DaemonCommand builds the command that runs the daemon in the foreground.
// An empty executable means the running binary.
func DaemonCommand(executable, configPath string) (*exec.Cmd, error) {
	if executable == "" {
		var err error
		executable, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable: %w", err)
		}
	}

	args := []string{"daemon"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return exec.Command(executable, args...), nil
}

// StartDaemon spawns the daemon as a detached process.
func StartDaemon(executable, configPath string) (int, error) {
	cmd, err := DaemonCommand(executable, configPath)
	if err != nil {
		return 0, err
	}

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := cmd.Process.Pid
	// The child outlives us; drop our handle on it.
	_ = cmd.Process.Release()
	return pid, nil
}
