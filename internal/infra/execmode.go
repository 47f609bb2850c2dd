package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the daemon.
type ExecMode string

const (
	// ExecModeUser runs inside the user's session (no root required)
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root for all sessions
	ExecModeSystem ExecMode = "system"
)

// ExecModeConfig holds paths derived from the execution mode.
type ExecModeConfig struct {
	Mode       ExecMode
	BinaryPath string // Where the binary is expected to live
	DataDir    string // Encrypted store and key
	LogDir     string // Daemon log files
	ConfigPath string // YAML configuration file
	UnitPath   string // systemd service unit
	IsRoot     bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return &ExecModeConfig{
			Mode:       ExecModeSystem,
			BinaryPath: "/usr/local/bin/feedbackd",
			DataDir:    "/var/lib/feedbackd",
			LogDir:     "/var/log/feedbackd",
			ConfigPath: "/etc/feedbackd/config.yaml",
			UnitPath:   "/etc/systemd/system/feedbackd.service",
			IsRoot:     true,
		}
	}
	return userModeConfig(GetRealUserHome(), false)
}

// GetUserModeConfig returns user mode paths regardless of the current euid.
// Under sudo the invoking user's home is used.
func GetUserModeConfig() *ExecModeConfig {
	return userModeConfig(GetRealUserHome(), os.Geteuid() == 0)
}

func userModeConfig(home string, isRoot bool) *ExecModeConfig {
	dataDir := filepath.Join(home, ".feedbackd")
	return &ExecModeConfig{
		Mode:       ExecModeUser,
		BinaryPath: filepath.Join(home, ".local", "bin", "feedbackd"),
		DataDir:    dataDir,
		LogDir:     filepath.Join(dataDir, "logs"),
		ConfigPath: filepath.Join(home, ".config", "feedbackd", "config.yaml"),
		UnitPath:   filepath.Join(home, ".config", "systemd", "user", "feedbackd.service"),
		IsRoot:     isRoot,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (session)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
