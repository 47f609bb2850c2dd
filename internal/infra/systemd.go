package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// ServiceName is the systemd unit name without suffix.
const ServiceName = "feedbackd"

// User unit template (runs inside the user's session)
const userUnitTemplate = `[Unit]
Description=feedbackd notification feedback daemon
After=graphical-session.target

[Service]
Type=simple
ExecStart={{.ExecutablePath}} daemon{{if .ConfigPath}} --config {{.ConfigPath}}{{end}}
Restart=on-failure
RestartSec=10

[Install]
WantedBy=default.target
`

// System unit template (runs as root)
const systemUnitTemplate = `[Unit]
Description=feedbackd notification feedback daemon
After=network.target

[Service]
Type=simple
ExecStart={{.ExecutablePath}} daemon{{if .ConfigPath}} --config {{.ConfigPath}}{{end}}
Restart=always
RestartSec=10

[Install]
WantedBy=multi-user.target
`

type unitConfig struct {
	ExecutablePath string
	ConfigPath     string
}

// SystemdManagerImpl implements domain.ServiceManager for both modes.
type SystemdManagerImpl struct {
	mode     ExecMode
	unitPath string

	// systemctl runs one systemctl invocation; replaced in tests.
	systemctl func(args ...string) error
}

// NewSystemdManager creates a systemd manager based on execution mode.
func NewSystemdManager(config *ExecModeConfig) *SystemdManagerImpl {
	m := &SystemdManagerImpl{
		mode:     config.Mode,
		unitPath: config.UnitPath,
	}
	m.systemctl = m.runSystemctl
	return m
}

// generateUnitContent creates unit content for the given paths.
func (m *SystemdManagerImpl) generateUnitContent(execPath, configPath string) ([]byte, error) {
	tmplStr := userUnitTemplate
	if m.mode == ExecModeSystem {
		tmplStr = systemUnitTemplate
	}

	tmpl, err := template.New("unit").Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, unitConfig{ExecutablePath: execPath, ConfigPath: configPath}); err != nil {
		return nil, fmt.Errorf("failed to execute unit template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the unit, then enables and starts it.
func (m *SystemdManagerImpl) Install(execPath, configPath string) error {
	if err := m.write(execPath, configPath); err != nil {
		return err
	}
	if err := m.systemctl("daemon-reload"); err != nil {
		return err
	}
	return m.systemctl("enable", "--now", ServiceName+".service")
}

// Uninstall stops and disables the unit and removes its file.
func (m *SystemdManagerImpl) Uninstall() error {
	// Ignore errors if the unit is not loaded
	_ = m.systemctl("disable", "--now", ServiceName+".service")

	if err := os.Remove(m.unitPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return m.systemctl("daemon-reload")
}

// IsInstalled checks if the unit file exists.
func (m *SystemdManagerImpl) IsInstalled() bool {
	_, err := os.Stat(m.unitPath)
	return err == nil
}

// NeedsUpdate checks if the unit exists but has different content than expected.
func (m *SystemdManagerImpl) NeedsUpdate(execPath, configPath string) bool {
	if !m.IsInstalled() {
		return false // Doesn't exist, needs install not update
	}

	current, err := os.ReadFile(m.unitPath)
	if err != nil {
		return true
	}
	expected, err := m.generateUnitContent(execPath, configPath)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

// Update rewrites the unit and restarts the service.
func (m *SystemdManagerImpl) Update(execPath, configPath string) error {
	if err := m.write(execPath, configPath); err != nil {
		return err
	}
	if err := m.systemctl("daemon-reload"); err != nil {
		return err
	}
	return m.systemctl("restart", ServiceName+".service")
}

// GetUnitPath returns the unit file path.
func (m *SystemdManagerImpl) GetUnitPath() string {
	return m.unitPath
}

// GetMode returns the current execution mode.
func (m *SystemdManagerImpl) GetMode() ExecMode {
	return m.mode
}

func (m *SystemdManagerImpl) write(execPath, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(m.unitPath), 0755); err != nil {
		return err
	}
	content, err := m.generateUnitContent(execPath, configPath)
	if err != nil {
		return fmt.Errorf("failed to generate unit content: %w", err)
	}
	return os.WriteFile(m.unitPath, content, 0644)
}

func (m *SystemdManagerImpl) runSystemctl(args ...string) error {
	if m.mode == ExecModeUser {
		args = append([]string{"--user"}, args...)
	}
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %v: %w: %s", args, err, bytes.TrimSpace(out))
	}
	return nil
}

// Ensure SystemdManagerImpl implements domain.ServiceManager.
var _ domain.ServiceManager = (*SystemdManagerImpl)(nil)
