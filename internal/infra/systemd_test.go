package infra

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSystemdManager(t *testing.T, mode ExecMode) (*SystemdManagerImpl, *[][]string) {
	t.Helper()
	m := NewSystemdManager(&ExecModeConfig{
		Mode:     mode,
		UnitPath: filepath.Join(t.TempDir(), "systemd", "feedbackd.service"),
	})
	var calls [][]string
	m.systemctl = func(args ...string) error {
		calls = append(calls, args)
		return nil
	}
	return m, &calls
}

func TestSystemdManager_GenerateUnitContent(t *testing.T) {
	user, _ := newTestSystemdManager(t, ExecModeUser)
	content, err := user.generateUnitContent("/home/alice/.local/bin/feedbackd", "")
	require.NoError(t, err)
	assert.Contains(t, string(content), "ExecStart=/home/alice/.local/bin/feedbackd daemon\n")
	assert.Contains(t, string(content), "WantedBy=default.target")

	system, _ := newTestSystemdManager(t, ExecModeSystem)
	content, err = system.generateUnitContent("/usr/local/bin/feedbackd", "/etc/feedbackd/config.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(content), "ExecStart=/usr/local/bin/feedbackd daemon --config /etc/feedbackd/config.yaml\n")
	assert.Contains(t, string(content), "WantedBy=multi-user.target")
	assert.Contains(t, string(content), "Restart=always")
}

func TestSystemdManager_InstallAndUninstall(t *testing.T) {
	m, calls := newTestSystemdManager(t, ExecModeUser)

	assert.False(t, m.IsInstalled())
	require.NoError(t, m.Install("/usr/bin/feedbackd", ""))
	assert.True(t, m.IsInstalled())
	assert.Equal(t, [][]string{
		{"daemon-reload"},
		{"enable", "--now", "feedbackd.service"},
	}, *calls)

	*calls = nil
	require.NoError(t, m.Uninstall())
	assert.False(t, m.IsInstalled())
	assert.Equal(t, [][]string{
		{"disable", "--now", "feedbackd.service"},
		{"daemon-reload"},
	}, *calls)

	// Uninstalling twice is fine.
	assert.NoError(t, m.Uninstall())
}

func TestSystemdManager_NeedsUpdate(t *testing.T) {
	m, calls := newTestSystemdManager(t, ExecModeUser)

	assert.False(t, m.NeedsUpdate("/usr/bin/feedbackd", ""), "not installed needs install, not update")

	require.NoError(t, m.Install("/usr/bin/feedbackd", ""))
	assert.False(t, m.NeedsUpdate("/usr/bin/feedbackd", ""))
	assert.True(t, m.NeedsUpdate("/opt/feedbackd/feedbackd", ""))
	assert.True(t, m.NeedsUpdate("/usr/bin/feedbackd", "/etc/feedbackd/config.yaml"))

	*calls = nil
	require.NoError(t, m.Update("/opt/feedbackd/feedbackd", ""))
	assert.False(t, m.NeedsUpdate("/opt/feedbackd/feedbackd", ""))
	assert.Equal(t, []string{"restart", "feedbackd.service"}, (*calls)[len(*calls)-1])

	raw, err := os.ReadFile(m.GetUnitPath())
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "/opt/feedbackd/feedbackd daemon"))
}
