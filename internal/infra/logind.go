package infra

import (
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	login1Dest    = "org.freedesktop.login1"
	login1Path    = dbus.ObjectPath("/org/freedesktop/login1")
	login1Inhibit = "org.freedesktop.login1.Manager.Inhibit"

	// InhibitWho is the name logind shows for feedbackd's inhibitors.
	InhibitWho = "feedbackd"

	inhibitCallTimeout = 2 * time.Second
)

// LogindInhibitor takes "sleep" block inhibitors from systemd-logind over
// the system bus. The inhibitor lasts until the returned fd is closed.
type LogindInhibitor struct {
	connect func() (*dbus.Conn, error)
	logger  *zap.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewLogindInhibitor creates an inhibitor using the shared system bus
// connection. The bus is dialled on first use.
func NewLogindInhibitor(logger *zap.Logger) *LogindInhibitor {
	return &LogindInhibitor{connect: dbus.SystemBus, logger: logger}
}

// Inhibit blocks host sleep until the returned closer is closed.
func (i *LogindInhibitor) Inhibit(who, why string) (io.Closer, error) {
	conn, err := i.bus()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), inhibitCallTimeout)
	defer cancel()

	var fd dbus.UnixFD
	err = conn.Object(login1Dest, login1Path).
		CallWithContext(ctx, login1Inhibit, 0, "sleep", who, why, "block").
		Store(&fd)
	if err != nil {
		return nil, fmt.Errorf("logind inhibit: %w", err)
	}
	i.logger.Debug("sleep inhibitor taken", zap.String("why", why), zap.Int32("fd", int32(fd)))
	return inhibitorFD(fd), nil
}

func (i *LogindInhibitor) bus() (*dbus.Conn, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn != nil && i.conn.Connected() {
		return i.conn, nil
	}
	conn, err := i.connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	i.conn = conn
	return conn, nil
}

// inhibitorFD releases a logind inhibitor when closed.
type inhibitorFD dbus.UnixFD

func (fd inhibitorFD) Close() error {
	return syscall.Close(int(fd))
}

var _ SleepInhibitor = (*LogindInhibitor)(nil)
