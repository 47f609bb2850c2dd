package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// runNATSServer starts an embedded broker on a random port.
func runNATSServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func connectTest(t *testing.T, srv *server.Server) *nats.Conn {
	t.Helper()
	nc, err := ConnectNATS(srv.ClientURL(), "feedbackd-test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

// fakeLED creates a LED class device directory under root.
func fakeLED(t *testing.T, root, name, max string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "max_brightness"), []byte(max+"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brightness"), []byte("0\n"), 0644))
	return dir
}

