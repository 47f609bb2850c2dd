package infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// MaxLayerEnvVar carries the layer cap to the capture command.
const MaxLayerEnvVar = "FEEDBACKD_MAX_LAYER"

// DefaultCaptureCommand captures all outputs as PNG on stdout (Wayland).
var DefaultCaptureCommand = []string{"grim", "-"}

// ErrNoCaptureCommand is returned when the capturer has nothing to run.
var ErrNoCaptureCommand = errors.New("no capture command configured")

// CommandCapturer implements domain.FrameCapturer by running an external
// screenshot tool that writes a PNG to stdout.
type CommandCapturer struct {
	argv   []string
	logger *zap.Logger
}

// NewCommandCapturer creates a capturer running argv (DefaultCaptureCommand
// when empty).
func NewCommandCapturer(argv []string, logger *zap.Logger) *CommandCapturer {
	if len(argv) == 0 {
		argv = DefaultCaptureCommand
	}
	return &CommandCapturer{argv: argv, logger: logger}
}

// Capture runs the command and decodes its output. The layer cap is passed
// in the environment for tools that can honour it.
func (c *CommandCapturer) Capture(ctx context.Context, maxLayer int) (image.Image, error) {
	if len(c.argv) == 0 || c.argv[0] == "" {
		return nil, ErrNoCaptureCommand
	}

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Env = append(os.Environ(), MaxLayerEnvVar+"="+strconv.Itoa(maxLayer))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w (stderr: %s)", c.argv[0], err, stderr.String())
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s output: %w", c.argv[0], err)
	}

	b := img.Bounds()
	c.logger.Debug("frame captured",
		zap.String("command", c.argv[0]),
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()))
	return img, nil
}

var _ domain.FrameCapturer = (*CommandCapturer)(nil)
