// Package main is the CLI entry point for feedbackd.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/feedbackd/internal/config"
	"github.com/eliteGoblin/focusd/feedbackd/internal/daemon"
	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
	"github.com/eliteGoblin/focusd/feedbackd/internal/infra"
	"github.com/eliteGoblin/focusd/feedbackd/internal/policy"
	"github.com/eliteGoblin/focusd/feedbackd/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "feedbackd",
	Short: "Notification feedback policy daemon",
	Long: `feedbackd decides how notifications light up, sound and vibrate.
It applies per-app LED profiles and quiet hours, blinks the button
backlight while notifications are pending, and streams the last screen
to the lock-screen companion when the display turns off.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Shows whether the daemon is running, its last heartbeat, and the current quiet hours state.`,
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install feedbackd as a systemd service",
	Long: `Writes a systemd unit for this binary and enables it. Run as root for a
system service, otherwise a user service is installed.`,
	RunE: runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the systemd service",
	RunE:  runUninstall,
}

// daemonCmd runs the daemon in the foreground; start self-execs into it.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the daemon in the foreground",
	RunE:  runDaemon,
}

var (
	configPath string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default depends on execution mode)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(quietCmd)
	rootCmd.AddCommand(prefCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(decideCmd)
}

// openStore opens the encrypted store shared by the daemon and the CLI.
func openStore(cfg *config.Config) (*infra.EncryptedStore, error) {
	key, err := infra.ResolveKey(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load store key: %w", err)
	}
	return infra.NewEncryptedStore(cfg.DataDir, key)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	procs := infra.NewProcessTable()
	if entry, _ := store.GetAll(); entry != nil && procs.Alive(entry.PID) {
		fmt.Printf("feedbackd is already running (PID %d)\n", entry.PID)
		return nil
	}

	pid, err := daemon.StartDaemon("", configPath)
	if err != nil {
		return err
	}

	// Wait a moment for the daemon to register
	time.Sleep(500 * time.Millisecond)

	fmt.Println("\n=== feedbackd Started ===")
	fmt.Printf("PID: %d\n", pid)
	fmt.Printf("Data: %s\n", cfg.DataDir)
	fmt.Printf("Logs: %s\n", cfg.LogDir)
	fmt.Println("=========================")
	return nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	execPath, _ = filepath.EvalSymlinks(execPath)

	mode := infra.DetectExecMode()
	svc := infra.NewSystemdManager(mode)

	switch {
	case svc.NeedsUpdate(execPath, configPath):
		err = svc.Update(execPath, configPath)
	case svc.IsInstalled():
		fmt.Println("Service already installed and up to date.")
		return nil
	default:
		err = svc.Install(execPath, configPath)
	}
	if err != nil {
		return err
	}

	fmt.Println("\n=== feedbackd Installed ===")
	fmt.Printf("Mode: %s\n", mode.Mode)
	fmt.Printf("Unit: %s\n", svc.GetUnitPath())
	fmt.Printf("Binary: %s\n", execPath)
	fmt.Println("===========================")
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	svc := infra.NewSystemdManager(infra.DetectExecMode())
	if !svc.IsInstalled() {
		fmt.Println("Service is not installed.")
		return nil
	}
	if err := svc.Uninstall(); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", svc.GetUnitPath())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	procs := infra.NewProcessTable()

	fmt.Println("\n=== feedbackd Status ===")

	entry, err := store.GetAll()
	switch {
	case err != nil || entry == nil:
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'feedbackd start' to start the daemon.")
	case procs.Alive(entry.PID):
		fmt.Printf("Status: RUNNING (PID %d, version %s)\n", entry.PID, entry.AppVersion)
		if info, err := procs.Describe(entry.PID); err == nil && !info.StartedAt.IsZero() {
			fmt.Printf("Uptime: %s\n", time.Since(info.StartedAt).Round(time.Second))
		}
	default:
		fmt.Printf("Status: STOPPED (last PID %d is gone)\n", entry.PID)
	}

	if entry != nil {
		fmt.Printf("Execution mode: %s\n", entry.Mode)
		if entry.LastHeartbeat > 0 {
			lastBeat := time.Unix(entry.LastHeartbeat, 0)
			fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
		}
	}

	if found, err := procs.FindByExecutable("feedbackd"); err == nil {
		for _, p := range found {
			fmt.Printf("feedbackd process: PID %d (%s)\n", p.PID, p.Cmdline)
		}
	}

	if svc := infra.NewSystemdManager(infra.DetectExecMode()); svc.IsInstalled() {
		fmt.Printf("Service: installed (%s)\n", svc.GetUnitPath())
	} else {
		fmt.Println("Service: not installed")
	}

	qh := policy.LoadQuietHours(policy.NewPrefs(store))
	fmt.Printf("\nQuiet hours: %s\n", describeQuietHours(qh, time.Now()))
	fmt.Printf("Store: %s\n", store.Path())
	fmt.Println("========================")
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return err
	}
	defer store.Close()

	nc, err := infra.ConnectNATS(cfg.NATS.URL, "feedbackd-daemon", logger)
	if err != nil {
		logger.Error("failed to connect to event broker", zap.Error(err))
		return err
	}
	defer nc.Close()

	d := domain.Daemon{
		PID:        os.Getpid(),
		Role:       domain.RoleDaemon,
		Name:       filepath.Base(os.Args[0]),
		StartedAt:  time.Now(),
		AppVersion: Version,
	}

	profiles := policy.NewRegistry(store, infra.NewNATSBroadcaster(nc), logger)
	decider := usecase.NewDecider(profiles, store, logger)

	var inhibitor infra.SleepInhibitor
	if cfg.Power.InhibitSleep {
		inhibitor = infra.NewLogindInhibitor(logger)
	}
	power := infra.NewWakeLockManager(true, inhibitor, logger)
	scheduler := daemon.NewScheduler(logger)
	driver := infra.NewSysfsLightDriver(cfg.LEDs.Root, cfg.LEDs.Devices(), logger)
	backlight := daemon.NewBacklightController(driver, power, scheduler, logger)

	capture := daemon.NewCaptureService(
		infra.NewCommandCapturer(cfg.Capture.Command, logger),
		infra.NewWebSocketConnector(cfg.Companion.Addr, logger),
		power,
		store,
		cfg.Companion.RoundTripTimeout,
		logger,
	)

	dispatcher := daemon.NewDispatcher(decider, backlight, capture, store, logger)
	dispatcher.TrackScreen(power)

	svc := daemon.NewService(
		daemon.ServiceConfig{HeartbeatInterval: cfg.HeartbeatInterval},
		infra.NewNATSEventSource(nc, logger),
		dispatcher,
		capture,
		backlight,
		scheduler,
		store,
		d,
		logger,
	)

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = svc.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("received shutdown signal")
		return nil
	}
	return err
}

// connectCLI dials the broker for one-shot commands. A missing broker is
// not fatal: changes still land in the store, only the broadcast is lost.
func connectCLI(cfg *config.Config) *nats.Conn {
	nc, err := infra.ConnectNATS(cfg.NATS.URL, "feedbackd-cli", zap.NewNop(), nats.Timeout(time.Second))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (daemon will not be notified)\n", err)
		return nil
	}
	return nc
}

func createLogger(cfg *config.Config) *zap.Logger {
	zc := zap.NewProductionConfig()
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zc.Level = level
	}
	if cfg.LogDir != "" && os.MkdirAll(cfg.LogDir, 0700) == nil {
		zc.OutputPaths = []string{filepath.Join(cfg.LogDir, "feedbackd.log")}
		zc.ErrorOutputPaths = []string{filepath.Join(cfg.LogDir, "feedbackd.error.log")}
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("feedbackd %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
