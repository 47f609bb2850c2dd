package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/config"
	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
	"github.com/eliteGoblin/focusd/feedbackd/internal/infra"
	"github.com/eliteGoblin/focusd/feedbackd/internal/policy"
	"github.com/eliteGoblin/focusd/feedbackd/internal/usecase"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage per-app LED profiles",
}

var profileGetCmd = &cobra.Command{
	Use:   "get <app>",
	Short: "Show the resolved profile for an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileGet,
}

var profileSetCmd = &cobra.Command{
	Use:   "set <app> <field:value>...",
	Short: "Update profile fields for an app",
	Long: `Updates profile fields for an app, starting from its resolved profile.
Fields use the persisted record form, for example:

  feedbackd profile set com.example.chat enabled:true color:#ff00ff00 ledMode:OVERRIDE`,
	Args: cobra.MinimumNArgs(2),
	RunE: runProfileSet,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List apps with a stored profile",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <app>",
	Short: "Delete an app's profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileDelete,
}

var quietCmd = &cobra.Command{
	Use:   "quiet",
	Short: "Show quiet hours state",
	Args:  cobra.NoArgs,
	RunE:  runQuiet,
}

var prefCmd = &cobra.Command{
	Use:   "pref <key> [value]",
	Short: "Read or write a preference",
	Long: `Reads a preference, or writes it and notifies the daemon.

Known keys include quiet_hours_enabled, quiet_hours_start (minutes since
midnight), quiet_hours_mode (ON, OFF, AUTO), button_backlight_mode
(ALWAYS_ON, DISABLE, DEFAULT) and lockscreen_background (default, last_screen).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPref,
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Make quiet hours inert",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return runSetLocked(true) },
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Re-enable quiet hours evaluation",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return runSetLocked(false) },
}

var decideCmd = &cobra.Command{
	Use:   "decide <app>",
	Short: "Evaluate a notification against the stored policy",
	Long: `Evaluates a synthetic notification and prints the decision.
With --remote the notification is sent to the running daemon instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecide,
}

var (
	decideTicker  string
	decideTexts   []string
	decideColor   string
	decidePresent bool
	decideAt      string
	decideRemote  bool
)

func init() {
	profileCmd.AddCommand(profileGetCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileDeleteCmd)

	decideCmd.Flags().StringVar(&decideTicker, "ticker", "", "Ticker text")
	decideCmd.Flags().StringSliceVar(&decideTexts, "text", nil, "Visible text fragment (repeatable)")
	decideCmd.Flags().StringVar(&decideColor, "color", "#ffffffff", "Light colour the app requests")
	decideCmd.Flags().BoolVar(&decidePresent, "present", false, "Treat the user as present")
	decideCmd.Flags().StringVar(&decideAt, "at", "", "Evaluate at this local time (HH:MM)")
	decideCmd.Flags().BoolVar(&decideRemote, "remote", false, "Ask the running daemon")
}

// policyEnv is the store plus registry used by one-shot commands.
type policyEnv struct {
	cfg      *config.Config
	store    *infra.EncryptedStore
	nc       *nats.Conn
	registry *policy.Registry
}

func openPolicyEnv() (*policyEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	env := &policyEnv{cfg: cfg, store: store, nc: connectCLI(cfg)}
	var broadcaster domain.Broadcaster
	if env.nc != nil {
		broadcaster = infra.NewNATSBroadcaster(env.nc)
	}
	env.registry = policy.NewRegistry(store, broadcaster, zap.NewNop())
	return env, nil
}

func (e *policyEnv) Close() {
	if e.nc != nil {
		e.nc.Close()
	}
	_ = e.store.Close()
}

func runProfileGet(cmd *cobra.Command, args []string) error {
	env, err := openPolicyEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	p, err := env.registry.Get(args[0])
	if err != nil {
		return err
	}
	stored, err := env.store.GetStringSet(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Profile %s ===\n", p.AppID)
	if stored == nil {
		fmt.Println("(no stored record, resolved from default)")
	}
	for _, r := range policy.EncodeProfile(p) {
		fmt.Println(r)
	}
	return nil
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	env, err := openPolicyEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	appID := args[0]
	current, err := env.registry.Get(appID)
	if err != nil {
		return err
	}

	records := append(policy.EncodeProfile(current), args[1:]...)
	p, errs := policy.DecodeProfile(appID, records)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("  invalid: %v\n", e)
		}
		return fmt.Errorf("%d invalid field(s), profile not saved", len(errs))
	}

	if err := env.registry.Save(context.Background(), p); err != nil {
		return err
	}
	fmt.Printf("Saved profile %s\n", appID)
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	env, err := openPolicyEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	apps, err := env.registry.List()
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		fmt.Println("No stored profiles.")
		return nil
	}
	for _, app := range apps {
		fmt.Println(app)
	}
	return nil
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	env, err := openPolicyEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.registry.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted profile %s\n", args[0])
	return nil
}

func runQuiet(cmd *cobra.Command, args []string) error {
	env, err := openPolicyEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	qh := policy.LoadQuietHours(policy.NewPrefs(env.store))

	fmt.Println("\n=== Quiet Hours ===")
	fmt.Printf("State: %s\n", describeQuietHours(qh, time.Now()))
	fmt.Printf("Mode: %s\n", qh.Mode)
	fmt.Printf("Weekdays: %s - %s\n", formatMinute(qh.Start), formatMinute(qh.End))
	fmt.Printf("Weekends: %s - %s\n", formatMinute(qh.WeekendStart), formatMinute(qh.WeekendEnd))
	fmt.Printf("Mute LED: %t, mute vibration: %t, icon: %t\n", qh.MuteLED, qh.MuteVibe, qh.ShowIcon)
	fmt.Println("===================")
	return nil
}

func runPref(cmd *cobra.Command, args []string) error {
	env, err := openPolicyEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	key := args[0]
	if len(args) == 1 {
		v, ok, err := env.store.GetString(key)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s is not set\n", key)
			return nil
		}
		fmt.Printf("%s=%s\n", key, v)
		return nil
	}

	if err := env.store.PutString(key, args[1]); err != nil {
		return err
	}
	if env.nc != nil {
		if err := infra.NewNATSBroadcaster(env.nc).SettingsChanged(context.Background(), key); err != nil {
			fmt.Printf("Warning: failed to notify daemon: %v\n", err)
		}
	}
	fmt.Printf("%s=%s\n", key, args[1])
	return nil
}

func runSetLocked(locked bool) error {
	env, err := openPolicyEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.registry.SetLocked(context.Background(), locked); err != nil {
		return err
	}
	if locked {
		fmt.Println("Quiet hours locked.")
	} else {
		fmt.Println("Quiet hours unlocked.")
	}
	return nil
}

func runDecide(cmd *cobra.Command, args []string) error {
	color, err := policy.ParseColor(decideColor)
	if err != nil {
		return fmt.Errorf("invalid --color: %w", err)
	}
	n := domain.Notification{
		AppID:      args[0],
		TickerText: decideTicker,
		Texts:      decideTexts,
		Light:      domain.LightRequest{Color: color},
	}

	now := time.Now()
	if decideAt != "" {
		t, err := time.ParseInLocation("15:04", decideAt, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		now = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.Local)
	}

	env, err := openPolicyEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if decideRemote {
		return decideRemotely(env, n)
	}

	decider := usecase.NewDecider(env.registry, env.store, zap.NewNop())
	dec := decider.DecideAt(context.Background(), n, decidePresent, now)
	fmt.Println(usecase.Explain(dec))
	if dec.Plan != nil {
		fmt.Printf("plan: original=%t color=#%08x on=%dms off=%dms heads_up=%s\n",
			dec.Plan.UseOriginal, dec.Plan.Color, dec.Plan.LedOnMs, dec.Plan.LedOffMs, dec.Plan.HeadsUp)
	}
	return nil
}

func decideRemotely(env *policyEnv, n domain.Notification) error {
	if env.nc == nil {
		return fmt.Errorf("event broker at %s is unreachable", env.cfg.NATS.URL)
	}
	ctx, cancel := context.WithTimeout(context.Background(), env.cfg.NATS.RequestTimeout)
	defer cancel()

	reply, err := infra.NewNATSEventClient(env.nc).Request(ctx, domain.NotificationEvent{
		Notification: n,
		UserPresent:  decidePresent,
	})
	if err != nil {
		return err
	}
	if reply.Decision == nil {
		return fmt.Errorf("daemon replied without a decision")
	}
	d := reply.Decision
	fmt.Printf("app=%s suppressed=%t led_off=%t reason=%q mute_sound=%t mute_led=%t mute_vibe=%t\n",
		d.AppID, d.Suppressed, d.LedOff, d.Reason, d.MuteSound, d.MuteLED, d.MuteVibration)
	return nil
}

func describeQuietHours(qh domain.QuietHoursPolicy, now time.Time) string {
	switch {
	case qh.Locked:
		return "locked"
	case !qh.Enabled:
		return "disabled"
	case policy.IsQuietNow(qh, now):
		return "ACTIVE"
	}
	return "inactive"
}

func formatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

