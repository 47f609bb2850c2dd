//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/daemon"
	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
	"github.com/eliteGoblin/focusd/feedbackd/internal/infra"
	"github.com/eliteGoblin/focusd/feedbackd/internal/policy"
	"github.com/eliteGoblin/focusd/feedbackd/internal/usecase"
	"github.com/eliteGoblin/focusd/feedbackd/test/fixtures"
)

var _ = Describe("Daemon event dispatch", func() {
	var (
		tmpDir    string
		ledDir    string
		broker    *server.Server
		store     *infra.EncryptedStore
		companion *fixtures.FakeCompanion
		cliConn   *nats.Conn
		client    *infra.NATSEventClient
		registry  *policy.Registry
		cancel    context.CancelFunc
		done      chan error
	)

	brightness := func() string {
		raw, err := os.ReadFile(filepath.Join(ledDir, "brightness"))
		Expect(err).NotTo(HaveOccurred())
		return strings.TrimSpace(string(raw))
	}

	request := func(ev domain.Event) infra.EventReply {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		reply, err := client.Request(ctx, ev)
		Expect(err).NotTo(HaveOccurred())
		return reply
	}

	chat := domain.NotificationEvent{Notification: domain.Notification{
		AppID:      "com.example.chat",
		TickerText: "New message",
		Light:      domain.LightRequest{Color: 0xff00ff00, LedOnMs: 500, LedOffMs: 2000},
	}}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "feedbackd-integration-*")
		Expect(err).NotTo(HaveOccurred())

		ledRoot := filepath.Join(tmpDir, "leds")
		ledDir = filepath.Join(ledRoot, "button-backlight")
		Expect(os.MkdirAll(ledDir, 0755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(ledDir, "max_brightness"), []byte("255\n"), 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(ledDir, "brightness"), []byte("0\n"), 0644)).To(Succeed())

		broker, err = server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoSigs: true})
		Expect(err).NotTo(HaveOccurred())
		go broker.Start()
		Expect(broker.ReadyForConnections(10 * time.Second)).To(BeTrue())

		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewEncryptedStore(tmpDir, key)
		Expect(err).NotTo(HaveOccurred())

		companion, err = fixtures.NewFakeCompanion()
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		daemonConn, err := infra.ConnectNATS(broker.ClientURL(), "feedbackd-daemon", logger)
		Expect(err).NotTo(HaveOccurred())

		power := infra.NewWakeLockManager(true, nil, logger)
		scheduler := daemon.NewScheduler(logger)
		backlight := daemon.NewBacklightController(
			infra.NewSysfsLightDriver(ledRoot, map[domain.LightChannel]string{domain.LightButtons: "button-backlight"}, logger),
			power, scheduler, logger)
		capture := daemon.NewCaptureService(
			infra.NewCommandCapturer([]string{"false"}, logger),
			infra.NewWebSocketConnector(companion.Addr(), logger),
			power, store, time.Second, logger)
		decider := usecase.NewDecider(
			policy.NewRegistry(store, infra.NewNATSBroadcaster(daemonConn), logger), store, logger)
		dispatcher := daemon.NewDispatcher(decider, backlight, capture, store, logger)
		dispatcher.TrackScreen(power)

		svc := daemon.NewService(
			daemon.ServiceConfig{HeartbeatInterval: 50 * time.Millisecond},
			infra.NewNATSEventSource(daemonConn, logger),
			dispatcher, capture, backlight, scheduler, store,
			domain.Daemon{PID: os.Getpid(), Role: domain.RoleDaemon, Name: "feedbackd", StartedAt: time.Now(), AppVersion: "test"},
			logger,
		)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
			daemonConn.Close()
		}()

		cliConn, err = infra.ConnectNATS(broker.ClientURL(), "feedbackd-cli", logger)
		Expect(err).NotTo(HaveOccurred())
		client = infra.NewNATSEventClient(cliConn)
		registry = policy.NewRegistry(store, infra.NewNATSBroadcaster(cliConn), logger)

		Eventually(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_, err := client.Request(ctx, domain.ScreenEvent{On: true})
			return err
		}, 5*time.Second, 20*time.Millisecond).Should(Succeed())
	})

	AfterEach(func() {
		cancel()
		Eventually(done, 5*time.Second).Should(Receive(MatchError(context.Canceled)))
		cliConn.Close()
		companion.Close()
		store.Close()
		broker.Shutdown()
		os.RemoveAll(tmpDir)
	})

	Describe("notification decisions", func() {
		Context("when no profile or quiet hours are configured", func() {
			It("should allow the notification with the app's own light", func() {
				reply := request(chat)
				Expect(reply.Decision).NotTo(BeNil())
				Expect(reply.Decision.Suppressed).To(BeFalse())
				Expect(reply.Decision.Plan).NotTo(BeNil())
			})
		})

		Context("when quiet hours are forced on", func() {
			BeforeEach(func() {
				Expect(store.PutString(policy.KeyQuietHoursEnabled, "true")).To(Succeed())
				Expect(store.PutString(policy.KeyQuietHoursMode, string(domain.QuietHoursOn))).To(Succeed())
			})

			It("should suppress sound and vibration", func() {
				reply := request(chat)
				Expect(reply.Decision.Suppressed).To(BeTrue())
				Expect(reply.Decision.MuteSound).To(BeTrue())
				Expect(reply.Decision.MuteVibration).To(BeTrue())
			})

			It("should stop suppressing once quiet hours are locked", func() {
				Expect(registry.SetLocked(context.Background(), true)).To(Succeed())

				reply := request(chat)
				Expect(reply.Decision.Suppressed).To(BeFalse())
			})

			It("should let a keyword exemption through", func() {
				p := domain.NewLedProfile(chat.Notification.AppID)
				p.Enabled = true
				p.QhIgnore = true
				p.QhIgnoreList = "urgent, new message"
				Expect(registry.Save(context.Background(), p)).To(Succeed())

				reply := request(chat)
				Expect(reply.Decision.Suppressed).To(BeFalse())
			})
		})

		Context("when the app's profile turns the LED off", func() {
			It("should report the LED as off", func() {
				p := domain.NewLedProfile(chat.Notification.AppID)
				p.Enabled = true
				p.LedMode = domain.LedModeOff
				Expect(registry.Save(context.Background(), p)).To(Succeed())

				reply := request(chat)
				Expect(reply.Decision.LedOff).To(BeTrue())
				Expect(reply.Decision.MuteLED).To(BeTrue())
			})
		})
	})

	Describe("button backlight", func() {
		It("should follow a preference change broadcast by the CLI", func() {
			Expect(store.PutString(policy.KeyButtonBacklightMode, string(domain.BacklightAlwaysOn))).To(Succeed())
			Expect(infra.NewNATSBroadcaster(cliConn).SettingsChanged(context.Background(), policy.KeyButtonBacklightMode)).To(Succeed())

			Eventually(brightness).Should(Equal("110"))

			By("rewriting host writes of black while the screen is on")
			reply := request(domain.LightSetEvent{Channel: domain.LightButtons, Color: 0})
			light, ok := reply.RewrittenLight()
			Expect(ok).To(BeTrue())
			Expect(light.Color).To(Equal(daemon.BacklightFullColor))

			By("going dark when the screen turns off")
			Expect(client.Publish(domain.ScreenEvent{On: false})).To(Succeed())
			Eventually(brightness).Should(Equal("0"))
		})

		It("should stay dark for a notification light until blinking is enabled", func() {
			Expect(client.Publish(domain.LightSetEvent{Channel: domain.LightNotifications, Color: 0xff00ff00})).To(Succeed())
			Consistently(brightness, 300*time.Millisecond).Should(Equal("0"))
		})

		It("should blink while a notification light is pending", func() {
			Expect(store.PutString(policy.KeyButtonBacklightNotif, "true")).To(Succeed())
			Expect(infra.NewNATSBroadcaster(cliConn).SettingsChanged(context.Background(), policy.KeyButtonBacklightNotif)).To(Succeed())
			Eventually(func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()
				_, err := client.Request(ctx, domain.ScreenEvent{On: true})
				return err
			}).Should(Succeed())

			Expect(client.Publish(domain.LightSetEvent{Channel: domain.LightNotifications, Color: 0xff00ff00})).To(Succeed())

			Eventually(brightness).Should(Equal("110"))

			Expect(client.Publish(domain.LightSetEvent{Channel: domain.LightNotifications, Color: 0})).To(Succeed())
			Eventually(brightness).Should(Equal("0"))
		})
	})

	Describe("daemon registry", func() {
		It("should register and keep the heartbeat fresh", func() {
			entry, err := store.GetAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(entry).NotTo(BeNil())
			Expect(entry.PID).To(Equal(os.Getpid()))

			Eventually(func() int64 {
				e, err := store.GetAll()
				if err != nil || e == nil {
					return 0
				}
				return e.LastHeartbeat
			}, 3*time.Second).Should(BeNumerically(">", 0))
		})
	})
})
