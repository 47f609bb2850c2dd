//go:build integration

package integration

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/daemon"
	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
	"github.com/eliteGoblin/focusd/feedbackd/internal/infra"
	"github.com/eliteGoblin/focusd/feedbackd/internal/policy"
	"github.com/eliteGoblin/focusd/feedbackd/test/fixtures"
)

// writeScreenshot stores a noisy frame so the encoded payload spans chunks.
func writeScreenshot(path string, w, h int) {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	seed := uint32(1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			seed = seed*1664525 + 1013904223
			img.Set(x, y, color.NRGBA{R: uint8(seed >> 24), G: uint8(seed >> 16), B: uint8(seed >> 8), A: 0xff})
		}
	}
	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()
	Expect(png.Encode(f, img)).To(Succeed())
}

var _ = Describe("Capture stream", func() {
	var (
		tmpDir    string
		store     *infra.EncryptedStore
		companion *fixtures.FakeCompanion
		power     *infra.WakeLockManager
		service   *daemon.CaptureService
		cancel    context.CancelFunc
		done      chan error
	)

	screenOff := domain.DisplayPowerEvent{ScreenOff: true}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "feedbackd-integration-*")
		Expect(err).NotTo(HaveOccurred())

		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewEncryptedStore(tmpDir, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.PutString(policy.KeyLockscreenBackground, policy.LockscreenBgLastScreen)).To(Succeed())

		companion, err = fixtures.NewFakeCompanion()
		Expect(err).NotTo(HaveOccurred())

		shot := filepath.Join(tmpDir, "screen.png")
		writeScreenshot(shot, 720, 1280)

		logger := zap.NewNop()
		power = infra.NewWakeLockManager(false, nil, logger)
		service = daemon.NewCaptureService(
			infra.NewCommandCapturer([]string{"cat", shot}, logger),
			infra.NewWebSocketConnector(companion.Addr(), logger),
			power,
			store,
			time.Second,
			logger,
		)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- service.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive(BeNil()))
		companion.Close()
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Context("when the companion acknowledges every message", func() {
		It("should stream the scaled frame as PNG and end the session", func() {
			Expect(service.TryRequest(screenOff)).To(Succeed())

			Eventually(companion.Streams, 10*time.Second).Should(
				ContainElement(HaveField("Finished", BeTrue())))
			Eventually(service.Busy).Should(BeFalse())

			stream := companion.Streams()[0]
			Expect(stream.Component).To(Equal(daemon.CompanionComponent))
			Expect(stream.Messages[0]).To(Equal(domain.MsgBegin))
			Expect(stream.Messages[len(stream.Messages)-1]).To(Equal(domain.MsgFinish))

			chunks := 0
			for _, k := range stream.Messages {
				if k == domain.MsgWriteChunk {
					chunks++
				}
			}
			Expect(chunks).To(Equal((len(stream.Payload) + daemon.ChunkSize - 1) / daemon.ChunkSize))

			img, err := png.Decode(bytes.NewReader(stream.Payload))
			Expect(err).NotTo(HaveOccurred())
			w, h := daemon.ScaleDimensions(720, 1280)
			Expect(img.Bounds().Dx()).To(Equal(w))
			Expect(img.Bounds().Dy()).To(Equal(h))

			session := service.LastSession()
			Expect(session).NotTo(BeNil())
			Expect(session.State()).To(Equal(domain.SessionUnbound))
			Expect(session.History()).To(ContainElements(
				domain.SessionBinding, domain.SessionBound, domain.SessionStreaming, domain.SessionClosing))
			Expect(power.Held()).To(BeEmpty())
		})
	})

	Context("when the companion reports an error mid-stream", func() {
		It("should close the session and release the wake lock", func() {
			companion.FailOnChunk(1)
			Expect(service.TryRequest(screenOff)).To(Succeed())

			Eventually(func() bool {
				s := service.LastSession()
				return s != nil && !service.Busy() && s.State() == domain.SessionUnbound
			}, 10*time.Second).Should(BeTrue())

			Expect(companion.Streams()).To(HaveLen(1))
			Expect(companion.Streams()[0].Finished).To(BeFalse())
			_, chunks := service.LastSession().Progress()
			Expect(chunks).To(Equal(1))
			Expect(power.Held()).To(BeEmpty())

			By("accepting the next request once the session ended")
			companion.FailOnChunk(0)
			Expect(service.TryRequest(screenOff)).To(Succeed())
			Eventually(companion.Streams, 10*time.Second).Should(
				ContainElement(HaveField("Finished", BeTrue())))
		})
	})

	Context("when the companion stops replying", func() {
		It("should give up after the round trip timeout", func() {
			companion.Silence()
			Expect(service.TryRequest(screenOff)).To(Succeed())

			Eventually(companion.Streams).Should(HaveLen(1))
			Eventually(service.Busy, 5*time.Second).Should(BeFalse())
			Expect(companion.Streams()[0].Messages).To(Equal([]domain.MessageKind{domain.MsgBegin}))
			Expect(power.Held()).To(BeEmpty())
		})
	})

	Context("when the last screen background is disabled", func() {
		It("should not start a session", func() {
			Expect(store.PutString(policy.KeyLockscreenBackground, policy.LockscreenBgDefault)).To(Succeed())

			Expect(service.TryRequest(screenOff)).To(MatchError(daemon.ErrCaptureDisabled))
			Consistently(companion.Streams, 300*time.Millisecond).Should(BeEmpty())
		})
	})
})
