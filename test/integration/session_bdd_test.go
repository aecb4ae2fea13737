//go:build integration

package integration

import (
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
	"github.com/eliteGoblin/drowsyguard/internal/infra"
	"github.com/eliteGoblin/drowsyguard/internal/metrics"
	"github.com/eliteGoblin/drowsyguard/internal/session"
	"github.com/eliteGoblin/drowsyguard/internal/usecase"
	"github.com/eliteGoblin/drowsyguard/test/fixtures"
)

var _ = Describe("Detection session", func() {
	var (
		camera     *fixtures.SyntheticCamera
		sound      *fixtures.CountingSound
		store      *infra.HistoryStore
		m          *metrics.Metrics
		controller *session.Controller
	)

	newController := func() *session.Controller {
		classifier := usecase.NewFrameClassifier(
			usecase.DefaultClassifierConfig(),
			fixtures.LevelDetector{},
			fixtures.LevelDetector{},
			fixtures.LevelDetector{},
			fixtures.BrightnessClassifier{},
			zap.NewNop(),
		)
		config := session.DefaultControllerConfig()
		config.RenderBuffer = 128
		return session.NewController(config, camera, classifier, sound, store,
			infra.NewProcessSampler(), m, zap.NewNop())
	}

	BeforeEach(func() {
		dataDir := GinkgoT().TempDir()
		var err error
		store, err = infra.OpenHistory(dataDir, infra.NewDataDirKeys(dataDir))
		Expect(err).NotTo(HaveOccurred())

		sound = &fixtures.CountingSound{}
		m = metrics.New()
	})

	AfterEach(func() {
		if controller != nil {
			Expect(controller.Shutdown()).To(Succeed())
		}
		Expect(store.Close()).To(Succeed())
	})

	Describe("a stream that ends", func() {
		Context("with twenty closed-eye frames", func() {
			BeforeEach(func() {
				camera = &fixtures.SyntheticCamera{Script: fixtures.ClosedFor(20)}
				controller = newController()
			})

			It("should alarm on every frame above the threshold and record the session", func() {
				Expect(controller.Start()).To(Succeed())
				Eventually(controller.State).Should(Equal(domain.SessionIdle))

				Expect(sound.Plays.Load()).To(Equal(int32(5)))
				Expect(m.AlarmTicks.Load()).To(Equal(uint64(5)))
				Expect(m.BothClosed.Load()).To(Equal(uint64(20)))
				Expect(camera.Releases.Load()).To(Equal(camera.Opens.Load()))

				sessions, err := store.Recent(1)
				Expect(err).NotTo(HaveOccurred())
				Expect(sessions).To(HaveLen(1))
				Expect(sessions[0].EndReason).To(Equal(domain.EndOfStream))
				Expect(sessions[0].Frames).To(Equal(uint64(20)))
				Expect(sessions[0].PeakScore).To(Equal(20))
				Expect(sessions[0].AlarmTicks).To(Equal(5))
				Expect(sessions[0].Resources.RSSBytes).To(BeNumerically(">", 0))
			})

			It("should grow the alarm border in steps of two", func() {
				Expect(controller.Start()).To(Succeed())
				Eventually(controller.State).Should(Equal(domain.SessionIdle))

				var borders []int
				for len(controller.Updates()) > 0 {
					if req := <-controller.Updates(); req.Triggered {
						borders = append(borders, req.Border)
					}
				}
				Expect(borders).To(Equal([]int{2, 4, 6, 8, 10}))
			})
		})

		Context("with eyes that open again", func() {
			BeforeEach(func() {
				script := fixtures.ClosedFor(16)
				for i := 0; i < 4; i++ {
					script = append(script, domain.FusedNotBothClosed)
				}
				for i := 0; i < 3; i++ {
					script = append(script, domain.FusedUnknown)
				}
				camera = &fixtures.SyntheticCamera{Script: script}
				controller = newController()
			})

			It("should decay the score without the alarm firing again", func() {
				Expect(controller.Start()).To(Succeed())
				Eventually(controller.State).Should(Equal(domain.SessionIdle))

				Expect(sound.Plays.Load()).To(Equal(int32(1)))
				Expect(m.Unknown.Load()).To(Equal(uint64(3)))

				var scores []int
				for len(controller.Updates()) > 0 {
					scores = append(scores, (<-controller.Updates()).Score)
				}
				Expect(scores).To(HaveLen(23))
				Expect(scores[15:]).To(Equal([]int{16, 15, 14, 13, 12, 11, 10, 9}))
			})
		})
	})

	Describe("an endless stream", func() {
		BeforeEach(func() {
			camera = &fixtures.SyntheticCamera{
				Script:   []domain.FusedState{domain.FusedNotBothClosed},
				Endless:  true,
				Interval: time.Millisecond,
			}
			controller = newController()
		})

		It("should run until stopped and record a stopped session", func() {
			Expect(controller.Start()).To(Succeed())
			Expect(controller.State()).To(Equal(domain.SessionRunning))
			Eventually(m.FramesProcessed.Load).Should(BeNumerically(">", 3))

			Expect(controller.Stop()).To(Succeed())
			Expect(controller.State()).To(Equal(domain.SessionIdle))
			Expect(camera.Releases.Load()).To(Equal(int32(1)))

			sessions, err := store.Recent(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
			Expect(sessions[0].EndReason).To(Equal(domain.EndStopped))
		})

		It("should let exactly one of many concurrent starts win", func() {
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
				rejected  int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := controller.Start()
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						succeeded++
					case errors.Is(err, domain.ErrAlreadyRunning):
						rejected++
					}
				}()
			}
			wg.Wait()

			Expect(succeeded).To(Equal(1))
			Expect(rejected).To(Equal(7))
			Expect(camera.Opens.Load()).To(Equal(int32(1)))
		})

		It("should start a fresh session after each stop", func() {
			for i := 0; i < 3; i++ {
				Expect(controller.Start()).To(Succeed())
				Expect(controller.Stop()).To(Succeed())
			}

			sessions, err := store.Recent(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(3))
			Expect(camera.Opens.Load()).To(Equal(int32(3)))
			Expect(camera.Releases.Load()).To(Equal(int32(3)))
		})

		It("should refuse to start after shutdown", func() {
			Expect(controller.Start()).To(Succeed())
			Expect(controller.Shutdown()).To(Succeed())

			Expect(controller.State()).To(Equal(domain.SessionIdle))
			Expect(controller.Start()).To(MatchError(domain.ErrShutdown))

			// The render channel is closed, so draining it terminates.
			for range controller.Updates() {
			}
		})
	})

	Describe("an unavailable device", func() {
		BeforeEach(func() {
			camera = &fixtures.SyntheticCamera{OpenErr: errors.New("no such device")}
			controller = newController()
		})

		It("should stay idle and report the device error", func() {
			err := controller.Start()
			Expect(err).To(MatchError(domain.ErrDeviceUnavailable))
			Expect(controller.State()).To(Equal(domain.SessionIdle))

			sessions, err := store.Recent(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(BeEmpty())
		})
	})
})
