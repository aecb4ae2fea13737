package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
	"github.com/eliteGoblin/drowsyguard/internal/metrics"
)

func newTestController(t *testing.T, source *mockVideoSource, classifier domain.FrameClassifier, sound *mockSound, store *mockStore) *Controller {
	t.Helper()
	config := DefaultControllerConfig()
	config.RenderBuffer = 64
	var sessions domain.SessionStore
	if store != nil {
		sessions = store
	}
	c := NewController(config, source, classifier, sound, sessions, mockSampler{}, metrics.New(), zap.NewNop())
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

func endless() *mockVideoSource {
	return &mockVideoSource{interval: time.Millisecond}
}

// drain consumes render requests so the worker never drops them.
func drain(c *Controller) {
	go func() {
		for range c.Updates() {
		}
	}()
}

func TestDefaultControllerConfig(t *testing.T) {
	config := DefaultControllerConfig()

	assert.Equal(t, 15, config.Alarm.Threshold)
	assert.Zero(t, config.ScoreCap)
	assert.Equal(t, 4, config.RenderBuffer)
}

func TestController_StopWhileIdle(t *testing.T) {
	source := endless()
	c := newTestController(t, source, &scriptedClassifier{}, &mockSound{}, nil)

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())

	assert.Equal(t, domain.SessionIdle, c.State())
	assert.Zero(t, source.opens.Load())
}

// TestController_StartWhileRunning is a regression test for overlapping
// workers: a second Start must be rejected without opening the device again.
func TestController_StartWhileRunning(t *testing.T) {
	source := endless()
	c := newTestController(t, source, &scriptedClassifier{}, &mockSound{}, nil)
	drain(c)

	require.NoError(t, c.Start())
	err := c.Start()

	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)
	assert.Equal(t, int32(1), source.opens.Load())
	assert.Equal(t, domain.SessionRunning, c.State())

	require.NoError(t, c.Stop())
	assert.Equal(t, domain.SessionIdle, c.State())
	assert.Equal(t, int32(1), source.releases.Load())
}

func TestController_ConcurrentStart(t *testing.T) {
	source := endless()
	c := newTestController(t, source, &scriptedClassifier{}, &mockSound{}, nil)
	drain(c)

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Start()
		}(i)
	}
	wg.Wait()

	var started int
	for _, err := range errs {
		if err == nil {
			started++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyRunning)
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, int32(1), source.opens.Load())

	require.NoError(t, c.Stop())
}

func TestController_DeviceUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		openErr error
	}{
		{name: "plain error is wrapped", openErr: errors.New("no camera at index 0")},
		{name: "sentinel passes through", openErr: domain.ErrDeviceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &mockVideoSource{openErr: tt.openErr}
			c := newTestController(t, source, &scriptedClassifier{}, &mockSound{}, nil)

			err := c.Start()

			assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
			assert.Equal(t, domain.SessionIdle, c.State())

			// Retry is allowed once the device comes back.
			source.openErr = nil
			drain(c)
			require.NoError(t, c.Start())
			require.NoError(t, c.Stop())
		})
	}
}

// TestController_StartStopCycles checks no capture handle leaks across sessions.
func TestController_StartStopCycles(t *testing.T) {
	source := endless()
	store := &mockStore{}
	c := newTestController(t, source, &scriptedClassifier{}, &mockSound{}, store)
	drain(c)

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Start())
		require.NoError(t, c.Stop())

		assert.Equal(t, domain.SessionIdle, c.State())
		assert.Equal(t, source.opens.Load(), source.releases.Load(), "cycle %d", i)
	}

	assert.Equal(t, int32(10), source.opens.Load())
	summaries := store.all()
	require.Len(t, summaries, 10)
	for _, s := range summaries {
		assert.Equal(t, domain.EndStopped, s.EndReason)
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, uint64(1024), s.Resources.RSSBytes)
	}
}

// TestController_ScriptedSession runs 16 closed frames then 4 open frames.
func TestController_ScriptedSession(t *testing.T) {
	script := make([]domain.FusedState, 0, 20)
	for i := 0; i < 16; i++ {
		script = append(script, domain.FusedBothClosed)
	}
	for i := 0; i < 4; i++ {
		script = append(script, domain.FusedNotBothClosed)
	}

	source := &mockVideoSource{frames: 20}
	sound := &mockSound{}
	store := &mockStore{}
	c := newTestController(t, source, &scriptedClassifier{script: script}, sound, store)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		return c.State() == domain.SessionIdle
	}, 2*time.Second, 5*time.Millisecond)

	var reqs []domain.RenderRequest
	for len(reqs) < 20 {
		reqs = append(reqs, <-c.Updates())
	}

	wantScores := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 15, 14, 13, 12}
	gotScores := make([]int, len(reqs))
	for i, r := range reqs {
		gotScores[i] = r.Score
	}
	assert.Equal(t, wantScores, gotScores)

	for i, r := range reqs {
		if i < 15 {
			assert.Equal(t, domain.AlarmQuiet, r.Alarm.Level, "frame %d", i+1)
			assert.Zero(t, r.Border)
		} else {
			assert.Equal(t, domain.AlarmAlerting, r.Alarm.Level, "frame %d", i+1)
		}
	}
	assert.Equal(t, 2, reqs[15].Border)
	assert.Equal(t, int32(1), sound.plays.Load())

	assert.Equal(t, int32(1), source.releases.Load())
	summaries := store.all()
	require.Len(t, summaries, 1)
	assert.Equal(t, domain.EndOfStream, summaries[0].EndReason)
	assert.Equal(t, uint64(20), summaries[0].Frames)
	assert.Equal(t, 16, summaries[0].PeakScore)
	assert.Equal(t, 1, summaries[0].AlarmTicks)
}

func TestController_FreshStatePerSession(t *testing.T) {
	closed := make([]domain.FusedState, 18)
	for i := range closed {
		closed[i] = domain.FusedBothClosed
	}
	source := &mockVideoSource{frames: 18}
	store := &mockStore{}
	c := newTestController(t, source, &scriptedClassifier{script: closed}, &mockSound{}, store)
	drain(c)

	for run := 0; run < 2; run++ {
		require.NoError(t, c.Start())
		require.Eventually(t, func() bool {
			return c.State() == domain.SessionIdle
		}, 2*time.Second, 5*time.Millisecond)
	}

	summaries := store.all()
	require.Len(t, summaries, 2)
	assert.NotEqual(t, summaries[0].ID, summaries[1].ID)
	for _, s := range summaries {
		assert.Equal(t, 18, s.PeakScore, "score must restart from zero")
		assert.Equal(t, 3, s.AlarmTicks, "alarm must restart quiet")
	}
}

func TestController_Snapshot(t *testing.T) {
	source := endless()
	c := newTestController(t, source, &scriptedClassifier{fallback: domain.FusedBothClosed}, &mockSound{}, nil)
	drain(c)

	assert.Equal(t, domain.SessionIdle, c.Snapshot().State)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		return c.Snapshot().Tracker.Score > 0
	}, 2*time.Second, 5*time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, domain.SessionRunning, snap.State)
	assert.NotEmpty(t, snap.SessionID)

	require.NoError(t, c.Stop())
	assert.Empty(t, c.Snapshot().SessionID)
}

func TestController_Shutdown(t *testing.T) {
	source := endless()
	c := newTestController(t, source, &scriptedClassifier{}, &mockSound{}, nil)
	drain(c)

	require.NoError(t, c.Start())
	require.NoError(t, c.Shutdown())

	assert.Equal(t, domain.SessionIdle, c.State())
	assert.Equal(t, int32(1), source.releases.Load())
	assert.ErrorIs(t, c.Start(), domain.ErrShutdown)
	require.NoError(t, c.Shutdown())

	_, ok := <-c.Updates()
	assert.False(t, ok, "updates channel must be closed")
}

func TestController_StoreFailureIsNotFatal(t *testing.T) {
	source := &mockVideoSource{frames: 3}
	store := &mockStore{err: errors.New("disk full")}
	c := newTestController(t, source, &scriptedClassifier{}, &mockSound{}, store)
	drain(c)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		return c.State() == domain.SessionIdle
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Start())
	require.NoError(t, c.Stop())
}

func TestController_EndOfStreamPassesThroughStopping(t *testing.T) {
	source := &mockVideoSource{frames: 20}
	script := make([]domain.FusedState, 20)
	for i := range script {
		script[i] = domain.FusedBothClosed
	}
	store := &mockStore{recording: make(chan struct{}, 1), hold: make(chan struct{})}
	c := newTestController(t, source, &scriptedClassifier{script: script}, &mockSound{}, store)
	drain(c)

	require.NoError(t, c.Start())
	<-store.recording

	assert.Equal(t, domain.SessionStopping, c.State())
	assert.ErrorIs(t, c.Start(), domain.ErrAlreadyRunning)
	assert.Equal(t, int64(20), c.metrics.Score.Load(), "score gauge holds until the session is idle")

	close(store.hold)
	require.Eventually(t, func() bool {
		return c.State() == domain.SessionIdle
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, c.metrics.Score.Load(), "score gauge is reset before the state reads idle")
	assert.Len(t, store.all(), 1)
}

func TestController_RestartKeepsNewScore(t *testing.T) {
	script := make([]domain.FusedState, 5)
	for i := range script {
		script[i] = domain.FusedBothClosed
	}
	source := &mockVideoSource{frames: 5}
	c := newTestController(t, source, &scriptedClassifier{script: script, fallback: domain.FusedBothClosed}, &mockSound{}, nil)
	drain(c)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		return c.State() == domain.SessionIdle
	}, 2*time.Second, time.Millisecond)

	source.frames = 0
	source.interval = time.Millisecond
	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		return c.metrics.Score.Load() >= 3
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, c.Stop())
	assert.Zero(t, c.metrics.Score.Load())
}
