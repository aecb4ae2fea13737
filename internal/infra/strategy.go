package infra

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// playTimeout bounds a single playback so a hung player cannot pin the slot.
const playTimeout = 30 * time.Second

// PlaybackStrategy plays a sound file through one audio backend.
type PlaybackStrategy interface {
	// Name returns the strategy name (e.g., "paplay", "afplay")
	Name() string

	// IsAvailable returns true if this strategy can be used on this system
	IsAvailable() bool

	// Play blocks until the file finished playing or ctx is done
	Play(ctx context.Context, path string) error
}

// CommandStrategy plays sound by running an external player binary.
type CommandStrategy struct {
	name    string
	binPath string
	args    []string
	goos    string
}

func newCommandStrategy(name, goos string, args ...string) *CommandStrategy {
	binPath, err := exec.LookPath(name)
	if err != nil {
		binPath = ""
	}
	return &CommandStrategy{name: name, binPath: binPath, args: args, goos: goos}
}

// NewPaplayStrategy plays through PulseAudio/PipeWire (Linux).
func NewPaplayStrategy() *CommandStrategy {
	return newCommandStrategy("paplay", "linux")
}

// NewAplayStrategy plays through ALSA (Linux).
func NewAplayStrategy() *CommandStrategy {
	return newCommandStrategy("aplay", "linux", "-q")
}

// NewAfplayStrategy plays through Core Audio (macOS).
func NewAfplayStrategy() *CommandStrategy {
	return newCommandStrategy("afplay", "darwin")
}

func (c *CommandStrategy) Name() string {
	return c.name
}

func (c *CommandStrategy) IsAvailable() bool {
	if runtime.GOOS != c.goos {
		return false
	}
	return c.binPath != ""
}

func (c *CommandStrategy) Play(ctx context.Context, path string) error {
	args := append(append([]string{}, c.args...), path)
	cmd := exec.CommandContext(ctx, c.binPath, args...)
	cmd.Stdin = nil
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", c.name, err, out)
	}
	return nil
}

// DefaultPlaybackStrategies returns the known players in preference order.
func DefaultPlaybackStrategies() []PlaybackStrategy {
	return []PlaybackStrategy{
		NewPaplayStrategy(),
		NewAplayStrategy(),
		NewAfplayStrategy(),
	}
}

// SoundPlayer implements domain.AlarmSound. At most one playback runs at a
// time; requests arriving while the sound is playing are dropped.
type SoundPlayer struct {
	path     string
	strategy PlaybackStrategy
	logger   *zap.Logger

	playing atomic.Bool
	wg      sync.WaitGroup
}

// NewSoundPlayer selects the first available strategy. With none available
// the player stays silent and logs each request at debug level.
func NewSoundPlayer(path string, strategies []PlaybackStrategy, logger *zap.Logger) *SoundPlayer {
	p := &SoundPlayer{path: path, logger: logger}
	for _, s := range strategies {
		if s.IsAvailable() {
			p.strategy = s
			break
		}
	}
	if p.strategy == nil {
		logger.Warn("no audio player available, alarm will be silent", zap.String("sound", path))
	}
	return p
}

// Strategy returns the selected strategy name, or empty if none.
func (p *SoundPlayer) Strategy() string {
	if p.strategy == nil {
		return ""
	}
	return p.strategy.Name()
}

// PlayAsync starts playback without blocking the caller.
func (p *SoundPlayer) PlayAsync() {
	if p.strategy == nil {
		p.logger.Debug("alarm sound skipped, no player")
		return
	}
	if !p.playing.CompareAndSwap(false, true) {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.playing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
		defer cancel()
		if err := p.strategy.Play(ctx, p.path); err != nil {
			p.logger.Warn("alarm sound failed",
				zap.String("player", p.strategy.Name()),
				zap.String("sound", p.path),
				zap.Error(err))
		}
	}()
}

// Wait blocks until any in-flight playback has finished.
func (p *SoundPlayer) Wait() {
	p.wg.Wait()
}

// Ensure implementations satisfy interfaces
var _ PlaybackStrategy = (*CommandStrategy)(nil)
var _ domain.AlarmSound = (*SoundPlayer)(nil)
