package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
	"github.com/eliteGoblin/drowsyguard/internal/session"
)

// Controller is the part of the session controller the console drives.
type Controller interface {
	Start() error
	Stop() error
	Snapshot() session.Snapshot
	Updates() <-chan domain.RenderRequest
}

// Config holds console configuration.
type Config struct {
	Prompt    string // Printed before each command line; empty disables it
	AutoStart bool   // Start a session as soon as Run begins
}

// DefaultConfig returns default console configuration.
func DefaultConfig() Config {
	return Config{Prompt: "drowsyguard> "}
}

// Console couples the command reader, the command executor and the render
// loop. Commands run on their own goroutine so a slow Stop never stalls
// rendering; rendering stays on the goroutine that called Run.
type Console struct {
	config     Config
	controller Controller
	renderer   domain.Renderer
	in         io.Reader
	out        io.Writer
	logger     *zap.Logger

	outMu sync.Mutex
}

// New creates a console.
func New(
	config Config,
	controller Controller,
	renderer domain.Renderer,
	in io.Reader,
	out io.Writer,
	logger *zap.Logger,
) *Console {
	return &Console{
		config:     config,
		controller: controller,
		renderer:   renderer,
		in:         in,
		out:        out,
		logger:     logger,
	}
}

// Run blocks until the exit command, end of input, closure of the render
// channel or cancellation of ctx. It does not stop the controller; the caller
// shuts it down.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmds := make(chan Command)
	stopReq := make(chan struct{}, 1)
	exit := make(chan struct{})

	if c.config.AutoStart {
		c.start()
	}

	go c.readCommands(ctx, cmds)
	go c.execute(ctx, cmds, stopReq, exit)

	updates := c.controller.Updates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-exit:
			return nil

		case req, ok := <-updates:
			if !ok {
				c.logger.Debug("render channel closed")
				return nil
			}
			c.render(req, stopReq)
		}
	}
}

func (c *Console) render(req domain.RenderRequest, stopReq chan<- struct{}) {
	err := c.renderer.Render(req)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrQuitRequested):
		select {
		case stopReq <- struct{}{}:
		default:
		}
	default:
		c.logger.Warn("render failed",
			zap.String("session_id", req.SessionID),
			zap.Uint64("frame", req.Frame.Seq),
			zap.Error(err))
	}
}

// readCommands closes cmds at end of input.
func (c *Console) readCommands(ctx context.Context, cmds chan<- Command) {
	defer close(cmds)

	scanner := bufio.NewScanner(c.in)
	c.prompt()
	for scanner.Scan() {
		cmd, err := ParseCommand(scanner.Text())
		if err != nil {
			c.printf("%v (try help)\n", err)
			c.prompt()
			continue
		}
		if cmd == "" {
			c.prompt()
			continue
		}
		select {
		case cmds <- cmd:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("command input failed", zap.Error(err))
	}
}

func (c *Console) execute(ctx context.Context, cmds <-chan Command, stopReq <-chan struct{}, exit chan<- struct{}) {
	defer close(exit)

	for {
		select {
		case <-ctx.Done():
			return

		case <-stopReq:
			c.stop()

		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			switch cmd {
			case CmdStart:
				c.start()
			case CmdStop:
				c.stop()
			case CmdStatus:
				c.printf("%s\n", FormatSnapshot(c.controller.Snapshot()))
			case CmdHelp:
				c.printf("%s\n", helpText)
			case CmdExit:
				return
			}
			c.prompt()
		}
	}
}

func (c *Console) start() {
	if err := c.controller.Start(); err != nil {
		c.printf("start failed: %v\n", err)
		return
	}
	c.printf("detection started (session %s)\n", c.controller.Snapshot().SessionID)
}

func (c *Console) stop() {
	if err := c.controller.Stop(); err != nil {
		c.printf("stop failed: %v\n", err)
		return
	}
	c.printf("detection stopped\n")
}

func (c *Console) prompt() {
	if c.config.Prompt != "" {
		c.printf("%s", c.config.Prompt)
	}
}

func (c *Console) printf(format string, args ...interface{}) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// FormatSnapshot renders a controller snapshot as one status line.
func FormatSnapshot(s session.Snapshot) string {
	if s.State == domain.SessionIdle {
		return fmt.Sprintf("state=%s", s.State)
	}
	return fmt.Sprintf("state=%s session=%s score=%d peak=%d alarm=%s border=%d next_intensity=%d alarm_ticks=%d",
		s.State, s.SessionID, s.Tracker.Score, s.Tracker.PeakScore,
		s.Tracker.Alarm.Level, s.Tracker.Alarm.Border, s.Tracker.Alarm.Intensity, s.Tracker.Alarm.AlarmTicks)
}
