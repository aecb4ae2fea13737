// Package main is the CLI entry point for drowsyguard.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/drowsyguard/internal/config"
	"github.com/eliteGoblin/drowsyguard/internal/console"
	"github.com/eliteGoblin/drowsyguard/internal/domain"
	"github.com/eliteGoblin/drowsyguard/internal/infra"
	"github.com/eliteGoblin/drowsyguard/internal/metrics"
	"github.com/eliteGoblin/drowsyguard/internal/session"
	"github.com/eliteGoblin/drowsyguard/internal/usecase"
	"github.com/eliteGoblin/drowsyguard/internal/vision"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

// HighGUI windows must be driven from the main OS thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "drowsyguard",
	Short: "Driver drowsiness detection from a camera feed",
	Long: `drowsyguard watches a camera feed, classifies both eyes on every frame
and raises an audible and visual alarm when the eyes stay closed for too long.

Sessions are started and stopped from the interactive console.`,
	Version:      Version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the console and run detection sessions",
	Long: `Loads the detector and classifier models, opens the session history and
reads start/stop/status/exit commands from stdin. Frames are shown in a
window unless --headless is set.`,
	RunE: runRun,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and model assets",
	RunE:  runCheck,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent detection sessions",
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath   string
	jsonOutput   bool
	historyLimit int
	autoStart    bool
	noHistory    bool
	debug        bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a YAML config file")
	pf.String("device", "", "Camera index, video file or stream URL")
	pf.String("data-dir", "", "Directory for the session history")
	pf.String("log-file", "", "Write logs to this file instead of stderr")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&debug, "debug", false, "Human-readable development logging")

	runCmd.Flags().Bool("headless", false, "Do not open a display window")
	runCmd.Flags().Int("threshold", 0, "Score above which the alarm fires")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	runCmd.Flags().BoolVar(&autoStart, "autostart", false, "Start a session immediately")
	runCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record sessions")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of sessions to show (0 for all)")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output sessions as JSON")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig layers defaults, the config file and explicitly set flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Device, _ = flags.GetString("device")
	}
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-file") {
		cfg.LogFile, _ = flags.GetString("log-file")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("headless") {
		cfg.Headless, _ = flags.GetBool("headless")
	}
	if flags.Changed("threshold") {
		cfg.Threshold, _ = flags.GetInt("threshold")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func modelFiles(cfg config.Config) vision.ModelFiles {
	return vision.ModelFiles{
		FaceCascade:     cfg.Models.FaceCascade,
		LeftEyeCascade:  cfg.Models.LeftEyeCascade,
		RightEyeCascade: cfg.Models.RightEyeCascade,
		EyeClassifier:   cfg.Models.EyeClassifier,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	models, err := vision.LoadModels(modelFiles(cfg))
	if err != nil {
		logger.Error("failed to load models", zap.Error(err))
		return err
	}
	defer models.Close()
	logger.Info("models loaded",
		zap.String("face_cascade", cfg.Models.FaceCascade),
		zap.String("eye_classifier", cfg.Models.EyeClassifier))

	classifier := usecase.NewFrameClassifier(
		cfg.Classifier(),
		models.Faces,
		models.LeftEyes,
		models.RightEyes,
		models.Eyes,
		logger,
	)
	sound := infra.NewSoundPlayer(cfg.AlarmSound, infra.DefaultPlaybackStrategies(), logger)

	var store domain.SessionStore
	if !noHistory {
		history, err := openHistory(cfg)
		if err != nil {
			// History is optional; detection still runs without it.
			logger.Warn("session history disabled", zap.Error(err))
		} else {
			defer history.Close()
			store = history
		}
	}

	m := metrics.New()
	controller := session.NewController(
		cfg.Controller(),
		vision.NewCamera(cfg.Device),
		classifier,
		sound,
		store,
		infra.NewProcessSampler(),
		m,
		logger,
	)

	var renderer domain.Renderer
	if cfg.Headless {
		renderer = console.NewLogRenderer(logger)
	} else {
		renderer = vision.NewWindow("Drowsiness Detection")
	}
	defer renderer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	consoleConfig := console.DefaultConfig()
	consoleConfig.AutoStart = autoStart
	con := console.New(consoleConfig, controller, renderer, os.Stdin, os.Stdout, logger)

	runErr := con.Run(ctx)
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		logger.Info("received shutdown signal")
		runErr = nil
	}

	if err := controller.Shutdown(); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	return runErr
}

func openHistory(cfg config.Config) (*infra.HistoryStore, error) {
	return infra.OpenHistory(cfg.DataDir, infra.NewDataDirKeys(cfg.DataDir))
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Println("\n=== drowsyguard Check ===")
	fmt.Printf("Threshold: %d (alarm fires above)\n", cfg.Threshold)
	fmt.Printf("Unknown frames: %s\n", cfg.UnknownPolicy)
	fmt.Printf("Device: %s\n", cfg.Device)

	models, err := vision.LoadModels(modelFiles(cfg))
	if err != nil {
		fmt.Println("Models: FAILED")
		return err
	}
	defer models.Close()
	fmt.Println("Models: OK")

	player := infra.NewSoundPlayer(cfg.AlarmSound, infra.DefaultPlaybackStrategies(), zap.NewNop())
	if name := player.Strategy(); name != "" {
		fmt.Printf("Audio player: %s\n", name)
	} else {
		fmt.Println("Audio player: none (alarm will be silent)")
	}
	if _, err := os.Stat(cfg.AlarmSound); err != nil {
		fmt.Printf("Alarm sound: missing (%s)\n", cfg.AlarmSound)
	} else {
		fmt.Printf("Alarm sound: %s\n", cfg.AlarmSound)
	}

	fmt.Println("=========================")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if !infra.NewDataDirKeys(cfg.DataDir).HasHistoryKey() {
		fmt.Println("No sessions recorded yet.")
		return nil
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Recent(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tFRAMES\tALARMS\tPEAK\tEND")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			s.StartedAt.Local().Format(time.DateTime),
			s.Duration().Round(time.Second),
			s.Frames,
			s.AlarmTicks,
			s.PeakScore,
			s.EndReason)
	}
	return tw.Flush()
}

func createLogger(cfg config.Config) *zap.Logger {
	if debug {
		if logger, err := zap.NewDevelopment(); err == nil {
			return logger
		}
	}

	zc := zap.NewProductionConfig()
	if cfg.LogFile != "" {
		zc.OutputPaths = []string{cfg.LogFile}
		zc.ErrorOutputPaths = []string{cfg.LogFile}
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zc.Level = level
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("drowsyguard %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
