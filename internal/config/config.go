// Package config loads drowsyguard settings from defaults, an optional YAML
// file and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
	"github.com/eliteGoblin/drowsyguard/internal/session"
	"github.com/eliteGoblin/drowsyguard/internal/usecase"
)

// ModelPaths locates the detector and classifier assets.
type ModelPaths struct {
	FaceCascade     string `yaml:"face_cascade"`
	LeftEyeCascade  string `yaml:"left_eye_cascade"`
	RightEyeCascade string `yaml:"right_eye_cascade"`
	EyeClassifier   string `yaml:"eye_classifier"`
}

// Config is the full runtime configuration.
type Config struct {
	// Alarm and score
	Threshold     int    `yaml:"threshold"`
	ScoreCap      int    `yaml:"score_cap"`
	UnknownPolicy string `yaml:"unknown_policy"`
	IntensityMin  int    `yaml:"intensity_min"`
	IntensityMax  int    `yaml:"intensity_max"`
	IntensityStep int    `yaml:"intensity_step"`

	// Classification
	InputSize  int                 `yaml:"input_size"`
	FaceParams domain.DetectParams `yaml:"face_params"`
	EyeParams  domain.DetectParams `yaml:"eye_params"`
	Models     ModelPaths          `yaml:"models"`

	// Devices
	Device     string `yaml:"device"`
	AlarmSound string `yaml:"alarm_sound"`
	Headless   bool   `yaml:"headless"`

	// Runtime
	RenderBuffer int    `yaml:"render_buffer"`
	DataDir      string `yaml:"data_dir"`
	MetricsAddr  string `yaml:"metrics_addr"`
	LogFile      string `yaml:"log_file"`
	LogLevel     string `yaml:"log_level"`
}

// Default returns the default configuration.
func Default() Config {
	alarm := usecase.DefaultAlarmConfig()
	cls := usecase.DefaultClassifierConfig()
	ctrl := session.DefaultControllerConfig()

	return Config{
		Threshold:     alarm.Threshold,
		ScoreCap:      ctrl.ScoreCap,
		UnknownPolicy: string(ctrl.UnknownPolicy),
		IntensityMin:  alarm.MinIntensity,
		IntensityMax:  alarm.MaxIntensity,
		IntensityStep: alarm.Step,
		InputSize:     cls.InputSize,
		FaceParams:    cls.FaceParams,
		EyeParams:     cls.EyeParams,
		Models: ModelPaths{
			FaceCascade:     filepath.Join("haar cascade files", "haarcascade_frontalface_alt.xml"),
			LeftEyeCascade:  filepath.Join("haar cascade files", "haarcascade_lefteye_2splits.xml"),
			RightEyeCascade: filepath.Join("haar cascade files", "haarcascade_righteye_2splits.xml"),
			EyeClassifier:   filepath.Join("models", "cnnCat2.onnx"),
		},
		Device:       "0",
		AlarmSound:   "alarm.wav",
		RenderBuffer: ctrl.RenderBuffer,
		DataDir:      defaultDataDir(),
		LogLevel:     "info",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".drowsyguard"
	}
	return filepath.Join(home, ".drowsyguard")
}

// Load returns defaults overlaid with the YAML file at path.
// An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks option ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Threshold < 0 {
		errs = append(errs, fmt.Errorf("threshold must be >= 0, got %d", c.Threshold))
	}
	if c.ScoreCap < 0 {
		errs = append(errs, fmt.Errorf("score_cap must be >= 0, got %d", c.ScoreCap))
	}
	if c.ScoreCap > 0 && c.ScoreCap <= c.Threshold {
		errs = append(errs, fmt.Errorf("score_cap %d must exceed threshold %d or the alarm can never fire", c.ScoreCap, c.Threshold))
	}
	if _, err := usecase.ParseUnknownPolicy(c.UnknownPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.IntensityMin < 1 {
		errs = append(errs, fmt.Errorf("intensity_min must be >= 1, got %d", c.IntensityMin))
	}
	if c.IntensityMin > c.IntensityMax {
		errs = append(errs, fmt.Errorf("intensity range [%d,%d] is invalid", c.IntensityMin, c.IntensityMax))
	}
	if c.IntensityStep <= 0 {
		errs = append(errs, fmt.Errorf("intensity_step must be > 0, got %d", c.IntensityStep))
	}
	if c.InputSize <= 0 {
		errs = append(errs, fmt.Errorf("input_size must be > 0, got %d", c.InputSize))
	}
	for name, p := range map[string]domain.DetectParams{"face_params": c.FaceParams, "eye_params": c.EyeParams} {
		if p.ScaleFactor <= 1 {
			errs = append(errs, fmt.Errorf("%s.scale_factor must be > 1, got %g", name, p.ScaleFactor))
		}
	}
	if c.RenderBuffer < 1 {
		errs = append(errs, fmt.Errorf("render_buffer must be >= 1, got %d", c.RenderBuffer))
	}
	return errors.Join(errs...)
}

// Alarm returns the alarm state machine settings.
func (c Config) Alarm() usecase.AlarmConfig {
	return usecase.AlarmConfig{
		Threshold:    c.Threshold,
		MinIntensity: c.IntensityMin,
		MaxIntensity: c.IntensityMax,
		Step:         c.IntensityStep,
	}
}

// Classifier returns the frame classifier settings.
func (c Config) Classifier() usecase.ClassifierConfig {
	return usecase.ClassifierConfig{
		FaceParams: c.FaceParams,
		EyeParams:  c.EyeParams,
		InputSize:  c.InputSize,
	}
}

// Controller returns the session controller settings.
func (c Config) Controller() session.ControllerConfig {
	return session.ControllerConfig{
		Alarm:         c.Alarm(),
		ScoreCap:      c.ScoreCap,
		UnknownPolicy: usecase.UnknownPolicy(c.UnknownPolicy),
		RenderBuffer:  c.RenderBuffer,
	}
}
