package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-mimic/logging"
)

// EnvPrefix is prepended to every environment override, e.g.
// SONIDO_MIMIC_SESSION_WINDOW_CAPACITY.
const EnvPrefix = "SONIDO_MIMIC"

// DegeneratePolicy decides what happens to a tick whose window has zero
// spread.
type DegeneratePolicy string

const (
	// DegenerateSkip drops the tick.
	DegenerateSkip DegeneratePolicy = "skip"
	// DegenerateUnitStd normalizes with a standard deviation of 1.
	DegenerateUnitStd DegeneratePolicy = "unit_std"
)

type Config struct {
	Feature  FeatureConfig  `json:"feature" mapstructure:"feature" yaml:"feature"`
	Pose     PoseConfig     `json:"pose" mapstructure:"pose" yaml:"pose"`
	Session  SessionConfig  `json:"session" mapstructure:"session" yaml:"session"`
	Training TrainingConfig `json:"training" mapstructure:"training" yaml:"training"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging" yaml:"logging"`
}

// FeatureConfig configures the audio feature extractor.
type FeatureConfig struct {
	SampleRate   int `json:"sample_rate" mapstructure:"sample_rate" yaml:"sample_rate" validate:"gt=0"`
	BufferSize   int `json:"buffer_size" mapstructure:"buffer_size" yaml:"buffer_size" validate:"gt=1"` // samples per analysis tick
	Coefficients int `json:"coefficients" mapstructure:"coefficients" yaml:"coefficients" validate:"gt=0,ltefield=MelFilters"`
	MelFilters   int `json:"mel_filters" mapstructure:"mel_filters" yaml:"mel_filters" validate:"gt=0"`

	// SilenceThreshold gates ticks whose RMS falls below it. 0 disables it.
	SilenceThreshold float64 `json:"silence_threshold" mapstructure:"silence_threshold" yaml:"silence_threshold" validate:"gte=0"`

	// Optional conditioning ahead of the window function. 0 disables either.
	PreEmphasis float64 `json:"pre_emphasis" mapstructure:"pre_emphasis" yaml:"pre_emphasis" validate:"gte=0,lt=1"`
	DCCutoffHz  float64 `json:"dc_cutoff_hz" mapstructure:"dc_cutoff_hz" yaml:"dc_cutoff_hz" validate:"gte=0"`
}

// PoseConfig describes the pose stream the session consumes.
type PoseConfig struct {
	Keypoints   int     `json:"keypoints" mapstructure:"keypoints" yaml:"keypoints" validate:"gt=0"`
	FrameWidth  float64 `json:"frame_width" mapstructure:"frame_width" yaml:"frame_width" validate:"gt=0"`
	FrameHeight float64 `json:"frame_height" mapstructure:"frame_height" yaml:"frame_height" validate:"gt=0"`
}

type SessionConfig struct {
	WindowCapacity   int              `json:"window_capacity" mapstructure:"window_capacity" yaml:"window_capacity" validate:"gt=0"`
	TickInterval     time.Duration    `json:"tick_interval" mapstructure:"tick_interval" yaml:"tick_interval" validate:"gt=0"`
	DegeneratePolicy DegeneratePolicy `json:"degenerate_policy" mapstructure:"degenerate_policy" yaml:"degenerate_policy" validate:"oneof=skip unit_std"`
}

type TrainingConfig struct {
	Epochs       int     `json:"epochs" mapstructure:"epochs" yaml:"epochs" validate:"gt=0"`
	BatchSize    int     `json:"batch_size" mapstructure:"batch_size" yaml:"batch_size" validate:"gt=0"`
	LearningRate float64 `json:"learning_rate" mapstructure:"learning_rate" yaml:"learning_rate" validate:"gt=0"`
	Seed         uint64  `json:"seed" mapstructure:"seed" yaml:"seed"` // 0 picks a random seed per run
}

type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error fatal"`
	Format     string `json:"format" mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	File       string `json:"file,omitempty" mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days" yaml:"max_age_days" validate:"gte=0"`
}

// Logrus converts the section into the logging backend's configuration.
func (l LoggingConfig) Logrus() logging.LogrusConfig {
	return logging.LogrusConfig{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}

func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		SampleRate:   44100,
		BufferSize:   1024,
		Coefficients: 20,
		MelFilters:   26,
	}
}

func DefaultPoseConfig() PoseConfig {
	return PoseConfig{
		Keypoints:   5,
		FrameWidth:  600,
		FrameHeight: 480,
	}
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		WindowCapacity:   20,
		TickInterval:     10 * time.Millisecond,
		DegeneratePolicy: DegenerateSkip,
	}
}

func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Epochs:       20,
		BatchSize:    16,
		LearningRate: 0.01,
	}
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "text",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		Feature:  DefaultFeatureConfig(),
		Pose:     DefaultPoseConfig(),
		Session:  DefaultSessionConfig(),
		Training: DefaultTrainingConfig(),
		Logging:  DefaultLoggingConfig(),
	}
}

var validate = validator.New()

// Validate checks every field constraint and reports all violations at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Load reads the configuration from path (any format viper understands; an
// empty path skips the file), applies SONIDO_MIMIC_* environment overrides on
// top of the defaults and validates the result.
func Load(path string) (Config, error) {
	v := NewViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	return Decode(v)
}

// NewViper returns a viper instance seeded with the defaults and bound to the
// environment. Callers may bind command-line flags to it before Load-style
// unmarshalling.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return v
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("feature.sample_rate", d.Feature.SampleRate)
	v.SetDefault("feature.buffer_size", d.Feature.BufferSize)
	v.SetDefault("feature.coefficients", d.Feature.Coefficients)
	v.SetDefault("feature.mel_filters", d.Feature.MelFilters)
	v.SetDefault("feature.silence_threshold", d.Feature.SilenceThreshold)
	v.SetDefault("feature.pre_emphasis", d.Feature.PreEmphasis)
	v.SetDefault("feature.dc_cutoff_hz", d.Feature.DCCutoffHz)

	v.SetDefault("pose.keypoints", d.Pose.Keypoints)
	v.SetDefault("pose.frame_width", d.Pose.FrameWidth)
	v.SetDefault("pose.frame_height", d.Pose.FrameHeight)

	v.SetDefault("session.window_capacity", d.Session.WindowCapacity)
	v.SetDefault("session.tick_interval", d.Session.TickInterval)
	v.SetDefault("session.degenerate_policy", string(d.Session.DegeneratePolicy))

	v.SetDefault("training.epochs", d.Training.Epochs)
	v.SetDefault("training.batch_size", d.Training.BatchSize)
	v.SetDefault("training.learning_rate", d.Training.LearningRate)
	v.SetDefault("training.seed", d.Training.Seed)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
}
