package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-mimic/logging"
	"github.com/RyanBlaney/sonido-mimic/mimic/config"
)

type cfgKey struct{}

// app carries state shared by every command of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	logCloser  io.Closer
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "sonido-mimic",
		Short: "Learn body landmarks from live audio features",
		Long: `sonido-mimic - correlate audio MFCC windows with body landmarks.

A session keeps a rolling window of MFCC vectors and the latest pose
estimate, records (window, landmarks) pairs while recording, fits a small
depthwise-convolutional regressor and then predicts landmarks from audio
alone.

Configuration is read from --config (YAML, JSON or TOML) and from
SONIDO_MIMIC_* environment variables, e.g.
SONIDO_MIMIC_SESSION_WINDOW_CAPACITY=20.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.String("log-file", "", "write logs to a rotating file instead of stderr")

	for key, flag := range map[string]string{
		"logging.level":  "log-level",
		"logging.format": "log-format",
		"logging.file":   "log-file",
	} {
		// BindPFlag only fails for a nil flag.
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newReplayCmd(), newConfigCmd(), newVersionCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", a.configFile, err)
		}
	}

	cfg, err := config.Decode(a.v)
	if err != nil {
		return err
	}

	logger, closer, err := logging.NewLogrusLogger(cfg.Logging.Logrus())
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logging.SetGlobalLogger(logger)
	a.logCloser = closer

	cmd.SetContext(context.WithValue(cmd.Context(), cfgKey{}, cfg))
	return nil
}

func (a *app) teardown() error {
	if a.logCloser == nil {
		return nil
	}
	err := a.logCloser.Close()
	a.logCloser = nil
	return err
}

// configFrom returns the configuration loaded by the root command.
func configFrom(cmd *cobra.Command) (config.Config, error) {
	cfg, ok := cmd.Context().Value(cfgKey{}).(config.Config)
	if !ok {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}
