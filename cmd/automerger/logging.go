package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/automerger/internal/cfg"
)

const verboseFlag = "verbose"

// logLevel returns the level set by the --verbose flag of cmd, if it is
// unset the log_level setting of config is used.
func logLevel(cmd *cobra.Command, config *cfg.Config) (zapcore.Level, error) {
	verbose, err := cmd.Flags().GetBool(verboseFlag)
	if err != nil {
		return zapcore.InfoLevel, err
	}

	if verbose {
		return zapcore.DebugLevel, nil
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log_level: %w", err)
	}

	return level, nil
}

func newLogEncoder(config *cfg.Config) (zapcore.Encoder, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.LevelKey = "loglevel"
	encCfg.TimeKey = config.LogTimeKey
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	switch config.LogFormat {
	case "logfmt":
		return zaplogfmt.NewEncoder(encCfg), nil
	case "json":
		return zapcore.NewJSONEncoder(encCfg), nil
	case "console":
		return zapcore.NewConsoleEncoder(encCfg), nil
	default:
		return nil, fmt.Errorf("unsupported log_format: %q", config.LogFormat)
	}
}

// newLogger creates a logger that writes in the configured format to out.
func newLogger(cmd *cobra.Command, config *cfg.Config, out zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := logLevel(cmd, config)
	if err != nil {
		return nil, err
	}

	enc, err := newLogEncoder(config)
	if err != nil {
		return nil, err
	}

	return zap.New(zapcore.NewCore(enc, out, level)), nil
}

// mustInitLogger replaces the global zap logger with one configured by the
// command line flags and config. The logger is flushed on termination.
func mustInitLogger(cmd *cobra.Command, config *cfg.Config) {
	l, err := newLogger(cmd, config, zapcore.Lock(os.Stdout))
	exitOnErr("could not initialize logger", err)

	zap.ReplaceGlobals(l)
	logger = l.Named("main")

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}
