package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/cfg"
)

const appName = "automerger"

var logger = zap.NewNop()

// Version is set via a ldflag on compilation
var Version = "unknown"

const defConfigFile = "/etc/automerger/config.toml"

type arguments struct {
	ConfigFile string
}

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught , terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func mustParseCfg(path string) *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	file, err := os.Open(path)
	exitOnErr("could not open configuration file", err)
	defer file.Close()

	config, err := cfg.Load(file)
	exitOnErr(fmt.Sprintf("could not load configuration file: %s", path), err)

	return config
}

func newRootCmd() *cobra.Command {
	var args arguments

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Merge GitHub pull requests automatically when they are approved and their builds succeeded",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = Version
	cmd.PersistentFlags().BoolP(verboseFlag, "v", false, "enable verbose logging")
	cmd.PersistentFlags().StringVarP(&args.ConfigFile, "cfg-file", "c", defConfigFile, "path to the automerger configuration file")

	cmd.AddCommand(
		newServeCmd(&args),
		newPolicyCmd(&args),
		newVersionCmd(),
	)

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, Version)
		},
	}
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 0)
	goodbye.Notify(context.Background())

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		goodbye.Exit(context.Background(), 1)
	}
}
