// Package main is the tsuku-llm daemon entry point: a single-instance,
// single-model completion server reachable over a local Unix socket.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/tsuku/pkg/config"
)

var version = "0.1.0"

// errStartupFailure marks an error as a daemon startup failure (lock
// contention, bind failure, hardware/model problems) rather than a
// command-line usage error; run uses this to pick the exit code.
var errStartupFailure = errors.New("tsuku-llm: startup failed")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	fmt.Fprintln(os.Stderr, "tsuku-llm:", err)
	if errors.Is(err, errStartupFailure) {
		return 1
	}
	return 2
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "tsuku-llm",
		Short:   "Local completion daemon backing tsuku's LLM tool calls",
		Version: version,
	}
	rootCmd.SetVersionTemplate("tsuku-llm {{.Version}}\n")

	var idleTimeoutFlag string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the completion daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idle, err := resolveIdleTimeout(idleTimeoutFlag)
			if err != nil {
				return err
			}
			return runServe(idle)
		},
	}
	serveCmd.Flags().StringVar(&idleTimeoutFlag, "idle-timeout", "",
		"shut down after this much inactivity (e.g. 5m, 300); default 5m")
	rootCmd.AddCommand(serveCmd)

	return rootCmd
}

// resolveIdleTimeout parses --idle-timeout if given; an empty flag means
// "use config.DefaultIdleTimeout", signaled to config.Load as 0.
func resolveIdleTimeout(flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}
	return config.ParseDuration(flag)
}
