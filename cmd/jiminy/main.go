package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	logJSON  bool
)

func main() {
	root := &cobra.Command{
		Use:   "jiminy",
		Short: "Live chat: user widget, admin console, and the server behind them",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setupLogging()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as json instead of console output")

	root.AddCommand(newServeCommand())
	root.AddCommand(newWidgetCommand())
	root.AddCommand(newAdminCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	if !logJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}
