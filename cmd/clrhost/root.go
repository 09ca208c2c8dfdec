// Command clrhost is the host program for the runtime's metadata
// loader, IL transformer, and threaded interpreter (clrhost §6 "Host
// process"): it opens a CLI image, resolves its metadata, and either
// reports on it or runs one of its methods.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clrhost/clrhost/internal/log"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "clrhost",
	Short: "load, inspect, and run managed CLI assemblies",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "debug|info|warn|error|fatal")
	rootCmd.AddCommand(loadCmd, dumpMetadataCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLoggerBackend() log.Logger {
	lvl := log.LevelError
	switch logLevel {
	case "debug":
		lvl = log.LevelDebug
	case "info":
		lvl = log.LevelInfo
	case "warn":
		lvl = log.LevelWarn
	case "fatal":
		lvl = log.LevelFatal
	}
	return log.NewFilter(log.NewStdLogger(os.Stderr), log.FilterLevel(lvl))
}

func newLogger() *log.Helper {
	return log.NewHelper(newLoggerBackend())
}
