package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/avodev/dbgcore/cmd/dbgcore"
	"github.com/avodev/dbgcore/internal/config"
	"github.com/avodev/dbgcore/internal/logging"
)

var cfgFile string

// RootCmd is the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "dbgcore",
	Short: "A native source-level debugger core for Linux/x86-64 ELF programs",
	Long: `dbgcore drives a debuggee through ptrace: starting or attaching to a
process, planting software and hardware breakpoints, stepping by source
line or instruction, and evaluating watch expressions against live
registers and memory.`,
}

// Settings and Logger are populated by initConfig before any subcommand
// runs, mirroring initConfig's module-level viper state in the source this
// was adapted from.
var (
	Settings config.Settings
	Logger   *slog.Logger
	LogRing  = logging.NewRing(1024)
)

// Execute adds all child commands to RootCmd and runs it. Called once by
// main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultConfigPath()+")")
	RootCmd.AddCommand(dbgcore.DebugCmd)
	cobra.OnInitialize(initConfig)
}

// initConfig reads settings from --config or the home-directory default,
// and wires up the fan-out logger every subcommand logs through.
func initConfig() {
	settings, used, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
	Settings = settings
	Logger = logging.New(LogRing, settings.TraceLogging)
	dbgcore.Settings = settings
	dbgcore.Logger = Logger
}
