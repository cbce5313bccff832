// Package config loads the debugger's own runtime settings, grounded on
// cmd/root.go's initConfig: a YAML file in the user's home directory,
// overridable by environment variables, read through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the knobs debugger.rs reads off self.context.settings.
// Zero values match the source's own defaults (no redirect files, no
// trace logging, the 250ms periodic-timer fallback).
type Settings struct {
	// StdinFile, StdoutFile, StderrFile name redirect files for the
	// inferior's standard streams. They are loaded but not read anywhere in
	// this module: ptrace.Kernel.StartChild always connects all three
	// streams to /dev/null.
	StdinFile  string `mapstructure:"stdin-file"`
	StdoutFile string `mapstructure:"stdout-file"`
	StderrFile string `mapstructure:"stderr-file"`

	// TraceLogging turns on the verbose per-event eprintln! tracing
	// debugger.rs gates behind this flag throughout process_events.
	TraceLogging bool `mapstructure:"trace-logging"`

	// ExceptionAwareSteps mirrors the exception_aware_steps setting. It is
	// loaded but not read anywhere in this module: stepping does not change
	// with it.
	ExceptionAwareSteps bool `mapstructure:"exception-aware-steps"`

	// PeriodicTimer is the event-loop period setting. 0 means use
	// DefaultPeriodicTimer, matching the `if == 0 { 250000000 }` fallback.
	// Nothing in this module passes it to Controller.ProcessEvents, which
	// takes its budget as a parameter.
	PeriodicTimer time.Duration `mapstructure:"periodic-timer"`
}

// DefaultPeriodicTimer is the fallback period used when Settings.PeriodicTimer
// is zero.
const DefaultPeriodicTimer = 250 * time.Millisecond

// EffectivePeriodicTimer returns s.PeriodicTimer, or DefaultPeriodicTimer if
// unset.
func (s Settings) EffectivePeriodicTimer() time.Duration {
	if s.PeriodicTimer == 0 {
		return DefaultPeriodicTimer
	}
	return s.PeriodicTimer
}

const (
	configName = ".dbgcore"
	configType = "yaml"
)

// Load reads settings from cfgFile if given, otherwise searches the user's
// home directory for a ".dbgcore.yaml", then applies any DBGCORE_*
// environment overrides, mirroring initConfig's SetConfigFile/AddConfigPath
// plus AutomaticEnv.
func Load(cfgFile string) (Settings, string, error) {
	v := viper.New()
	v.SetEnvPrefix("dbgcore")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return Settings{}, "", fmt.Errorf("resolving home directory: %w", err)
		}
		v.AddConfigPath(home)
		v.SetConfigType(configType)
		v.SetConfigName(configName)
	}

	var used string
	if err := v.ReadInConfig(); err == nil {
		used = v.ConfigFileUsed()
	} else if cfgFile != "" {
		return Settings{}, "", fmt.Errorf("reading config file %s: %w", cfgFile, err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, used, fmt.Errorf("parsing settings: %w", err)
	}
	return s, used, nil
}

// DefaultConfigPath returns where Load would search when no explicit
// cfgFile is given, for diagnostics and --help text.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, configName+"."+configType)
}
