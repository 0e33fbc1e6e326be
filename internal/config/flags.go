package config

import "github.com/spf13/pflag"

// Flags holds command-line overrides. Zero values mean "not set".
type Flags struct {
	ConfigPath string
	Debug      bool
	Jobs       int
	LogFile    string
	NoColor    bool
}

// BindFlags registers the config flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "path to config file (.yaml or .toml)")
	fs.BoolVar(&f.Debug, "debug", false, "enable debug logging")
	fs.IntVarP(&f.Jobs, "jobs", "j", 0, "manifest entries compiled at once (0 = config or CPUs)")
	fs.StringVar(&f.LogFile, "log-file", "", "also write logs to this file")
	fs.BoolVar(&f.NoColor, "no-color", false, "disable colored output")
	return f
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Jobs > 0 {
		cfg.Build.Jobs = f.Jobs
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
	if f.NoColor {
		cfg.Logging.NoColor = true
	}
}
