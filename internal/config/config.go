// Package config handles build configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Config holds all build settings.
type Config struct {
	Build     BuildConfig     `yaml:"build" toml:"build"`
	Rules     []RuleConfig    `yaml:"rules" toml:"rules"`
	Toolchain ToolchainConfig `yaml:"toolchain" toml:"toolchain"`
	Texture   TextureConfig   `yaml:"texture" toml:"texture"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// BuildConfig holds manifest processing settings.
type BuildConfig struct {
	Root       string `yaml:"root" toml:"root"`               // Manifest entries are relative to this
	OutputDir  string `yaml:"output_dir" toml:"output_dir"`   // Base for relative output paths
	Jobs       int    `yaml:"jobs" toml:"jobs"`               // Manifest entries compiled at once, 0 = CPUs
	ShaderJobs int    `yaml:"shader_jobs" toml:"shader_jobs"` // Permutations built at once per shader, 0 = CPUs
	ScratchDir string `yaml:"scratch_dir" toml:"scratch_dir"` // Parent of shader scratch dirs, "" = system temp
}

// RuleConfig maps source paths matching Pattern to a compiler. Outputs may
// reference Pattern's capture groups as $1, $2, ...
type RuleConfig struct {
	Pattern  string   `yaml:"pattern" toml:"pattern"`
	Compiler string   `yaml:"compiler" toml:"compiler"`
	Outputs  []string `yaml:"outputs" toml:"outputs"`
}

// ToolchainConfig holds external shader toolchain settings.
type ToolchainConfig struct {
	Metal ExecToolchainConfig `yaml:"metal" toml:"metal"`
}

// ExecToolchainConfig overrides the commands of an external toolchain.
// A stage with an empty path keeps its built-in command.
type ExecToolchainConfig struct {
	Compile CommandConfig `yaml:"compile" toml:"compile"`
	Archive CommandConfig `yaml:"archive" toml:"archive"`
	Link    CommandConfig `yaml:"link" toml:"link"`
}

// CommandConfig is one external command. Args may use the {input},
// {output}, {diag} and {macros} placeholders.
type CommandConfig struct {
	Path string   `yaml:"path,omitempty" toml:"path,omitempty"`
	Args []string `yaml:"args,omitempty" toml:"args,omitempty"`
}

// TextureConfig holds texture compiler settings.
type TextureConfig struct {
	Compress bool   `yaml:"compress" toml:"compress"`
	Level    string `yaml:"level" toml:"level"`       // zstd level: fastest, default, better, best
	MaxSize  int    `yaml:"max_size" toml:"max_size"` // Longest side in pixels, 0 = unlimited
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
	NoColor bool   `yaml:"no_color" toml:"no_color"`
}

// Compiler names used in rules.
const (
	CompilerMesh        = "mesh"
	CompilerShaderMetal = "shader-metal"
	CompilerShaderWGSL  = "shader-wgsl"
	CompilerTexture     = "texture"
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Build: BuildConfig{
			Root:      ".",
			OutputDir: ".",
		},
		Rules: DefaultRules(),
		Texture: TextureConfig{
			Compress: false,
			Level:    "default",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{Pattern: `(.*)\.obj`, Compiler: CompilerMesh, Outputs: []string{"Assets/$1.mdl", "Assets/$1.mdg"}},
		{Pattern: `(.*)\.metal`, Compiler: CompilerShaderMetal, Outputs: []string{"Assets/$1_MTL.shd"}},
		{Pattern: `(.*)\.wgsl`, Compiler: CompilerShaderWGSL, Outputs: []string{"Assets/$1_WGSL.shd"}},
		{Pattern: `(.*)\.(tga|png|bmp)`, Compiler: CompilerTexture, Outputs: []string{"Assets/$1.tex"}},
	}
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Build.Jobs < 0 {
		errs = append(errs, fmt.Errorf("build.jobs must not be negative, got %d", c.Build.Jobs))
	}
	if c.Build.ShaderJobs < 0 {
		errs = append(errs, fmt.Errorf("build.shader_jobs must not be negative, got %d", c.Build.ShaderJobs))
	}
	if c.Texture.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("texture.max_size must not be negative, got %d", c.Texture.MaxSize))
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	for i, r := range c.Rules {
		if r.Pattern == "" || r.Compiler == "" {
			errs = append(errs, fmt.Errorf("rules[%d]: pattern and compiler are required", i))
			continue
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
