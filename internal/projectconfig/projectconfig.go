// Package projectconfig handles loading abcc's project configuration from
// files.
//
// Configuration can be specified in a JSON file named abcc.json or .abccrc.
// The config file is searched for in the current directory and parent
// directories, walking upward until one is found or the filesystem root
// is reached.
package projectconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config represents the project configuration file structure. All fields
// are optional and fall back to the driver's own defaults when unset.
type Config struct {
	// IncludeDirs lists default "-I" search paths consulted before any CLI
	// -I flags, in order.
	IncludeDirs []string `json:"includeDirs,omitempty"`

	// Optimize mirrors the "-O" CLI flag's default when the flag is absent.
	Optimize *bool `json:"optimize,omitempty"`

	// Target holds an LLVM target triple override; empty means the host
	// triple. It is loaded and merged, but cmd/abcc does not pass it to the
	// backend toolchain.
	Target string `json:"target,omitempty"`

	// KeepGoing holds a keep-going flag, off by default. It is loaded, but
	// nothing in the compiler reads it: the first fatal diagnostic still
	// exits the process.
	KeepGoing *bool `json:"keepGoing,omitempty"`
}

// ConfigFileNames are the names searched for config files, in order of
// preference.
var ConfigFileNames = []string{
	"abcc.json",
	".abccrc",
	".abccrc.json",
}

// Load searches for a config file starting from startDir and walking up to
// parent directories. Returns nil if no config file is found.
func Load(startDir string) (*Config, string, error) {
	dir := startDir
	for {
		for _, name := range ConfigFileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				cfg, err := LoadFile(path)
				return cfg, path, err
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, "", nil
		}
		dir = parent
	}
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options is the resolved set of driver defaults a Config contributes,
// before CLI flags are applied on top.
type Options struct {
	IncludeDirs []string
	Optimize    bool
	Target      string
	KeepGoing   bool
}

// ToOptions converts a Config to Options, using zero-value defaults for
// unset fields.
func (c *Config) ToOptions() Options {
	var opts Options
	if c == nil {
		return opts
	}
	opts.IncludeDirs = c.IncludeDirs
	if c.Optimize != nil {
		opts.Optimize = *c.Optimize
	}
	opts.Target = c.Target
	if c.KeepGoing != nil {
		opts.KeepGoing = *c.KeepGoing
	}
	return opts
}

// CLIOverrides holds the subset of CLI flags that can override a loaded
// Config. A nil pointer field means "not specified on the command line".
type CLIOverrides struct {
	IncludeDirs []string // appended after the config file's own entries
	Optimize    *bool
	Target      string
}

// Merge combines config file options with CLI options, with CLI options
// taking precedence over the config file wherever both set the same field.
func (c *Config) Merge(cli CLIOverrides) Options {
	opts := c.ToOptions()
	if cli.Optimize != nil {
		opts.Optimize = *cli.Optimize
	}
	if cli.Target != "" {
		opts.Target = cli.Target
	}
	if len(cli.IncludeDirs) > 0 {
		opts.IncludeDirs = append(opts.IncludeDirs, cli.IncludeDirs...)
	}
	return opts
}
