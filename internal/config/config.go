// Package config loads the configuration of the fault demo from TOML.
package config

import (
	"io"
	"os"
	"os/user"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"golang.org/x/exp/slices"
)

// Config is the contents of a config file.
type Config struct {
	// Verbose sends debug logs to the log pane.
	Verbose bool `toml:"verbose"`
	// Ignore lists fault type names (e.g. "*main.demoError") that are not caught on the UI loop.
	// Faults of these types escalate and end the application.
	Ignore []string `toml:"ignore"`

	UI struct {
		Title string `toml:"title"`
	} `toml:"ui"`
}

// Default returns the config used when no config file exists.
func Default() Config {
	var c Config
	c.UI.Title = "Fault funnel demo"
	return c
}

// Ignores reports whether faults of the type named typeName should be left uncaught.
func (c Config) Ignores(typeName string) bool {
	return slices.Contains(c.Ignore, typeName)
}

// Find attempts to open the config file for reading.
// If a file is provided, only that file is checked, otherwise it attempts to
// open the following in order (falling back if the file does not exist or
// cannot be read). The error is the one from the last candidate:
//
// ./<app>.toml, $XDG_CONFIG_HOME/<app>/config.toml,
// $HOME/.config/<app>/config.toml, /etc/<app>/config.toml
func Find(appName, f string) (*os.File, string, error) {
	if f != "" {
		cfgFile, err := os.Open(f)
		return cfgFile, f, err
	}

	fPath := filepath.Join(".", appName+".toml")
	if cfgFile, err := os.Open(fPath); err == nil {
		return cfgFile, fPath, err
	}

	cfgDir := os.Getenv("XDG_CONFIG_HOME")
	if cfgDir != "" {
		fPath = filepath.Join(cfgDir, appName, "config.toml")
		if cfgFile, err := os.Open(fPath); err == nil {
			return cfgFile, fPath, nil
		}
	}

	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		fPath = filepath.Join(u.HomeDir, ".config", appName, "config.toml")
		if cfgFile, err := os.Open(fPath); err == nil {
			return cfgFile, fPath, nil
		}
	}

	fPath = filepath.Join("/etc", appName, "config.toml")
	cfgFile, err := os.Open(fPath)
	return cfgFile, fPath, err
}

// Load decodes a config file on top of the defaults. Keys that don't correspond to any setting are
// returned so that they can be reported.
func Load(r io.Reader) (Config, []string, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Default(), nil, err
	}

	var unknown []string
	for _, k := range md.Undecoded() {
		unknown = append(unknown, k.String())
	}
	return cfg, unknown, nil
}

// Print writes the default config as TOML.
func Print(w io.Writer) error {
	return toml.NewEncoder(w).Encode(Default())
}
