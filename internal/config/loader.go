package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".redflow"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the structure of the .redflow configuration file:
//
//	tools:
//	  nmap: /opt/nmap/bin/nmap
//	timeouts:
//	  nmap: 7200
//	defaults:
//	  playbook: recon-full
//	  batch: 2
//	  live: false
type File struct {
	// Tools maps tool names to binaries.
	Tools map[string]string `yaml:"tools,omitempty"`

	// Timeouts maps tool names to seconds.
	Timeouts map[string]int `yaml:"timeouts,omitempty"`

	// Defaults overrides run defaults.
	Defaults Defaults `yaml:"defaults,omitempty"`
}

// Defaults holds run defaults settable from the configuration file.
type Defaults struct {
	Playbook    string `yaml:"playbook,omitempty"`
	Batch       int    `yaml:"batch,omitempty"`
	Live        *bool  `yaml:"live,omitempty"`
	CheckTools  *bool  `yaml:"check_tools,omitempty"`
	RunsDir     string `yaml:"runs_dir,omitempty"`
	Timeout     int    `yaml:"timeout,omitempty"`
	ReportTitle string `yaml:"report_title,omitempty"`
}

// LoadConfigFile loads a .redflow file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .redflow in the current directory
// 3. Look for .redflow in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}

// Load builds the layered configuration: defaults, then the config file
// (explicit path or discovered), then environ. An explicit path that does
// not exist is an error; a missing discovered file is not.
func Load(explicitPath string, environ []string) (*Config, error) {
	cfg := NewConfig()
	cfg.ConfigFilePath = explicitPath

	path := FindConfigFile(explicitPath)
	if explicitPath != "" && path == "" {
		return nil, ErrConfigNotFound
	}
	if path != "" {
		f, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.ApplyFile(f); err != nil {
			return nil, err
		}
		cfg.ConfigFilePath = path
	}

	if err := cfg.ApplyEnv(environ); err != nil {
		return nil, err
	}
	return cfg, nil
}
