package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the optional convmap configuration file
// (~/.config/convmap/config.yaml). Pointer fields distinguish "not set" from
// zero.
type Config struct {
	DumpDir      string `yaml:"dump_dir"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	Workers      *int64 `yaml:"workers"`
	ComputeUnits *int64 `yaml:"compute_units"`
	CodeObject   string `yaml:"code_object"`

	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "convmap", "config.yaml")
}

// LoadConfig reads the config file. A missing or unreadable file yields a
// zero Config.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyWorkersConfig fills --workers from the config file when unset.
func applyWorkersConfig(c *cli.Command, cfg Config) {
	if cfg.Workers != nil && !c.IsSet("workers") {
		workers = *cfg.Workers
	}
}

// applyTransposeConfig fills transpose flags from the config file when unset.
func applyTransposeConfig(c *cli.Command, cfg Config, computeUnits *int64, codeObject *string) {
	if cfg.ComputeUnits != nil && !c.IsSet("compute-units") {
		*computeUnits = *cfg.ComputeUnits
	}
	if cfg.CodeObject != "" && !c.IsSet("code-object") {
		*codeObject = cfg.CodeObject
	}
}

// applyServeConfig fills serve flags from the config file when unset.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, computeUnits *int64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.ComputeUnits != nil && !c.IsSet("compute-units") {
		*computeUnits = *cfg.ComputeUnits
	}
	applyWorkersConfig(c, cfg)
}
