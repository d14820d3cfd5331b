// Package config provides configuration loading for the policy engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for rbhcored.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("rbhcored")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: RBHCORED_DAEMON_ADMIN_ADDR
	viper.SetEnvPrefix("RBHCORED")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an rbhcored config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper
// from matching the binary "rbhcored" (no extension) in the current
// directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".rbhcored"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "rbhcored"))
		}
	} else {
		paths = append(paths, "/etc/rbhcored")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for rbhcored.yaml
// or .yml. Returns the full path of the first match, or empty string if
// none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "rbhcored"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the scalar config keys that make sense to
// override via environment variable. The fileclasses/policies/triggers
// slices are structurally too deep for env override and are expected to
// come from the config file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("daemon.log_level")
	_ = viper.BindEnv("daemon.state_dir")
	_ = viper.BindEnv("daemon.admin_addr")
	_ = viper.BindEnv("daemon.workers")
	_ = viper.BindEnv("daemon.queue_depth")

	_ = viper.BindEnv("catalog.dsn")
	_ = viper.BindEnv("catalog.retry_delay_min")
	_ = viper.BindEnv("catalog.retry_delay_max")
	_ = viper.BindEnv("catalog.commit_every")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates. Callers needing to apply CLI flag
// overrides between unmarshal and validation should use LoadConfigRaw
// instead.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and unmarshals it, but does
// NOT apply defaults or validate. Use this when CLI flags may still need
// to override fields before validation runs.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found (env vars
// only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
