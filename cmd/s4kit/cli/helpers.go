package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/michal-majer/s4kit/internal/config"
	"github.com/michal-majer/s4kit/internal/crypto"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// S4KIT_DATA_DIR env var, or ~/.s4kit as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("S4KIT_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.s4kit"
}

// openConfigStore opens the SQLite config store, defaulting to ~/.s4kit
// if no data dir was specified.
func openConfigStore() (*config.Store, error) {
	return config.NewStore(resolveDataDir())
}

// loadYAML loads the effective YAML config, falling back to defaults when no
// file exists.
func loadYAML() *config.YAMLConfig {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("s4kit.yaml"); err == nil {
			path = "s4kit.yaml"
		}
	}
	if path == "" {
		return config.DefaultYAMLConfig()
	}
	cfg, err := config.LoadYAMLConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults\n", err)
		return config.DefaultYAMLConfig()
	}
	return cfg
}

// newEncryptor builds the credential encryptor from the configured key. The
// key comes from the config file (usually via ${S4KIT_ENCRYPTION_KEY}).
func newEncryptor(cfg *config.YAMLConfig) (*crypto.Encryptor, error) {
	key := strings.TrimSpace(cfg.Encryption.Key)
	if key == "" || strings.HasPrefix(key, "${") {
		return nil, fmt.Errorf("no encryption key configured: set S4KIT_ENCRYPTION_KEY (generate one with 's4kit keygen')")
	}
	return crypto.NewEncryptor(key)
}

// parseDuration parses a config duration string with a fallback.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
