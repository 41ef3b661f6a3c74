package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/csync/internal/config"
	"go.klb.dev/csync/internal/logging"
)

// relayFlags maps flag names to nested setting keys. Other flags share their
// setting key with their name.
var relayFlags = map[string]string{
	"redis-host":         config.KeyRedisHost,
	"redis-port":         config.KeyRedisPort,
	"redis-user":         config.KeyRedisUser,
	"redis-password":     config.KeyRedisPassword,
	"redis-db":           config.KeyRedisDB,
	"redis-timeout":      config.KeyRedisTimeout,
	"redis-tls":          config.KeyRedisTLS,
	"redis-tls-insecure": config.KeyRedisTLSInsecure,
}

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CSYNC_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CSYNC_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	config.SetDefaults(v)

	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag == "" {
		configFlag = os.Getenv("CSYNC_CONFIG")
	}
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "csync"))
		}
		v.AddConfigPath("/etc/csync/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	for name, key := range relayFlags {
		if fl := cmd.Flags().Lookup(name); fl != nil {
			if err := v.BindPFlag(key, fl); err != nil {
				return fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides $CSYNC_CONFIG and auto-discovery)")
}

// addDataDirFlag adds --data-dir for commands that only touch the daemon
// record.
func addDataDirFlag(cmd *cobra.Command) {
	cmd.Flags().String(config.KeyDataDir, "", "directory for the pid and log files (default $CSYNC_LOCAL or ~/.local/share/csync)")
}

// addSyncFlags adds every flag that shapes the sync configuration.
func addSyncFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String(config.KeyName, "", "name of this device (default hostname)")
	f.String(config.KeyPassword, "", "shared password; empty sends payloads unencrypted")
	f.String(config.KeyCipher, "", "cipher used with a password: aes-256-gcm|chacha20-poly1305")
	f.String(config.KeyNamespace, "", "channel prefix on the relay (default /csync)")
	f.StringSlice(config.KeyWatch, nil, "peer device names to receive from")
	f.Bool(config.KeyReadOnly, false, "publish local changes, never write the clipboard")
	f.Bool(config.KeyWriteOnly, false, "write peer changes, never publish")
	f.String("redis-host", "", "relay host (default 127.0.0.1)")
	f.Int("redis-port", 0, "relay port (default 6379)")
	f.String("redis-user", "", "relay ACL user")
	f.String("redis-password", "", "relay password")
	f.Int("redis-db", 0, "relay database number")
	f.Duration("redis-timeout", 0, "relay dial/read/write timeout (default 10s)")
	f.Bool("redis-tls", false, "connect to the relay over TLS")
	f.Bool("redis-tls-insecure", false, "skip relay certificate verification")
	addDataDirFlag(cmd)
}

// dataDir returns the daemon directory without validating the rest of the
// configuration, so status and stop work with a broken config file.
func dataDir(v *viper.Viper) string {
	if dir := v.GetString(config.KeyDataDir); dir != "" {
		return dir
	}
	return config.DefaultDataDir()
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	resolveLogging(interactive, v.GetString("log-format"), v.GetString("log-level"))
}
