// Package cli provides utility functions for command line interface applications.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/periscope/aggregator-api/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// InitViperConfig initializes the Viper configuration for a command.
//
// An explicit --config file wins. Otherwise cmdName.{yaml,json,...} is searched in the working
// directory, /etc/cmdName, the user configuration directory and the executable directory.
// Environment variables prefixed with the upper-cased cmdName override file values.
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	if v, err := cmd.Flags().GetString("config"); err == nil && v != "" {
		vip.SetConfigFile(v)
	} else {
		vip.SetConfigName(cmdName)
		vip.AddConfigPath(".")
		vip.AddConfigPath(filepath.Join("/etc", cmdName))

		if p := constants.GetDefaultConfigPath(); p != "" {
			vip.AddConfigPath(p)
		}

		if binPath, err := os.Executable(); err != nil {
			slog.Warn("Failed to get current executable path, not adding it as a config dir", "error", err)
		} else {
			vip.AddConfigPath(filepath.Dir(binPath))
		}
	}
	if err := vip.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if errors.As(err, &e) {
			slog.Info("No configuration file. Using defaults, environment variables and flags only.")
		} else {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
	} else {
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	}

	// Handle environment.
	envPrefix := strings.ToUpper(strings.ReplaceAll(cmdName, "-", "_"))
	vip.SetEnvPrefix(envPrefix)
	vip.AutomaticEnv()

	// Bind every prefixed variable explicitly so that Unmarshal sees keys absent from the config
	// file. Nested keys use "_" as separator: AGGREGATOR_API_DATABASE_HOST is database.host, so
	// multi-word keys are spelled without one: AGGREGATOR_API_ADMIN_PASSWORDHASH.
	prefix := envPrefix + "_"
	bindings := make(map[string]string)
	for _, e := range os.Environ() {
		name, _, _ := strings.Cut(e, "=")
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		bindings[strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, prefix), "_", "."))] = name
	}

	leaves := make(map[string]bool)
	for _, k := range vip.AllKeys() {
		leaves[k] = true
	}
	for k := range bindings {
		leaves[k] = true
	}

	for k, name := range bindings {
		if leaf := shadowingLeaf(k, leaves); leaf != "" {
			want := strings.ReplaceAll(leaf, ".", "_") + strings.ReplaceAll(strings.TrimPrefix(k, leaf), ".", "")
			return fmt.Errorf("environment variable %s maps to %q, nested under the value %q: use %s instead",
				name, k, leaf, prefix+strings.ToUpper(want))
		}
		if err := vip.BindEnv(k, name); err != nil {
			return fmt.Errorf("could not bind environment variable: %w", err)
		}
	}

	return nil
}

// shadowingLeaf returns the shortest key of leaves which key is nested under, if any.
func shadowingLeaf(key string, leaves map[string]bool) string {
	for i := strings.Index(key, "."); i >= 0; {
		if leaves[key[:i]] {
			return key[:i]
		}
		next := strings.Index(key[i+1:], ".")
		if next < 0 {
			break
		}
		i += next + 1
	}
	return ""
}

// InstallConfigFlag adds a config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	return cmd.PersistentFlags().String("config", "", "use a specific configuration file")
}
