package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/periscope/aggregator-api/internal/webservice/admin"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type (
	AppConfig = appConfig
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// AdminConfig returns the admin configuration the daemon serves with.
func (a *App) AdminConfig() admin.Config {
	return a.adminConfig()
}

// Addr returns the address the daemon serves the API on, or an empty string before it listens.
func (a *App) Addr() string {
	a.WaitReady()
	if a.daemon == nil {
		return ""
	}
	return a.daemon.Addr()
}

// NewForTests creates a new App instance serving the memory backend on free ports.
func NewForTests(t *testing.T, config map[string]any, args ...string) *App {
	t.Helper()

	p := GenerateTestConfig(t, config)
	argsWithConf := []string{"--config", p}
	argsWithConf = append(argsWithConf, args...)

	a, err := New()
	require.NoError(t, err, "Setup: failed to create app")
	a.cmd.SetArgs(argsWithConf)
	return a
}

// GenerateTestConfig writes a temporary configuration file for testing.
//
// Unless overridden, it selects the memory backend on the test fixture and free ports.
func GenerateTestConfig(t *testing.T, overrides map[string]any) string {
	t.Helper()

	fixture, err := filepath.Abs(filepath.Join("testdata", "records.yaml"))
	require.NoError(t, err, "Setup: failed to resolve fixture path")

	conf := map[string]any{
		"verbosity":   2,
		"backend":     "memory",
		"fixturepath": fixture,
		"daemon": map[string]any{
			"listenhost":  "127.0.0.1",
			"listenport":  0,
			"metricshost": "127.0.0.1",
			"metricsport": 0,
		},
	}
	for k, v := range overrides {
		conf[k] = v
	}

	d, err := yaml.Marshal(conf)
	require.NoError(t, err, "Setup: failed to marshal config for tests")

	confPath := filepath.Join(t.TempDir(), "testconfig.yaml")
	require.NoError(t, os.WriteFile(confPath, d, 0600), "Setup: failed to write config for tests")

	return confPath
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetSilenceUsage set the SilenceUsage flag on root command for tests.
func (a *App) SetSilenceUsage(silence bool) {
	a.cmd.SilenceUsage = silence
}

// MigrationURI exposes the migration connection URI computation.
var MigrationURI = migrationURI
