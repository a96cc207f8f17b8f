// Package daemon provides the aggregator data API daemon.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/periscope/aggregator-api/internal/cli"
	"github.com/periscope/aggregator-api/internal/constants"
	"github.com/periscope/aggregator-api/internal/database"
	"github.com/periscope/aggregator-api/internal/database/memory"
	"github.com/periscope/aggregator-api/internal/webservice"
	"github.com/periscope/aggregator-api/internal/webservice/admin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *webservice.Server

	ready     chan struct{}
	readyOnce sync.Once
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Backend     Backend
	FixturePath string

	Database database.Config
	Daemon   webservice.StaticConfig
	Admin    admin.Config

	MigrationsDir string
}

// LogValue implements slog.LogValuer so that nested credentials go through their own redaction.
func (c appConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("verbosity", c.Verbosity),
		slog.Bool("json_logs", c.JSONLogs),
		slog.String("backend", c.Backend.String()),
		slog.String("fixture_path", c.FixturePath),
		slog.Any("database", c.Database),
		slog.Any("daemon", c.Daemon),
		slog.Any("admin", c.Admin),
	)
}

// legacyEnv maps configuration keys to the unprefixed environment variables also honored for them.
var legacyEnv = map[string]string{
	"admin.username":     "ADMIN_USERNAME",
	"admin.password":     "ADMIN_PASSWORD",
	"admin.passwordhash": "ADMIN_PASSWORD_HASH",
	"admin.secretkey":    "SECRET_KEY",
	"database.uri":       "MONGODB_URI",
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.CmdName,
		Short:         "Aggregator data API",
		Long:          "Aggregator data API serving ingested aggregator records, with a session protected admin surface to browse them.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(os.Stderr, a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			// Legacy bindings come first so that their keys are known when prefixed variables are bound.
			if err := bindLegacyEnv(a.viper); err != nil {
				return err
			}
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
				mapstructure.TextUnmarshallerHookFunc(),
				mapstructure.StringToTimeDurationHookFunc(),
			))); err != nil {
				return fmt.Errorf("unable to decode configuration into struct: %w", err)
			}
			slog.Info("got app config", "config", a.config)

			cli.SetSlog(os.Stderr, a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	installMigrateCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

// bindLegacyEnv binds the unprefixed variable names. Prefixed variables keep precedence.
func bindLegacyEnv(vip *viper.Viper) error {
	prefix := strings.ToUpper(strings.ReplaceAll(constants.CmdName, "-", "_"))
	for key, name := range legacyEnv {
		prefixed := prefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := vip.BindEnv(key, prefixed, name); err != nil {
			return fmt.Errorf("could not bind environment variable %s: %w", name, err)
		}
	}
	return nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultConf := webservice.StaticConfig{
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		RequestTimeout: 15 * time.Second,
		MaxHeaderBytes: 1 << 13, // 8 KB

		ListenPort:  8000,
		MetricsPort: 2112,
	}
	app.config.Backend = BackendMongo

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	// Store flags
	cmd.Flags().Var(&app.config.Backend, "backend", "record store backend: mongo or memory")
	cmd.Flags().StringVar(&app.config.FixturePath, "fixture", "", "YAML or JSON file seeding the memory backend, reloaded on change")
	addDBFlags(cmd, &app.config.Database)

	// Daemon flags
	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", defaultConf.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", defaultConf.WriteTimeout, "write timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.RequestTimeout, "request-timeout", defaultConf.RequestTimeout, "request timeout for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", defaultConf.MaxHeaderBytes, "maximum header bytes for HTTP server")

	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", defaultConf.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", defaultConf.ListenPort, "port to listen on")

	cmd.Flags().StringVar(&app.config.Daemon.MetricsHost, "metrics-host", defaultConf.MetricsHost, "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.Daemon.MetricsPort, "metrics-port", defaultConf.MetricsPort, "port for the metrics endpoint")

	cmd.Flags().Float64Var(&app.config.Daemon.RateLimit, "rate-limit", 0, "public API requests allowed per second and client IP, 0 to disable")
	cmd.Flags().IntVar(&app.config.Daemon.RateBurst, "rate-burst", 10, "public API request burst per client IP")

	// Admin flags. Secrets are only read from the configuration file and the environment.
	cmd.Flags().StringVar(&app.config.Admin.Username, "admin-username", constants.DefaultAdminUsername, "admin login")
	cmd.Flags().DurationVar(&app.config.Admin.SessionTTL, "session-ttl", 12*time.Hour, "lifetime of admin sessions")
	cmd.Flags().BoolVar(&app.config.Admin.SecureCookie, "secure-cookie", false, "only send the admin session cookie over HTTPS")
	cmd.Flags().Float64Var(&app.config.Admin.LoginRate, "login-rate", 0.2, "admin login attempts allowed per second and client IP")
	cmd.Flags().IntVar(&app.config.Admin.LoginBurst, "login-burst", 5, "admin login attempt burst per client IP")

	if err := cmd.MarkFlagFilename("fixture", "yaml", "yml", "json"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark fixture flag as filename: %v", err))
	}
}

// addDBFlags installs the MongoDB flags on the root command and its subcommands.
func addDBFlags(cmd *cobra.Command, config *database.Config) {
	cmd.PersistentFlags().StringVar(&config.URI, "mongo-uri", "", "MongoDB connection URI, overriding the other database flags")
	cmd.PersistentFlags().StringVar(&config.Host, "db-host", "localhost", "database host")
	cmd.PersistentFlags().IntVarP(&config.Port, "db-port", "p", 27017, "database port")
	cmd.PersistentFlags().StringVarP(&config.User, "db-user", "u", "", "database user")
	cmd.PersistentFlags().StringVarP(&config.Name, "db-name", "n", constants.DefaultDatabaseName, "database name")
	cmd.PersistentFlags().StringVar(&config.AuthSource, "db-auth-source", "", "database holding the user credentials")
	cmd.PersistentFlags().StringVar(&config.Collection, "db-collection", constants.DefaultCollection, "collection holding the aggregator records")
	cmd.PersistentFlags().DurationVar(&config.Timeout, "db-timeout", constants.DefaultQueryTimeout, "timeout of every database query")
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a *App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a *App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a *App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) setReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

// recordStore is the store served by the daemon, released on exit.
type recordStore interface {
	webservice.Store
	Close() error
}

func (a *App) run() (err error) {
	defer a.setReady()

	store, err := a.openStore(context.Background())
	if err != nil {
		return err
	}
	defer func() {
		if cErr := store.Close(); cErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close record store: %v", cErr))
		}
	}()

	a.daemon, err = webservice.New(context.Background(), store, a.config.Daemon, a.adminConfig())
	a.setReady()
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	return a.daemon.Run()
}

func (a *App) openStore(ctx context.Context) (recordStore, error) {
	switch a.config.Backend {
	case BackendMemory:
		if a.config.FixturePath == "" {
			return nil, errors.New("the memory backend requires a fixture file")
		}
		s, err := memory.New(a.config.FixturePath, memory.WithLogger(slog.Default().With("backend", "memory")))
		if err != nil {
			return nil, fmt.Errorf("failed to load fixture: %v", err)
		}
		return s, nil
	default:
		db, err := database.New(ctx, a.config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %v", err)
		}
		return db, nil
	}
}

// adminConfig returns the admin configuration with the default credentials filled in.
func (a *App) adminConfig() admin.Config {
	ac := a.config.Admin
	if ac.Username == "" {
		ac.Username = constants.DefaultAdminUsername
	}
	if ac.Password == "" && ac.PasswordHash == "" {
		ac.Password = constants.DefaultAdminPassword
	}
	return ac
}
