package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/account"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/alert"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/breaker"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/config"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/dispatch"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/health"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/metrics"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/phone"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/provider"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/route"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/server"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/store"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires and runs all pipeline components
type Application struct {
	config    *config.Config
	logger    *logrus.Logger
	store     store.Store
	registry  *account.Registry
	router    *route.Router
	breaker   *breaker.Breaker
	client    provider.Client
	alerter   *alert.Alerter
	pool      *dispatch.Pool
	scheduler *dispatch.Scheduler
	monitor   *health.Monitor
	server    *server.HTTPServer
	metrics   *metrics.Manager
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return app, nil
}

func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging
	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
	}).Info("Logger initialized")
	return nil
}

func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.metrics = metrics.NewManager()
	app.store = store.NewInstrumentedStore(app.store, app.metrics)
	app.registry = account.NewRegistry(app.config.Accounts)
	phones := phone.NewNormalizer(app.config.Phone.HomeCode, app.config.Phone.SecondaryCode)
	app.router = route.NewRouter(app.config.Routing, app.registry, phones)
	app.breaker = breaker.New(app.config.Breaker.Threshold, app.config.Breaker.Cooldown)

	healthStore := health.NewMetricsStore(app.config.Health.MetricsWindow)
	gateway := provider.NewHTTPClient(
		app.config.Provider.BaseURL,
		app.config.Provider.SendTimeout,
		app.config.Provider.MediaTimeout,
		app.logger,
	)
	app.client = provider.NewInstrumented(gateway, healthStore, app.metrics)

	emailSender := alert.NewSMTPSender(app.config.Alerting.SMTP)
	app.alerter = alert.NewAlerter(app.config.Alerting, app.client, app.registry, app.router, emailSender, app.metrics)

	orchestrator := dispatch.NewOrchestrator(
		app.store, app.router, app.registry, phones, app.breaker,
		app.client, emailSender, app.alerter, app.metrics, app.config.Retry)
	app.pool = dispatch.NewPool(orchestrator, app.store, app.config.Delivery, app.config.Retry, app.metrics)
	app.scheduler = dispatch.NewScheduler(app.store, app.pool, app.config.Retry, app.metrics)
	app.monitor = health.NewMonitor(app.registry, app.client, healthStore, app.scheduler, app.metrics, app.config.Health)

	app.server = server.NewHTTPServer(
		&app.config.Server, app.store, app.pool, app.scheduler,
		app.monitor, app.breaker, app.registry, app.metrics)

	app.logger.Info("All components initialized successfully")
	return nil
}

func (app *Application) initializeStorage() error {
	st, err := store.NewStore(&app.config.Storage)
	if err != nil {
		return err
	}
	if err := st.Connect(); err != nil {
		return err
	}
	if err := st.Migrate(); err != nil {
		return err
	}
	app.store = st
	return nil
}

// Start starts all components
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting notification service")

	if err := app.pool.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start delivery pool: %w", err)
	}
	if err := app.scheduler.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start retry scheduler: %w", err)
	}
	if err := app.monitor.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start health monitor: %w", err)
	}
	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"accounts":       len(app.config.Accounts),
		"workers":        app.config.Delivery.Workers,
	}).Info("Notification service started successfully")
	return nil
}

// Stop stops all components gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping notification service")
	app.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if err := app.monitor.Stop(); err != nil {
		app.logger.WithError(err).Error("Health monitor shutdown failed")
	}
	if err := app.scheduler.Stop(); err != nil {
		app.logger.WithError(err).Error("Retry scheduler shutdown failed")
	}
	if err := app.pool.Stop(); err != nil {
		app.logger.WithError(err).Error("Delivery pool shutdown failed")
	}
	if err := app.store.Close(); err != nil {
		app.logger.WithError(err).Error("Storage shutdown failed")
	}

	app.logger.Info("Notification service stopped")
	return nil
}

// CLI Commands

var rootCmd = &cobra.Command{
	Use:     "ts-cargo-notify",
	Short:   "TS Cargo notification delivery service",
	Long:    `Outbound notification pipeline for the TS Cargo logistics back office: WhatsApp, SMS and email delivery with retries, circuit breaking and account health monitoring.`,
	Version: AppVersion,
	RunE:    runService,
}

func runService(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping service...")

	return app.Stop()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("TS Cargo Notify %s\n", AppVersion)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Accounts: %d\n", len(cfg.Accounts))
		fmt.Printf("Workers: %d\n", cfg.Delivery.Workers)
		return nil
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing notification service configuration...")

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		st, err := store.NewStore(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := st.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer st.Close()
		fmt.Println("Storage connection OK")

		fmt.Println("Checking provider accounts...")
		registry := account.NewRegistry(cfg.Accounts)
		for _, region := range registry.Regions() {
			acct, err := registry.Get(region)
			if err != nil {
				continue
			}
			state := "unusable"
			if acct.Usable() {
				state = "usable"
			}
			fmt.Printf("  %s (%s): %s\n", region, acct.Generation, state)
		}

		fmt.Println("\nAll configuration checks passed")
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe every configured provider account once and report connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := utils.InitLogger("warn", "text", "stdout", ""); err != nil {
			return err
		}

		registry := account.NewRegistry(cfg.Accounts)
		client := provider.NewHTTPClient(
			cfg.Provider.BaseURL,
			cfg.Provider.SendTimeout,
			cfg.Provider.MediaTimeout,
			utils.GetLogger(),
		)
		monitor := health.NewMonitor(
			registry, client, health.NewMetricsStore(cfg.Health.MetricsWindow),
			nil, nil, cfg.Health)

		fmt.Printf("Probing %d account(s)...\n", len(registry.Regions()))
		monitor.ProbeAll(cmd.Context())

		for region, status := range monitor.Statuses() {
			state := "connected"
			if !status.Connected {
				state = fmt.Sprintf("disconnected (%s)", status.LastError)
			}
			fmt.Printf("  %s: %s\n", region, state)
		}
		fmt.Printf("Overall: %s\n", monitor.Overall())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(probeCmd)
	configCmd.AddCommand(validateConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
