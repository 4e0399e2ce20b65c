package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/teslamqtt/app"
	"github.com/kilianp07/teslamqtt/config"
	coremon "github.com/kilianp07/teslamqtt/core/monitoring"
	"github.com/kilianp07/teslamqtt/infra/logger"
	"github.com/kilianp07/teslamqtt/infra/monitoring"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "tesla-mqtt",
	Short:        "Bridge MQTT vehicle commands to the Tesla owner API",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// setup loads the configuration, checks it with validate and configures
// logging and monitoring. The returned function flushes both.
func setup(validate func(config.Config) error) (*config.Config, func(), error) {
	cfg, err := config.Read(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(*cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	closeLog, err := logger.Configure(cfg.Logging.Options())
	if err != nil {
		return nil, nil, fmt.Errorf("configure logging: %w", err)
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		_ = closeLog()
		return nil, nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)
	return cfg, func() {
		coremon.Flush(2 * time.Second)
		_ = closeLog()
	}, nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, cleanup, err := setup(config.Config.Validate)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
