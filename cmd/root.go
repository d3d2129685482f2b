// Package cmd implements the ztc command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/logging"
	"github.com/kidoz/zabbix-vuln-matrix/internal/telemetry"
)

var (
	cfgFile      string
	verbose      bool
	cfg          *config.Config
	log          *zap.Logger
	otelShutdown func(context.Context) error
)

// Commands that run without the config file, usually on monitored hosts.
var standalone = map[string]bool{
	"version":        true,
	"migrate-config": true,
	"report":         true,
}

var rootCmd = &cobra.Command{
	Use:   "ztc",
	Short: "Zabbix Threat Control - vulnerability assessment for Zabbix",
	Long: `Zabbix Threat Control (ZTC) turns Zabbix monitoring into a
vulnerability assessment system using the Vulners audit API.

It collects installed packages from hosts monitored by Zabbix, audits
them against Vulners, correlates the findings by host, package and
bulletin, and pushes the result back to Zabbix for dashboards, triggers
and one-click remediation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if standalone[cmd.Name()] {
			return nil
		}

		log = logging.Fallback(verbose)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Rebuild with the configured level and file now that they are known.
		if log, err = logging.New(cfg.Logging, verbose); err != nil {
			return err
		}
		log = log.With(zap.String("cmd", cmd.Name()))

		otelShutdown, err = telemetry.Init(context.Background(), &cfg.Telemetry, verbose)
		if err != nil {
			return fmt.Errorf("failed to init telemetry: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if log != nil {
			_ = log.Sync()
		}
		if otelShutdown != nil {
			return otelShutdown(context.Background())
		}
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.FindConfigPath(), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// GetConfig returns the configuration loaded by the root command.
func GetConfig() *config.Config {
	return cfg
}

// GetLogger returns the logger built by the root command.
func GetLogger() *zap.Logger {
	return log
}
