package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	prepareTemplates    bool
	prepareVirtualHosts bool
	prepareDashboard    bool
	prepareActions      bool
	prepareAll          bool
	prepareForce        bool
	prepareUtils        bool // hidden: legacy -u flag, no-op
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Prepare Zabbix objects for vulnerability monitoring",
	Long: `Create and configure Zabbix objects required for vulnerability monitoring.

This command can create:
- OS-Report template for package collection (-t)
- Virtual hosts with discovery rules and triggers (-V)
- Dashboard for vulnerability visualization (-d)
- Action that runs "ztc fix" on acknowledged problems (-A)

Existing objects are left alone unless --force is given, in which case
they are backed up to scan.work_dir and recreated.

NOTE: This command does not require a Vulners API key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := GetLogger()
		cfg := GetConfig()

		log.Info("Preparing Zabbix objects...")

		client, shutdown, err := initZabbixClient(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to connect to Zabbix: %w", err)
		}
		defer shutdown()

		noFlagsSet := !prepareAll && !prepareTemplates && !prepareVirtualHosts && !prepareDashboard && !prepareActions
		if noFlagsSet {
			log.Warn("No flags specified, defaulting to --all (create all Zabbix objects)")
		}
		if prepareAll || noFlagsSet {
			prepareTemplates = true
			prepareVirtualHosts = true
			prepareDashboard = true
			prepareActions = true
		}
		if prepareForce {
			log.Warn("Force mode enabled, existing objects will be recreated")
		}

		ctx := context.Background()
		steps := []struct {
			enabled bool
			name    string
			run     func() error
		}{
			{prepareTemplates, "OS-Report template", func() error { return client.EnsureOSReportTemplate(ctx, prepareForce) }},
			{prepareVirtualHosts, "virtual hosts", func() error { return client.EnsureVirtualHosts(ctx, prepareForce) }},
			{prepareDashboard, "dashboard", func() error { return client.EnsureDashboard(ctx, prepareForce) }},
			{prepareActions, "action", func() error { return client.EnsureAction(ctx) }},
		}
		for _, step := range steps {
			if !step.enabled {
				continue
			}
			log.Info("Creating " + step.name + "...")
			if err := step.run(); err != nil {
				return fmt.Errorf("failed to create %s: %w", step.name, err)
			}
			log.Info(step.name + " ready")
		}

		log.Info("Zabbix preparation complete")
		return nil
	},
}

func init() {
	prepareCmd.Flags().BoolVarP(&prepareAll, "all", "a", false, "create all Zabbix objects (default when no flags given)")
	prepareCmd.Flags().BoolVarP(&prepareTemplates, "templates", "t", false, "create/update OS-Report template")
	prepareCmd.Flags().BoolVarP(&prepareVirtualHosts, "virtual-hosts", "V", false, "create virtual hosts")
	prepareCmd.Flags().BoolVarP(&prepareDashboard, "dashboard", "d", false, "create dashboard")
	prepareCmd.Flags().BoolVarP(&prepareActions, "actions", "A", false, "create the remediation action")
	prepareCmd.Flags().BoolVarP(&prepareForce, "force", "f", false, "back up and recreate existing objects")

	// -u (--utils) is accepted from old cron entries and ignored.
	prepareCmd.Flags().BoolVarP(&prepareUtils, "utils", "u", false, "check utility paths (accepted for compatibility, no-op)")
	_ = prepareCmd.Flags().MarkHidden("utils")

	rootCmd.AddCommand(prepareCmd)
}
