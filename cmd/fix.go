package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/fixer"
)

var fixCmd = &cobra.Command{
	Use:   "fix TRIGGERED_HOST TRIGGER_ID EVENT_ID",
	Short: "Run the remediation attached to an acknowledged trigger",
	Long: `Run the fix command carried by a ZTC trigger on the affected hosts.

This command is meant to be called by the Zabbix action that ZTC prepares,
with the macros {HOST.HOST} {TRIGGER.ID} {EVENT.ID}. It runs only when a
trusted user acknowledged the event without closing the problem.

Hosts triggers fix a single host; packages triggers fix every host listed
in the trigger comments and skip the hosts that fail.

The command is executed with system.run through zabbix_get, or over ssh
when fix.use_agent is false.

CAUTION: This command executes system commands on remote hosts.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := GetLogger()
		cfg := GetConfig()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, shutdown, err := initFixer(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize fixer: %w", err)
		}
		defer shutdown()

		results, err := f.Fix(ctx, fixer.Request{
			TriggeredHost: args[0],
			TriggerID:     args[1],
			EventID:       args[2],
		})
		switch {
		case errors.Is(err, fixer.ErrUntrusted),
			errors.Is(err, fixer.ErrManuallyClosed),
			errors.Is(err, fixer.ErrUnknownEntity):
			// Refusals are expected outcomes of the action, not failures.
			log.Info("Fix not started", zap.String("reason", err.Error()))
			return nil
		case err != nil:
			return fmt.Errorf("fix failed: %w", err)
		}

		if err := f.WriteMetrics(); err != nil {
			log.Warn("Failed to write fix metrics", zap.Error(err))
		}
		log.Info("Fix operation completed",
			zap.String("actor", results.Actor),
			zap.Int("successful", results.Successful),
			zap.Int("failed", results.Failed),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fixCmd)
}
