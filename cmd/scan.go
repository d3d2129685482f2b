package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/scanner"
)

var (
	scanLimit   int
	scanNoPush  bool
	scanDump    bool
	scanResume  bool
	scanHostIDs []string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan hosts for vulnerabilities",
	Long: `Scan Zabbix hosts for security vulnerabilities using the Vulners API.

This command:
1. Fetches hosts linked to the OS-Report template from Zabbix
2. Reads their OS name, version and installed packages
3. Audits every host with the Vulners API
4. Correlates findings by host, package and bulletin
5. Writes LLD and metric files and sends them with zabbix_sender

Use --dump to save the audited hosts and --resume to reuse them on the
next run without calling Zabbix or Vulners.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := GetLogger()
		cfg := GetConfig()

		if err := cfg.ValidateVulnersKey(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, shutdown, err := initScanner(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize scanner: %w", err)
		}
		defer shutdown()

		log.Info("Starting vulnerability scan...")
		results, err := s.Scan(ctx, scanner.ScanOptions{
			Limit:   scanLimit,
			HostIDs: scanHostIDs,
			NoPush:  scanNoPush,
			Dump:    scanDump,
			Resume:  scanResume,
		})
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		log.Info("Scan completed",
			zap.Int("hosts_fetched", results.Fetched),
			zap.Int("hosts_valid", results.Valid),
			zap.Int("audit_failed", results.AuditFailed),
			zap.Int("hosts_correlated", len(results.Hosts)),
			zap.Int("packages", len(results.Packages)),
			zap.Int("bulletins", len(results.Bulletins)),
			zap.Bool("resumed", results.Resumed),
		)
		return nil
	},
}

func init() {
	scanCmd.Flags().IntVar(&scanLimit, "limit", 0, "limit number of hosts to scan (0 = unlimited)")
	scanCmd.Flags().BoolVar(&scanNoPush, "nopush", false, "write the data files but do not send them to Zabbix")
	scanCmd.Flags().BoolVar(&scanDump, "dump", false, "save the audited hosts to the snapshot store")
	scanCmd.Flags().BoolVar(&scanResume, "resume", false, "load audited hosts from the snapshot store instead of fetching")
	scanCmd.Flags().StringSliceVar(&scanHostIDs, "hosts", nil, "specific host IDs to scan (comma-separated)")

	rootCmd.AddCommand(scanCmd)
}
