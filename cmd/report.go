package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kidoz/zabbix-vuln-matrix/internal/osreport"
	"github.com/kidoz/zabbix-vuln-matrix/internal/push"
)

const reportTimeout = 60 * time.Second

var reportCmd = &cobra.Command{
	Use:   "report os|version|package",
	Short: "Print the OS name, version or installed packages of this host",
	Long: `Collector used by the OS-Report template items on monitored hosts.

  report os       OS family, e.g. debian or centos
  report version  OS version, e.g. 12 or 7
  report package  installed packages, one per line

This command does not read the ztc config file.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{osreport.WhatOS, osreport.WhatVersion, osreport.WhatPackages},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()

		r := osreport.NewReporter(osreport.System{FS: os.DirFS("/"), Runner: push.ExecRunner{}})
		out, err := r.Report(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	},
}

var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ztc version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "ztc", version)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd, versionCmd)
}
