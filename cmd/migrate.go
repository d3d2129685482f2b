package cmd

import (
	"bytes"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
)

var (
	migrateIn    string
	migrateOut   string
	migrateForce bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-config",
	Short: "Convert a legacy INI config to YAML",
	Long: `Read a legacy ztc.conf INI file and write the
equivalent YAML config. Values equal to their defaults are left out.

Use --out - to print the result instead of writing a file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, warnings, err := config.LoadINIWithWarnings(migrateIn)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "WARNING: %s\n", w)
		}

		out, err := renderYAML(cfg)
		if err != nil {
			return err
		}

		if migrateOut == "-" {
			_, err = os.Stdout.Write(out)
			return err
		}
		if _, err := os.Stat(migrateOut); err == nil && !migrateForce {
			return fmt.Errorf("%s already exists, pass --force to overwrite", migrateOut)
		}
		if err := os.WriteFile(migrateOut, out, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", migrateOut, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", migrateOut)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVarP(&migrateIn, "in", "i", config.DefaultConfigPath, "legacy INI config to read")
	migrateCmd.Flags().StringVarP(&migrateOut, "out", "o", "/etc/ztc.yaml", "YAML config to write, - for stdout")
	migrateCmd.Flags().BoolVarP(&migrateForce, "force", "f", false, "overwrite an existing output file")

	rootCmd.AddCommand(migrateCmd)
}

type yamlKey struct {
	name     string
	value    any
	def      any
	required bool
}

type yamlSection struct {
	name string
	keys []yamlKey
}

func configSections(cfg, def *config.Config) []yamlSection {
	return []yamlSection{
		{"zabbix", []yamlKey{
			{"front_url", cfg.Zabbix.FrontURL, def.Zabbix.FrontURL, true},
			{"api_user", cfg.Zabbix.APIUser, def.Zabbix.APIUser, true},
			{"api_password", cfg.Zabbix.APIPassword, def.Zabbix.APIPassword, true},
			{"server_fqdn", cfg.Zabbix.ServerFQDN, def.Zabbix.ServerFQDN, false},
			{"server_port", cfg.Zabbix.ServerPort, def.Zabbix.ServerPort, false},
			{"sender_path", cfg.Zabbix.SenderPath, def.Zabbix.SenderPath, false},
			{"get_path", cfg.Zabbix.GetPath, def.Zabbix.GetPath, false},
			{"verify_ssl", cfg.Zabbix.VerifySSL, def.Zabbix.VerifySSL, false},
			{"timeout", cfg.Zabbix.Timeout, def.Zabbix.Timeout, false},
		}},
		{"vulners", []yamlKey{
			{"api_key", cfg.Vulners.APIKey, def.Vulners.APIKey, true},
			{"host", cfg.Vulners.Host, def.Vulners.Host, false},
			{"rate_limit", cfg.Vulners.RateLimit, def.Vulners.RateLimit, false},
		}},
		{"scan", []yamlKey{
			{"min_cvss", cfg.Scan.MinCVSS, def.Scan.MinCVSS, false},
			{"os_report_template", cfg.Scan.OSReportTemplate, def.Scan.OSReportTemplate, false},
			{"os_report_visible_name", cfg.Scan.OSReportVisibleName, def.Scan.OSReportVisibleName, false},
			{"template_group_name", cfg.Scan.TemplateGroupName, def.Scan.TemplateGroupName, false},
			{"timeout", cfg.Scan.Timeout, def.Scan.Timeout, false},
			{"lld_delay", cfg.Scan.LLDDelay, def.Scan.LLDDelay, false},
			{"work_dir", cfg.Scan.WorkDir, def.Scan.WorkDir, false},
		}},
		{"fix", []yamlKey{
			{"trusted_users", cfg.Fix.TrustedUsers, def.Fix.TrustedUsers, false},
			{"use_agent", cfg.Fix.UseAgent, def.Fix.UseAgent, false},
			{"ssh_user", cfg.Fix.SSHUser, def.Fix.SSHUser, false},
		}},
		{"logging", []yamlKey{
			{"level", cfg.Logging.Level, def.Logging.Level, false},
			{"file", cfg.Logging.File, def.Logging.File, false},
		}},
		{"naming", []yamlKey{
			{"hosts_host", cfg.Naming.HostsHost, def.Naming.HostsHost, false},
			{"hosts_visible_name", cfg.Naming.HostsVisibleName, def.Naming.HostsVisibleName, false},
			{"packages_host", cfg.Naming.PackagesHost, def.Naming.PackagesHost, false},
			{"packages_visible_name", cfg.Naming.PackagesVisibleName, def.Naming.PackagesVisibleName, false},
			{"bulletins_host", cfg.Naming.BulletinsHost, def.Naming.BulletinsHost, false},
			{"bulletins_visible_name", cfg.Naming.BulletinsVisibleName, def.Naming.BulletinsVisibleName, false},
			{"statistics_host", cfg.Naming.StatisticsHost, def.Naming.StatisticsHost, false},
			{"statistics_visible_name", cfg.Naming.StatisticsVisibleName, def.Naming.StatisticsVisibleName, false},
			{"group_name", cfg.Naming.GroupName, def.Naming.GroupName, false},
			{"dashboard_name", cfg.Naming.DashboardName, def.Naming.DashboardName, false},
			{"action_name", cfg.Naming.ActionName, def.Naming.ActionName, false},
		}},
	}
}

// renderYAML writes cfg as YAML, leaving out optional values that equal
// their defaults.
func renderYAML(cfg *config.Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# Converted by ztc migrate-config\n")

	for _, section := range configSections(cfg, config.DefaultConfig()) {
		var lines []string
		for _, k := range section.keys {
			if !k.required && reflect.DeepEqual(k.value, k.def) {
				continue
			}
			v, err := yamlValue(k.value)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", section.name, k.name, err)
			}
			lines = append(lines, fmt.Sprintf("  %s: %s\n", k.name, v))
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "\n%s:\n", section.name)
		for _, l := range lines {
			buf.WriteString(l)
		}
	}
	return buf.Bytes(), nil
}

func yamlValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return yamlQuote(t), nil
	case int:
		return strconv.Itoa(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	case []string:
		items := make([]string, len(t))
		for i, s := range t {
			items[i] = yamlQuote(s)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}

var yamlReserved = []string{"true", "false", "yes", "no", "on", "off", "null", "~"}

// yamlQuote double-quotes s when it would not survive as a plain scalar.
func yamlQuote(s string) string {
	needs := s == "" ||
		strings.TrimSpace(s) != s ||
		strings.ContainsAny(s, ":#\"'{}[],&*!|>%@`") ||
		strings.HasPrefix(s, "-") || strings.HasPrefix(s, "?") ||
		slices.Contains(yamlReserved, strings.ToLower(s)) ||
		isNumber(s)
	if !needs {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
