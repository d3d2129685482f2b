package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/ini.v1"
)

// DefaultConfigPath is the default config path, matching legacy installs.
const DefaultConfigPath = "/opt/monitoring/zabbix-threat-control/ztc.conf"

// VulnersKeyLength is the length of a well-formed Vulners API key.
const VulnersKeyLength = 64

// configSearchPaths lists config file paths to try, in priority order.
var configSearchPaths = []string{
	"/opt/monitoring/zabbix-threat-control/ztc.conf", // legacy INI
	"/etc/ztc.yaml", // new YAML
	"/etc/ztc.conf", // alternate legacy INI
}

// FindConfigPath returns the first existing config file from the search paths.
// If none exist, it returns DefaultConfigPath (which will fail with a clear error).
func FindConfigPath() string {
	for _, path := range configSearchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return DefaultConfigPath
}

// Config holds all configuration values for ZTC
type Config struct {
	Zabbix    ZabbixConfig    `koanf:"zabbix"`
	Vulners   VulnersConfig   `koanf:"vulners"`
	Scan      ScanConfig      `koanf:"scan"`
	Fix       FixConfig       `koanf:"fix"`
	Snapshot  SnapshotConfig  `koanf:"snapshot"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Naming    NamingConfig    `koanf:"naming"`
}

// NamingConfig holds customizable names for virtual hosts, groups, dashboards, and actions.
// These match the [OPTIONAL] section keys in the legacy ztc.conf.
type NamingConfig struct {
	HostsHost             string `koanf:"hosts_host"`
	HostsVisibleName      string `koanf:"hosts_visible_name"`
	PackagesHost          string `koanf:"packages_host"`
	PackagesVisibleName   string `koanf:"packages_visible_name"`
	BulletinsHost         string `koanf:"bulletins_host"`
	BulletinsVisibleName  string `koanf:"bulletins_visible_name"`
	StatisticsHost        string `koanf:"statistics_host"`
	StatisticsVisibleName string `koanf:"statistics_visible_name"`
	GroupName             string `koanf:"group_name"`
	DashboardName         string `koanf:"dashboard_name"`
	ActionName            string `koanf:"action_name"`
}

// ZabbixConfig holds Zabbix connection settings
type ZabbixConfig struct {
	FrontURL    string `koanf:"front_url"`
	APIUser     string `koanf:"api_user"`
	APIPassword string `koanf:"api_password"`
	ServerFQDN  string `koanf:"server_fqdn"`
	ServerPort  int    `koanf:"server_port"`
	SenderPath  string `koanf:"sender_path"`
	GetPath     string `koanf:"get_path"`
	VerifySSL   bool   `koanf:"verify_ssl"`
	Timeout     int    `koanf:"timeout"`
}

// VulnersConfig holds Vulners API settings
type VulnersConfig struct {
	APIKey          string  `koanf:"api_key"`
	Host            string  `koanf:"host"`
	RateLimit       int     `koanf:"rate_limit"`
	MinDelay        float64 `koanf:"min_delay"`
	BreakerFailures int     `koanf:"breaker_failures"`
	BreakerTimeout  int     `koanf:"breaker_timeout"`
}

// ScanConfig holds scanning parameters
type ScanConfig struct {
	MinCVSS             float64           `koanf:"min_cvss"`
	OSReportTemplate    string            `koanf:"os_report_template"`
	OSReportVisibleName string            `koanf:"os_report_visible_name"`
	TemplateGroupName   string            `koanf:"template_group_name"`
	ReportScriptPath    string            `koanf:"report_script_path"`
	Timeout             int               `koanf:"timeout"`
	LLDDelay            int               `koanf:"lld_delay"`
	WorkDir             string            `koanf:"work_dir"`
	PackageMerge        string            `koanf:"package_merge"`
	OSAliases           map[string]string `koanf:"os_aliases"`
}

// FixConfig holds remediation dispatcher settings
type FixConfig struct {
	TrustedUsers []string `koanf:"trusted_users"`
	UseAgent     bool     `koanf:"use_agent"`
	SSHUser      string   `koanf:"ssh_user"`
	Command      string   `koanf:"command"`
}

// SnapshotConfig selects where the annotated host dataset is cached.
type SnapshotConfig struct {
	Backend     string `koanf:"backend"`
	Path        string `koanf:"path"`
	S3Endpoint  string `koanf:"s3_endpoint"`
	S3AccessKey string `koanf:"s3_access_key"`
	S3SecretKey string `koanf:"s3_secret_key"`
	S3Bucket    string `koanf:"s3_bucket"`
	S3Object    string `koanf:"s3_object"`
	S3UseSSL    bool   `koanf:"s3_use_ssl"`
}

// LoggingConfig holds log level and optional log file
type LoggingConfig struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
}

// TelemetryConfig holds OpenTelemetry and metrics settings
type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	MetricsFile  string `koanf:"metrics_file"`
	// FixMetricsFile receives the counters of the fix command.
	FixMetricsFile string `koanf:"fix_metrics_file"`
}

// Package merge policies for cross-host impact metadata.
const (
	MergeFirst = "first"
	MergeMax   = "max"
)

// Snapshot backends.
const (
	SnapshotFile = "file"
	SnapshotS3   = "s3"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Zabbix: ZabbixConfig{
			FrontURL:   "http://localhost",
			ServerFQDN: "localhost",
			ServerPort: 10051,
			SenderPath: "zabbix_sender",
			GetPath:    "zabbix_get",
			VerifySSL:  true,
			Timeout:    5,
		},
		Vulners: VulnersConfig{
			Host:            "https://vulners.com",
			RateLimit:       10,
			MinDelay:        2,
			BreakerFailures: 5,
			BreakerTimeout:  60,
		},
		Scan: ScanConfig{
			MinCVSS:             1.0,
			OSReportTemplate:    "tmpl.vulners.os-report",
			OSReportVisibleName: "Template Vulners OS-Report",
			TemplateGroupName:   "Templates",
			ReportScriptPath:    "/usr/local/bin/ztc report",
			Timeout:             30,
			LLDDelay:            300,
			WorkDir:             "/opt/monitoring/zabbix-threat-control",
			PackageMerge:        MergeFirst,
		},
		Fix: FixConfig{
			TrustedUsers: []string{"Admin"},
			UseAgent:     true,
			SSHUser:      "root",
			Command:      "/usr/local/bin/ztc fix",
		},
		Snapshot: SnapshotConfig{
			Backend:  SnapshotFile,
			S3Object: "ztc/dump.bin",
			S3UseSSL: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
		Naming: NamingConfig{
			HostsHost:             "vulners.hosts",
			HostsVisibleName:      "Vulners - Hosts",
			PackagesHost:          "vulners.packages",
			PackagesVisibleName:   "Vulners - Packages",
			BulletinsHost:         "vulners.bulletins",
			BulletinsVisibleName:  "Vulners - Bulletins",
			StatisticsHost:        "vulners.statistics",
			StatisticsVisibleName: "Vulners - Statistics",
			GroupName:             "Vulners",
			DashboardName:         "Vulners",
			ActionName:            "Vulners",
		},
	}
}

// Load reads configuration from a file, auto-detecting format by extension.
// .yaml/.yml → YAML (Koanf), .conf/.ini or anything else → legacy INI.
// A .env file next to the config (or in the working directory) is loaded
// first; environment variables (ZTC_ prefix) always override file values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return loadYAML(path)
	default:
		// .conf, .ini, or no extension → try INI (backwards compat)
		return loadINI(path)
	}
}

// loadDotEnv populates the process environment from .env files without
// overriding variables that are already set.
func loadDotEnv(configPath string) error {
	candidates := []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"}
	seen := make(map[string]bool)
	for _, p := range candidates {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("failed to load %s: %w", abs, err)
		}
	}
	return nil
}

// loadYAML loads config from a YAML file with Koanf.
func loadYAML(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	if err := loadEnvOverrides(k); err != nil {
		return nil, err
	}

	return unmarshalAndValidate(k)
}

// loadINI loads config from a legacy INI file (backwards compatible with
// legacy ztc.conf files).
func loadINI(path string) (*Config, error) {
	k, warnings, err := loadINIKoanf(path)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "WARNING: %s\n", w)
	}

	if err := loadEnvOverrides(k); err != nil {
		return nil, err
	}

	return unmarshalAndValidate(k)
}

// LoadINIWithWarnings reads a legacy INI file without env overrides and
// returns warnings for unrecognized keys. Used by migrate-config.
func LoadINIWithWarnings(path string) (*Config, []string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file not found: %s", path)
	}

	k, warnings, err := loadINIKoanf(path)
	if err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, warnings, nil
}

func loadINIKoanf(path string) (*koanf.Koanf, []string, error) {
	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse INI config file: %w", err)
	}

	m, warnings := iniToMap(iniFile)

	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, nil, err
	}

	if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
		return nil, nil, fmt.Errorf("failed to load INI values: %w", err)
	}

	return k, warnings, nil
}

// iniKeyMap maps INI key names (lowercased, no separators) to koanf key paths.
var iniKeyMap = map[string]string{
	// MANDATORY section
	"vulnersapikey":     "vulners.api_key",
	"zabbixapiuser":     "zabbix.api_user",
	"zabbixapipassword": "zabbix.api_password",
	// OPTIONAL section
	"zabbixfronturl":      "zabbix.front_url",
	"zabbixserverfqdn":    "zabbix.server_fqdn",
	"zabbixserverport":    "zabbix.server_port",
	"zabbixsenderpath":    "zabbix.sender_path", // Go alias
	"zabbixsender":        "zabbix.sender_path", // legacy key: ZabbixSender
	"zabbixgetpath":       "zabbix.get_path",    // Go alias
	"zabbixget":           "zabbix.get_path",    // legacy key: ZabbixGet
	"mincvss":             "scan.min_cvss",
	"osreporttemplate":    "scan.os_report_template",     // Go alias
	"templatehost":        "scan.os_report_template",     // legacy key: TemplateHost
	"templatevisiblename": "scan.os_report_visible_name", // legacy key: TemplateVisibleName
	"templategroupname":   "scan.template_group_name",    // legacy key: TemplateGroupName
	"workdir":             "scan.work_dir",
	"logfile":             "logging.file",
	"trustedzabbixusers":  "fix.trusted_users",
	"usezabbixagenttofix": "fix.use_agent",
	"sshuser":             "fix.ssh_user",
	// OPTIONAL section, naming
	"hostshost":             "naming.hosts_host",
	"hostsvisiblename":      "naming.hosts_visible_name",
	"packageshost":          "naming.packages_host",
	"packagesvisiblename":   "naming.packages_visible_name",
	"bulletinshost":         "naming.bulletins_host",
	"bulletinsvisiblename":  "naming.bulletins_visible_name",
	"statisticshost":        "naming.statistics_host",
	"statisticsvisiblename": "naming.statistics_visible_name",
	"hostgroupname":         "naming.group_name",
	"dashboardname":         "naming.dashboard_name",
	"actionname":            "naming.action_name",
	// ADVANCED section
	"zabbixverifyssl":  "zabbix.verify_ssl", // Go alias
	"verifyssl":        "zabbix.verify_ssl", // legacy key: VerifySSL
	"vulnershost":      "vulners.host",
	"vulnersratelimit": "vulners.rate_limit",
	"timeout":          "scan.timeout",
	"llddelay":         "scan.lld_delay",
}

// legacyINIKeys lists INI keys that are recognized but have no
// Go equivalent. They produce a specific warning instead of "unrecognized".
var legacyINIKeys = map[string]bool{
	"vulnersproxyhost":        true, // proxy not implemented
	"vulnersproxyport":        true, // proxy not implemented
	"workers":                 true, // scans are sequential
	"hostsapplicationname":    true, // Zabbix < 5.2 concept, deprecated
	"statisticsmacrosname":    true, // hardcoded in Go
	"statisticsmacrosvalue":   true, // hardcoded in Go
	"templatemacrosname":      true, // hardcoded in Go
	"templatemacrosvalue":     true, // replaced by scan.report_script_path
	"templateapplicationname": true, // Zabbix < 5.2 concept, deprecated
}

// debugLevels maps the legacy DebugLevel integer to a zap level name.
var debugLevels = map[string]string{
	"0": "error",
	"1": "info",
	"2": "debug",
}

// iniToMap maps legacy INI section/key names to the nested koanf key namespace.
// It returns the mapped values and a slice of warnings for unrecognized keys.
func iniToMap(f *ini.File) (map[string]interface{}, []string) {
	m := make(map[string]interface{})
	var warnings []string

	for _, section := range f.Sections() {
		for _, key := range section.Keys() {
			normalised := strings.ToLower(key.Name())
			switch {
			case normalised == "debuglevel":
				if level, ok := debugLevels[strings.TrimSpace(key.Value())]; ok {
					m["logging.level"] = level
				} else {
					warnings = append(warnings, fmt.Sprintf("invalid INI value [%s] %s = %q (skipped)", section.Name(), key.Name(), key.Value()))
				}
			case normalised == "trustedzabbixusers":
				m[iniKeyMap[normalised]] = splitList(key.Value())
			case iniKeyMap[normalised] != "":
				m[iniKeyMap[normalised]] = key.Value()
			case legacyINIKeys[normalised]:
				warnings = append(warnings, fmt.Sprintf("obsolete INI key [%s] %s is no longer supported (skipped)", section.Name(), key.Name()))
			case section.Name() != "DEFAULT":
				warnings = append(warnings, fmt.Sprintf("unrecognized INI key [%s] %s (skipped)", section.Name(), key.Name()))
			}
		}
	}

	return m, warnings
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// --- helpers ---

func loadDefaults(k *koanf.Koanf) error {
	defaults := DefaultConfig()
	return k.Load(confmap.Provider(map[string]interface{}{
		"zabbix.front_url":               defaults.Zabbix.FrontURL,
		"zabbix.server_fqdn":             defaults.Zabbix.ServerFQDN,
		"zabbix.server_port":             defaults.Zabbix.ServerPort,
		"zabbix.sender_path":             defaults.Zabbix.SenderPath,
		"zabbix.get_path":                defaults.Zabbix.GetPath,
		"zabbix.verify_ssl":              defaults.Zabbix.VerifySSL,
		"zabbix.timeout":                 defaults.Zabbix.Timeout,
		"vulners.host":                   defaults.Vulners.Host,
		"vulners.rate_limit":             defaults.Vulners.RateLimit,
		"vulners.min_delay":              defaults.Vulners.MinDelay,
		"vulners.breaker_failures":       defaults.Vulners.BreakerFailures,
		"vulners.breaker_timeout":        defaults.Vulners.BreakerTimeout,
		"scan.min_cvss":                  defaults.Scan.MinCVSS,
		"scan.os_report_template":        defaults.Scan.OSReportTemplate,
		"scan.os_report_visible_name":    defaults.Scan.OSReportVisibleName,
		"scan.template_group_name":       defaults.Scan.TemplateGroupName,
		"scan.report_script_path":        defaults.Scan.ReportScriptPath,
		"scan.timeout":                   defaults.Scan.Timeout,
		"scan.lld_delay":                 defaults.Scan.LLDDelay,
		"scan.work_dir":                  defaults.Scan.WorkDir,
		"scan.package_merge":             defaults.Scan.PackageMerge,
		"fix.trusted_users":              defaults.Fix.TrustedUsers,
		"fix.use_agent":                  defaults.Fix.UseAgent,
		"fix.ssh_user":                   defaults.Fix.SSHUser,
		"fix.command":                    defaults.Fix.Command,
		"snapshot.backend":               defaults.Snapshot.Backend,
		"snapshot.s3_object":             defaults.Snapshot.S3Object,
		"snapshot.s3_use_ssl":            defaults.Snapshot.S3UseSSL,
		"logging.level":                  defaults.Logging.Level,
		"telemetry.enabled":              defaults.Telemetry.Enabled,
		"naming.hosts_host":              defaults.Naming.HostsHost,
		"naming.hosts_visible_name":      defaults.Naming.HostsVisibleName,
		"naming.packages_host":           defaults.Naming.PackagesHost,
		"naming.packages_visible_name":   defaults.Naming.PackagesVisibleName,
		"naming.bulletins_host":          defaults.Naming.BulletinsHost,
		"naming.bulletins_visible_name":  defaults.Naming.BulletinsVisibleName,
		"naming.statistics_host":         defaults.Naming.StatisticsHost,
		"naming.statistics_visible_name": defaults.Naming.StatisticsVisibleName,
		"naming.group_name":              defaults.Naming.GroupName,
		"naming.dashboard_name":          defaults.Naming.DashboardName,
		"naming.action_name":             defaults.Naming.ActionName,
	}, "."), nil)
}

func loadEnvOverrides(k *koanf.Koanf) error {
	// ZTC_ZABBIX_FRONT_URL → zabbix.front_url
	return k.Load(env.Provider("ZTC_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "ZTC_")
		s = strings.ToLower(s)
		if idx := strings.Index(s, "_"); idx >= 0 {
			return s[:idx] + "." + s[idx+1:]
		}
		return s
	}), nil)
}

func unmarshalAndValidate(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that Zabbix connection fields are set and values are in range.
// It does not require vulners.api_key; only scan needs it, and it is
// checked there by ValidateVulnersKey().
func (c *Config) Validate() error {
	var errs []error

	// Zabbix connection (always required)
	if c.Zabbix.APIUser == "" {
		errs = append(errs, fmt.Errorf("zabbix.api_user is required"))
	}
	if c.Zabbix.APIPassword == "" {
		errs = append(errs, fmt.Errorf("zabbix.api_password is required"))
	}

	// Range checks
	if c.Zabbix.ServerPort < 1 || c.Zabbix.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("zabbix.server_port must be between 1 and 65535, got %d", c.Zabbix.ServerPort))
	}
	if c.Zabbix.FrontURL != "" {
		u, err := url.Parse(c.Zabbix.FrontURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("zabbix.front_url must be a valid URL with scheme and host"))
		}
	}
	if c.Zabbix.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("zabbix.timeout must be greater than 0, got %d", c.Zabbix.Timeout))
	}
	if c.Scan.MinCVSS < 0 || c.Scan.MinCVSS > 10 {
		errs = append(errs, fmt.Errorf("scan.min_cvss must be between 0.0 and 10.0, got %g", c.Scan.MinCVSS))
	}
	if c.Scan.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("scan.timeout must be greater than 0, got %d", c.Scan.Timeout))
	}
	if c.Scan.LLDDelay < 0 {
		errs = append(errs, fmt.Errorf("scan.lld_delay must be >= 0, got %d", c.Scan.LLDDelay))
	}
	if c.Scan.WorkDir == "" {
		errs = append(errs, fmt.Errorf("scan.work_dir is required"))
	}
	switch c.Scan.PackageMerge {
	case MergeFirst, MergeMax:
	default:
		errs = append(errs, fmt.Errorf("scan.package_merge must be %q or %q, got %q", MergeFirst, MergeMax, c.Scan.PackageMerge))
	}
	// go-vulners treats 0 as its own default, so 0 would silently ignore the setting.
	if c.Vulners.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("vulners.rate_limit must be greater than 0, got %d", c.Vulners.RateLimit))
	}
	if c.Vulners.MinDelay < 0 {
		errs = append(errs, fmt.Errorf("vulners.min_delay must be >= 0, got %g", c.Vulners.MinDelay))
	}
	if c.Vulners.BreakerFailures <= 0 {
		errs = append(errs, fmt.Errorf("vulners.breaker_failures must be greater than 0, got %d", c.Vulners.BreakerFailures))
	}
	switch c.Snapshot.Backend {
	case SnapshotFile:
	case SnapshotS3:
		if c.Snapshot.S3Endpoint == "" || c.Snapshot.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("snapshot.s3_endpoint and snapshot.s3_bucket are required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("snapshot.backend must be %q or %q, got %q", SnapshotFile, SnapshotS3, c.Snapshot.Backend))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// ValidateVulnersKey checks that the Vulners API key is set and well-formed.
// Call this in commands that need the Vulners API (scan).
func (c *Config) ValidateVulnersKey() error {
	if c.Vulners.APIKey == "" {
		return fmt.Errorf("vulners.api_key is required (set in config file or ZTC_VULNERS_API_KEY env var)")
	}
	if len(c.Vulners.APIKey) != VulnersKeyLength {
		return fmt.Errorf("vulners.api_key has invalid format: expected %d characters, got %d", VulnersKeyLength, len(c.Vulners.APIKey))
	}
	return nil
}

// ZabbixAPIURL returns the full Zabbix API URL
func (c *Config) ZabbixAPIURL() string {
	return strings.TrimRight(c.Zabbix.FrontURL, "/") + "/api_jsonrpc.php"
}

// WorkFile returns the path of a file inside the work directory.
func (c *Config) WorkFile(name string) string {
	return filepath.Join(c.Scan.WorkDir, name)
}

// SnapshotPath returns the local snapshot file path.
func (c *Config) SnapshotPath() string {
	if c.Snapshot.Path != "" {
		return c.Snapshot.Path
	}
	return c.WorkFile("dump.bin")
}

// IsVirtualHost reports whether name is one of the aggregate virtual hosts.
func (c *Config) IsVirtualHost(name string) bool {
	n := c.Naming
	switch name {
	case n.HostsHost, n.PackagesHost, n.BulletinsHost, n.StatisticsHost:
		return true
	}
	return false
}
