// Package inventory turns the monitoring platform's host list and OS-report
// items into HostRecords ready for auditing.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/logging"
	"github.com/kidoz/zabbix-vuln-matrix/internal/matrix"
	"github.com/kidoz/zabbix-vuln-matrix/internal/telemetry"
	"github.com/kidoz/zabbix-vuln-matrix/internal/zabbix"
)

// ErrInvalidHost marks a host whose inventory cannot be audited.
var ErrInvalidHost = errors.New("invalid host inventory")

// MinPackages is the exclusive lower bound on the package count of a valid host.
const MinPackages = 5

// Platform is the part of the Zabbix API the enricher reads.
type Platform interface {
	GetHostsWithTemplate(ctx context.Context, templateName string) ([]zabbix.Host, error)
	GetHostItems(ctx context.Context, hostID, keyPattern string) ([]zabbix.Item, error)
}

// Selection narrows the host list.
type Selection struct {
	Limit   int      // 0 = unlimited
	HostIDs []string // empty = all
}

// Enricher fetches hosts and their OS inventory.
type Enricher struct {
	platform Platform
	template string
	aliases  map[string]string
	log      *zap.Logger
}

// NewEnricher creates an enricher reading hosts linked to the configured
// OS-report template.
func NewEnricher(cfg *config.Config, platform Platform, log *zap.Logger) *Enricher {
	return &Enricher{
		platform: platform,
		template: cfg.Scan.OSReportTemplate,
		aliases:  Aliases(cfg.Scan.OSAliases),
		log:      log.Named("inventory"),
	}
}

// ListHosts returns the hosts to scan. A failure here is a setup failure.
func (e *Enricher) ListHosts(ctx context.Context, sel Selection) ([]zabbix.Host, error) {
	hosts, err := e.platform.GetHostsWithTemplate(ctx, e.template)
	if err != nil {
		return nil, fmt.Errorf("failed to get hosts: %w", err)
	}
	e.log.Info("Received hosts for processing", zap.Int("count", len(hosts)))

	if len(sel.HostIDs) > 0 {
		wanted := make(map[string]bool, len(sel.HostIDs))
		for _, id := range sel.HostIDs {
			wanted[id] = true
		}
		filtered := hosts[:0:0]
		for _, h := range hosts {
			if wanted[h.HostID] {
				filtered = append(filtered, h)
			}
		}
		hosts = filtered
		e.log.Info("Filtered to specific hosts", zap.Int("count", len(hosts)))
	}

	if sel.Limit > 0 && len(hosts) > sel.Limit {
		hosts = hosts[:sel.Limit]
		e.log.Info("Fetching data is limited", zap.Int("limit", sel.Limit))
	}
	return hosts, nil
}

// Enrich builds one record per host. A host whose items cannot be read keeps
// empty inventory, so Validate rejects it later; the batch always continues.
func (e *Enricher) Enrich(ctx context.Context, hosts []zabbix.Host) []matrix.HostRecord {
	ctx, span := telemetry.Tracer().Start(ctx, "Enricher.Enrich")
	defer span.End()

	records := make([]matrix.HostRecord, 0, len(hosts))
	for i, h := range hosts {
		rec := matrix.HostRecord{HostID: h.HostID, Name: h.Host, DisplayName: h.Name}
		progress := append(logging.Progress(i, len(hosts)), zap.String("host", h.Name))

		items, err := e.platform.GetHostItems(ctx, h.HostID, zabbix.ReportScriptMacro)
		if err != nil {
			e.log.Warn("Skip, can't get additional data about host",
				append(progress, zap.String("hostid", h.HostID), zap.Error(err))...)
			records = append(records, rec)
			continue
		}

		for _, item := range items {
			switch item.Name {
			case zabbix.ItemOSName:
				rec.OSFamily = NormalizeOS(item.Value, e.aliases)
			case zabbix.ItemOSVersion:
				rec.OSVersion = strings.TrimSpace(item.Value)
			case zabbix.ItemOSPackages:
				rec.Packages = ParsePackageList(item.Value)
			}
		}
		e.log.Debug("Successfully received extended data", progress...)
		records = append(records, rec)
	}
	return records
}

// Valid keeps the records that pass Validate and logs the rest.
func (e *Enricher) Valid(records []matrix.HostRecord) []matrix.HostRecord {
	valid := make([]matrix.HostRecord, 0, len(records))
	for _, r := range records {
		if err := Validate(r); err != nil {
			e.log.Info("Excluded host",
				zap.String("host", r.DisplayName),
				zap.String("os", r.OSFamily),
				zap.String("version", r.OSVersion),
				zap.Int("packages", len(r.Packages)),
				zap.Error(err))
			continue
		}
		valid = append(valid, r)
	}
	e.log.Info("Checked inventory",
		zap.Int("valid", len(valid)), zap.Int("removed", len(records)-len(valid)))
	return valid
}

// Validate reports whether a record can be audited: it needs an OS family, a
// numeric non-zero OS version and more than MinPackages packages.
func Validate(r matrix.HostRecord) error {
	if r.OSFamily == "" {
		return fmt.Errorf("%w: empty OS", ErrInvalidHost)
	}
	v, err := strconv.ParseFloat(r.OSVersion, 64)
	if err != nil {
		return fmt.Errorf("%w: OS version %q is not numeric", ErrInvalidHost, r.OSVersion)
	}
	if v == 0 {
		return fmt.Errorf("%w: OS version is zero", ErrInvalidHost)
	}
	if len(r.Packages) <= MinPackages {
		return fmt.Errorf("%w: %d packages", ErrInvalidHost, len(r.Packages))
	}
	return nil
}

// ParsePackageList splits the OS - Packages item value into one entry per
// non-blank line.
func ParsePackageList(pkgList string) []string {
	var packages []string
	for line := range strings.SplitSeq(pkgList, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		packages = append(packages, line)
	}
	return packages
}
