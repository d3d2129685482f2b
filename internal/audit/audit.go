// Package audit annotates hosts with Vulners Linux audit reports.
package audit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	vulners "github.com/kidoz/go-vulners"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/logging"
	"github.com/kidoz/zabbix-vuln-matrix/internal/matrix"
	"github.com/kidoz/zabbix-vuln-matrix/internal/telemetry"
)

// Auditor runs the vulnerability audit for one host. Failures are recorded
// in the returned result, never raised.
type Auditor interface {
	Audit(ctx context.Context, rec matrix.HostRecord) matrix.AuditResult
}

// AuditFunc is the Vulners Linux audit call.
type AuditFunc func(ctx context.Context, os, version string, packages []string) (*vulners.AuditResult, error)

// VulnersAuditor calls the Vulners audit API once per host.
type VulnersAuditor struct {
	audit AuditFunc
	log   *zap.Logger
}

// NewVulnersAuditor creates a Vulners client whose transport is throttled by
// the API's request budget and guarded by a circuit breaker.
func NewVulnersAuditor(cfg *config.Config, log *zap.Logger) (*VulnersAuditor, error) {
	log = log.Named("audit")
	v := cfg.Vulners

	guard := newGuardTransport(
		http.DefaultTransport,
		time.Duration(v.MinDelay*float64(time.Second)),
		uint32(max(v.BreakerFailures, 1)),
		time.Duration(v.BreakerTimeout)*time.Second,
		log,
	)
	httpClient := &http.Client{
		Timeout:   time.Duration(cfg.Scan.Timeout) * time.Second,
		Transport: otelhttp.NewTransport(guard),
	}

	client, err := vulners.NewClient(v.APIKey,
		vulners.WithHTTPClient(httpClient),
		vulners.WithRateLimit(float64(v.RateLimit), v.RateLimit*2),
		vulners.WithBaseURL(v.Host),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vulners client: %w", err)
	}

	return NewAuditor(func(ctx context.Context, os, version string, packages []string) (*vulners.AuditResult, error) {
		return client.Audit().LinuxAudit(ctx, os, version, packages)
	}, log), nil
}

// NewAuditor wraps an audit call.
func NewAuditor(fn AuditFunc, log *zap.Logger) *VulnersAuditor {
	return &VulnersAuditor{audit: fn, log: log}
}

// Audit implements Auditor.
func (a *VulnersAuditor) Audit(ctx context.Context, rec matrix.HostRecord) matrix.AuditResult {
	ctx, span := telemetry.StartStage(ctx, "Auditor.Audit",
		attribute.String("host.name", rec.DisplayName),
		attribute.String("os", rec.OSFamily),
		attribute.Int("package.count", len(rec.Packages)),
	)
	defer span.End()

	res, err := a.audit(ctx, rec.OSFamily, rec.OSVersion, rec.Packages)
	if err != nil {
		span.RecordError(err)
		return matrix.Failed(fmt.Errorf("vulners audit failed: %w", err))
	}
	if res == nil {
		return matrix.Failed(errors.New("vulners audit returned no result"))
	}

	b := newReportBuilder(res.CVSSScore, res.CumulativeFix)
	for _, v := range res.Vulnerabilities {
		score := 0.0
		if v.CVSS != nil {
			score = v.CVSS.Score
		}
		b.add(v.Package, v.BulletinID, score, v.Fix)
	}
	span.SetAttributes(attribute.Float64("cvss.score", res.CVSSScore))
	return matrix.Succeeded(b.report())
}

// AuditAll annotates every record in place and returns how many failed.
// Each call is independent: a failed host never blocks the next one.
func AuditAll(ctx context.Context, a Auditor, records []matrix.HostRecord, observe func(time.Duration), log *zap.Logger) int {
	failed := 0
	for i := range records {
		rec := &records[i]
		start := time.Now()
		rec.Audit = a.Audit(ctx, *rec)
		if observe != nil {
			observe(time.Since(start))
		}

		fields := append(logging.Progress(i, len(records)), zap.String("host", rec.DisplayName))
		if rec.Audit.Status != matrix.AuditOK {
			failed++
			log.Warn("Can't receive data from Vulners", append(fields, zap.String("error", rec.Audit.Error))...)
			continue
		}
		log.Info("Successfully received data from Vulners", fields...)
	}
	return failed
}

// reportBuilder groups flat audit rows into the package → bulletin tree,
// keeping first-seen order at both levels.
type reportBuilder struct {
	r        *matrix.Report
	pkgIndex map[string]int
	bulIndex []map[string]int
}

func newReportBuilder(score float64, cumulativeFix string) *reportBuilder {
	return &reportBuilder{
		r: &matrix.Report{
			Score:         score,
			CumulativeFix: strings.ReplaceAll(cumulativeFix, ",", ""),
		},
		pkgIndex: make(map[string]int),
	}
}

func (b *reportBuilder) add(pkg, bulletin string, score float64, fix string) {
	pi, ok := b.pkgIndex[pkg]
	if !ok {
		pi = len(b.r.Packages)
		b.pkgIndex[pkg] = pi
		b.r.Packages = append(b.r.Packages, matrix.PackageNode{Name: pkg})
		b.bulIndex = append(b.bulIndex, make(map[string]int))
	}
	node := &b.r.Packages[pi]

	bi, ok := b.bulIndex[pi][bulletin]
	if !ok {
		bi = len(node.Bulletins)
		b.bulIndex[pi][bulletin] = bi
		node.Bulletins = append(node.Bulletins, matrix.BulletinNode{ID: bulletin})
	}
	bn := &node.Bulletins[bi]
	bn.Findings = append(bn.Findings, matrix.Finding{
		Package:    pkg,
		BulletinID: bulletin,
		Score:      score,
		Fix:        fix,
	})
}

func (b *reportBuilder) report() *matrix.Report { return b.r }
