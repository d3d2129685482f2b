// Package scanner runs one scan: enrich, audit, correlate, emit and push.
package scanner

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/audit"
	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/inventory"
	"github.com/kidoz/zabbix-vuln-matrix/internal/lld"
	"github.com/kidoz/zabbix-vuln-matrix/internal/matrix"
	"github.com/kidoz/zabbix-vuln-matrix/internal/push"
	"github.com/kidoz/zabbix-vuln-matrix/internal/snapshot"
	"github.com/kidoz/zabbix-vuln-matrix/internal/telemetry"
)

// Output file names inside scan.work_dir.
const (
	LLDFile  = "lld.zbx"
	DataFile = "data.zbx"
)

// ScanOptions are the per-run switches of the scan command.
type ScanOptions struct {
	Limit   int      // 0 = unlimited
	HostIDs []string // empty = all
	NoPush  bool     // log the sender commands instead of running them
	Dump    bool     // save the annotated dataset to the snapshot store
	Resume  bool     // load the snapshot instead of fetching
}

// ScanResults summarises a finished run.
type ScanResults struct {
	*matrix.Result

	Fetched     int // hosts returned by the platform, or loaded from the snapshot
	Valid       int
	AuditFailed int
	Resumed     bool
	LLDFile     string
	DataFile    string
}

// Scanner wires the pipeline stages together. Every stage runs sequentially.
type Scanner struct {
	cfg      *config.Config
	enricher *inventory.Enricher
	auditor  audit.Auditor
	store    snapshot.Store
	engine   *matrix.Engine
	emitter  *lld.Emitter
	pusher   *push.Pusher
	metrics  *telemetry.RunMetrics
	log      *zap.Logger
}

// New creates a scanner. It fails only on an unknown package merge policy.
func New(
	cfg *config.Config,
	enricher *inventory.Enricher,
	auditor audit.Auditor,
	store snapshot.Store,
	pusher *push.Pusher,
	metrics *telemetry.RunMetrics,
	log *zap.Logger,
) (*Scanner, error) {
	policy, err := matrix.ParseMergePolicy(cfg.Scan.PackageMerge)
	if err != nil {
		return nil, err
	}
	log = log.Named("scan")
	return &Scanner{
		cfg:      cfg,
		enricher: enricher,
		auditor:  auditor,
		store:    store,
		engine:   matrix.NewEngine(policy, log.Named("matrix")),
		emitter:  lld.NewEmitter(cfg.Naming),
		pusher:   pusher,
		metrics:  metrics,
		log:      log,
	}, nil
}

// Scan performs one run. Only setup failures, correlation contract
// violations and file write errors are returned; per-host problems are
// logged and counted.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResults, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "Scanner.Scan")
	defer span.End()

	out := &ScanResults{}
	records, err := s.collect(ctx, opts, out)
	if err != nil {
		return nil, err
	}

	audited := matrix.Audited(records)
	s.log.Info("Correlating", zap.Int("hosts", len(audited)))
	res, err := s.engine.Correlate(audited)
	if err != nil {
		return nil, fmt.Errorf("correlation failed: %w", err)
	}
	out.Result = res
	s.countCorrelation(res)

	span.SetAttributes(
		attribute.Int("hosts", len(res.Hosts)),
		attribute.Int("packages", len(res.Packages)),
		attribute.Int("bulletins", len(res.Bulletins)),
	)

	if len(res.Hosts) == 0 {
		s.log.Warn("There are no data in the host-matrix for further processing, skipping emit and push",
			zap.Int("skipped", len(res.Skipped)))
		if err := s.metrics.WriteTextfile(s.cfg.Telemetry.MetricsFile); err != nil {
			s.log.Warn("Failed to write run metrics", zap.Error(err))
		}
		return out, nil
	}

	out.LLDFile, out.DataFile, err = s.emit(ctx, res)
	if err != nil {
		return nil, err
	}

	if opts.NoPush {
		s.pusher.DryRun(out.LLDFile, out.DataFile)
	} else if err := s.pusher.Push(ctx, out.LLDFile, out.DataFile); err != nil {
		return nil, err
	}

	if err := s.metrics.WriteTextfile(s.cfg.Telemetry.MetricsFile); err != nil {
		s.log.Warn("Failed to write run metrics", zap.Error(err))
	}

	s.log.Info("Scan finished",
		zap.Int("hosts", len(res.Hosts)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("packages", len(res.Packages)),
		zap.Int("bulletins", len(res.Bulletins)),
		zap.Float64("median", res.Fleet.Median))
	return out, nil
}

// collect returns annotated records, either from the snapshot in resume
// mode or fetched fresh from Zabbix and Vulners.
func (s *Scanner) collect(ctx context.Context, opts ScanOptions, out *ScanResults) ([]matrix.HostRecord, error) {
	if opts.Resume {
		snap, err := s.store.Load(ctx)
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			s.log.Warn("Resume requested but no cached dataset found, fetching fresh data",
				zap.String("location", s.store.Location()))
		case err != nil:
			return nil, fmt.Errorf("failed to load cached dataset: %w", err)
		default:
			s.log.Info("Resuming from cached dataset, bypassing re-fetch",
				zap.Time("dated", snap.CreatedAt),
				zap.String("location", s.store.Location()),
				zap.Int("hosts", len(snap.Hosts)))
			out.Resumed = true
			out.Fetched = len(snap.Hosts)
			out.Valid = len(snap.Hosts)
			return snap.Hosts, nil
		}
	} else {
		// Only the object metadata is read; the dataset may be large.
		dated, err := s.store.Stat(ctx)
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
		case err != nil:
			s.log.Info("Ignoring unreadable cached dataset", zap.String("location", s.store.Location()), zap.Error(err))
		default:
			s.log.Info("Cached dataset present but not used, pass --resume to use it",
				zap.Time("dated", dated),
				zap.String("location", s.store.Location()))
		}
	}

	hosts, err := s.enricher.ListHosts(ctx, inventory.Selection{Limit: opts.Limit, HostIDs: opts.HostIDs})
	if err != nil {
		return nil, err
	}
	out.Fetched = len(hosts)
	if len(hosts) == 0 {
		s.log.Warn("No hosts linked to the OS-Report template",
			zap.String("template", s.cfg.Scan.OSReportTemplate))
	}

	records := s.enricher.Enrich(ctx, hosts)
	valid := s.enricher.Valid(records)
	out.Valid = len(valid)
	s.count(telemetry.StageEnrich, telemetry.OutcomeOK, len(valid))
	s.count(telemetry.StageEnrich, telemetry.OutcomeSkipped, len(records)-len(valid))

	s.log.Info("Fetching vulnerability data", zap.Int("hosts", len(valid)))
	out.AuditFailed = audit.AuditAll(ctx, s.auditor, valid, s.metrics.ObserveAudit, s.log)
	s.count(telemetry.StageAudit, telemetry.OutcomeOK, len(valid)-out.AuditFailed)
	s.count(telemetry.StageAudit, telemetry.OutcomeFailed, out.AuditFailed)

	if opts.Dump {
		if err := s.store.Save(ctx, snapshot.New(valid)); err != nil {
			return nil, fmt.Errorf("failed to dump dataset: %w", err)
		}
		s.log.Info("Dataset dumped", zap.String("location", s.store.Location()), zap.Int("hosts", len(valid)))
	}
	return valid, nil
}

// emit writes the discovery and data files into the work directory.
func (s *Scanner) emit(ctx context.Context, res *matrix.Result) (string, string, error) {
	_, span := telemetry.Tracer().Start(ctx, "Scanner.emit")
	defer span.End()

	discovery, err := s.emitter.Discovery(res)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode discovery data: %w", err)
	}
	lldFile := s.cfg.WorkFile(LLDFile)
	if err := lld.WriteFile(lldFile, discovery); err != nil {
		return "", "", err
	}

	dataFile := s.cfg.WorkFile(DataFile)
	if err := lld.WriteFile(dataFile, s.emitter.Metrics(res)); err != nil {
		return "", "", err
	}
	s.log.Debug("Files written", zap.String("lld", lldFile), zap.String("data", dataFile))
	return lldFile, dataFile, nil
}

func (s *Scanner) countCorrelation(res *matrix.Result) {
	s.count(telemetry.StageCorrelate, telemetry.OutcomeOK, len(res.Hosts))
	s.count(telemetry.StageCorrelate, telemetry.OutcomeSkipped, len(res.Skipped))
	f := res.Fleet
	s.metrics.SetFleet(f.Count, f.Median, f.Mean, f.Max, f.Min)
}

func (s *Scanner) count(stage, outcome string, n int) {
	for range n {
		s.metrics.Host(stage, outcome)
	}
}
