// Package agent2 exposes the latest correlation results to Zabbix Agent 2 as
// a loadable plugin. Results are computed from the scan snapshot, so the
// plugin never calls Zabbix or Vulners itself.
package agent2

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.zabbix.com/sdk/plugin"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/lld"
	"github.com/kidoz/zabbix-vuln-matrix/internal/matrix"
	"github.com/kidoz/zabbix-vuln-matrix/internal/snapshot"
)

// Name is the plugin name used in Plugins.<Name>.* agent options.
const Name = "VulnersThreatControl"

// DefaultScanInterval is the default seconds between snapshot reloads.
const DefaultScanInterval = 3600

// Exported item keys.
const (
	KeyHostScore        = "vulners.host.score"
	KeyPackageAffected  = "vulners.package.affected"
	KeyBulletinAffected = "vulners.bulletin.affected"
	KeyStats            = "vulners.stats"
)

// Metrics lists key/description pairs for plugin.RegisterMetrics.
var Metrics = []string{
	lld.HostsDiscoveryKey, "Returns LLD JSON for hosts.",
	lld.PackagesDiscoveryKey, "Returns LLD JSON for packages.",
	lld.BulletinsDiscoveryKey, "Returns LLD JSON for bulletins.",
	KeyHostScore, "Returns the CVSS score of a host.",
	KeyPackageAffected, "Returns the number of hosts affected by a package.",
	KeyBulletinAffected, "Returns the number of hosts affected by a bulletin.",
	KeyStats, "Returns fleet score statistics: median, mean, max, min or count.",
}

// ErrNoData is returned by Export before the first snapshot is loaded.
var ErrNoData = errors.New("no scan data available yet")

// ZTCPlugin implements Configurator, Runner and Exporter for Zabbix Agent 2.
type ZTCPlugin struct {
	plugin.Base

	cfg          *config.Config
	scanInterval int
	store        snapshot.Store
	cache        *ResultCache

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPlugin creates a new ZTCPlugin instance.
func NewPlugin() *ZTCPlugin {
	return &ZTCPlugin{
		cfg:          config.DefaultConfig(),
		cache:        NewResultCache(),
		scanInterval: DefaultScanInterval,
	}
}

// --- Configurator ---

// Configure is called by Agent 2 to pass config options.
func (p *ZTCPlugin) Configure(_ *plugin.GlobalOptions, privateOptions any) {
	// privateOptions is a map[string]string from the agent2 config file
	// (Plugins.VulnersThreatControl.* keys).
	opts, ok := privateOptions.(map[string]string)
	if !ok {
		p.Errf("unexpected privateOptions type: %T", privateOptions)
		return
	}
	cfg, interval := applyOptions(config.DefaultConfig(), opts)
	p.cfg = cfg
	p.scanInterval = interval
}

func applyOptions(cfg *config.Config, opts map[string]string) (*config.Config, int) {
	fields := map[string]*string{
		"WorkDir":         &cfg.Scan.WorkDir,
		"PackageMerge":    &cfg.Scan.PackageMerge,
		"SnapshotBackend": &cfg.Snapshot.Backend,
		"SnapshotPath":    &cfg.Snapshot.Path,
		"S3Endpoint":      &cfg.Snapshot.S3Endpoint,
		"S3AccessKey":     &cfg.Snapshot.S3AccessKey,
		"S3SecretKey":     &cfg.Snapshot.S3SecretKey,
		"S3Bucket":        &cfg.Snapshot.S3Bucket,
		"S3Object":        &cfg.Snapshot.S3Object,
	}
	for k, dst := range fields {
		if v, ok := opts[k]; ok {
			*dst = v
		}
	}
	if v, ok := opts["S3UseSSL"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Snapshot.S3UseSSL = b
		}
	}

	interval := DefaultScanInterval
	if v, ok := opts["ScanInterval"]; ok {
		if si, err := strconv.Atoi(v); err == nil && si > 0 {
			interval = si
		}
	}
	return cfg, interval
}

// Validate checks the options before Configure.
func (p *ZTCPlugin) Validate(privateOptions any) error {
	opts, ok := privateOptions.(map[string]string)
	if !ok {
		return fmt.Errorf("unexpected privateOptions type: %T", privateOptions)
	}
	if v, ok := opts["ScanInterval"]; ok {
		if si, err := strconv.Atoi(v); err != nil || si <= 0 {
			return fmt.Errorf("Plugins.%s.ScanInterval must be a positive integer, got %q", Name, v)
		}
	}
	cfg, _ := applyOptions(config.DefaultConfig(), opts)
	if _, err := matrix.ParseMergePolicy(cfg.Scan.PackageMerge); err != nil {
		return fmt.Errorf("Plugins.%s.PackageMerge: %w", Name, err)
	}
	switch cfg.Snapshot.Backend {
	case config.SnapshotFile, "":
	case config.SnapshotS3:
		if cfg.Snapshot.S3Endpoint == "" || cfg.Snapshot.S3Bucket == "" {
			return fmt.Errorf("Plugins.%s.S3Endpoint and S3Bucket are required for the s3 backend", Name)
		}
	default:
		return fmt.Errorf("Plugins.%s.SnapshotBackend: unknown backend %q", Name, cfg.Snapshot.Backend)
	}
	return nil
}

// --- Runner ---

// Start is called when Agent 2 starts the plugin.
func (p *ZTCPlugin) Start() {
	p.Infof("starting %s plugin (reload interval: %ds)", Name, p.scanInterval)

	store, err := snapshot.NewStore(p.cfg, zap.NewNop())
	if err != nil {
		p.Errf("failed to open snapshot store: %s", err)
		return
	}
	p.store = store

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go p.reloadLoop(ctx)
}

// Stop is called when Agent 2 shuts down.
func (p *ZTCPlugin) Stop() {
	p.Infof("stopping %s plugin", Name)
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *ZTCPlugin) reloadLoop(ctx context.Context) {
	defer p.wg.Done()

	// Load immediately on start, then periodically.
	p.logReload(p.reload(ctx))

	ticker := time.NewTicker(time.Duration(p.scanInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.logReload(p.reload(ctx))
		case <-ctx.Done():
			return
		}
	}
}

func (p *ZTCPlugin) logReload(changed bool, err error) {
	switch {
	case err != nil:
		p.Errf("snapshot reload from %s failed: %s", p.store.Location(), err)
	case changed:
		res := p.cache.Result()
		p.Infof("loaded snapshot dated %s: %d hosts, %d packages, %d bulletins",
			p.cache.Dated().Format(time.RFC3339), len(res.Hosts), len(res.Packages), len(res.Bulletins))
	}
}

// reload correlates the stored snapshot when it is newer than the cached
// result. It reports whether the cache changed.
func (p *ZTCPlugin) reload(ctx context.Context) (bool, error) {
	snap, err := p.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if p.cache.Result() != nil && !snap.CreatedAt.After(p.cache.Dated()) {
		return false, nil
	}

	policy, err := matrix.ParseMergePolicy(p.cfg.Scan.PackageMerge)
	if err != nil {
		return false, err
	}
	res, err := matrix.NewEngine(policy, nil).Correlate(matrix.Audited(snap.Hosts))
	if err != nil {
		return false, err
	}

	discovery := make(map[string]string, 3)
	if discovery[lld.HostsDiscoveryKey], err = lld.Encode(lld.HostEntries(res.Hosts)); err != nil {
		return false, err
	}
	if discovery[lld.PackagesDiscoveryKey], err = lld.Encode(lld.PackageEntries(res.Packages)); err != nil {
		return false, err
	}
	if discovery[lld.BulletinsDiscoveryKey], err = lld.Encode(lld.BulletinEntries(res.Bulletins)); err != nil {
		return false, err
	}

	p.cache.Update(res, snap.CreatedAt, discovery)
	return true, nil
}

// --- Exporter ---

// Export handles item key requests from Agent 2.
func (p *ZTCPlugin) Export(key string, params []string, _ plugin.ContextProvider) (any, error) {
	res := p.cache.Result()
	if res == nil {
		return nil, ErrNoData
	}

	switch key {
	case lld.HostsDiscoveryKey, lld.PackagesDiscoveryKey, lld.BulletinsDiscoveryKey:
		doc, _ := p.cache.Discovery(key)
		return doc, nil

	case KeyHostScore:
		hostID, err := param(key, params)
		if err != nil {
			return nil, err
		}
		for _, h := range res.Hosts {
			if h.HostID == hostID {
				return h.RiskScore, nil
			}
		}
		return 0.0, nil

	case KeyPackageAffected:
		name, err := param(key, params)
		if err != nil {
			return nil, err
		}
		for _, pkg := range res.Packages {
			if pkg.Name == name {
				return pkg.Affected(), nil
			}
		}
		return 0, nil

	case KeyBulletinAffected:
		id, err := param(key, params)
		if err != nil {
			return nil, err
		}
		for _, b := range res.Bulletins {
			if b.ID == id {
				return b.Affected(), nil
			}
		}
		return 0, nil

	case KeyStats:
		stat, err := param(key, params)
		if err != nil {
			return nil, err
		}
		return statMetric(res.Fleet, stat)

	default:
		return nil, fmt.Errorf("unknown key: %s", key)
	}
}

func param(key string, params []string) (string, error) {
	if len(params) != 1 || params[0] == "" {
		return "", fmt.Errorf("%s requires exactly one parameter", key)
	}
	return params[0], nil
}

func statMetric(f matrix.FleetAggregate, stat string) (any, error) {
	switch stat {
	case "median":
		return f.Median, nil
	case "mean":
		return f.Mean, nil
	case "max":
		return f.Max, nil
	case "min":
		return f.Min, nil
	case "count":
		return f.Count, nil
	default:
		return nil, fmt.Errorf("unknown stats metric: %s", stat)
	}
}
