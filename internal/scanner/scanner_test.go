package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/inventory"
	"github.com/kidoz/zabbix-vuln-matrix/internal/matrix"
	"github.com/kidoz/zabbix-vuln-matrix/internal/push"
	"github.com/kidoz/zabbix-vuln-matrix/internal/snapshot"
	"github.com/kidoz/zabbix-vuln-matrix/internal/telemetry"
	"github.com/kidoz/zabbix-vuln-matrix/internal/zabbix"
)

type fakePlatform struct {
	hosts []zabbix.Host
	items map[string][]zabbix.Item
	calls int
}

func (f *fakePlatform) GetHostsWithTemplate(context.Context, string) ([]zabbix.Host, error) {
	f.calls++
	return f.hosts, nil
}

func (f *fakePlatform) GetHostItems(_ context.Context, hostID, _ string) ([]zabbix.Item, error) {
	return f.items[hostID], nil
}

func osItems(os, version string, pkgs int) []zabbix.Item {
	var b strings.Builder
	for i := range pkgs {
		fmt.Fprintf(&b, "pkg%d 1.0 x86_64\n", i)
	}
	return []zabbix.Item{
		{Name: zabbix.ItemOSName, Value: os},
		{Name: zabbix.ItemOSVersion, Value: version},
		{Name: zabbix.ItemOSPackages, Value: b.String()},
	}
}

type fakeAuditor map[string]matrix.AuditResult

func (f fakeAuditor) Audit(_ context.Context, rec matrix.HostRecord) matrix.AuditResult {
	if r, ok := f[rec.HostID]; ok {
		return r
	}
	return matrix.Failed(errors.New("no data"))
}

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	return []byte("processed: 1; failed: 0"), nil
}

func report(score float64, findings ...matrix.Finding) *matrix.Report {
	r := &matrix.Report{Score: score, CumulativeFix: "yum update"}
	for _, f := range findings {
		r.Packages = append(r.Packages, matrix.PackageNode{
			Name:      f.Package,
			Bulletins: []matrix.BulletinNode{{ID: f.BulletinID, Findings: []matrix.Finding{f}}},
		})
	}
	return r
}

// countingStore records how often the full dataset is read.
type countingStore struct {
	*snapshot.FileStore
	loads int
}

func (c *countingStore) Load(ctx context.Context) (*snapshot.Snapshot, error) {
	c.loads++
	return c.FileStore.Load(ctx)
}

type fixture struct {
	cfg      *config.Config
	platform *fakePlatform
	runner   *fakeRunner
	store    *countingStore
	logs     *observer.ObservedLogs
	scanner  *Scanner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Scan.WorkDir = dir
	cfg.Scan.LLDDelay = 0
	cfg.Telemetry.MetricsFile = filepath.Join(dir, "ztc.prom")

	platform := &fakePlatform{
		hosts: []zabbix.Host{
			{HostID: "1", Host: "h1", Name: "H1"},
			{HostID: "2", Host: "h2", Name: "H2"},
			{HostID: "3", Host: "h3", Name: "H3"},
			{HostID: "4", Host: "h4", Name: "H4"},
		},
		items: map[string][]zabbix.Item{
			"1": osItems("centos", "7", 10),
			"2": osItems("centos", "7", 10),
			"3": osItems("centos", "7", 2),
			"4": osItems("centos", "7", 10),
		},
	}
	auditor := fakeAuditor{
		"1": matrix.Succeeded(report(5, matrix.Finding{Package: "pkgA", BulletinID: "B1", Score: 5, Fix: "fixA"})),
		"2": matrix.Succeeded(report(9,
			matrix.Finding{Package: "pkgA", BulletinID: "B2", Score: 9, Fix: "fixA2"},
			matrix.Finding{Package: "pkgB", BulletinID: "B1", Score: 3, Fix: "fixB"},
		)),
	}

	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)
	runner := &fakeRunner{}
	store := &countingStore{FileStore: snapshot.NewFileStore(filepath.Join(dir, "dump.bin"))}

	s, err := New(cfg,
		inventory.NewEnricher(cfg, platform, log),
		auditor,
		store,
		push.NewPusher(cfg, runner, log),
		telemetry.NewRunMetrics(),
		log)
	require.NoError(t, err)

	return &fixture{cfg: cfg, platform: platform, runner: runner, store: store, logs: logs, scanner: s}
}

func TestScan_Pipeline(t *testing.T) {
	f := newFixture(t)

	res, err := f.scanner.Scan(context.Background(), ScanOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 3, res.Valid, "host with too few packages is excluded")
	assert.Equal(t, 1, res.AuditFailed)
	require.Len(t, res.Hosts, 2)
	assert.Equal(t, 2, res.Fleet.Count)
	assert.Equal(t, 7.0, res.Fleet.Median)

	byName := map[string]matrix.PackageImpact{}
	for _, p := range res.Packages {
		byName[p.Name] = p
	}
	assert.Equal(t, []string{"H1", "H2"}, byName["pkgA"].Hosts)
	assert.Equal(t, []string{"H2"}, byName["pkgB"].Hosts)

	data, err := os.ReadFile(res.DataFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"vulners.hosts" vulners.hosts[2] 9`)
	assert.Contains(t, string(data), `"vulners.packages" "vulners.pkg[pkgA]" 2`)

	lldData, err := os.ReadFile(res.LLDFile)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(lldData), "\n"))
	assert.Contains(t, string(lldData), `"{#PKG.HOSTS}":"H1\nH2"`)

	require.Len(t, f.runner.calls, 2)
	assert.Equal(t, []string{"zabbix_sender", "-z", "localhost", "-p", "10051", "-i", res.LLDFile}, f.runner.calls[0])
	assert.Equal(t, res.DataFile, f.runner.calls[1][6])

	prom, err := os.ReadFile(f.cfg.Telemetry.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `ztc_hosts_total{outcome="failed",stage="audit"} 1`)
}

func TestScan_NoPushLogsCommands(t *testing.T) {
	f := newFixture(t)

	_, err := f.scanner.Scan(context.Background(), ScanOptions{NoPush: true})
	require.NoError(t, err)

	assert.Empty(t, f.runner.calls)
	entries := f.logs.FilterMessage("push disabled, run manually").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["commands"], "sleep 0")
}

func TestScan_DumpThenResume(t *testing.T) {
	f := newFixture(t)

	_, err := f.scanner.Scan(context.Background(), ScanOptions{NoPush: true, Dump: true})
	require.NoError(t, err)
	assert.Zero(t, f.store.loads)
	snap, err := f.store.FileStore.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Hosts, 3)
	assert.Equal(t, 1, f.platform.calls)

	res, err := f.scanner.Scan(context.Background(), ScanOptions{NoPush: true, Resume: true})
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, 1, f.platform.calls, "resume must not query the platform")
	assert.Len(t, res.Hosts, 2)
	assert.Equal(t, 1, f.store.loads)
	assert.Equal(t, 1, f.logs.FilterMessage("Resuming from cached dataset, bypassing re-fetch").Len())
}

func TestScan_SnapshotIgnoredWithoutResume(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(context.Background(), snapshot.New(nil)))

	res, err := f.scanner.Scan(context.Background(), ScanOptions{NoPush: true})
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.Equal(t, 1, f.platform.calls)
	assert.Zero(t, f.store.loads, "the dataset is only read when resuming")
	assert.Equal(t, 1, f.logs.FilterMessage("Cached dataset present but not used, pass --resume to use it").Len())
}

func TestScan_ResumeWithoutSnapshotFetches(t *testing.T) {
	f := newFixture(t)

	res, err := f.scanner.Scan(context.Background(), ScanOptions{NoPush: true, Resume: true})
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.Equal(t, 1, f.platform.calls)
	assert.Equal(t, 1, f.store.loads)
}

func TestScan_NoSnapshotNoNotice(t *testing.T) {
	f := newFixture(t)

	_, err := f.scanner.Scan(context.Background(), ScanOptions{NoPush: true})
	require.NoError(t, err)
	assert.Zero(t, f.store.loads)
	assert.Zero(t, f.logs.FilterMessage("Cached dataset present but not used, pass --resume to use it").Len())
}

func TestScan_LimitAndEmptyFleet(t *testing.T) {
	f := newFixture(t)

	// Host 3 has too few packages and host 4 has no audit data.
	res, err := f.scanner.Scan(context.Background(), ScanOptions{HostIDs: []string{"3", "4"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.AuditFailed)
	assert.Empty(t, res.Hosts)
	assert.Equal(t, 0, res.Fleet.Count)
	assert.Equal(t, 0.0, res.Fleet.Median)

	assert.Empty(t, f.runner.calls, "nothing is pushed for an empty host-matrix")
	assert.Empty(t, res.LLDFile)
	assert.Empty(t, res.DataFile)
	_, err = os.Stat(filepath.Join(f.cfg.Scan.WorkDir, LLDFile))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 1, f.logs.FilterMessage(
		"There are no data in the host-matrix for further processing, skipping emit and push").Len())

	prom, err := os.ReadFile(f.cfg.Telemetry.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "ztc_fleet_hosts 0")
}

func TestScan_WorkDirNotWritable(t *testing.T) {
	f := newFixture(t)
	blocker := filepath.Join(f.cfg.Scan.WorkDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	f.cfg.Scan.WorkDir = filepath.Join(blocker, "sub")

	_, err := f.scanner.Scan(context.Background(), ScanOptions{NoPush: true})
	require.Error(t, err)
	assert.Empty(t, f.runner.calls)
}

func TestNew_UnknownMergePolicy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scan.PackageMerge = "random"
	_, err := New(cfg, nil, nil, nil, nil, nil, zap.NewNop())
	assert.Error(t, err)
}
