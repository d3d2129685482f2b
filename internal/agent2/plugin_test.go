package agent2

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidoz/zabbix-vuln-matrix/internal/lld"
	"github.com/kidoz/zabbix-vuln-matrix/internal/matrix"
	"github.com/kidoz/zabbix-vuln-matrix/internal/snapshot"
)

func audited(id, name string, score float64, pkg, bulletin string) matrix.HostRecord {
	return matrix.HostRecord{
		HostID:      id,
		Name:        name,
		DisplayName: name,
		Audit: matrix.Succeeded(&matrix.Report{
			Score:         score,
			CumulativeFix: "yum update " + pkg,
			Packages: []matrix.PackageNode{{
				Name: pkg,
				Bulletins: []matrix.BulletinNode{{
					ID:       bulletin,
					Findings: []matrix.Finding{{Score: score, Fix: "yum update " + pkg}},
				}},
			}},
		}),
	}
}

func newLoadedPlugin(t *testing.T, hosts ...matrix.HostRecord) *ZTCPlugin {
	t.Helper()
	store := snapshot.NewFileStore(filepath.Join(t.TempDir(), "dump.bin"))
	require.NoError(t, store.Save(context.Background(), snapshot.New(hosts)))

	p := NewPlugin()
	p.store = store
	changed, err := p.reload(context.Background())
	require.NoError(t, err)
	require.True(t, changed)
	return p
}

func TestExport_NoDataYet(t *testing.T) {
	p := NewPlugin()
	_, err := p.Export(KeyStats, []string{"median"}, nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestExport_FromSnapshot(t *testing.T) {
	failed := matrix.HostRecord{HostID: "3", DisplayName: "H3", Audit: matrix.Failed(assert.AnError)}
	p := newLoadedPlugin(t,
		audited("1", "H1", 5, "openssl", "RHSA-1"),
		audited("2", "H2", 9, "openssl", "RHSA-2"),
		failed,
	)

	v, err := p.Export(KeyHostScore, []string{"2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 9.0, v)

	v, err = p.Export(KeyHostScore, []string{"3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v, "failed audit never reaches the matrices")

	v, err = p.Export(KeyPackageAffected, []string{"openssl"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = p.Export(KeyBulletinAffected, []string{"RHSA-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = p.Export(KeyStats, []string{"median"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	v, err = p.Export(KeyStats, []string{"count"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = p.Export(lld.PackagesDiscoveryKey, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, v, `"{#PKG.HOSTS}":"H1\nH2"`)
}

func TestExport_BadParams(t *testing.T) {
	p := newLoadedPlugin(t, audited("1", "H1", 5, "openssl", "RHSA-1"))

	_, err := p.Export(KeyHostScore, nil, nil)
	assert.Error(t, err)
	_, err = p.Export(KeyStats, []string{"p99"}, nil)
	assert.Error(t, err)
	_, err = p.Export("vulners.unknown", nil, nil)
	assert.Error(t, err)
}

func TestReload_SkipsUnchangedSnapshot(t *testing.T) {
	p := newLoadedPlugin(t, audited("1", "H1", 5, "openssl", "RHSA-1"))

	changed, err := p.reload(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	snap := snapshot.New([]matrix.HostRecord{audited("1", "H1", 8, "bash", "RHSA-9")})
	snap.CreatedAt = p.cache.Dated().Add(time.Minute)
	require.NoError(t, p.store.Save(context.Background(), snap))

	changed, err = p.reload(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	v, err := p.Export(KeyPackageAffected, []string{"bash"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestValidate(t *testing.T) {
	p := NewPlugin()
	assert.NoError(t, p.Validate(map[string]string{"ScanInterval": "600"}))
	assert.Error(t, p.Validate(map[string]string{"ScanInterval": "soon"}))
	assert.Error(t, p.Validate(map[string]string{"PackageMerge": "random"}))
	assert.Error(t, p.Validate(map[string]string{"SnapshotBackend": "s3"}))
	assert.Error(t, p.Validate("not a map"))
}

func TestApplyOptions(t *testing.T) {
	cfg, interval := applyOptions(NewPlugin().cfg, map[string]string{
		"SnapshotPath": "/var/lib/ztc/dump.bin",
		"ScanInterval": "120",
		"S3UseSSL":     "false",
	})
	assert.Equal(t, "/var/lib/ztc/dump.bin", cfg.SnapshotPath())
	assert.Equal(t, 120, interval)
	assert.False(t, cfg.Snapshot.S3UseSSL)
}
