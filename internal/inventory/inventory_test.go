package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/matrix"
	"github.com/kidoz/zabbix-vuln-matrix/internal/zabbix"
)

type fakePlatform struct {
	hosts    []zabbix.Host
	hostsErr error
	items    map[string][]zabbix.Item
	itemErrs map[string]error
}

func (f *fakePlatform) GetHostsWithTemplate(_ context.Context, _ string) ([]zabbix.Host, error) {
	return f.hosts, f.hostsErr
}

func (f *fakePlatform) GetHostItems(_ context.Context, hostID, _ string) ([]zabbix.Item, error) {
	if err := f.itemErrs[hostID]; err != nil {
		return nil, err
	}
	return f.items[hostID], nil
}

func reportItems(os, version string, pkgs int) []zabbix.Item {
	list := ""
	for i := range pkgs {
		list += fmt.Sprintf("pkg%d 1.0 amd64\n", i)
	}
	return []zabbix.Item{
		{Name: zabbix.ItemOSName, Value: os},
		{Name: zabbix.ItemOSVersion, Value: version},
		{Name: zabbix.ItemOSPackages, Value: list},
	}
}

func newEnricher(t *testing.T, p Platform) (*Enricher, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	cfg := config.DefaultConfig()
	return NewEnricher(cfg, p, zap.New(core)), logs
}

func TestEnrich_ReadsReportItems(t *testing.T) {
	p := &fakePlatform{
		items: map[string][]zabbix.Item{"1": reportItems("OL", "7", 8)},
	}
	e, _ := newEnricher(t, p)

	recs := e.Enrich(context.Background(), []zabbix.Host{{HostID: "1", Host: "web1", Name: "Web 1"}})
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "web1", r.Name)
	assert.Equal(t, "Web 1", r.DisplayName)
	assert.Equal(t, "oraclelinux", r.OSFamily)
	assert.Equal(t, "7", r.OSVersion)
	assert.Len(t, r.Packages, 8)
	assert.NoError(t, Validate(r))
}

func TestEnrich_FailureKeepsBatchGoing(t *testing.T) {
	p := &fakePlatform{
		items:    map[string][]zabbix.Item{"2": reportItems("centos", "8", 10)},
		itemErrs: map[string]error{"1": errors.New("timeout")},
	}
	e, logs := newEnricher(t, p)

	recs := e.Enrich(context.Background(), []zabbix.Host{
		{HostID: "1", Name: "broken"},
		{HostID: "2", Name: "fine"},
	})
	require.Len(t, recs, 2)
	assert.Empty(t, recs[0].OSFamily)
	assert.ErrorIs(t, Validate(recs[0]), ErrInvalidHost)
	assert.Equal(t, "centos", recs[1].OSFamily)

	warn := logs.FilterLevelExact(zap.WarnLevel).All()
	require.Len(t, warn, 1)
	ctx := warn[0].ContextMap()
	assert.EqualValues(t, 1, ctx["index"])
	assert.EqualValues(t, 2, ctx["total"])

	valid := e.Valid(recs)
	require.Len(t, valid, 1)
	assert.Equal(t, "2", valid[0].HostID)
}

func TestListHosts_FilterAndLimit(t *testing.T) {
	p := &fakePlatform{hosts: []zabbix.Host{{HostID: "1"}, {HostID: "2"}, {HostID: "3"}, {HostID: "4"}}}
	e, _ := newEnricher(t, p)

	hosts, err := e.ListHosts(context.Background(), Selection{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []zabbix.Host{{HostID: "1"}, {HostID: "2"}}, hosts)

	hosts, err = e.ListHosts(context.Background(), Selection{HostIDs: []string{"3", "4"}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []zabbix.Host{{HostID: "3"}}, hosts)
	assert.Len(t, p.hosts, 4, "filtering must not modify the platform's slice")
}

func TestListHosts_Error(t *testing.T) {
	e, _ := newEnricher(t, &fakePlatform{hostsErr: zabbix.ErrNotFound})
	_, err := e.ListHosts(context.Background(), Selection{})
	assert.ErrorIs(t, err, zabbix.ErrNotFound)
}

func TestValidate(t *testing.T) {
	pkgs := func(n int) []string { return make([]string, n) }
	tests := []struct {
		name  string
		rec   matrix.HostRecord
		valid bool
	}{
		{"valid host", matrix.HostRecord{OSFamily: "ubuntu", OSVersion: "20.04", Packages: pkgs(10)}, true},
		{"6 packages valid", matrix.HostRecord{OSFamily: "ubuntu", OSVersion: "20.04", Packages: pkgs(6)}, true},
		{"exactly 5 packages excluded", matrix.HostRecord{OSFamily: "ubuntu", OSVersion: "20.04", Packages: pkgs(5)}, false},
		{"empty OS excluded", matrix.HostRecord{OSVersion: "7", Packages: pkgs(10)}, false},
		{"os version 0.0 excluded", matrix.HostRecord{OSFamily: "centos", OSVersion: "0.0", Packages: pkgs(10)}, false},
		{"empty version excluded", matrix.HostRecord{OSFamily: "centos", Packages: pkgs(10)}, false},
		{"non-numeric version excluded", matrix.HostRecord{OSFamily: "debian", OSVersion: "bullseye", Packages: pkgs(10)}, false},
		{"dotted version excluded", matrix.HostRecord{OSFamily: "centos", OSVersion: "7.9.2009", Packages: pkgs(10)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rec)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidHost)
			}
		})
	}
}

func TestParsePackageList(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
	}{
		{"empty", "", 0},
		{"single line", "nginx 1.18.0 amd64", 1},
		{"multiple lines", "nginx 1.18.0 amd64\nopenssl 1.1.1k amd64\nbash 5.1 amd64", 3},
		{"blank lines", "nginx 1.18.0 amd64\n\n\nopenssl 1.1.1k amd64\n", 2},
		{"whitespace-only lines", "  \n\t\n  nginx 1.18.0 amd64  \n  ", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ParsePackageList(tt.input), tt.wantLen)
		})
	}
}

func TestNormalizeOS(t *testing.T) {
	aliases := Aliases(map[string]string{" Astra ": "Debian", "amzn": ""})
	tests := []struct{ in, want string }{
		{"ol", "oraclelinux"},
		{" OL ", "oraclelinux"},
		{"rhel", "redhat"},
		{"solaris", "solaris"},
		{"Ubuntu", "ubuntu"},
		{"astra", "debian"},
		{"amzn", "amzn"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeOS(tt.in, aliases), tt.in)
	}
}
