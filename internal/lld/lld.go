// Package lld formats correlation results as zabbix_sender input: flat
// metric lines and single-line low-level discovery documents.
package lld

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/matrix"
)

// Discovery item keys on the virtual hosts.
const (
	HostsDiscoveryKey     = "vulners.hosts_lld"
	PackagesDiscoveryKey  = "vulners.packages_lld"
	BulletinsDiscoveryKey = "vulners.bulletins_lld"
)

// Line is one zabbix_sender input line.
type Line struct {
	Host  string
	Key   string
	Value string
	// QuoteKey wraps the key in double quotes. Package keys need it because
	// raw package strings contain spaces.
	QuoteKey bool
}

func (l Line) String() string {
	key := l.Key
	if l.QuoteKey {
		key = quote(key)
	}
	return quote(l.Host) + " " + key + " " + l.Value
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// HostEntry is one element of vulners.hosts_lld. Field order is the
// serialized macro order.
type HostEntry struct {
	VisibleName string  `json:"{#H.VNAME}"`
	Host        string  `json:"{#H.HOST}"`
	ID          string  `json:"{#H.ID}"`
	Fix         string  `json:"{#H.FIX}"`
	Score       float64 `json:"{#H.SCORE}"`
}

// PackageEntry is one element of vulners.packages_lld.
type PackageEntry struct {
	ID       string  `json:"{#PKG.ID}"`
	URL      string  `json:"{#PKG.URL}"`
	Score    float64 `json:"{#PKG.SCORE}"`
	Fix      string  `json:"{#PKG.FIX}"`
	Affected int     `json:"{#PKG.AFFECTED}"`
	Impact   int     `json:"{#PKG.IMPACT}"`
	Hosts    string  `json:"{#PKG.HOSTS}"`
}

// BulletinEntry is one element of vulners.bulletins_lld.
type BulletinEntry struct {
	ID       string  `json:"{#BULLETIN.ID}"`
	Score    float64 `json:"{#BULLETIN.SCORE}"`
	Affected int     `json:"{#BULLETIN.AFFECTED}"`
	Impact   int     `json:"{#BULLETIN.IMPACT}"`
	Hosts    string  `json:"{#BULLETIN.HOSTS}"`
}

type document[T any] struct {
	Data []T `json:"data"`
}

// Encode renders {"data":[...]} on one line with compact separators.
// HTML characters are left unescaped so fix commands with && survive.
// Newlines inside values stay escaped inside their JSON string.
func Encode[T any](entries []T) (string, error) {
	if entries == nil {
		entries = []T{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(document[T]{Data: entries}); err != nil {
		return "", fmt.Errorf("failed to encode discovery document: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// HostEntries maps hosts to discovery entries.
func HostEntries(hosts []matrix.HostRecord) []HostEntry {
	out := make([]HostEntry, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, HostEntry{
			VisibleName: h.DisplayName,
			Host:        h.Name,
			ID:          h.HostID,
			Fix:         h.CumulativeFix,
			Score:       h.RiskScore,
		})
	}
	return out
}

// PackageEntries maps the package matrix to discovery entries.
func PackageEntries(pkgs []matrix.PackageImpact) []PackageEntry {
	out := make([]PackageEntry, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, PackageEntry{
			ID:       p.Name,
			URL:      p.BulletinID,
			Score:    p.Score,
			Fix:      p.Fix,
			Affected: p.Affected(),
			Impact:   p.Impact(),
			Hosts:    strings.Join(p.Hosts, "\n"),
		})
	}
	return out
}

// BulletinEntries maps the bulletin matrix to discovery entries.
func BulletinEntries(bulletins []matrix.BulletinImpact) []BulletinEntry {
	out := make([]BulletinEntry, 0, len(bulletins))
	for _, b := range bulletins {
		out = append(out, BulletinEntry{
			ID:       b.ID,
			Score:    b.Score,
			Affected: b.Affected(),
			Impact:   b.Impact(),
			Hosts:    strings.Join(b.Hosts, "\n"),
		})
	}
	return out
}

// Emitter turns a correlation result into sender lines addressed to the
// configured virtual hosts.
type Emitter struct {
	naming config.NamingConfig
}

// NewEmitter creates an emitter.
func NewEmitter(naming config.NamingConfig) *Emitter {
	return &Emitter{naming: naming}
}

// Discovery returns the three discovery lines: hosts, packages, bulletins.
func (e *Emitter) Discovery(res *matrix.Result) ([]Line, error) {
	hosts, err := Encode(HostEntries(res.Hosts))
	if err != nil {
		return nil, err
	}
	pkgs, err := Encode(PackageEntries(res.Packages))
	if err != nil {
		return nil, err
	}
	bulletins, err := Encode(BulletinEntries(res.Bulletins))
	if err != nil {
		return nil, err
	}
	return []Line{
		{Host: e.naming.HostsHost, Key: HostsDiscoveryKey, Value: hosts},
		{Host: e.naming.PackagesHost, Key: PackagesDiscoveryKey, Value: pkgs},
		{Host: e.naming.BulletinsHost, Key: BulletinsDiscoveryKey, Value: bulletins},
	}, nil
}

// Metrics returns the data lines: one per host score, package, bulletin,
// then the statistics block.
func (e *Emitter) Metrics(res *matrix.Result) []Line {
	lines := make([]Line, 0, len(res.Hosts)+len(res.Packages)+len(res.Bulletins)+matrix.HistogramBuckets+5)

	for _, h := range res.Hosts {
		lines = append(lines, Line{
			Host:  e.naming.HostsHost,
			Key:   HostScoreKey(h.HostID),
			Value: FormatFloat(h.RiskScore),
		})
	}
	for _, p := range res.Packages {
		lines = append(lines, Line{
			Host:     e.naming.PackagesHost,
			Key:      PackageKey(p.Name),
			Value:    strconv.Itoa(p.Affected()),
			QuoteKey: true,
		})
	}
	for _, b := range res.Bulletins {
		lines = append(lines, Line{
			Host:  e.naming.BulletinsHost,
			Key:   BulletinKey(b.ID),
			Value: strconv.Itoa(b.Affected()),
		})
	}
	return append(lines, e.statistics(res.Fleet)...)
}

func (e *Emitter) statistics(f matrix.FleetAggregate) []Line {
	stat := func(key, value string) Line {
		return Line{Host: e.naming.StatisticsHost, Key: key, Value: value}
	}

	lines := make([]Line, 0, matrix.HistogramBuckets+5)
	for score, n := range f.Histogram {
		lines = append(lines, stat(HistogramKey(score), strconv.Itoa(n)))
	}
	return append(lines,
		stat(StatHostsCount, strconv.Itoa(f.Count)),
		stat(StatMedian, FormatFloat(f.Median)),
		stat(StatMean, FormatFloat(f.Mean)),
		stat(StatMax, FormatFloat(f.Max)),
		stat(StatMin, FormatFloat(f.Min)),
	)
}

// Statistics host item keys.
const (
	StatHostsCount = "vulners.hostsCount"
	StatMedian     = "vulners.scoreMedian"
	StatMean       = "vulners.scoreMean"
	StatMax        = "vulners.scoreMax"
	StatMin        = "vulners.scoreMin"
)

// HostScoreKey is the trapper key carrying a host's score.
func HostScoreKey(hostID string) string { return "vulners.hosts[" + hostID + "]" }

// PackageKey is the trapper key carrying a package's affected host count.
func PackageKey(pkg string) string { return "vulners.pkg[" + pkg + "]" }

// BulletinKey is the trapper key carrying a bulletin's affected host count.
func BulletinKey(id string) string { return "vulners.bulletin[" + id + "]" }

// HistogramKey is the statistics key counting hosts in one score bucket.
func HistogramKey(score int) string { return "vulners.hostsCountScore" + strconv.Itoa(score) }

// FormatFloat renders a score without trailing zeros.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
