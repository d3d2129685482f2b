// Package matrix correlates audited hosts into per-package and per-bulletin
// impact matrices and fleet score statistics. It performs no I/O.
package matrix

// Finding is a single (package, bulletin, score, fix) tuple taken from a
// vulnerability report.
type Finding struct {
	Package    string
	BulletinID string
	Score      float64
	Fix        string
}

// Report is the successful result of one audit call, kept in the nested
// shape the Vulners API returns: package → bulletin → findings.
type Report struct {
	Score         float64
	CumulativeFix string
	Packages      []PackageNode
}

// PackageNode groups findings for one raw package string.
type PackageNode struct {
	Name      string
	Bulletins []BulletinNode
}

// BulletinNode groups findings for one bulletin under a package.
type BulletinNode struct {
	ID       string
	Findings []Finding
}

// AuditStatus tags an AuditResult.
type AuditStatus int

const (
	AuditPending AuditStatus = iota
	AuditOK
	AuditFailed
)

func (s AuditStatus) String() string {
	switch s {
	case AuditOK:
		return "ok"
	case AuditFailed:
		return "failed"
	default:
		return "pending"
	}
}

// AuditResult records the outcome of the audit call for one host. Report is
// set only when Status is AuditOK; Error only when Status is AuditFailed.
type AuditResult struct {
	Status AuditStatus
	Report *Report
	Error  string
}

// Succeeded builds an AuditOK result.
func Succeeded(r *Report) AuditResult {
	return AuditResult{Status: AuditOK, Report: r}
}

// Failed builds an AuditFailed result.
func Failed(err error) AuditResult {
	return AuditResult{Status: AuditFailed, Error: err.Error()}
}

// HostRecord is one monitored host. Inventory and audit fields are filled by
// the enricher and annotator; the remaining fields are derived by Reduce.
type HostRecord struct {
	HostID      string
	Name        string // technical name
	DisplayName string // visible name

	OSFamily  string
	OSVersion string
	Packages  []string

	Audit AuditResult

	CumulativeFix string
	RiskScore     float64
	Reduced       []ReducedPackage
	Bulletins     []Bulletin
}

// ReducedPackage is the single highest-score finding kept for a package on
// one host.
type ReducedPackage struct {
	Name       string
	Score      float64
	Fix        string
	BulletinID string
}

// Bulletin is a (bulletin, score) pair seen on a host.
type Bulletin struct {
	ID    string
	Score float64
}

// ReducedPackage returns the reduced entry for name, if present.
func (h *HostRecord) ReducedPackage(name string) (ReducedPackage, bool) {
	for _, p := range h.Reduced {
		if p.Name == name {
			return p, true
		}
	}
	return ReducedPackage{}, false
}

// PackageImpact aggregates one package across the fleet.
type PackageImpact struct {
	Name       string
	Score      float64
	BulletinID string
	Fix        string
	Hosts      []string // display names, unique, first-seen order
}

// Affected is the number of distinct hosts carrying the package.
func (p PackageImpact) Affected() int { return len(p.Hosts) }

// Impact is the affected host count times the score, truncated.
func (p PackageImpact) Impact() int { return impact(len(p.Hosts), p.Score) }

// BulletinImpact aggregates one bulletin across the fleet.
type BulletinImpact struct {
	ID    string
	Score float64
	Hosts []string
}

// Affected is the number of distinct hosts carrying the bulletin.
func (b BulletinImpact) Affected() int { return len(b.Hosts) }

// Impact is the affected host count times the score, truncated.
func (b BulletinImpact) Impact() int { return impact(len(b.Hosts), b.Score) }

func impact(affected int, score float64) int {
	return int(float64(affected) * score)
}

// HistogramBuckets is the number of integer score buckets, 0 through 10.
const HistogramBuckets = 11

// FleetAggregate summarises host risk scores.
type FleetAggregate struct {
	Count     int
	Median    float64
	Mean      float64
	Max       float64
	Min       float64
	Histogram [HistogramBuckets]int
}

// Skip records a host whose contribution was dropped during correlation.
type Skip struct {
	HostID      string
	DisplayName string
	Reason      string
}

// Result is the full output of one correlation pass.
type Result struct {
	Hosts     []HostRecord
	Packages  []PackageImpact
	Bulletins []BulletinImpact
	Fleet     FleetAggregate
	Skipped   []Skip
}
