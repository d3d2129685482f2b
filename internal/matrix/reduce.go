package matrix

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformed marks a report whose finding tree cannot be reduced.
var ErrMalformed = errors.New("malformed vulnerability report")

// Flatten walks the report tree in order and returns its findings. Finding
// fields left empty inherit the enclosing package name or bulletin ID.
func Flatten(r *Report) ([]Finding, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: no report", ErrMalformed)
	}
	if math.IsNaN(r.Score) {
		return nil, fmt.Errorf("%w: host score is NaN", ErrMalformed)
	}

	var out []Finding
	for _, pkg := range r.Packages {
		for _, b := range pkg.Bulletins {
			for _, f := range b.Findings {
				if f.Package == "" {
					f.Package = pkg.Name
				}
				if f.BulletinID == "" {
					f.BulletinID = b.ID
				}
				if f.Package == "" || f.BulletinID == "" {
					return nil, fmt.Errorf("%w: finding without package or bulletin", ErrMalformed)
				}
				if math.IsNaN(f.Score) {
					return nil, fmt.Errorf("%w: NaN score for %s/%s", ErrMalformed, f.Package, f.BulletinID)
				}
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// Reduce derives RiskScore, CumulativeFix, Reduced and Bulletins from the
// host's audit report. For each package the highest score wins and ties keep
// the first finding. Bulletins are deduplicated by (id, score) pair, so one
// bulletin seen with two scores stays as two entries.
func Reduce(h *HostRecord) error {
	if h.Audit.Status != AuditOK {
		return fmt.Errorf("%w: host %s has audit status %s", ErrUnaudited, h.HostID, h.Audit.Status)
	}

	findings, err := Flatten(h.Audit.Report)
	if err != nil {
		return err
	}

	reduced := make([]ReducedPackage, 0, len(findings))
	byName := make(map[string]int, len(findings))
	var bulletins []Bulletin
	seen := make(map[Bulletin]struct{}, len(findings))

	for _, f := range findings {
		if i, ok := byName[f.Package]; !ok {
			byName[f.Package] = len(reduced)
			reduced = append(reduced, ReducedPackage{
				Name:       f.Package,
				Score:      f.Score,
				Fix:        f.Fix,
				BulletinID: f.BulletinID,
			})
		} else if f.Score > reduced[i].Score {
			reduced[i] = ReducedPackage{
				Name:       f.Package,
				Score:      f.Score,
				Fix:        f.Fix,
				BulletinID: f.BulletinID,
			}
		}

		b := Bulletin{ID: f.BulletinID, Score: f.Score}
		if _, ok := seen[b]; !ok {
			seen[b] = struct{}{}
			bulletins = append(bulletins, b)
		}
	}

	h.Reduced = reduced
	h.Bulletins = bulletins
	h.RiskScore = h.Audit.Report.Score
	h.CumulativeFix = h.Audit.Report.CumulativeFix
	return nil
}
