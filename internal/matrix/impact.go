package matrix

import "fmt"

// MergePolicy decides which host's metadata a cross-host entry keeps when
// hosts disagree on the score.
type MergePolicy int

const (
	// MergeFirst keeps the metadata of the first host that reported the
	// entry, in host iteration order.
	MergeFirst MergePolicy = iota
	// MergeMax keeps the highest score; ties keep the first seen.
	MergeMax
)

// ParseMergePolicy maps the scan.package_merge config value.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch s {
	case "", "first":
		return MergeFirst, nil
	case "max":
		return MergeMax, nil
	default:
		return MergeFirst, fmt.Errorf("unknown merge policy %q", s)
	}
}

func (p MergePolicy) String() string {
	if p == MergeMax {
		return "max"
	}
	return "first"
}

// hostSet is an insertion-ordered set of display names.
type hostSet struct {
	names []string
	seen  map[string]struct{}
}

func (s *hostSet) add(name string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[name]; ok {
		return
	}
	s.seen[name] = struct{}{}
	s.names = append(s.names, name)
}

// BuildPackageImpact upserts every reduced package of every host into a
// package-keyed matrix. Entries are returned in first-seen order.
func BuildPackageImpact(hosts []HostRecord, policy MergePolicy) []PackageImpact {
	var out []PackageImpact
	var sets []hostSet
	index := make(map[string]int)

	for i := range hosts {
		h := &hosts[i]
		for _, p := range h.Reduced {
			j, ok := index[p.Name]
			if !ok {
				j = len(out)
				index[p.Name] = j
				out = append(out, PackageImpact{
					Name:       p.Name,
					Score:      p.Score,
					BulletinID: p.BulletinID,
					Fix:        p.Fix,
				})
				sets = append(sets, hostSet{})
			} else if policy == MergeMax && p.Score > out[j].Score {
				out[j].Score = p.Score
				out[j].BulletinID = p.BulletinID
				out[j].Fix = p.Fix
			}
			sets[j].add(h.DisplayName)
		}
	}

	for j := range out {
		out[j].Hosts = sets[j].names
	}
	return out
}

// BuildBulletinImpact upserts every (bulletin, score) pair of every host into
// a bulletin-keyed matrix. A host counts once per bulletin even when it
// carries the bulletin with several scores.
func BuildBulletinImpact(hosts []HostRecord, policy MergePolicy) []BulletinImpact {
	var out []BulletinImpact
	var sets []hostSet
	index := make(map[string]int)

	for i := range hosts {
		h := &hosts[i]
		for _, b := range h.Bulletins {
			j, ok := index[b.ID]
			if !ok {
				j = len(out)
				index[b.ID] = j
				out = append(out, BulletinImpact{ID: b.ID, Score: b.Score})
				sets = append(sets, hostSet{})
			} else if policy == MergeMax && b.Score > out[j].Score {
				out[j].Score = b.Score
			}
			sets[j].add(h.DisplayName)
		}
	}

	for j := range out {
		out[j].Hosts = sets[j].names
	}
	return out
}
