package matrix

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrUnaudited is returned when a host without a successful audit reaches
// correlation. Callers must filter such hosts first.
var ErrUnaudited = errors.New("host reached correlation without a successful audit")

// Engine runs the correlation stage.
type Engine struct {
	policy MergePolicy
	log    *zap.Logger
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(policy MergePolicy, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{policy: policy, log: log}
}

// Correlate reduces every host and builds the impact matrices and fleet
// aggregate. The input slice is not modified. A host with a malformed report
// is skipped and listed in Result.Skipped; a host without a successful audit
// aborts the whole call with ErrUnaudited.
func (e *Engine) Correlate(hosts []HostRecord) (*Result, error) {
	for i := range hosts {
		if hosts[i].Audit.Status != AuditOK {
			return nil, fmt.Errorf("%w: host %s (%s)", ErrUnaudited, hosts[i].HostID, hosts[i].DisplayName)
		}
	}

	res := &Result{Hosts: make([]HostRecord, 0, len(hosts))}
	for i := range hosts {
		h := hosts[i]
		if err := Reduce(&h); err != nil {
			e.log.Warn("skipping host with malformed report",
				zap.String("hostid", h.HostID),
				zap.String("host", h.DisplayName),
				zap.Int("index", i+1),
				zap.Int("total", len(hosts)),
				zap.Error(err))
			res.Skipped = append(res.Skipped, Skip{
				HostID:      h.HostID,
				DisplayName: h.DisplayName,
				Reason:      err.Error(),
			})
			continue
		}
		res.Hosts = append(res.Hosts, h)
	}

	res.Packages = BuildPackageImpact(res.Hosts, e.policy)
	res.Bulletins = BuildBulletinImpact(res.Hosts, e.policy)
	res.Fleet = Aggregate(res.Hosts)

	e.log.Debug("correlation finished",
		zap.Int("hosts", len(res.Hosts)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("packages", len(res.Packages)),
		zap.Int("bulletins", len(res.Bulletins)),
		zap.String("merge", e.policy.String()))
	return res, nil
}

// Audited returns the hosts whose audit succeeded, in order.
func Audited(hosts []HostRecord) []HostRecord {
	out := make([]HostRecord, 0, len(hosts))
	for _, h := range hosts {
		if h.Audit.Status == AuditOK {
			out = append(out, h)
		}
	}
	return out
}
