// Package fixer runs the remediation command attached to an acknowledged
// vulners problem on the affected hosts.
package fixer

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/logging"
	"github.com/kidoz/zabbix-vuln-matrix/internal/telemetry"
	"github.com/kidoz/zabbix-vuln-matrix/internal/zabbix"
)

// Separators used by the trigger prototypes the prepare command creates.
const (
	nameSep   = " = "
	fixSep    = "\r\n\r\n"
	hostsSep  = "\r\n----\r\n"
	agentPort = "10050"
)

// Platform is the part of the Zabbix API the fixer reads.
type Platform interface {
	GetEventAcknowledges(ctx context.Context, eventID string) ([]zabbix.Acknowledge, error)
	GetTrigger(ctx context.Context, triggerID string) (*zabbix.Trigger, error)
	GetHostByVisibleName(ctx context.Context, name string) (*zabbix.Host, error)
	GetMainAgentInterface(ctx context.Context, hostID string) (*zabbix.HostInterface, error)
}

// Fixer dispatches one acknowledged problem.
type Fixer struct {
	cfg      *config.Config
	log      *zap.Logger
	platform Platform
	executor Executor
	metrics  *telemetry.RunMetrics
}

// New creates a fixer.
func New(cfg *config.Config, platform Platform, executor Executor, metrics *telemetry.RunMetrics, log *zap.Logger) *Fixer {
	return &Fixer{
		cfg:      cfg,
		log:      log.Named("fix"),
		platform: platform,
		executor: executor,
		metrics:  metrics,
	}
}

// Fix validates the actor, applies the manual-close gate, resolves the
// targets from the trigger text and runs the fix on each of them. The fix
// runs only when a trusted user acknowledged the event without closing the
// problem; a closing acknowledge returns ErrManuallyClosed.
//
// For the hosts entity any failure is returned. For the packages entity a
// failing host is logged and skipped.
func (f *Fixer) Fix(ctx context.Context, req Request) (*FixResults, error) {
	ctx, span := telemetry.StartStage(ctx, "Fixer.Fix",
		attribute.String("trigger.host", req.TriggeredHost),
		attribute.String("trigger.id", req.TriggerID),
		attribute.String("event.id", req.EventID),
	)
	defer span.End()

	f.log.Info("Getting started with the event",
		zap.String("url", fmt.Sprintf("%s/tr_events.php?triggerid=%s&eventid=%s",
			strings.TrimRight(f.cfg.Zabbix.FrontURL, "/"), req.TriggerID, req.EventID)))

	entity, err := f.entityOf(req.TriggeredHost)
	if err != nil {
		return nil, err
	}

	actor, err := f.validateActor(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	trigger, err := f.platform.GetTrigger(ctx, req.TriggerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger: %w", err)
	}

	names, command, err := ResolveTargets(entity, trigger.Description, trigger.Comments)
	if err != nil {
		return nil, err
	}
	if err := ValidateFixCommand(command); err != nil {
		return nil, err
	}

	results := &FixResults{Entity: entity, Actor: actor, Command: command}
	for i, name := range names {
		progress := append(logging.Progress(i, len(names)), zap.String("host", name))
		f.log.Info("Fixing host", progress...)

		res := f.fixHost(ctx, name, command)
		results.Hosts = append(results.Hosts, res)
		if res.Success {
			results.Successful++
			f.count(telemetry.OutcomeOK)
			continue
		}
		results.Failed++
		f.count(telemetry.OutcomeFailed)

		if entity == EntityHosts {
			return results, fmt.Errorf("fix on %s failed: %s", name, res.Error)
		}
		f.log.Warn("Skip fixing vulnerabilities on this host", append(progress, zap.String("error", res.Error))...)
	}

	span.SetAttributes(attribute.Int("fixed", results.Successful), attribute.Int("failed", results.Failed))
	f.log.Info("End", zap.Int("successful", results.Successful), zap.Int("failed", results.Failed))
	return results, nil
}

func (f *Fixer) entityOf(host string) (Entity, error) {
	switch host {
	case f.cfg.Naming.HostsHost:
		return EntityHosts, nil
	case f.cfg.Naming.PackagesHost:
		return EntityPackages, nil
	}
	f.log.Info("Trigger host does not match the required hosts",
		zap.String("host", host),
		zap.String("hosts", f.cfg.Naming.HostsHost),
		zap.String("packages", f.cfg.Naming.PackagesHost))
	return "", fmt.Errorf("%w: %q", ErrUnknownEntity, host)
}

// validateActor returns the acknowledging user if they are trusted and did
// not close the problem by hand.
func (f *Fixer) validateActor(ctx context.Context, eventID string) (string, error) {
	acks, err := f.platform.GetEventAcknowledges(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("failed to get acknowledges: %w", err)
	}
	if len(acks) == 0 {
		return "", fmt.Errorf("event %s has no acknowledges", eventID)
	}

	ack := acks[0]
	actor := ack.User()
	if !slices.Contains(f.cfg.Fix.TrustedUsers, actor) {
		f.log.Info("Not trusted user in acknowledge, skipping this request to fix", zap.String("user", actor))
		return actor, fmt.Errorf("%w: %s", ErrUntrusted, actor)
	}

	if action, err := strconv.Atoi(ack.Action); err == nil && action&zabbix.AckActionClose != 0 {
		f.log.Info("Problem was manually closed, no further action required", zap.String("user", actor))
		return actor, ErrManuallyClosed
	}
	return actor, nil
}

// fixHost resolves the host's agent address and runs the command there.
func (f *Fixer) fixHost(ctx context.Context, name, command string) HostFixResult {
	res := HostFixResult{Name: name}

	if f.isVirtualHost(name) {
		res.Error = "refusing to run a fix on a vulners virtual host"
		return res
	}

	target, err := f.resolve(ctx, name)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Address = target.Address

	out, err := f.executor.Execute(ctx, target, command)
	res.Output = strings.TrimSpace(out)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	f.log.Info("Fix executed", zap.String("host", name), zap.String("output", res.Output))
	return res
}

func (f *Fixer) resolve(ctx context.Context, name string) (Target, error) {
	host, err := f.platform.GetHostByVisibleName(ctx, name)
	if err != nil {
		return Target{}, fmt.Errorf("can't find host %q: %w", name, err)
	}
	iface, err := f.platform.GetMainAgentInterface(ctx, host.HostID)
	if err != nil {
		return Target{}, fmt.Errorf("no agent interface on %q: %w", name, err)
	}

	t := Target{Name: name, Address: iface.Address(), Port: iface.Port}
	if t.Port == "" {
		t.Port = agentPort
	}
	if err := ValidateHostTarget(t.Address); err != nil {
		return Target{}, err
	}
	return t, nil
}

// isVirtualHost matches both technical and visible names of the aggregate
// hosts, since trigger text carries visible names.
func (f *Fixer) isVirtualHost(name string) bool {
	if f.cfg.IsVirtualHost(name) {
		return true
	}
	n := f.cfg.Naming
	switch name {
	case n.HostsVisibleName, n.PackagesVisibleName, n.BulletinsVisibleName, n.StatisticsVisibleName:
		return true
	}
	return false
}

// WriteMetrics flushes the fix counters to telemetry.fix_metrics_file. The
// scan keeps its own file since both runs share metric names.
func (f *Fixer) WriteMetrics() error {
	if f.metrics == nil {
		return nil
	}
	return f.metrics.WriteTextfile(f.cfg.Telemetry.FixMetricsFile)
}

func (f *Fixer) count(outcome string) {
	if f.metrics != nil {
		f.metrics.Host(telemetry.StageFix, outcome)
	}
}

// ResolveTargets extracts the host visible names and the fix command from
// a trigger's description and comments.
//
// Hosts triggers end their description with " = <visible name>" and their
// comments with "\r\n\r\n<fix>". Packages triggers end their comments with
// "\r\n\r\n<names, one per line>\r\n----\r\n<fix>".
func ResolveTargets(entity Entity, description, comments string) ([]string, string, error) {
	tail := afterLast(comments, fixSep)

	switch entity {
	case EntityHosts:
		name := strings.TrimSpace(afterLast(description, nameSep))
		fix := strings.TrimSpace(tail)
		if name == "" || fix == "" {
			return nil, "", fmt.Errorf("can't parse host or fix from trigger %q", description)
		}
		return []string{name}, fix, nil

	case EntityPackages:
		hostsPart, fix, ok := strings.Cut(tail, hostsSep)
		fix = strings.TrimSpace(fix)
		if !ok || fix == "" {
			return nil, "", fmt.Errorf("can't parse hosts and fix from trigger comments")
		}
		var names []string
		for line := range strings.Lines(hostsPart) {
			if line = strings.TrimSpace(line); line != "" {
				names = append(names, line)
			}
		}
		if len(names) == 0 {
			return nil, "", fmt.Errorf("trigger comments list no hosts")
		}
		return names, fix, nil
	}
	return nil, "", fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
}

// afterLast returns the text after the last sep, or s when sep is absent.
func afterLast(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}
