// Package push hands emitted files to zabbix_sender.
package push

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
)

const senderTimeout = 60 * time.Second

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec // G204: args come from validated config
}

// ProvideRunner runs commands as subprocesses.
func ProvideRunner() Runner {
	return ExecRunner{}
}

// Pusher ships the discovery file, waits for the platform to create the
// discovered items, then ships the data file.
type Pusher struct {
	senderPath string
	server     string
	port       int
	delay      time.Duration

	runner Runner
	log    *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewPusher creates a pusher from config.
func NewPusher(cfg *config.Config, runner Runner, log *zap.Logger) *Pusher {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Pusher{
		senderPath: cfg.Zabbix.SenderPath,
		server:     cfg.Zabbix.ServerFQDN,
		port:       cfg.Zabbix.ServerPort,
		delay:      time.Duration(cfg.Scan.LLDDelay) * time.Second,
		runner:     runner,
		log:        log,
		sleep:      sleepContext,
	}
}

// Command returns the sender invocation for one input file.
func (p *Pusher) Command(file string) []string {
	return []string{p.senderPath, "-z", p.server, "-p", strconv.Itoa(p.port), "-i", file}
}

// DryRun logs the commands an operator would run by hand.
func (p *Pusher) DryRun(lldFile, dataFile string) {
	p.log.Info("push disabled, run manually",
		zap.String("commands", fmt.Sprintf("%s; sleep %d; %s",
			strings.Join(p.Command(lldFile), " "),
			int(p.delay.Seconds()),
			strings.Join(p.Command(dataFile), " "))))
}

// Push sends lldFile, sleeps for the configured delay and sends dataFile.
// Sender failures are logged with their output and do not stop the run;
// only context cancellation during the delay returns an error.
func (p *Pusher) Push(ctx context.Context, lldFile, dataFile string) error {
	p.send(ctx, "discovery", lldFile)

	p.log.Info("waiting for discovery to create items", zap.Duration("delay", p.delay))
	if err := p.sleep(ctx, p.delay); err != nil {
		return fmt.Errorf("push interrupted before sending data: %w", err)
	}

	p.send(ctx, "data", dataFile)
	return nil
}

func (p *Pusher) send(ctx context.Context, what, file string) {
	args := p.Command(file)
	p.log.Info("pushing to Zabbix", zap.String("payload", what), zap.String("command", strings.Join(args, " ")))

	ctx, cancel := context.WithTimeout(ctx, senderTimeout)
	defer cancel()

	out, err := p.runner.Run(ctx, args[0], args[1:]...)
	if err != nil {
		p.log.Error("zabbix_sender failed",
			zap.String("payload", what),
			zap.String("output", strings.TrimSpace(string(out))),
			zap.Error(err))
		return
	}
	p.log.Info("zabbix_sender completed",
		zap.String("payload", what),
		zap.String("output", strings.TrimSpace(string(out))))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
