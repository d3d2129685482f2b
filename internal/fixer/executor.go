package fixer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/push"
)

const execTimeout = 60 * time.Second

// Executor runs a fix command on one target.
type Executor interface {
	Execute(ctx context.Context, t Target, command string) (string, error)
}

// RemoteExecutor runs fixes through the Zabbix agent (zabbix_get with
// system.run) or over ssh.
type RemoteExecutor struct {
	useAgent bool
	getPath  string
	sshUser  string
	runner   push.Runner
	log      *zap.Logger
}

// NewExecutor creates an executor from the fix settings.
func NewExecutor(cfg *config.Config, runner push.Runner, log *zap.Logger) *RemoteExecutor {
	if runner == nil {
		runner = push.ExecRunner{}
	}
	return &RemoteExecutor{
		useAgent: cfg.Fix.UseAgent,
		getPath:  cfg.Zabbix.GetPath,
		sshUser:  cfg.Fix.SSHUser,
		runner:   runner,
		log:      log,
	}
}

// Execute implements Executor.
func (e *RemoteExecutor) Execute(ctx context.Context, t Target, command string) (string, error) {
	args, err := e.Command(t, command)
	if err != nil {
		return "", err
	}
	e.log.Info("Executing fix", zap.String("host", t.Name), zap.String("command", strings.Join(args, " ")))

	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	out, err := e.runner.Run(ctx, args[0], args[1:]...)
	if err != nil {
		return string(out), fmt.Errorf("%s failed: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Command returns the argv that runs command on t.
func (e *RemoteExecutor) Command(t Target, command string) ([]string, error) {
	if err := ValidateHostTarget(t.Address); err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}
	if e.useAgent {
		return []string{e.getPath, "-s", t.Address, "-p", t.Port, "-k", SystemRunKey(command)}, nil
	}
	if err := ValidateSSHUser(e.sshUser); err != nil {
		return nil, fmt.Errorf("invalid SSH user: %w", err)
	}
	return []string{"ssh", "-o", "BatchMode=yes", "-o", "ConnectTimeout=10", t.Address, "-l", e.sshUser, command}, nil
}

// SystemRunKey builds system.run[<command>,nowait] so long package updates
// never block the agent. The command is quoted when the agent's key syntax
// requires it.
func SystemRunKey(command string) string {
	return "system.run[" + keyParam(command) + ",nowait]"
}

func keyParam(s string) string {
	if !strings.ContainsAny(s, `,]"`) && !strings.HasPrefix(s, " ") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
