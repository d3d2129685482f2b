package fixer

import (
	"go.uber.org/fx"

	"github.com/kidoz/zabbix-vuln-matrix/internal/push"
	"github.com/kidoz/zabbix-vuln-matrix/internal/telemetry"
	"github.com/kidoz/zabbix-vuln-matrix/internal/zabbix"
)

// Module provides all fixer dependencies for fx injection.
var Module = fx.Module("fixer",
	fx.Provide(
		New,
		fx.Annotate(NewExecutor, fx.As(new(Executor))),
		ProvidePlatform,
		push.ProvideRunner,
		telemetry.NewRunMetrics,
	),
	zabbix.Module,
)

// ProvidePlatform exposes the Zabbix client to the fixer.
func ProvidePlatform(c *zabbix.Client) Platform {
	return c
}
