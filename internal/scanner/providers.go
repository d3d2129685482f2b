package scanner

import (
	"go.uber.org/fx"

	"github.com/kidoz/zabbix-vuln-matrix/internal/audit"
	"github.com/kidoz/zabbix-vuln-matrix/internal/inventory"
	"github.com/kidoz/zabbix-vuln-matrix/internal/push"
	"github.com/kidoz/zabbix-vuln-matrix/internal/snapshot"
	"github.com/kidoz/zabbix-vuln-matrix/internal/telemetry"
	"github.com/kidoz/zabbix-vuln-matrix/internal/zabbix"
)

// Module provides all scanner dependencies for fx injection.
var Module = fx.Module("scanner",
	fx.Provide(
		New,
		inventory.NewEnricher,
		push.NewPusher,
		telemetry.NewRunMetrics,
		ProvidePlatform,
		push.ProvideRunner,
	),
	zabbix.Module,
	audit.Module,
	snapshot.Module,
)

// ProvidePlatform exposes the Zabbix client as the enricher's platform.
func ProvidePlatform(c *zabbix.Client) inventory.Platform {
	return c
}
