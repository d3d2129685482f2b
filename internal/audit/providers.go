package audit

import "go.uber.org/fx"

// Module provides the Vulners-backed Auditor.
var Module = fx.Module("audit",
	fx.Provide(fx.Annotate(NewVulnersAuditor, fx.As(new(Auditor)))),
)
