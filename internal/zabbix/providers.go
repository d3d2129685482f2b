package zabbix

import (
	"context"

	"go.uber.org/fx"
)

// Module provides a logged-in Zabbix client and logs it out on shutdown.
var Module = fx.Module("zabbix",
	fx.Provide(NewClient),
	fx.Invoke(func(lc fx.Lifecycle, c *Client) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return c.Close() }})
	}),
)
