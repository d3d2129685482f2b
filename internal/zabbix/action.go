package zabbix

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FixCommand is the command line the acknowledge operation runs on the
// Zabbix server.
func (c *Client) FixCommand() string {
	return c.cfg.Fix.Command + " {HOST.HOST} {TRIGGER.ID} {EVENT.ID}"
}

// EnsureAction creates the action that runs the fix command when a problem
// on the hosts or packages virtual host is acknowledged. An existing action of
// the same name is backed up and disabled first.
func (c *Client) EnsureAction(ctx context.Context) error {
	n := c.cfg.Naming

	pkgs, err := c.GetHostByName(ctx, n.PackagesHost)
	if err != nil {
		return fmt.Errorf("virtual hosts must be created first: %w", err)
	}
	hosts, err := c.GetHostByName(ctx, n.HostsHost)
	if err != nil {
		return fmt.Errorf("virtual hosts must be created first: %w", err)
	}

	var actions []Action
	err = c.Get(ctx, "action", Params{
		"output": []string{"actionid", "name", "status", "eventsource"},
		"filter": Params{"name": n.ActionName},
	}, &actions)
	if err != nil {
		return fmt.Errorf("failed to get action: %w", err)
	}
	if len(actions) > 0 {
		a := actions[0]
		if err := c.backup(ctx, "action", "actionid", a.ActionID, map[string]string{"name": a.Name}); err != nil {
			return err
		}
	}

	opcommand, err := c.fixOpCommand(ctx)
	if err != nil {
		return err
	}

	actionID, err := c.createOne(ctx, "action", Params{
		"name":        n.ActionName,
		"eventsource": 0, // triggers
		"status":      StatusEnabled,
		"esc_period":  "120",
		"filter": Params{
			"evaltype": 0,
			"conditions": []Params{
				{"conditiontype": 1, "operator": 0, "value": pkgs.HostID, "formulaid": "A"},
				{"conditiontype": 1, "operator": 0, "value": hosts.HostID, "formulaid": "B"},
			},
		},
		"acknowledge_operations": []Params{{
			"operationtype": 1, // remote command
			"opcommand_hst": []Params{{"hostid": "0"}},
			"opcommand":     opcommand,
		}},
	})
	if err != nil {
		return err
	}
	c.log.Info("Created action", zap.String("name", n.ActionName), zap.String("actionid", actionID))
	return nil
}

// fixOpCommand builds the operation command. From 5.4 remote commands must
// reference a global script, so one is created or updated for the action.
func (c *Client) fixOpCommand(ctx context.Context) (Params, error) {
	if !c.VersionAtLeast(5, 4) {
		return Params{
			"type":       0, // custom script
			"execute_on": 2, // Zabbix server
			"command":    c.FixCommand(),
		}, nil
	}

	name := c.cfg.Naming.ActionName
	var scripts []struct {
		ScriptID string `json:"scriptid"`
	}
	err := c.Get(ctx, "script", Params{
		"output": []string{"scriptid"},
		"filter": Params{"name": name},
	}, &scripts)
	if err != nil {
		return nil, fmt.Errorf("failed to get script: %w", err)
	}

	script := Params{
		"name":       name,
		"type":       0, // custom script
		"scope":      1, // action operation
		"execute_on": 2, // Zabbix server
		"command":    c.FixCommand(),
	}
	if len(scripts) > 0 {
		script["scriptid"] = scripts[0].ScriptID
		if err := c.Update(ctx, "script", script); err != nil {
			return nil, fmt.Errorf("failed to update script: %w", err)
		}
		return Params{"scriptid": scripts[0].ScriptID}, nil
	}

	id, err := c.createOne(ctx, "script", script)
	if err != nil {
		return nil, err
	}
	return Params{"scriptid": id}, nil
}
