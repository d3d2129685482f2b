package zabbix

import (
	"context"
	"fmt"
)

var hostOutput = []string{"hostid", "host", "name", "status"}

// GetHostsWithTemplate returns monitored hosts linked to the template with the
// given technical name, in the order the API returns them.
func (c *Client) GetHostsWithTemplate(ctx context.Context, templateName string) ([]Host, error) {
	var templates []Template
	err := c.Get(ctx, "template", Params{
		"output": []string{"templateid", "host", "name"},
		"filter": Params{"host": templateName},
	}, &templates)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("template %s: %w", templateName, ErrNotFound)
	}

	var hosts []Host
	err = c.Get(ctx, "host", Params{
		"output":          hostOutput,
		"templateids":     templates[0].TemplateID,
		"monitored_hosts": true,
		"sortfield":       "hostid",
	}, &hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to get hosts: %w", err)
	}
	return hosts, nil
}

// GetHostByID returns a host by its ID
func (c *Client) GetHostByID(ctx context.Context, hostID string) (*Host, error) {
	return c.getOneHost(ctx, Params{"hostids": hostID}, hostID)
}

// GetHostByName returns a host by its technical name
func (c *Client) GetHostByName(ctx context.Context, name string) (*Host, error) {
	return c.getOneHost(ctx, Params{"filter": Params{"host": name}}, name)
}

// GetHostByVisibleName returns a host by its visible name
func (c *Client) GetHostByVisibleName(ctx context.Context, name string) (*Host, error) {
	return c.getOneHost(ctx, Params{"filter": Params{"name": name}}, name)
}

func (c *Client) getOneHost(ctx context.Context, params Params, what string) (*Host, error) {
	params["output"] = hostOutput
	var hosts []Host
	if err := c.Get(ctx, "host", params, &hosts); err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("host %s: %w", what, ErrNotFound)
	}
	return &hosts[0], nil
}

// GetHostItems returns items of a host whose key contains keyPattern.
func (c *Client) GetHostItems(ctx context.Context, hostID, keyPattern string) ([]Item, error) {
	var items []Item
	err := c.Get(ctx, "item", Params{
		"output":  []string{"itemid", "hostid", "name", "key_", "lastvalue", "value_type", "state"},
		"hostids": hostID,
		"search":  Params{"key_": keyPattern},
	}, &items)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	return items, nil
}

// GetMainAgentInterface returns the host's main Zabbix agent interface.
func (c *Client) GetMainAgentInterface(ctx context.Context, hostID string) (*HostInterface, error) {
	var ifaces []HostInterface
	err := c.Get(ctx, "hostinterface", Params{
		"output":  []string{"interfaceid", "ip", "dns", "port", "type", "main", "useip"},
		"hostids": hostID,
		"filter":  Params{"main": InterfaceMain, "type": InterfaceAgent},
	}, &ifaces)
	if err != nil {
		return nil, fmt.Errorf("failed to get interfaces: %w", err)
	}
	if len(ifaces) == 0 {
		return nil, fmt.Errorf("agent interface of host %s: %w", hostID, ErrNotFound)
	}
	return &ifaces[0], nil
}

// GetTrigger returns a trigger with its description, comments and hosts.
func (c *Client) GetTrigger(ctx context.Context, triggerID string) (*Trigger, error) {
	var triggers []Trigger
	err := c.Get(ctx, "trigger", Params{
		"output":      "extend",
		"triggerids":  triggerID,
		"selectHosts": []string{"hostid", "host", "name"},
	}, &triggers)
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger: %w", err)
	}
	if len(triggers) == 0 {
		return nil, fmt.Errorf("trigger %s: %w", triggerID, ErrNotFound)
	}
	return &triggers[0], nil
}

// GetEventAcknowledges returns the acknowledges of an event, oldest first.
func (c *Client) GetEventAcknowledges(ctx context.Context, eventID string) ([]Acknowledge, error) {
	var events []Event
	err := c.Get(ctx, "event", Params{
		"output":              []string{"eventid", "objectid", "name"},
		"eventids":            eventID,
		"select_acknowledges": "extend",
	}, &events)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return events[0].Acknowledges, nil
}

// ensureHostGroup returns the ID of the named host group, creating it if
// needed.
func (c *Client) ensureHostGroup(ctx context.Context, name string) (string, error) {
	return c.ensureGroup(ctx, "hostgroup", name)
}

// ensureTemplateGroup is ensureHostGroup for Zabbix >= 6.2 template groups.
func (c *Client) ensureTemplateGroup(ctx context.Context, name string) (string, error) {
	return c.ensureGroup(ctx, "templategroup", name)
}

func (c *Client) ensureGroup(ctx context.Context, object, name string) (string, error) {
	var groups []HostGroup
	err := c.Get(ctx, object, Params{
		"output": []string{"groupid", "name"},
		"filter": Params{"name": name},
	}, &groups)
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", object, err)
	}
	if len(groups) > 0 {
		return groups[0].GroupID, nil
	}
	return c.createOne(ctx, object, Params{"name": name})
}
