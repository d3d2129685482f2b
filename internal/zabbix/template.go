package zabbix

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReportScriptMacro holds the agent-side command that prints OS inventory.
const ReportScriptMacro = "{$REPORT_SCRIPT_PATH}"

// OS-report item names. The enricher reads inventory by these names.
const (
	ItemOSName     = "OS - Name"
	ItemOSVersion  = "OS - Version"
	ItemOSPackages = "OS - Packages"
)

type reportItem struct {
	name      string
	arg       string
	valueType int
}

var reportItems = []reportItem{
	{ItemOSName, "os", 1},          // character
	{ItemOSVersion, "version", 1},  // character
	{ItemOSPackages, "package", 4}, // text
}

func reportItemKey(arg string) string {
	return "system.run[" + ReportScriptMacro + " " + arg + "]"
}

// EnsureOSReportTemplate creates the OS-Report template, or adds missing
// items to an existing one. When force is true the report macro is rewritten
// from the current configuration.
func (c *Client) EnsureOSReportTemplate(ctx context.Context, force bool) error {
	var templates []Template
	err := c.Get(ctx, "template", Params{
		"output": []string{"templateid", "host", "name"},
		"filter": Params{"host": c.cfg.Scan.OSReportTemplate},
	}, &templates)
	if err != nil {
		return fmt.Errorf("failed to check template: %w", err)
	}

	macros := []Params{{"macro": ReportScriptMacro, "value": c.cfg.Scan.ReportScriptPath}}

	if len(templates) > 0 {
		templateID := templates[0].TemplateID
		c.log.Info("OS-Report template already exists", zap.String("templateid", templateID))
		if force {
			if err := c.Update(ctx, "template", Params{"templateid": templateID, "macros": macros}); err != nil {
				return fmt.Errorf("failed to update template macros: %w", err)
			}
		}
		return c.ensureOSReportItems(ctx, templateID)
	}

	c.log.Info("Creating OS-Report template")

	groupID, err := c.templateGroupID(ctx, c.cfg.Scan.TemplateGroupName)
	if err != nil {
		return err
	}

	templateID, err := c.createOne(ctx, "template", Params{
		"host":   c.cfg.Scan.OSReportTemplate,
		"name":   c.cfg.Scan.OSReportVisibleName,
		"groups": []Params{{"groupid": groupID}},
		"macros": macros,
	})
	if err != nil {
		return err
	}
	return c.ensureOSReportItems(ctx, templateID)
}

// templateGroupID returns a group suitable for templates. Zabbix 6.2 split
// template groups from host groups.
func (c *Client) templateGroupID(ctx context.Context, name string) (string, error) {
	if c.VersionAtLeast(6, 2) {
		return c.ensureTemplateGroup(ctx, name)
	}
	return c.ensureHostGroup(ctx, name)
}

// ensureOSReportItems creates whichever report items the template lacks.
func (c *Client) ensureOSReportItems(ctx context.Context, templateID string) error {
	var items []Item
	err := c.Get(ctx, "item", Params{
		"output":      []string{"itemid", "key_"},
		"templateids": templateID,
	}, &items)
	if err != nil {
		return fmt.Errorf("failed to get template items: %w", err)
	}

	existing := make(map[string]bool, len(items))
	for _, item := range items {
		existing[item.Key] = true
	}

	for _, ri := range reportItems {
		key := reportItemKey(ri.arg)
		if existing[key] {
			continue
		}
		_, err := c.createOne(ctx, "item", Params{
			"hostid":     templateID,
			"name":       ri.name,
			"key_":       key,
			"type":       0, // Zabbix agent
			"value_type": ri.valueType,
			"delay":      "1d",
		})
		if err != nil {
			return fmt.Errorf("failed to create item %s: %w", ri.name, err)
		}
		c.log.Info("Created template item", zap.String("key", key))
	}
	return nil
}
