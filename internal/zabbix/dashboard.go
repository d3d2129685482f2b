package zabbix

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/lld"
	"github.com/kidoz/zabbix-vuln-matrix/internal/matrix"
)

// ScoreMacro is the per-host threshold the trigger prototypes compare with.
const ScoreMacro = "{$SCORE.MIN}"

// Graph names on the statistics host.
const (
	GraphMedian = "Median CVSS Score"
	GraphRatio  = "CVSS Score ratio by servers"
)

// Pie colours for histogram buckets 0..10.
var ratioColors = [matrix.HistogramBuckets]string{
	"DD0000", "EE0000", "FF3333", "EEEE00", "FFFF66", "00EEEE",
	"00DDDD", "3333FF", "6666FF", "00DD00", "33FF33",
}

// discovery describes one virtual host's LLD rule and its prototypes.
type discovery struct {
	host, name   string
	ruleName     string
	ruleKey      string
	protoName    string
	protoKey     string
	trigDesc     string
	trigURL      string
	trigComments string
}

func (c *Client) discoveries() []discovery {
	n := c.cfg.Naming
	return []discovery{
		{
			host: n.HostsHost, name: n.HostsVisibleName,
			ruleName:     "Hosts",
			ruleKey:      lld.HostsDiscoveryKey,
			protoName:    "CVSS Score on {#H.HOST} [{#H.VNAME}]",
			protoKey:     lld.HostScoreKey("{#H.ID}"),
			trigDesc:     "Score {#H.SCORE}. Host = {#H.VNAME}",
			trigComments: "Cumulative fix:\r\n\r\n{#H.FIX}",
		},
		{
			host: n.BulletinsHost, name: n.BulletinsVisibleName,
			ruleName:     "Bulletins",
			ruleKey:      lld.BulletinsDiscoveryKey,
			protoName:    "[{#BULLETIN.SCORE}] [{#BULLETIN.ID}] - affected hosts",
			protoKey:     lld.BulletinKey("{#BULLETIN.ID}"),
			trigDesc:     "Impact {#BULLETIN.IMPACT}. Score {#BULLETIN.SCORE}. Affected {ITEM.LASTVALUE}. Bulletin = {#BULLETIN.ID}",
			trigURL:      "https://vulners.com/info/{#BULLETIN.ID}",
			trigComments: "Vulnerabilities are found on:\r\n\r\n{#BULLETIN.HOSTS}",
		},
		{
			host: n.PackagesHost, name: n.PackagesVisibleName,
			ruleName:     "Packages",
			ruleKey:      lld.PackagesDiscoveryKey,
			protoName:    "[{#PKG.SCORE}] [{#PKG.ID}] - affected hosts",
			protoKey:     lld.PackageKey("{#PKG.ID}"),
			trigDesc:     "Impact {#PKG.IMPACT}. Score {#PKG.SCORE}. Affected {ITEM.LASTVALUE}. Package = {#PKG.ID}",
			trigURL:      "https://vulners.com/info/{#PKG.URL}",
			trigComments: "Vulnerabilities are found on:\r\n\r\n{#PKG.HOSTS}\r\n----\r\n{#PKG.FIX}",
		},
	}
}

// triggerExpression compares an item's last value with the score macro,
// using the function syntax introduced in Zabbix 5.4 when available.
func (c *Client) triggerExpression(host, key string) string {
	if c.VersionAtLeast(5, 4) {
		return fmt.Sprintf("last(/%s/%s)>=%s", host, key, ScoreMacro)
	}
	return fmt.Sprintf("{%s:%s.last()}>=%s", host, key, ScoreMacro)
}

// EnsureVirtualHosts creates the hosts, packages, bulletins and statistics
// virtual hosts. Existing hosts are kept unless force is set, in which case
// they are backed up and recreated.
func (c *Client) EnsureVirtualHosts(ctx context.Context, force bool) error {
	groupID, err := c.ensureHostGroup(ctx, c.cfg.Naming.GroupName)
	if err != nil {
		return fmt.Errorf("failed to ensure host group: %w", err)
	}

	for _, d := range c.discoveries() {
		hostID, created, err := c.ensureVirtualHost(ctx, d.host, d.name, groupID, force)
		if err != nil {
			return fmt.Errorf("failed to create virtual host %s: %w", d.host, err)
		}
		if !created {
			continue
		}
		if err := c.createDiscovery(ctx, hostID, d); err != nil {
			return fmt.Errorf("failed to create discovery on %s: %w", d.host, err)
		}
	}

	n := c.cfg.Naming
	hostID, created, err := c.ensureVirtualHost(ctx, n.StatisticsHost, n.StatisticsVisibleName, groupID, force)
	if err != nil {
		return fmt.Errorf("failed to create virtual host %s: %w", n.StatisticsHost, err)
	}
	if created {
		if err := c.createStatistics(ctx, hostID); err != nil {
			return fmt.Errorf("failed to create statistics: %w", err)
		}
	}

	c.log.Info("Virtual hosts ready")
	return nil
}

// ensureVirtualHost returns the ID of the named host and whether it was
// created by this call.
func (c *Client) ensureVirtualHost(ctx context.Context, host, name, groupID string, force bool) (string, bool, error) {
	existing, err := c.GetHostByName(ctx, host)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return "", false, err
	case !force:
		c.log.Debug("Virtual host already exists", zap.String("host", host))
		return existing.HostID, false, nil
	default:
		if err := c.backup(ctx, "host", "hostid", existing.HostID, map[string]string{
			"host": existing.Host,
			"name": existing.Name,
		}); err != nil {
			return "", false, err
		}
	}

	// The agent interface is required by the API but never polled.
	hostID, err := c.createOne(ctx, "host", Params{
		"host":   host,
		"name":   name,
		"groups": []Params{{"groupid": groupID}},
		"interfaces": []Params{{
			"type":  1,
			"main":  1,
			"useip": 1,
			"ip":    "127.0.0.1",
			"dns":   c.cfg.Zabbix.ServerFQDN,
			"port":  "10050",
		}},
		"macros": []Params{{
			"macro": ScoreMacro,
			"value": strconv.FormatFloat(c.cfg.Scan.MinCVSS, 'g', -1, 64),
		}},
	})
	if err != nil {
		return "", false, err
	}
	c.log.Info("Created virtual host", zap.String("host", host), zap.String("hostid", hostID))
	return hostID, true, nil
}

// createDiscovery adds the trapper LLD rule with its item and trigger
// prototypes to a virtual host.
func (c *Client) createDiscovery(ctx context.Context, hostID string, d discovery) error {
	ruleID, err := c.createOne(ctx, "discoveryrule", Params{
		"hostid":   hostID,
		"name":     d.ruleName,
		"key_":     d.ruleKey,
		"type":     2, // Zabbix trapper
		"lifetime": "0",
	})
	if err != nil {
		return err
	}

	if _, err := c.createOne(ctx, "itemprototype", Params{
		"hostid":     hostID,
		"ruleid":     ruleID,
		"name":       d.protoName,
		"key_":       d.protoKey,
		"type":       2,
		"value_type": 0, // numeric float
		"delay":      "0",
	}); err != nil {
		return err
	}

	_, err = c.createOne(ctx, "triggerprototype", Params{
		"expression":   c.triggerExpression(d.host, d.protoKey),
		"description":  d.trigDesc,
		"url":          d.trigURL,
		"comments":     d.trigComments,
		"manual_close": 1,
		"priority":     "0",
		"status":       "0",
	})
	return err
}

type statItem struct {
	name      string
	key       string
	valueType int // 0 float, 3 unsigned
}

func statItems() []statItem {
	items := []statItem{
		{"CVSS Score - Total hosts", lld.StatHostsCount, 3},
		{"CVSS Score - Maximum", lld.StatMax, 0},
		{"CVSS Score - Average", lld.StatMean, 0},
		{"CVSS Score - Minimum", lld.StatMin, 0},
		{"CVSS Score - Median", lld.StatMedian, 0},
	}
	for i := matrix.HistogramBuckets - 1; i >= 0; i-- {
		items = append(items, statItem{
			name:      fmt.Sprintf("CVSS Score - Hosts with a score ~ %d", i),
			key:       lld.HistogramKey(i),
			valueType: 3,
		})
	}
	return items
}

// createStatistics adds the fleet statistics items and both graphs.
func (c *Client) createStatistics(ctx context.Context, hostID string) error {
	itemIDs := make(map[string]string)
	for _, item := range statItems() {
		id, err := c.createOne(ctx, "item", Params{
			"hostid":     hostID,
			"name":       item.name,
			"key_":       item.key,
			"type":       2,
			"value_type": item.valueType,
			"delay":      "0",
		})
		if err != nil {
			return fmt.Errorf("failed to create item %s: %w", item.key, err)
		}
		itemIDs[item.key] = id
	}

	if _, err := c.createOne(ctx, "graph", Params{
		"name":             GraphMedian,
		"width":            1000,
		"height":           300,
		"show_work_period": 0,
		"graphtype":        0, // normal
		"show_legend":      0,
		"show_3d":          0,
		"gitems": []Params{{
			"itemid":   itemIDs[lld.StatMedian],
			"color":    "00AAAA",
			"drawtype": "5",
		}},
	}); err != nil {
		return err
	}

	gitems := make([]Params, 0, matrix.HistogramBuckets)
	for i := range matrix.HistogramBuckets {
		gitems = append(gitems, Params{
			"itemid":   itemIDs[lld.HistogramKey(i)],
			"color":    ratioColors[i],
			"drawtype": "5",
			"calc_fnc": "9", // last
		})
	}
	_, err := c.createOne(ctx, "graph", Params{
		"name":             GraphRatio,
		"width":            1000,
		"height":           300,
		"show_work_period": 0,
		"graphtype":        2, // pie
		"show_legend":      0,
		"show_3d":          1,
		"gitems":           gitems,
	})
	return err
}

// EnsureDashboard creates the Vulners dashboard. When force is true an
// existing dashboard is deleted and recreated.
func (c *Client) EnsureDashboard(ctx context.Context, force bool) error {
	dashboardName := c.cfg.Naming.DashboardName

	var dashboards []Dashboard
	err := c.Get(ctx, "dashboard", Params{
		"output": []string{"dashboardid", "name"},
		"filter": Params{"name": dashboardName},
	}, &dashboards)
	if err != nil {
		return fmt.Errorf("failed to get dashboard: %w", err)
	}

	if len(dashboards) > 0 {
		if !force {
			c.log.Info("Dashboard already exists")
			return nil
		}
		c.log.Info("Force mode: deleting existing dashboard")
		if err := c.Delete(ctx, "dashboard", []string{dashboards[0].DashboardID}); err != nil {
			return fmt.Errorf("failed to delete dashboard: %w", err)
		}
	}

	widgets, err := c.dashboardWidgets(ctx)
	if err != nil {
		return err
	}

	params := Params{
		"name":           dashboardName,
		"display_period": 30,
		"auto_start":     1,
	}
	if c.VersionAtLeast(5, 2) {
		params["pages"] = []Params{{"widgets": widgets}}
	} else {
		params["widgets"] = widgets
	}

	if _, err := c.createOne(ctx, "dashboard", params); err != nil {
		return err
	}
	c.log.Info("Created dashboard", zap.String("name", dashboardName))
	return nil
}

func (c *Client) dashboardWidgets(ctx context.Context) ([]Params, error) {
	n := c.cfg.Naming
	hostIDs := make(map[string]string)
	for _, name := range []string{n.HostsHost, n.PackagesHost, n.BulletinsHost, n.StatisticsHost} {
		h, err := c.GetHostByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("virtual hosts must be created first: %w", err)
		}
		hostIDs[name] = h.HostID
	}

	var graphs []Graph
	err := c.Get(ctx, "graph", Params{
		"output":  []string{"graphid", "name"},
		"hostids": hostIDs[n.StatisticsHost],
		"filter":  Params{"name": []string{GraphMedian, GraphRatio}},
	}, &graphs)
	if err != nil {
		return nil, fmt.Errorf("failed to get graphs: %w", err)
	}
	graphIDs := make(map[string]string, len(graphs))
	for _, g := range graphs {
		graphIDs[g.Name] = g.GraphID
	}

	problems := func(name, hostID, rate string, x, y int) Params {
		return Params{
			"type": "problems", "name": name,
			"x": x, "y": y, "width": 8, "height": 8,
			"fields": []Params{
				{"type": 0, "name": "rf_rate", "value": rate},
				{"type": 0, "name": "show", "value": "3"},
				{"type": 0, "name": "show_lines", "value": "100"},
				{"type": 0, "name": "sort_triggers", "value": "16"},
				{"type": 3, "name": "hostids", "value": hostID},
			},
		}
	}
	graph := func(name string, y int) Params {
		return Params{
			"type": "graph", "name": name,
			"x": 0, "y": y, "width": 8, "height": 4,
			"fields": []Params{
				{"type": 0, "name": "rf_rate", "value": "600"},
				{"type": 0, "name": "show_legend", "value": "0"},
				{"type": 6, "name": "graphid", "value": graphIDs[name]},
			},
		}
	}

	widgets := []Params{
		problems(n.HostsVisibleName, hostIDs[n.HostsHost], "600", 0, 8),
		problems(n.PackagesVisibleName, hostIDs[n.PackagesHost], "600", 8, 0),
		problems(n.BulletinsVisibleName, hostIDs[n.BulletinsHost], "900", 8, 8),
	}
	for _, g := range []struct {
		name string
		y    int
	}{{GraphRatio, 0}, {GraphMedian, 4}} {
		if graphIDs[g.name] == "" {
			c.log.Warn("Graph not found, widget skipped", zap.String("graph", g.name))
			continue
		}
		widgets = append(widgets, graph(g.name, g.y))
	}
	return widgets, nil
}
