package zabbix

import "encoding/json"

// Host represents a Zabbix host
type Host struct {
	HostID     string          `json:"hostid"`
	Host       string          `json:"host"`
	Name       string          `json:"name"`
	Status     string          `json:"status,omitempty"`
	Interfaces []HostInterface `json:"interfaces,omitempty"`
	Groups     []HostGroup     `json:"groups,omitempty"`
	Templates  []Template      `json:"parentTemplates,omitempty"`
}

// Interface types and flags as the API reports them.
const (
	InterfaceAgent = "1"
	InterfaceMain  = "1"
	UseIP          = "1"
)

// HostInterface represents a Zabbix host interface
type HostInterface struct {
	InterfaceID string `json:"interfaceid"`
	IP          string `json:"ip"`
	DNS         string `json:"dns"`
	Port        string `json:"port"`
	Type        string `json:"type"`
	Main        string `json:"main"`
	UseIP       string `json:"useip"`
}

// Address returns ip when useip is set, else dns.
func (i HostInterface) Address() string {
	if i.UseIP == UseIP {
		return i.IP
	}
	return i.DNS
}

// HostGroup represents a Zabbix host group
type HostGroup struct {
	GroupID string `json:"groupid"`
	Name    string `json:"name"`
}

// Template represents a Zabbix template
type Template struct {
	TemplateID string `json:"templateid"`
	Host       string `json:"host"`
	Name       string `json:"name"`
}

// Item represents a Zabbix item
type Item struct {
	ItemID    string `json:"itemid"`
	HostID    string `json:"hostid"`
	Name      string `json:"name"`
	Key       string `json:"key_"`
	Value     string `json:"lastvalue"`
	ValueType string `json:"value_type"`
	State     string `json:"state"`
}

// Trigger represents a Zabbix trigger
type Trigger struct {
	TriggerID   string `json:"triggerid"`
	Description string `json:"description"`
	Comments    string `json:"comments"`
	Expression  string `json:"expression"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	Value       string `json:"value"`
	ManualClose string `json:"manual_close"`
	Hosts       []Host `json:"hosts,omitempty"`
}

// Event represents a Zabbix event
type Event struct {
	EventID      string        `json:"eventid"`
	ObjectID     string        `json:"objectid"`
	Clock        string        `json:"clock"`
	Name         string        `json:"name"`
	Severity     string        `json:"severity"`
	Acknowledged string        `json:"acknowledged"`
	Acknowledges []Acknowledge `json:"acknowledges,omitempty"`
}

// Acknowledge is one problem update. Zabbix 5.4 renamed alias to username.
type Acknowledge struct {
	AcknowledgeID string `json:"acknowledgeid"`
	UserID        string `json:"userid"`
	Username      string `json:"username"`
	Alias         string `json:"alias"`
	Message       string `json:"message"`
	Action        string `json:"action"`
	Clock         string `json:"clock"`
}

// AckActionClose is the "close problem" bit of Acknowledge.Action.
const AckActionClose = 1

// User returns the acknowledging user's login name.
func (a Acknowledge) User() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Alias
}

// Dashboard represents a Zabbix dashboard
type Dashboard struct {
	DashboardID string `json:"dashboardid"`
	Name        string `json:"name"`
}

// Action represents a Zabbix action
type Action struct {
	ActionID    string `json:"actionid"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	EventSource string `json:"eventsource"`
}

// Graph represents a Zabbix graph
type Graph struct {
	GraphID string `json:"graphid"`
	Name    string `json:"name"`
}

// APIResponse represents a generic Zabbix API response
type APIResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *APIError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// APIError represents a Zabbix API error
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *APIError) Error() string {
	return e.Message + ": " + e.Data
}
