package zabbix

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
)

type rpcCall struct {
	Method string
	Params json.RawMessage
	Auth   string
	Header string
}

// recorder keeps every request a test server received.
type recorder struct {
	mu    sync.Mutex
	calls []rpcCall
}

func (r *recorder) add(c rpcCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recorder) all() []rpcCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]rpcCall(nil), r.calls...)
}

func (r *recorder) methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Method
	}
	return out
}

func (r *recorder) count(method string) int {
	n := 0
	for _, m := range r.methods() {
		if m == method {
			n++
		}
	}
	return n
}

// params returns the decoded params of every call to method.
func (r *recorder) params(t *testing.T, method string) []map[string]any {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]any
	for _, c := range r.calls {
		if c.Method != method {
			continue
		}
		var p map[string]any
		if err := json.Unmarshal(c.Params, &p); err != nil {
			t.Fatalf("decode %s params: %v", method, err)
		}
		out = append(out, p)
	}
	return out
}

// newTestServer creates an httptest.Server that speaks Zabbix JSON-RPC.
// The handler receives the method name and params and returns the result
// value, which is marshalled into the APIResponse.
func newTestServer(t *testing.T, handler func(method string, params json.RawMessage) (any, *APIError)) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			Auth   string          `json:"auth"`
			ID     int             `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		rec.add(rpcCall{Method: req.Method, Params: req.Params, Auth: req.Auth, Header: r.Header.Get("Authorization")})

		result, apiErr := handler(req.Method, req.Params)
		raw, err := json.Marshal(result)
		if err != nil {
			t.Errorf("marshal result: %v", err)
			return
		}
		resp := APIResponse{JSONRPC: "2.0", Result: raw, Error: apiErr, ID: req.ID}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(ts.Close)
	return ts, rec
}

// newTestClient creates a Client backed by the given test server.
// It skips the real authenticate/version calls and sets the authToken directly.
func newTestClient(t *testing.T, ts *httptest.Server, version string) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Zabbix.FrontURL = ts.URL
	return &Client{
		cfg:        cfg,
		log:        zap.NewNop(),
		httpClient: ts.Client(),
		authToken:  "test-token",
		apiVersion: version,
	}
}

// createIDs answers any *.create call with a single generated ID.
func createIDs(method string) (any, bool) {
	object, ok := strings.CutSuffix(method, ".create")
	if !ok {
		return nil, false
	}
	return map[string][]string{object + "ids": {object + "-1"}}, true
}

func TestNewClient_AuthenticatesAndFetchesVersion(t *testing.T) {
	ts, rec := newTestServer(t, func(method string, _ json.RawMessage) (any, *APIError) {
		switch method {
		case "apiinfo.version":
			return "7.0.0", nil
		case "user.login":
			return "fake-auth-token", nil
		default:
			return nil, &APIError{Code: -1, Message: "unexpected", Data: method}
		}
	})

	cfg := config.DefaultConfig()
	cfg.Zabbix.FrontURL = ts.URL
	cfg.Zabbix.APIUser = "Admin"
	cfg.Zabbix.APIPassword = "zabbix"

	c, err := NewClient(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if c.APIVersion() != "7.0.0" {
		t.Errorf("apiVersion = %q, want 7.0.0", c.APIVersion())
	}
	if c.authToken != "fake-auth-token" {
		t.Errorf("authToken = %q, want fake-auth-token", c.authToken)
	}
	got := rec.methods()
	if len(got) != 2 || got[0] != "apiinfo.version" || got[1] != "user.login" {
		t.Errorf("methods = %v, want [apiinfo.version user.login]", got)
	}
	login := rec.params(t, "user.login")[0]
	if login["username"] != "Admin" {
		t.Errorf("login params = %v, want username=Admin", login)
	}
}

func TestNewClient_LegacyUserParam(t *testing.T) {
	ts, rec := newTestServer(t, func(method string, _ json.RawMessage) (any, *APIError) {
		if method == "apiinfo.version" {
			return "5.0.3", nil
		}
		return "token", nil
	})

	cfg := config.DefaultConfig()
	cfg.Zabbix.FrontURL = ts.URL
	cfg.Zabbix.APIUser = "Admin"

	if _, err := NewClient(cfg, zap.NewNop()); err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	login := rec.params(t, "user.login")[0]
	if login["user"] != "Admin" {
		t.Errorf("login params = %v, want user=Admin", login)
	}
}

func TestNewClient_AuthFailure(t *testing.T) {
	ts, _ := newTestServer(t, func(method string, _ json.RawMessage) (any, *APIError) {
		switch method {
		case "apiinfo.version":
			return "7.0.0", nil
		case "user.login":
			return nil, &APIError{Code: -32602, Message: "Login failed", Data: "bad creds"}
		default:
			return nil, nil
		}
	})

	cfg := config.DefaultConfig()
	cfg.Zabbix.FrontURL = ts.URL

	_, err := NewClient(cfg, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for bad credentials")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != -32602 {
		t.Errorf("err = %v, want wrapped APIError -32602", err)
	}
}

func TestCall_AuthPlacement(t *testing.T) {
	tests := []struct {
		version    string
		wantHeader string
		wantAuth   string
	}{
		{"6.0.10", "", "test-token"},
		{"6.4.1", "Bearer test-token", ""},
		{"7.0.0", "Bearer test-token", ""},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			ts, rec := newTestServer(t, func(string, json.RawMessage) (any, *APIError) {
				return []any{}, nil
			})
			c := newTestClient(t, ts, tt.version)

			var hosts []Host
			if err := c.Get(context.Background(), "host", Params{}, &hosts); err != nil {
				t.Fatalf("Get: %v", err)
			}
			call := rec.all()[0]
			if call.Header != tt.wantHeader {
				t.Errorf("Authorization = %q, want %q", call.Header, tt.wantHeader)
			}
			if call.Auth != tt.wantAuth {
				t.Errorf("auth = %q, want %q", call.Auth, tt.wantAuth)
			}
		})
	}
}

func TestGetHostByID(t *testing.T) {
	ts, _ := newTestServer(t, func(method string, _ json.RawMessage) (any, *APIError) {
		if method == "host.get" {
			return []map[string]any{
				{"hostid": "10084", "host": "webserver01", "name": "Web Server 01", "status": "0"},
			}, nil
		}
		return nil, &APIError{Code: -1, Message: "unexpected", Data: method}
	})
	c := newTestClient(t, ts, "7.0.0")

	host, err := c.GetHostByID(context.Background(), "10084")
	if err != nil {
		t.Fatalf("GetHostByID: %v", err)
	}
	if host.HostID != "10084" {
		t.Errorf("hostid = %q, want 10084", host.HostID)
	}
	if host.Name != "Web Server 01" {
		t.Errorf("name = %q, want Web Server 01", host.Name)
	}
}

func TestGetHostByID_NotFound(t *testing.T) {
	ts, _ := newTestServer(t, func(string, json.RawMessage) (any, *APIError) {
		return []any{}, nil
	})
	c := newTestClient(t, ts, "7.0.0")

	_, err := c.GetHostByID(context.Background(), "99999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetHostByVisibleName(t *testing.T) {
	ts, rec := newTestServer(t, func(method string, _ json.RawMessage) (any, *APIError) {
		return []map[string]any{{"hostid": "10084", "host": "webserver01", "name": "Web Server 01"}}, nil
	})
	c := newTestClient(t, ts, "7.0.0")

	host, err := c.GetHostByVisibleName(context.Background(), "Web Server 01")
	if err != nil {
		t.Fatalf("GetHostByVisibleName: %v", err)
	}
	if host.Host != "webserver01" {
		t.Errorf("host = %q, want webserver01", host.Host)
	}
	filter, _ := rec.params(t, "host.get")[0]["filter"].(map[string]any)
	if filter["name"] != "Web Server 01" {
		t.Errorf("filter = %v, want name filter", filter)
	}
}

func TestGetHostItems(t *testing.T) {
	ts, _ := newTestServer(t, func(method string, _ json.RawMessage) (any, *APIError) {
		if method == "item.get" {
			return []map[string]any{
				{
					"itemid":     "28001",
					"hostid":     "10084",
					"name":       ItemOSPackages,
					"key_":       reportItemKey("package"),
					"lastvalue":  "nginx 1.18.0\ncurl 7.68.0",
					"value_type": "4",
					"state":      "0",
				},
			}, nil
		}
		return nil, nil
	})
	c := newTestClient(t, ts, "7.0.0")

	items, err := c.GetHostItems(context.Background(), "10084", ReportScriptMacro)
	if err != nil {
		t.Fatalf("GetHostItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if items[0].Key != "system.run[{$REPORT_SCRIPT_PATH} package]" {
		t.Errorf("key = %q", items[0].Key)
	}
}

func TestGetHostsWithTemplate(t *testing.T) {
	ts, rec := newTestServer(t, func(method string, _ json.RawMessage) (any, *APIError) {
		switch method {
		case "template.get":
			return []map[string]any{
				{"templateid": "10001", "host": "tmpl.vulners.os-report", "name": "OS Report"},
			}, nil
		case "host.get":
			return []map[string]any{
				{"hostid": "10084", "host": "web01", "name": "Web 01", "status": "0"},
				{"hostid": "10085", "host": "web02", "name": "Web 02", "status": "0"},
			}, nil
		}
		return nil, nil
	})
	c := newTestClient(t, ts, "7.0.0")

	hosts, err := c.GetHostsWithTemplate(context.Background(), "tmpl.vulners.os-report")
	if err != nil {
		t.Fatalf("GetHostsWithTemplate: %v", err)
	}
	if len(hosts) != 2 {
		t.Errorf("len(hosts) = %d, want 2", len(hosts))
	}
	p := rec.params(t, "host.get")[0]
	if p["templateids"] != "10001" || p["monitored_hosts"] != true {
		t.Errorf("host.get params = %v", p)
	}
}

func TestGetHostsWithTemplate_TemplateNotFound(t *testing.T) {
	ts, _ := newTestServer(t, func(string, json.RawMessage) (any, *APIError) {
		return []any{}, nil
	})
	c := newTestClient(t, ts, "7.0.0")

	_, err := c.GetHostsWithTemplate(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetMainAgentInterface(t *testing.T) {
	ts, _ := newTestServer(t, func(string, json.RawMessage) (any, *APIError) {
		return []map[string]any{
			{"interfaceid": "1", "ip": "10.0.0.5", "dns": "web01.example.com", "port": "10050", "type": "1", "main": "1", "useip": "0"},
		}, nil
	})
	c := newTestClient(t, ts, "7.0.0")

	iface, err := c.GetMainAgentInterface(context.Background(), "10084")
	if err != nil {
		t.Fatalf("GetMainAgentInterface: %v", err)
	}
	if got := iface.Address(); got != "web01.example.com" {
		t.Errorf("Address() = %q, want dns name when useip=0", got)
	}
	iface.UseIP = UseIP
	if got := iface.Address(); got != "10.0.0.5" {
		t.Errorf("Address() = %q, want ip when useip=1", got)
	}
}

func TestGetEventAcknowledges(t *testing.T) {
	ts, _ := newTestServer(t, func(string, json.RawMessage) (any, *APIError) {
		return []map[string]any{{
			"eventid": "500",
			"acknowledges": []map[string]any{
				{"acknowledgeid": "1", "alias": "Admin", "action": "6", "message": "fix it"},
				{"acknowledgeid": "2", "username": "ops", "action": "7"},
			},
		}}, nil
	})
	c := newTestClient(t, ts, "5.0.3")

	acks, err := c.GetEventAcknowledges(context.Background(), "500")
	if err != nil {
		t.Fatalf("GetEventAcknowledges: %v", err)
	}
	if len(acks) != 2 {
		t.Fatalf("len(acks) = %d, want 2", len(acks))
	}
	if acks[0].User() != "Admin" || acks[1].User() != "ops" {
		t.Errorf("users = %q, %q", acks[0].User(), acks[1].User())
	}
}

func TestGetTrigger_NotFound(t *testing.T) {
	ts, _ := newTestServer(t, func(string, json.RawMessage) (any, *APIError) {
		return []any{}, nil
	})
	c := newTestClient(t, ts, "7.0.0")

	if _, err := c.GetTrigger(context.Background(), "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreate_ReturnsIDs(t *testing.T) {
	ts, _ := newTestServer(t, func(method string, _ json.RawMessage) (any, *APIError) {
		if method == "host.create" {
			return map[string]any{"hostids": []string{"10300"}}, nil
		}
		return nil, nil
	})
	c := newTestClient(t, ts, "7.0.0")

	ids, err := c.Create(context.Background(), "host", Params{"host": "test-host"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(ids) != 1 || ids[0] != "10300" {
		t.Errorf("ids = %v, want [10300]", ids)
	}
}

func TestIDsFrom(t *testing.T) {
	if _, err := idsFrom(map[string][]string{}); err == nil {
		t.Error("expected error for response without ids")
	}
	if _, err := idsFrom(map[string][]string{"itemids": {}}); err == nil {
		t.Error("expected error for empty ids")
	}
	ids, err := idsFrom(map[string][]string{"itemids": {"1", "2"}})
	if err != nil || len(ids) != 2 {
		t.Errorf("idsFrom = %v, %v", ids, err)
	}
}

func TestDelete_NoIDs(t *testing.T) {
	c := &Client{}
	if err := c.Delete(context.Background(), "dashboard", nil); err != nil {
		t.Fatalf("Delete with no ids: %v", err)
	}
}

func TestClose_LogsOut(t *testing.T) {
	ts, rec := newTestServer(t, func(method string, _ json.RawMessage) (any, *APIError) {
		if method == "user.logout" {
			return true, nil
		}
		return nil, nil
	})
	c := newTestClient(t, ts, "7.0.0")

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.count("user.logout") != 1 {
		t.Error("expected user.logout to be called")
	}
	if c.authToken != "" {
		t.Error("authToken should be cleared after Close")
	}
}

func TestClose_NoAuthToken(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Fatalf("Close with no token: %v", err)
	}
}

func TestAPIError_Error(t *testing.T) {
	e := &APIError{Code: -32602, Message: "Invalid params", Data: "bad field"}
	got := e.Error()
	want := "Invalid params: bad field"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
