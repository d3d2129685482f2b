package zabbix

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
)

// ErrNotFound is returned by typed lookups that match no object.
var ErrNotFound = errors.New("object not found")

// Params is the parameter object of a JSON-RPC call.
type Params map[string]any

// Client is a Zabbix API client
type Client struct {
	cfg        *config.Config
	log        *zap.Logger
	httpClient *http.Client
	authToken  string
	apiVersion string
	requestID  int64
}

// NewClient creates a new Zabbix API client and logs in. Any failure here is
// a setup failure: the caller should abort the run.
func NewClient(cfg *config.Config, log *zap.Logger) (*Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.Zabbix.VerifySSL, //nolint:gosec // G402: user-configurable option, defaults to VerifySSL=true
		},
	}

	c := &Client{
		cfg: cfg,
		log: log.Named("zabbix"),
		httpClient: &http.Client{
			Timeout:   time.Duration(cfg.Zabbix.Timeout) * time.Second,
			Transport: otelhttp.NewTransport(transport),
		},
	}

	ctx := context.Background()

	// apiinfo.version does not require auth
	ver, err := c.GetAPIVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get API version: %w", err)
	}
	c.apiVersion = ver

	if err := c.authenticate(ctx); err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	c.log.Info("Connected to Zabbix API", zap.String("version", ver))
	return c, nil
}

// authenticate logs in to the Zabbix API. 5.4 renamed the user parameter.
func (c *Client) authenticate(ctx context.Context) error {
	userKey := "user"
	if c.VersionAtLeast(5, 4) {
		userKey = "username"
	}
	params := Params{
		userKey:    c.cfg.Zabbix.APIUser,
		"password": c.cfg.Zabbix.APIPassword,
	}

	var token string
	if err := c.Call(ctx, "user.login", params, &token); err != nil {
		return err
	}
	c.authToken = token
	c.log.Debug("Authenticated with Zabbix API")
	return nil
}

// Call makes a JSON-RPC call and decodes the result into out, which may be
// nil to discard it.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	raw, err := c.callWithContext(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// callWithContext makes a JSON-RPC call with context
func (c *Client) callWithContext(ctx context.Context, method string, params any) (json.RawMessage, error) {
	reqID := atomic.AddInt64(&c.requestID, 1)

	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      reqID,
	}

	// 6.4+ takes the session in a header; older servers want the auth field.
	bearer := c.authToken != "" && method != "user.login" && method != "apiinfo.version"
	if bearer && !c.VersionAtLeast(6, 4) {
		reqBody["auth"] = c.authToken
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.log.Debug("Calling Zabbix API", zap.String("method", method), zap.Int64("id", reqID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ZabbixAPIURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	if bearer && c.VersionAtLeast(6, 4) {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, apiResp.Error)
	}

	return apiResp.Result, nil
}

// Get runs <object>.get and decodes the returned array into out.
func (c *Client) Get(ctx context.Context, object string, params Params, out any) error {
	return c.Call(ctx, object+".get", params, out)
}

// Create runs <object>.create and returns the created IDs.
func (c *Client) Create(ctx context.Context, object string, params any) ([]string, error) {
	var res map[string][]string
	if err := c.Call(ctx, object+".create", params, &res); err != nil {
		return nil, err
	}
	return idsFrom(res)
}

// Update runs <object>.update.
func (c *Client) Update(ctx context.Context, object string, params any) error {
	return c.Call(ctx, object+".update", params, nil)
}

// Delete runs <object>.delete for the given IDs.
func (c *Client) Delete(ctx context.Context, object string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.Call(ctx, object+".delete", ids, nil)
}

// idsFrom extracts the single "<kind>ids" array of a create response.
func idsFrom(res map[string][]string) ([]string, error) {
	for key, ids := range res {
		if !strings.HasSuffix(key, "ids") {
			continue
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("empty %s in response", key)
		}
		return ids, nil
	}
	return nil, fmt.Errorf("no ids in response")
}

// createOne is Create for a single object.
func (c *Client) createOne(ctx context.Context, object string, params any) (string, error) {
	ids, err := c.Create(ctx, object, params)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", object, err)
	}
	return ids[0], nil
}

// GetAPIVersion returns the Zabbix API version
func (c *Client) GetAPIVersion(ctx context.Context) (string, error) {
	var version string
	if err := c.Call(ctx, "apiinfo.version", []string{}, &version); err != nil {
		return "", err
	}
	return version, nil
}

// APIVersion returns the version detected at login.
func (c *Client) APIVersion() string {
	return c.apiVersion
}

// VersionAtLeast reports whether the server's major.minor is at least
// major.minor. An unknown version compares below everything.
func (c *Client) VersionAtLeast(major, minor int) bool {
	gotMajor, gotMinor, ok := c.apiVersionParts()
	if !ok {
		return false
	}
	if gotMajor != major {
		return gotMajor > major
	}
	return gotMinor >= minor
}

// apiVersionParts splits the version detected at login ("6.4.1") into its
// major and minor numbers.
func (c *Client) apiVersionParts() (int, int, bool) {
	parts := strings.SplitN(c.apiVersion, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// Close logs out from the Zabbix API
func (c *Client) Close() error {
	if c.authToken == "" {
		return nil
	}

	err := c.Call(context.Background(), "user.logout", []string{}, nil)
	c.authToken = ""
	return err
}
