package platform

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PingResponse holds the parsed /ping/ response.
type PingResponse struct {
	Version    string `json:"version"`
	HA         bool   `json:"ha"`
	ActiveNode string `json:"active_node"`
}

// APIRootResponse holds the parsed /api/ response.
// AWX format: {"current_version": "/api/v2/", ...}
// AAP format: {"apis": {"controller": "/api/controller/", ...}} where the value
// may also be an object carrying a "prefix".
type APIRootResponse struct {
	CurrentVersion string                     `json:"current_version"`
	APIs           map[string]json.RawMessage `json:"apis"`
}

// ParsePingResponse extracts the version from a /ping/ JSON response body.
func ParsePingResponse(body []byte) (*PingResponse, error) {
	var resp PingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "parsing ping response")
	}
	if resp.Version == "" {
		return nil, errors.New("ping response missing version field")
	}
	return &resp, nil
}

// ParseAPIRoot parses the /api/ response body.
func ParseAPIRoot(body []byte) (*APIRootResponse, error) {
	var resp APIRootResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "parsing API root response")
	}
	return &resp, nil
}

// servicePrefix reads an apis entry given either as a string or as {"prefix": ...}.
func (r *APIRootResponse) servicePrefix(name string) string {
	raw, ok := r.APIs[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Prefix string `json:"prefix"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Prefix
	}
	return ""
}

// DetectAPIPrefix determines the API prefix from the parsed /api/ response.
// AWX: uses current_version directly (e.g. "/api/v2/").
// AAP: uses the controller prefix + "v2/" (e.g. "/api/controller/" → "/api/controller/v2/").
// Returns empty string if detection fails.
func DetectAPIPrefix(root *APIRootResponse) string {
	if root == nil {
		return ""
	}
	if root.CurrentVersion != "" {
		prefix := root.CurrentVersion
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return prefix
	}
	if controllerPrefix := root.servicePrefix("controller"); controllerPrefix != "" {
		prefix := controllerPrefix
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return prefix + "v2/"
	}
	return ""
}

// Ping calls the ping endpoint under the current prefix and parses the
// version. If HTTP succeeds but the body has no version, an empty
// PingResponse is returned (reachable, version unknown).
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	resp, err := c.Get(ctx, "ping/", nil)
	if err != nil {
		return nil, err
	}
	ping, err := ParsePingResponse(resp.Body)
	if err != nil {
		return &PingResponse{}, nil
	}
	return ping, nil
}

// CheckAuth verifies the credentials by asking the API who they belong to,
// and returns that username.
func (c *Client) CheckAuth(ctx context.Context) (string, error) {
	var me struct {
		Results []struct {
			Username string `json:"username"`
		} `json:"results"`
	}
	if err := c.GetJSON(ctx, "me/", nil, &me); err != nil {
		return "", err
	}
	if len(me.Results) == 0 {
		return "", errors.New("me/ returned no user")
	}
	return me.Results[0].Username, nil
}

// Discover asks /api/ for the current API root and switches the client to
// it. The client keeps its prefix when detection fails.
func (c *Client) Discover(ctx context.Context) (string, error) {
	resp, err := c.Get(ctx, c.baseURL+"/api/", nil)
	if err != nil {
		return c.prefix, errors.Wrap(err, "discovering API prefix")
	}
	root, err := ParseAPIRoot(resp.Body)
	if err != nil {
		return c.prefix, err
	}
	prefix := DetectAPIPrefix(root)
	if prefix == "" {
		log.WithField("prefix", c.prefix).Warn("could not detect API prefix, keeping configured one")
		return c.prefix, nil
	}
	c.prefix = normalizePrefix(prefix)
	log.WithField("prefix", c.prefix).Debug("detected API prefix")
	return c.prefix, nil
}
