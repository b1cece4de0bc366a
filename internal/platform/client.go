package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/models"
)

// DefaultPrefix is the API root used when none is configured or discovered.
const DefaultPrefix = "/api/v2/"

// Client is the authenticated JSON HTTP client for the Tower API.
type Client struct {
	baseURL    string
	prefix     string
	username   string
	password   string
	requestID  string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithPrefix sets the API root path, e.g. "/api/v1/".
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		if prefix != "" {
			c.prefix = normalizePrefix(prefix)
		}
	}
}

// NewClient creates a Client from a Connection.
func NewClient(conn *models.Connection, opts ...Option) *Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if conn.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	} else if conn.CACert != "" {
		caCertPool := x509.NewCertPool()
		if caCertPool.AppendCertsFromPEM([]byte(conn.CACert)) {
			transport.TLSClientConfig = &tls.Config{RootCAs: caCertPool}
		} else {
			log.Warn("ca_cert contains no usable PEM certificates, using system roots")
		}
	}
	c := &Client{
		baseURL:   conn.BaseURL(),
		prefix:    DefaultPrefix,
		username:  conn.Username,
		password:  conn.Password,
		requestID: uuid.New().String(),
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Re-apply basic auth on redirects
				if len(via) > 0 {
					req.SetBasicAuth(conn.Username, conn.Password)
				}
				return nil
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Prefix returns the API root path in use.
func (c *Client) Prefix() string { return c.prefix }

// RequestID is sent as X-Request-Id on every request of this client.
func (c *Client) RequestID() string { return c.requestID }

// Response is a completed HTTP exchange with a 2xx status.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON decodes the body into dest. Numbers decode as json.Number so ids and
// counts survive unchanged.
func (r *Response) JSON(dest interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return errors.Wrap(err, "parsing response")
	}
	return nil
}

// Request performs an authenticated request. path is relative to the API
// prefix unless it already starts with it (as pagination links do). body, when
// non-nil, is JSON encoded. Non-2xx statuses come back as *apierr.Error.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body interface{}) (*Response, error) {
	u := c.url(path, query)

	var reqBody []byte
	var bodyReader io.Reader
	if body != nil || isMutating(method) {
		if body == nil {
			body = map[string]interface{}{}
		}
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshaling body")
		}
		reqBody = data
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", c.requestID)
	if isMutating(method) {
		req.Header.Set("Content-Type", "application/json")
	}

	entry := log.WithFields(log.Fields{"method": method, "url": u, "request_id": c.requestID})
	entry.Debug("request")
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "%s %s", method, path)
		}
		return nil, errors.Wrapf(&apierr.Error{
			Kind:    apierr.KindConnection,
			Message: "There was a network error of some kind trying to connect to Tower: " + err.Error(),
			Method:  method,
			URL:     u,
		}, "%s %s", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	entry.WithFields(log.Fields{"status": resp.StatusCode, "elapsed": time.Since(start)}).Debug("response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(method, u, resp.StatusCode, reqBody, respBody)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// Get performs an authenticated GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, query, nil)
}

// GetJSON performs an authenticated GET and unmarshals the response into dest.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return resp.JSON(dest)
}

func (c *Client) url(path string, query url.Values) string {
	var u string
	switch {
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		u = path
	case strings.HasPrefix(path, c.prefix):
		u = c.baseURL + path
	default:
		u = c.baseURL + c.prefix + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	return u
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut:
		return true
	}
	return false
}

// statusError translates a non-2xx response into the error taxonomy.
func statusError(method, u string, status int, reqBody, respBody []byte) error {
	e := &apierr.Error{
		Method:       method,
		URL:          u,
		Status:       status,
		RequestBody:  truncate(string(reqBody), 1000),
		ResponseBody: truncate(string(respBody), 1000),
	}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = apierr.KindAuth
		e.Message = "Invalid Tower authentication credentials (HTTP 401)."
	case status == http.StatusForbidden:
		e.Kind = apierr.KindForbidden
		e.Message = "You don't have permission to do that (HTTP 403)."
	case status == http.StatusNotFound:
		e.Kind = apierr.KindNotFound
		e.Message = "The requested object could not be found."
	case status >= 500:
		e.Kind = apierr.KindServer
		e.Message = "The Tower server sent back a server error. Please try again later."
	default:
		e.Kind = apierr.KindBadRequest
		e.Message = "The Tower server claims it was sent a bad request: " + truncate(string(respBody), 200)
	}
	return e
}

func normalizePrefix(p string) string {
	p = "/" + strings.Trim(p, "/") + "/"
	if p == "//" {
		return "/"
	}
	return p
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
