package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/models"
)

func newTestClient(ts *httptest.Server) *Client {
	return &Client{
		baseURL:    ts.URL,
		prefix:     DefaultPrefix,
		username:   "admin",
		password:   "secret",
		requestID:  "test-request",
		httpClient: ts.Client(),
	}
}

func TestClient_Get_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/users/" {
			t.Errorf("path = %s, want /api/v2/users/", r.URL.Path)
		}
		if got := r.URL.Query().Get("username"); got != "alice" {
			t.Errorf("username query = %q, want alice", got)
		}
		w.Write([]byte(`{"count":1,"results":[{"id":1,"username":"alice"}]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	resp, err := c.Get(context.Background(), "/users/", url.Values{"username": {"alice"}})
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	var page struct {
		Count   json.Number     `json:"count"`
		Results []models.Record `json:"results"`
	}
	if err := resp.JSON(&page); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if page.Count.String() != "1" || page.Results[0].ID() != 1 {
		t.Errorf("page = %+v", page)
	}
	if _, ok := page.Results[0]["id"].(json.Number); !ok {
		t.Errorf("id decoded as %T, want json.Number", page.Results[0]["id"])
	}
}

func TestClient_Get_AuthHeaders(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			t.Errorf("BasicAuth = (%q, %q, %v), want (admin, secret, true)", user, pass, ok)
		}
		if got := r.Header.Get("X-Request-Id"); got != "test-request" {
			t.Errorf("X-Request-Id = %q, want test-request", got)
		}
		if got := r.Header.Get("Content-Type"); got != "" {
			t.Errorf("GET Content-Type = %q, want empty", got)
		}
		w.Write([]byte("{}"))
	}))
	defer ts.Close()

	if _, err := newTestClient(ts).Get(context.Background(), "me/", nil); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		expect *apierr.Error
	}{
		{"unauthorized", http.StatusUnauthorized, apierr.ErrAuth},
		{"forbidden", http.StatusForbidden, apierr.ErrForbidden},
		{"not found", http.StatusNotFound, apierr.ErrNotFound},
		{"bad request", http.StatusBadRequest, apierr.ErrBadRequest},
		{"conflict", http.StatusConflict, apierr.ErrBadRequest},
		{"server error", http.StatusInternalServerError, apierr.ErrServer},
		{"bad gateway", http.StatusBadGateway, apierr.ErrServer},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"detail":"nope"}`))
			}))
			defer ts.Close()

			_, err := newTestClient(ts).Request(context.Background(), http.MethodPost, "/users/", nil, map[string]string{"username": "x"})
			if !errors.Is(err, tc.expect) {
				t.Fatalf("error = %v, want kind %v", err, tc.expect.Kind)
			}
			var e *apierr.Error
			errors.As(err, &e)
			if e.Status != tc.status || e.Method != "POST" {
				t.Errorf("error status/method = %d/%s", e.Status, e.Method)
			}
			if e.ResponseBody != `{"detail":"nope"}` || e.RequestBody != `{"username":"x"}` {
				t.Errorf("error bodies = %q / %q", e.RequestBody, e.ResponseBody)
			}
		})
	}
}

func TestClient_ConnectionError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(ts)
	ts.Close()

	_, err := c.Get(context.Background(), "/users/", nil)
	if !errors.Is(err, apierr.ErrConnection) {
		t.Fatalf("error = %v, want connection error", err)
	}
	if apierr.ExitCode(err) != 41 {
		t.Errorf("ExitCode = %d, want 41", apierr.ExitCode(err))
	}
}

func TestClient_RequestPost(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"name":"Test"}` {
			t.Errorf("body = %s", body)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	}))
	defer ts.Close()

	resp, err := newTestClient(ts).Request(context.Background(), http.MethodPost, "/teams/", nil, map[string]string{"name": "Test"})
	if err != nil {
		t.Fatalf("POST returned error: %v", err)
	}
	if resp.Status != 201 {
		t.Errorf("status = %d, want 201", resp.Status)
	}
	if string(resp.Body) != `{"id":1}` {
		t.Errorf("body = %q", string(resp.Body))
	}
}

func TestClient_PostNilBodySendsEmptyObject(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{}` {
			t.Errorf("body = %q, want {}", body)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	if _, err := newTestClient(ts).Request(context.Background(), http.MethodPost, "/jobs/1/start/", nil, nil); err != nil {
		t.Fatalf("POST returned error: %v", err)
	}
}

func TestClient_RequestPatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PATCH" || r.URL.Path != "/api/v2/users/1/" {
			t.Errorf("request = %s %s, want PATCH /api/v2/users/1/", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id":1,"email":"a@x.com"}`))
	}))
	defer ts.Close()

	if _, err := newTestClient(ts).Request(context.Background(), http.MethodPatch, "/users/1/", nil, map[string]string{"email": "a@x.com"}); err != nil {
		t.Fatalf("PATCH returned error: %v", err)
	}
}

func TestClient_RequestDelete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "DELETE" {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	if _, err := newTestClient(ts).Request(context.Background(), http.MethodDelete, "/teams/1/", nil, nil); err != nil {
		t.Fatalf("DELETE returned error: %v", err)
	}
}

func TestClient_RequestDelete_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := newTestClient(ts).Request(context.Background(), http.MethodDelete, "/teams/999/", nil, nil)
	if !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("DELETE 404 error = %v, want NotFound", err)
	}
}

func TestClient_URL(t *testing.T) {
	c := &Client{baseURL: "https://tower", prefix: "/api/v2/"}
	tests := []struct {
		name  string
		path  string
		query url.Values
		want  string
	}{
		{"relative", "/users/", nil, "https://tower/api/v2/users/"},
		{"no leading slash", "users/3/", nil, "https://tower/api/v2/users/3/"},
		{"already prefixed", "/api/v2/users/?page=2", nil, "https://tower/api/v2/users/?page=2"},
		{"prefixed plus query", "/api/v2/users/?page=2", url.Values{"x": {"1"}}, "https://tower/api/v2/users/?page=2&x=1"},
		{"absolute", "https://other/api/", nil, "https://other/api/"},
		{"query", "/hosts/", url.Values{"name": {"web 1"}}, "https://tower/api/v2/hosts/?name=web+1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.url(tc.path, tc.query); got != tc.want {
				t.Errorf("url(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		expect string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world", 5, "hello..."},
		{"empty", "", 5, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := truncate(tc.input, tc.maxLen)
			if got != tc.expect {
				t.Errorf("truncate(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.expect)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	conn := &models.Connection{
		Host:     "tower.example.com",
		Username: "user",
		Password: "pass",
		Insecure: true,
	}
	c := NewClient(conn, WithPrefix("api/v1"))
	if c.baseURL != "https://tower.example.com" {
		t.Errorf("baseURL = %q, want https://tower.example.com", c.baseURL)
	}
	if c.prefix != "/api/v1/" {
		t.Errorf("prefix = %q, want /api/v1/", c.prefix)
	}
	if c.username != "user" || c.password != "pass" {
		t.Error("credentials not set correctly")
	}
	if c.RequestID() == "" {
		t.Error("request id not assigned")
	}
	if other := NewClient(conn); other.RequestID() == c.RequestID() {
		t.Error("two clients share a request id")
	}
}
