package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rflorenc/tower-cli/internal/apierr"
)

func TestParsePingResponse_AWX(t *testing.T) {
	body := []byte(`{"version":"23.4.0","ha":false,"active_node":"awx-1"}`)
	resp, err := ParsePingResponse(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Version != "23.4.0" {
		t.Errorf("Version = %q, want %q", resp.Version, "23.4.0")
	}
	if resp.ActiveNode != "awx-1" {
		t.Errorf("ActiveNode = %q, want %q", resp.ActiveNode, "awx-1")
	}
}

func TestParsePingResponse_Empty(t *testing.T) {
	_, err := ParsePingResponse([]byte(`{"ha":false}`))
	if err == nil {
		t.Fatal("expected error for missing version, got nil")
	}
}

func TestParsePingResponse_InvalidJSON(t *testing.T) {
	_, err := ParsePingResponse([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Errorf("error %v does not wrap the decode error", err)
	}
	if !strings.HasPrefix(err.Error(), "parsing ping response: ") {
		t.Errorf("error = %q, want parsing ping response prefix", err)
	}
}

func TestDetectAPIPrefix(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"awx", `{"description":"AWX REST API","current_version":"/api/v2/"}`, "/api/v2/"},
		{"tower v1 no slash", `{"current_version":"/api/v1"}`, "/api/v1/"},
		{"aap string", `{"apis":{"controller":"/api/controller/"}}`, "/api/controller/v2/"},
		{"aap object", `{"apis":{"controller":{"prefix":"/api/controller/"},"gateway":{"prefix":"/api/gateway/"}}}`, "/api/controller/v2/"},
		{"unknown", `{}`, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			root, err := ParseAPIRoot([]byte(tc.body))
			if err != nil {
				t.Fatalf("ParseAPIRoot: %v", err)
			}
			if got := DetectAPIPrefix(root); got != tc.want {
				t.Errorf("DetectAPIPrefix = %q, want %q", got, tc.want)
			}
		})
	}
	if got := DetectAPIPrefix(nil); got != "" {
		t.Errorf("DetectAPIPrefix(nil) = %q, want empty", got)
	}
}

func TestPing_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/ping/" {
			t.Errorf("path = %s, want /api/v2/ping/", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"version": "23.4.0", "ha": false, "active_node": "awx-1"})
	}))
	defer ts.Close()

	resp, err := newTestClient(ts).Ping(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Version != "23.4.0" {
		t.Errorf("Version = %q, want %q", resp.Version, "23.4.0")
	}
}

func TestPing_Unparseable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`)) // valid JSON but no version
	}))
	defer ts.Close()

	resp, err := newTestClient(ts).Ping(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Version != "" {
		t.Errorf("Version = %q, want empty", resp.Version)
	}
}

func TestCheckAuth(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     string
		wantKind apierr.Kind
		wantErr  bool
	}{
		{"authenticated", http.StatusOK, `{"count":1,"results":[{"id":1,"username":"admin"}]}`, "admin", 0, false},
		{"no user", http.StatusOK, `{"count":0,"results":[]}`, "", apierr.KindGeneral, true},
		{"bad credentials", http.StatusUnauthorized, `{"detail":"Invalid username/password."}`, "", apierr.KindAuth, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v2/me/" {
					t.Errorf("path = %s, want /api/v2/me/", r.URL.Path)
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			got, err := newTestClient(ts).CheckAuth(context.Background())
			if tc.wantErr {
				if err == nil {
					t.Fatalf("CheckAuth = %q, want error", got)
				}
				var e *apierr.Error
				if tc.wantKind != apierr.KindGeneral && (!errors.As(err, &e) || e.Kind != tc.wantKind) {
					t.Errorf("error kind = %v, want %v", apierr.KindOf(err), tc.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("CheckAuth = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDiscover_SwitchesPrefix(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/":
			w.Write([]byte(`{"current_version":"/api/v1/"}`))
		case "/api/v1/users/":
			w.Write([]byte(`{"count":0,"results":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := newTestClient(ts)
	prefix, err := c.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if prefix != "/api/v1/" || c.Prefix() != "/api/v1/" {
		t.Errorf("prefix = %q (client %q), want /api/v1/", prefix, c.Prefix())
	}
	if _, err := c.Get(context.Background(), "/users/", nil); err != nil {
		t.Errorf("Get after discovery: %v", err)
	}
}

func TestDiscover_KeepsPrefixOnUnknownRoot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	prefix, err := c.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if prefix != DefaultPrefix {
		t.Errorf("prefix = %q, want %q", prefix, DefaultPrefix)
	}
}
