package models

import "testing"

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name   string
		conn   Connection
		expect string
	}{
		{"bare host", Connection{Host: "tower.lab.local"}, "https://tower.lab.local"},
		{"bare host trailing slash", Connection{Host: "tower.lab.local/"}, "https://tower.lab.local"},
		{"http with port", Connection{Host: "http://awx.lab.local:32000"}, "http://awx.lab.local:32000"},
		{"https trailing slash", Connection{Host: "https://tower.example.com/"}, "https://tower.example.com"},
		{"ip", Connection{Host: "127.0.0.1"}, "https://127.0.0.1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.conn.BaseURL()
			if got != tc.expect {
				t.Errorf("BaseURL() = %q, want %q", got, tc.expect)
			}
		})
	}
}
