package models

import "strings"

// Connection holds what the transport needs to reach and authenticate
// against a Tower instance.
type Connection struct {
	Host     string `json:"host" yaml:"host"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"-" yaml:"password"`
	Insecure bool   `json:"insecure" yaml:"insecure"` // skip TLS verification
	CACert   string `json:"ca_cert,omitempty" yaml:"ca_cert"`
}

// BaseURL returns the scheme and host. A host without a scheme is assumed to
// speak https.
func (c *Connection) BaseURL() string {
	host := strings.TrimSpace(c.Host)
	if !strings.Contains(host, "://") {
		host = "https://" + strings.Trim(host, "/")
	}
	return strings.TrimRight(host, "/")
}
