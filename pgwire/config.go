// Package pgwire is the native protocol driver for the PostgreSQL v3
// frontend/backend protocol. It owns startup, authentication and message
// framing, and exposes the non-blocking send / consume / busy / get-result
// primitives the connection task state machine is built on.
//
// Message marshalling is delegated to pgproto3; everything above a raw
// backend message (results, notices, cancellation) is handled here.
package pgwire

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Config is a parsed conninfo string plus the derived dial target.
type Config struct {
	// ConnString is the original percent-encoded key/value conninfo.
	ConnString string

	Host     string
	Port     uint16
	Database string
	User     string
	Password string

	// TLSConfig is nil when sslmode disables TLS.
	TLSConfig *tls.Config

	// RuntimeParams are sent with the startup packet (application_name,
	// search_path, ...).
	RuntimeParams map[string]string

	ConnectTimeout time.Duration

	parsed *pgconn.Config
}

// ParseConfig parses a conninfo string in the standard key/value or URL
// form. The session layer passes conninfo through verbatim; this is the
// single place it is interpreted.
func ParseConfig(connString string) (*Config, error) {
	pc, err := pgconn.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("pgwire: parsing conninfo: %w", err)
	}

	cfg := &Config{
		ConnString:     connString,
		Host:           pc.Host,
		Port:           pc.Port,
		Database:       pc.Database,
		User:           pc.User,
		Password:       pc.Password,
		TLSConfig:      pc.TLSConfig,
		RuntimeParams:  pc.RuntimeParams,
		ConnectTimeout: pc.ConnectTimeout,
		parsed:         pc,
	}
	return cfg, nil
}

// networkAddress returns the dial network and address for the configured
// host. An absolute path means a unix socket directory.
func (c *Config) networkAddress() (network, addr string) {
	if strings.HasPrefix(c.Host, "/") {
		return "unix", fmt.Sprintf("%s/.s.PGSQL.%d", c.Host, c.Port)
	}
	return "tcp", fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// startupParameters builds the parameter map for the startup packet.
func (c *Config) startupParameters() map[string]string {
	params := make(map[string]string, len(c.RuntimeParams)+2)
	for k, v := range c.RuntimeParams {
		params[k] = v
	}
	params["user"] = c.User
	if c.Database != "" {
		params["database"] = c.Database
	}
	return params
}
