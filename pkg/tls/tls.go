// Package tls builds TLS configurations for the forecaster's HTTPS listener
// and for outbound clients (HTTP data sources, remote sequence networks).
//
// All configurations require TLS 1.3. A CA file is optional on both sides:
// on the server it switches on client certificate verification, on the
// client it replaces the system roots.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config holds TLS certificate file paths for client or server configuration.
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CAFile   string
}

// Validate reports missing or unreadable files when TLS is enabled.
// Servers always need a key pair; a client may omit it.
func (c Config) Validate(server bool) error {
	if !c.Enabled {
		return nil
	}

	if server && (c.CertFile == "" || c.KeyFile == "") {
		return errors.New("tls enabled but cert/key files not specified")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("tls cert and key files must be set together")
	}

	for _, path := range []string{c.CertFile, c.KeyFile, c.CAFile} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("tls file %q: %w", path, err)
		}
	}

	return nil
}

// NewServerTLSConfig returns the listener configuration. With a CA file the
// server requires and verifies client certificates.
func NewServerTLSConfig(c Config) (*tls.Config, error) {
	if err := c.Validate(true); err != nil {
		return nil, err
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS13}
	if c.CAFile != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// NewClientTLSConfig returns an outbound configuration that presents the
// key pair when one is set and trusts CAFile when one is set.
func NewClientTLSConfig(c Config) (*tls.Config, error) {
	if err := c.Validate(false); err != nil {
		return nil, err
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS13}
	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if c.CAFile != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func loadPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}
	return pool, nil
}
