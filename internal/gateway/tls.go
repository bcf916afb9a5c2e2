package gateway

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSFiles names the client certificate, key and CA bundle used for mTLS
type TLSFiles struct {
	CertFile           string
	KeyFile            string
	CAFile             string
	InsecureSkipVerify bool
}

// Enabled reports whether a client certificate is configured
func (f TLSFiles) Enabled() bool {
	return f.CertFile != "" || f.KeyFile != ""
}

// LoadTLSConfig builds a client side mutual TLS configuration
func LoadTLSConfig(files TLSFiles) (*tls.Config, error) {
	if files.CertFile == "" || files.KeyFile == "" {
		return nil, fmt.Errorf("certificate and key files must be specified")
	}

	cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	cfg := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: files.InsecureSkipVerify, //nolint:gosec // opt-in for test gateways
	}

	if files.CAFile != "" {
		caCert, err := os.ReadFile(files.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
