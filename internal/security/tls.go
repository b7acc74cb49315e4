package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TLSConfig holds TLS configuration.
type TLSConfig struct {
	CertFile          string
	KeyFile           string
	CAFile            string
	RequireClientAuth bool
}

// Enabled reports whether a certificate was configured.
func (c TLSConfig) Enabled() bool { return c.CertFile != "" }

// LoadServerTLSConfig loads server TLS configuration with mutual TLS support.
// The same configuration serves the HTTP API and the gRPC listener.
func LoadServerTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if err := verifyTLSFiles(cfg.CertFile, cfg.KeyFile); err != nil {
		return nil, err
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate and key: %w", err)
	}

	clientAuth := tls.NoClientCert
	if cfg.RequireClientAuth {
		if cfg.CAFile == "" {
			return nil, errors.New("client authentication requires a CA file")
		}
		clientAuth = tls.RequireAndVerifyClientCert
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		ClientAuth:   clientAuth,
	}

	if cfg.CAFile != "" {
		caData, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caData) {
			return nil, errors.New("failed to parse CA certificate")
		}

		tlsCfg.ClientCAs = caCertPool
	}

	return tlsCfg, nil
}

func verifyTLSFiles(files ...string) error {
	for _, file := range files {
		if file == "" {
			return errors.New("TLS file path must not be empty")
		}
		if _, err := os.Stat(file); err != nil {
			return fmt.Errorf("TLS file not found: %s - %w", file, err)
		}
	}
	return nil
}
