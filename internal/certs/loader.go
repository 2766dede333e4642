package certs

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Certificates holds certificate data in memory
type Certificates struct {
	Cert []byte
	Key  []byte
}

// Config for loading certificates
type Config struct {
	// File paths (for local development)
	CertPath string
	KeyPath  string

	// S3 URIs, s3://bucket/key (for production)
	CertS3URI string
	KeyS3URI  string
}

// Load loads certificates from either S3 or files and checks the key matches
// the certificate.
func Load(ctx context.Context, cfg Config) (*Certificates, error) {
	certs, err := load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := certs.Validate(); err != nil {
		return nil, err
	}

	return certs, nil
}

func load(ctx context.Context, cfg Config) (*Certificates, error) {
	// Use S3 if URIs are provided
	if cfg.CertS3URI != "" || cfg.KeyS3URI != "" {
		for _, uri := range []string{cfg.CertS3URI, cfg.KeyS3URI} {
			if _, _, err := ParseS3URI(uri); err != nil {
				return nil, &CertificateLoadError{Source: uri, Err: err}
			}
		}

		awsConfig, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, &CertificateLoadError{Source: cfg.CertS3URI, Err: fmt.Errorf("failed to load AWS config: %w", err)}
		}
		return LoadS3(ctx, s3.NewFromConfig(awsConfig), cfg.CertS3URI, cfg.KeyS3URI)
	}

	// Otherwise use file paths
	return LoadFiles(cfg.CertPath, cfg.KeyPath)
}

// LoadFiles loads the PEM encoded certificate chain and private key from disk.
func LoadFiles(certPath, keyPath string) (*Certificates, error) {
	certs := &Certificates{}

	cert, err := os.ReadFile(certPath)
	if err != nil {
		return nil, &CertificateLoadError{Source: certPath, Err: fmt.Errorf("failed to read cert: %w", err)}
	}
	certs.Cert = cert

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, &CertificateLoadError{Source: keyPath, Err: fmt.Errorf("failed to read key: %w", err)}
	}
	certs.Key = key

	return certs, nil
}

// BuildTLSConfig loads the certificate and key files and returns a server TLS config.
func BuildTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	certs, err := LoadFiles(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return certs.TLSConfig()
}

// TLSConfig creates a server side tls.Config from certificates. Protocol
// versions and cipher suites are left at the crypto/tls defaults.
func (c *Certificates) TLSConfig() (*tls.Config, error) {
	serverCert, err := tls.X509KeyPair(c.Cert, c.Key)
	if err != nil {
		return nil, &CertificateLoadError{Source: "keypair", Err: fmt.Errorf("failed to parse server certificate: %w", err)}
	}

	return &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		NextProtos:   []string{"http/1.1"},
	}, nil
}

// Validate checks the certificate and key are PEM encoded and the key matches
// the certificate. The error Source names the part at fault: "cert", "key" or
// "keypair".
func (c *Certificates) Validate() error {
	if !hasPEMBlock(c.Cert, func(t string) bool { return t == "CERTIFICATE" }) {
		return &CertificateLoadError{Source: "cert", Err: errors.New("no PEM CERTIFICATE block found")}
	}
	if !hasPEMBlock(c.Key, func(t string) bool { return strings.HasSuffix(t, "PRIVATE KEY") }) {
		return &CertificateLoadError{Source: "key", Err: errors.New("no PEM PRIVATE KEY block found")}
	}

	_, err := tls.X509KeyPair(c.Cert, c.Key)
	if err != nil {
		return &CertificateLoadError{Source: "keypair", Err: fmt.Errorf("invalid server certificate/key: %w", err)}
	}

	return nil
}

func hasPEMBlock(data []byte, match func(blockType string) bool) bool {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return false
		}
		if match(block.Type) {
			return true
		}
	}
}
