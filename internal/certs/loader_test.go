package certs

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/httpsfs/internal/testcert"
)

func TestBuildTLSConfig(t *testing.T) {
	certPath, keyPath, _ := testcert.WriteFiles(t, t.TempDir())

	cfg, err := BuildTLSConfig(certPath, keyPath)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	require.Equal(t, []string{"http/1.1"}, cfg.NextProtos)
	require.Zero(t, cfg.MinVersion)
	require.Equal(t, tls.NoClientCert, cfg.ClientAuth)
}

func TestBuildTLSConfig_errors(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath, _ := testcert.WriteFiles(t, dir)

	// a second key pair, so the key does not match certPath
	otherDir := t.TempDir()
	_, otherKeyPath, _ := testcert.WriteFiles(t, otherDir)

	garbagePath := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbagePath, []byte("not a certificate"), 0o600))

	emptyPath := filepath.Join(dir, "empty.pem")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0o600))

	tests := []struct {
		name     string
		certPath string
		keyPath  string
		source   string
	}{
		{
			name:     "missing cert",
			certPath: filepath.Join(dir, "missing.pem"),
			keyPath:  keyPath,
			source:   filepath.Join(dir, "missing.pem"),
		},
		{
			name:     "missing key",
			certPath: certPath,
			keyPath:  filepath.Join(dir, "missing-key.pem"),
			source:   filepath.Join(dir, "missing-key.pem"),
		},
		{
			name:     "malformed cert",
			certPath: garbagePath,
			keyPath:  keyPath,
			source:   "keypair",
		},
		{
			name:     "empty key",
			certPath: certPath,
			keyPath:  emptyPath,
			source:   "keypair",
		},
		{
			name:     "key does not match cert",
			certPath: certPath,
			keyPath:  otherKeyPath,
			source:   "keypair",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := BuildTLSConfig(tt.certPath, tt.keyPath)
			require.Nil(t, cfg)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrCertificateLoad)

			var loadErr *CertificateLoadError
			require.True(t, errors.As(err, &loadErr))
			require.Equal(t, tt.source, loadErr.Source)
		})
	}
}

func TestLoadFiles_missingUnwrapsToNotExist(t *testing.T) {
	_, err := LoadFiles(filepath.Join(t.TempDir(), "cert.pem"), "key.pem")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_files(t *testing.T) {
	certPath, keyPath, certPEM := testcert.WriteFiles(t, t.TempDir())

	certs, err := Load(context.Background(), Config{CertPath: certPath, KeyPath: keyPath})
	require.NoError(t, err)
	require.Equal(t, certPEM, certs.Cert)
	require.NoError(t, certs.Validate())
}

func TestCertificates_Validate(t *testing.T) {
	certPEM, keyPEM, err := testcert.Generate("localhost")
	require.NoError(t, err)
	_, otherKeyPEM, err := testcert.Generate("localhost")
	require.NoError(t, err)

	tests := []struct {
		name   string
		certs  Certificates
		source string
	}{
		{name: "valid", certs: Certificates{Cert: certPEM, Key: keyPEM}},
		{name: "cert not PEM", certs: Certificates{Cert: []byte("garbage"), Key: keyPEM}, source: "cert"},
		{name: "key in cert slot", certs: Certificates{Cert: keyPEM, Key: keyPEM}, source: "cert"},
		{name: "empty key", certs: Certificates{Cert: certPEM}, source: "key"},
		{name: "cert in key slot", certs: Certificates{Cert: certPEM, Key: certPEM}, source: "key"},
		{name: "mismatched key", certs: Certificates{Cert: certPEM, Key: otherKeyPEM}, source: "keypair"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.certs.Validate()
			if tt.source == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrCertificateLoad)

			var loadErr *CertificateLoadError
			require.True(t, errors.As(err, &loadErr))
			require.Equal(t, tt.source, loadErr.Source)
		})
	}
}

func TestLoad_validatesMaterial(t *testing.T) {
	dir := t.TempDir()
	certPath, _, _ := testcert.WriteFiles(t, dir)
	_, otherKeyPath, _ := testcert.WriteFiles(t, t.TempDir())

	garbagePath := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbagePath, []byte("not a key"), 0o600))

	tests := []struct {
		name    string
		keyPath string
		source  string
	}{
		{name: "key not PEM", keyPath: garbagePath, source: "key"},
		{name: "mismatched key", keyPath: otherKeyPath, source: "keypair"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certs, err := Load(context.Background(), Config{CertPath: certPath, KeyPath: tt.keyPath})
			require.Nil(t, certs)
			require.ErrorIs(t, err, ErrCertificateLoad)

			var loadErr *CertificateLoadError
			require.True(t, errors.As(err, &loadErr))
			require.Equal(t, tt.source, loadErr.Source)
		})
	}
}

func TestLoad_s3URIsValidatedFirst(t *testing.T) {
	// the key URI is missing, so no AWS client is ever created
	_, err := Load(context.Background(), Config{CertS3URI: "s3://bucket/cert.pem"})
	require.ErrorIs(t, err, ErrCertificateLoad)

	var loadErr *CertificateLoadError
	require.True(t, errors.As(err, &loadErr))
	require.Empty(t, loadErr.Source)
}
