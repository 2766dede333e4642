package certs

import (
	"errors"
	"fmt"
)

// ErrCertificateLoad indicates the server certificate or key could not be loaded.
var ErrCertificateLoad = errors.New("certificate load failed")

// CertificateLoadError is returned for any failure to produce a server TLS
// config: missing or unreadable files, malformed PEM, a key which does not
// match the certificate, or a failed remote fetch. It is fatal at startup.
type CertificateLoadError struct {
	// Source is the file path or s3:// URI being loaded, or "keypair" when
	// the material was read but could not be paired.
	Source string
	Err    error
}

func (e *CertificateLoadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCertificateLoad, e.Source, e.Err)
}

func (e *CertificateLoadError) Unwrap() error {
	return e.Err
}

func (e *CertificateLoadError) Is(target error) bool {
	return target == ErrCertificateLoad
}
