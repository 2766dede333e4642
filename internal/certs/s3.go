package certs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxObjectSize caps the size of a PEM object fetched from S3.
const maxObjectSize = 1 << 20

// ObjectGetter is the subset of the S3 client used to fetch certificate material.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LoadS3 loads the certificate chain and private key from S3 objects
// addressed as s3://bucket/key.
func LoadS3(ctx context.Context, client ObjectGetter, certURI, keyURI string) (*Certificates, error) {
	certs := &Certificates{}

	cert, err := getObject(ctx, client, certURI)
	if err != nil {
		return nil, &CertificateLoadError{Source: certURI, Err: fmt.Errorf("failed to load cert from S3: %w", err)}
	}
	certs.Cert = cert

	key, err := getObject(ctx, client, keyURI)
	if err != nil {
		return nil, &CertificateLoadError{Source: keyURI, Err: fmt.Errorf("failed to load key from S3: %w", err)}
	}
	certs.Key = key

	return certs, nil
}

// ParseS3URI splits an s3://bucket/key URI into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URI %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid S3 URI %q: scheme must be s3", uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: bucket and key are required", uri)
	}
	return u.Host, key, nil
}

// getObject fetches an object body from S3
func getObject(ctx context.Context, client ObjectGetter, uri string) ([]byte, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	output, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	if output.Body == nil {
		return nil, errors.New("object has no body")
	}
	defer output.Body.Close()

	data, err := io.ReadAll(io.LimitReader(output.Body, maxObjectSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxObjectSize {
		return nil, fmt.Errorf("object %s exceeds %d bytes", uri, maxObjectSize)
	}
	return data, nil
}
