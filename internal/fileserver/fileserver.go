// Package fileserver provides the static file handler served over HTTPS.
//
// Directory listings, MIME types, conditional and range requests are all
// net/http's http.FileServer behaviour; this package only validates the root
// and optionally adds gzip compression.
package fileserver

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/klauspost/compress/gzhttp"
)

// ErrInvalidRoot indicates the directory to serve does not exist or is not a directory
var ErrInvalidRoot = errors.New("invalid root directory")

type options struct {
	gzip bool
}

// Option configures the file handler
type Option func(*options)

// WithGzip compresses responses for clients which accept gzip.
func WithGzip(enabled bool) Option {
	return func(o *options) {
		o.gzip = enabled
	}
}

// New returns a handler serving the files below root.
func New(root string, opts ...Option) (http.Handler, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}

	var handler http.Handler = http.FileServer(http.Dir(root))

	if o.gzip {
		handler = gzhttp.GzipHandler(handler)
	}

	return handler, nil
}
