// Package proxy forwards path prefixes to upstream HTTP APIs, so a page
// served by the file server can call third party APIs through the same
// origin without exposing them to CORS restrictions.
package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"slices"
	"strings"
	"unicode"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// DefaultCORSOrigin is the local development frontend allowed to call proxy mounts.
const DefaultCORSOrigin = "http://127.0.0.1:5500"

// ErrInvalidMount indicates a mount definition could not be parsed
var ErrInvalidMount = errors.New("invalid proxy mount")

// Mount forwards requests below Prefix to Target with the prefix removed.
type Mount struct {
	Prefix string
	Target *url.URL
}

// ParseMount parses a mount definition of the form "/prefix=https://host/path".
func ParseMount(s string) (Mount, error) {
	prefix, target, ok := strings.Cut(s, "=")
	if !ok {
		return Mount{}, fmt.Errorf("%w: %q: expected prefix=url", ErrInvalidMount, s)
	}

	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if !strings.HasPrefix(prefix, "/") {
		return Mount{}, fmt.Errorf("%w: %q: prefix must start with / and not be the root", ErrInvalidMount, s)
	}
	if strings.ContainsFunc(prefix, invalidPrefixRune) {
		return Mount{}, fmt.Errorf("%w: %q: prefix must be a literal path without spaces, wildcards, queries or fragments", ErrInvalidMount, s)
	}

	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return Mount{}, fmt.Errorf("%w: %q: %w", ErrInvalidMount, s, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Mount{}, fmt.Errorf("%w: %q: target must be an absolute http or https URL", ErrInvalidMount, s)
	}

	return Mount{Prefix: prefix, Target: u}, nil
}

func invalidPrefixRune(r rune) bool {
	switch r {
	case '{', '}', '?', '#':
		return true
	}
	return unicode.IsSpace(r) || unicode.IsControl(r)
}

// ParseMounts parses each definition, rejecting duplicate prefixes.
func ParseMounts(defs []string) ([]Mount, error) {
	mounts := make([]Mount, 0, len(defs))
	seen := make(map[string]bool, len(defs))

	for _, def := range defs {
		m, err := ParseMount(def)
		if err != nil {
			return nil, err
		}
		if seen[m.Prefix] {
			return nil, fmt.Errorf("%w: duplicate prefix %s", ErrInvalidMount, m.Prefix)
		}
		seen[m.Prefix] = true
		mounts = append(mounts, m)
	}

	return mounts, nil
}

// Matches reports whether the request path is handled by this mount.
func (m Mount) Matches(path string) bool {
	return path == m.Prefix || strings.HasPrefix(path, m.Prefix+"/")
}

// Matches reports whether any of the mounts handles the request path.
func Matches(mounts []Mount, path string) bool {
	for _, m := range mounts {
		if m.Matches(path) {
			return true
		}
	}
	return false
}

type options struct {
	transport   http.RoundTripper
	corsOrigins []string
	log         zerolog.Logger
}

// Option configures the proxy handler
type Option func(*options)

// WithTransport sets the round tripper used for upstream requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithCORS sets the origins allowed to call the proxy mounts from a browser.
func WithCORS(origins []string) Option {
	return func(o *options) {
		o.corsOrigins = origins
	}
}

// WithLogger sets the logger for upstream failures.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

type route struct {
	mount Mount
	proxy http.Handler
}

// New returns a handler which routes each mount prefix to its upstream.
// Routing uses Mount.Matches, the longest matching prefix wins and any
// other path is not found.
func New(mounts []Mount, opts ...Option) http.Handler {
	o := &options{
		corsOrigins: []string{DefaultCORSOrigin},
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	routes := make([]route, 0, len(mounts))
	for _, m := range mounts {
		routes = append(routes, route{mount: m, proxy: newReverseProxy(m, o)})

		o.log.Info().Str("prefix", m.Prefix).Str("target", m.Target.String()).Msg("Proxy mount registered")
	}
	slices.SortStableFunc(routes, func(a, b route) int {
		return len(b.mount.Prefix) - len(a.mount.Prefix)
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, rt := range routes {
			if rt.mount.Matches(r.URL.Path) {
				rt.proxy.ServeHTTP(w, r)
				return
			}
		}
		http.NotFound(w, r)
	})

	return withCORS(o.corsOrigins, h)
}

func newReverseProxy(m Mount, o *options) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.Out.URL.Path = strings.TrimPrefix(r.In.URL.Path, m.Prefix)
			r.Out.URL.RawPath = strings.TrimPrefix(r.In.URL.RawPath, m.Prefix)
			// SetURL also sets the Host header to the target host
			r.SetURL(m.Target)
		},
		Transport: o.transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			o.log.Warn().
				Err(err).
				Str("prefix", m.Prefix).
				Str("target", m.Target.String()).
				Str("path", r.URL.Path).
				Msg("Upstream request failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

// withCORS adds CORS support for browser callers of the proxy mounts.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"*"},
	})
	return middleware.Handler(h)
}
