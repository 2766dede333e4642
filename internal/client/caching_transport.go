package client

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingTransport creates a round tripper which honours upstream
// Cache-Control headers. It is used by the proxy mounts so repeated requests
// for cacheable upstream resources are answered locally.
//
// An empty cacheDir keeps the cache in memory, otherwise responses are
// persisted to disk across restarts.
func NewCachingTransport(cacheDir string, base http.RoundTripper) http.RoundTripper {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cacheDir != "" {
		cache = diskcache.New(cacheDir)
	}

	transport := httpcache.NewTransport(cache)
	transport.Transport = base

	return transport
}
