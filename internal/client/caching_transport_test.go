package client

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gregjones/httpcache"
	"github.com/stretchr/testify/require"
)

func TestNewCachingTransport(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "max-age=300")
		_, _ = w.Write([]byte("cached body"))
	}))
	defer upstream.Close()

	tests := []struct {
		name     string
		cacheDir string
	}{
		{name: "memory", cacheDir: ""},
		{name: "disk", cacheDir: t.TempDir()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits.Store(0)
			c := &http.Client{Transport: NewCachingTransport(tt.cacheDir, nil)}

			for i := 0; i < 3; i++ {
				res, err := c.Get(upstream.URL + "/" + tt.name)
				require.NoError(t, err)
				body, err := io.ReadAll(res.Body)
				require.NoError(t, err)
				require.NoError(t, res.Body.Close())
				require.Equal(t, "cached body", string(body))

				if i > 0 {
					require.Equal(t, "1", res.Header.Get(httpcache.XFromCache))
				}
			}

			require.Equal(t, int32(1), hits.Load())
		})
	}
}
