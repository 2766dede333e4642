package commands

import (
	"net/http"

	"filippo.io/csrf"
	"github.com/wolfeidau/httpsfs/internal/proxy"
)

type Globals struct {
	Debug   bool
	Version string
}

// newRouter sends proxy mount paths to the proxy handler, which carries its
// own CORS policy, and everything else to the file handler behind
// cross-origin request protection.
func newRouter(files http.Handler, proxies http.Handler, mounts []proxy.Mount) http.Handler {
	protection := csrf.New()
	protectedFiles := protection.Handler(files)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if proxies != nil && proxy.Matches(mounts, r.URL.Path) {
			proxies.ServeHTTP(w, r)
			return
		}
		protectedFiles.ServeHTTP(w, r)
	})
}
