package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/httpsfs/internal/certs"
	"github.com/wolfeidau/httpsfs/internal/client"
	"github.com/wolfeidau/httpsfs/internal/fileserver"
	"github.com/wolfeidau/httpsfs/internal/logger"
	"github.com/wolfeidau/httpsfs/internal/proxy"
	"github.com/wolfeidau/httpsfs/internal/server"
)

type ServeCmd struct {
	// Server configuration
	Host string `help:"host to bind, empty for all interfaces" default:"" env:"HTTPSFS_HOST"`
	Port int    `help:"HTTPS port" default:"8443" env:"HTTPSFS_PORT"`
	Root string `help:"directory to serve" default:"." env:"HTTPSFS_ROOT"`
	Gzip bool   `help:"gzip responses for clients which accept it" default:"false" env:"HTTPSFS_GZIP"`

	// TLS configuration
	Cert   string `help:"path to TLS cert file" default:"cert.pem" env:"HTTPSFS_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"key.pem" env:"HTTPSFS_TLS_KEY"`
	CertS3 string `help:"S3 URI of the TLS cert, overrides --cert" default:"" env:"HTTPSFS_TLS_CERT_S3"`
	KeyS3  string `help:"S3 URI of the TLS key, overrides --key" default:"" env:"HTTPSFS_TLS_KEY_S3"`

	// Proxy configuration
	Proxy         []string `help:"proxy mount as prefix=url, e.g. /tomtom=https://api.tomtom.com" env:"HTTPSFS_PROXY"`
	CORSOrigins   []string `help:"allowed CORS origins for proxy mounts" default:"http://127.0.0.1:5500" env:"HTTPSFS_CORS_ORIGINS"`
	ProxyCache    bool     `help:"cache upstream responses according to Cache-Control" default:"false" env:"HTTPSFS_PROXY_CACHE"`
	ProxyCacheDir string   `help:"directory for the proxy cache, in memory when empty" default:"" env:"HTTPSFS_PROXY_CACHE_DIR"`

	Stdout io.Writer `kong:"-"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.run(ctx, log)
}

func (c *ServeCmd) run(ctx context.Context, log zerolog.Logger) error {
	// TLS material is loaded before anything is bound
	certificates, err := certs.Load(ctx, certs.Config{
		CertPath:  c.Cert,
		KeyPath:   c.Key,
		CertS3URI: c.CertS3,
		KeyS3URI:  c.KeyS3,
	})
	if err != nil {
		return err
	}
	tlsConfig, err := certificates.TLSConfig()
	if err != nil {
		return err
	}

	handler, err := c.handler(log)
	if err != nil {
		return err
	}

	srv, err := server.New(c.serverConfig(), handler, server.WithTLSConfig(tlsConfig), server.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Bind(); err != nil {
		return err
	}

	log.Info().Str("addr", srv.Addr().String()).Str("root", c.Root).Msg("Starting HTTPS server")
	fmt.Fprintf(c.stdout(), "Starting HTTPS server on %s...\n", srv.URL())

	return srv.Serve(ctx)
}

// serverConfig only carries the listen address, the TLS config is passed
// to the server already loaded.
func (c *ServeCmd) serverConfig() server.Config {
	return server.Config{
		Host: c.Host,
		Port: c.Port,
	}
}

func (c *ServeCmd) handler(log zerolog.Logger) (http.Handler, error) {
	files, err := fileserver.New(c.Root, fileserver.WithGzip(c.Gzip))
	if err != nil {
		return nil, fmt.Errorf("failed to create file handler: %w", err)
	}

	mounts, err := proxy.ParseMounts(c.Proxy)
	if err != nil {
		return nil, err
	}
	if len(mounts) == 0 {
		return newRouter(files, nil, nil), nil
	}

	opts := []proxy.Option{
		proxy.WithCORS(c.CORSOrigins),
		proxy.WithLogger(log),
	}
	if c.ProxyCache {
		opts = append(opts, proxy.WithTransport(client.NewCachingTransport(c.ProxyCacheDir, nil)))
		log.Info().Str("dir", c.ProxyCacheDir).Msg("Proxy response cache enabled")
	}

	return newRouter(files, proxy.New(mounts, opts...), mounts), nil
}

func (c *ServeCmd) stdout() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}
