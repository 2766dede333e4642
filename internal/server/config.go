package server

import (
	"net"
	"strconv"
	"time"
)

const (
	// DefaultPort is the HTTPS port used when none is configured.
	DefaultPort = 8443

	DefaultCertFile = "cert.pem"
	DefaultKeyFile  = "key.pem"
)

// Config is the bind address and TLS material for a Server.
type Config struct {
	// Host to bind, empty for all interfaces.
	Host string
	// Port to bind, 0 picks an ephemeral port.
	Port int

	CertFile string
	KeyFile  string
}

// DefaultConfig listens on all interfaces on port 8443 using cert.pem and
// key.pem from the working directory.
func DefaultConfig() Config {
	return Config{
		Host:     "",
		Port:     DefaultPort,
		CertFile: DefaultCertFile,
		KeyFile:  DefaultKeyFile,
	}
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HTTP server limits, the handshake shares the ReadHeaderTimeout deadline.
const (
	readHeaderTimeout = time.Second
	readTimeout       = 5 * time.Minute
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 5 * time.Minute
	maxHeaderBytes    = 8 * 1024 // 8KiB
)
