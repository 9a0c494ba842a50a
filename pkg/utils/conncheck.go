package utils

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/mpapenbr/racestrategy-service-go/log"
)

//nolint:gochecknoglobals // lookup table
var defaultPorts = map[string]string{
	"nats":  "4222",
	"tls":   "4222",
	"http":  "80",
	"https": "443",
	"kafka": "9092",
}

// WaitForTCP tries to connect to addr until it succeeds or timeout is reached
func WaitForTCP(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	log.Debug("wait for tcp connection",
		log.String("addr", addr),
		log.Duration("timeout", timeout))
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			log.Debug("tcp connection successful",
				log.String("addr", addr),
				log.Duration("duration", time.Since(start)))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s could not be reached after %v", addr, timeout)
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// ExtractAddr returns the host:port of a service url. Plain host:port values
// (e.g. kafka brokers) are returned unchanged. Without explicit port the
// default port of the scheme is used.
func ExtractAddr(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		if _, _, err := net.SplitHostPort(rawURL); err == nil {
			return rawURL
		}
		return net.JoinHostPort(rawURL, defaultPorts["kafka"])
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	if port := u.Port(); port != "" {
		return net.JoinHostPort(u.Hostname(), port)
	}
	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return ""
	}
	return net.JoinHostPort(u.Hostname(), port)
}
