// Package network provides pre-configured, optimized HTTP clients for registry and manifest communication.
package network

import (
	"net/http"
	"time"

	"github.com/porthole-app/porthole/key"
	"github.com/spf13/viper"
)

// Client is the singleton HTTP client shared across the application for efficient resource utilization.
// It is configured with increased concurrency limits and reasonable timeouts tailored for API workflows.
var Client = &http.Client{
	Timeout:   time.Minute,
	Transport: newTransport(),
}

// DownloadClient serves long-running archive transfers where Client's
// overall timeout would cut large downloads short.
var DownloadClient = &http.Client{
	Timeout:   10 * time.Minute,
	Transport: newTransport(),
}

// Setup applies the configured request timeout to the shared client.
func Setup() {
	if secs := viper.GetInt(key.NetworkTimeoutSeconds); secs > 0 {
		Client.Timeout = time.Duration(secs) * time.Second
	}
	Camouflage.Timeout = Client.Timeout
}

// newTransport initializes a tuned http.Transport with optimized pool and timeout parameters.
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 100
	t.MaxConnsPerHost = 200
	t.IdleConnTimeout = 30 * time.Second
	t.ResponseHeaderTimeout = 30 * time.Second
	t.ExpectContinueTimeout = 30 * time.Second
	return t
}
