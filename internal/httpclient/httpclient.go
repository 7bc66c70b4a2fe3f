// Package httpclient builds HTTP clients that honour the standard proxy
// environment variables the way curl and wget do.
package httpclient

import (
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// proxyEnvVars in order of preference
var proxyEnvVars = []string{
	"HTTPS_PROXY",
	"https_proxy",
	"HTTP_PROXY",
	"http_proxy",
}

// New creates an HTTP client with the given timeout, routed through a proxy
// when one is configured in the environment.
func New(timeout time.Duration, logger *logrus.Logger) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL := proxyFromEnv(); proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			if logger != nil {
				logger.WithError(err).WithField("proxy_url", redactCredentials(proxyURL)).Warn("Failed to parse proxy URL, using direct connection")
			}
		} else {
			transport.Proxy = http.ProxyURL(parsed)
			if logger != nil {
				logger.WithField("proxy_url", redactCredentials(proxyURL)).Debug("HTTP client configured with proxy")
			}
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// proxyFromEnv returns the first configured proxy URL, skipping the
// placeholder values some tools export.
func proxyFromEnv() string {
	for _, envVar := range proxyEnvVars {
		if proxyURL := os.Getenv(envVar); proxyURL != "" {
			if proxyURL != "$HTTPS_PROXY" && proxyURL != "$HTTP_PROXY" {
				return proxyURL
			}
		}
	}
	return ""
}

// redactCredentials strips userinfo from a proxy URL for safe logging.
func redactCredentials(proxyURL string) string {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return "[invalid-url]"
	}
	if parsed.User != nil {
		parsed.User = url.UserPassword("***", "***")
	}
	return parsed.String()
}
