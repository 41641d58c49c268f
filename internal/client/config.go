package client

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

const (
	// DefaultServer is the public GitHub REST endpoint.
	DefaultServer = "https://api.github.com"
	// DefaultTimeout bounds every request made to the run service.
	DefaultTimeout = 15 * time.Second
	// APIVersion is sent with every request in the X-GitHub-Api-Version header.
	APIVersion = "2022-11-28"
)

// Config holds the information needed to connect to the GitHub Actions API.
type Config struct {
	// Server is the URL of the API (the part before /repos/...).
	Server string
	// Token is sent as a bearer token.
	Token string
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
}

func NewDefault() *Config {
	return &Config{
		Server:  DefaultServer,
		Timeout: DefaultTimeout,
	}
}

func (c *Config) Validate() error {
	validationErrors := make([]error, 0)
	validationErrors = append(validationErrors, validateServer(c.Server)...)
	if c.Token == "" {
		validationErrors = append(validationErrors, fmt.Errorf("no token found"))
	}
	if c.Timeout < 0 {
		validationErrors = append(validationErrors, fmt.Errorf("negative timeout %s", c.Timeout))
	}
	if len(validationErrors) > 0 {
		return fmt.Errorf("invalid client configuration: %v", utilerrors.NewAggregate(validationErrors).Error())
	}
	return nil
}

func validateServer(server string) []error {
	validationErrors := make([]error, 0)
	if len(server) == 0 {
		validationErrors = append(validationErrors, fmt.Errorf("no server found"))
		return validationErrors
	}
	u, err := url.Parse(server)
	if err != nil {
		validationErrors = append(validationErrors, fmt.Errorf("invalid server format %q: %w", server, err))
	}
	if err == nil && len(u.Hostname()) == 0 {
		validationErrors = append(validationErrors, fmt.Errorf("invalid server format %q: no hostname", server))
	}
	return validationErrors
}

// NewHTTPClientFromConfig returns a new HTTP Client from the given config.
func NewHTTPClientFromConfig(config *Config) *http.Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
