package auth

import (
	"net/http"

	"github.com/hashicorp/go-hclog"
)

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	withLogger     hclog.Logger
	withHTTPClient *http.Client
	withClientName string
}

func serviceDefaults() serviceOptions {
	return serviceOptions{
		withClientName: "solidauth",
	}
}

func getServiceOpts(opt ...Option) serviceOptions {
	opts := serviceDefaults()
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// WithLogger provides a logger for flow progress messages. Secrets are
// never logged.
func WithLogger(l hclog.Logger) Option {
	return func(o *serviceOptions) {
		o.withLogger = l
	}
}

// WithHTTPClient provides the client used for all provider requests.
// Useful for tests that need to trust a local provider's CA.
func WithHTTPClient(c *http.Client) Option {
	return func(o *serviceOptions) {
		o.withHTTPClient = c
	}
}

// WithClientName sets the client_name sent during dynamic
// registration.
func WithClientName(name string) Option {
	return func(o *serviceOptions) {
		o.withClientName = name
	}
}
