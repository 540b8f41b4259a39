package solid

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

// defaultHTTPTimeout bounds every request made to a provider. Providers are
// arbitrary servers chosen by end users, so no request may hang the service.
const defaultHTTPTimeout = 10 * time.Second

// NewHTTPClient creates a http client which will use the optional CA
// certificate PEM if provided, otherwise it uses the installed system CA
// chain. All requests carry a default timeout.
func NewHTTPClient(caPEM string) (*http.Client, error) {
	const op = "solid.NewHTTPClient"
	tr := cleanhttp.DefaultPooledTransport()

	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}

	return &http.Client{
		Transport: tr,
		Timeout:   defaultHTTPTimeout,
	}, nil
}

// HTTPClientContext returns a new Context that carries the provided HTTP
// client. This method sets the same context key used by the
// github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}
