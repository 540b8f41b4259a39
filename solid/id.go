package solid

import (
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// DefaultIDLength is the length of ids returned by NewID, not counting an
// optional prefix.
const DefaultIDLength = 24

// NewID generates a random URL-safe alphanumeric id with an optional prefix.
// The id generated is suitable for a flow's state or a DPoP proof's jti.
// Supported options: WithPrefix
func NewID(opt ...Option) (string, error) {
	const op = "solid.NewID"
	opts := getIDOpts(opt...)
	id, err := randomString(DefaultIDLength)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if opts.withPrefix != "" {
		return fmt.Sprintf("%s_%s", opts.withPrefix, id), nil
	}
	return id, nil
}

// randomString returns n characters drawn from the unpadded base64 URL
// alphabet with "-" and "_" removed, so the result is strictly alphanumeric
// and safe to embed anywhere a query parameter or storage key can go.
func randomString(n int) (string, error) {
	var out []byte
	for len(out) < n {
		raw, err := uuid.GenerateRandomBytes(n)
		if err != nil {
			return "", fmt.Errorf("unable to generate random bytes: %w", ErrIDGeneratorFailed)
		}
		enc := base64.RawURLEncoding.EncodeToString(raw)
		for i := 0; i < len(enc) && len(out) < n; i++ {
			c := enc[i]
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
				out = append(out, c)
			}
		}
	}
	return string(out), nil
}

// idOptions is the set of available options for NewID
type idOptions struct {
	withPrefix string
}

// idDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func idDefaults() idOptions {
	return idOptions{}
}

// getIDOpts gets the id defaults and applies the opt overrides passed in
func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPrefix provides an optional prefix for a new id
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*idOptions); ok {
			o.withPrefix = prefix
		}
	}
}
