package solid

// Alg represents asymmetric signing algorithms
type Alg string

const (
	RS256 Alg = "RS256"
	RS384 Alg = "RS384"
	RS512 Alg = "RS512"
	ES256 Alg = "ES256"
	ES384 Alg = "ES384"
	ES512 Alg = "ES512"
	PS256 Alg = "PS256"
	PS384 Alg = "PS384"
	PS512 Alg = "PS512"
)

var supportedAlgorithms = map[Alg]bool{
	RS256: true,
	RS384: true,
	RS512: true,
	ES256: true,
	ES384: true,
	ES512: true,
	PS256: true,
	PS384: true,
	PS512: true,
}

// DefaultSupportedAlgs are the algorithms accepted during id_token
// verification when the caller doesn't specify their own list. Solid
// providers in the wild sign with RSA (NSS, CSS) or EC (ESS) keys.
func DefaultSupportedAlgs() []Alg {
	return []Alg{RS256, ES256}
}
