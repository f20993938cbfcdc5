package identifier

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/jeswr/lws-go/pkg/errors"
)

// JWK is the public-key representation passed between components. CID
// documents carry it verbatim as publicKeyJwk; the did:key decoder produces
// it. The secp256k1 curve keeps this a domain type rather than a jwx key:
// jwx/v2 only materialises that curve behind a build tag, while access tokens
// and realm keys (which never use it) stay on jwx.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// Verifier materialises the JWK into a crypto public key usable with the
// matching JWT signing method.
func (k *JWK) Verifier() (interface{}, error) {
	switch {
	case k.Kty == "OKP" && k.Crv == "Ed25519":
		x, err := b64Decode(k.X)
		if err != nil || len(x) != ed25519.PublicKeySize {
			return nil, errors.New(errors.ErrCodeUnsupportedKeyFormat, "malformed Ed25519 x coordinate")
		}
		return ed25519.PublicKey(x), nil
	case k.Kty == "EC" && k.Crv == "P-256":
		x, err := b64Decode(k.X)
		if err != nil {
			return nil, errors.New(errors.ErrCodeUnsupportedKeyFormat, "malformed P-256 x coordinate")
		}
		y, err := b64Decode(k.Y)
		if err != nil {
			return nil, errors.New(errors.ErrCodeUnsupportedKeyFormat, "malformed P-256 y coordinate")
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}, nil
	case k.Kty == "EC" && k.Crv == "secp256k1":
		x, err := b64Decode(k.X)
		if err != nil {
			return nil, errors.New(errors.ErrCodeUnsupportedKeyFormat, "malformed secp256k1 x coordinate")
		}
		y, err := b64Decode(k.Y)
		if err != nil {
			return nil, errors.New(errors.ErrCodeUnsupportedKeyFormat, "malformed secp256k1 y coordinate")
		}
		point := make([]byte, 65)
		point[0] = 0x04
		copy(point[33-len(x):33], x)
		copy(point[65-len(y):65], y)
		pub, err := secp256k1.ParsePubKey(point)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeUnsupportedKeyFormat, "point not on secp256k1")
		}
		return pub, nil
	case k.Kty == "RSA":
		n, err := b64Decode(k.N)
		if err != nil {
			return nil, errors.New(errors.ErrCodeUnsupportedKeyFormat, "malformed RSA modulus")
		}
		e, err := b64Decode(k.E)
		if err != nil {
			return nil, errors.New(errors.ErrCodeUnsupportedKeyFormat, "malformed RSA exponent")
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	}
	return nil, errors.Newf(errors.ErrCodeUnsupportedKeyType, "unsupported key type %s/%s", k.Kty, k.Crv)
}

// AllowedAlgs returns the JWS algorithms a token signed with this key may
// declare. A header alg outside this set is an alg/key mismatch.
func (k *JWK) AllowedAlgs() []string {
	switch {
	case k.Kty == "OKP" && k.Crv == "Ed25519":
		return []string{"EdDSA"}
	case k.Kty == "EC" && k.Crv == "P-256":
		return []string{"ES256"}
	case k.Kty == "EC" && k.Crv == "secp256k1":
		return []string{"ES256K"}
	case k.Kty == "RSA":
		return []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512"}
	}
	return nil
}

func b64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func b64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
