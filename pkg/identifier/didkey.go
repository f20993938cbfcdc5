package identifier

import (
	"strings"

	"github.com/mr-tron/base58"

	"github.com/jeswr/lws-go/pkg/errors"
)

const didKeyPrefix = "did:key:"

// Multicodec prefixes of the supported key types.
var (
	codecEd25519   = [2]byte{0xED, 0x01}
	codecP256      = [2]byte{0x12, 0x00}
	codecSecp256k1 = [2]byte{0xEC, 0x01}
)

// ResolveDIDKey decodes a did:key identifier into the JWK it embeds. The
// method-specific part is a multibase-base58btc string whose first two bytes
// select the key type. P-256 and secp256k1 points must be in uncompressed
// form; compressed points are rejected.
func ResolveDIDKey(did string) (*JWK, error) {
	rest, ok := strings.CutPrefix(did, didKeyPrefix)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidURI, "%q is not a did:key identifier", did)
	}
	if !strings.HasPrefix(rest, "z") {
		return nil, errors.New(errors.ErrCodeUnsupportedKeyFormat, "did:key is not multibase-base58btc encoded")
	}
	raw, err := base58.Decode(rest[1:])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnsupportedKeyFormat, "invalid base58btc in did:key")
	}
	if len(raw) < 2 {
		return nil, errors.New(errors.ErrCodeUnsupportedKeyFormat, "did:key payload too short")
	}

	prefix := [2]byte{raw[0], raw[1]}
	key := raw[2:]
	switch prefix {
	case codecEd25519:
		if len(key) != 32 {
			return nil, errors.Newf(errors.ErrCodeUnsupportedKeyFormat, "Ed25519 did:key carries %d bytes, want 32", len(key))
		}
		return &JWK{Kty: "OKP", Crv: "Ed25519", Alg: "EdDSA", X: b64Encode(key)}, nil
	case codecP256:
		x, y, err := uncompressedPoint(key)
		if err != nil {
			return nil, err
		}
		return &JWK{Kty: "EC", Crv: "P-256", Alg: "ES256", X: b64Encode(x), Y: b64Encode(y)}, nil
	case codecSecp256k1:
		x, y, err := uncompressedPoint(key)
		if err != nil {
			return nil, err
		}
		return &JWK{Kty: "EC", Crv: "secp256k1", Alg: "ES256K", X: b64Encode(x), Y: b64Encode(y)}, nil
	}
	return nil, errors.Newf(errors.ErrCodeUnsupportedKeyType, "unsupported multicodec prefix 0x%02X%02X", prefix[0], prefix[1])
}

// FormatDIDKey re-encodes a JWK produced by ResolveDIDKey into its did:key
// form, making the decode a pure, invertible function.
func FormatDIDKey(key *JWK) (string, error) {
	var raw []byte
	switch {
	case key.Kty == "OKP" && key.Crv == "Ed25519":
		x, err := b64Decode(key.X)
		if err != nil {
			return "", errors.New(errors.ErrCodeUnsupportedKeyFormat, "malformed Ed25519 x coordinate")
		}
		raw = append(codecEd25519[:], x...)
	case key.Kty == "EC" && (key.Crv == "P-256" || key.Crv == "secp256k1"):
		x, err := b64Decode(key.X)
		if err != nil {
			return "", errors.New(errors.ErrCodeUnsupportedKeyFormat, "malformed x coordinate")
		}
		y, err := b64Decode(key.Y)
		if err != nil {
			return "", errors.New(errors.ErrCodeUnsupportedKeyFormat, "malformed y coordinate")
		}
		prefix := codecP256
		if key.Crv == "secp256k1" {
			prefix = codecSecp256k1
		}
		point := make([]byte, 65)
		point[0] = 0x04
		copy(point[33-len(x):33], x)
		copy(point[65-len(y):65], y)
		raw = append(prefix[:], point...)
	default:
		return "", errors.Newf(errors.ErrCodeUnsupportedKeyType, "cannot encode key type %s/%s as did:key", key.Kty, key.Crv)
	}
	return didKeyPrefix + "z" + base58.Encode(raw), nil
}

// uncompressedPoint splits an SEC1 point into its coordinates. Only the
// uncompressed form is accepted.
func uncompressedPoint(data []byte) (x, y []byte, err error) {
	if len(data) == 33 && (data[0] == 0x02 || data[0] == 0x03) {
		return nil, nil, errors.New(errors.ErrCodeUnsupportedKeyFormat, "compressed points are not supported")
	}
	if len(data) != 65 || data[0] != 0x04 {
		return nil, nil, errors.New(errors.ErrCodeUnsupportedKeyFormat, "expected an uncompressed SEC1 point")
	}
	return data[1:33], data[33:65], nil
}
