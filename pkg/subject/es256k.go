package subject

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/golang-jwt/jwt/v5"
)

// SigningMethodES256K implements JWS ES256K (secp256k1 with SHA-256), which
// golang-jwt does not ship. Signatures are the raw 64-byte R||S form.
var SigningMethodES256K = &signingMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(SigningMethodES256K.Alg(), func() jwt.SigningMethod {
		return SigningMethodES256K
	})
}

type signingMethodES256K struct{}

func (m *signingMethodES256K) Alg() string {
	return "ES256K"
}

func (m *signingMethodES256K) Verify(signingString string, sig []byte, key interface{}) error {
	pub, ok := key.(*secp256k1.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if len(sig) != 64 {
		return jwt.ErrSignatureInvalid
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return jwt.ErrSignatureInvalid
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return jwt.ErrSignatureInvalid
	}

	hash := sha256.Sum256([]byte(signingString))
	if !dcrecdsa.NewSignature(&r, &s).Verify(hash[:], pub) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

func (m *signingMethodES256K) Sign(signingString string, key interface{}) ([]byte, error) {
	priv, ok := key.(*secp256k1.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}

	hash := sha256.Sum256([]byte(signingString))
	sig := dcrecdsa.Sign(priv, hash[:])

	r := sig.R()
	s := sig.S()
	rb := r.Bytes()
	sb := s.Bytes()
	out := make([]byte, 64)
	copy(out[:32], rb[:])
	copy(out[32:], sb[:])
	return out, nil
}
