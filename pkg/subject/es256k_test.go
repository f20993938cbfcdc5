package subject

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/identifier"
)

func TestES256KSignAndVerify(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	sig, err := SigningMethodES256K.Sign("header.payload", priv)
	require.NoError(t, err)
	assert.Len(t, sig, 64)

	assert.NoError(t, SigningMethodES256K.Verify("header.payload", sig, priv.PubKey()))
	assert.Error(t, SigningMethodES256K.Verify("header.tampered", sig, priv.PubKey()))

	other, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	assert.Error(t, SigningMethodES256K.Verify("header.payload", sig, other.PubKey()))
}

func TestES256KRegisteredWithJWT(t *testing.T) {
	assert.Equal(t, SigningMethodES256K, jwt.GetSigningMethod("ES256K"))
}

func TestSSIDIDKeyValidateSecp256k1(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	point := priv.PubKey().SerializeUncompressed()

	did, err := identifier.FormatDIDKey(&identifier.JWK{
		Kty: "EC", Crv: "secp256k1", Alg: "ES256K",
		X: base64.RawURLEncoding.EncodeToString(point[1:33]),
		Y: base64.RawURLEncoding.EncodeToString(point[33:65]),
	})
	require.NoError(t, err)

	now := time.Now()
	tok := jwt.NewWithClaims(SigningMethodES256K, jwt.MapClaims{
		"sub":       did,
		"iss":       did,
		"client_id": did,
		"aud":       testRealm,
		"iat":       now.Unix(),
		"exp":       now.Add(300 * time.Second).Unix(),
		"jti":       "es256k-1",
	})
	signed, err := tok.SignedString(priv)
	require.NoError(t, err)

	v := NewSSIDIDKeyValidator(60 * time.Second)
	principal, err := v.Validate(context.Background(), signed, testRealm)
	require.NoError(t, err)
	assert.Equal(t, did, principal.Subject)
	assert.Equal(t, SuiteSSIDIDKey, principal.AuthSuite)

	// EdDSA declared against a secp256k1 key is a mismatch.
	header := segment(`{"alg":"EdDSA","typ":"JWT"}`)
	payload := segment(`{"sub":"` + did + `","iss":"` + did + `","client_id":"` + did + `","aud":"` + testRealm +
		`","iat":` + jsonInt(now.Unix()) + `,"exp":` + jsonInt(now.Add(300*time.Second).Unix()) + `,"jti":"x"}`)
	_, err = v.Validate(context.Background(), header+"."+payload+".c2ln", testRealm)
	assert.True(t, errors.Is(err, errors.ErrCodeAlgKeyMismatch))
}
