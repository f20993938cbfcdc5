// Package keys manages the authorization server's realm signing keys. Keys
// are loaded from a JWKS file (or inline JWKS JSON), or generated fresh, and
// published through the realm's /jwks endpoint.
package keys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// MinRSAKeySize is the smallest accepted RSA modulus.
const MinRSAKeySize = 2048

// KeyManager holds the realm's current signing key pair.
type KeyManager struct {
	privateKey interface{}
	alg        string
	privateJwk jwk.Key
	publicJwk  jwk.Key
}

// NewKeyManager creates an empty KeyManager instance.
func NewKeyManager() *KeyManager {
	return &KeyManager{}
}

// GenerateRSAKeyPair generates a new RSA signing key.
func (km *KeyManager) GenerateRSAKeyPair() error {
	privateKey, err := rsa.GenerateKey(rand.Reader, MinRSAKeySize)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key pair: %w", err)
	}
	return km.SetPrivateKey(privateKey)
}

// LoadSigningKeys accepts either a path to a JWKS file or an inline JWKS
// object and installs the first key of the set. Later keys are not consulted;
// a set whose first key is not a supported private key (RSA of at least 2048
// bits, P-256 ECDSA or Ed25519) is rejected.
func (km *KeyManager) LoadSigningKeys(pathOrInline string) error {
	data := []byte(pathOrInline)
	if !strings.HasPrefix(strings.TrimSpace(pathOrInline), "{") {
		fileData, err := os.ReadFile(pathOrInline)
		if err != nil {
			return fmt.Errorf("failed to read signing keys file: %w", err)
		}
		data = fileData
	}

	set, err := jwk.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse signing keys: %w", err)
	}
	if set.Len() == 0 {
		return fmt.Errorf("signing key set is empty")
	}
	key, _ := set.Key(0)

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return fmt.Errorf("failed to materialise signing key: %w", err)
	}
	return km.SetPrivateKey(raw)
}

// SetPrivateKey installs a private key and derives its JWK forms and kid.
func (km *KeyManager) SetPrivateKey(privateKey interface{}) error {
	switch k := privateKey.(type) {
	case *rsa.PrivateKey:
		if k.N.BitLen() < MinRSAKeySize {
			return fmt.Errorf("RSA key size %d is below minimum required %d bits", k.N.BitLen(), MinRSAKeySize)
		}
		km.alg = "RS256"
	case *ecdsa.PrivateKey:
		if k.Curve.Params().Name != "P-256" {
			return fmt.Errorf("unsupported ECDSA curve %s for realm signing", k.Curve.Params().Name)
		}
		km.alg = "ES256"
	case ed25519.PrivateKey:
		km.alg = "EdDSA"
	default:
		return fmt.Errorf("unsupported signing key type %T", privateKey)
	}

	privateJwk, err := jwk.FromRaw(privateKey)
	if err != nil {
		return fmt.Errorf("failed to create private JWK: %w", err)
	}
	if err := jwk.AssignKeyID(privateJwk); err != nil {
		return fmt.Errorf("failed to assign kid: %w", err)
	}
	if err := privateJwk.Set(jwk.AlgorithmKey, jwa.KeyAlgorithmFrom(km.alg)); err != nil {
		return fmt.Errorf("failed to set private key algorithm: %w", err)
	}

	publicJwk, err := jwk.PublicKeyOf(privateJwk)
	if err != nil {
		return fmt.Errorf("failed to create public JWK: %w", err)
	}

	km.privateKey = privateKey
	km.privateJwk = privateJwk
	km.publicJwk = publicJwk
	return nil
}

// LoadPrivateKeyPEM loads an RSA private key from a PEM file.
func (km *KeyManager) LoadPrivateKeyPEM(keyPath string) error {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return fmt.Errorf("failed to decode PEM block")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	return km.SetPrivateKey(privateKey)
}

// SaveJWKS writes the private key set to disk as a JWKS file.
func (km *KeyManager) SaveJWKS(keyPath string) error {
	if km.privateJwk == nil {
		return fmt.Errorf("no signing key available")
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(km.privateJwk); err != nil {
		return fmt.Errorf("failed to build key set: %w", err)
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key set: %w", err)
	}

	if err := os.WriteFile(keyPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// SigningKey returns the private key used to sign access tokens.
func (km *KeyManager) SigningKey() (interface{}, error) {
	if km.privateKey == nil {
		return nil, fmt.Errorf("no signing key available")
	}
	return km.privateKey, nil
}

// SigningAlg returns the JWS algorithm matching the installed key.
func (km *KeyManager) SigningAlg() string {
	return km.alg
}

// KeyID returns the kid published alongside the signing key.
func (km *KeyManager) KeyID() string {
	if km.privateJwk == nil {
		return ""
	}
	return km.privateJwk.KeyID()
}

// PublicJWKS returns the realm's public key set for publication.
func (km *KeyManager) PublicJWKS() (jwk.Set, error) {
	if km.publicJwk == nil {
		return nil, fmt.Errorf("no signing key available")
	}
	set := jwk.NewSet()
	if err := set.AddKey(km.publicJwk); err != nil {
		return nil, fmt.Errorf("failed to build key set: %w", err)
	}
	return set, nil
}
