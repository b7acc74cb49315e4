package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// KeySet holds the RSA key used to verify access tokens. The private half is
// only present when the key set was generated locally.
type KeySet struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	kid        string
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func NewKeySet() (*KeySet, error) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	return &KeySet{
		privateKey: pk,
		publicKey:  &pk.PublicKey,
		kid:        uuid.NewString(),
	}, nil
}

// LoadPublicKeyFile reads a PEM encoded RSA public key issued by the
// identity provider. The resulting key set can verify but not sign.
func LoadPublicKeyFile(path string) (*KeySet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("public key file is not PEM encoded")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return &KeySet{publicKey: pub, kid: keyID(pub)}, nil
}

func (ks *KeySet) PrivateKey() *rsa.PrivateKey { return ks.privateKey }

func (ks *KeySet) PublicKey() *rsa.PublicKey { return ks.publicKey }

func (ks *KeySet) KeyID() string { return ks.kid }

func (ks *KeySet) JWKS() (JWKS, error) {
	pub := ks.PublicKey()
	if pub == nil {
		return JWKS{}, errors.New("missing public key")
	}

	return JWKS{
		Keys: []JWK{rsaPublicJWK(ks.kid, pub)},
	}, nil
}

// Mint signs an access token for actor. Only key sets holding a private key
// can mint; production tokens come from the identity provider.
func (ks *KeySet) Mint(issuer, actor string, scopes []string, ttl time.Duration) (string, error) {
	if ks.privateKey == nil {
		return "", errors.New("key set cannot sign")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actor,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scopes: scopes,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = ks.kid
	return tok.SignedString(ks.privateKey)
}

func rsaPublicJWK(kid string, pub *rsa.PublicKey) JWK {
	n := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())

	// RFC7517: exponent is base64url-encoded big-endian.
	eBytes := big.NewInt(int64(pub.E)).Bytes()
	e := base64.RawURLEncoding.EncodeToString(eBytes)

	return JWK{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: kid,
		N:   n,
		E:   e,
	}
}

// keyID derives a stable kid from the modulus so restarts publish the same id.
func keyID(pub *rsa.PublicKey) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, pub.N.Bytes()).String()
}
