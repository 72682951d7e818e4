package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// KeyPair is the RSA signing key of the issuer. It also serves as the
// in-process KeySource for validators running next to the issuer.
type KeyPair struct {
	ID      string
	Private *rsa.PrivateKey
}

// GenerateKey creates an ephemeral 2048-bit signing key.
func GenerateKey() (KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generating RSA key: %w", err)
	}
	return newKeyPair(priv), nil
}

// LoadKeyFile reads a PEM encoded RSA private key (PKCS#1 or PKCS#8).
func LoadKeyFile(path string) (KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeyPair{}, fmt.Errorf("reading signing key: %w", err)
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return KeyPair{}, fmt.Errorf("parsing signing key: %w", err)
	}
	return newKeyPair(priv), nil
}

// WriteKeyFile stores the private key as PKCS#8 PEM readable only by the owner.
// It refuses to overwrite an existing file.
func (k KeyPair) WriteKeyFile(path string) error {
	der, err := x509.MarshalPKCS8PrivateKey(k.Private)
	if err != nil {
		return fmt.Errorf("encoding signing key: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating signing key file: %w", err)
	}
	if err := pem.Encode(f, &pem.Block{Type: "PRIVATE KEY", Bytes: der}); err != nil {
		f.Close()
		return fmt.Errorf("writing signing key: %w", err)
	}
	return f.Close()
}

func newKeyPair(priv *rsa.PrivateKey) KeyPair {
	sum := sha256.Sum256(priv.PublicKey.N.Bytes())
	return KeyPair{ID: "parss-" + hex.EncodeToString(sum[:8]), Private: priv}
}

// Public returns the verification key.
func (k KeyPair) Public() *rsa.PublicKey {
	return &k.Private.PublicKey
}

// GetKey implements api.KeySource for the local key.
func (k KeyPair) GetKey(_ context.Context, kid string) (*rsa.PublicKey, error) {
	if kid != k.ID {
		return nil, fmt.Errorf("key ID %q not found", kid)
	}
	return k.Public(), nil
}

// JWKS serves the public key as a JSON Web Key Set.
func (k KeyPair) JWKS() http.Handler {
	pub := k.Public()
	body := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": k.ID,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Error("encoding jwks response", "error", err)
		}
	})
}
