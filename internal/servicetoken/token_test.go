package servicetoken

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestSignerIssuesRS256Token(t *testing.T) {
	key, privatePath := writeRSAPrivateKeyFile(t)
	signer, err := NewSigner(Options{
		PrivateKeyPath: privatePath,
		KeyID:          "ragdesk-active",
		Issuer:         "ragdesk",
		Audience:       "rag-backend",
		TTL:            2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := signer.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithAudience("rag-backend"))
	if err != nil || !parsed.Valid {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.Issuer != "ragdesk" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
	if kid, _ := parsed.Header["kid"].(string); kid != "ragdesk-active" {
		t.Fatalf("unexpected kid: %q", kid)
	}
}

func TestSignerRequiresPrivateKey(t *testing.T) {
	if _, err := NewSigner(Options{Issuer: "ragdesk", Audience: "rag-backend"}); err == nil {
		t.Fatal("expected missing key path to fail")
	}
}

func TestSignerRequiresAudience(t *testing.T) {
	_, privatePath := writeRSAPrivateKeyFile(t)
	if _, err := NewSigner(Options{Issuer: "ragdesk", PrivateKeyPath: privatePath}); err == nil {
		t.Fatal("expected missing audience to fail")
	}
}

func writeRSAPrivateKeyFile(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.pem")
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return key, path
}
