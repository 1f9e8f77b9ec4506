package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Signer signs API requests with the account's RSA key. Kalshi expects an
// RSASSA-PSS signature over timestamp + method + path in the access headers.
type Signer struct {
	keyID      string
	privateKey *rsa.PrivateKey
}

// NewSigner parses an RSA private key in PEM form (PKCS#1 or PKCS#8).
func NewSigner(keyID, privateKeyPEM string) (*Signer, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block containing the private key")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS8 format
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not an RSA key")
		}
		privateKey = rsaKey
	}

	return &Signer{keyID: keyID, privateKey: privateKey}, nil
}

// NewSignerFromFile reads the PEM key from disk.
func NewSignerFromFile(keyID, path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	return NewSigner(keyID, string(data))
}

func (s *Signer) sign(timestampMs, method, path string) (string, error) {
	message := timestampMs + method + path
	hashed := sha256.Sum256([]byte(message))

	signature, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, hashed[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// headerValues produces the timestamp and signature for one request.
func (s *Signer) headerValues(method, path string) (timestamp, signature string, err error) {
	timestamp = strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature, err = s.sign(timestamp, method, path)
	return timestamp, signature, err
}

// AddAuthHeaders attaches the Kalshi access headers to a request.
func (s *Signer) AddAuthHeaders(req *http.Request, method, path string) error {
	timestamp, signature, err := s.headerValues(method, path)
	if err != nil {
		return err
	}

	req.Header.Set("KALSHI-ACCESS-KEY", s.keyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", signature)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", timestamp)

	return nil
}
