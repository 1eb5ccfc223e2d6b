// Package auth signs stream handshakes with RSA-PSS.
//
// The signed message is timestamp_ms + method + path. Servers verify it with
// the public half of the key registered for the API key.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Handshake header names.
const (
	HeaderKey       = "X-Stream-Key"
	HeaderTimestamp = "X-Stream-Timestamp"
	HeaderSignature = "X-Stream-Signature"
)

var (
	ErrMissingKeyID   = errors.New("API key ID is required")
	ErrMissingKeyPath = errors.New("private key path is required")
)

// Credentials holds the API key and private key for signing handshakes.
type Credentials struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey

	// now is overridden in tests
	now func() time.Time
}

// NewCredentials wraps an already loaded key.
func NewCredentials(keyID string, key *rsa.PrivateKey) *Credentials {
	return &Credentials{KeyID: keyID, PrivateKey: key, now: time.Now}
}

// LoadCredentials loads credentials from key ID and private key file path.
func LoadCredentials(keyID, privateKeyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, ErrMissingKeyID
	}
	if privateKeyPath == "" {
		return nil, ErrMissingKeyPath
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return NewCredentials(keyID, privateKey), nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	// Try PKCS#8 first (newer format)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	// Fall back to PKCS#1 (older format)
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return rsaKey, nil
}

// Sign returns the authentication headers for a request.
func (c *Credentials) Sign(method, path string) (http.Header, error) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	timestampMs := now().UnixMilli()

	signature, err := c.signature(timestampMs, method, path)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set(HeaderKey, c.KeyID)
	h.Set(HeaderTimestamp, strconv.FormatInt(timestampMs, 10))
	h.Set(HeaderSignature, signature)
	return h, nil
}

// HandshakeHeader signs the WebSocket upgrade request for u. Its signature
// matches connection.HeaderFunc, so it plugs into TransportConfig.Header.
// Each reconnect is signed with a fresh timestamp.
func (c *Credentials) HandshakeHeader(u *url.URL) (http.Header, error) {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return c.Sign(http.MethodGet, path)
}

func (c *Credentials) signature(timestampMs int64, method, path string) (string, error) {
	hashed := sha256.Sum256(message(timestampMs, method, path))

	sig, err := rsa.SignPSS(
		rand.Reader,
		c.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

func message(timestampMs int64, method, path string) []byte {
	return []byte(strconv.FormatInt(timestampMs, 10) + method + path)
}
