package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const signingKeyBits = 2048

// KeyManager owns the RSA key that signs caller tokens. The key is created on
// first start and reloaded afterwards so issued tokens survive restarts.
type KeyManager struct {
	path string
	key  *rsa.PrivateKey
}

// NewKeyManager returns a KeyManager storing the key at path. An empty path
// keeps a freshly generated key in memory only.
func NewKeyManager(path string) *KeyManager {
	return &KeyManager{path: path}
}

// LoadOrCreate loads the key from disk if it exists; creates a new one otherwise.
func (m *KeyManager) LoadOrCreate() error {
	if m.path == "" {
		return m.generate()
	}
	err := m.Load()
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := m.generate(); err != nil {
		return err
	}
	return m.save()
}

// Load reads an existing PEM-encoded key.
func (m *KeyManager) Load() error {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read signing key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return fmt.Errorf("signing key %s: no RSA PRIVATE KEY block", m.path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse signing key: %w", err)
	}
	m.key = key
	return nil
}

func (m *KeyManager) generate() error {
	key, err := rsa.GenerateKey(rand.Reader, signingKeyBits)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}
	m.key = key
	return nil
}

func (m *KeyManager) save() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(m.key)})
	if err := os.WriteFile(m.path, keyPEM, 0o600); err != nil {
		return fmt.Errorf("write signing key: %w", err)
	}
	return nil
}

// Key returns the loaded private key, or nil before LoadOrCreate.
func (m *KeyManager) Key() *rsa.PrivateKey { return m.key }
