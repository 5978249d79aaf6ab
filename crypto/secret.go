package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const masterSecretPEMType = "STRATIZEN MESSAGE MASTER SECRET"

// EnsureMasterSecret loads the message master secret from disk, generating it on first run.
func EnsureMasterSecret(path string) ([]byte, error) {
	secret, err := LoadMasterSecret(path)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	secret = make([]byte, KeySize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate master secret: %w", err)
	}
	if err := SaveMasterSecret(path, secret); err != nil {
		return nil, err
	}

	return secret, nil
}

// LoadMasterSecret reads a master secret PEM file.
func LoadMasterSecret(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read master secret: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("decode master secret PEM: no PEM block")
	}
	if block.Type != masterSecretPEMType {
		return nil, fmt.Errorf("decode master secret PEM: unexpected type %q", block.Type)
	}
	if len(block.Bytes) != KeySize {
		return nil, fmt.Errorf("decode master secret PEM: invalid secret size %d", len(block.Bytes))
	}

	return block.Bytes, nil
}

// SaveMasterSecret writes a master secret PEM file with 0600 permissions.
func SaveMasterSecret(path string, secret []byte) error {
	if len(secret) != KeySize {
		return fmt.Errorf("save master secret: invalid secret size %d", len(secret))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	block := &pem.Block{
		Type:  masterSecretPEMType,
		Bytes: secret,
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write master secret: %w", err)
	}

	return nil
}

// SecretFingerprint returns a truncated SHA-256 hex fingerprint that identifies a secret
// without revealing it.
func SecretFingerprint(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:8])
}

// FormatFingerprint returns fingerprint text grouped in chunks of 4 uppercase chars.
func FormatFingerprint(fingerprint string) string {
	clean := strings.ToUpper(strings.ReplaceAll(fingerprint, " ", ""))
	if clean == "" {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(clean); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(clean[i:min(i+4, len(clean))])
	}

	return b.String()
}
