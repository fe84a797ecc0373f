// Package credentials seals deploy keys with AES-GCM before they reach the
// store, so a database dump alone never yields usable key material.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const EncryptionKeyEnv = "REPODOCK_ENCRYPTION_KEY"
const EncryptionKeyFileEnv = "REPODOCK_ENCRYPTION_KEY_FILE"

// Service seals and opens credential material. The zero value is disabled;
// Encrypt and Decrypt on a disabled service return an error naming the
// missing configuration.
type Service struct {
	aead   cipher.AEAD
	source string
}

// NewServiceFromEnv builds the service from whichever key source is
// configured: REPODOCK_ENCRYPTION_KEY wins over a key file
// (REPODOCK_ENCRYPTION_KEY_FILE, falling back to defaultKeyPath). A missing
// key file is generated once and reused on later starts.
func NewServiceFromEnv(defaultKeyPath string) (*Service, error) {
	raw := strings.TrimSpace(os.Getenv(EncryptionKeyEnv))
	if raw != "" {
		key, err := decodeKey(raw, EncryptionKeyEnv)
		if err != nil {
			return nil, err
		}
		return newService(key, "env:"+EncryptionKeyEnv)
	}

	keyPath := strings.TrimSpace(os.Getenv(EncryptionKeyFileEnv))
	if keyPath == "" {
		keyPath = defaultKeyPath
	}
	if keyPath == "" {
		return nil, fmt.Errorf("missing default encryption key path")
	}

	key, source, err := ensureKeyFile(keyPath)
	if err != nil {
		return nil, err
	}
	return newService(key, source)
}

func newService(key []byte, source string) (*Service, error) {
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	return &Service{aead: aead, source: source}, nil
}

// decodeKey accepts either base64 for 32 bytes or 32 raw bytes.
func decodeKey(value, source string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err == nil && len(decoded) == 32 {
		return decoded, nil
	}

	if len(value) == 32 {
		return []byte(value), nil
	}

	return nil, fmt.Errorf("%s must be 32 raw bytes or base64 for 32 bytes", source)
}

// ensureKeyFile loads the key file, generating it on first run. Creation
// uses O_EXCL so two racing servers sharing a data dir converge on one key.
func ensureKeyFile(path string) ([]byte, string, error) {
	existing, err := os.ReadFile(path)
	if err == nil {
		key, decodeErr := decodeKey(strings.TrimSpace(string(existing)), "key file "+path)
		if decodeErr != nil {
			return nil, "", decodeErr
		}
		return key, "file:" + path, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("failed reading key file: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if mkdirErr := os.MkdirAll(dir, 0700); mkdirErr != nil {
			return nil, "", fmt.Errorf("failed creating key dir: %w", mkdirErr)
		}
	}

	key := make([]byte, 32)
	if _, randErr := rand.Read(key); randErr != nil {
		return nil, "", fmt.Errorf("failed generating encryption key: %w", randErr)
	}
	encoded := base64.StdEncoding.EncodeToString(key) + "\n"

	file, createErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if createErr != nil {
		if errors.Is(createErr, os.ErrExist) {
			// Lost the creation race; read the winner's key.
			return ensureKeyFile(path)
		}
		return nil, "", fmt.Errorf("failed creating key file: %w", createErr)
	}
	if _, writeErr := file.WriteString(encoded); writeErr != nil {
		_ = file.Close()
		return nil, "", fmt.Errorf("failed writing key file: %w", writeErr)
	}
	if closeErr := file.Close(); closeErr != nil {
		return nil, "", fmt.Errorf("failed closing key file: %w", closeErr)
	}

	return key, "file:" + path, nil
}

// Enabled reports whether encryption is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.aead != nil
}

// KeySource reports where the key came from, for startup logging.
func (s *Service) KeySource() string {
	if s == nil {
		return ""
	}
	return s.source
}

// Encrypt seals plaintext, returning ciphertext and the nonce it was sealed
// with. Both are stored; neither is secret.
func (s *Service) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	if !s.Enabled() {
		return nil, nil, fmt.Errorf("credential encryption is disabled: %s is not set", EncryptionKeyEnv)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed generating nonce: %w", err)
	}

	ciphertext := s.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens a sealed credential. Tampered ciphertext fails
// authentication and returns an error rather than garbage.
func (s *Service) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("credential encryption is disabled: %s is not set", EncryptionKeyEnv)
	}
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed decrypting credential: %w", err)
	}
	return plaintext, nil
}

func wipe(value []byte) {
	for i := range value {
		value[i] = 0
	}
}
