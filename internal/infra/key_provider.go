package infra

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

const (
	keyFileName = ".key"
	keySize     = 32 // 256-bit SQLCipher key

	// KeyEnvVar supplies the store key as hex, bypassing the key file.
	KeyEnvVar = "FEEDBACKD_STORE_KEY"
)

// ErrKeyReadOnly is returned when storing into a provider that cannot persist.
var ErrKeyReadOnly = errors.New("key provider is read-only")

// FileKeyProvider implements domain.KeyProvider using a local file.
// The key is stored base64-encoded in a hidden file with 0600 permissions,
// shared by the daemon and the CLI.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{
		keyPath: filepath.Join(dataDir, keyFileName),
	}
}

// GetKey reads the store key from the key file.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	return checkKeySize(key)
}

// StoreKey writes the store key with owner-only permissions.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if _, err := checkKeySize(key); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(p.keyPath, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// KeyExists checks if the key file exists.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// EnvKeyProvider reads the store key from an environment variable holding
// 64 hex characters. Used by containers and test harnesses that mount no
// data directory secrets.
type EnvKeyProvider struct {
	name string
}

// NewEnvKeyProvider creates a provider for the named variable.
func NewEnvKeyProvider(name string) *EnvKeyProvider {
	return &EnvKeyProvider{name: name}
}

// GetKey decodes the variable's value.
func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	raw := os.Getenv(p.name)
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", p.name)
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p.name, err)
	}
	return checkKeySize(key)
}

// StoreKey always fails; the environment is not writable storage.
func (p *EnvKeyProvider) StoreKey([]byte) error {
	return ErrKeyReadOnly
}

// KeyExists reports whether the variable is set.
func (p *EnvKeyProvider) KeyExists() bool {
	return os.Getenv(p.name) != ""
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the provider's key, generating and storing one first if
// none exists.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ResolveKey picks the environment key when KeyEnvVar is set, otherwise the
// key file in dataDir (created on first use).
func ResolveKey(dataDir string) ([]byte, error) {
	if env := NewEnvKeyProvider(KeyEnvVar); env.KeyExists() {
		return env.GetKey()
	}
	return EnsureKey(NewFileKeyProvider(dataDir))
}

func checkKeySize(key []byte) ([]byte, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return key, nil
}

var (
	_ domain.KeyProvider = (*FileKeyProvider)(nil)
	_ domain.KeyProvider = (*EnvKeyProvider)(nil)
)
