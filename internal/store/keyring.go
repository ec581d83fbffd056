package store

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	serviceName   = "mailpilot"
	masterKeyName = "token-encryption-key"
)

// KeyringSecretStore keeps secrets in the OS keyring
// (macOS Keychain, Windows Credential Manager, or Linux Secret Service).
type KeyringSecretStore struct{}

// NewKeyringSecretStore returns a new KeyringSecretStore.
func NewKeyringSecretStore() *KeyringSecretStore {
	return &KeyringSecretStore{}
}

// Get returns the secret stored under name, or ErrNotFound.
func (k *KeyringSecretStore) Get(name string) (string, error) {
	v, err := keyring.Get(serviceName, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from keyring: %w", name, err)
	}
	return v, nil
}

// Set stores value under name.
func (k *KeyringSecretStore) Set(name, value string) error {
	if err := keyring.Set(serviceName, name, value); err != nil {
		return fmt.Errorf("failed to save %s to keyring: %w", name, err)
	}
	return nil
}

// Delete removes the secret stored under name.
func (k *KeyringSecretStore) Delete(name string) error {
	if err := keyring.Delete(serviceName, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete %s from keyring: %w", name, err)
	}
	return nil
}

// MasterKey returns the token encryption key, creating and saving a random
// one on first use.
func (k *KeyringSecretStore) MasterKey() (string, error) {
	key, err := k.Get(masterKeyName)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}
	key = base64.RawURLEncoding.EncodeToString(buf)
	if err := k.Set(masterKeyName, key); err != nil {
		return "", err
	}
	return key, nil
}
