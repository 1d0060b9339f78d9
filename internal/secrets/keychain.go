package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// keychainStore keeps each token as one keychain item under service.
type keychainStore struct {
	service string
}

func newKeychainStore(service string) *keychainStore {
	return &keychainStore{service: service}
}

func (k *keychainStore) Get(key string) (string, error) {
	val, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keychain read %s: %w", key, err)
	}
	return val, nil
}

func (k *keychainStore) Set(key, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("keychain write %s: %w", key, err)
	}
	return nil
}

// Delete treats a missing item as already deleted, so a disconnect after a
// manual keychain cleanup still succeeds.
func (k *keychainStore) Delete(key string) error {
	err := keyring.Delete(k.service, key)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("keychain delete %s: %w", key, err)
}
