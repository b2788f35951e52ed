package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const keychainService = "composer-publish"

// exitItemNotFound is the status `security` exits with for a missing item.
const exitItemNotFound = 44

// KeychainStore implements SecretStore with the macOS Keychain through the
// `security` CLI.
type KeychainStore struct {
	service string
	run     func(name string, args ...string) ([]byte, error)
}

func NewKeychainStore() *KeychainStore {
	return &KeychainStore{
		service: keychainService,
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
	}
}

// Set stores or updates a secret.
func (k *KeychainStore) Set(key string, value []byte) error {
	_, err := k.run("security", "add-generic-password",
		"-a", key,
		"-s", k.service,
		"-w", string(value),
		"-U",
	)
	if err != nil {
		return fmt.Errorf("keychain set %s: %s", key, describe(err))
	}
	return nil
}

// Get returns nil for a missing item.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := k.run("security", "find-generic-password",
		"-a", key,
		"-s", k.service,
		"-w",
	)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keychain get %s: %s", key, describe(err))
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

// Delete removes a secret. Deleting a missing item is not an error.
func (k *KeychainStore) Delete(key string) error {
	_, err := k.run("security", "delete-generic-password",
		"-a", key,
		"-s", k.service,
	)
	if err != nil && !notFound(err) {
		return fmt.Errorf("keychain delete %s: %s", key, describe(err))
	}
	return nil
}

func notFound(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == exitItemNotFound
}

func describe(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return strings.TrimSpace(string(exitErr.Stderr))
	}
	return err.Error()
}
