package secret

import (
	"os"
	"strings"
	"sync"
)

const envPrefix = "COMPOSER_SECRET_"

// EnvStore reads secrets from COMPOSER_SECRET_<KEY> environment variables.
// The key is upper-cased with every other character than A-Z and 0-9
// replaced by '_', so "publish:prod-db" reads COMPOSER_SECRET_PUBLISH_PROD_DB.
// Set and Delete only affect this process.
type EnvStore struct {
	mu       sync.RWMutex
	override map[string][]byte
	deleted  map[string]bool
}

func NewEnvStore() *EnvStore {
	return &EnvStore{override: map[string][]byte{}, deleted: map[string]bool{}}
}

// EnvName returns the variable consulted for key.
func EnvName(key string) string {
	return envPrefix + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, key)
}

func (s *EnvStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override[key] = append([]byte(nil), value...)
	delete(s.deleted, key)
	return nil
}

func (s *EnvStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.override[key]; ok {
		return append([]byte(nil), v...), nil
	}
	if s.deleted[key] {
		return nil, nil
	}
	if v, ok := os.LookupEnv(EnvName(key)); ok {
		return []byte(v), nil
	}
	return nil, nil
}

func (s *EnvStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.override, key)
	s.deleted[key] = true
	return nil
}
