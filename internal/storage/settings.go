package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"composer/internal/domain"
)

const preferencesPrefix = "preferences:"

// SettingsStore keeps key-value application settings in app_settings. It
// implements domain.PreferenceStore as the fallback when no session backend
// is configured.
type SettingsStore struct {
	db *DB
}

func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the raw value of key.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.Conn().QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// Set upserts key.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO app_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (s *SettingsStore) LoadPreferences(ctx context.Context, key string) (*domain.Preferences, error) {
	raw, err := s.Get(ctx, preferencesPrefix+key)
	if err != nil {
		return nil, err
	}
	var prefs domain.Preferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences %s: %w", key, err)
	}
	return &prefs, nil
}

func (s *SettingsStore) SavePreferences(ctx context.Context, key string, prefs domain.Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences %s: %w", key, err)
	}
	return s.Set(ctx, preferencesPrefix+key, string(raw))
}
