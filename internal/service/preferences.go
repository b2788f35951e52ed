package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"composer/internal/domain"
	"composer/internal/editor"
	"composer/internal/reducer"
	"composer/internal/session"
	"composer/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Preference Persistence
// ─────────────────────────────────────────────────────────────
//
// Restores viewport and sidebar visibility between sessions. The session
// store (Redis) is consulted first; the local settings table keeps the
// last value when Redis is absent or has expired the key.

type PreferencesService struct {
	primary  domain.PreferenceStore
	fallback domain.PreferenceStore
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// NewPreferencesService accepts a nil primary or fallback.
func NewPreferencesService(primary, fallback domain.PreferenceStore, log zerolog.Logger) *PreferencesService {
	return &PreferencesService{primary: primary, fallback: fallback, log: log}
}

func isMissing(err error) bool {
	return errors.Is(err, session.ErrNotFound) || errors.Is(err, storage.ErrNotFound)
}

// Load returns the stored preferences of key, or nil when none are stored.
func (s *PreferencesService) Load(ctx context.Context, key string) *domain.Preferences {
	for _, store := range []domain.PreferenceStore{s.primary, s.fallback} {
		if store == nil {
			continue
		}
		prefs, err := store.LoadPreferences(ctx, key)
		if err == nil {
			return prefs
		}
		if !isMissing(err) {
			s.log.Warn().Err(err).Str("session", key).Msg("load preferences")
		}
	}
	return nil
}

// Save writes prefs to every configured store.
func (s *PreferencesService) Save(ctx context.Context, key string, prefs domain.Preferences) error {
	var errs []error
	for _, store := range []domain.PreferenceStore{s.primary, s.fallback} {
		if store == nil {
			continue
		}
		if err := store.SavePreferences(ctx, key, prefs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Hook persists preference changes of an editor under key. Saves run on
// their own goroutine since hooks run inside the dispatch section.
func (s *PreferencesService) Hook(ctx context.Context, key string) editor.Hook {
	return func(_ reducer.Action, prev, next domain.AppState) {
		prefs := domain.PreferencesOf(next.UI)
		if prefs == domain.PreferencesOf(prev.UI) {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.Save(ctx, key, prefs); err != nil {
				s.log.Warn().Err(err).Str("session", key).Msg("save preferences")
			}
		}()
	}
}

// Wait blocks until pending saves finish.
func (s *PreferencesService) Wait() { s.wg.Wait() }
