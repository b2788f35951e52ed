package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"composer/internal/config"
	"composer/internal/domain"
	"composer/internal/editor"
	mcpserver "composer/internal/mcp"
	"composer/internal/plugins"
	"composer/internal/preview"
	"composer/internal/registry"
	"composer/internal/search"
	"composer/internal/secret"
	"composer/internal/service"
	"composer/internal/session"
	"composer/internal/storage"
)

// defaultSession keys the preferences of the local editor.
const defaultSession = "default"

// App wires storage, services and transports of one composer workspace.
type App struct {
	ctx     context.Context
	cfg     config.Config
	log     zerolog.Logger
	started time.Time

	db        *storage.DB
	approvals *storage.ApprovalStore
	redis     *session.RedisStore
	meili     *search.Meili

	reg      *registry.Registry
	events   *Broadcaster
	docs     *service.DocumentService
	prefs    *service.PreferencesService
	publish  *service.PublishService
	search   *search.Service
	autosave *service.Autosave
	preview  *preview.Surface
	mcp      *mcpserver.Server
}

// Options tune New for the standalone MCP mode and tests.
type Options struct {
	// StandaloneMCP routes approvals through the database so that a
	// separate HTTP server process can decide them.
	StandaloneMCP bool
	// Secrets overrides the platform secret store.
	Secrets secret.SecretStore
}

// New opens the workspace described by cfg. Redis and Meilisearch are
// optional; when unreachable the app falls back to SQLite.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger, opts Options) (*App, error) {
	db, err := storage.New(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{
		ctx:       ctx,
		cfg:       cfg,
		log:       log,
		started:   time.Now(),
		db:        db,
		approvals: storage.NewApprovalStore(db),
		reg:       plugins.NewRegistry(),
		events:    NewBroadcaster(log),
	}
	a.preview = preview.New(a.reg)

	if cfg.RedisURL != "" {
		if a.redis, err = session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, preferences stay local")
		}
	}
	a.prefs = service.NewPreferencesService(preferenceStore(a.redis), storage.NewSettingsStore(db), log.With().Str("component", "preferences").Logger())

	if cfg.MeiliURL != "" {
		a.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliKey, cfg.MeiliIndex, log.With().Str("component", "search").Logger())
	}
	docStore := storage.NewDocumentStore(db)
	a.search = search.NewService(a.meili, docStore, log)

	a.docs = service.NewDocumentService(ctx, a.reg, docStore, storage.NewHistoryStore(db, cfg.HistoryLimit), service.DocumentServiceOptions{
		Logger:       log.With().Str("component", "documents").Logger(),
		Emitter:      a.events,
		Index:        a.search,
		HistoryLimit: cfg.HistoryLimit,
	})

	secrets := opts.Secrets
	if secrets == nil {
		secrets = secret.Default()
	}
	a.publish = service.NewPublishService(a.docs, cfg.PublishTargets, secrets, a.events, log.With().Str("component", "publish").Logger())

	a.autosave = service.NewAutosave(a.docs, service.AutosaveOptions{
		Spec:          cfg.AutosaveSpec,
		WatchPath:     cfg.WatchPath,
		WatchDocument: cfg.DocumentID,
	}, log.With().Str("component", "autosave").Logger())

	deps := mcpserver.Deps{
		Emitter:         a.events,
		Logger:          log.With().Str("component", "mcp").Logger(),
		Registry:        a.reg,
		Documents:       a.docs,
		Publish:         a.publish,
		Search:          a.search,
		DefaultDocument: cfg.DocumentID,
		AutoApprove:     cfg.MCPAutoApprove,
	}
	if opts.StandaloneMCP {
		deps.ApprovalStore = a.approvals
	}
	a.mcp = mcpserver.New(ctx, deps)
	return a, nil
}

// preferenceStore keeps a nil *RedisStore from becoming a non-nil interface.
func preferenceStore(r *session.RedisStore) domain.PreferenceStore {
	if r == nil {
		return nil
	}
	return r
}

// Start opens the configured document and starts autosave and the file
// watcher.
func (a *App) Start(ctx context.Context) error {
	if _, err := a.Open(ctx, a.cfg.DocumentID); err != nil {
		return err
	}
	return a.autosave.Start(ctx)
}

// Open returns the editor of documentID, restoring the local session's
// preferences and persisting their changes.
func (a *App) Open(ctx context.Context, documentID string) (*editor.Editor, error) {
	prefs := a.prefs.Load(ctx, defaultSession)
	if prefs != nil {
		if _, ok := a.cfg.Viewport(prefs.Viewport); !ok {
			prefs.Viewport = ""
		}
	}
	return a.docs.Open(ctx, documentID, service.OpenOptions{
		Preferences: prefs,
		Hooks:       []editor.Hook{a.prefs.Hook(a.ctx, defaultSession)},
	})
}

// MCP returns the MCP server.
func (a *App) MCP() *mcpserver.Server { return a.mcp }

// Close stops background work, saves dirty documents and closes stores.
func (a *App) Close(ctx context.Context) error {
	a.autosave.Stop()
	errs := []error{a.docs.Close(ctx)}
	a.prefs.Wait()
	if a.meili != nil {
		a.meili.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}
