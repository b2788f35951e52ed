package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ─────────────────────────────────────────────────────────────
// Autosave: scheduled saves and file-watch imports
// ─────────────────────────────────────────────────────────────

const defaultImportDebounce = 500 * time.Millisecond

type AutosaveOptions struct {
	// Spec is a robfig/cron spec for SaveDirty. Empty disables it.
	Spec string
	// WatchPath is a document JSON file imported into WatchDocument on
	// every write. Empty disables the watcher.
	WatchPath     string
	WatchDocument string
	Debounce      time.Duration
}

// Autosave runs the periodic save of dirty documents and re-imports a
// watched file when it changes.
type Autosave struct {
	docs *DocumentService
	opts AutosaveOptions
	log  zerolog.Logger

	mu          sync.Mutex
	cronSched   *cron.Cron
	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	timer       *time.Timer
}

func NewAutosave(docs *DocumentService, opts AutosaveOptions, log zerolog.Logger) *Autosave {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultImportDebounce
	}
	return &Autosave{docs: docs, opts: opts, log: log}
}

// Start tears down any running scheduler and watcher and rebuilds them.
func (a *Autosave) Start(ctx context.Context) error {
	a.Stop()
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.opts.Spec != "" {
		c := cron.New()
		if _, err := c.AddFunc(a.opts.Spec, func() { a.saveDirty(ctx) }); err != nil {
			return fmt.Errorf("autosave: invalid schedule %q: %w", a.opts.Spec, err)
		}
		c.Start()
		a.cronSched = c
		a.log.Info().Str("schedule", a.opts.Spec).Msg("autosave scheduled")
	}

	if a.opts.WatchPath == "" {
		return nil
	}
	absPath, err := filepath.Abs(a.opts.WatchPath)
	if err != nil {
		return fmt.Errorf("autosave: bad watch path %q: %w", a.opts.WatchPath, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("autosave: create watcher: %w", err)
	}
	// Editors replace files by rename, so the directory is watched.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("autosave: watch %q: %w", filepath.Dir(absPath), err)
	}
	a.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	go a.watch(watchCtx, watcher, absPath)

	a.log.Info().Str("path", absPath).Str("document", a.opts.WatchDocument).Msg("watching document file")
	return nil
}

func (a *Autosave) saveDirty(ctx context.Context) {
	saved, err := a.docs.SaveDirty(ctx, TriggerAutosave)
	if err != nil {
		a.log.Error().Err(err).Msg("autosave failed")
	}
	if len(saved) > 0 {
		a.log.Debug().Strs("documents", saved).Msg("autosaved")
	}
}

func (a *Autosave) watch(ctx context.Context, watcher *fsnotify.Watcher, absPath string) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if p, _ := filepath.Abs(event.Name); p != absPath {
				continue
			}
			a.mu.Lock()
			if a.timer != nil {
				a.timer.Stop()
			}
			a.timer = time.AfterFunc(a.opts.Debounce, func() { a.importFile(ctx, absPath) })
			a.mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			a.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (a *Autosave) importFile(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		a.log.Error().Err(err).Str("path", path).Msg("read watched file")
		return
	}
	if err := a.docs.Import(ctx, a.opts.WatchDocument, payload); err != nil {
		a.log.Error().Err(err).Str("path", path).Msg("import watched file")
	}
}

// Stop tears down the scheduler and the watcher.
func (a *Autosave) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watchCancel != nil {
		a.watchCancel()
		a.watchCancel = nil
	}
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.watcher != nil {
		a.watcher.Close()
		a.watcher = nil
	}
	if a.cronSched != nil {
		<-a.cronSched.Stop().Done()
		a.cronSched = nil
	}
}
