package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Reloader watches the policy rules file and hot-reloads it on change.
type Reloader struct {
	watcher *fsnotify.Watcher
	server  *Server
	log     zerolog.Logger
}

// NewReloader creates a file watcher for the server's rules path.
// Returns nil when no rules file is configured or present: built-in
// defaults never change underneath a running server.
func NewReloader(server *Server, log zerolog.Logger) (*Reloader, error) {
	path := server.cfg.RulesPath
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}

	return &Reloader{
		watcher: watcher,
		server:  server,
		log:     log.With().Str("component", "reloader").Logger(),
	}, nil
}

// Run watches for file changes and reloads the rules. Blocks until ctx
// is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait 500ms after the last write before reloading.
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.server.ReloadPolicy(); err != nil {
						r.log.Error().Err(err).Msg("hot-reload failed")
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Error().Err(err).Msg("file watcher error")
		}
	}
}
