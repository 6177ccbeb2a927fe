package server

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"testlab/internal/config"
	"testlab/internal/db"
	"testlab/internal/ingest"
	"testlab/internal/live"
	"testlab/internal/notify"
)

// FromConfig builds the dashboard server both binaries run: importer, live
// hub, optional Discord notifier and the static file directory.
func FromConfig(cfg *config.Config, store db.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	webDir := ResolveWebDir(cfg.Server.WebDir)
	log.Info("Serving static files", zap.String("dir", webDir), zap.String("log_dir", cfg.Server.LogDir))

	opts := Options{
		LogDir: cfg.Server.LogDir,
		WebDir: webDir,
	}
	if url := cfg.Notify.DiscordWebhook; url != "" {
		opts.Notifier = notify.NewWebhook(url)
		log.Info("Discord notifications enabled")
	}

	return New(store, ingest.NewImporter(store, log), live.NewHub(log), log, opts)
}

// ResolveWebDir finds dir from the working directory or up to two parents,
// for binaries started from a subdirectory. A relative dir that exists
// nowhere is returned unchanged; absolute paths are never rewritten.
func ResolveWebDir(dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	for _, p := range []string{dir, filepath.Join("..", dir), filepath.Join("..", "..", dir)} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return dir
}
