package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"player-session/internal/playlist"
	"player-session/internal/session"
)

// runCmd plays a watched playlist directory, advancing when an entry
// finishes or fails to start, when the folder changes and, when configured,
// on a fixed interval.
func runCmd(configPath *string) *cobra.Command {
	var playlistDir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play a watched playlist directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := os.MkdirAll(playlistDir, 0o755); err != nil {
				return fmt.Errorf("playlist dir %s: %w", playlistDir, err)
			}

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}

			changes := make(chan []string, 1)
			w, err := playlist.NewWatcher(playlistDir, func(files []string) {
				// Keep only the newest listing.
				select {
				case <-changes:
				default:
				}
				changes <- files
			}, a.logger)
			if err != nil {
				return closeWith(a, fmt.Errorf("watcher init: %w", err))
			}
			go func() {
				if err := w.Start(); err != nil {
					a.logger.Errorw("Playlist watcher failed", "error", err)
				}
			}()

			p := &runner{app: a, files: w.Files()}
			p.advance()

			var tick <-chan time.Time
			if a.cfg.AdvanceInterval > 0 {
				ticker := time.NewTicker(a.cfg.AdvanceInterval)
				defer ticker.Stop()
				tick = ticker.C
			}

		loop:
			for {
				select {
				case <-ctx.Done():
					a.logger.Info("Received signal, shutting down")
					break loop
				case files := <-changes:
					p.setFiles(files)
				case <-tick:
					p.failures = 0
					p.advance()
				case id := <-a.failed:
					p.startFailed(id)
				case id := <-a.finished:
					p.finished(id)
				}
			}

			w.Stop()
			return a.close()
		},
	}

	cmd.Flags().StringVarP(&playlistDir, "playlist", "p", defaultPlaylistDir(), "Path to the media playlist directory")
	return cmd
}

// runner tracks which playlist entry is on screen.
type runner struct {
	app      *app
	files    []string
	current  string
	session  session.ID
	failures int
}

func (r *runner) setFiles(files []string) {
	r.app.logger.Infow("Playlist changed", "count", len(files))
	r.files = files
	r.failures = 0

	if len(files) == 0 {
		r.current = ""
		if err := r.app.coord.StopActive(); err != nil {
			r.app.logger.Warnw("Stop failed", "error", err)
		}
		return
	}
	if lo.Contains(files, r.current) {
		return
	}
	r.advance()
}

func (r *runner) advance() {
	next := playlist.Next(r.files, r.current)
	if next == "" {
		return
	}
	id, err := r.app.play(next)
	if err != nil {
		r.app.logger.Warnw("Switch failed", "locator", next, "error", err)
		return
	}
	r.current = next
	r.session = id
}

// startFailed skips to the next entry, giving up after one full lap of
// failures until the playlist changes.
func (r *runner) startFailed(id session.ID) {
	if id != r.session {
		return
	}
	r.failures++
	if r.failures >= len(r.files) {
		r.app.logger.Errorw("No playable entries in playlist", "count", len(r.files))
		return
	}
	r.advance()
}

// finished moves on once the entry on screen has played out. A single-entry
// playlist replays its entry.
func (r *runner) finished(id session.ID) {
	if id != r.session {
		return
	}
	r.failures = 0
	r.advance()
}

// closeWith shuts a down and returns err.
func closeWith(a *app, err error) error {
	if cerr := a.close(); cerr != nil {
		a.logger.Warnw("Close after failed start", "error", cerr)
	}
	return err
}

func defaultPlaylistDir() string {
	if runtime.GOOS == "windows" {
		exe, _ := os.Executable()
		return filepath.Join(filepath.Dir(exe), "playlist")
	}
	return "/playlist"
}
