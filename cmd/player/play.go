package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"player-session/internal/media"
	"player-session/internal/session"
)

// dwell waits until d has passed or session id ends early. It returns false
// when ctx is cancelled.
func (a *app) dwell(ctx context.Context, id session.ID, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case done := <-a.finished:
			if done == id {
				return true
			}
		case failed := <-a.failed:
			if failed == id {
				return true
			}
		}
	}
}

// playCmd plays each locator in turn for a fixed dwell, moving on early when
// one ends or fails, then exits.
func playCmd(configPath *string) *cobra.Command {
	var dwell time.Duration

	cmd := &cobra.Command{
		Use:   "play LOCATOR...",
		Short: "Play files or stream URLs in order, then exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if _, err := media.ParseLocator(arg); err != nil {
					return err
				}
			}
			if dwell <= 0 {
				return fmt.Errorf("--dwell must be positive, got %s", dwell)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}

			for _, locator := range args {
				id, err := a.play(locator)
				if err != nil {
					return closeWith(a, err)
				}
				if !a.dwell(ctx, id, dwell) {
					a.logger.Info("Received signal, shutting down")
					return a.close()
				}
			}

			return a.close()
		},
	}

	cmd.Flags().DurationVarP(&dwell, "dwell", "d", 10*time.Second, "How long each locator stays on screen")
	return cmd
}
