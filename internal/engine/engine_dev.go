//go:build !(linux && arm64)

package engine

import "go.uber.org/zap"

// Development builds have no CGO libVLC; the subprocess backend covers them.
func openLibVLC(_ Options, logger *zap.SugaredLogger) (Backend, error) {
	logger.Warn("libVLC backend is only built for linux/arm64, use the vlc backend")
	return nil, ErrBackendUnavailable
}
