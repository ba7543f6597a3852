// Package logging builds the zap loggers used across the player.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	BuildTypeNone    = ""
	BuildTypeDev     = "dev"
	BuildTypeRelease = "release"

	LogDirectory = "logs"
	LogFilename  = "player-latest-run.log"

	// Rotated run logs older than this are removed at startup.
	logRetention = 7 * 24 * time.Hour
)

// NewLogger returns a logger for the given build type. Release builds log
// info and above to LogDirectory; anything else logs debug to stderr.
func NewLogger(buildType string) (*zap.SugaredLogger, error) {
	var cfg zap.Config

	if buildType == BuildTypeRelease {
		if err := os.MkdirAll(LogDirectory, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", LogDirectory, err)
		}
		if err := rotate(LogDirectory, time.Now()); err != nil {
			return nil, fmt.Errorf("rotate logs: %w", err)
		}

		cfg = zap.NewProductionConfig()
		cfg.OutputPaths = []string{filepath.Join(LogDirectory, LogFilename)}
		cfg.Encoding = "console"
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.EncoderConfig.EncodeCaller = nil
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	cfg.EncoderConfig.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("%-20s", name))
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger.Sugar(), nil
}

// rotate renames the previous run's log with its modification time and
// deletes rotated logs past logRetention.
func rotate(dir string, now time.Time) error {
	latest := filepath.Join(dir, LogFilename)
	if info, err := os.Stat(latest); err == nil {
		stamp := info.ModTime().Format("20060102-150405")
		rotated := filepath.Join(dir, strings.TrimSuffix(LogFilename, ".log")+"-"+stamp+".log")
		if err := os.Rename(latest, rotated); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == LogFilename || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > logRetention {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
