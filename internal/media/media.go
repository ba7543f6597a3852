// Package media provides centralized media type detection and locator
// parsing for the player, distinguishing local files from network streams.
package media

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Type represents the kind of media file.
type Type int

const (
	Unknown Type = iota
	Video
	Audio
	Image
)

func (t Type) String() string {
	switch t {
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Image:
		return "image"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyLocator = errors.New("empty locator")
	ErrUnsupported  = errors.New("unsupported media")
	ErrNotFound     = errors.New("media not found")
)

// Video file extensions.
var videoExts = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".webm": true,
	".ts":   true,
	".m4v":  true,
	".hevc": true,
	".flv":  true,
	".wmv":  true,
}

// Audio file extensions.
var audioExts = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
}

// Image file extensions.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
	".webp": true,
}

// Network schemes the engines know how to open.
var streamSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"rtsp":  true,
	"rtmp":  true,
	"udp":   true,
}

// Detect returns the media type for a given file path based on extension.
func Detect(path string) Type {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case videoExts[ext]:
		return Video
	case audioExts[ext]:
		return Audio
	case imageExts[ext]:
		return Image
	}
	return Unknown
}

// IsSupported returns true if the file has a recognized media extension.
func IsSupported(path string) bool {
	return Detect(path) != Unknown
}

// DefaultImageDuration is how long (in seconds) an image stays on screen.
const DefaultImageDuration = 10

// Locator identifies a piece of media: either a local file or a stream URL.
type Locator struct {
	Raw  string
	Path string   // set for local files
	URL  *url.URL // set for streams
}

// IsRemote reports whether the locator points at a network stream.
func (l Locator) IsRemote() bool {
	return l.URL != nil
}

func (l Locator) String() string {
	return l.Raw
}

// ParseLocator classifies s as a stream URL or a local path. Local paths must
// exist and carry a supported extension; file:// URLs are treated as paths.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, ErrEmptyLocator
	}

	if u, err := url.Parse(s); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		scheme := strings.ToLower(u.Scheme)
		if scheme == "file" {
			return parsePath(s, u.Path)
		}
		if !streamSchemes[scheme] {
			return Locator{}, fmt.Errorf("%w: scheme %q", ErrUnsupported, u.Scheme)
		}
		if u.Host == "" {
			return Locator{}, fmt.Errorf("%w: %q has no host", ErrUnsupported, s)
		}
		return Locator{Raw: s, URL: u}, nil
	}

	return parsePath(s, s)
}

func parsePath(raw, path string) (Locator, error) {
	if !IsSupported(path) {
		return Locator{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Locator{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Locator{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Locator{}, fmt.Errorf("%w: %s is a directory", ErrUnsupported, path)
	}

	return Locator{Raw: raw, Path: path}, nil
}
