// VLC subprocess backend.
//
// Linux:   Uses cvlc (VLC without Qt GUI). When the target carries an X11
//          window id VLC draws into it; otherwise xdotool positions the VLC
//          window over the target geometry with override-redirect set.
//
// Windows: Uses vlc.exe with Qt kiosk flags, drawing into the target HWND
//          when one is supplied.
package engine

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"player-session/internal/media"
	"player-session/internal/surface"
)

// startProbe is how long Start waits for VLC to die on bad input before
// reporting success.
const startProbe = 300 * time.Millisecond

type vlcBackend struct {
	logger  *zap.SugaredLogger
	vlcPath string
	opts    Options
}

func openVLC(opts Options, logger *zap.SugaredLogger) (Backend, error) {
	path := opts.VLCPath
	if path == "" {
		var err error
		if path, err = findVLC(); err != nil {
			return nil, err
		}
	}

	logger.Infow("Using VLC subprocess backend", "path", path,
		"screen", fmt.Sprintf("%dx%d", opts.ScreenWidth, opts.ScreenHeight))
	return &vlcBackend{logger: logger, vlcPath: path, opts: opts}, nil
}

func (b *vlcBackend) Name() string { return BackendVLC }
func (b *vlcBackend) Close() error { return nil }

func (b *vlcBackend) NewHandle(target surface.Target) (Handle, error) {
	return &vlcHandle{
		logger:  b.logger.With("target", target.ID()),
		vlcPath: b.vlcPath,
		target:  target,
		opts:    b.opts,
	}, nil
}

var _ Ender = (*vlcHandle)(nil)

type vlcHandle struct {
	logger  *zap.SugaredLogger
	vlcPath string
	target  surface.Target
	opts    Options

	mu       sync.Mutex
	cmd      *exec.Cmd
	exited   chan struct{}
	exitErr  error
	released bool
}

func (h *vlcHandle) Start(locator string) error {
	loc, err := media.ParseLocator(locator)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return ErrAlreadyReleased
	}
	cmd := exec.Command(h.vlcPath, h.buildArgs(loc)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" {
		cmd.Env = append(os.Environ(), "DISPLAY=:0")
	}
	h.cmd = cmd
	h.exited = make(chan struct{})
	exited := h.exited
	h.mu.Unlock()

	if err := cmd.Start(); err != nil {
		h.mu.Lock()
		h.cmd = nil
		h.mu.Unlock()
		return fmt.Errorf("vlc start failed: %w", err)
	}

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()
		close(exited)
	}()

	select {
	case <-exited:
		h.mu.Lock()
		err := h.exitErr
		h.mu.Unlock()
		return fmt.Errorf("vlc exited during start: %v", err)
	case <-time.After(startProbe):
	}

	if runtime.GOOS == "linux" && h.target.Handle() == 0 && cmd.Process != nil {
		go h.positionWindow(cmd.Process.Pid, exited)
	}

	h.logger.Infow("VLC playing", "locator", loc.Raw, "type", media.Detect(loc.Raw), "pid", cmd.Process.Pid)
	return nil
}

// Ended is closed when the VLC process exits. With --play-and-exit that
// happens at the end of the media.
func (h *vlcHandle) Ended() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

func (h *vlcHandle) RequestStop() error {
	h.mu.Lock()
	cmd, exited := h.cmd, h.exited
	h.mu.Unlock()

	if cmd == nil {
		return ErrNotStarted
	}
	if cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill vlc: %w", err)
		}
	}
	<-exited
	return nil
}

func (h *vlcHandle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return ErrAlreadyReleased
	}
	h.released = true
	cmd, exited := h.cmd, h.exited
	h.cmd = nil
	h.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
		<-exited
	}
	h.logger.Debug("VLC handle released")
	return nil
}

func (h *vlcHandle) buildArgs(loc media.Locator) []string {
	args := []string{
		"--no-video-title-show", // No filename overlay
		"--no-osd",              // No on-screen display
		"--no-spu",              // No subtitles
		"--play-and-exit",

		"--avcodec-hw=any",           // HW decode
		"--avcodec-threads=0",        // Auto-detect cores
		"--avcodec-skiploopfilter=0", // Keep deblocking

		"--file-caching=5000",
		"--network-caching=3000",
		"--clock-jitter=0",

		"--image-duration=" + strconv.Itoa(media.DefaultImageDuration),

		"--quiet",
	}

	if runtime.GOOS == "windows" {
		args = append(args,
			"--no-video-deco",
			"--mouse-hide-timeout=0",
			"--no-qt-fs-controller",
			"--no-qt-name-in-title",
			"--no-qt-privacy-ask",
			"--vout=direct3d11",
		)
	}

	geom := h.target.Geometry()
	switch {
	case h.target.Handle() != 0 && runtime.GOOS == "windows":
		args = append(args, "--drawable-hwnd="+strconv.FormatUint(uint64(h.target.Handle()), 10))
	case h.target.Handle() != 0:
		args = append(args, "--drawable-xid="+strconv.FormatUint(uint64(h.target.Handle()), 10))
	case geom.IsFullscreen():
		args = append(args, "--fullscreen")
	default:
		x, y, w, hh := geom.Pixels(h.opts.ScreenWidth, h.opts.ScreenHeight)
		args = append(args,
			"--width="+strconv.Itoa(w),
			"--height="+strconv.Itoa(hh),
			"--video-x="+strconv.Itoa(x),
			"--video-y="+strconv.Itoa(y),
		)
	}

	return append(args, loc.Raw)
}

// positionWindow uses xdotool to place the VLC video window over the target.
// override-redirect removes the window from WM control entirely.
func (h *vlcHandle) positionWindow(pid int, exited <-chan struct{}) {
	x, y, w, hh := h.target.Geometry().Pixels(h.opts.ScreenWidth, h.opts.ScreenHeight)
	pidStr := strconv.Itoa(pid)

	for attempt := 0; attempt < 50; attempt++ {
		select {
		case <-exited:
			return
		case <-time.After(200 * time.Millisecond):
		}

		out, err := exec.Command("xdotool", "search", "--pid", pidStr).Output()
		if err != nil || strings.TrimSpace(string(out)) == "" {
			continue
		}

		lines := strings.Split(strings.TrimSpace(string(out)), "\n")
		windowID := lines[len(lines)-1]

		exec.Command("xdotool", "set_window", "--overrideredirect", "1", windowID).Run()
		exec.Command("xdotool", "windowsize", windowID, strconv.Itoa(w), strconv.Itoa(hh)).Run()
		exec.Command("xdotool", "windowmove", windowID, strconv.Itoa(x), strconv.Itoa(y)).Run()
		exec.Command("xdotool", "windowraise", windowID).Run()

		h.logger.Debugw("Positioned VLC window", "window", windowID, "x", x, "y", y, "w", w, "h", hh)
		return
	}
	h.logger.Warnw("Could not find VLC window", "pid", pid)
}

func findVLC() (string, error) {
	// On Linux, prefer cvlc (VLC without Qt GUI, video only).
	if runtime.GOOS == "linux" {
		if path, err := exec.LookPath("cvlc"); err == nil {
			return path, nil
		}
	}

	if path, err := exec.LookPath("vlc"); err == nil {
		return path, nil
	}

	var candidates []string
	switch runtime.GOOS {
	case "windows":
		candidates = []string{
			`C:\Program Files\VideoLAN\VLC\vlc.exe`,
			`C:\Program Files (x86)\VideoLAN\VLC\vlc.exe`,
		}
	case "darwin":
		candidates = []string{
			"/Applications/VLC.app/Contents/MacOS/VLC",
		}
	default:
		candidates = []string{
			"/usr/bin/cvlc",
			"/usr/bin/vlc",
			"/snap/bin/vlc",
		}
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	return "", fmt.Errorf("%w: VLC not found, install with: sudo apt install vlc", ErrBackendUnavailable)
}
