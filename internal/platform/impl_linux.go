//go:build linux

package platform

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"
)

const inputPollInterval = 250 * time.Millisecond

type linuxImpl struct {
	procRoot string
	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newPlatform() (Platform, error) {
	return &linuxImpl{procRoot: "/proc"}, nil
}

// StartActivityMonitoring watches the X server's idle counter. It cannot
// tell keyboard from mouse input, so every event is reported as mouse
// movement.
func (p *linuxImpl) StartActivityMonitoring(callback func(ActivityEvent)) error {
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}
	if err := screensaver.Init(conn); err != nil {
		conn.Close()
		return fmt.Errorf("screensaver extension unavailable: %w", err)
	}
	root := xproto.Setup(conn).DefaultScreen(conn).Root

	p.mu.Lock()
	if p.stopChan != nil {
		p.mu.Unlock()
		conn.Close()
		return errors.New("activity monitoring already running")
	}
	stop := make(chan struct{})
	p.stopChan = stop
	p.mu.Unlock()

	p.wg.Add(1)
	go p.pollInput(conn, root, callback, stop)
	return nil
}

func (p *linuxImpl) pollInput(conn *xgb.Conn, root xproto.Window, callback func(ActivityEvent), stop chan struct{}) {
	defer p.wg.Done()
	defer conn.Close()

	ticker := time.NewTicker(inputPollInterval)
	defer ticker.Stop()

	lastPoll := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			reply, err := screensaver.QueryInfo(conn, xproto.Drawable(root)).Reply()
			since := now.Sub(lastPoll)
			lastPoll = now
			if err != nil {
				continue
			}
			if time.Duration(reply.MsSinceUserInput)*time.Millisecond < since {
				callback(ActivityEvent{Type: ActivityMouseMove, Timestamp: now})
			}
		}
	}
}

func (p *linuxImpl) StopActivityMonitoring() error {
	p.mu.Lock()
	stop := p.stopChan
	p.stopChan = nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		p.wg.Wait()
	}
	return nil
}

func (p *linuxImpl) ListProcesses() ([]Process, error) {
	entries, err := os.ReadDir(p.procRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.procRoot, err)
	}

	procs := make([]Process, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		dir := filepath.Join(p.procRoot, entry.Name())
		exe, err := os.Readlink(filepath.Join(dir, "exe"))
		if err != nil {
			// Kernel threads and other users' processes.
			continue
		}
		exe = strings.TrimSuffix(exe, " (deleted)")

		name := filepath.Base(exe)
		if comm, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
			name = strings.TrimSpace(string(comm))
		}
		procs = append(procs, Process{PID: pid, Name: name, Exe: exe})
	}
	return procs, nil
}

func (p *linuxImpl) CaptureScreen() ([]byte, error) {
	if strings.EqualFold(os.Getenv("XDG_SESSION_TYPE"), "wayland") {
		return nil, fmt.Errorf("%w: Wayland sessions do not allow root window capture, log in with an X11 session", ErrCaptureUnavailable)
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	defer conn.Close()

	screen := xproto.Setup(conn).DefaultScreen(conn)
	w, h := int(screen.WidthInPixels), int(screen.HeightInPixels)

	reply, err := xproto.GetImage(conn, xproto.ImageFormatZPixmap, xproto.Drawable(screen.Root),
		0, 0, screen.WidthInPixels, screen.HeightInPixels, 0xffffffff).Reply()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	if len(reply.Data) < w*h*4 {
		return nil, fmt.Errorf("unexpected image data: %d bytes for %dx%d", len(reply.Data), w, h)
	}

	// ZPixmap at depth 24/32 is BGRX.
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		src := reply.Data[i*4 : i*4+4]
		dst := img.Pix[i*4 : i*4+4]
		dst[0], dst[1], dst[2], dst[3] = src[2], src[1], src[0], 0xff
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *linuxImpl) GetSystemInfo() (*SystemInfo, error) {
	hostname, _ := os.Hostname()
	return &SystemInfo{
		OS:        "linux",
		OSVersion: osRelease(),
		Arch:      runtime.GOARCH,
		Hostname:  hostname,
	}, nil
}

func osRelease() string {
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return runtime.GOOS
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if v, ok := strings.CutPrefix(sc.Text(), "PRETTY_NAME="); ok {
			return strings.Trim(v, `"`)
		}
	}
	return runtime.GOOS
}
