//go:build windows

package platform

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsImpl struct {
	mouseHook        windows.Handle
	keyboardHook     windows.Handle
	activityCallback func(ActivityEvent)
	hookThread       uint32
	hookDone         chan struct{}
	stopped          bool
	mu               sync.Mutex
}

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	gdi32  = windows.NewLazySystemDLL("gdi32.dll")

	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetDC               = user32.NewProc("GetDC")
	procReleaseDC           = user32.NewProc("ReleaseDC")
	procGetSystemMetrics    = user32.NewProc("GetSystemMetrics")

	procCreateCompatibleDC     = gdi32.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap = gdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject           = gdi32.NewProc("SelectObject")
	procBitBlt                 = gdi32.NewProc("BitBlt")
	procGetDIBits              = gdi32.NewProc("GetDIBits")
	procDeleteObject           = gdi32.NewProc("DeleteObject")
	procDeleteDC               = gdi32.NewProc("DeleteDC")
)

const (
	WH_MOUSE_LL    = 14
	WH_KEYBOARD_LL = 13
	WM_QUIT        = 0x0012
	WM_MOUSEMOVE   = 0x0200
	WM_LBUTTONDOWN = 0x0201
	WM_RBUTTONDOWN = 0x0204
	WM_MOUSEWHEEL  = 0x020A
	WM_KEYDOWN     = 0x0100
	WM_SYSKEYDOWN  = 0x0104

	smCXScreen   = 0
	smCYScreen   = 1
	srcCopy      = 0x00CC0020
	biRGB        = 0
	dibRGBColors = 0
	maxPath      = 1024
)

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	ptX     int32
	ptY     int32
}

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

func newPlatform() (Platform, error) {
	return &windowsImpl{}, nil
}

// StartActivityMonitoring installs low-level hooks on a dedicated,
// locked OS thread that pumps messages until StopActivityMonitoring.
func (p *windowsImpl) StartActivityMonitoring(callback func(ActivityEvent)) error {
	p.mu.Lock()
	if p.hookDone != nil {
		p.mu.Unlock()
		return errors.New("activity monitoring already running")
	}
	p.activityCallback = callback
	p.stopped = false
	p.hookDone = make(chan struct{})
	p.mu.Unlock()

	errCh := make(chan error, 1)
	go p.hookLoop(errCh)
	if err := <-errCh; err != nil {
		p.mu.Lock()
		p.hookDone = nil
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *windowsImpl) hookLoop(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p.mu.Lock()
	done := p.hookDone
	p.mu.Unlock()
	defer close(done)

	mouseHook, _, _ := procSetWindowsHookEx.Call(WH_MOUSE_LL, syscall.NewCallback(p.mouseHookProc), 0, 0)
	if mouseHook == 0 {
		errCh <- fmt.Errorf("failed to set mouse hook")
		return
	}
	keyboardHook, _, _ := procSetWindowsHookEx.Call(WH_KEYBOARD_LL, syscall.NewCallback(p.keyboardHookProc), 0, 0)
	if keyboardHook == 0 {
		procUnhookWindowsHookEx.Call(mouseHook)
		errCh <- fmt.Errorf("failed to set keyboard hook")
		return
	}

	p.mu.Lock()
	p.mouseHook = windows.Handle(mouseHook)
	p.keyboardHook = windows.Handle(keyboardHook)
	p.hookThread = windows.GetCurrentThreadId()
	p.mu.Unlock()
	errCh <- nil

	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			break
		}
	}

	p.mu.Lock()
	if p.mouseHook != 0 {
		procUnhookWindowsHookEx.Call(uintptr(p.mouseHook))
		p.mouseHook = 0
	}
	if p.keyboardHook != 0 {
		procUnhookWindowsHookEx.Call(uintptr(p.keyboardHook))
		p.keyboardHook = 0
	}
	p.mu.Unlock()
}

func (p *windowsImpl) StopActivityMonitoring() error {
	p.mu.Lock()
	p.stopped = true
	p.activityCallback = nil
	done := p.hookDone
	thread := p.hookThread
	p.hookDone = nil
	p.hookThread = 0
	p.mu.Unlock()

	if done == nil {
		return nil
	}
	procPostThreadMessageW.Call(uintptr(thread), WM_QUIT, 0, 0)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		return errors.New("timed out removing input hooks")
	}
	return nil
}

func (p *windowsImpl) mouseHookProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	p.mu.Lock()
	stopped := p.stopped
	callback := p.activityCallback
	p.mu.Unlock()

	if nCode >= 0 && !stopped && callback != nil {
		switch wParam {
		case WM_MOUSEMOVE, WM_MOUSEWHEEL:
			callback(ActivityEvent{Type: ActivityMouseMove, Timestamp: time.Now()})
		case WM_LBUTTONDOWN, WM_RBUTTONDOWN:
			callback(ActivityEvent{Type: ActivityMouseClick, Timestamp: time.Now()})
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func (p *windowsImpl) keyboardHookProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	p.mu.Lock()
	stopped := p.stopped
	callback := p.activityCallback
	p.mu.Unlock()

	if nCode >= 0 && (wParam == WM_KEYDOWN || wParam == WM_SYSKEYDOWN) && !stopped && callback != nil {
		callback(ActivityEvent{Type: ActivityKeyPress, Timestamp: time.Now()})
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func (p *windowsImpl) ListProcesses() ([]Process, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot processes: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var procs []Process
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		pid := entry.ProcessID
		procs = append(procs, Process{
			PID:  int(pid),
			Name: windows.UTF16ToString(entry.ExeFile[:]),
			Exe:  processPath(pid),
		})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("failed to walk processes: %w", err)
	}
	return procs, nil
}

func processPath(pid uint32) string {
	if pid == 0 {
		return ""
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, maxPath)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return ""
	}
	return windows.UTF16ToString(buf[:size])
}

// CaptureScreen copies the primary screen through GDI.
func (p *windowsImpl) CaptureScreen() ([]byte, error) {
	w, _, _ := procGetSystemMetrics.Call(smCXScreen)
	h, _, _ := procGetSystemMetrics.Call(smCYScreen)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: no primary screen", ErrCaptureUnavailable)
	}

	screenDC, _, _ := procGetDC.Call(0)
	if screenDC == 0 {
		return nil, fmt.Errorf("%w: GetDC failed", ErrCaptureUnavailable)
	}
	defer procReleaseDC.Call(0, screenDC)

	memDC, _, _ := procCreateCompatibleDC.Call(screenDC)
	if memDC == 0 {
		return nil, errors.New("CreateCompatibleDC failed")
	}
	defer procDeleteDC.Call(memDC)

	bitmap, _, _ := procCreateCompatibleBitmap.Call(screenDC, w, h)
	if bitmap == 0 {
		return nil, errors.New("CreateCompatibleBitmap failed")
	}
	defer procDeleteObject.Call(bitmap)

	old, _, _ := procSelectObject.Call(memDC, bitmap)
	defer procSelectObject.Call(memDC, old)

	if ok, _, _ := procBitBlt.Call(memDC, 0, 0, w, h, screenDC, 0, 0, srcCopy); ok == 0 {
		// Secure desktop or a locked session.
		return nil, fmt.Errorf("%w: BitBlt failed", ErrCaptureUnavailable)
	}

	width, height := int(w), int(h)
	header := bitmapInfoHeader{
		Width:       int32(width),
		Height:      -int32(height), // top-down rows
		Planes:      1,
		BitCount:    32,
		Compression: biRGB,
	}
	header.Size = uint32(unsafe.Sizeof(header))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	lines, _, _ := procGetDIBits.Call(memDC, bitmap, 0, uintptr(height),
		uintptr(unsafe.Pointer(&img.Pix[0])), uintptr(unsafe.Pointer(&header)), dibRGBColors)
	if lines == 0 {
		return nil, errors.New("GetDIBits failed")
	}

	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+2], img.Pix[i+3] = img.Pix[i+2], img.Pix[i], 0xff
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *windowsImpl) GetSystemInfo() (*SystemInfo, error) {
	hostname, _ := os.Hostname()
	major, minor, build := windows.RtlGetNtVersionNumbers()
	return &SystemInfo{
		OS:        "windows",
		OSVersion: fmt.Sprintf("%d.%d.%d", major, minor, build),
		Arch:      runtime.GOARCH,
		Hostname:  hostname,
	}, nil
}
