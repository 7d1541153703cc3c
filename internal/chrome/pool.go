// Package chrome runs a small pool of headless Chrome tabs used to turn
// HTML label templates into PDF pages.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	u "labelgen/internal/utils"
)

var (
	// ErrPoolDisabled is returned by NewPool when pdf.chrome_pool_size is 0.
	ErrPoolDisabled = errors.New("chrome pool disabled")
	// ErrPoolClosed is returned by Acquire and Restart after Close.
	ErrPoolClosed = errors.New("chrome pool closed")
)

// Tab is a browser tab leased from the pool.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// Pool leases tabs of one shared browser process. The browser is started
// on the first Acquire so every tab is a target in the same process.
type Pool struct {
	cfg u.Config
	// start launches the browser behind browserCtx; nil means chromedp.Run.
	start func(ctx context.Context) error

	mu            sync.Mutex
	sem           chan struct{}
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	started       bool
	profileDir    string
	closed        bool
	restarts      int
	lastRestart   time.Time
}

// Stats is a snapshot for the /chrome/stats endpoint.
type Stats struct {
	Enabled      bool      `json:"enabled"`
	Capacity     int       `json:"capacity"`
	Idle         int       `json:"idle"`
	InUse        int       `json:"in_use"`
	PoolSizeConf int       `json:"pool_size_conf"`
	ProfileDir   string    `json:"profile_dir"`
	TimeoutSecs  int       `json:"timeout_secs"`
	Restarts     int       `json:"restarts"`
	LastRestart  time.Time `json:"last_restart,omitempty"`
}

// NewPool prepares a pool of cfg.PDF.ChromePoolSize tabs.
func NewPool(cfg u.Config) (*Pool, error) {
	size := cfg.PDF.ChromePoolSize
	if size <= 0 {
		return nil, ErrPoolDisabled
	}

	dir, err := createProfileDir(cfg)
	if err != nil {
		return nil, err
	}

	p := &Pool{cfg: cfg, sem: make(chan struct{}, size), profileDir: dir}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	p.allocCancel, p.browserCtx, p.browserCancel = newBrowser(cfg, dir)

	u.Info("Chrome pool ready", "size", size, "profile_dir", dir)
	return p, nil
}

func createProfileDir(cfg u.Config) (string, error) {
	base := cfg.PDF.UserDataDir
	if base != "" {
		if err := os.MkdirAll(base, 0o700); err != nil {
			return "", fmt.Errorf("create chrome profile base %s: %w", base, err)
		}
	}
	dir, err := os.MkdirTemp(base, "labelgen-chrome-*")
	if err != nil {
		return "", fmt.Errorf("create chrome profile dir: %w", err)
	}
	return dir, nil
}

func allocatorOptions(cfg u.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		// Software rendering only; containers rarely have a usable GPU.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if path := execPath(cfg); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	if cfg.PDF.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

// execPath falls back to the CHROME_BIN container convention when
// pdf.chrome_path is unset.
func execPath(cfg u.Config) string {
	if cfg.PDF.ChromePath != "" {
		return cfg.PDF.ChromePath
	}
	return os.Getenv("CHROME_BIN")
}

func newBrowser(cfg u.Config, profileDir string) (context.CancelFunc, context.Context, context.CancelFunc) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg, profileDir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	return allocCancel, browserCtx, browserCancel
}

// Acquire waits for a free tab or for ctx to end.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.sem:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.putToken()
		return nil, ErrPoolClosed
	}
	if err := p.startLocked(); err != nil {
		p.mu.Unlock()
		p.putToken()
		return nil, err
	}
	parent := p.browserCtx
	p.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(parent)
	return &Tab{Ctx: tabCtx, cancel: cancel}, nil
}

// startLocked launches the browser once. A failed launch leaves a fresh,
// unstarted browser context behind for the next Acquire.
func (p *Pool) startLocked() error {
	if p.started {
		return nil
	}
	start := p.start
	if start == nil {
		start = func(ctx context.Context) error { return chromedp.Run(ctx) }
	}
	if err := start(p.browserCtx); err != nil {
		if p.browserCancel != nil {
			p.browserCancel()
		}
		if p.allocCancel != nil {
			p.allocCancel()
		}
		p.allocCancel, p.browserCtx, p.browserCancel = newBrowser(p.cfg, p.profileDir)
		return fmt.Errorf("start chrome: %w", err)
	}
	p.started = true
	u.Info("Chrome browser started", "profile_dir", p.profileDir)
	return nil
}

// Release closes the tab and returns its slot. renderErr is only logged.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab != nil && tab.cancel != nil {
		tab.cancel()
	}
	if renderErr != nil {
		u.Debug("Chrome tab released after error", "error", renderErr)
	}
	p.putToken()
}

func (p *Pool) putToken() {
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

// Restart replaces the browser process and its profile directory. Tabs
// leased from the old browser fail with an interrupted session.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.shutdownLocked()

	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return err
	}
	p.profileDir = dir
	p.allocCancel, p.browserCtx, p.browserCancel = newBrowser(p.cfg, dir)
	p.started = false
	p.restarts++
	p.lastRestart = time.Now()

	u.Warn("Chrome pool restarted", "restarts", p.restarts, "profile_dir", dir)
	return nil
}

func (p *Pool) shutdownLocked() {
	if p.browserCancel != nil {
		p.browserCancel()
		p.browserCancel = nil
	}
	if p.allocCancel != nil {
		p.allocCancel()
		p.allocCancel = nil
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
		p.profileDir = ""
	}
}

// Close stops the browser. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.shutdownLocked()
}

// Stats reports pool occupancy.
func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		Enabled:      !p.closed,
		Capacity:     cap(p.sem),
		Idle:         len(p.sem),
		PoolSizeConf: p.cfg.PDF.ChromePoolSize,
		ProfileDir:   p.profileDir,
		TimeoutSecs:  timeoutSecs,
		Restarts:     p.restarts,
		LastRestart:  p.lastRestart,
	}
	st.InUse = st.Capacity - st.Idle
	if p.closed {
		st.Idle, st.InUse = 0, 0
	}
	return st
}

// IsSessionInterrupted reports whether err means the tab or browser went
// away, as opposed to a problem with the page itself.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "session closed", "websocket", "browser closed", "invalid context", "context canceled"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
