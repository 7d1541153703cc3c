package chrome

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	u "labelgen/internal/utils"
)

const mmPerInch = 25.4

// Paper is a page size in inches, as PrintToPDF expects.
type Paper struct {
	Width  float64
	Height float64
}

// PaperMM converts a millimetre page size.
func PaperMM(widthMM, heightMM float64) Paper {
	return Paper{Width: widthMM / mmPerInch, Height: heightMM / mmPerInch}
}

// Renderer prints HTML to a single PDF page with zero margins. A nil pool
// starts a fresh browser for every render.
type Renderer struct {
	cfg  u.Config
	pool *Pool
}

func NewRenderer(cfg u.Config, pool *Pool) *Renderer {
	return &Renderer{cfg: cfg, pool: pool}
}

// Pool returns the backing pool, or nil.
func (r *Renderer) Pool() *Pool { return r.pool }

func (r *Renderer) timeout() time.Duration {
	secs := r.cfg.PDF.TimeoutSecs
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// RenderHTML prints html at the given paper size. An interrupted session
// restarts the pool and is tried once more.
func (r *Renderer) RenderHTML(ctx context.Context, html string, paper Paper) ([]byte, error) {
	if r.pool == nil {
		return r.renderOneShot(ctx, html, paper)
	}

	runOnce := func() ([]byte, error) {
		acquireCtx, acquireCancel := context.WithTimeout(ctx, 5*time.Second)
		defer acquireCancel()

		tab, err := r.pool.Acquire(acquireCtx)
		if err != nil {
			return nil, err
		}

		tabCtx, cancel := context.WithTimeout(tab.Ctx, r.timeout())
		stop := context.AfterFunc(ctx, cancel)
		buf, renderErr := printInTab(tabCtx, html, paper)
		stop()
		cancel()

		r.pool.Release(tab, renderErr)
		return buf, renderErr
	}

	buf, err := runOnce()
	if err != nil && ctx.Err() == nil && IsSessionInterrupted(err) {
		u.Warn("Chrome session interrupted; restarting pool and retrying once", "error", err)
		if rerr := r.pool.Restart(); rerr != nil {
			return nil, err
		}
		return runOnce()
	}
	return buf, err
}

func (r *Renderer) renderOneShot(ctx context.Context, html string, paper Paper) ([]byte, error) {
	dir, err := os.MkdirTemp("", "chromedata-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	defer os.RemoveAll(dir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(r.cfg, dir)...)
	defer allocCancel()
	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	chromeCtx, cancelTimeout := context.WithTimeout(chromeCtx, r.timeout())
	defer cancelTimeout()

	return printInTab(chromeCtx, html, paper)
}

func printInTab(ctx context.Context, html string, paper Paper) ([]byte, error) {
	var pdf []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		waitForRenderReady(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(false).
				WithPaperWidth(paper.Width).
				WithPaperHeight(paper.Height).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				WithPageRanges("1").
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

// waitForRenderReady blocks until the document and its web fonts finished
// loading.
func waitForRenderReady() chromedp.Action {
	var ready bool
	return chromedp.Tasks{
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Poll(`document.readyState === "complete" && (!document.fonts || document.fonts.status === "loaded")`,
			&ready, chromedp.WithPollingInterval(25*time.Millisecond)),
	}
}
