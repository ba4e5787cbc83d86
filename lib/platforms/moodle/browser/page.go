package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	navigationTimeout = time.Second * 30
	elementTimeout    = time.Second * 10

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

type Snapshot struct {
	URL  string
	HTML string
}

// Page is the handful of browser operations the session needs. Selectors are
// css selectors that match exactly one element.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Snapshot(ctx context.Context) (Snapshot, error)
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

type LaunchOptions struct {
	Headless bool
	// ExecPath overrides the chrome binary, chromedp looks it up otherwise.
	ExecPath string
	// AcceptLanguage is sent with every request when not empty, moodle picks
	// the interface language from it.
	AcceptLanguage string
}

// ChromePage is a Page backed by a chrome process it owns, Close terminates
// the process.
type ChromePage struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func Launch(ctx context.Context, opts LaunchOptions) (*ChromePage, error) {
	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	// the browser outlives the call that launched it and is torn down by Close
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(
		allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			slog.Debug("chromedp", "message", fmt.Sprintf(format, args...))
		}),
	)

	// the first Run allocates the browser and binds it to the context it is
	// given, so it must not be a context that gets cancelled afterwards
	var startActions []chromedp.Action
	if opts.AcceptLanguage != "" {
		startActions = append(
			startActions,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": opts.AcceptLanguage}),
		)
	}
	if err := chromedp.Run(browserCtx, startActions...); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &ChromePage{
		ctx:           browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

// run executes actions bounded by timeout and by the caller's ctx.
func (p *ChromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	return p.run(
		ctx, navigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *ChromePage) Snapshot(ctx context.Context) (Snapshot, error) {
	var out Snapshot
	err := p.run(
		ctx, elementTimeout,
		chromedp.Location(&out.URL),
		chromedp.OuterHTML("html", &out.HTML, chromedp.ByQuery),
	)
	return out, err
}

func (p *ChromePage) Fill(ctx context.Context, selector, value string) error {
	return p.run(
		ctx, elementTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (p *ChromePage) Click(ctx context.Context, selector string) error {
	return p.run(
		ctx, elementTimeout,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
}

func (p *ChromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, elementTimeout, chromedp.FullScreenshot(&buf, 90))
	return buf, err
}

// Close terminates the browser process, it is safe to call more than once.
func (p *ChromePage) Close() error {
	p.closeOnce.Do(func() {
		err := chromedp.Cancel(p.ctx)
		p.cancelBrowser()
		p.cancelAlloc()
		if err != nil && !errors.Is(err, context.Canceled) {
			p.closeErr = fmt.Errorf("close browser: %w", err)
		}
	})
	return p.closeErr
}
