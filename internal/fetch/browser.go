// Package fetch - browser.go owns the Chrome process and the per-call incognito pages.
package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpfetch "github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

// Resource types aborted while loading a conversation page. Documents and
// scripts are never blocked.
var ConversationBlocklist = []network.ResourceType{
	network.ResourceTypeImage,
	network.ResourceTypeFont,
	network.ResourceTypeMedia,
	network.ResourceTypeStylesheet,
}

// Resource types aborted while rendering a cited page. Stylesheets stay so the
// PDF keeps its layout.
var AttachmentBlocklist = []network.ResourceType{
	network.ResourceTypeImage,
	network.ResourceTypeFont,
	network.ResourceTypeMedia,
}

// BrowserOptions configures the headless browser.
type BrowserOptions struct {
	ExecPath              string
	Headless              bool
	SettleDelay           time.Duration
	AttachmentSettleDelay time.Duration
	Navigation            NavPolicy
	Download              *DownloadOptions
}

// DefaultBrowserOptions returns the standard browser configuration.
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		Headless:              true,
		SettleDelay:           5 * time.Second,
		AttachmentSettleDelay: 2 * time.Second,
		Navigation:            DefaultNavPolicy(),
		Download:              DefaultDownloadOptions(),
	}
}

// Browser launches Chrome sessions.
type Browser struct {
	opts   BrowserOptions
	logger *zap.Logger
}

// NewBrowser creates a Browser. Nothing is started until Launch.
func NewBrowser(opts BrowserOptions, logger *zap.Logger) *Browser {
	if len(opts.Navigation) == 0 {
		opts.Navigation = DefaultNavPolicy()
	}
	if opts.Download == nil {
		opts.Download = DefaultDownloadOptions()
	}
	return &Browser{opts: opts, logger: logging.OrNop(logger)}
}

// Launch starts one Chrome process. The returned Session must be closed; it
// is also torn down when ctx ends.
func (b *Browser) Launch(ctx context.Context) (*Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// start the browser so incognito contexts can be created from it
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, &Error{URL: "about:blank", Message: "failed to launch browser", Cause: err}
	}

	b.logger.Debug("browser launched")
	return &Session{
		browserCtx: browserCtx,
		release: func() {
			_ = chromedp.Cancel(browserCtx)
			browserCancel()
			allocCancel()
		},
		opts:   b.opts,
		logger: b.logger,
	}, nil
}

// Session is one running browser. Every call opens its own incognito page, so
// no cookies or storage leak between calls. Calls are meant to be sequential.
type Session struct {
	browserCtx context.Context
	release    func()
	closeOnce  sync.Once
	opts       BrowserOptions
	logger     *zap.Logger
}

// Close terminates the browser process. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.release()
		s.logger.Debug("browser closed")
	})
	return nil
}

// openPage creates an incognito page. The returned cancel disposes it and must
// be called on every path.
func (s *Session) openPage(ctx context.Context, blocked []network.ResourceType) (context.Context, context.CancelFunc, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx, chromedp.WithNewBrowserContext())
	stop := context.AfterFunc(ctx, tabCancel)
	cancel := func() {
		stop()
		tabCancel()
	}

	if err := chromedp.Run(tabCtx,
		page.SetLifecycleEventsEnabled(true),
		blockResources(blocked),
	); err != nil {
		cancel()
		return nil, nil, err
	}
	return tabCtx, cancel, nil
}

// Snapshot loads a page with the escalating navigation policy and captures its
// rendered markup and a full-page screenshot.
func (s *Session) Snapshot(ctx context.Context, urlStr string) (*types.PageSnapshot, error) {
	tabCtx, cancel, err := s.openPage(ctx, ConversationBlocklist)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to open page", Cause: err}
	}
	defer cancel()

	strategy, err := navigate(tabCtx, urlStr, s.opts.Navigation, chromeAttempt(urlStr), s.logger)
	if err != nil {
		return nil, err
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(s.opts.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, &Error{URL: urlStr, Strategy: strategy, Message: "failed to capture page markup", Cause: err}
	}

	var shot []byte
	if err := chromedp.Run(tabCtx, chromedp.FullScreenshot(&shot, 80)); err != nil {
		s.logger.Warn("screenshot failed", zap.String("url", urlStr), zap.Error(err))
		shot = nil
	}

	s.logger.Info("page captured",
		zap.String("url", urlStr),
		zap.String("strategy", string(strategy)),
		zap.Int("html_bytes", len(html)))

	return &types.PageSnapshot{
		URL:             urlStr,
		HTML:            html,
		ScreenshotBytes: shot,
		CapturedAt:      time.Now().UTC(),
		Navigation:      string(strategy),
	}, nil
}

// RenderURL renders a cited page to PDF. URLs that already point at a PDF are
// downloaded directly.
func (s *Session) RenderURL(ctx context.Context, urlStr string) ([]byte, error) {
	if LooksLikePDF(urlStr) {
		data, err := DownloadPDF(ctx, urlStr, s.opts.Download)
		if err == nil {
			return data, nil
		}
		s.logger.Debug("direct PDF download failed, rendering instead", zap.String("url", urlStr), zap.Error(err))
	}

	tabCtx, cancel, err := s.openPage(ctx, AttachmentBlocklist)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to open page", Cause: err}
	}
	defer cancel()

	strategy, err := navigate(tabCtx, urlStr, s.opts.Navigation, chromeAttempt(urlStr), s.logger)
	if err != nil {
		return nil, err
	}

	var pdf []byte
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(s.opts.AttachmentSettleDelay),
		printPDF(&pdf),
	); err != nil {
		return nil, &Error{URL: urlStr, Strategy: strategy, Message: "failed to print PDF", Cause: err}
	}
	return pdf, nil
}

// RenderHTML prints an inline HTML document to PDF.
func (s *Session) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	tabCtx, cancel, err := s.openPage(ctx, nil)
	if err != nil {
		return nil, &Error{URL: "about:blank", Message: "failed to open page", Cause: err}
	}
	defer cancel()

	var pdf []byte
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		setDocumentContent(html),
		chromedp.WaitReady("body", chromedp.ByQuery),
		printPDF(&pdf),
	); err != nil {
		return nil, &Error{URL: "about:blank", Message: "failed to print document", Cause: err}
	}
	return pdf, nil
}

// printPDF prints US Letter with half-inch margins and background graphics.
func printPDF(out *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		buf, _, err := page.PrintToPDF().
			WithPaperWidth(8.5).
			WithPaperHeight(11).
			WithMarginTop(0.5).
			WithMarginBottom(0.5).
			WithMarginLeft(0.5).
			WithMarginRight(0.5).
			WithPrintBackground(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if len(buf) == 0 {
			return fmt.Errorf("empty PDF output")
		}
		*out = buf
		return nil
	})
}

func setDocumentContent(html string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
	})
}

// blockResources fails every request of the given resource types through the
// Fetch domain. Only matching requests are paused, so nothing else is delayed.
func blockResources(blocked []network.ResourceType) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(blocked) == 0 {
			return nil
		}
		patterns := make([]*cdpfetch.RequestPattern, 0, len(blocked))
		for _, rt := range blocked {
			patterns = append(patterns, &cdpfetch.RequestPattern{
				URLPattern:   "*",
				ResourceType: rt,
				RequestStage: cdpfetch.RequestStageRequest,
			})
		}

		chromedp.ListenTarget(ctx, func(ev interface{}) {
			paused, ok := ev.(*cdpfetch.EventRequestPaused)
			if !ok {
				return
			}
			// listeners must not block the event loop
			go func() {
				c := chromedp.FromContext(ctx)
				if c == nil || c.Target == nil {
					return
				}
				_ = cdpfetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).
					Do(cdp.WithExecutor(ctx, c.Target))
			}()
		})
		return cdpfetch.Enable().WithPatterns(patterns).Do(ctx)
	})
}
