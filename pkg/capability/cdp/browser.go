// Package cdp backs the capability interfaces with a real Chrome instance
// over the DevTools protocol.
package cdp

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Options configures the browser process.
type Options struct {
	Headless        bool
	IgnoreTLSErrors bool
	UserAgent       string
	// Args are extra chromium flags, "--name" or "--name=value".
	Args []string
}

// Browser owns the browser process. All tabs are derived from its allocator
// context, so closing the browser tears everything down.
type Browser struct {
	logger          *zap.Logger
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
}

// New launches the browser and verifies it responds before returning.
func New(ctx context.Context, logger *zap.Logger, opts Options) (*Browser, error) {
	b := &Browser{logger: logger.Named("browser")}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, buildAllocatorOptions(opts)...)
	b.allocatorCtx = allocCtx
	b.allocatorCancel = cancel

	// Probe with a throwaway tab so a broken install fails fast.
	testCtx, cancelTest := context.WithTimeout(allocCtx, 30*time.Second)
	testCtx, cancelTab := chromedp.NewContext(testCtx)
	defer cancelTab()
	defer cancelTest()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	b.logger.Info("browser launched", zap.Bool("headless", opts.Headless))
	return b, nil
}

func buildAllocatorOptions(o Options) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("ignore-certificate-errors", o.IgnoreTLSErrors),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", o.Headless),
	)
	if o.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(o.UserAgent))
	}

	for _, arg := range o.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// Containerized Linux needs the sandbox relaxed.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

// NewPage opens the first tab and returns the page surface bound to it.
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	t, err := newTab(b.allocatorCtx)
	if err != nil {
		return nil, fmt.Errorf("opening initial tab: %w", err)
	}
	return &Page{
		logger: b.logger.Named("page"),
		tabs:   []*tab{t},
	}, nil
}

// newTab creates a browsing context with network tracking enabled. parent is
// either the allocator context (first tab) or an existing tab's context.
func newTab(parent context.Context) (*tab, error) {
	tabCtx, cancel := chromedp.NewContext(parent)
	t := &tab{ctx: tabCtx, cancel: cancel}

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		cancel()
		return nil, err
	}
	t.tracker = trackNetwork(tabCtx)
	return t, nil
}

// Close terminates the browser process and waits for it to exit.
func (b *Browser) Close() {
	if b.allocatorCancel != nil {
		b.logger.Info("shutting down browser")
		b.allocatorCancel()
		<-b.allocatorCtx.Done()
	}
}
