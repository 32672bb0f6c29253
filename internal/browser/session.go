// File: internal/browser/session.go
// Description: Owns the headless Chrome process for the lifetime of one run.
// The session starts lazily on first use, restores persisted cookies into the
// browser, and hands out pages bound to its lifetime.

package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Session wraps one browser process and its first (blank) tab. The blank tab
// anchors cookie restore/capture and backs the in-page fetch transport until a
// real page exists.
type Session struct {
	cfg    *config.Config
	logger *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	started     bool
	startErr    error

	cookies   *cookieStore
	transport *fetchTransport
}

var _ schemas.BrowserSession = (*Session)(nil)

// NewSession creates a session wrapper. The browser process is not launched
// until Ensure is called.
func NewSession(cfg *config.Config, logger *zap.Logger) *Session {
	s := &Session{
		cfg:     cfg,
		logger:  logger.Named("browser"),
		cookies: newCookieStore(cfg.Browser.StateDir, logger),
	}
	s.transport = newFetchTransport(s, logger)
	return s
}

// Ensure launches the browser on first call. Subsequent calls return the
// result of the first launch attempt.
func (s *Session) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return s.startErr
	}
	s.started = true
	s.startErr = s.launch(ctx)
	return s.startErr
}

func (s *Session) launch(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Browser.Headless),
		chromedp.WindowSize(s.cfg.Browser.ViewportWidth, s.cfg.Browser.ViewportHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", s.cfg.Browser.Locale),
	)
	if ua := s.cfg.Browser.UserAgent; ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if proxyAddr := s.proxyAddress(); proxyAddr != "" {
		opts = append(opts, chromedp.ProxyServer(proxyAddr))
	}
	for _, arg := range s.cfg.Browser.Args {
		name, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(s.logger.Sugar().Debugf),
		chromedp.WithErrorf(s.logger.Sugar().Warnf),
	)

	// Connecting to the blank tab is the actual process launch.
	launchCtx, launchCancel := CombineContext(browserCtx, ctx)
	defer launchCancel()
	if err := chromedp.Run(launchCtx); err != nil {
		cancel()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.cancel = cancel

	if params, err := s.cookies.Load(); err != nil {
		s.logger.Warn("Cookie restore skipped", zap.Error(err))
	} else if len(params) > 0 {
		if err := chromedp.Run(launchCtx, network.SetCookies(params)); err != nil {
			s.logger.Warn("Cookie restore failed", zap.Error(err))
		} else {
			s.logger.Debug("Cookies restored", zap.Int("count", len(params)))
		}
	}

	s.logger.Info("Browser session started",
		zap.Bool("headless", s.cfg.Browser.Headless),
		zap.String("locale", s.cfg.Browser.Locale))
	return nil
}

// proxyAddress picks the browser-facing proxy: the local rotating gateway
// when the pool is enabled, otherwise the directly configured upstream.
func (s *Session) proxyAddress() string {
	if s.cfg.Proxy.Enabled && s.cfg.Proxy.GatewayAddr != "" {
		return "http://" + s.cfg.Proxy.GatewayAddr
	}
	return s.cfg.Browser.Proxy
}

// NewPage opens a fresh tab, applies locale, timezone, viewport and header
// emulation, and wires up the network activity tracker that backs
// WaitNetworkIdle.
func (s *Session) NewPage(ctx context.Context) (schemas.Page, error) {
	s.mu.Lock()
	browserCtx := s.browserCtx
	s.mu.Unlock()
	if browserCtx == nil {
		return nil, fmt.Errorf("browser session not started")
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)

	page := newPage(tabCtx, tabCancel, s.logger)

	initCtx, initCancel := CombineContext(tabCtx, ctx)
	defer initCancel()

	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.EmulateViewport(
			int64(s.cfg.Browser.ViewportWidth),
			int64(s.cfg.Browser.ViewportHeight),
		),
	}
	if lang := s.cfg.Browser.AcceptLanguage; lang != "" {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": lang,
		}))
	}
	if err := chromedp.Run(initCtx, tasks); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to initialize page: %w", err)
	}
	if tz := s.cfg.Browser.Timezone; tz != "" {
		if err := chromedp.Run(initCtx, emulation.SetTimezoneOverride(tz)); err != nil {
			s.logger.Debug("Timezone override failed", zap.Error(err))
		}
	}

	s.transport.bind(tabCtx)
	return page, nil
}

// Transport returns the in-page fetch transport. Requests issued through it
// share cookies and TLS state with the most recently opened page.
func (s *Session) Transport() schemas.Transport {
	return s.transport
}

// Close persists cookies and tears the browser process down.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browserCtx == nil {
		return nil
	}

	saveCtx, saveCancel := context.WithTimeout(Detach(s.browserCtx), shutdownGracePeriod)
	defer saveCancel()

	var cookies []*network.Cookie
	err := chromedp.Run(saveCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		s.logger.Debug("Cookie capture failed on close", zap.Error(err))
	} else if err := s.cookies.Save(cookies); err != nil {
		s.logger.Warn("Cookie persistence failed", zap.Error(err))
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.logger.Info("Browser session closed")
	return nil
}
