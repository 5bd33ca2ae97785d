// Package headless drives a Chrome tab with chromedp to load the target
// application and read its module loader registry and DOM.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// Defaults applied by Open.
const (
	DefaultNavigationTimeout = 45 * time.Second
	DefaultRegistryModule    = "Bootloader"
	DefaultAccessor          = "getURLToHashMap"
)

// Config controls the browser session.
type Config struct {
	AppURL            string
	UserAgent         string
	Headers           http.Header
	NavigationTimeout time.Duration
	// Headless runs Chrome without a window. A persistent UserDataDir with a
	// logged-in profile is usually paired with Headless=false on first use.
	Headless    bool
	UserDataDir string
	ExecPath    string
	// RegistryModule is loaded through window.require and must expose Accessor.
	RegistryModule string
	Accessor       string
	Logger         *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = DefaultNavigationTimeout
	}
	if c.RegistryModule == "" {
		c.RegistryModule = DefaultRegistryModule
	}
	if c.Accessor == "" {
		c.Accessor = DefaultAccessor
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Session is one loaded application tab. It implements harvest.RegistryProbe
// and harvest.DocumentSource.
type Session struct {
	cfg    Config
	tab    context.Context
	cancel context.CancelFunc
}

var (
	_ harvest.RegistryProbe  = (*Session)(nil)
	_ harvest.DocumentSource = (*Session)(nil)
)

// Open launches Chrome, navigates to cfg.AppURL, and waits for the body.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.AppURL == "" {
		return nil, errors.New("headless: app url is required")
	}
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)
	s := &Session{
		cfg: cfg,
		tab: tab,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}

	err := s.run(ctx, cfg.NavigationTimeout,
		s.networkSetupAction(),
		chromedp.Navigate(cfg.AppURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open %s: %w", cfg.AppURL, err)
	}
	cfg.Logger.Info("application loaded", zap.String("url", cfg.AppURL))
	return s, nil
}

// Close shuts down the tab and the browser process.
func (s *Session) Close() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

// Probe reports whether the loader registry is installed. Script errors are
// treated as "not yet".
func (s *Session) Probe(ctx context.Context) (harvest.LoaderRegistry, bool, error) {
	var ready bool
	if err := s.run(ctx, 0, chromedp.Evaluate(probeScript(s.cfg.RegistryModule, s.cfg.Accessor), &ready)); err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		s.cfg.Logger.Debug("registry probe failed", zap.Error(err))
		return nil, false, nil
	}
	if !ready {
		return nil, false, nil
	}
	return registry{s: s}, true, nil
}

// HTML returns the serialized document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return html, nil
}

type registry struct {
	s *Session
}

// Snapshot evaluates the accessor and returns the URL to id mapping.
func (r registry) Snapshot(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	script := snapshotScript(r.s.cfg.RegistryModule, r.s.cfg.Accessor)
	if err := r.s.run(ctx, 0, chromedp.Evaluate(script, &out)); err != nil {
		return nil, fmt.Errorf("snapshot registry: %w", err)
	}
	return out, nil
}

// run executes actions in the tab, bounded by the caller's ctx and timeout.
// Canceling a derived context aborts the actions without closing the tab.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(s.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(s.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func probeScript(module, accessor string) string {
	return fmt.Sprintf(`(() => {
  try {
    const req = window.require;
    if (typeof req !== "function") return false;
    const mod = req(%s);
    return !!mod && typeof mod[%s] === "function";
  } catch (e) {
    return false;
  }
})()`, jsString(module), jsString(accessor))
}

func snapshotScript(module, accessor string) string {
	return fmt.Sprintf(`(() => {
  const map = window.require(%s)[%s]();
  const out = {};
  if (map instanceof Map) {
    map.forEach((id, url) => { out[String(url)] = String(id); });
  } else if (map) {
    for (const url of Object.keys(map)) out[url] = String(map[url]);
  }
  return out;
})()`, jsString(module), jsString(accessor))
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
