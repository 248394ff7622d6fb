// Package browser drives a Chrome instance through the DevTools protocol for
// the affiliate resolver.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"sjsage522/promobot/helpers"
	"sjsage522/promobot/internal/affiliate"
	"sjsage522/promobot/logger"
	"sjsage522/promobot/pkg/errors"
)

// Options configure Chrome
type Options struct {
	Headless    bool
	SessionPath string
	// ExecPath overrides the Chrome binary lookup
	ExecPath string
	// NoSandbox is needed when Chrome runs as root in a container
	NoSandbox bool
}

// Chrome is an affiliate.Browser backed by chromedp
type Chrome struct {
	opts        Options
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	log         *logger.Logger
}

// Factory returns an affiliate.BrowserFactory launching Chrome with opts
func Factory(opts Options) affiliate.BrowserFactory {
	return func(ctx context.Context) (affiliate.Browser, error) {
		return Launch(ctx, opts)
	}
}

// Launch starts Chrome and restores the saved session cookies, if any. The
// browser outlives ctx; call Close to stop it.
func Launch(ctx context.Context, opts Options) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(helpers.RandomUserAgent()),
		chromedp.WindowSize(1366, 900),
	)
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	bctx, cancel := chromedp.NewContext(allocCtx)

	c := &Chrome{
		opts:        opts,
		allocCancel: allocCancel,
		ctx:         bctx,
		cancel:      cancel,
		log:         logger.ForBrowser(),
	}

	if err := chromedp.Run(bctx); err != nil {
		c.Close()
		return nil, errors.NewResolution("browser", "start chrome", err)
	}

	if c.SessionExists() {
		if err := c.restoreSession(); err != nil {
			c.log.Warn().Err(err).Msg("Could not restore session, continuing without it")
		} else {
			c.log.Info().Str("path", opts.SessionPath).Msg("Using saved session")
		}
	}
	return c, nil
}

// SessionExists reports whether a session file was saved
func (c *Chrome) SessionExists() bool {
	if c.opts.SessionPath == "" {
		return false
	}
	_, err := os.Stat(c.opts.SessionPath)
	return err == nil
}

// OpenPage opens a new tab. The tab's event loop lives as long as the
// context of its first Run, so the attach runs on the tab context itself.
func (c *Chrome) OpenPage(ctx context.Context) (affiliate.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewResolution("browser", "open tab", err)
	}
	tctx, cancel := chromedp.NewContext(c.ctx)
	if err := chromedp.Run(tctx); err != nil {
		cancel()
		return nil, errors.NewResolution("browser", "open tab", err)
	}
	return &Page{ctx: tctx, cancel: cancel}, nil
}

type savedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
	Session  bool    `json:"session"`
	SameSite string  `json:"same_site,omitempty"`
}

// SaveSession writes every browser cookie to the session file
func (c *Chrome) SaveSession(ctx context.Context) error {
	if c.opts.SessionPath == "" {
		return errors.NewConfiguration("no session path configured", nil)
	}

	var cookies []*network.Cookie
	err := chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return errors.NewResolution("browser", "read cookies", err)
	}

	saved := make([]savedCookie, 0, len(cookies))
	for _, ck := range cookies {
		saved = append(saved, savedCookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
			Session:  ck.Session,
			SameSite: ck.SameSite.String(),
		})
	}
	if err := writeCookies(c.opts.SessionPath, saved); err != nil {
		return errors.NewPersistence("browser", "write session", err)
	}
	c.log.Debug().Int("cookies", len(saved)).Msg("Session saved")
	return nil
}

func (c *Chrome) restoreSession() error {
	saved, err := readCookies(c.opts.SessionPath)
	if err != nil {
		return err
	}

	params := make([]*network.CookieParam, 0, len(saved))
	for _, s := range saved {
		p := &network.CookieParam{
			Name:     s.Name,
			Value:    s.Value,
			Domain:   s.Domain,
			Path:     s.Path,
			HTTPOnly: s.HTTPOnly,
			Secure:   s.Secure,
		}
		if s.SameSite != "" {
			p.SameSite = network.CookieSameSite(s.SameSite)
		}
		if !s.Session && s.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(s.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}

	return chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
}

func writeCookies(path string, cookies []savedCookie) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readCookies(path string) ([]savedCookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cookies []savedCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	return cookies, nil
}

// Close stops Chrome
func (c *Chrome) Close() error {
	c.cancel()
	c.allocCancel()
	return nil
}
