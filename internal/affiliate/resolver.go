package affiliate

import (
	"context"
	stderrors "errors"
	"strings"
	"time"
	"unicode"

	"sjsage522/promobot/internal/metrics"
	"sjsage522/promobot/logger"
	"sjsage522/promobot/pkg/errors"
)

// Page is one browser tab
type Page interface {
	// Navigate loads url and waits for the DOM
	Navigate(ctx context.Context, url string) error
	// ClickSelector clicks the first visible element matching a CSS selector
	ClickSelector(ctx context.Context, selector string) (bool, error)
	// ClickText clicks the first visible button whose text is label
	ClickText(ctx context.Context, label string) (bool, error)
	// ScanLinks returns DOM values (inputs, copy attributes, body text)
	// containing prefix
	ScanLinks(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Browser is a browser with a persistable login session
type Browser interface {
	// SessionExists reports whether a saved login session is available
	SessionExists() bool
	OpenPage(ctx context.Context) (Page, error)
	// SaveSession persists the cookies of the current session
	SaveSession(ctx context.Context) error
	Close() error
}

// BrowserFactory launches a browser
type BrowserFactory func(ctx context.Context) (Browser, error)

// Confirmer blocks until the operator confirms a manual step
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) error
}

// State is a step of a resolution
type State int

// Resolution states, in order
const (
	StateCacheCheck State = iota
	StateSessionEnsure
	StateNavigate
	StateDismissPopup
	StateTriggerShare
	StateExtractLink
	StatePersist
)

var stateNames = [...]string{
	"cache_check", "session_ensure", "navigate", "dismiss_popup",
	"trigger_share", "extract_link", "persist",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ShareStrategy locates the share control, by CSS selector or by button text
type ShareStrategy struct {
	Selector string
	Text     string
}

// Options tune a Resolver
type Options struct {
	Enabled        bool
	LoginURL       string
	NavTimeout     time.Duration
	ExtractTimeout time.Duration
	PollInterval   time.Duration
	PopupLabels    []string
	Share          []ShareStrategy
}

// DefaultOptions returns the stock resolver options
func DefaultOptions() Options {
	return Options{
		Enabled:        true,
		LoginURL:       "https://www.mercadolibre.com.mx/",
		NavTimeout:     35 * time.Second,
		ExtractTimeout: 10 * time.Second,
		PollInterval:   500 * time.Millisecond,
		PopupLabels:    []string{"Entendido", "Ahora no", "No, gracias"},
		Share: []ShareStrategy{
			{Text: "Compartir"},
			{Selector: `[data-testid="share-button"]`},
			{Selector: `[aria-label="Compartir"]`},
			{Selector: `button[title="Compartir"]`},
			{Selector: `.ui-pdp-share__button`},
		},
	}
}

// Resolver maps product URLs to referral links. It is not safe for
// concurrent use.
type Resolver struct {
	mapping *Mapping
	factory BrowserFactory
	confirm Confirmer
	opts    Options
	browser Browser
	log     *logger.Logger
}

// NewResolver creates a resolver. The browser is launched on the first cache
// miss only.
func NewResolver(mapping *Mapping, factory BrowserFactory, confirm Confirmer, opts Options) *Resolver {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if mapping == nil {
		mapping = NewMapping(DefaultPrefix, nil)
	}
	return &Resolver{
		mapping: mapping,
		factory: factory,
		confirm: confirm,
		opts:    opts,
		log:     logger.ForResolver(),
	}
}

// Resolve returns the referral link of permalink. ok is false when no link
// could be produced; callers publish the permalink instead.
func (r *Resolver) Resolve(ctx context.Context, permalink string) (string, bool) {
	permalink = strings.TrimSpace(permalink)
	if permalink == "" {
		return "", false
	}

	if link, ok := r.cacheCheck(permalink); ok {
		metrics.Resolutions.WithLabelValues("cached").Inc()
		return link, true
	}
	if !r.opts.Enabled || r.factory == nil {
		metrics.Resolutions.WithLabelValues("disabled").Inc()
		return "", false
	}

	log := r.log.WithStr("url", permalink)
	link, state, err := r.generate(ctx, permalink)
	if err != nil {
		log.Warn().Err(err).Str("state", state.String()).Msg("Affiliate resolution failed")
		metrics.Resolutions.WithLabelValues("failed").Inc()
		return "", false
	}

	r.persist(ctx, permalink, link)
	metrics.Resolutions.WithLabelValues("generated").Inc()
	log.Info().Str("link", link).Msg("Affiliate link generated")
	return link, true
}

func (r *Resolver) cacheCheck(permalink string) (string, bool) {
	if r.mapping == nil {
		return "", false
	}
	return r.mapping.Get(permalink)
}

// generate runs the browser states and reports the state that failed
func (r *Resolver) generate(ctx context.Context, permalink string) (string, State, error) {
	b, err := r.sessionEnsure(ctx)
	if err != nil {
		return "", StateSessionEnsure, err
	}

	page, err := b.OpenPage(ctx)
	if err != nil {
		return "", StateNavigate, errors.NewResolution("affiliate", "open page", err)
	}
	defer page.Close()

	if err := r.navigate(ctx, page, permalink); err != nil {
		return "", StateNavigate, err
	}
	r.dismissPopup(ctx, page)

	if err := r.triggerShare(ctx, page); err != nil {
		return "", StateTriggerShare, err
	}

	link, err := r.extractLink(ctx, page)
	if err != nil {
		return "", StateExtractLink, err
	}

	if err := b.SaveSession(ctx); err != nil {
		r.log.Debug().Err(err).Msg("Session refresh failed")
	}
	return link, StatePersist, nil
}

// sessionEnsure launches the browser once and logs in when no session was
// saved yet
func (r *Resolver) sessionEnsure(ctx context.Context) (Browser, error) {
	if r.browser == nil {
		b, err := r.factory(ctx)
		if err != nil {
			return nil, errors.NewResolution("affiliate", "launch browser", err)
		}
		r.browser = b
	}
	if !r.browser.SessionExists() {
		if err := r.login(ctx, r.browser); err != nil {
			return nil, err
		}
	}
	return r.browser, nil
}

// Login runs the interactive login flow even when a session exists
func (r *Resolver) Login(ctx context.Context) error {
	if r.factory == nil {
		return errors.NewConfiguration("no browser configured", nil)
	}
	if r.browser == nil {
		b, err := r.factory(ctx)
		if err != nil {
			return errors.NewResolution("affiliate", "launch browser", err)
		}
		r.browser = b
	}
	return r.login(ctx, r.browser)
}

func (r *Resolver) login(ctx context.Context, b Browser) error {
	if r.confirm == nil {
		return errors.NewResolution("affiliate", "login required but no operator confirmation available", nil)
	}

	page, err := b.OpenPage(ctx)
	if err != nil {
		return errors.NewResolution("affiliate", "open login page", err)
	}
	defer page.Close()

	if err := r.navigate(ctx, page, r.opts.LoginURL); err != nil {
		return err
	}
	r.dismissPopup(ctx, page)

	r.log.Warn().Msg("No saved session, manual login required")
	prompt := "Inicia sesión en la ventana del navegador, abre cualquier publicación y verifica la barra de afiliados. Después presiona ENTER."
	if err := r.confirm.Confirm(ctx, prompt); err != nil {
		return errors.NewResolution("affiliate", "login not confirmed", err)
	}
	if err := b.SaveSession(ctx); err != nil {
		return errors.NewPersistence("affiliate", "save session", err)
	}
	r.log.Info().Msg("Browser session saved")
	return nil
}

// navigate tolerates a load timeout, since a partial DOM is often usable
func (r *Resolver) navigate(ctx context.Context, page Page, url string) error {
	navCtx := ctx
	if r.opts.NavTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, r.opts.NavTimeout)
		defer cancel()
	}

	err := page.Navigate(navCtx, url)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case stderrors.Is(err, context.DeadlineExceeded):
		r.log.Debug().Str("url", url).Msg("Navigation timed out, continuing with partial page")
		return nil
	default:
		return errors.NewResolution("affiliate", "navigate", err)
	}
}

// dismissPopup is best effort
func (r *Resolver) dismissPopup(ctx context.Context, page Page) bool {
	for _, label := range r.opts.PopupLabels {
		ok, err := page.ClickText(ctx, label)
		if err != nil {
			continue
		}
		if ok {
			r.log.Debug().Str("label", label).Msg("Popup dismissed")
			return true
		}
	}
	return false
}

func (r *Resolver) triggerShare(ctx context.Context, page Page) error {
	if r.clickShare(ctx, page) {
		return nil
	}
	r.dismissPopup(ctx, page)
	if r.clickShare(ctx, page) {
		return nil
	}
	return errors.NewResolution("affiliate", "share control not found", nil)
}

func (r *Resolver) clickShare(ctx context.Context, page Page) bool {
	for _, s := range r.opts.Share {
		var (
			ok  bool
			err error
		)
		if s.Selector != "" {
			ok, err = page.ClickSelector(ctx, s.Selector)
		} else {
			ok, err = page.ClickText(ctx, s.Text)
		}
		if err == nil && ok {
			return true
		}
	}
	return false
}

// extractLink polls the DOM until a referral link shows up or the extraction
// timeout passes
func (r *Resolver) extractLink(ctx context.Context, page Page) (string, error) {
	prefix := r.mapping.Prefix()
	ectx, cancel := context.WithTimeout(ctx, r.opts.ExtractTimeout)
	defer cancel()

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		candidates, err := page.ScanLinks(ectx, prefix)
		if err == nil {
			for _, c := range candidates {
				if link := trimLink(c, prefix); link != "" {
					return link, nil
				}
			}
		}

		select {
		case <-ectx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", errors.NewResolution("affiliate", "no referral link found", ectx.Err())
		case <-ticker.C:
		}
	}
}

// trimLink cuts the first referral link out of a DOM value
func trimLink(value, prefix string) string {
	start := strings.Index(value, prefix)
	if start < 0 {
		return ""
	}
	link := value[start:]
	if end := strings.IndexFunc(link, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '\'' || r == '<'
	}); end >= 0 {
		link = link[:end]
	}
	if !ValidLink(link, prefix) {
		return ""
	}
	return link
}

func (r *Resolver) persist(ctx context.Context, permalink, link string) {
	if err := r.mapping.Put(ctx, permalink, link); err != nil {
		logger.LogWarn("resolver", err, "Affiliate link kept in memory only")
	}
}

// Close shuts the browser down when it was launched
func (r *Resolver) Close() error {
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

// BatchResult is one row of ResolveBatch
type BatchResult struct {
	URL       string
	Link      string
	Affiliate bool
}

// ResolveBatch resolves many URLs with one browser, falling back to the
// input URL for failures. It stops early when ctx is cancelled.
func (r *Resolver) ResolveBatch(ctx context.Context, urls []string) []BatchResult {
	results := make([]BatchResult, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		link, ok := r.Resolve(ctx, u)
		if !ok {
			link = u
		}
		results = append(results, BatchResult{URL: u, Link: link, Affiliate: ok})
	}
	return results
}
