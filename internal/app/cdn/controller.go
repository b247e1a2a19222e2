package cdn

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/osa030/mpcore/internal/domain/media"
)

// Defaults for the token watchdog.
const (
	DefaultWarnAhead = 30 * time.Second
	DefaultGrace     = 10 * time.Second
)

// Config holds controller settings.
type Config struct {
	AutoSwitch     bool
	SwitchInterval time.Duration // minimum spacing of automatic switches, zero for none
	WarnAhead      time.Duration
	Grace          time.Duration
}

// Hooks are called from timer goroutines.
type Hooks struct {
	OnWillExpire func()
	OnExpired    func()
}

// Controller tracks the lines of the open CDN source.
//
// A failure episode starts with the first line failure after the source last played
// cleanly. Failover walks the lines round-robin from the failing one and gives up after
// one full cycle, i.e. after as many attempts as there are lines. Health reports only end
// an episode once the line picked by the last failover step is carrying media.
type Controller struct {
	cfg      Config
	resolver Resolver
	hooks    Hooks
	limiter  *rate.Limiter

	mu       sync.Mutex
	lines    []string
	index    int
	auto     bool
	attempts int
	pending  bool // a failover step has not reached its new line yet
	token    *oauth2.Token
	gen      uint64
	warn     *time.Timer
	expire   *time.Timer
}

// NewController creates a controller with no source loaded.
func NewController(cfg Config, resolver Resolver, hooks Hooks) *Controller {
	if resolver == nil {
		resolver = QueryResolver{}
	}
	if cfg.WarnAhead <= 0 {
		cfg.WarnAhead = DefaultWarnAhead
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	limit := rate.Inf
	if cfg.SwitchInterval > 0 {
		limit = rate.Every(cfg.SwitchInterval)
	}
	return &Controller{
		cfg:      cfg,
		resolver: resolver,
		hooks:    hooks,
		limiter:  rate.NewLimiter(limit, 1),
		index:    -1,
		auto:     cfg.AutoSwitch,
	}
}

// Load resolves src and selects its first line. It returns the URL to open.
func (c *Controller) Load(src string) (string, error) {
	resolved, err := c.resolver.Resolve(src)
	if err != nil {
		return "", err
	}
	if len(resolved.Lines) == 0 {
		return "", errors.Wrapf(media.ErrInvalidMediaSource, "cdn source has no lines: %s", src)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimersLocked()
	c.lines = resolved.Lines
	c.index = 0
	c.attempts = 0
	c.pending = false
	c.token = nil
	if resolved.Token != "" {
		c.setTokenLocked(resolved.Token, resolved.Expiry)
	}
	zlog.Info().Msgf("cdn source loaded: lines=%d auto_switch=%t", len(c.lines), c.auto)
	return c.lineURLLocked(0), nil
}

// Reset unloads the source and stops the token watchdog.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimersLocked()
	c.lines = nil
	c.index = -1
	c.attempts = 0
	c.pending = false
	c.token = nil
}

// Loaded reports whether a CDN source is loaded.
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index >= 0
}

// LineCount returns the number of lines.
func (c *Controller) LineCount() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 {
		return 0, errors.Wrap(media.ErrInvalidState, "no cdn source open")
	}
	return len(c.lines), nil
}

// CurrentIndex returns the selected line.
func (c *Controller) CurrentIndex() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 {
		return 0, errors.Wrap(media.ErrInvalidState, "no cdn source open")
	}
	return c.index, nil
}

// Select makes line i current and returns its URL. A manual switch ends any failure episode.
func (c *Controller) Select(i int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 {
		return "", errors.Wrap(media.ErrInvalidState, "no cdn source open")
	}
	if i < 0 || i >= len(c.lines) {
		return "", errors.Wrapf(media.ErrIndexOutOfRange, "line %d of %d", i, len(c.lines))
	}
	c.index = i
	c.attempts = 0
	c.pending = false
	return c.lineURLLocked(i), nil
}

// SetAutoSwitch toggles automatic failover.
func (c *Controller) SetAutoSwitch(enable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auto = enable
}

// AutoSwitch reports whether automatic failover is on.
func (c *Controller) AutoSwitch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auto
}

// NextLine advances to the next line of the current failure episode. ok is false once
// every line has been tried.
func (c *Controller) NextLine() (index int, url string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 || c.attempts >= len(c.lines) {
		return c.index, "", false
	}
	c.attempts++
	c.pending = true
	c.index = (c.index + 1) % len(c.lines)
	zlog.Info().Msgf("cdn failover: line=%d attempt=%d/%d", c.index, c.attempts, len(c.lines))
	return c.index, c.lineURLLocked(c.index), true
}

// Attempts returns the failover attempts made in the current episode.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Settle records that the line chosen by the last failover step is now carrying media.
func (c *Controller) Settle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
}

// MarkHealthy ends the current failure episode. It is ignored while a failover step is
// still pending, since the report then belongs to the line being left. It reports
// whether the episode ended.
func (c *Controller) MarkHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		zlog.Debug().Msgf("cdn health report ignored during failover: line=%d attempt=%d", c.index, c.attempts)
		return false
	}
	c.attempts = 0
	return true
}

// Wait paces automatic switches.
func (c *Controller) Wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// RenewToken replaces the access token. ts is the expiry in Unix seconds, zero or
// negative for a token that does not expire. The new token applies to the next request.
func (c *Controller) RenewToken(token string, ts int64) error {
	if token == "" {
		return errors.Wrap(media.ErrInvalidArguments, "token is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 {
		return errors.Wrap(media.ErrInvalidState, "no cdn source open")
	}
	var expiry time.Time
	if ts > 0 {
		expiry = time.Unix(ts, 0)
	}
	c.stopTimersLocked()
	c.setTokenLocked(token, expiry)
	zlog.Info().Msgf("cdn token renewed: expiry=%v", expiry)
	return nil
}

// Token returns the current access token.
func (c *Controller) Token() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return nil
	}
	t := *c.token
	return &t
}

// LineURL returns the URL of the current line with the token applied.
func (c *Controller) LineURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 {
		return ""
	}
	return c.lineURLLocked(c.index)
}

func (c *Controller) lineURLLocked(i int) string {
	token := ""
	if c.token != nil {
		token = c.token.AccessToken
	}
	return withToken(c.lines[i], token)
}

func (c *Controller) setTokenLocked(token string, expiry time.Time) {
	c.token = &oauth2.Token{AccessToken: token, TokenType: "Bearer", Expiry: expiry}
	if expiry.IsZero() {
		return
	}
	c.gen++
	gen := c.gen
	now := time.Now()
	c.warn = time.AfterFunc(max(expiry.Add(-c.cfg.WarnAhead).Sub(now), 0), func() {
		c.fire(gen, c.hooks.OnWillExpire, "cdn token will expire")
	})
	c.expire = time.AfterFunc(max(expiry.Add(c.cfg.Grace).Sub(now), 0), func() {
		c.fire(gen, c.hooks.OnExpired, "cdn token expired")
	})
}

func (c *Controller) fire(gen uint64, hook func(), msg string) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale || hook == nil {
		return
	}
	zlog.Warn().Msg(msg)
	hook()
}

func (c *Controller) stopTimersLocked() {
	c.gen++
	if c.warn != nil {
		c.warn.Stop()
		c.warn = nil
	}
	if c.expire != nil {
		c.expire.Stop()
		c.expire = nil
	}
}
