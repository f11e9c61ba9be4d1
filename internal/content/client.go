package content

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"totdbot/internal/metrics"
	logx "totdbot/pkg/logx"
)

const (
	ubiAppID         = "86263886-327a-4328-ac69-527f0d20a237"
	defaultUserAgent = "totdbot (telegram)"

	DefaultRequestsPerSecond = 2
	DefaultTMXTimeout        = 5 * time.Second
)

// Endpoints are the upstream base URLs. Tests point them at httptest servers.
type Endpoints struct {
	Ubi   string
	Core  string
	Live  string
	OAuth string
	TMX   string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Ubi:   "https://public-ubiservices.ubi.com",
		Core:  "https://prod.trackmania.core.nadeo.online",
		Live:  "https://live-services.trackmania.nadeo.live",
		OAuth: "https://api.trackmania.com",
		TMX:   "https://trackmania.exchange",
	}
}

type Config struct {
	// UbiLogin is "email:password" of the service account.
	UbiLogin    string
	OAuthID     string
	OAuthSecret string
	UserAgent   string

	RequestsPerSecond float64
	TMXTimeout        time.Duration
	Endpoints         Endpoints

	Location     *time.Location
	BoundaryHour int
}

type audience int

const (
	audNone audience = iota
	audCore
	audLive
	audOAuth
)

func (a audience) String() string {
	switch a {
	case audCore:
		return "core"
	case audLive:
		return "live"
	case audOAuth:
		return "oauth"
	default:
		return "none"
	}
}

// Client talks to the Nadeo, Trackmania OAuth and exchange APIs.
// Requests are serialized through a shared limiter; an HTTP 401 triggers
// one re-login and one retry.
type Client struct {
	cfg     Config
	hc      *http.Client
	limiter *rate.Limiter
	log     logx.Logger
	metrics *metrics.Manager
	now     func() time.Time

	mu     sync.Mutex
	tokens map[audience]string
}

type ClientOption func(c *Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

func WithClientMetrics(m *metrics.Manager) ClientOption { return func(c *Client) { c.metrics = m } }

func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(cfg Config, log logx.Logger, opts ...ClientOption) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.TMXTimeout <= 0 {
		cfg.TMXTimeout = DefaultTMXTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	def := DefaultEndpoints()
	if cfg.Endpoints.Ubi == "" {
		cfg.Endpoints.Ubi = def.Ubi
	}
	if cfg.Endpoints.Core == "" {
		cfg.Endpoints.Core = def.Core
	}
	if cfg.Endpoints.Live == "" {
		cfg.Endpoints.Live = def.Live
	}
	if cfg.Endpoints.OAuth == "" {
		cfg.Endpoints.OAuth = def.OAuth
	}
	if cfg.Endpoints.TMX == "" {
		cfg.Endpoints.TMX = def.TMX
	}
	c := &Client{
		cfg:     cfg,
		hc:      &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:     log.With(logx.String("comp", "content")),
		now:     time.Now,
		tokens:  map[audience]string{},
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c
}

type request struct {
	endpoint    string // metrics label
	aud         audience
	method      string
	url         string
	body        []byte
	contentType string
	header      map[string]string
}

func (c *Client) token(a audience) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[a]
}

func (c *Client) setToken(a audience, tok string) {
	c.mu.Lock()
	c.tokens[a] = tok
	c.mu.Unlock()
}

// call performs r and decodes a JSON response into out.
func (c *Client) call(ctx context.Context, r request, out any) error {
	if r.aud != audNone && c.token(r.aud) == "" {
		if err := c.login(ctx, r.aud); err != nil {
			return err
		}
	}
	err := c.do(ctx, r, out)
	var se *StatusError
	if r.aud != audNone && errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		c.log.Info("upstream token rejected; logging in again", logx.String("endpoint", r.endpoint), logx.String("audience", r.aud.String()))
		if lerr := c.login(ctx, r.aud); lerr != nil {
			return lerr
		}
		return c.do(ctx, r, out)
	}
	return err
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return err
	}
	ct := r.contentType
	if ct == "" {
		ct = "application/json"
	}
	req.Header.Set("Content-Type", ct)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	switch r.aud {
	case audCore, audLive:
		req.Header.Set("Authorization", "nadeo_v1 t="+c.token(r.aud))
	case audOAuth:
		req.Header.Set("Authorization", "Bearer "+c.token(r.aud))
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}

	c.log.Debug("upstream request", logx.String("endpoint", r.endpoint), logx.String("method", r.method))
	resp, err := c.hc.Do(req)
	if err != nil {
		c.metrics.ContentRequest(r.endpoint, "error")
		return fmt.Errorf("content: %s: %w", r.endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.ContentRequest(r.endpoint, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Endpoint: r.endpoint, Code: resp.StatusCode, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(out); err != nil {
		return fmt.Errorf("content: %s: decode: %w", r.endpoint, err)
	}
	return nil
}

func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return 0
}

func (c *Client) login(ctx context.Context, a audience) error {
	if a == audOAuth {
		return c.loginOAuth(ctx)
	}
	return c.loginNadeo(ctx)
}

// loginNadeo exchanges the Ubisoft session ticket for both Nadeo audiences.
func (c *Client) loginNadeo(ctx context.Context) error {
	if c.cfg.UbiLogin == "" {
		return errors.New("content: ubi login not configured")
	}
	var ticket struct {
		Ticket string `json:"ticket"`
	}
	err := c.do(ctx, request{
		endpoint: "ubi.session",
		method:   http.MethodPost,
		url:      c.cfg.Endpoints.Ubi + "/v3/profiles/sessions",
		body:     []byte("{}"),
		header: map[string]string{
			"Ubi-AppId":     ubiAppID,
			"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(c.cfg.UbiLogin)),
		},
	}, &ticket)
	if err != nil {
		return fmt.Errorf("content: ubi login: %w", err)
	}

	for _, aud := range []struct {
		a    audience
		name string
	}{{audCore, "NadeoServices"}, {audLive, "NadeoLiveServices"}} {
		var tok struct {
			AccessToken string `json:"accessToken"`
		}
		body, _ := json.Marshal(map[string]string{"audience": aud.name})
		err := c.do(ctx, request{
			endpoint: "nadeo.token",
			method:   http.MethodPost,
			url:      c.cfg.Endpoints.Core + "/v2/authentication/token/ubiservices",
			body:     body,
			header:   map[string]string{"Authorization": "ubi_v1 t=" + ticket.Ticket},
		}, &tok)
		if err != nil {
			return fmt.Errorf("content: nadeo token %s: %w", aud.name, err)
		}
		c.setToken(aud.a, tok.AccessToken)
	}
	c.log.Info("game api login successful")
	return nil
}

func (c *Client) loginOAuth(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.OAuthID)
	form.Set("client_secret", c.cfg.OAuthSecret)

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	err := c.do(ctx, request{
		endpoint:    "oauth.token",
		method:      http.MethodPost,
		url:         c.cfg.Endpoints.OAuth + "/api/access_token",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &tok)
	if err != nil {
		return fmt.Errorf("content: oauth login: %w", err)
	}
	c.setToken(audOAuth, tok.AccessToken)
	c.log.Info("oauth login successful")
	return nil
}
