// apiclient - Request Pipeline: HTTP-клиент к REST-бэкенду админки.
//
// Каждый запрос:
//   - получает Authorization: Bearer <access> (если токен есть), X-Request-Id и User-Agent;
//   - уходит на BaseURL + NormalizePath(path);
//   - при 401 один раз проходит через Refresher и повторяется с новым токеном;
//     повторный 401 возвращается вызывающему без второго refresh;
//   - при любой другой ошибке возвращает *HTTPError или *TransportError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/gdpr-admin/internal/metrics"
	"github.com/pribylovaa/gdpr-admin/internal/pkg/log"
)

// DefaultUserAgent - User-Agent по умолчанию.
const DefaultUserAgent = "gdpr-admin"

// maxBodyBytes ограничивает чтение тела ответа.
const maxBodyBytes = 8 << 20

// Config - параметры клиента.
type Config struct {
	BaseURL   string
	Prefix    string
	UserAgent string
	Timeout   time.Duration
}

// TokenSource отдаёт текущий access-токен ("" - токена нет).
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Refresher обменивает устаревший access-токен на новый.
// staleAccessToken - токен, с которым ушёл запрос, получивший 401.
type Refresher interface {
	Refresh(ctx context.Context, staleAccessToken string) (string, error)
}

type Client struct {
	base      string
	prefix    string
	userAgent string
	timeout   time.Duration

	http    *http.Client
	tokens  TokenSource
	log     *slog.Logger
	metrics *metrics.Client

	mu        sync.RWMutex
	refresher Refresher
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет http.Client (например, в тестах).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger задаёт базовый логгер; по умолчанию используется логгер из контекста.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics подключает Prometheus-метрики.
func WithMetrics(m *metrics.Client) Option {
	return func(c *Client) { c.metrics = m }
}

// New создаёт клиент. tokens обычно session.Store.
func New(cfg Config, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		prefix:    cfg.Prefix,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		http:      &http.Client{},
		tokens:    tokens,
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	for _, o := range opts {
		o(c)
	}

	return c
}

// SetRefresher подключает координатор refresh (опционально).
// Без него 401 возвращается вызывающему как есть.
func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	c.refresher = r
	c.mu.Unlock()
}

func (c *Client) getRefresher() Refresher {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.refresher
}

// Do выполняет запрос и, при 2xx, декодирует JSON-ответ в out (out может быть nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	const op = "apiclient.Client.Do"

	body, err := encodeBody(req.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	path := NormalizePath(req.Path, c.prefix)
	rid := req.Header.Get("X-Request-Id")
	if rid == "" {
		rid = newRequestID()
	}

	ctx = c.scopedContext(ctx, rid, req.method(), path)
	lg := log.From(ctx)

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = c.attempt(ctx, req, path, rid, body, token, 1, out)
	if err == nil || !IsUnauthorized(err) || req.SkipAuthRefresh || isAuthPath(path) {
		return err
	}

	r := c.getRefresher()
	if r == nil {
		return err
	}

	fresh, rerr := r.Refresh(ctx, token)
	if rerr != nil {
		var he *HTTPError
		errors.As(err, &he)
		he.Err = rerr
		lg.Warn("refresh_failed_request_rejected", slog.String("err", rerr.Error()))
		return he
	}

	c.metrics.IncRetry()

	return c.attempt(ctx, req, path, rid, body, fresh, 2, out)
}

// attempt отправляет запрос один раз.
func (c *Client) attempt(ctx context.Context, req Request, path, rid string, body []byte, token string, n int, out any) error {
	lg := log.From(ctx)
	method := req.method()

	target, err := c.resolve(path, req.Query)
	if err != nil {
		return fmt.Errorf("apiclient: build url: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return fmt.Errorf("apiclient: new request: %w", err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("X-Request-Id", rid)
	hreq.Header.Set("User-Agent", c.userAgent)
	hreq.Header.Set("Accept", "application/json")
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		hreq.Header.Set("Authorization", "Bearer "+token)
	} else {
		hreq.Header.Del("Authorization")
	}

	start := time.Now()
	resp, err := c.http.Do(hreq)
	if err != nil {
		dur := time.Since(start)
		c.metrics.ObserveRequest(method, 0, dur)
		lg.Warn("http_client",
			slog.Int("attempt", n),
			slog.Bool("auth", token != ""),
			slog.Duration("dur", dur),
			slog.String("err", err.Error()),
		)
		return &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	dur := time.Since(start)
	c.metrics.ObserveRequest(method, resp.StatusCode, dur)
	lg.Info("http_client",
		slog.Int("attempt", n),
		slog.Bool("auth", token != ""),
		slog.Int("status", resp.StatusCode),
		slog.Duration("dur", dur),
	)
	if err != nil {
		return &TransportError{Method: method, URL: target, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp.StatusCode, raw, resp.Header.Get("X-Request-Id"))
	}

	return decodeInto(raw, out)
}

// scopedContext кладёт в контекст логгер запроса с request_id/method/path.
func (c *Client) scopedContext(ctx context.Context, rid, method, path string) context.Context {
	if c.log != nil {
		ctx = log.Into(ctx, c.log)
	}

	ctx, _ = log.With(ctx,
		slog.String("request_id", rid),
		slog.String("method", method),
		slog.String("path", path),
	)

	return ctx
}

func newRequestID() string { return uuid.NewString() }

func (c *Client) resolve(path string, q url.Values) (string, error) {
	target := path
	if !IsAbsoluteURL(path) {
		target = c.base + path
	}

	if len(q) == 0 {
		return target, nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}

	merged := u.Query()
	for k, vs := range q {
		for _, v := range vs {
			merged.Add(k, v)
		}
	}
	u.RawQuery = merged.Encode()

	return u.String(), nil
}

func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeBody, err)
	}

	return b, nil
}

func decodeInto(raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if rm, ok := out.(*json.RawMessage); ok {
		*rm = append((*rm)[:0], raw...)
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return nil
}
