// Package supporthttp implements the supportapi.Service port against the
// bookstore's /support/api endpoints.
package supporthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"

	"github.com/Strob0t/supportchat/internal/config"
	"github.com/Strob0t/supportchat/internal/domain/support"
	"github.com/Strob0t/supportchat/internal/logger"
	"github.com/Strob0t/supportchat/internal/port/supportapi"
	"github.com/Strob0t/supportchat/internal/resilience"
)

// SessionCookieName is the Django session cookie replayed on every request.
const SessionCookieName = "sessionid"

const apiPrefix = "/support/api"

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("support API error %d: %s", e.Code, e.Body)
}

// Client talks to the support API.
type Client struct {
	baseURL    *url.URL
	language   string
	csrfCookie string
	httpClient *http.Client
	breaker    *resilience.Breaker
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the otelhttp-wrapped default transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// WithBreaker attaches a circuit breaker to all outgoing HTTP calls.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for cfg.BaseURL. The session and CSRF cookies
// from cfg are seeded into the client's cookie jar.
func NewClient(cfg config.Support, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	var seed []*http.Cookie
	if cfg.SessionCookie != "" {
		seed = append(seed, &http.Cookie{Name: SessionCookieName, Value: cfg.SessionCookie, Path: "/"})
	}
	if cfg.CSRFToken != "" {
		seed = append(seed, &http.Cookie{Name: cfg.CSRFCookie, Value: cfg.CSRFToken, Path: "/"})
	}
	if len(seed) > 0 {
		jar.SetCookies(base, seed)
	}

	c := &Client{
		baseURL:    base,
		language:   cfg.Language,
		csrfCookie: cfg.CSRFCookie,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Jar:       jar,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			// login_required answers with a redirect to the login page;
			// the 302 itself is the signal, not the HTML behind it.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ supportapi.Service = (*Client)(nil)

// Config fetches the widget configuration.
func (c *Client) Config(ctx context.Context) (support.WidgetConfig, error) {
	data, err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/config/", nil, "")
	if err != nil {
		return support.WidgetConfig{}, fmt.Errorf("widget config: %w", err)
	}
	var w wireConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return support.WidgetConfig{}, fmt.Errorf("unmarshal widget config: %w", err)
	}
	return w.toDomain(), nil
}

// Conversation fetches or creates the visitor's conversation. Any HTTP
// status outside 2xx maps to supportapi.ErrUnauthenticated.
func (c *Client) Conversation(ctx context.Context) (*support.Conversation, error) {
	data, err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/conversation/create/", nil, "")
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("create conversation: %w: %w", supportapi.ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	var w wireConversation
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	if w.ID == "" {
		return nil, errors.New("create conversation: response has no conversation_id")
	}
	return w.toDomain(), nil
}

// Messages fetches the transcript. q.After > 0 asks the server for the
// messages after that id only.
func (c *Client) Messages(ctx context.Context, conversationID string, q supportapi.MessageQuery) ([]support.Message, error) {
	path := conversationPath(conversationID, "messages")
	if q.After > 0 {
		path += "?after=" + strconv.FormatInt(q.After, 10)
	}
	data, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	var result struct {
		Messages []wireMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	msgs := make([]support.Message, 0, len(result.Messages))
	for i := range result.Messages {
		msgs = append(msgs, result.Messages[i].toDomain())
	}
	return msgs, nil
}

// Send posts a text message.
func (c *Client) Send(ctx context.Context, conversationID, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := c.doRequest(ctx, http.MethodPost, conversationPath(conversationID, "send"), body, "application/json"); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// UploadFile posts up as a multipart form with "file" and "content" parts.
func (c *Client) UploadFile(ctx context.Context, conversationID string, up supportapi.Upload) error {
	body, contentType, err := encodeUpload(up)
	if err != nil {
		return fmt.Errorf("encode upload: %w", err)
	}
	if _, err := c.doRequest(ctx, http.MethodPost, conversationPath(conversationID, "upload"), body, contentType); err != nil {
		return fmt.Errorf("upload file: %w", err)
	}
	return nil
}

func conversationPath(id, action string) string {
	return apiPrefix + "/conversation/" + url.PathEscape(id) + "/" + action + "/"
}

// csrfToken reads the CSRF cookie from the jar, which also picks up a
// token rotated by the server.
func (c *Client) csrfToken() string {
	for _, ck := range c.httpClient.Jar.Cookies(c.baseURL) {
		if ck.Name == c.csrfCookie {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, error) {
	reqID := uuid.NewString()
	ctx = logger.WithRequestID(ctx, reqID)
	log := logger.From(ctx, c.log)

	var (
		result    []byte
		clientErr error
	)
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", reqID)
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.language != "" {
			req.Header.Set("Accept-Language", c.language)
		}
		if method != http.MethodGet && method != http.MethodHead {
			if tok := c.csrfToken(); tok != "" {
				req.Header.Set("X-CSRFToken", tok)
			}
			req.Header.Set("Referer", c.baseURL.String()+"/")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		log.Debug("support api call", "method", method, "path", path, "status", resp.StatusCode)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			se := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			// A client error says nothing about the health of the server.
			if resp.StatusCode < 500 {
				clientErr = se
				return nil
			}
			return se
		}

		result = data
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		log.Warn("support api call failed", "method", method, "path", path, "error", err)
		return nil, err
	}
	if clientErr != nil {
		return nil, clientErr
	}
	return result, nil
}
