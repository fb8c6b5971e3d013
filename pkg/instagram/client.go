// Package instagram talks to the Instagram private API on behalf of
// authenticated accounts and adapts it to the bot engine's
// FeedProvider interface.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"botinsta/pkg/auth"
	"botinsta/pkg/config"
	errs "botinsta/pkg/errors"
	"botinsta/pkg/logger"
	"botinsta/pkg/ratelimit"
	"botinsta/pkg/retry"
)

// userAgents mimics real Android builds of the official app. Requests
// without an account-pinned agent rotate through these.
var userAgents = []string{
	"Instagram 254.0.0.0.0 Android (32/12; 480dpi; 1080x1920; SAMSUNG; SM-G950F; dreamlte; dreamltecs; en_US; 403699470)",
	"Instagram 260.0.0.0.0 Android (33/13; 420dpi; 1080x2220; realme; RMX2117; RMX2117; RMX2117; en_US; 403699470)",
	"Instagram 280.0.0.0.0 Android (31/12; 420dpi; 1080x2340; OnePlus; GM1910; OnePlus7Pro; OnePlus7Pro; en_US; 403699470)",
	"Instagram 265.0.0.0.0 Android (30/11; 480dpi; 1440x2880; samsung; SM-G973F; beyond2; beyond2; en_US; 403699470)",
	"Instagram 275.0.0.0.0 Android (29/10; 420dpi; 1080x2160; Google; Pixel 3 XL; crosshatch; crosshatch; en_US; 403699470)",
	"Instagram 270.0.0.0.0 Android (31/12; 420dpi; 1080x2340; xiaomi; M2007J1SC; lmi; lmi; en_US; 403699470)",
	"Instagram 282.0.0.0.0 Android (32/12; 420dpi; 1080x2400; OPPO; CPH2127; PBKM00; PBKM00; en_US; 403699470)",
}

// Credentials resolves an account name to its stored session
type Credentials interface {
	Retrieve(username string) (*auth.Account, error)
}

// Client is an authenticated Instagram private API client shared by
// all jobs. Requests are rate limited per account.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	limiters   *ratelimit.PerAccount
	maxRetries int
	logger     logger.Logger
}

// NewClient creates a client from configuration
func NewClient(cfg config.InstagramConfig, creds Credentials, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL:    baseURL,
		creds:      creds,
		limiters:   ratelimit.NewPerAccount(cfg.RequestsPerMinute, time.Minute),
		maxRetries: cfg.MaxRetries,
		logger:     log,
	}
}

// getJSON performs an authenticated GET and decodes the response
func (c *Client) getJSON(ctx context.Context, account, rawURL string, target interface{}) error {
	return c.do(ctx, account, http.MethodGet, rawURL, nil, target)
}

// postForm performs an authenticated form POST and decodes the response
func (c *Client) postForm(ctx context.Context, account, rawURL string, form url.Values, target interface{}) error {
	return c.do(ctx, account, http.MethodPost, rawURL, form, target)
}

// do resolves credentials, waits for the account's request budget, and
// runs the request with transient-failure retries.
func (c *Client) do(ctx context.Context, account, method, rawURL string, form url.Values, target interface{}) error {
	acct, err := c.creds.Retrieve(account)
	if err != nil {
		return errs.Newf(errs.ErrorTypeNotAuthenticated, "no credentials for %s: %v", account, err)
	}

	c.limiters.Get(account).Wait()

	op := func() error {
		return c.doOnce(ctx, acct, method, rawURL, form, target)
	}
	return retry.Do(op, &retry.Config{
		MaxAttempts: c.maxRetries,
		Backoff:     retry.DefaultExponentialBackoff(),
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      c.logger,
	})
}

func (c *Client) doOnce(ctx context.Context, acct *auth.Account, method, rawURL string, form url.Values, target interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return errs.Newf(errs.ErrorTypeInvalidInput, "failed to create request: %v", err)
	}

	req.Header.Set("User-Agent", pickUserAgent(acct))
	req.Header.Set("Cookie", acct.CookieHeader())
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.instagram.com/")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
		req.Header.Set("X-CSRFToken", acct.CSRFToken)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method":  method,
		"url":     rawURL,
		"account": acct.Username,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   method,
			"url":      rawURL,
			"error":    err.Error(),
			"duration": duration,
		})
		return errs.Newf(errs.ErrorTypeProvider, "network error: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.WithCode(errs.ErrorTypeProvider, resp.StatusCode,
			fmt.Sprintf("failed to read response body: %v", err))
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   method,
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if err := checkResponse(resp.StatusCode, raw); err != nil {
		c.logger.WarnWithFields("API request rejected", map[string]interface{}{
			"url":    rawURL,
			"status": resp.StatusCode,
			"error":  err.Error(),
		})
		return err
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		preview := string(raw)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          rawURL,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errs.WithCode(errs.ErrorTypeProvider, resp.StatusCode,
			fmt.Sprintf("failed to parse JSON: %v", err))
	}

	return nil
}

// checkResponse classifies HTTP and API-level failures. Instagram
// reports some failures inside a 200 response, and throttling comes
// back as either a 429 or a 400 with feedback_required.
func checkResponse(statusCode int, body []byte) error {
	var envelope apiEnvelope
	_ = json.Unmarshal(body, &envelope)

	if statusCode == http.StatusOK {
		if envelope.Status != "fail" {
			return nil
		}
		return classifyMessage(statusCode, envelope.Message)
	}

	if isThrottleMessage(envelope.Message) {
		return errs.WithCode(errs.ErrorTypeRateLimited, statusCode, envelope.Message)
	}
	if strings.Contains(envelope.Message, "login_required") || strings.Contains(envelope.Message, "checkpoint_required") {
		return errs.WithCode(errs.ErrorTypeNotAuthenticated, statusCode, envelope.Message)
	}

	message := envelope.Message
	if message == "" {
		message = fmt.Sprintf("unexpected status code: %d", statusCode)
	}
	return errs.WithCode(errs.TypeForStatusCode(statusCode), statusCode, message)
}

func classifyMessage(statusCode int, message string) error {
	switch {
	case isThrottleMessage(message):
		return errs.WithCode(errs.ErrorTypeRateLimited, statusCode, message)
	case strings.Contains(message, "login_required"), strings.Contains(message, "checkpoint_required"):
		return errs.WithCode(errs.ErrorTypeNotAuthenticated, statusCode, message)
	default:
		if message == "" {
			message = "request failed"
		}
		return errs.WithCode(errs.ErrorTypeProvider, statusCode, message)
	}
}

func isThrottleMessage(message string) bool {
	return strings.Contains(message, "feedback_required") ||
		strings.Contains(message, "Please wait a few minutes") ||
		strings.Contains(message, "spam")
}

func pickUserAgent(acct *auth.Account) string {
	if acct.UserAgent != "" {
		return acct.UserAgent
	}
	return userAgents[rand.Intn(len(userAgents))]
}
