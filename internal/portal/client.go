package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// ClientConfig configures the portal API client.
type ClientConfig struct {
	// BaseURL of the sandbox gateway, without a trailing slash.
	BaseURL string

	// APIKey and APISecret authenticate this application to the
	// gateway (distinct from the taxpayer's OTP-verified token).
	APIKey    string
	APISecret string

	// Timeout bounds each HTTP call. Default 25s.
	Timeout time.Duration

	// MaxRetries is the number of attempts for transient failures.
	// Default 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per attempt.
	// Default 500ms.
	RetryBackoff time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// DefaultClientConfig returns a config pointed at the public sandbox
// gateway.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      "https://api.sandbox.co.in",
		Timeout:      25 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Validate checks the client configuration.
func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "base_url", "", nil)
	}
	if c.APIKey == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "api_key", "", nil)
	}
	return nil
}

// Client talks to the portal gateway. Transient failures (timeouts,
// 5xx, 429) are retried with exponential backoff; auth rejections
// surface as typed auth errors and are never retried, so an expired
// token can't masquerade as an empty result set.
type Client struct {
	config    *ClientConfig
	http      *http.Client
	tokens    *TTLCache
	responses *TTLCache
	log       logger.Logger
}

// accessTokenKey is the single token cache slot.
const accessTokenKey = "access_token"

// NewClient builds a portal client. The token and response caches are
// injected so callers decide their scope and lifetime; either may be
// nil to disable that layer of caching.
func NewClient(config *ClientConfig, tokens, responses *TTLCache) (*Client, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = 25 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &Client{
		config:    config,
		http:      httpClient,
		tokens:    tokens,
		responses: responses,
		log:       logger.WithComponent("portal_client"),
	}, nil
}

// Authenticate returns a gateway access token, reusing the cached one
// while it is valid.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if c.tokens != nil {
		if cached, ok := c.tokens.Get(accessTokenKey); ok {
			c.log.Debug("Using cached gateway access token")
			return string(cached), nil
		}
	}

	headers := http.Header{}
	headers.Set("x-api-key", c.config.APIKey)
	headers.Set("x-api-secret", c.config.APISecret)

	body, err := c.do(ctx, http.MethodPost, c.config.BaseURL+"/authenticate", headers, nil)
	if err != nil {
		return "", err
	}

	token := extractAccessToken(body)
	if token == "" {
		return "", errors.AuthError(errors.CodeTokenInvalid, "gateway returned no access token", nil)
	}

	if c.tokens != nil {
		c.tokens.Set(accessTokenKey, []byte(token))
	}
	c.log.Info("Obtained new gateway access token")
	return token, nil
}

// RequestOTP asks the portal to send an OTP to the taxpayer's
// registered contact. The bearer token is the gateway access token.
func (c *Client) RequestOTP(ctx context.Context, accessToken, username, gstin string) error {
	payload, _ := json.Marshal(map[string]string{"username": username, "gstin": gstin})
	_, err := c.do(ctx, http.MethodPost,
		c.config.BaseURL+"/gst/compliance/tax-payer/otp",
		c.gstHeaders(accessToken), payload)
	c.invalidateTokenOnAuthError(err)
	return err
}

// VerifyOTP exchanges the OTP for a taxpayer token.
func (c *Client) VerifyOTP(ctx context.Context, accessToken, username, gstin, otp string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"username": username, "gstin": gstin})
	endpoint := c.config.BaseURL + "/gst/compliance/tax-payer/otp/verify?otp=" + url.QueryEscape(otp)

	body, err := c.do(ctx, http.MethodPost, endpoint, c.gstHeaders(accessToken), payload)
	if err != nil {
		c.invalidateTokenOnAuthError(err)
		return "", err
	}

	token := extractAccessToken(body)
	if token == "" {
		return "", errors.AuthError(errors.CodeOTPRejected, "portal rejected the OTP", nil)
	}
	return token, nil
}

// FetchReturn downloads one return payload for a filing period,
// cache-first. The taxpayer token must come from a verified session.
// section applies to GSTR-1 only; pass "" for the full statement.
func (c *Client) FetchReturn(ctx context.Context, taxpayerToken, gstin, returnType, section string, period models.Period) ([]byte, error) {
	key := ResponseCacheKey(gstin, returnType, section, period.Year, period.Month)
	if c.responses != nil {
		if cached, ok := c.responses.Get(key); ok {
			c.log.WithFields(logger.Fields{
				"gstin":  gstin,
				"period": period.String(),
			}).Debug("Response cache hit")
			return cached, nil
		}
	}

	endpoint, err := c.returnEndpoint(returnType, section, period)
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, c.gstHeaders(taxpayerToken), nil)
	if err != nil {
		return nil, err
	}

	if c.responses != nil {
		c.responses.Set(key, body)
	}
	return body, nil
}

func (c *Client) returnEndpoint(returnType, section string, period models.Period) (string, error) {
	switch returnType {
	case "gstr-2b":
		return fmt.Sprintf("%s/gstrs/gstr-2b/%04d/%02d",
			c.config.BaseURL, period.Year, int(period.Month)), nil
	case "gstr-1":
		if section == "" {
			return fmt.Sprintf("%s/gstrs/gstr-1/%04d/%02d",
				c.config.BaseURL, period.Year, int(period.Month)), nil
		}
		return fmt.Sprintf("%s/gstrs/gstr-1/%s/%04d/%02d",
			c.config.BaseURL, section, period.Year, int(period.Month)), nil
	case "gstr-3b":
		return fmt.Sprintf("%s/gstrs/gstr-3b/%04d/%02d",
			c.config.BaseURL, period.Year, int(period.Month)), nil
	default:
		return "", errors.ValidationError(errors.CodeInvalidData, "return_type", returnType, nil)
	}
}

// invalidateTokenOnAuthError evicts the cached gateway token after the
// portal rejects it, so the next Authenticate obtains a fresh one
// instead of replaying the stale credential until its TTL lapses.
func (c *Client) invalidateTokenOnAuthError(err error) {
	if err == nil || c.tokens == nil {
		return
	}
	if errors.HasCategory(err, errors.CategoryAuth) {
		c.tokens.Delete(accessTokenKey)
		c.log.Warn("Dropped cached gateway token after auth rejection")
	}
}

// gstHeaders builds the header set the portal expects on every
// authenticated call.
func (c *Client) gstHeaders(token string) http.Header {
	headers := http.Header{}
	headers.Set("x-source", "primary")
	headers.Set("x-api-version", "1.0.0")
	headers.Set("Authorization", token)
	headers.Set("x-api-key", c.config.APIKey)
	headers.Set("Content-Type", "application/json")
	return headers
}

// do issues the request with retry. Only transient failures retry;
// auth rejections and other client errors return immediately.
func (c *Client) do(ctx context.Context, method, endpoint string, headers http.Header, payload []byte) ([]byte, error) {
	var lastErr error
	backoff := c.config.RetryBackoff

	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, errors.NetworkError(errors.CodeTimeout, endpoint, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			c.log.WithFields(logger.Fields{
				"endpoint": endpoint,
				"attempt":  attempt,
			}).Warn("Retrying portal call")
		}

		body, retryable, err := c.doOnce(ctx, method, endpoint, headers, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, headers http.Header, payload []byte) (body []byte, retryable bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, false, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}
	req.Header = headers.Clone()

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection resets are worth another attempt.
		return nil, true, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, errors.AuthError(errors.CodeTokenInvalid,
			fmt.Sprintf("portal rejected credentials with status %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, errors.NetworkError(errors.CodeRateLimited, endpoint, nil)
	case resp.StatusCode >= 500:
		return nil, true, errors.NetworkError(errors.CodeServiceUnavailable, endpoint,
			fmt.Errorf("status %d", resp.StatusCode))
	default:
		return nil, false, errors.NetworkError(errors.CodeConnectionFailed, endpoint,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

// extractAccessToken digs the token out of the gateway's response,
// which nests it at varying depths depending on the endpoint.
func extractAccessToken(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for {
		if token, ok := payload["access_token"].(string); ok {
			return token
		}
		inner, ok := payload["data"].(map[string]interface{})
		if !ok {
			return ""
		}
		payload = inner
	}
}
