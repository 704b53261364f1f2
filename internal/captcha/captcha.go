// Package captcha verifies the challenge token sent with a submission
// against a siteverify endpoint (Cloudflare Turnstile and hCaptcha share
// the same form-encoded contract).
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Verifier checks a CAPTCHA token. A false result with a nil error means the
// provider rejected the token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// Disabled accepts every token. It is only wired when no secret is
// configured.
type Disabled struct{}

func (Disabled) Verify(context.Context, string, string) (bool, error) {
	return true, nil
}

type Config struct {
	VerifyURL string
	Secret    string
	Timeout   time.Duration
	RetryMax  int
}

type HTTPVerifier struct {
	verifyURL string
	secret    string
	client    *http.Client
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func NewHTTPVerifier(cfg Config) *HTTPVerifier {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledZerolog{log.With().Str("component", "captcha").Logger()})

	client := retryClient.StandardClient()
	client.Timeout = cfg.Timeout
	if client.Timeout <= 0 {
		client.Timeout = 5 * time.Second
	}

	return &HTTPVerifier{
		verifyURL: cfg.VerifyURL,
		secret:    cfg.Secret,
		client:    client,
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("siteverify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode siteverify response: %w", err)
	}
	if !body.Success {
		log.Debug().Strs("error_codes", body.ErrorCodes).Msg("captcha rejected")
	}
	return body.Success, nil
}

// leveledZerolog adapts zerolog to retryablehttp's logger interface.
type leveledZerolog struct {
	logger zerolog.Logger
}

func (l leveledZerolog) Error(msg string, kv ...interface{}) {
	l.logger.Error().Fields(kv).Msg(msg)
}

func (l leveledZerolog) Warn(msg string, kv ...interface{}) {
	l.logger.Warn().Fields(kv).Msg(msg)
}

func (l leveledZerolog) Info(msg string, kv ...interface{}) {
	l.logger.Debug().Fields(kv).Msg(msg)
}

func (l leveledZerolog) Debug(msg string, kv ...interface{}) {
	l.logger.Debug().Fields(kv).Msg(msg)
}
