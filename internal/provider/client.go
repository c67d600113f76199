package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"oddsboard/internal/odds"
)

const (
	defaultBaseURL    = "https://api.the-odds-api.com/v4"
	defaultTimeout    = 20 * time.Second
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
	defaultUserAgent  = "oddsboard/1.0"
	defaultOddsFormat = "american"
)

var apiKeyPattern = regexp.MustCompile(`apiKey=[^&]+`)

// UpstreamError reports a failed provider fetch: either a permanent
// request-level rejection or retry exhaustion.
type UpstreamError struct {
	StatusCode int
	Attempts   int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream fetch failed after %d attempt(s): %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("upstream fetch failed after %d attempt(s): status %d", e.Attempts, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Options parameterise the odds provider client.
type Options struct {
	BaseURL    string
	APIKey     string
	Bookmakers []string
	Markets    []string
	OddsFormat string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	UserAgent  string
}

// Client fetches odds from The Odds API.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs an odds provider client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.OddsFormat == "" {
		opts.OddsFormat = defaultOddsFormat
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "provider").Logger(),
		client:  &http.Client{},
		baseURL: baseURL,
	}
}

// FetchOdds retrieves the odds board for a sport. Responses other than 2xx
// and 429 in the 4xx range fail immediately; 429, 5xx, and transport errors
// are retried with backoff up to the configured attempt cap.
func (c *Client) FetchOdds(ctx context.Context, sportKey string) ([]odds.Event, error) {
	endpoint := fmt.Sprintf("%s/sports/%s/odds", c.baseURL, url.PathEscape(sportKey))

	params := url.Values{}
	params.Set("apiKey", c.opts.APIKey)
	params.Set("oddsFormat", c.opts.OddsFormat)
	params.Set("bookmakers", strings.Join(c.opts.Bookmakers, ","))
	params.Set("markets", strings.Join(c.opts.Markets, ","))

	fullURL := endpoint + "?" + params.Encode()
	scrubbed := apiKeyPattern.ReplaceAllString(fullURL, "apiKey=***")

	var lastErr error
	lastStatus := 0

	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		body, status, header, err := c.doRequest(ctx, fullURL)
		switch {
		case err == nil && status >= 200 && status < 300:
			events, parseErr := parseEvents(body)
			if parseErr != nil {
				return nil, &UpstreamError{StatusCode: status, Attempts: attempt + 1, Err: parseErr}
			}
			if attempt > 0 {
				c.logger.Info().Str("url", scrubbed).Int("attempt", attempt+1).Msg("retry succeeded")
			}
			return events, nil

		case err == nil && status == http.StatusTooManyRequests:
			delay := c.retryAfterDelay(header.Get("Retry-After"), attempt)
			lastErr = fmt.Errorf("rate limited (429)")
			lastStatus = status
			if attempt < c.opts.MaxRetries-1 {
				c.logger.Warn().Str("url", scrubbed).Int("attempt", attempt+1).Dur("delay", delay).Msg("rate limited, retrying")
				if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
					return nil, sleepErr
				}
				continue
			}

		case err == nil && status >= 500:
			lastErr = fmt.Errorf("server error (%d)", status)
			lastStatus = status
			if attempt < c.opts.MaxRetries-1 {
				delay := c.opts.BaseDelay * (1 << uint(attempt))
				c.logger.Warn().Str("url", scrubbed).Int("status", status).Int("attempt", attempt+1).Dur("delay", delay).Msg("server error, retrying")
				if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
					return nil, sleepErr
				}
				continue
			}

		case err == nil:
			// 3xx and 4xx other than 429: a permanent request-level failure,
			// never retried.
			return nil, &UpstreamError{
				StatusCode: status,
				Attempts:   attempt + 1,
				Err:        fmt.Errorf("client error (%d): %s", status, truncateBody(body)),
			}

		default:
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			lastErr = err
			lastStatus = 0
			if attempt < c.opts.MaxRetries-1 {
				delay := c.opts.BaseDelay * (1 << uint(attempt))
				c.logger.Warn().Str("url", scrubbed).Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("network error, retrying")
				if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
					return nil, sleepErr
				}
				continue
			}
		}
	}

	c.logger.Error().Str("url", scrubbed).Int("attempts", c.opts.MaxRetries).Err(lastErr).Msg("max retries exceeded")
	return nil, &UpstreamError{StatusCode: lastStatus, Attempts: c.opts.MaxRetries, Err: lastErr}
}

// doRequest performs a single attempt bounded by the per-attempt timeout.
func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, int, http.Header, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("read response body: %w", err)
	}

	return body, resp.StatusCode, resp.Header, nil
}

// retryAfterDelay prefers the provider-supplied Retry-After over computed
// backoff; the literal header value wins whenever it parses.
func (c *Client) retryAfterDelay(retryAfter string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return c.opts.BaseDelay * (1 << uint(attempt+1))
}

func parseEvents(body []byte) ([]odds.Event, error) {
	var events []odds.Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("parse odds response: %w", err)
	}
	return events, nil
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		return s[:256]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ OddsFetcher = (*Client)(nil)
