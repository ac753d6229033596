package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/STRATINT/mentionwatch/internal/config"
	"github.com/STRATINT/mentionwatch/internal/models"
)

const (
	searchPath  = "/tweets/search/recent"
	tweetFields = "author_id,created_at,public_metrics"

	// Recent search rejects an end_time closer than 10 seconds to now.
	endTimeSafetyMargin = 10 * time.Second

	maxErrorBody = 512
)

// PageRequest identifies one page of mentions for a handle and window.
type PageRequest struct {
	Handle      string
	WindowStart time.Time
	WindowEnd   time.Time
	NextToken   string
	PageSize    int
}

// Page is one decoded search response.
type Page struct {
	Items       []models.RawMention
	NextToken   string
	ResultCount int
}

type searchResponse struct {
	Data []models.RawMention `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type attemptOutcome int

const (
	outcomeOK attemptOutcome = iota
	outcomeRateLimited
	outcomeTransient
	outcomeFatal
	outcomeFailed
)

// SearchClient fetches mention pages from the X API v2 recent-search
// endpoint. Every outbound call is reserved against its RateBudget first.
type SearchClient struct {
	baseURL     string
	bearerToken string
	userContext bool
	http        *retryablehttp.Client
	budget      *RateBudget
	maxWaits    int
	maxRetries  int
	logger      *slog.Logger
	recorder    Recorder
	sleep       SleepFunc
	now         func() time.Time
}

// ClientOption customises a SearchClient.
type ClientOption func(*SearchClient)

// WithSleeper replaces the real-time sleeper used for budget waits.
func WithSleeper(sleep SleepFunc) ClientOption {
	return func(c *SearchClient) { c.sleep = sleep }
}

// WithClock replaces the clock used for the end_time clamp.
func WithClock(now func() time.Time) ClientOption {
	return func(c *SearchClient) { c.now = now }
}

// WithRecorder attaches a measurement sink.
func WithRecorder(r Recorder) ClientOption {
	return func(c *SearchClient) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewSearchClient builds a client for the configured credential. A missing
// credential is reported as ErrAuthentication.
func NewSearchClient(
	cfg config.TwitterConfig,
	policy RetryPolicy,
	maxRateLimitWaits int,
	budget *RateBudget,
	logger *slog.Logger,
	opts ...ClientOption,
) (*SearchClient, error) {
	if !cfg.HasCredentials() {
		return nil, fmt.Errorf("%w: no bearer token or OAuth 1.0a credentials configured", ErrAuthentication)
	}
	if budget == nil {
		return nil, fmt.Errorf("rate budget is required")
	}

	// Retries are driven by FetchPage so every attempt is reserved against
	// the budget; the client only supplies the backoff schedule.
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 0
	httpClient.RetryWaitMin = policy.InitialBackoff
	httpClient.RetryWaitMax = policy.MaxBackoff
	httpClient.CheckRetry = checkRetry
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	httpClient.Logger = logger.With("component", "search_http")

	c := &SearchClient{
		baseURL:     cfg.BaseURL,
		bearerToken: cfg.BearerToken,
		http:        httpClient,
		budget:      budget,
		maxWaits:    maxRateLimitWaits,
		maxRetries:  max(policy.MaxRetries, 0),
		logger:      logger,
		recorder:    nopRecorder{},
		sleep:       SleepContext,
		now:         time.Now,
	}

	if cfg.HasOAuth1() {
		oauthConfig := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret)
		token := oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret)
		httpClient.HTTPClient = oauthConfig.Client(oauth1.NoContext, token)
		c.userContext = true
	}
	httpClient.HTTPClient.Timeout = cfg.RequestTimeout

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Budget exposes the client's rate budget for status reporting.
func (c *SearchClient) Budget() *RateBudget {
	return c.budget
}

// FetchPage returns one page of mentions of req.Handle inside the window.
//
// A 429 from the API exhausts the local budget and the unchanged request is
// retried after a full window, at most maxWaits times in a row. Transport
// failures, timeouts and 5xx are retried with exponential backoff up to
// maxRetries times, each retry reserving budget again; once those retries
// are spent a *RetryableError is returned. 401/403 yield ErrAuthentication.
func (c *SearchClient) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	pageSize := clampPageSize(req.PageSize)

	end := req.WindowEnd
	if latest := c.now().Add(-endTimeSafetyMargin); end.After(latest) {
		end = latest
	}
	if !end.After(req.WindowStart) {
		c.logger.Debug("search window is empty", "handle", req.Handle, "start", req.WindowStart, "end", end)
		return Page{}, nil
	}

	endpoint := c.searchURL(req.Handle, req.WindowStart, end, req.NextToken, pageSize)

	reason := WaitReasonBudget
	waits, retries := 0, 0
	for {
		if err := c.reserve(ctx, pageSize, reason); err != nil {
			return Page{}, err
		}

		page, outcome, err := c.attempt(ctx, endpoint)
		switch outcome {
		case outcomeOK:
			c.recorder.PageFetched(len(page.Items))
			return page, nil
		case outcomeRateLimited:
			wait := c.budget.Exhaust()
			if waits >= c.maxWaits {
				return Page{}, NewRetryableErrorWithDelay(
					fmt.Errorf("%w after %d full-window waits", ErrRateLimited, waits),
					wait,
				)
			}
			waits++
			reason = WaitReasonRateLimited
			c.logger.Warn("search API rate limited, waiting for full window",
				"handle", req.Handle,
				"wait", wait,
				"attempt", waits,
			)
		case outcomeTransient:
			if retries >= c.maxRetries {
				return Page{}, NewRetryableError(fmt.Errorf("%w (after %d retries)", err, retries))
			}
			backoff := c.http.Backoff(c.http.RetryWaitMin, c.http.RetryWaitMax, retries, nil)
			retries++
			reason = WaitReasonBudget
			c.logger.Warn("search request failed, retrying",
				"handle", req.Handle,
				"error", err,
				"backoff", backoff,
				"retry", retries,
			)
			if err := c.sleep(ctx, backoff); err != nil {
				return Page{}, fmt.Errorf("waiting to retry search request: %w", err)
			}
		default:
			return Page{}, err
		}
	}
}

// reserve blocks until the budget admits one request of items.
func (c *SearchClient) reserve(ctx context.Context, items int, reason string) error {
	for {
		decision := c.budget.TryReserve(items)
		if decision.Allowed {
			return nil
		}

		c.logger.Info("rate budget exhausted, waiting", "wait", decision.Wait, "reason", reason)
		c.recorder.BudgetWait(reason, decision.Wait)
		if err := c.sleep(ctx, decision.Wait); err != nil {
			return fmt.Errorf("waiting for rate budget: %w", err)
		}
	}
}

func (c *SearchClient) attempt(ctx context.Context, endpoint string) (Page, attemptOutcome, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Page{}, outcomeFailed, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if !c.userContext {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, outcomeFailed, ctx.Err()
		}
		return Page{}, outcomeTransient, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var result searchResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return Page{}, outcomeTransient, fmt.Errorf("decode search response: %w", err)
		}
		return Page{
			Items:       result.Data,
			NextToken:   result.Meta.NextToken,
			ResultCount: result.Meta.ResultCount,
		}, outcomeOK, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Page{}, outcomeRateLimited, ErrRateLimited

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Page{}, outcomeFatal, fmt.Errorf("%w: %d - %s", ErrAuthentication, resp.StatusCode, readSnippet(resp.Body))

	case resp.StatusCode >= http.StatusInternalServerError:
		return Page{}, outcomeTransient, fmt.Errorf("twitter API error: %d - %s", resp.StatusCode, readSnippet(resp.Body))

	default:
		return Page{}, outcomeFailed, fmt.Errorf("twitter API error: %d - %s", resp.StatusCode, readSnippet(resp.Body))
	}
}

func (c *SearchClient) searchURL(handle string, start, end time.Time, token string, pageSize int) string {
	params := url.Values{}
	params.Set("query", "@"+models.NormalizeHandle(handle)+" -is:retweet")
	params.Set("tweet.fields", tweetFields)
	params.Set("max_results", strconv.Itoa(pageSize))
	params.Set("start_time", start.UTC().Format(time.RFC3339))
	params.Set("end_time", end.UTC().Format(time.RFC3339))
	if token != "" {
		params.Set("next_token", token)
	}
	return c.baseURL + searchPath + "?" + params.Encode()
}

// checkRetry classifies a single attempt for the HTTP client. With RetryMax
// at 0 it never causes a resend; 429 is excluded so it is never reported as a
// retryable transport failure.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func clampPageSize(n int) int {
	if n < config.MinPageSize {
		return config.MinPageSize
	}
	if n > config.MaxPageSize {
		return config.MaxPageSize
	}
	return n
}

func readSnippet(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(body)
}
