package pvoutput

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pvrelay/pvrelay/pkg/common"
	"github.com/pvrelay/pvrelay/pkg/log"
)

const (
	// DefaultURL is the addstatus service endpoint.
	DefaultURL = "https://pvoutput.org/service/r2/addstatus.jsp"

	maxAttempts          = 3
	lowRateLimit         = 10
	defaultTimeout       = 10 * time.Second
	defaultRetryInterval = 5 * time.Second
)

// ErrPublishFailed is returned when every attempt to upload a status failed.
var ErrPublishFailed = errors.New("pvoutput publish failed")

// rateLimitedError is returned for a 403, which PVOutput uses once the hourly
// request allowance is spent.
type rateLimitedError struct {
	reset time.Time
}

func (e *rateLimitedError) Error() string {
	if e.reset.IsZero() {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited until %s", e.reset.Format(time.RFC3339))
}

// Client uploads live status to PVOutput.
type Client struct {
	client        *http.Client
	url           string
	apiKey        string
	systemID      string
	retryInterval time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewClient returns a Client for the system identified by systemID.
func NewClient(apiKey, systemID string) *Client {
	return &Client{
		client:        common.HTTPClient(defaultTimeout),
		url:           DefaultURL,
		apiKey:        apiKey,
		systemID:      systemID,
		retryInterval: defaultRetryInterval,
		now:           time.Now,
		sleep:         sleepContext,
	}
}

// Publish uploads p, retrying up to three times. A rate-limited attempt waits
// for the advertised reset; any other failure waits the retry interval.
func (c *Client) Publish(ctx context.Context, p Payload) error {
	values := p.Values()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := c.post(ctx, values)
		if err == nil {
			log.Ctx(ctx).DebugContext(ctx, "pvoutput status uploaded", slog.Int("attempt", attempt), slog.String("payload", values.Encode()))
			return nil
		}
		lastErr = err
		log.Ctx(ctx).WarnContext(ctx, "pvoutput upload attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))
		if attempt == maxAttempts {
			break
		}

		wait := c.retryInterval
		var rle *rateLimitedError
		if errors.As(err, &rle) && !rle.reset.IsZero() {
			wait = max(rle.reset.Add(time.Second).Sub(c.now()), 0)
		}
		if err := c.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}
	return fmt.Errorf("%w: %w", ErrPublishFailed, lastErr)
}

func (c *Client) newPostFormRequest(ctx context.Context, data url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.url, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Pvoutput-Apikey", c.apiKey)
	req.Header.Set("X-Pvoutput-SystemId", c.systemID)
	req.Header.Set("X-Rate-Limit", "1")
	return req, nil
}

func (c *Client) post(ctx context.Context, data url.Values) error {
	req, err := c.newPostFormRequest(ctx, data)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if rem, err := strconv.Atoi(resp.Header.Get("X-Rate-Limit-Remaining")); err == nil && rem < lowRateLimit {
		log.Ctx(ctx).WarnContext(ctx, "pvoutput rate limit nearly exhausted",
			slog.Int("remaining", rem),
			slog.String("reset", resp.Header.Get("X-Rate-Limit-Reset")),
		)
	}

	if resp.StatusCode == http.StatusForbidden {
		rle := &rateLimitedError{}
		if reset, err := strconv.ParseInt(resp.Header.Get("X-Rate-Limit-Reset"), 10, 64); err == nil {
			rle.reset = time.Unix(reset, 0)
		}
		return rle
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
