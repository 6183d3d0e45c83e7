package myenergi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/icholy/digest"
	"github.com/pvrelay/pvrelay/pkg/common"
	"github.com/pvrelay/pvrelay/pkg/log"
)

const (
	// DefaultHost is the director the client starts from before the server
	// points it at the account's own backend.
	DefaultHost = "s18.myenergi.net"

	// HostHeader names the backend that serves this account.
	HostHeader = "X_MYENERGI-asn"

	defaultTimeout = 20 * time.Second
)

// StatusError is returned for a non-200 response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.StatusCode)
}

// Client is a digest-authenticated client for the myenergi cloud API. The
// backend host is owned by the client and changes when a response names a
// different one.
type Client struct {
	client *http.Client
	scheme string
	host   string
}

// NewClient returns a Client authenticating as username (the hub serial).
func NewClient(username, password string) *Client {
	return newClient(nil, username, password, defaultTimeout)
}

func newClient(base http.RoundTripper, username, password string, timeout time.Duration) *Client {
	return &Client{
		client: &http.Client{
			Transport: &digest.Transport{
				Username:  username,
				Password:  password,
				Transport: common.Transport(base),
			},
			Timeout: timeout,
		},
		scheme: "https",
		host:   DefaultHost,
	}
}

// Host returns the backend host the client currently talks to.
func (c *Client) Host() string {
	return c.host
}

// attempt is the outcome of a single request: either the response, or a
// redirect to another host when the response named one.
type attempt struct {
	status   int
	body     []byte
	redirect string
}

func (a attempt) result() ([]byte, error) {
	if a.status != http.StatusOK {
		return nil, &StatusError{StatusCode: a.status}
	}
	return a.body, nil
}

func (c *Client) do(ctx context.Context, path string) (attempt, error) {
	u := c.scheme + "://" + c.host + "/" + path
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return attempt{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return attempt{}, err
	}
	defer resp.Body.Close()

	a := attempt{status: resp.StatusCode}
	if h := resp.Header.Get(HostHeader); h != "" && h != "undefined" && h != c.host {
		a.redirect = h
	}
	a.body, err = io.ReadAll(resp.Body)
	if err != nil {
		return attempt{}, err
	}
	return a, nil
}

// get issues the request, and if the response migrates the account to another
// host, re-issues it there once. A second migration on the retry is ignored.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	a, err := c.do(ctx, path)
	if err != nil {
		return nil, err
	}
	if a.redirect == "" {
		return a.result()
	}

	log.Ctx(ctx).InfoContext(ctx, "myenergi host migration", slog.String("from", c.host), slog.String("to", a.redirect))
	c.host = a.redirect

	a, err = c.do(ctx, path)
	if err != nil {
		return nil, err
	}
	if a.redirect != "" {
		log.Ctx(ctx).WarnContext(ctx, "ignoring repeated myenergi host migration", slog.String("host", c.host), slog.String("to", a.redirect))
	}
	return a.result()
}

// getJSON is get followed by a lenient decode: an empty or invalid body leaves
// dest untouched.
func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode myenergi response", slog.String("path", path), slog.Any("error", err))
	}
	return nil
}

// GetStatus returns the live status of every device on the account as
// decoded JSON, typically a list of groups such as [{"zappi": [...]}, {"harvi": [...]}].
func (c *Client) GetStatus(ctx context.Context) (any, error) {
	var res any
	if err := c.getJSON(ctx, "cgi-jstatus-*", &res); err != nil {
		return nil, fmt.Errorf("status failed: %w", err)
	}
	return res, nil
}

// HourRecord is one hourly bucket of zappi history. Energies are in
// watt-seconds.
type HourRecord struct {
	Year          int   `json:"yr"`
	Month         int   `json:"mon"`
	Day           int   `json:"dom"`
	Hour          int   `json:"hr"`
	Minute        int   `json:"min"`
	ImportWS      int64 `json:"imp"`
	ExportWS      int64 `json:"exp"`
	GenPositiveWS int64 `json:"gep"`
	GenNegativeWS int64 `json:"gen"`
}

// GetHourData returns the hourly buckets of zappiID for the calendar day of date.
func (c *Client) GetHourData(ctx context.Context, zappiID int, date time.Time) ([]HourRecord, error) {
	path := fmt.Sprintf("cgi-jdayhour-Z%d-%d-%d-%d", zappiID, date.Year(), int(date.Month()), date.Day())

	var raw json.RawMessage
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("hour data failed: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	// the list is normally keyed by the unit, but some backends return it bare
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err == nil {
		list, ok := keyed[fmt.Sprintf("U%d", zappiID)]
		if !ok {
			return nil, nil
		}
		raw = list
	}

	var records []HourRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "unexpected myenergi hour data", slog.Any("error", err))
		return nil, nil
	}
	return records, nil
}
