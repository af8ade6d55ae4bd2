// Package client is a typed HTTP client for the ratings API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the service reports an unknown rating id.
var ErrNotFound = errors.New("client: rating not found")

// APIError describes any other non-2xx answer from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("ratings api: status %d", e.Status)
	}
	return fmt.Sprintf("ratings api: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Rating mirrors the service's rating representation.
type Rating struct {
	ID         int64     `json:"id"`
	BusinessID int64     `json:"business_id"`
	CustomerID int64     `json:"customer_id"`
	Rating     int       `json:"rating"`
	Review     *string   `json:"review"`
	CreatedAt  time.Time `json:"created_at"`
}

// RatingInput is the create/update payload.
type RatingInput struct {
	BusinessID int64   `json:"business_id"`
	CustomerID int64   `json:"customer_id"`
	Rating     int     `json:"rating"`
	Review     *string `json:"review,omitempty"`
}

// Average is the per-business aggregate.
type Average struct {
	BusinessID    int64   `json:"business_id"`
	AverageRating float64 `json:"average_rating"`
	TotalRatings  int64   `json:"total_ratings"`
}

// ListOptions narrows the business listing. A nil Limit and zero times are
// omitted so the server defaults apply; Limit may point at 0 to ask for an
// empty page.
type ListOptions struct {
	Limit    *int
	DateFrom time.Time
	DateTo   time.Time
}

// HTTPClient talks to a running ratings service.
type HTTPClient struct {
	baseURL *url.URL
	client  *http.Client
	logger  *log.Logger
}

// NewHTTPClient constructs a client for the service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *log.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = log.Default()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ratings api url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("ratings api url must be absolute: %q", baseURL)
	}
	return &HTTPClient{
		baseURL: parsed,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

// Create submits a new rating.
func (c *HTTPClient) Create(ctx context.Context, in RatingInput) (Rating, error) {
	var out Rating
	err := c.do(ctx, http.MethodPost, "/cx/ratings/create", nil, in, &out)
	return out, err
}

// Get fetches one rating.
func (c *HTTPClient) Get(ctx context.Context, id int64) (Rating, error) {
	var out Rating
	err := c.do(ctx, http.MethodGet, ratingPath(id), nil, nil, &out)
	return out, err
}

// Update replaces a rating's fields.
func (c *HTTPClient) Update(ctx context.Context, id int64, in RatingInput) (Rating, error) {
	var out Rating
	err := c.do(ctx, http.MethodPut, ratingPath(id), nil, in, &out)
	return out, err
}

// Delete removes a rating.
func (c *HTTPClient) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, ratingPath(id), nil, nil, nil)
}

// ListBusiness lists ratings through the business view.
func (c *HTTPClient) ListBusiness(ctx context.Context, opts ListOptions) ([]Rating, error) {
	q := url.Values{}
	setLimit(q, opts.Limit)
	if !opts.DateFrom.IsZero() {
		q.Set("date_from", opts.DateFrom.Format(time.RFC3339Nano))
	}
	if !opts.DateTo.IsZero() {
		q.Set("date_to", opts.DateTo.Format(time.RFC3339Nano))
	}
	var out []Rating
	err := c.do(ctx, http.MethodGet, "/bz/ratings/", q, nil, &out)
	return out, err
}

// ListCustomer lists ratings through the customer view. A nil limit uses the
// server default.
func (c *HTTPClient) ListCustomer(ctx context.Context, limit *int) ([]Rating, error) {
	q := url.Values{}
	setLimit(q, limit)
	var out []Rating
	err := c.do(ctx, http.MethodGet, "/cx/ratings/", q, nil, &out)
	return out, err
}

// Average fetches the rating aggregate for a business.
func (c *HTTPClient) Average(ctx context.Context, businessID int64) (Average, error) {
	q := url.Values{}
	q.Set("business_id", strconv.FormatInt(businessID, 10))
	var out Average
	err := c.do(ctx, http.MethodGet, "/bz/ratings/avg", q, nil, &out)
	return out, err
}

// LimitOf returns a limit for ListOptions or ListCustomer.
func LimitOf(n int) *int { return &n }

func setLimit(q url.Values, limit *int) {
	if limit != nil {
		q.Set("limit", strconv.Itoa(*limit))
	}
}

func ratingPath(id int64) string {
	return fmt.Sprintf("/cx/ratings/%d/", id)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, dst interface{}) error {
	rel := &url.URL{Path: path}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	endpoint := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if dst == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
		return nil
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	apiErr := parseAPIError(resp.StatusCode, resp.Body)
	c.logger.Printf("client: %s %s failed: %v", method, path, apiErr)
	return apiErr
}

func parseAPIError(status int, body io.Reader) *APIError {
	apiErr := &APIError{Status: status}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	}
	return apiErr
}
