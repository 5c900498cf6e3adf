// Package fudo implements a client for the Fudo JSON:API REST interface.
package fudo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Sparse fieldsets and includes requested for a single expense. Keeping the
// set fixed makes raw documents self-contained for the transformer.
const (
	expenseFields = "amount,canceled,cashRegister,createdAt,date,description,dueDate," +
		"expenseCategory,expenseItems,paymentDate,paymentMethod,provider," +
		"receiptNumber,receiptType,useInCashCount,user"
	expenseInclude = "expenseItems,expenseItems.product,expenseItems.ingredient," +
		"cashRegister,expenseCategory,paymentMethod,provider,receiptType,user"
)

// Client talks to the Fudo API. It authenticates lazily and re-authenticates
// once when a request comes back 401.
type Client struct {
	httpClient *http.Client
	apiURL     string
	authURL    string
	apiKey     string
	apiSecret  string

	maxRetries int
	retryDelay time.Duration

	mu    sync.Mutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets the bounded retry policy for transient failures.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

// NewClient creates a Fudo API client.
func NewClient(apiURL, authURL, apiKey, apiSecret string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     apiURL,
		authURL:    authURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate obtains a bearer token from the auth endpoint.
func (c *Client) Authenticate(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"apiKey":    c.apiKey,
		"apiSecret": c.apiSecret,
	})
	if err != nil {
		return fmt.Errorf("marshal auth payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("auth request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("auth request rejected")}
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	if body.Token == "" {
		return fmt.Errorf("auth response contains no token")
	}

	c.mu.Lock()
	c.token = body.Token
	c.mu.Unlock()

	return nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// GetExpense fetches a single expense with all related entities included.
// It returns the raw response bytes together with the parsed document so
// callers can persist exactly what the API served. A 404 maps to ErrNotFound;
// other failures are retried maxRetries times and surface as TransientError.
func (c *Client) GetExpense(ctx context.Context, id int64) ([]byte, *Document, error) {
	params := url.Values{}
	params.Set("fields[expense]", expenseFields)
	params.Set("fields[cashRegister]", "name")
	params.Set("fields[expenseCategory]", "name")
	params.Set("fields[paymentMethod]", "code,name")
	params.Set("fields[provider]", "name")
	params.Set("fields[receiptType]", "name")
	params.Set("fields[product]", "cost,unit,name")
	params.Set("fields[ingredient]", "cost,unit,name")
	params.Set("fields[expenseItem]", "canceled,detail,price,product,ingredient,quantity")
	params.Set("fields[user]", "name")
	params.Set("include", expenseInclude)

	endpoint := fmt.Sprintf("%s/expenses/%d?%s", c.apiURL, id, params.Encode())

	raw, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return nil, nil, err
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode expense %d: %w", id, err)
	}
	if doc.Data.ID == "" {
		return nil, nil, fmt.Errorf("expense %d: response has no resource id", id)
	}

	return raw, &doc, nil
}

// ListExpenses fetches one page of expenses sorted by date descending.
// Extra filter parameters (e.g. filter[date][gte]) are passed through as-is.
func (c *Client) ListExpenses(ctx context.Context, page, pageSize int, filters map[string]string) (*Page, error) {
	params := url.Values{}
	params.Set("page[size]", strconv.Itoa(pageSize))
	params.Set("page[number]", strconv.Itoa(page))
	params.Set("sort", "-date")
	params.Set("fields[expense]", expenseFields)
	for k, v := range filters {
		params.Set(k, v)
	}

	endpoint := fmt.Sprintf("%s/expenses?%s", c.apiURL, params.Encode())

	raw, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var p Page
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode expenses page %d: %w", page, err)
	}

	return &p, nil
}

// getWithRetry performs an authenticated GET with bounded retries for
// transient failures. 404 returns ErrNotFound without retrying; a single 401
// triggers one re-authentication before the request counts as failed.
func (c *Client) getWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	if c.currentToken() == "" {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	reauthed := false

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.currentToken())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &TransientError{Err: err}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized && !reauthed:
			reauthed = true
			if err := c.Authenticate(ctx); err != nil {
				lastErr = err
				continue
			}
			// retry immediately with the fresh token
			attempt--
			continue
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				lastErr = &TransientError{Err: fmt.Errorf("read response: %w", readErr)}
				continue
			}
			return body, nil
		default:
			lastErr = &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
		}
	}

	return nil, lastErr
}
