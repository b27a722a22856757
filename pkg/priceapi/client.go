// Package priceapi provides a client for the pricewatch price API.
package priceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oakcellar/pricewatch-cli/internal/model"
)

// ChunkSize is the number of records sent per batch call. Chunking bounds
// request payload size; chunks are independent, so one rejected batch does
// not stop the rest.
const ChunkSize = 100

// Client defines the price API operations used by the scrapers and the CLI.
type Client interface {
	// SubmitStorePrices submits normalized price records for a store in
	// chunks of ChunkSize. All chunks are attempted even when one fails.
	SubmitStorePrices(ctx context.Context, storeKey string, records []model.PriceSubmission) (*SubmitResult, error)
	// PriceChanges fetches one page of recent price changes.
	PriceChanges(ctx context.Context, page int, query string) (*PriceChangesResponse, error)
}

// SubmitResult aggregates the outcome across all submitted chunks.
type SubmitResult struct {
	Accepted int `json:"accepted"`
	Failed   int `json:"failed"`
}

// PriceChangesResponse is one page of the priceChanges listing.
type PriceChangesResponse struct {
	Results []model.PriceChange `json:"results"`
	Rel     Rel                 `json:"rel"`
}

// Rel carries the pagination cursors of a listing response.
type Rel struct {
	NextPage *int    `json:"nextPage"`
	PrevPage *int    `json:"prevPage"`
	Next     *string `json:"next"`
	Prev     *string `json:"prev"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	accessToken string
	baseURL     string
	http        *http.Client
}

// NewClient creates a price API client authenticated with the given access
// token.
func NewClient(accessToken string, opts ...Option) Client {
	c := &httpClient{
		accessToken: accessToken,
		baseURL:     "http://localhost:8080",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes a request with exponential backoff on transient failures
// (429, 500, 502, 503) and returns the response body and status code.
func (c *httpClient) retryDo(ctx context.Context, method, reqURL string, payload []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(payload))
		if err != nil {
			return nil, 0, eris.Wrap(err, "priceapi: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		respBody, readErr := readAllAndClose(resp)
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "priceapi: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("priceapi: status %d: %s", resp.StatusCode, string(respBody))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func readAllAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close() //nolint:errcheck
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	return buf.Bytes(), err
}

type submitRequest struct {
	Records []model.PriceSubmission `json:"records"`
}

func (c *httpClient) SubmitStorePrices(ctx context.Context, storeKey string, records []model.PriceSubmission) (*SubmitResult, error) {
	total := &SubmitResult{}
	failedChunks := 0
	chunks := Chunk(records, ChunkSize)

	for i, chunk := range chunks {
		res, err := c.submitChunk(ctx, storeKey, chunk)
		if err != nil {
			// Chunks are independent: log and move on.
			failedChunks++
			total.Failed += len(chunk)
			zap.L().Warn("price chunk submission failed",
				zap.String("store", storeKey),
				zap.Int("chunk", i+1),
				zap.Int("records", len(chunk)),
				zap.Error(err),
			)
			continue
		}
		total.Accepted += res.Accepted
		total.Failed += res.Failed
	}

	if failedChunks > 0 {
		return total, eris.Errorf("priceapi: %d of %d chunks failed for %s", failedChunks, len(chunks), storeKey)
	}
	return total, nil
}

func (c *httpClient) submitChunk(ctx context.Context, storeKey string, chunk []model.PriceSubmission) (*SubmitResult, error) {
	payload, err := json.Marshal(submitRequest{Records: chunk})
	if err != nil {
		return nil, eris.Wrap(err, "priceapi: marshal records")
	}

	reqURL := fmt.Sprintf("%s/v1/stores/%s/prices", c.baseURL, url.PathEscape(storeKey))
	body, statusCode, err := c.retryDo(ctx, http.MethodPost, reqURL, payload)
	if err != nil {
		return nil, eris.Wrap(err, "priceapi: submit request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("priceapi: unexpected status %d: %s", statusCode, string(body))
	}

	var result SubmitResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "priceapi: unmarshal submit response")
	}
	return &result, nil
}

func (c *httpClient) PriceChanges(ctx context.Context, page int, query string) (*PriceChangesResponse, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if query != "" {
		q.Set("query", query)
	}
	reqURL := fmt.Sprintf("%s/v1/priceChanges?%s", c.baseURL, q.Encode())

	body, statusCode, err := c.retryDo(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "priceapi: price changes request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("priceapi: unexpected status %d: %s", statusCode, string(body))
	}

	var result PriceChangesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "priceapi: unmarshal price changes")
	}
	return &result, nil
}

// Chunk splits records into batches of at most size elements, preserving
// order.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
