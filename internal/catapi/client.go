package catapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kiranshivaraju/catstealer/pkg/models"
)

// Sentinel errors for catalog API failures.
var (
	ErrCatAPIUnreachable = errors.New("cat api unreachable")
	ErrCatAPIStatus      = errors.New("cat api error status")
	ErrCatAPITimeout     = errors.New("cat api timeout")
	ErrEmptyPayload      = errors.New("empty image payload")
)

// Client is the interface for the upstream cat catalog.
type Client interface {
	FetchImages(ctx context.Context, limit int) ([]models.CatImage, error)
	Download(ctx context.Context, imageURL string) ([]byte, error)
}

// HTTPClient implements Client against TheCatAPI's HTTP interface.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new catalog HTTP client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchImages asks the catalog for up to limit candidate images with
// breed metadata attached. One round trip, no pagination.
func (c *HTTPClient) FetchImages(ctx context.Context, limit int) ([]models.CatImage, error) {
	params := url.Values{
		"limit":      {strconv.Itoa(limit)},
		"has_breeds": {"1"},
	}

	u := fmt.Sprintf("%s/images/search?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrCatAPIStatus, resp.StatusCode)
	}

	var images []models.CatImage
	if err := json.NewDecoder(resp.Body).Decode(&images); err != nil {
		return nil, fmt.Errorf("decoding image search response: %w", err)
	}

	return images, nil
}

// Download retrieves one image payload. A 200 with an empty body counts
// as a failed fetch.
func (c *HTTPClient) Download(ctx context.Context, imageURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrCatAPIStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	return data, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

// classifyError maps transport-level errors to sentinel errors. Context
// cancellation is passed through so callers can tell shutdown apart from
// upstream flakiness.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrCatAPITimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrCatAPIUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrCatAPIUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
