package shortener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

var ErrRejected = errors.New("shortener rejected request")

type apiResponse struct {
	Status       string `json:"status"`
	Message      any    `json:"message"`
	ShortenedURL string `json:"shortenedUrl"`
}

// Client talks to one AdLinkFly-compatible API
// (GET ?api=<key>&url=<long>&format=json).
type Client struct {
	name   string
	apiURL string
	client *http.Client
}

func NewClient(name, apiURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{name: name, apiURL: apiURL, client: client}
}

func (c *Client) Name() string { return c.name }

func (c *Client) Shorten(ctx context.Context, apiKey, longURL string) (string, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return "", fmt.Errorf("%s: bad api url: %w", c.name, err)
	}
	q := u.Query()
	q.Set("api", apiKey)
	q.Set("url", longURL)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: status %d", c.name, resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	if body.Status != "success" || body.ShortenedURL == "" {
		return "", fmt.Errorf("%s: %w: %v", c.name, ErrRejected, body.Message)
	}
	if _, err := url.ParseRequestURI(body.ShortenedURL); err != nil {
		return "", fmt.Errorf("%s: %w: malformed short url", c.name, ErrRejected)
	}
	return body.ShortenedURL, nil
}
