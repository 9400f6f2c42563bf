package checkdef

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
	"strings"
	"time"
)

const maxErrorBody = 4096

// APIClientOptions configures access to the monitoring API.
type APIClientOptions struct {
	Host       string
	Port       int
	User       string
	Password   string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

// APIClient fetches check definitions from the monitoring platform's HTTP API.
type APIClient struct {
	base      url.URL
	user      string
	password  string
	userAgent string
	http      *http.Client
}

// APIError reports a non-successful API response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Error querying check api: %d '%s'", e.StatusCode, e.Body)
}

// NewAPIClient builds an API client.
func NewAPIClient(opts APIClientOptions) (*APIClient, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		return nil, errors.New("api client requires a host")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("api client port %d out of range", opts.Port)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &APIClient{
		base:      url.URL{Scheme: "http", Host: net.JoinHostPort(host, strconv.Itoa(opts.Port))},
		user:      opts.User,
		password:  opts.Password,
		userAgent: opts.UserAgent,
		http:      client,
	}, nil
}

// Check implements Source by requesting /checks/<name>.
func (c *APIClient) Check(ctx context.Context, name string) (Definition, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.base
	endpoint.Path = "/checks/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Definition{}, fmt.Errorf("build check request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.user != "" && c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Definition{}, err
		}
		return Definition{}, fmt.Errorf("query check %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Definition{}, &NotFoundError{Name: name}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Definition{}, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var def Definition
	if err := json.NewDecoder(resp.Body).Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("decode check %s: %w", name, err)
	}
	return def, nil
}

var _ Source = (*APIClient)(nil)
